package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jmoiron/sqlx"
)

// --- Jobs ---

type jobRow struct {
	ID          string         `db:"id"`
	Type        string         `db:"type"`
	PayloadJSON string         `db:"payload_json"`
	Status      string         `db:"status"`
	Attempts    int            `db:"attempts"`
	MaxAttempts int            `db:"max_attempts"`
	RunAfter    string         `db:"run_after"`
	CreatedAt   string         `db:"created_at"`
	UpdatedAt   string         `db:"updated_at"`
	LastError   sql.NullString `db:"last_error"`
	Result      string         `db:"result"`
}

const jobColumns = `id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at, last_error, result`

func (r jobRow) job() (Job, error) {
	j := Job{
		ID:          r.ID,
		Type:        r.Type,
		PayloadJSON: r.PayloadJSON,
		Status:      r.Status,
		Attempts:    r.Attempts,
		MaxAttempts: r.MaxAttempts,
		LastError:   r.LastError.String,
		Result:      r.Result,
	}
	var err error
	if j.RunAfter, err = parseTime(r.RunAfter); err != nil {
		return Job{}, fmt.Errorf("parsing run_after for job %s: %w", r.ID, err)
	}
	if j.CreatedAt, err = parseTime(r.CreatedAt); err != nil {
		return Job{}, fmt.Errorf("parsing created_at for job %s: %w", r.ID, err)
	}
	if j.UpdatedAt, err = parseTime(r.UpdatedAt); err != nil {
		return Job{}, fmt.Errorf("parsing updated_at for job %s: %w", r.ID, err)
	}
	return j, nil
}

func (s *Store) EnqueueJob(ctx context.Context, job Job) error {
	now := formatTime(time.Now())
	runAfter := now
	if !job.RunAfter.IsZero() {
		runAfter = formatTime(job.RunAfter)
	}
	maxAttempts := job.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 3
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at)
		VALUES (?, ?, ?, 'pending', 0, ?, ?, ?, ?)`,
		job.ID, job.Type, job.PayloadJSON, maxAttempts, runAfter, now, now,
	)
	return err
}

// GetJob returns a job by id.
func (s *Store) GetJob(ctx context.Context, id string) (Job, error) {
	var row jobRow
	err := s.db.GetContext(ctx, &row, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, ErrNotFound
	}
	if err != nil {
		return Job{}, err
	}
	return row.job()
}

// ClaimNextJob marks the oldest runnable pending job of one of types as
// running and returns it. It returns nil when nothing is runnable.
func (s *Store) ClaimNextJob(ctx context.Context, types []string) (*Job, error) {
	if len(types) == 0 {
		return nil, nil
	}

	now := formatTime(time.Now())
	query, args, err := sqlx.In(`SELECT `+jobColumns+`
		FROM jobs
		WHERE status = 'pending' AND run_after <= ? AND type IN (?)
		ORDER BY run_after ASC, created_at ASC
		LIMIT 1`, now, types)
	if err != nil {
		return nil, fmt.Errorf("building claim query: %w", err)
	}

	var claimed *Job
	err = s.withTx(ctx, func(tx *sqlx.Tx) error {
		var row jobRow
		err := tx.GetContext(ctx, &row, tx.Rebind(query), args...)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("selecting next job: %w", err)
		}

		res, err := tx.ExecContext(ctx, `UPDATE jobs SET status = 'running', updated_at = ? WHERE id = ? AND status = 'pending'`, now, row.ID)
		if err != nil {
			return fmt.Errorf("updating job status: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("checking updated job rows: %w", err)
		}
		if n != 1 {
			return nil
		}

		row.Status = "running"
		row.UpdatedAt = now
		j, err := row.job()
		if err != nil {
			return err
		}
		claimed = &j
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// CompleteJob marks a job completed and records its result.
func (s *Store) CompleteJob(ctx context.Context, id, result string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE jobs SET status = 'completed', result = ?, updated_at = ? WHERE id = ?`,
		result, formatTime(time.Now()), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// FailJob records a failed attempt. The job is retried with exponential
// backoff until it reaches max_attempts, then marked failed.
func (s *Store) FailJob(ctx context.Context, id string, errMsg string) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var counts struct {
			Attempts    int `db:"attempts"`
			MaxAttempts int `db:"max_attempts"`
		}
		err := tx.GetContext(ctx, &counts, `SELECT attempts, max_attempts FROM jobs WHERE id = ?`, id)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		attempts := counts.Attempts + 1
		if attempts >= counts.MaxAttempts {
			_, err = tx.ExecContext(ctx, `UPDATE jobs SET status = 'failed', attempts = ?, last_error = ?, updated_at = ? WHERE id = ?`,
				attempts, errMsg, formatTime(now), id)
			return err
		}
		backoff := time.Duration(math.Pow(2, float64(attempts))) * time.Second
		_, err = tx.ExecContext(ctx, `UPDATE jobs SET status = 'pending', attempts = ?, last_error = ?, run_after = ?, updated_at = ? WHERE id = ?`,
			attempts, errMsg, formatTime(now.Add(backoff)), formatTime(now), id)
		return err
	})
}

// AbandonJob marks a job failed without further retries. It is used for
// failures that cannot succeed on a later attempt.
func (s *Store) AbandonJob(ctx context.Context, id string, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = 'failed', attempts = attempts + 1, last_error = ?, updated_at = ? WHERE id = ?`,
		errMsg, formatTime(time.Now()), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
