package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kalambet/ticketlens/internal/pipeline"
	"github.com/kalambet/ticketlens/internal/storage"
	"github.com/kalambet/ticketlens/internal/ticket"
)

// JobTypeAnalyze is the job type for queued ticket analyses.
const JobTypeAnalyze = "analyze_ticket"

// JobStore abstracts the job queue operations.
type JobStore interface {
	EnqueueJob(ctx context.Context, job storage.Job) error
	ClaimNextJob(ctx context.Context, types []string) (*storage.Job, error)
	CompleteJob(ctx context.Context, id, result string) error
	FailJob(ctx context.Context, id string, errMsg string) error
	AbandonJob(ctx context.Context, id string, errMsg string) error
}

// ErrInvalidTicket marks a ticket that can never be analyzed: undecodable, or
// without a title and description. Jobs failing with it are not retried.
var ErrInvalidTicket = errors.New("invalid ticket")

// TicketAnalyzer runs one ticket analysis.
type TicketAnalyzer interface {
	Run(ctx context.Context, req pipeline.Request) (pipeline.Outcome, error)
}

// Payload is the JSON body of an analyze_ticket job.
type Payload struct {
	Ticket json.RawMessage `json:"ticket"`
	PDFs   []string        `json:"pdfs,omitempty"`
}

// Result is the JSON recorded on a completed job.
type Result struct {
	TicketID  string `json:"ticket_id"`
	Questions int    `json:"questions"`
	TestCases int    `json:"test_cases"`
}

// Enqueue validates ticketJSON and queues it for analysis. It returns the new
// job id. Tickets that cannot be analyzed are rejected with ErrInvalidTicket.
func Enqueue(ctx context.Context, store JobStore, ticketJSON []byte, pdfs []string) (string, error) {
	if _, err := parseTicket(ticketJSON); err != nil {
		return "", err
	}
	payload, err := json.Marshal(Payload{Ticket: ticketJSON, PDFs: pdfs})
	if err != nil {
		return "", fmt.Errorf("encoding payload: %w", err)
	}
	id := uuid.New().String()
	if err := store.EnqueueJob(ctx, storage.Job{ID: id, Type: JobTypeAnalyze, PayloadJSON: string(payload)}); err != nil {
		return "", fmt.Errorf("enqueueing job: %w", err)
	}
	return id, nil
}

// Worker processes analyze_ticket jobs from the SQLite job queue.
type Worker struct {
	store    JobStore
	analyzer TicketAnalyzer
	poll     time.Duration
	logger   *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, analyzer TicketAnalyzer, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:    store,
		analyzer: analyzer,
		poll:     pollInterval,
		logger:   slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// Drain processes jobs until the queue has nothing runnable and returns the
// number of jobs handled.
func (w *Worker) Drain(ctx context.Context) (int, error) {
	n := 0
	for ctx.Err() == nil {
		done, err := w.RunOnce(ctx)
		if err != nil {
			return n, err
		}
		if !done {
			return n, nil
		}
		n++
	}
	return n, ctx.Err()
}

// RunOnce claims and processes a single analyze_ticket job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob(ctx, []string{JobTypeAnalyze})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	result, err := w.processJob(ctx, job)
	if errors.Is(err, ErrInvalidTicket) || errors.Is(err, ticket.ErrInsufficientData) {
		w.logger.Warn("job rejected", "job_id", job.ID, "error", err)
		if failErr := w.store.AbandonJob(ctx, job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}
	if err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(ctx, job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(ctx, job.ID, result); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

// parseTicket decodes a ticket payload and checks that a normalized copy has
// something to analyze. The ticket is returned as decoded.
func parseTicket(data []byte) (ticket.Ticket, error) {
	t, err := ticket.ParseJSON(data)
	if err != nil {
		return t, fmt.Errorf("%w: %w", ErrInvalidTicket, err)
	}
	check := t
	if err := check.Normalize(time.Now()); err != nil {
		return t, fmt.Errorf("%w: %w", ErrInvalidTicket, err)
	}
	return t, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) (string, error) {
	var payload Payload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return "", fmt.Errorf("%w: parsing payload: %w", ErrInvalidTicket, err)
	}
	if len(payload.Ticket) == 0 {
		return "", fmt.Errorf("%w: payload has no ticket", ErrInvalidTicket)
	}

	t, err := parseTicket(payload.Ticket)
	if err != nil {
		return "", err
	}

	out, err := w.analyzer.Run(ctx, pipeline.Request{Ticket: t, PDFs: payload.PDFs})
	if err != nil {
		return "", fmt.Errorf("analyzing ticket: %w", err)
	}

	b, err := json.Marshal(Result{
		TicketID:  out.ID,
		Questions: out.Result.QuestionCount(),
		TestCases: out.Result.TestCaseCount(),
	})
	if err != nil {
		return "", fmt.Errorf("encoding result: %w", err)
	}
	return string(b), nil
}
