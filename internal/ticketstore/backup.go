package ticketstore

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// ErrUploadFailed marks a backup whose archive was written locally but could
// not be uploaded.
var ErrUploadFailed = errors.New("backup upload failed")

// BackupResult describes a finished backup.
type BackupResult struct {
	Path     string `json:"path"`
	Files    int    `json:"files"`
	Bytes    int64  `json:"bytes"`
	Location string `json:"location,omitempty"`
}

// Backup archives the whole storage tree, except earlier backups, into
// backups/ticket_storage_backup_<ts>.tar.zst. When an Uploader is configured
// the archive is also uploaded; an upload failure is returned with the local
// result intact.
func (e *Engine) Backup(ctx context.Context) (BackupResult, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if err := e.store.Checkpoint(ctx); err != nil {
		e.logger.Warn("wal checkpoint before backup failed", "error", err)
	}

	if err := os.MkdirAll(e.layout.BackupsDir, 0o755); err != nil {
		return BackupResult{}, err
	}
	name := fmt.Sprintf("ticket_storage_backup_%s.tar.zst", e.now().UTC().Format("20060102_150405"))
	res := BackupResult{Path: filepath.Join(e.layout.BackupsDir, name)}

	tmp, err := os.CreateTemp(e.layout.BackupsDir, ".backup-*")
	if err != nil {
		return BackupResult{}, fmt.Errorf("creating backup file: %w", err)
	}
	defer os.Remove(tmp.Name())

	files, err := e.writeArchive(ctx, tmp)
	if err != nil {
		tmp.Close()
		return BackupResult{}, fmt.Errorf("writing backup archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return BackupResult{}, fmt.Errorf("closing backup archive: %w", err)
	}
	if err := os.Rename(tmp.Name(), res.Path); err != nil {
		return BackupResult{}, fmt.Errorf("finalizing backup archive: %w", err)
	}
	res.Files = files
	if info, err := os.Stat(res.Path); err == nil {
		res.Bytes = info.Size()
	}
	e.logger.Info("backup written", "path", res.Path, "files", res.Files, "bytes", res.Bytes)

	if e.uploader != nil {
		loc, err := e.uploader.Upload(ctx, name, res.Path)
		if err != nil {
			e.logger.Warn("backup upload failed", "path", res.Path, "error", err)
			return res, fmt.Errorf("%w: %w", ErrUploadFailed, err)
		}
		res.Location = loc
		e.logger.Info("backup uploaded", "location", loc)
	}
	return res, nil
}

func (e *Engine) writeArchive(ctx context.Context, w io.Writer) (int, error) {
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return 0, err
	}
	tw := tar.NewWriter(zw)

	files := 0
	root := e.layout.Root
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == e.layout.BackupsDir {
			return filepath.SkipDir
		}
		// Skip temp files from in-flight atomic writes and SQLite sidecars
		// already folded in by the checkpoint.
		base := d.Name()
		if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "-shm") {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(filepath.Dir(root), path)
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if d.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		if _, err := io.CopyN(tw, f, hdr.Size); err != nil {
			return err
		}
		files++
		return nil
	})
	if walkErr != nil {
		tw.Close()
		zw.Close()
		return 0, walkErr
	}
	if err := tw.Close(); err != nil {
		zw.Close()
		return 0, err
	}
	if err := zw.Close(); err != nil {
		return 0, err
	}
	return files, nil
}
