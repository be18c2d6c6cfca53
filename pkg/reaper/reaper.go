// Package reaper implements the background sweeper: a ticker-driven
// reconciliation between the metadata store and the filesystem, plus
// the on-demand filesystem reconciliation invoked by the
// `admin sweep-files` CLI subcommand.
package reaper

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/marmos91/transferd/internal/logger"
	"github.com/marmos91/transferd/internal/metrics"
	"github.com/marmos91/transferd/pkg/core"
	"github.com/marmos91/transferd/pkg/store"
)

// Config carries the subset of pkg/config the Reaper needs.
type Config struct {
	UploadDir           string
	UploadTimeoutSecs   int64
	DownloadTimeoutSecs int64
	SweepIntervalSecs   int64
}

// Reaper periodically sweeps expired PendingUpload/PendingDownload
// rows and over-limit/expired Uploads, independent of request traffic.
type Reaper struct {
	store   *store.Store
	config  Config
	metrics *metrics.Metrics
	now     func() time.Time
}

// New builds a Reaper over store. m may be nil, in which case metrics
// recording is a no-op.
func New(s *store.Store, cfg Config, m *metrics.Metrics) *Reaper {
	return &Reaper{store: s, config: cfg, metrics: m, now: time.Now}
}

// Run blocks, ticking every config.SweepIntervalSecs, until ctx is
// canceled. Each tick's errors are logged and do not abort the loop:
// the Reaper tolerates transient database unavailability by retrying
// on the next tick.
func (r *Reaper) Run(ctx context.Context) {
	interval := time.Duration(r.config.SweepIntervalSecs) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Tick(ctx); err != nil {
				logger.Error("reaper tick failed", "error", err)
			}
		}
	}
}

// Tick runs one sweep pass: clear outdated pending rows, then retire
// expired or over-limit Uploads.
func (r *Reaper) Tick(ctx context.Context) error {
	start := r.now()
	now := start

	clearedUploads, err := r.clearOutdatedPendingUploads(ctx, now)
	if err != nil {
		return err
	}
	clearedDownloads, err := r.clearOutdatedPendingDownloads(ctx, now)
	if err != nil {
		return err
	}
	retired, reclaimedBytes, err := r.retireOutdatedUploads(ctx, now)
	if err != nil {
		return err
	}

	r.metrics.ObserveReaperTick(time.Since(start).Seconds(), retired)
	r.publishStatus(ctx)

	logger.Info("reaper tick complete",
		"cleared_pending_uploads", clearedUploads,
		"cleared_pending_downloads", clearedDownloads,
		"retired_uploads", retired,
		"reclaimed", humanize.Bytes(uint64(reclaimedBytes)),
	)
	return nil
}

// publishStatus refreshes the exported accountant gauges from the
// singleton Status row. Failures are logged only: gauge staleness is
// not worth aborting a sweep over.
func (r *Reaper) publishStatus(ctx context.Context) {
	err := r.store.Transaction(ctx, func(tx *gorm.DB) error {
		status, err := store.GetStatus(tx)
		if err != nil {
			return err
		}
		r.metrics.SetStatus(status.TotalBytes, status.UploadCount)
		return nil
	})
	if err != nil {
		logger.Warn("failed to refresh status gauges", "error", err)
	}
}

func (r *Reaper) clearOutdatedPendingUploads(ctx context.Context, now time.Time) (int, error) {
	timeout := time.Duration(r.config.UploadTimeoutSecs) * time.Second
	var cleared int

	err := r.store.Transaction(ctx, func(tx *gorm.DB) error {
		rows, err := store.SelectOutdatedPendingUploads(tx, timeout, now)
		if err != nil {
			return err
		}
		for _, row := range rows {
			if err := store.DeletePendingUpload(tx, row.ID); err != nil {
				return core.Internal(err)
			}
		}
		cleared = len(rows)
		return nil
	})
	return cleared, err
}

func (r *Reaper) clearOutdatedPendingDownloads(ctx context.Context, now time.Time) (int64, error) {
	timeout := time.Duration(r.config.DownloadTimeoutSecs) * time.Second
	var cleared int64

	err := r.store.Transaction(ctx, func(tx *gorm.DB) error {
		n, err := store.ClearOutdatedPendingDownloads(tx, timeout, now)
		if err != nil {
			return err
		}
		cleared = n
		return nil
	})
	return cleared, err
}

// retireOutdatedUploads unlinks and soft-deletes every Upload that is
// expired or has reached its download limit. Unlink failures are
// logged, not fatal: Reconcile is the backstop for missed unlinks.
func (r *Reaper) retireOutdatedUploads(ctx context.Context, now time.Time) (int, int64, error) {
	var outdated []store.Upload

	err := r.store.Transaction(ctx, func(tx *gorm.DB) error {
		rows, err := store.SelectOutdatedUploads(tx, now)
		if err != nil {
			return err
		}
		outdated = rows
		return nil
	})
	if err != nil {
		return 0, 0, err
	}

	var reclaimedBytes int64
	for _, row := range outdated {
		if err := r.store.Transaction(ctx, func(tx *gorm.DB) error {
			if err := store.SoftDeleteUpload(tx, row.ID); err != nil {
				return err
			}
			return store.DecStatus(tx, row.Size)
		}); err != nil {
			logger.Error("failed to retire outdated upload", "upload_id", row.ID, "error", err)
			continue
		}
		reclaimedBytes += row.Size
		if err := os.Remove(row.StoragePath); err != nil && !os.IsNotExist(err) {
			logger.Warn("failed to unlink outdated upload file", "path", row.StoragePath, "error", err)
		}
	}
	return len(outdated), reclaimedBytes, nil
}

// ReconcileResult reports what Reconcile found and, unless DryRun was
// set, removed.
type ReconcileResult struct {
	OrphanFiles []string
	Removed     int
}

// Reconcile walks the upload directory and unlinks every file whose
// name parses as a UUID that does not map to a non-soft-deleted
// Upload. It is invoked separately by an admin command, not on every
// tick. When dryRun is true, orphans are reported but not removed.
func (r *Reaper) Reconcile(ctx context.Context, dryRun bool) (ReconcileResult, error) {
	entries, err := os.ReadDir(r.config.UploadDir)
	if err != nil {
		return ReconcileResult{}, core.Internal(err)
	}

	var result ReconcileResult
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if _, err := uuid.Parse(name); err != nil {
			continue
		}

		var exists bool
		txErr := r.store.Transaction(ctx, func(tx *gorm.DB) error {
			_, findErr := store.FindUploadByKey(tx, name)
			if findErr == nil {
				exists = true
				return nil
			}
			if core.Is(findErr, core.KindDoesNotExist) {
				return nil
			}
			return findErr
		})
		if txErr != nil {
			logger.Error("reconcile lookup failed", "file", name, "error", txErr)
			continue
		}
		if exists {
			continue
		}

		result.OrphanFiles = append(result.OrphanFiles, name)
		if dryRun {
			continue
		}
		path := filepath.Join(r.config.UploadDir, name)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warn("failed to unlink orphan upload file", "path", path, "error", err)
			continue
		}
		result.Removed++
	}
	r.metrics.AddOrphansRemoved(result.Removed)
	return result, nil
}
