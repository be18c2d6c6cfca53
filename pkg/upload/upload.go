// Package upload implements the upload state machine: the
// announce -> stream -> (stored | deleted | expired) lifecycle.
package upload

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/marmos91/transferd/internal/logger"
	"github.com/marmos91/transferd/internal/metrics"
	"github.com/marmos91/transferd/pkg/core"
	"github.com/marmos91/transferd/pkg/ingest"
	"github.com/marmos91/transferd/pkg/secret"
	"github.com/marmos91/transferd/pkg/store"
)

// Config carries the subset of pkg/config.UploadConfig the state
// machine needs, kept separate so this package does not import the
// config package directly.
type Config struct {
	Dir                 string
	LimitBytes          int64
	MaxCombinedBytes    int64
	TimeoutSecs         int64
	LifespanSecsDefault int64
}

// Service is the Upload State Machine: announce, stream, delete, bound
// to a Metadata Store and a storage directory.
type Service struct {
	store   *store.Store
	config  Config
	metrics *metrics.Metrics
	now     func() time.Time
}

// New builds a Service over store using the given config. The
// directory in config.Dir is created if it does not already exist.
// m may be nil, in which case metrics recording is a no-op.
func New(s *store.Store, cfg Config, m *metrics.Metrics) (*Service, error) {
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, core.Internal(err)
	}
	return &Service{store: s, config: cfg, metrics: m, now: time.Now}, nil
}

// AnnounceRequest is the decoded `POST /api/upload/init` payload.
type AnnounceRequest struct {
	Nonce            []byte
	FileNameToken    []byte
	Size             int64
	ContentHash      []byte
	AccessPassword   []byte
	DeletionPassword []byte // nil if no deletion password was given
	DownloadLimit    *int
	LifespanSecs     *int64
}

// Announce checks that the declared size currently fits under the
// storage cap and reserves a unique key for a future upload. No bytes
// are accounted until Stream. It does not touch the filesystem; the
// caller must follow up with Stream before config.TimeoutSecs elapses.
func (s *Service) Announce(ctx context.Context, req AnnounceRequest) (string, error) {
	if req.Size <= 0 {
		return "", core.BadRequest("declared size must be positive")
	}
	if req.Size > s.config.LimitBytes {
		return "", core.UploadTooLarge("declared size exceeds upload_limit_bytes")
	}

	lifespan := s.config.LifespanSecsDefault
	if req.LifespanSecs != nil {
		lifespan = *req.LifespanSecs
	}
	expireDate := s.now().Add(time.Duration(lifespan) * time.Second)
	if expireDate.Before(s.now()) || expireDate.Year() > 9999 {
		return "", core.BadRequest("lifespan produces an unrepresentable expiration")
	}

	key := uuid.New().String()

	err := s.store.Transaction(ctx, func(tx *gorm.DB) error {
		fits, err := store.CanFit(tx, s.config.MaxCombinedBytes, req.Size)
		if err != nil {
			return err
		}
		if !fits {
			return core.OutOfSpace("no room under max_combined_upload_bytes")
		}

		accessSecret, err := secret.Create(req.AccessPassword)
		if err != nil {
			return err
		}
		accessID, err := store.InsertSecret(tx, accessSecret.Salt, accessSecret.Hash)
		if err != nil {
			return err
		}

		var deletionID *uint
		if len(req.DeletionPassword) > 0 {
			deletionSecret, err := secret.Create(req.DeletionPassword)
			if err != nil {
				return err
			}
			id, err := store.InsertSecret(tx, deletionSecret.Salt, deletionSecret.Hash)
			if err != nil {
				return err
			}
			deletionID = &id
		}

		row := &store.PendingUpload{
			Key:              key,
			FileNameToken:    req.FileNameToken,
			DeclaredSize:     req.Size,
			ContentHash:      req.ContentHash,
			Nonce:            req.Nonce,
			AccessSecretID:   accessID,
			DeletionSecretID: deletionID,
			DownloadLimit:    req.DownloadLimit,
			ExpireDate:       expireDate,
		}
		return store.InsertPendingUpload(tx, row)
	})
	if err != nil {
		s.metrics.IncRejected(core.KindOf(err).String())
		return "", err
	}
	s.metrics.IncAnnounced()
	return key, nil
}

// StreamResult reports the outcome of a completed Stream call.
type StreamResult struct {
	BytesWritten int64
}

// Stream consumes the reservation made by Announce and copies body to
// the storage path under a ceiling of the declared size. On overflow
// or any ingest I/O error, the committed Upload row is soft-deleted
// and the partial file unlinked before the error is returned.
func (s *Service) Stream(ctx context.Context, key string, body io.Reader) (StreamResult, error) {
	var (
		uploadID uint
		path     string
		size     int64
	)

	err := s.store.Transaction(ctx, func(tx *gorm.DB) error {
		pending, err := store.FindPendingUploadByKey(tx, key)
		if err != nil {
			return err
		}

		fits, err := store.TryReserve(tx, s.config.MaxCombinedBytes, pending.DeclaredSize)
		if err != nil {
			return err
		}
		if !fits {
			return core.OutOfSpace("no room under max_combined_upload_bytes")
		}

		if err := store.DeletePendingUpload(tx, pending.ID); err != nil {
			return core.Internal(err)
		}

		if s.now().Sub(pending.CreatedAt) > time.Duration(s.config.TimeoutSecs)*time.Second {
			return core.BadRequest("upload request came too late")
		}

		path = s.pathFor(key)
		row := &store.Upload{
			Key:              key,
			ContentHash:      pending.ContentHash,
			Size:             pending.DeclaredSize,
			FileNameToken:    pending.FileNameToken,
			StoragePath:      path,
			Nonce:            pending.Nonce,
			AccessSecretID:   pending.AccessSecretID,
			DeletionSecretID: pending.DeletionSecretID,
			DownloadLimit:    pending.DownloadLimit,
			ExpireDate:       pending.ExpireDate,
		}
		if err := store.InsertUpload(tx, row); err != nil {
			return err
		}
		uploadID = row.ID
		size = pending.DeclaredSize
		return nil
	})
	if err != nil {
		s.metrics.IncRejected(core.KindOf(err).String())
		return StreamResult{}, err
	}

	result, ingestErr := ingest.Copy(body, path, size)
	if ingestErr != nil {
		s.rollbackStream(ctx, uploadID, path, size)
		s.metrics.IncRejected(core.KindOf(ingestErr).String())
		return StreamResult{}, ingestErr
	}

	s.metrics.IncCompleted()
	return StreamResult{BytesWritten: result.BytesWritten}, nil
}

// rollbackStream soft-deletes the Upload and unlinks its file after a
// failed ingest. Unlink failures are logged, not propagated: the
// Reaper's filesystem reconciliation is the backstop.
func (s *Service) rollbackStream(ctx context.Context, uploadID uint, path string, size int64) {
	err := s.store.Transaction(ctx, func(tx *gorm.DB) error {
		if err := store.SoftDeleteUpload(tx, uploadID); err != nil {
			return err
		}
		return store.DecStatus(tx, size)
	})
	if err != nil {
		logger.Error("failed to roll back upload after ingest failure", "upload_id", uploadID, "error", err)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to unlink partial upload file", "path", path, "error", err)
	}
}

// Delete soft-deletes an Upload after verifying its deletion secret.
func (s *Service) Delete(ctx context.Context, key string, deletionPassword []byte) error {
	var path string
	var size int64

	err := s.store.Transaction(ctx, func(tx *gorm.DB) error {
		row, err := store.FindUploadByKey(tx, key)
		if err != nil {
			return err
		}
		if row.DeletionSecretID == nil {
			return core.BadRequest("cannot delete: no deletion secret registered")
		}
		deletionSecret, err := store.FindSecret(tx, *row.DeletionSecretID)
		if err != nil {
			return err
		}
		if err := secret.Verify(&secret.Secret{Salt: deletionSecret.Salt, Hash: deletionSecret.Hash}, deletionPassword); err != nil {
			return err
		}
		if err := store.SoftDeleteUpload(tx, row.ID); err != nil {
			return err
		}
		if err := store.DecStatus(tx, row.Size); err != nil {
			return err
		}
		path = row.StoragePath
		size = row.Size
		return nil
	})
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to unlink deleted upload file", "path", path, "size", size, "error", err)
	}
	return nil
}

func (s *Service) pathFor(key string) string {
	return filepath.Join(s.config.Dir, key)
}
