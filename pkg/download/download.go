// Package download implements the download state machine:
// init -> body -> confirm.
package download

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/marmos91/transferd/pkg/core"
	"github.com/marmos91/transferd/pkg/secret"
	"github.com/marmos91/transferd/pkg/store"
)

// Service is the Download State Machine: init, body, confirm, bound to
// a Metadata Store.
type Service struct {
	store *store.Store
	now   func() time.Time
}

// New builds a Service over store.
func New(s *store.Store) *Service {
	return &Service{store: s, now: time.Now}
}

// InitResult is the `POST /api/download/init` response shape.
type InitResult struct {
	Nonce      []byte
	Size       int64
	ContentKey string
	ConfirmKey string
}

// Init verifies access to upload key and issues a fresh content/confirm
// handshake pair. Each PendingDownload row is single-use.
func (s *Service) Init(ctx context.Context, key string, accessPassword []byte) (InitResult, error) {
	var result InitResult

	err := s.store.Transaction(ctx, func(tx *gorm.DB) error {
		row, err := store.FindUploadByKey(tx, key)
		if err != nil {
			return err
		}

		accessSecret, err := store.FindSecret(tx, row.AccessSecretID)
		if err != nil {
			return err
		}
		if err := secret.Verify(&secret.Secret{Salt: accessSecret.Salt, Hash: accessSecret.Hash}, accessPassword); err != nil {
			return err
		}

		if row.DownloadLimit != nil {
			count, err := store.CountDownloads(tx, row.ID)
			if err != nil {
				return err
			}
			if count >= int64(*row.DownloadLimit) {
				return core.DoesNotExist("upload not found")
			}
		}
		if !s.now().Before(row.ExpireDate) {
			return core.DoesNotExist("upload not found")
		}

		contentKey := uuid.New().String()
		confirmKey := uuid.New().String()
		if err := store.InsertPendingDownloadPair(tx, row.ID, contentKey, confirmKey); err != nil {
			return err
		}

		result = InitResult{
			Nonce:      row.Nonce,
			Size:       row.Size,
			ContentKey: contentKey,
			ConfirmKey: confirmKey,
		}
		return nil
	})
	if err != nil {
		return InitResult{}, err
	}
	return result, nil
}

// BodyResult carries the open file the caller must stream to the
// response and close afterward.
type BodyResult struct {
	File          *os.File
	Size          int64
	FileNameToken []byte
}

// Body consumes the content PendingDownload, re-verifies access
// (defense in depth: a content key alone is not enough), records the
// Download, and opens the file for streaming.
func (s *Service) Body(ctx context.Context, contentKey string, accessPassword []byte) (BodyResult, error) {
	var path string
	var result BodyResult

	err := s.store.Transaction(ctx, func(tx *gorm.DB) error {
		pending, err := store.FindPendingDownloadByKey(tx, contentKey, store.UsageContent)
		if err != nil {
			return err
		}

		upload, err := store.FindUploadByID(tx, pending.UploadID)
		if err != nil {
			return err
		}

		accessSecret, err := store.FindSecret(tx, upload.AccessSecretID)
		if err != nil {
			return err
		}
		if err := secret.Verify(&secret.Secret{Salt: accessSecret.Salt, Hash: accessSecret.Hash}, accessPassword); err != nil {
			return err
		}

		if !s.now().Before(upload.ExpireDate) {
			return core.DoesNotExist("upload not found")
		}
		if upload.DownloadLimit != nil {
			count, err := store.CountDownloads(tx, upload.ID)
			if err != nil {
				return err
			}
			if count >= int64(*upload.DownloadLimit) {
				return core.DoesNotExist("upload not found")
			}
		}

		if err := store.InsertDownload(tx, upload.ID); err != nil {
			return err
		}
		if err := store.DeletePendingDownload(tx, pending.ID); err != nil {
			return core.Internal(err)
		}

		path = upload.StoragePath
		result.Size = upload.Size
		result.FileNameToken = upload.FileNameToken
		return nil
	})
	if err != nil {
		return BodyResult{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return BodyResult{}, core.Internal(err)
	}
	result.File = f
	return result, nil
}

// Confirm consumes the confirm PendingDownload and compares the
// client-supplied hash of the decrypted content, in constant time,
// against the Upload's stored content hash.
func (s *Service) Confirm(ctx context.Context, confirmKey string, plaintextHash []byte) ([]byte, error) {
	var fileNameToken []byte

	err := s.store.Transaction(ctx, func(tx *gorm.DB) error {
		pending, err := store.FindPendingDownloadByKey(tx, confirmKey, store.UsageConfirm)
		if err != nil {
			return err
		}

		upload, err := store.FindUploadByID(tx, pending.UploadID)
		if err != nil {
			return err
		}

		if !core.ConstantTimeEqual(upload.ContentHash, plaintextHash) {
			return core.InvalidAuth("content hash mismatch")
		}

		if err := store.DeletePendingDownload(tx, pending.ID); err != nil {
			return core.Internal(err)
		}

		fileNameToken = upload.FileNameToken
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fileNameToken, nil
}
