package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/marmos91/transferd/pkg/core"
)

// Transaction runs fn inside a single database transaction, committing
// on nil return and rolling back otherwise. Every multi-row write used
// by the upload and download state machines goes through this so the
// accounting and the row mutations it guards commit atomically.
func (s *Store) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(fn)
}

// notFound converts gorm's not-found sentinel into a DoesNotExist core
// error carrying the given message; any other error is wrapped as
// Internal.
func notFound(err error, message string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return core.DoesNotExist(message)
	}
	return core.Internal(err)
}

// InsertSecret persists a new Secret row and returns its id.
func InsertSecret(tx *gorm.DB, salt, hash []byte) (uint, error) {
	row := Secret{Salt: salt, Hash: hash}
	if err := tx.Create(&row).Error; err != nil {
		return 0, core.Internal(err)
	}
	return row.ID, nil
}

// FindSecret loads a Secret by id.
func FindSecret(tx *gorm.DB, id uint) (*Secret, error) {
	var row Secret
	if err := tx.First(&row, id).Error; err != nil {
		return nil, notFound(err, "secret not found")
	}
	return &row, nil
}

// CanFit reports whether n more bytes fit under the configured cap, as
// of the current transaction's view. Announce uses it as an early
// check only; enforcement happens in TryReserve, whose
// conditional UPDATE is what actually closes the race between two
// concurrent reservations.
func CanFit(tx *gorm.DB, maxCombinedBytes, n int64) (bool, error) {
	var status Status
	if err := tx.First(&status, StatusSingletonID).Error; err != nil {
		return false, core.Internal(err)
	}
	return status.TotalBytes+n < maxCombinedBytes, nil
}

// TryReserve atomically checks the cap and, if n bytes still fit,
// increments the singleton counter in the same statement. Expressing
// the check and the increment as one conditional UPDATE (rather than
// a SELECT followed by an UPDATE) is what makes two concurrent
// reservations unable to both pass: whichever transaction's UPDATE
// commits first changes total_bytes out from under the other's WHERE
// clause. Returns false, nil when the cap would be exceeded.
func TryReserve(tx *gorm.DB, maxCombinedBytes, n int64) (bool, error) {
	result := tx.Model(&Status{}).
		Where("id = ? AND total_bytes + ? < ?", StatusSingletonID, n, maxCombinedBytes).
		Updates(map[string]any{
			"total_bytes":  gorm.Expr("total_bytes + ?", n),
			"upload_count": gorm.Expr("upload_count + ?", 1),
		})
	if result.Error != nil {
		return false, core.Internal(result.Error)
	}
	return result.RowsAffected == 1, nil
}

// DecStatus subtracts n bytes and one upload from the singleton
// counter, used on delete, expiration, and overflow rollback.
func DecStatus(tx *gorm.DB, n int64) error {
	return tx.Model(&Status{}).Where("id = ?", StatusSingletonID).
		Updates(map[string]any{
			"total_bytes":  gorm.Expr("total_bytes - ?", n),
			"upload_count": gorm.Expr("upload_count - ?", 1),
		}).Error
}

// GetStatus loads the singleton Resource Accountant row.
func GetStatus(tx *gorm.DB) (*Status, error) {
	var row Status
	if err := tx.First(&row, StatusSingletonID).Error; err != nil {
		return nil, core.Internal(err)
	}
	return &row, nil
}

// InsertPendingUpload persists a new reservation row.
func InsertPendingUpload(tx *gorm.DB, row *PendingUpload) error {
	if err := tx.Create(row).Error; err != nil {
		return core.Internal(err)
	}
	return nil
}

// FindPendingUploadByKey loads a PendingUpload by its UUID key.
func FindPendingUploadByKey(tx *gorm.DB, key string) (*PendingUpload, error) {
	var row PendingUpload
	if err := tx.Where("key = ?", key).First(&row).Error; err != nil {
		return nil, notFound(err, "upload not found")
	}
	return &row, nil
}

// DeletePendingUpload removes a reservation row, used once stream
// takes over or the Reaper ages it out.
func DeletePendingUpload(tx *gorm.DB, id uint) error {
	return tx.Delete(&PendingUpload{}, id).Error
}

// SelectOutdatedPendingUploads returns reservations older than
// timeout, for the Reaper's sweep.
func SelectOutdatedPendingUploads(tx *gorm.DB, timeout time.Duration, now time.Time) ([]PendingUpload, error) {
	var rows []PendingUpload
	cutoff := now.Add(-timeout)
	if err := tx.Where("created_at <= ?", cutoff).Find(&rows).Error; err != nil {
		return nil, core.Internal(err)
	}
	return rows, nil
}

// InsertUpload persists a newly committed Upload row.
func InsertUpload(tx *gorm.DB, row *Upload) error {
	if err := tx.Create(row).Error; err != nil {
		return core.Internal(err)
	}
	return nil
}

// FindUploadByKey loads a non-deleted Upload by its UUID key.
func FindUploadByKey(tx *gorm.DB, key string) (*Upload, error) {
	var row Upload
	if err := tx.Where("key = ? AND deleted = ?", key, false).First(&row).Error; err != nil {
		return nil, notFound(err, "upload not found")
	}
	return &row, nil
}

// SoftDeleteUpload flips the deleted flag on an Upload.
func SoftDeleteUpload(tx *gorm.DB, id uint) error {
	return tx.Model(&Upload{}).Where("id = ?", id).Update("deleted", true).Error
}

// SelectOutdatedUploads returns non-deleted Uploads whose expiration
// has passed, or whose completed-download count has reached their
// optional per-upload limit, for the Reaper's sweep.
func SelectOutdatedUploads(tx *gorm.DB, now time.Time) ([]Upload, error) {
	var expired []Upload
	if err := tx.Where("deleted = ? AND expire_date <= ?", false, now).Find(&expired).Error; err != nil {
		return nil, core.Internal(err)
	}

	var limited []Upload
	if err := tx.Where("deleted = ? AND download_limit IS NOT NULL AND expire_date > ?", false, now).Find(&limited).Error; err != nil {
		return nil, core.Internal(err)
	}
	for _, u := range limited {
		count, err := CountDownloads(tx, u.ID)
		if err != nil {
			return nil, err
		}
		if count >= int64(*u.DownloadLimit) {
			expired = append(expired, u)
		}
	}
	return expired, nil
}

// CountDownloads returns the number of completed Download rows for an
// Upload, the value the per-upload limit is compared against.
func CountDownloads(tx *gorm.DB, uploadID uint) (int64, error) {
	var count int64
	if err := tx.Model(&Download{}).Where("upload_id = ?", uploadID).Count(&count).Error; err != nil {
		return 0, core.Internal(err)
	}
	return count, nil
}

// InsertPendingDownloadPair creates the content and confirm handshake
// rows for a download init call under the caller-supplied keys.
func InsertPendingDownloadPair(tx *gorm.DB, uploadID uint, contentKey, confirmKey string) error {
	rows := []PendingDownload{
		{Key: contentKey, Usage: UsageContent, UploadID: uploadID},
		{Key: confirmKey, Usage: UsageConfirm, UploadID: uploadID},
	}
	if err := tx.Create(&rows).Error; err != nil {
		return core.Internal(err)
	}
	return nil
}

// FindPendingDownloadByKey loads a single-use handshake row of the
// given usage. Its UploadID field is enough to look up the Upload it
// targets; callers needing the Upload's current (possibly soft-deleted)
// state should use FindUploadByID rather than relying on a stale
// association.
func FindPendingDownloadByKey(tx *gorm.DB, key string, usage DownloadUsage) (*PendingDownload, error) {
	var row PendingDownload
	err := tx.Where("key = ? AND usage = ?", key, usage).First(&row).Error
	if err != nil {
		return nil, notFound(err, "download not found")
	}
	return &row, nil
}

// FindUploadByID loads a non-deleted Upload by its primary key.
func FindUploadByID(tx *gorm.DB, id uint) (*Upload, error) {
	var row Upload
	if err := tx.Where("id = ? AND deleted = ?", id, false).First(&row).Error; err != nil {
		return nil, notFound(err, "upload not found")
	}
	return &row, nil
}

// DeletePendingDownload removes a handshake row once it is consumed.
func DeletePendingDownload(tx *gorm.DB, id uint) error {
	return tx.Delete(&PendingDownload{}, id).Error
}

// ClearOutdatedPendingDownloads deletes handshake rows older than
// timeout, for the Reaper's sweep.
func ClearOutdatedPendingDownloads(tx *gorm.DB, timeout time.Duration, now time.Time) (int64, error) {
	cutoff := now.Add(-timeout)
	result := tx.Where("created_at <= ?", cutoff).Delete(&PendingDownload{})
	if result.Error != nil {
		return 0, core.Internal(result.Error)
	}
	return result.RowsAffected, nil
}

// InsertDownload records a body transfer start, incrementing the
// visible download count for its Upload.
func InsertDownload(tx *gorm.DB, uploadID uint) error {
	row := Download{UploadID: uploadID}
	if err := tx.Create(&row).Error; err != nil {
		return core.Internal(err)
	}
	return nil
}
