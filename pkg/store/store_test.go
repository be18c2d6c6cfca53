package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/marmos91/transferd/pkg/core"
)

// newTestStore creates a file-backed SQLite store in a temp directory.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(&Config{
		Type:   DatabaseTypeSQLite,
		SQLite: SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// insertTestUpload creates a minimal committed Upload and returns it.
func insertTestUpload(t *testing.T, s *Store, key string, size int64, expire time.Time) *Upload {
	t.Helper()
	row := &Upload{
		Key:           key,
		ContentHash:   []byte{0x01},
		Size:          size,
		FileNameToken: []byte("name-token"),
		StoragePath:   "/tmp/" + key,
		Nonce:         []byte{0x02},
		ExpireDate:    expire,
	}
	require.NoError(t, s.Transaction(context.Background(), func(tx *gorm.DB) error {
		secretID, err := InsertSecret(tx, []byte("salt-salt-salt-1"), []byte("hash"))
		if err != nil {
			return err
		}
		row.AccessSecretID = secretID
		return InsertUpload(tx, row)
	}))
	return row
}

func TestStatusRowSeededOnFirstStart(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Transaction(context.Background(), func(tx *gorm.DB) error {
		status, err := GetStatus(tx)
		require.NoError(t, err)
		assert.Equal(t, int64(0), status.TotalBytes)
		assert.Equal(t, int64(0), status.UploadCount)
		return nil
	}))
}

func TestValidateRejectsUnknownType(t *testing.T) {
	cfg := &Config{Type: "invalid"}
	_, err := New(cfg)
	require.Error(t, err)
}

func TestTryReserveEnforcesCap(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Transaction(ctx, func(tx *gorm.DB) error {
		ok, err := TryReserve(tx, 100, 60)
		require.NoError(t, err)
		assert.True(t, ok)

		// 60 + 60 >= 100: second reservation must fail.
		ok, err = TryReserve(tx, 100, 60)
		require.NoError(t, err)
		assert.False(t, ok)

		// But 60 + 39 < 100 still fits.
		ok, err = TryReserve(tx, 100, 39)
		require.NoError(t, err)
		assert.True(t, ok)

		status, err := GetStatus(tx)
		require.NoError(t, err)
		assert.Equal(t, int64(99), status.TotalBytes)
		assert.Equal(t, int64(2), status.UploadCount)
		return nil
	}))
}

func TestDecStatusReversesReserve(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Transaction(ctx, func(tx *gorm.DB) error {
		ok, err := TryReserve(tx, 1000, 500)
		require.NoError(t, err)
		require.True(t, ok)
		return DecStatus(tx, 500)
	}))

	require.NoError(t, s.Transaction(ctx, func(tx *gorm.DB) error {
		status, err := GetStatus(tx)
		require.NoError(t, err)
		assert.Equal(t, int64(0), status.TotalBytes)
		assert.Equal(t, int64(0), status.UploadCount)
		return nil
	}))
}

func TestCanFitIsStrict(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Transaction(context.Background(), func(tx *gorm.DB) error {
		ok, err := CanFit(tx, 100, 99)
		require.NoError(t, err)
		assert.True(t, ok)

		// total + n == cap is full: the contract is strictly less-than.
		ok, err = CanFit(tx, 100, 100)
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	}))
}

func TestPendingUploadLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := uuid.New().String()

	require.NoError(t, s.Transaction(ctx, func(tx *gorm.DB) error {
		secretID, err := InsertSecret(tx, []byte("salt-salt-salt-1"), []byte("hash"))
		require.NoError(t, err)

		return InsertPendingUpload(tx, &PendingUpload{
			Key:            key,
			FileNameToken:  []byte("token"),
			DeclaredSize:   42,
			ContentHash:    []byte{0xaa},
			Nonce:          []byte{0xbb},
			AccessSecretID: secretID,
			ExpireDate:     time.Now().Add(time.Hour),
		})
	}))

	require.NoError(t, s.Transaction(ctx, func(tx *gorm.DB) error {
		row, err := FindPendingUploadByKey(tx, key)
		require.NoError(t, err)
		assert.Equal(t, int64(42), row.DeclaredSize)
		return DeletePendingUpload(tx, row.ID)
	}))

	err := s.Transaction(ctx, func(tx *gorm.DB) error {
		_, err := FindPendingUploadByKey(tx, key)
		return err
	})
	assert.Equal(t, core.KindDoesNotExist, core.KindOf(err))
}

func TestFindPendingUploadUnknownKey(t *testing.T) {
	s := newTestStore(t)

	err := s.Transaction(context.Background(), func(tx *gorm.DB) error {
		_, err := FindPendingUploadByKey(tx, uuid.New().String())
		return err
	})
	assert.Equal(t, core.KindDoesNotExist, core.KindOf(err))
}

func TestSoftDeletedUploadInvisibleToLookups(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := uuid.New().String()
	row := insertTestUpload(t, s, key, 10, time.Now().Add(time.Hour))

	require.NoError(t, s.Transaction(ctx, func(tx *gorm.DB) error {
		found, err := FindUploadByKey(tx, key)
		require.NoError(t, err)
		assert.Equal(t, row.ID, found.ID)
		return SoftDeleteUpload(tx, row.ID)
	}))

	err := s.Transaction(ctx, func(tx *gorm.DB) error {
		_, err := FindUploadByKey(tx, key)
		return err
	})
	assert.Equal(t, core.KindDoesNotExist, core.KindOf(err))

	err = s.Transaction(ctx, func(tx *gorm.DB) error {
		_, err := FindUploadByID(tx, row.ID)
		return err
	})
	assert.Equal(t, core.KindDoesNotExist, core.KindOf(err))
}

func TestPendingDownloadPairSingleUse(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	row := insertTestUpload(t, s, uuid.New().String(), 10, time.Now().Add(time.Hour))

	contentKey := uuid.New().String()
	confirmKey := uuid.New().String()
	require.NoError(t, s.Transaction(ctx, func(tx *gorm.DB) error {
		return InsertPendingDownloadPair(tx, row.ID, contentKey, confirmKey)
	}))

	// Keys are usage-scoped: a confirm key is invisible to a content lookup.
	err := s.Transaction(ctx, func(tx *gorm.DB) error {
		_, err := FindPendingDownloadByKey(tx, confirmKey, UsageContent)
		return err
	})
	assert.Equal(t, core.KindDoesNotExist, core.KindOf(err))

	require.NoError(t, s.Transaction(ctx, func(tx *gorm.DB) error {
		pending, err := FindPendingDownloadByKey(tx, contentKey, UsageContent)
		require.NoError(t, err)
		assert.Equal(t, row.ID, pending.UploadID)
		return DeletePendingDownload(tx, pending.ID)
	}))

	err = s.Transaction(ctx, func(tx *gorm.DB) error {
		_, err := FindPendingDownloadByKey(tx, contentKey, UsageContent)
		return err
	})
	assert.Equal(t, core.KindDoesNotExist, core.KindOf(err))
}

func TestCountDownloads(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	row := insertTestUpload(t, s, uuid.New().String(), 10, time.Now().Add(time.Hour))

	require.NoError(t, s.Transaction(ctx, func(tx *gorm.DB) error {
		count, err := CountDownloads(tx, row.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), count)

		require.NoError(t, InsertDownload(tx, row.ID))
		require.NoError(t, InsertDownload(tx, row.ID))

		count, err = CountDownloads(tx, row.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
		return nil
	}))
}

func TestSelectOutdatedUploads(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	expired := insertTestUpload(t, s, uuid.New().String(), 10, now.Add(-time.Minute))
	live := insertTestUpload(t, s, uuid.New().String(), 10, now.Add(time.Hour))

	limit := 1
	limited := insertTestUpload(t, s, uuid.New().String(), 10, now.Add(time.Hour))
	require.NoError(t, s.Transaction(ctx, func(tx *gorm.DB) error {
		require.NoError(t, tx.Model(&Upload{}).Where("id = ?", limited.ID).Update("download_limit", limit).Error)
		return InsertDownload(tx, limited.ID)
	}))

	require.NoError(t, s.Transaction(ctx, func(tx *gorm.DB) error {
		rows, err := SelectOutdatedUploads(tx, now)
		require.NoError(t, err)

		ids := make(map[uint]bool)
		for _, r := range rows {
			ids[r.ID] = true
		}
		assert.True(t, ids[expired.ID], "expired upload must be selected")
		assert.True(t, ids[limited.ID], "over-limit upload must be selected")
		assert.False(t, ids[live.ID], "live upload must not be selected")
		return nil
	}))
}

func TestClearOutdatedPendingDownloads(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	row := insertTestUpload(t, s, uuid.New().String(), 10, time.Now().Add(time.Hour))

	require.NoError(t, s.Transaction(ctx, func(tx *gorm.DB) error {
		return InsertPendingDownloadPair(tx, row.ID, uuid.New().String(), uuid.New().String())
	}))

	// A zero timeout makes every existing row outdated.
	var cleared int64
	require.NoError(t, s.Transaction(ctx, func(tx *gorm.DB) error {
		n, err := ClearOutdatedPendingDownloads(tx, 0, time.Now().Add(time.Second))
		cleared = n
		return err
	}))
	assert.Equal(t, int64(2), cleared)
}

func TestSelectOutdatedPendingUploads(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := uuid.New().String()

	require.NoError(t, s.Transaction(ctx, func(tx *gorm.DB) error {
		secretID, err := InsertSecret(tx, []byte("salt-salt-salt-1"), []byte("hash"))
		require.NoError(t, err)
		return InsertPendingUpload(tx, &PendingUpload{
			Key:            key,
			FileNameToken:  []byte("token"),
			DeclaredSize:   1,
			ContentHash:    []byte{0x01},
			Nonce:          []byte{0x02},
			AccessSecretID: secretID,
			ExpireDate:     time.Now().Add(time.Hour),
		})
	}))

	require.NoError(t, s.Transaction(ctx, func(tx *gorm.DB) error {
		rows, err := SelectOutdatedPendingUploads(tx, 0, time.Now().Add(time.Second))
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, key, rows[0].Key)

		rows, err = SelectOutdatedPendingUploads(tx, time.Hour, time.Now())
		require.NoError(t, err)
		assert.Empty(t, rows)
		return nil
	}))
}
