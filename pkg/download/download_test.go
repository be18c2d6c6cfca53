package download

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/transferd/pkg/core"
	"github.com/marmos91/transferd/pkg/store"
	"github.com/marmos91/transferd/pkg/upload"
)

const accessPassword = "access"

// fixture creates an upload with the given content and optional
// download limit, returning its key and the download service.
func fixture(t *testing.T, content []byte, downloadLimit *int) (*Service, string) {
	t.Helper()
	s, err := store.New(&store.Config{
		Type:   store.DatabaseTypeSQLite,
		SQLite: store.SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	uploadSvc, err := upload.New(s, upload.Config{
		Dir:                 t.TempDir(),
		LimitBytes:          1024,
		MaxCombinedBytes:    4096,
		TimeoutSecs:         30,
		LifespanSecsDefault: 3600,
	}, nil)
	require.NoError(t, err)

	ctx := context.Background()
	key, err := uploadSvc.Announce(ctx, upload.AnnounceRequest{
		Nonce:          []byte{0x0a, 0x0b},
		FileNameToken:  []byte("file-name-token"),
		Size:           int64(len(content)),
		ContentHash:    []byte{0xde, 0xad, 0xbe, 0xef},
		AccessPassword: []byte(accessPassword),
		DownloadLimit:  downloadLimit,
	})
	require.NoError(t, err)
	_, err = uploadSvc.Stream(ctx, key, bytes.NewReader(content))
	require.NoError(t, err)

	return New(s), key
}

func TestInitRejectsWrongPassword(t *testing.T) {
	svc, key := fixture(t, []byte("hello"), nil)

	_, err := svc.Init(context.Background(), key, []byte("beta"))
	require.Error(t, err)
	assert.Equal(t, core.KindInvalidAuth, core.KindOf(err))
}

func TestInitUnknownKey(t *testing.T) {
	svc, _ := fixture(t, []byte("hello"), nil)

	_, err := svc.Init(context.Background(), "no-such-key", []byte(accessPassword))
	require.Error(t, err)
	assert.Equal(t, core.KindDoesNotExist, core.KindOf(err))
}

func TestRoundTrip(t *testing.T) {
	content := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	svc, key := fixture(t, content, nil)
	ctx := context.Background()

	init, err := svc.Init(ctx, key, []byte(accessPassword))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x0a, 0x0b}, init.Nonce)
	assert.Equal(t, int64(len(content)), init.Size)
	assert.NotEqual(t, init.ContentKey, init.ConfirmKey)

	body, err := svc.Body(ctx, init.ContentKey, []byte(accessPassword))
	require.NoError(t, err)
	defer body.File.Close()

	streamed, err := io.ReadAll(body.File)
	require.NoError(t, err)
	assert.Equal(t, content, streamed)

	token, err := svc.Confirm(ctx, init.ConfirmKey, []byte{0xde, 0xad, 0xbe, 0xef})
	require.NoError(t, err)
	assert.Equal(t, []byte("file-name-token"), token)
}

func TestBodyKeyIsSingleUse(t *testing.T) {
	svc, key := fixture(t, []byte("hello"), nil)
	ctx := context.Background()

	init, err := svc.Init(ctx, key, []byte(accessPassword))
	require.NoError(t, err)

	body, err := svc.Body(ctx, init.ContentKey, []byte(accessPassword))
	require.NoError(t, err)
	body.File.Close()

	_, err = svc.Body(ctx, init.ContentKey, []byte(accessPassword))
	require.Error(t, err)
	assert.Equal(t, core.KindDoesNotExist, core.KindOf(err))
}

func TestBodyReVerifiesPassword(t *testing.T) {
	svc, key := fixture(t, []byte("hello"), nil)
	ctx := context.Background()

	init, err := svc.Init(ctx, key, []byte(accessPassword))
	require.NoError(t, err)

	// An attacker holding only the content key must still prove access.
	_, err = svc.Body(ctx, init.ContentKey, []byte("stolen-key-no-password"))
	require.Error(t, err)
	assert.Equal(t, core.KindInvalidAuth, core.KindOf(err))
}

func TestDownloadLimitExhaustion(t *testing.T) {
	limit := 1
	svc, key := fixture(t, []byte("hello"), &limit)
	ctx := context.Background()

	init, err := svc.Init(ctx, key, []byte(accessPassword))
	require.NoError(t, err)
	body, err := svc.Body(ctx, init.ContentKey, []byte(accessPassword))
	require.NoError(t, err)
	body.File.Close()

	_, err = svc.Init(ctx, key, []byte(accessPassword))
	require.Error(t, err)
	assert.Equal(t, core.KindDoesNotExist, core.KindOf(err))
}

func TestInitRejectsExpiredUpload(t *testing.T) {
	svc, key := fixture(t, []byte("hello"), nil)
	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	_, err := svc.Init(context.Background(), key, []byte(accessPassword))
	require.Error(t, err)
	assert.Equal(t, core.KindDoesNotExist, core.KindOf(err))
}

func TestConfirmRejectsWrongHash(t *testing.T) {
	svc, key := fixture(t, []byte("hello"), nil)
	ctx := context.Background()

	init, err := svc.Init(ctx, key, []byte(accessPassword))
	require.NoError(t, err)

	_, err = svc.Confirm(ctx, init.ConfirmKey, []byte{0x00, 0x00, 0x00, 0x00})
	require.Error(t, err)
	assert.Equal(t, core.KindInvalidAuth, core.KindOf(err))
}

func TestConfirmKeyIsSingleUse(t *testing.T) {
	svc, key := fixture(t, []byte("hello"), nil)
	ctx := context.Background()

	init, err := svc.Init(ctx, key, []byte(accessPassword))
	require.NoError(t, err)

	_, err = svc.Confirm(ctx, init.ConfirmKey, []byte{0xde, 0xad, 0xbe, 0xef})
	require.NoError(t, err)

	_, err = svc.Confirm(ctx, init.ConfirmKey, []byte{0xde, 0xad, 0xbe, 0xef})
	require.Error(t, err)
	assert.Equal(t, core.KindDoesNotExist, core.KindOf(err))
}

func TestContentKeyUnusableForConfirm(t *testing.T) {
	svc, key := fixture(t, []byte("hello"), nil)
	ctx := context.Background()

	init, err := svc.Init(ctx, key, []byte(accessPassword))
	require.NoError(t, err)

	_, err = svc.Confirm(ctx, init.ContentKey, []byte{0xde, 0xad, 0xbe, 0xef})
	require.Error(t, err)
	assert.Equal(t, core.KindDoesNotExist, core.KindOf(err))
}
