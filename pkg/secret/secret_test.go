package secret

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/transferd/pkg/core"
)

func TestCreateAndVerifyRoundTrip(t *testing.T) {
	s, err := Create([]byte("correct horse battery staple"))
	require.NoError(t, err)
	assert.Len(t, s.Salt, SaltSize)

	assert.NoError(t, Verify(s, []byte("correct horse battery staple")))
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	s, err := Create([]byte("correct horse battery staple"))
	require.NoError(t, err)

	err = Verify(s, []byte("wrong password"))
	require.Error(t, err)
	assert.Equal(t, core.KindInvalidAuth, core.KindOf(err))
}

func TestCreateRejectsEmptyInput(t *testing.T) {
	_, err := Create(nil)
	require.Error(t, err)
	assert.Equal(t, core.KindInvalidAuth, core.KindOf(err))
}

func TestVerifyRejectsMalformedSalt(t *testing.T) {
	s := &Secret{Salt: []byte("too-short"), Hash: []byte("anything")}
	err := Verify(s, []byte("candidate"))
	require.Error(t, err)
	assert.Equal(t, core.KindInvalidAuth, core.KindOf(err))
}

func TestTwoSecretsFromSamePasswordDiffer(t *testing.T) {
	a, err := Create([]byte("shared password"))
	require.NoError(t, err)
	b, err := Create([]byte("shared password"))
	require.NoError(t, err)

	assert.NotEqual(t, a.Salt, b.Salt)
	assert.NotEqual(t, a.Hash, b.Hash)
	assert.NoError(t, Verify(a, []byte("shared password")))
	assert.NoError(t, Verify(b, []byte("shared password")))
}

func TestLongInputBeyondBcryptLimit(t *testing.T) {
	long := make([]byte, 500)
	for i := range long {
		long[i] = byte('a' + i%26)
	}
	s, err := Create(long)
	require.NoError(t, err)
	assert.NoError(t, Verify(s, long))
}
