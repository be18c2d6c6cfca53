package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "WARN", "json", false)

	Debug("should not appear")
	Info("should not appear either")
	Warn("visible warning")

	out := buf.String()
	assert.NotContains(t, out, "should not appear")
	assert.Contains(t, out, "visible warning")
}

func TestJSONFormatIncludesFields(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "DEBUG", "json", false)

	Info("upload stored", KeyKey, "abc123", KeySize, 10)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "upload stored", decoded["msg"])
	assert.Equal(t, "abc123", decoded[KeyKey])
}

func TestCtxInjectsRequestFields(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "DEBUG", "json", false)

	lc := NewLogContext("127.0.0.1").WithRoute("upload.announce").WithKey("deadbeef")
	ctx := WithContext(context.Background(), lc)

	InfoCtx(ctx, "announce accepted")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "upload.announce", decoded[KeyRoute])
	assert.Equal(t, "deadbeef", decoded[KeyKey])
	assert.Equal(t, "127.0.0.1", decoded[KeyClientIP])
}

func TestTextFormatNoColorWhenDisabled(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text", false)

	Info("plain line")

	assert.False(t, strings.Contains(buf.String(), "\033["))
	assert.Contains(t, buf.String(), "plain line")
}
