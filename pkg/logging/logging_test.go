package logging

import (
	"bytes"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelWarn},
		{"", slog.LevelWarn},
	}
	for _, tc := range cases {
		got, err := ParseLevel(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}
}

func TestSimpleTextHandlerFormatsLevelAndMessage(t *testing.T) {
	var buf bytes.Buffer
	h := &simpleTextHandler{
		handler: slog.NewTextHandler(&buf, nil),
		writer:  &buf,
	}
	logger := slog.New(h)
	logger.Info("job claimed", "job_id", "abc123")

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "INFO job claimed"))
	assert.Contains(t, out, "job_id=abc123")
}

func TestFilteringHandlerSuppressesThirdPartyAboveDebug(t *testing.T) {
	var buf bytes.Buffer
	base := slog.NewTextHandler(&buf, nil)
	fh := &filteringHandler{handler: base, minLevel: slog.LevelInfo}

	rec := slog.Record{Level: slog.LevelInfo, Message: "vendor noise", PC: 0}
	err := fh.Handle(nil, rec)
	require.NoError(t, err)
	assert.Empty(t, buf.String())
}

func TestGetInitializesDefaultLogger(t *testing.T) {
	defaultLogger = nil
	logger := Get()
	assert.NotNil(t, logger)
	assert.Same(t, logger, Get())
}

func TestOpenLogFileCreatesAppendableFile(t *testing.T) {
	path := t.TempDir() + "/corpus.log"
	file, cleanup, err := OpenLogFile(path)
	require.NoError(t, err)
	defer cleanup()

	_, err = file.WriteString("hello\n")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))
}
