package apperror

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"validation never retried", New(Validation, "bad input"), false},
		{"not_found never retried", New(NotFound, "missing"), false},
		{"business_rule never retried", New(BusinessRule, "duplicate job"), false},
		{"unsupported_file_type never retried", New(UnsupportedFileType, "bad ext"), false},
		{"file_too_large never retried", New(FileTooLarge, "too big"), false},
		{"external_service is retryable", New(ExternalService, "down"), true},
		{"timeout is retryable", New(Timeout, "deadline"), true},
		{"internal is retryable once", New(Internal, "panic"), true},
		{"unclassified error defaults internal/retryable", errors.New("boom"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsRetryable(tc.err))
		})
	}
}

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := Wrap(ExternalService, "qdrant upsert failed", cause)

	require.ErrorIs(t, err, cause)
	assert.Equal(t, ExternalService, KindOf(err))
	assert.Contains(t, err.Error(), "qdrant upsert failed")
	assert.Contains(t, err.Error(), "refused")
}

func TestWithDetails(t *testing.T) {
	err := New(Validation, "limit out of range").WithDetails(map[string]any{"limit": 0})
	assert.Equal(t, 0, err.Details["limit"])
}

func TestIs(t *testing.T) {
	err := New(Conflict, "non-terminal job exists")
	assert.True(t, Is(err, Conflict))
	assert.False(t, Is(err, Timeout))
}
