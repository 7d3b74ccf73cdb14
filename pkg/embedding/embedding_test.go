package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEffectiveBatchSizeAppliesDefaultCapAndProviderLimit(t *testing.T) {
	assert.Equal(t, DefaultBatchSize, effectiveBatchSize(Options{}, 0))
	assert.Equal(t, MaxBatchSize, effectiveBatchSize(Options{BatchSize: 1000}, 0))
	assert.Equal(t, 10, effectiveBatchSize(Options{BatchSize: 1000}, 10))
	assert.Equal(t, 30, effectiveBatchSize(Options{BatchSize: 30}, 96))
}

func TestClampToWordBoundaryLeavesShortTextUntouched(t *testing.T) {
	text := "a short sentence"
	clamped, truncated := clampToWordBoundary(text, 100, estimateTokensByWord)
	assert.Equal(t, text, clamped)
	assert.False(t, truncated)
}

func TestClampToWordBoundaryTruncatesOnWordBoundary(t *testing.T) {
	text := "one two three four five six seven eight nine ten"
	clamped, truncated := clampToWordBoundary(text, 4, estimateTokensByWord)
	require.True(t, truncated)
	assert.LessOrEqual(t, estimateTokensByWord(clamped), 4)
	// every kept word must appear intact, never cut mid-word
	for _, w := range []string{"one", "two"} {
		assert.Contains(t, clamped, w)
	}
}

func TestClampToWordBoundaryNeverEmptiesOutput(t *testing.T) {
	clamped, truncated := clampToWordBoundary("supercalifragilisticexpialidocious", 1, estimateTokensByWord)
	assert.True(t, truncated)
	assert.NotEmpty(t, clamped)
}

func TestEmbedInBatchesPreservesOrderAcrossBatches(t *testing.T) {
	texts := []string{"a", "b", "c", "d", "e"}
	var seenBatches [][]string

	doBatch := func(ctx context.Context, batch []string) ([][]float32, Usage, error) {
		seenBatches = append(seenBatches, batch)
		vectors := make([][]float32, len(batch))
		for i := range batch {
			vectors[i] = []float32{float32(len(seenBatches)), float32(i)}
		}
		return vectors, Usage{TotalTokens: len(batch)}, nil
	}

	vectors, usages, err := embedInBatches(context.Background(), texts, 2, doBatch)
	require.NoError(t, err)
	assert.Len(t, vectors, 5)
	assert.Len(t, usages, 5)
	assert.Len(t, seenBatches, 3) // 2,2,1
}

func TestEmbedInBatchesRetriesOnRateLimitThenSucceeds(t *testing.T) {
	attempts := 0
	doBatch := func(ctx context.Context, batch []string) ([][]float32, Usage, error) {
		attempts++
		if attempts == 1 {
			return nil, Usage{}, &RateLimitError{RetryAfter: time.Millisecond}
		}
		return [][]float32{{1, 2}}, Usage{TotalTokens: 1}, nil
	}

	vectors, _, err := embedInBatches(context.Background(), []string{"x"}, 10, doBatch)
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, [][]float32{{1, 2}}, vectors)
}

func TestEmbedInBatchesFailsImmediatelyOnNonRateLimitError(t *testing.T) {
	calls := 0
	doBatch := func(ctx context.Context, batch []string) ([][]float32, Usage, error) {
		calls++
		return nil, Usage{}, assert.AnError
	}

	_, _, err := embedInBatches(context.Background(), []string{"x"}, 10, doBatch)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestOpenAIEmbedderEmbedsAndReportsDimension(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openAIEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := openAIEmbedResponse{}
		for i := range req.Input {
			resp.Data = append(resp.Data, struct {
				Embedding []float32 `json:"embedding"`
				Index     int       `json:"index"`
			}{Embedding: []float32{0.1, 0.2, 0.3}, Index: i})
		}
		resp.Usage.PromptTokens = 3
		resp.Usage.TotalTokens = 3

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	embedder, err := NewOpenAIEmbedder(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)

	results, err := embedder.EmbedBatch(context.Background(), []string{"hello", "world"}, Options{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, results[0].Vector)
	assert.Equal(t, "text-embedding-3-small", results[0].Model)
	assert.Equal(t, 1536, results[0].Dimension)
	assert.False(t, results[0].Truncated)
}

func TestOpenAIEmbedderSurfacesRateLimitAndRetries(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		resp := openAIEmbedResponse{Data: []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}{{Embedding: []float32{1}, Index: 0}}}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	embedder, err := NewOpenAIEmbedder(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)

	results, err := embedder.EmbedBatch(context.Background(), []string{"hello"}, Options{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 2, calls)
}
