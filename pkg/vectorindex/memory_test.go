package vectorindex

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchRanksByCosineSimilarityAndRespectsK(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	require.NoError(t, idx.EnsureCollection(ctx, "docs", 2))

	require.NoError(t, idx.Upsert(ctx, "docs", []Point{
		{ID: "a", Vector: []float32{1, 0}},
		{ID: "b", Vector: []float32{0, 1}},
		{ID: "c", Vector: []float32{0.9, 0.1}},
	}))

	results, err := idx.Search(ctx, "docs", []float32{1, 0}, 2, 0, Filter{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "c", results[1].ID)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
}

func TestSearchAppliesScoreThreshold(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	require.NoError(t, idx.Upsert(ctx, "docs", []Point{
		{ID: "a", Vector: []float32{1, 0}},
		{ID: "b", Vector: []float32{-1, 0}},
	}))

	results, err := idx.Search(ctx, "docs", []float32{1, 0}, 10, 0.9, Filter{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

func TestSearchAppliesPayloadFilter(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	require.NoError(t, idx.Upsert(ctx, "docs", []Point{
		{ID: "a", Vector: []float32{1, 0}, Payload: Payload{DocumentID: "doc-1"}},
		{ID: "b", Vector: []float32{1, 0}, Payload: Payload{DocumentID: "doc-2"}},
	}))

	results, err := idx.Search(ctx, "docs", []float32{1, 0}, 10, 0, Filter{
		Conditions: []Condition{{Path: "document_id", Op: OpEq, Value: "doc-2"}},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ID)
}

func TestScrollPaginatesInStableOrder(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	require.NoError(t, idx.Upsert(ctx, "docs", []Point{
		{ID: "a", Vector: []float32{1}},
		{ID: "b", Vector: []float32{1}},
		{ID: "c", Vector: []float32{1}},
	}))

	page1, err := idx.Scroll(ctx, "docs", Filter{}, 2, "")
	require.NoError(t, err)
	require.Len(t, page1.Points, 2)
	assert.NotEmpty(t, page1.NextOffset)

	page2, err := idx.Scroll(ctx, "docs", Filter{}, 2, page1.NextOffset)
	require.NoError(t, err)
	require.Len(t, page2.Points, 1)
	assert.Empty(t, page2.NextOffset)
}

func TestScrollRejectsInvalidOffset(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	_, err := idx.Scroll(ctx, "docs", Filter{}, 10, "not-a-number")
	require.Error(t, err)
}

func TestGetAndDelete(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	require.NoError(t, idx.Upsert(ctx, "docs", []Point{
		{ID: "a", Vector: []float32{1}},
		{ID: "b", Vector: []float32{1}},
	}))

	got, err := idx.Get(ctx, "docs", []string{"a", "missing"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)

	require.NoError(t, idx.Delete(ctx, "docs", []string{"a"}))
	got, err = idx.Get(ctx, "docs", []string{"a"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCosineSimilarityHandlesMismatchedAndZeroVectors(t *testing.T) {
	assert.Equal(t, float32(0), cosineSimilarity([]float32{1, 2}, []float32{1}))
	assert.Equal(t, float32(0), cosineSimilarity([]float32{0, 0}, []float32{1, 1}))
	assert.InDelta(t, float32(1), cosineSimilarity([]float32{1, 1}, []float32{1, 1}), 1e-6)
}

func TestFilterMatchOnNestedUserMetadataAndOrderedOps(t *testing.T) {
	p := Payload{
		Page:         3,
		CreatedAt:    time.Now(),
		UserMetadata: map[string]any{"tag": "alpha"},
	}

	f := Filter{Conditions: []Condition{
		{Path: "page", Op: OpGte, Value: 2},
		{Path: "page", Op: OpLte, Value: 3},
		{Path: "user_metadata.tag", Op: OpEq, Value: "alpha"},
	}}
	assert.True(t, f.Match(p))

	assert.False(t, f.Match(Payload{Page: 1}))
	assert.False(t, f.Match(Payload{Page: 3, UserMetadata: map[string]any{"tag": "beta"}}))
}

func TestFilterMatchUnknownPathNeverMatches(t *testing.T) {
	f := Filter{Conditions: []Condition{{Path: "nonexistent", Op: OpEq, Value: "x"}}}
	assert.False(t, f.Match(Payload{}))
}
