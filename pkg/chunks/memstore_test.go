package chunks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragwell/corpus/pkg/apperror"
)

func TestSaveBatchOrdersByDocumentThenSequence(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	batch := []*Chunk{
		{DocumentID: "doc-1", Content: "b", SequenceNumber: 1, ContentHash: "h1"},
		{DocumentID: "doc-1", Content: "a", SequenceNumber: 0, ContentHash: "h0"},
	}
	require.NoError(t, store.SaveBatch(ctx, batch))

	found, err := store.FindByDocument(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "a", found[0].Content)
	assert.Equal(t, "b", found[1].Content)
}

func TestFindByContentHashGroupsDuplicates(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	require.NoError(t, store.SaveBatch(ctx, []*Chunk{
		{DocumentID: "doc-1", Content: "same", SequenceNumber: 0, ContentHash: "dup"},
		{DocumentID: "doc-1", Content: "same", SequenceNumber: 1, ContentHash: "dup"},
		{DocumentID: "doc-1", Content: "other", SequenceNumber: 2, ContentHash: "unique"},
	}))

	dupes, err := store.FindByContentHash(ctx, "doc-1", "dup")
	require.NoError(t, err)
	assert.Len(t, dupes, 2)

	uniques, err := store.FindByContentHash(ctx, "doc-1", "unique")
	require.NoError(t, err)
	assert.Len(t, uniques, 1)
}

func TestSetEmbeddingIDOnceOnly(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	chunk := &Chunk{DocumentID: "doc-1", Content: "x", ContentHash: "h"}
	require.NoError(t, store.Save(ctx, chunk))
	assert.False(t, chunk.HasEmbedding())

	require.NoError(t, store.SetEmbeddingID(ctx, chunk.ID, "emb-1"))

	got, err := store.FindByID(ctx, chunk.ID)
	require.NoError(t, err)
	assert.True(t, got.HasEmbedding())

	err = store.SetEmbeddingID(ctx, chunk.ID, "emb-2")
	require.Error(t, err)
	assert.Equal(t, apperror.BusinessRule, apperror.KindOf(err))
}

func TestDeleteBatchRemovesChunks(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	c1 := &Chunk{DocumentID: "doc-1", Content: "a", ContentHash: "h1"}
	c2 := &Chunk{DocumentID: "doc-1", Content: "b", ContentHash: "h2"}
	require.NoError(t, store.SaveBatch(ctx, []*Chunk{c1, c2}))

	require.NoError(t, store.DeleteBatch(ctx, []string{c1.ID}))

	count, err := store.CountByDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = store.FindByID(ctx, c1.ID)
	require.Error(t, err)
	assert.Equal(t, apperror.NotFound, apperror.KindOf(err))
}
