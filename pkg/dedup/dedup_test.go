// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragwell/corpus/pkg/chunks"
	"github.com/ragwell/corpus/pkg/vectorindex"
)

const testCollection = "test-collection"

func strPtr(s string) *string { return &s }

func seedChunk(t *testing.T, store *chunks.MemStore, id, documentID, content string, seq int, createdAt time.Time, embeddingID string) *chunks.Chunk {
	t.Helper()
	c := &chunks.Chunk{
		ID:             id,
		DocumentID:     documentID,
		Content:        content,
		Kind:           chunks.KindFixedSize,
		SequenceNumber: seq,
		ContentHash:    chunks.ContentHashOf(content),
		CreatedAt:      createdAt,
	}
	if embeddingID != "" {
		c.EmbeddingID = strPtr(embeddingID)
	}
	require.NoError(t, store.Save(context.Background(), c))
	return c
}

func TestRunGroupsExactDuplicatesByContentHashAndKeepsEarliestRepresentative(t *testing.T) {
	ctx := context.Background()
	store := chunks.NewMemStore()
	vectors := vectorindex.NewMemoryIndex()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	seedChunk(t, store, "c1", "doc-1", "the quick brown fox", 0, base.Add(2*time.Hour), "")
	seedChunk(t, store, "c2", "doc-1", "the quick   brown fox", 1, base, "") // earliest: survives
	seedChunk(t, store, "c3", "doc-1", "the quick brown fox", 2, base.Add(1*time.Hour), "")
	seedChunk(t, store, "c4", "doc-1", "an unrelated sentence", 3, base, "")

	engine := New(store, vectors, Config{})
	removed, groups, err := engine.Run(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, groups)

	remaining, err := store.FindByDocument(ctx, "doc-1")
	require.NoError(t, err)
	ids := make([]string, 0, len(remaining))
	for _, c := range remaining {
		ids = append(ids, c.ID)
	}
	assert.ElementsMatch(t, []string{"c2", "c4"}, ids)
}

func TestRunDeletesVectorsForDuplicatesBeforeChunks(t *testing.T) {
	ctx := context.Background()
	store := chunks.NewMemStore()
	vectors := vectorindex.NewMemoryIndex()
	require.NoError(t, vectors.EnsureCollection(ctx, testCollection, 2))
	require.NoError(t, vectors.Upsert(ctx, testCollection, []vectorindex.Point{
		{ID: "emb-1", Vector: []float32{1, 0}},
		{ID: "emb-2", Vector: []float32{1, 0}},
	}))

	base := time.Now().UTC()
	seedChunk(t, store, "c1", "doc-2", "duplicate text", 0, base, "emb-1")
	seedChunk(t, store, "c2", "doc-2", "duplicate text", 1, base.Add(time.Minute), "emb-2")

	engine := New(store, vectors, Config{Collection: testCollection})
	removed, groups, err := engine.Run(ctx, "doc-2")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, groups)

	points, err := vectors.Get(ctx, testCollection, []string{"emb-2"})
	require.NoError(t, err)
	assert.Empty(t, points, "duplicate's vector must be removed alongside its chunk")

	points, err = vectors.Get(ctx, testCollection, []string{"emb-1"})
	require.NoError(t, err)
	assert.Len(t, points, 1, "representative's vector must survive")
}

func TestRunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := chunks.NewMemStore()
	vectors := vectorindex.NewMemoryIndex()

	base := time.Now().UTC()
	seedChunk(t, store, "c1", "doc-3", "same content here", 0, base, "")
	seedChunk(t, store, "c2", "doc-3", "same content here", 1, base.Add(time.Minute), "")

	engine := New(store, vectors, Config{})
	removed1, groups1, err := engine.Run(ctx, "doc-3")
	require.NoError(t, err)
	assert.Equal(t, 1, removed1)
	assert.Equal(t, 1, groups1)

	removed2, groups2, err := engine.Run(ctx, "doc-3")
	require.NoError(t, err)
	assert.Equal(t, 0, removed2)
	assert.Equal(t, 0, groups2)
}

func TestRunNeverRemovesAllMembersOfAGroup(t *testing.T) {
	ctx := context.Background()
	store := chunks.NewMemStore()
	vectors := vectorindex.NewMemoryIndex()

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		seedChunk(t, store, string(rune('a'+i)), "doc-4", "repeated paragraph", i, base.Add(time.Duration(i)*time.Minute), "")
	}

	engine := New(store, vectors, Config{})
	removed, groups, err := engine.Run(ctx, "doc-4")
	require.NoError(t, err)
	assert.Equal(t, 4, removed)
	assert.Equal(t, 1, groups)

	remaining, err := store.FindByDocument(ctx, "doc-4")
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "a", remaining[0].ID) // earliest created_at
}

func TestRunSemanticSimilarityGroupsEmbeddingsAboveThreshold(t *testing.T) {
	ctx := context.Background()
	store := chunks.NewMemStore()
	vectors := vectorindex.NewMemoryIndex()
	require.NoError(t, vectors.EnsureCollection(ctx, testCollection, 2))
	require.NoError(t, vectors.Upsert(ctx, testCollection, []vectorindex.Point{
		{ID: "emb-near-1", Vector: []float32{1, 0}},
		{ID: "emb-near-2", Vector: []float32{0.99, 0.01}},
		{ID: "emb-far", Vector: []float32{0, 1}},
	}))

	base := time.Now().UTC()
	seedChunk(t, store, "s1", "doc-5", "paraphrase of the same idea", 0, base, "emb-near-1")
	seedChunk(t, store, "s2", "doc-5", "a rewording of that same idea", 1, base.Add(time.Minute), "emb-near-2")
	seedChunk(t, store, "s3", "doc-5", "a completely different topic", 2, base.Add(2*time.Minute), "emb-far")

	engine := New(store, vectors, Config{UseSemanticSimilarity: true, SimilarityThreshold: 0.9, Collection: testCollection})
	removed, groups, err := engine.Run(ctx, "doc-5")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, groups)

	remaining, err := store.FindByDocument(ctx, "doc-5")
	require.NoError(t, err)
	ids := make([]string, 0, len(remaining))
	for _, c := range remaining {
		ids = append(ids, c.ID)
	}
	assert.ElementsMatch(t, []string{"s1", "s3"}, ids)
}

func TestRunOnEmptyDocumentIsNoop(t *testing.T) {
	store := chunks.NewMemStore()
	vectors := vectorindex.NewMemoryIndex()
	engine := New(store, vectors, Config{})

	removed, groups, err := engine.Run(context.Background(), "no-such-doc")
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
	assert.Equal(t, 0, groups)
}
