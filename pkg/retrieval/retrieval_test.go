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

package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragwell/corpus/pkg/apperror"
	"github.com/ragwell/corpus/pkg/chunks"
	"github.com/ragwell/corpus/pkg/embedding"
	"github.com/ragwell/corpus/pkg/vectorindex"
)

const testCollection = "docs"

// fakeEmbedder always returns the same vector, so the semantic branch
// is deterministic regardless of query text.
type fakeEmbedder struct {
	vector []float32
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string, opts embedding.Options) ([]embedding.Result, error) {
	out := make([]embedding.Result, len(texts))
	for i := range texts {
		out[i] = embedding.Result{Vector: f.vector, Model: "fake", Dimension: len(f.vector)}
	}
	return out, nil
}
func (f *fakeEmbedder) Model() string  { return "fake" }
func (f *fakeEmbedder) Dimension() int { return len(f.vector) }
func (f *fakeEmbedder) Close() error   { return nil }

func seedCorpus(t *testing.T) (*chunks.MemStore, *vectorindex.MemoryIndex) {
	t.Helper()
	ctx := context.Background()

	store := chunks.NewMemStore()
	vectors := vectorindex.NewMemoryIndex()
	require.NoError(t, vectors.EnsureCollection(ctx, testCollection, 2))

	entries := []struct {
		id, docID, content string
		vec                []float32
	}{
		{"c1", "doc-1", "the quick brown fox jumps over the lazy dog", []float32{1, 0}},
		{"c2", "doc-2", "a completely unrelated sentence about weather", []float32{0, 1}},
		{"c3", "doc-1", "another fox related paragraph about foxes", []float32{0.9, 0.1}},
	}
	for _, e := range entries {
		emb := "emb-" + e.id
		require.NoError(t, store.Save(ctx, &chunks.Chunk{ID: e.id, DocumentID: e.docID, Content: e.content, EmbeddingID: &emb}))
		require.NoError(t, vectors.Upsert(ctx, testCollection, []vectorindex.Point{
			{ID: emb, Vector: e.vec, Payload: vectorindex.Payload{DocumentID: e.docID, ChunkID: e.id}},
		}))
	}
	return store, vectors
}

func TestRetrieveValidatesQuery(t *testing.T) {
	store, vectors := seedCorpus(t)
	engine := New(vectors, store, &fakeEmbedder{vector: []float32{1, 0}}, testCollection, DefaultConfig())
	ctx := context.Background()

	cases := []Query{
		{QueryText: "", Mode: ModeSemantic, Limit: 5},
		{QueryText: "fox", Mode: "bogus", Limit: 5},
		{QueryText: "fox", Mode: ModeSemantic, Limit: 0},
		{QueryText: "fox", Mode: ModeSemantic, Limit: 101},
		{QueryText: "fox", Mode: ModeSemantic, Limit: 5, Threshold: -0.1},
		{QueryText: "fox", Mode: ModeSemantic, Limit: 5, Threshold: 1.1},
	}
	for _, q := range cases {
		_, err := engine.Retrieve(ctx, q)
		require.Error(t, err)
		assert.Equal(t, apperror.Validation, apperror.KindOf(err))
	}
}

func TestRetrieveSemanticModeOrdersByVectorSimilarity(t *testing.T) {
	store, vectors := seedCorpus(t)
	engine := New(vectors, store, &fakeEmbedder{vector: []float32{1, 0}}, testCollection, DefaultConfig())

	results, err := engine.Retrieve(context.Background(), Query{QueryText: "fox", Mode: ModeSemantic, Limit: 10})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "c1", results[0].ChunkID)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestRetrieveKeywordModeScoresByTokenOverlap(t *testing.T) {
	store, vectors := seedCorpus(t)
	engine := New(vectors, store, &fakeEmbedder{vector: []float32{1, 0}}, testCollection, DefaultConfig())

	results, err := engine.Retrieve(context.Background(), Query{QueryText: "fox", Mode: ModeKeyword, Limit: 10})
	require.NoError(t, err)
	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.ChunkID)
		assert.Greater(t, r.Score, float32(0))
	}
	assert.Contains(t, ids, "c1")
	assert.Contains(t, ids, "c3")
	assert.NotContains(t, ids, "c2")
}

func TestRetrieveDedupesByDocumentKeepingHighestScore(t *testing.T) {
	store, vectors := seedCorpus(t)
	engine := New(vectors, store, &fakeEmbedder{vector: []float32{1, 0}}, testCollection, DefaultConfig())

	results, err := engine.Retrieve(context.Background(), Query{QueryText: "fox", Mode: ModeSemantic, Limit: 10})
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, r := range results {
		assert.False(t, seen[r.DocumentID], "document %s returned more than once", r.DocumentID)
		seen[r.DocumentID] = true
	}
	// c1 (score 1.0) and c3 (score ~0.997) are both doc-1; only the
	// higher-scored c1 should survive.
	for _, r := range results {
		if r.DocumentID == "doc-1" {
			assert.Equal(t, "c1", r.ChunkID)
		}
	}
}

func TestRetrieveHybridModeFusesBothBranches(t *testing.T) {
	store, vectors := seedCorpus(t)
	engine := New(vectors, store, &fakeEmbedder{vector: []float32{0, 1}}, testCollection, DefaultConfig())

	results, err := engine.Retrieve(context.Background(), Query{QueryText: "fox", Mode: ModeHybrid, Limit: 10})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	// doc-2 has no keyword overlap but a perfect vector match; doc-1's
	// c1 has keyword overlap but a poor vector match against {0,1}.
	// Hybrid fusion should surface both, doc-2 first given the weights.
	assert.Equal(t, "c2", results[0].ChunkID)
}

func TestRetrieveFillsContentForSemanticResults(t *testing.T) {
	store, vectors := seedCorpus(t)
	engine := New(vectors, store, &fakeEmbedder{vector: []float32{1, 0}}, testCollection, DefaultConfig())

	results, err := engine.Retrieve(context.Background(), Query{QueryText: "fox", Mode: ModeSemantic, Limit: 1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.NotEmpty(t, results[0].Content)
}

func TestTokenizeQueryDropsStopwordsAndShortTokensAndCaps(t *testing.T) {
	tokens := tokenizeQuery("The Quick Brown Fox and a dog of an in on at for with by this that it as from into about than then one two three four five six seven eight nine ten eleven")
	assert.LessOrEqual(t, len(tokens), maxQueryTokens)
	for _, tok := range tokens {
		assert.GreaterOrEqual(t, len(tok), minTokenLength)
		assert.False(t, stopWords[tok])
	}
}
