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

package jobengine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragwell/corpus/pkg/apperror"
	"github.com/ragwell/corpus/pkg/chunking"
	"github.com/ragwell/corpus/pkg/chunks"
	"github.com/ragwell/corpus/pkg/embedding"
	"github.com/ragwell/corpus/pkg/eventbus"
	"github.com/ragwell/corpus/pkg/extraction"
	"github.com/ragwell/corpus/pkg/jobs"
	"github.com/ragwell/corpus/pkg/vectorindex"
)

type fakeFileReader struct {
	files map[string][]byte
}

func (f *fakeFileReader) ReadFile(ctx context.Context, path string) ([]byte, error) {
	data, ok := f.files[path]
	if !ok {
		return nil, apperror.New(apperror.NotFound, "no such file")
	}
	return data, nil
}

type fakeEmbedder struct {
	mu       sync.Mutex
	calls    int
	failOnce bool
	dim      int
}

func (e *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string, opts embedding.Options) ([]embedding.Result, error) {
	e.mu.Lock()
	e.calls++
	shouldFail := e.failOnce && e.calls == 1
	e.mu.Unlock()

	if shouldFail {
		return nil, errors.New("simulated transient embedder failure")
	}

	out := make([]embedding.Result, len(texts))
	for i := range texts {
		vec := make([]float32, e.dim)
		vec[0] = float32(i + 1)
		out[i] = embedding.Result{Vector: vec, Model: "fake-model", Dimension: e.dim}
	}
	return out, nil
}

func (e *fakeEmbedder) Model() string  { return "fake-model" }
func (e *fakeEmbedder) Dimension() int { return e.dim }
func (e *fakeEmbedder) Close() error   { return nil }

type fakeDedup struct {
	removed, groups int
	err             error
}

func (d *fakeDedup) Run(ctx context.Context, documentID string) (int, int, error) {
	return d.removed, d.groups, d.err
}

func newTestDeps(t *testing.T) (*Deps, *jobs.MemStore, *chunks.MemStore, *eventbus.MemoryBus) {
	t.Helper()

	jobStore := jobs.NewMemStore()
	chunkStore := chunks.NewMemStore()
	vectors := vectorindex.NewMemoryIndex()
	bus := eventbus.NewMemoryBus("jobengine-test", "")

	registry := extraction.NewRegistry()
	registry.Register(extraction.NewPlainTextExtractor())

	deps := &Deps{
		Jobs:       jobStore,
		Chunks:     chunkStore,
		Vectors:    vectors,
		Bus:        bus,
		Embedder:   &fakeEmbedder{dim: 4},
		Extractors: registry,
		Dedup:      &fakeDedup{},
		Files:      &fakeFileReader{files: map[string][]byte{}},

		ChunkingConfig: chunking.Config{Strategy: chunking.StrategyFixedSize, ChunkSize: 50, Overlap: 10, MinChunkSize: 10, MaxChunkSize: 100},
		Collection:     "test-collection",
	}
	return deps, jobStore, chunkStore, bus
}

func TestCreateJobEnforcesUniquenessPerDocumentAndKind(t *testing.T) {
	deps, _, _, _ := newTestDeps(t)
	engine := New(Config{}, *deps)
	ctx := context.Background()

	_, err := engine.CreateJob(ctx, "doc-1", "user-1", jobs.KindExtract, map[string]any{"file_path": "a.txt", "file_type": "txt"}, 0, 0)
	require.NoError(t, err)

	_, err = engine.CreateJob(ctx, "doc-1", "user-1", jobs.KindExtract, map[string]any{"file_path": "b.txt", "file_type": "txt"}, 0, 0)
	require.Error(t, err)
	assert.Equal(t, apperror.BusinessRule, apperror.KindOf(err))
}

func TestCreateJobValidatesPerKindParameters(t *testing.T) {
	deps, _, _, _ := newTestDeps(t)
	engine := New(Config{}, *deps)
	ctx := context.Background()

	cases := []struct {
		name   string
		kind   jobs.Kind
		params map[string]any
		wantOK bool
	}{
		{"extract missing file_path", jobs.KindExtract, map[string]any{"file_type": "txt"}, false},
		{"extract missing file_type", jobs.KindExtract, map[string]any{"file_path": "a.txt"}, false},
		{"extract ok", jobs.KindExtract, map[string]any{"file_path": "a.txt", "file_type": "txt"}, true},
		{"chunk missing chunk_type", jobs.KindChunk, map[string]any{}, false},
		{"chunk negative chunk_size", jobs.KindChunk, map[string]any{"chunk_type": "fixed_size", "chunk_size": -1}, false},
		{"chunk ok", jobs.KindChunk, map[string]any{"chunk_type": "fixed_size"}, true},
		{"embed missing model_name", jobs.KindEmbed, map[string]any{}, false},
		{"embed ok", jobs.KindEmbed, map[string]any{"model_name": "text-embedding-3-small"}, true},
		{"index missing collection_name", jobs.KindIndex, map[string]any{}, false},
		{"index ok", jobs.KindIndex, map[string]any{"collection_name": "c"}, true},
		{"dedup needs nothing", jobs.KindDedup, map[string]any{}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			const docID = "doc-validate"
			_, err := engine.CreateJob(ctx, docID, "user-1", tc.kind, tc.params, 0, 0)
			if tc.wantOK {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Equal(t, apperror.Validation, apperror.KindOf(err))
			}
		})
	}
}

func TestEngineProcessesExtractChunkEmbedDedupEndToEnd(t *testing.T) {
	deps, jobStore, chunkStore, bus := newTestDeps(t)
	fr := deps.Files.(*fakeFileReader)
	fr.files["doc.txt"] = []byte(strings.Repeat("hello world. this is a test sentence. ", 10))

	var textExtracted, chunksCreated, embeddingsGenerated, deduplicated int
	var mu sync.Mutex
	sub := func(topic string, counter *int) {
		_, err := bus.Subscribe(context.Background(), topic, "test", func(ctx context.Context, msg eventbus.Message) error {
			mu.Lock()
			*counter++
			mu.Unlock()
			return nil
		})
		require.NoError(t, err)
	}
	sub(TopicTextExtracted, &textExtracted)
	sub(TopicChunksCreated, &chunksCreated)
	sub(TopicEmbeddingsGenerated, &embeddingsGenerated)
	sub(TopicChunksDeduplicated, &deduplicated)

	engine := New(Config{WorkerCount: 1, PollInterval: 10 * time.Millisecond}, *deps)
	ctx := context.Background()

	job, err := engine.CreateJob(ctx, "doc-e2e", "user-1", jobs.KindFullPipeline, map[string]any{
		"file_path": "doc.txt", "file_type": "txt",
	}, 0, 0)
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(context.Background())
	require.NoError(t, engine.Start(runCtx))

	require.Eventually(t, func() bool {
		got, err := jobStore.FindByID(ctx, job.ID)
		return err == nil && got.Status == jobs.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, engine.Stop(context.Background()))

	final, err := jobStore.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusCompleted, final.Status)

	count, err := chunkStore.CountByDocument(ctx, "doc-e2e")
	require.NoError(t, err)
	assert.Greater(t, count, 0)

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, textExtracted)
	assert.Equal(t, 1, chunksCreated)
	assert.Equal(t, 1, embeddingsGenerated)
	assert.Equal(t, 1, deduplicated)
}

func TestEngineRetriesRetryableFailureThenSucceeds(t *testing.T) {
	deps, jobStore, _, _ := newTestDeps(t)
	fr := deps.Files.(*fakeFileReader)
	fr.files["doc.txt"] = []byte("hello world, this has enough content to chunk and embed just fine.")
	deps.Embedder = &fakeEmbedder{dim: 4, failOnce: true}

	engine := New(Config{WorkerCount: 1, PollInterval: 10 * time.Millisecond, RetryBackoffBase: 10 * time.Millisecond}, *deps)
	ctx := context.Background()

	job, err := engine.CreateJob(ctx, "doc-retry", "user-1", jobs.KindFullPipeline, map[string]any{
		"file_path": "doc.txt", "file_type": "txt",
	}, 0, 2)
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(context.Background())
	require.NoError(t, engine.Start(runCtx))
	defer func() {
		cancel()
		_ = engine.Stop(context.Background())
	}()

	require.Eventually(t, func() bool {
		got, err := jobStore.FindByID(ctx, job.ID)
		return err == nil && got.Status == jobs.StatusCompleted
	}, 3*time.Second, 10*time.Millisecond)
}

func TestEngineFailsPermanentlyOnNonRetryableError(t *testing.T) {
	deps, jobStore, _, _ := newTestDeps(t)
	// No file registered at this path: ReadFile returns apperror.NotFound,
	// wrapped by the extract handler as apperror.ExternalService (retryable)
	// -- so instead force a terminal error via empty extracted text.
	fr := deps.Files.(*fakeFileReader)
	fr.files["empty.txt"] = []byte("   ")

	engine := New(Config{WorkerCount: 1, PollInterval: 10 * time.Millisecond, RetryBackoffBase: 5 * time.Millisecond}, *deps)
	ctx := context.Background()

	job, err := engine.CreateJob(ctx, "doc-fail", "user-1", jobs.KindExtract, map[string]any{
		"file_path": "empty.txt", "file_type": "txt",
	}, 0, 1)
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(context.Background())
	require.NoError(t, engine.Start(runCtx))
	defer func() {
		cancel()
		_ = engine.Stop(context.Background())
	}()

	require.Eventually(t, func() bool {
		got, err := jobStore.FindByID(ctx, job.ID)
		return err == nil && got.Status == jobs.StatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	final, err := jobStore.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, final.RetryCount) // business_rule is never retried
	assert.Contains(t, final.Error, "empty")
}
