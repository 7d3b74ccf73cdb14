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

// Command ragcore is the process-start wiring for the pipeline: it
// constructs every component from a validated config.Config and
// exposes the resulting collaborators to the CLI's subcommands. There
// is no HTTP transport here (out of scope per this project's external-
// interfaces section) -- ragcore exercises the core packages directly,
// the way a caller embedding this module into a service would.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ragwell/corpus/pkg/answer"
	"github.com/ragwell/corpus/pkg/chunking"
	"github.com/ragwell/corpus/pkg/chunks"
	"github.com/ragwell/corpus/pkg/config"
	"github.com/ragwell/corpus/pkg/dedup"
	"github.com/ragwell/corpus/pkg/embedding"
	"github.com/ragwell/corpus/pkg/eventbus"
	"github.com/ragwell/corpus/pkg/extraction"
	"github.com/ragwell/corpus/pkg/jobengine"
	"github.com/ragwell/corpus/pkg/jobs"
	"github.com/ragwell/corpus/pkg/llm"
	"github.com/ragwell/corpus/pkg/metrics"
	"github.com/ragwell/corpus/pkg/registry"
	"github.com/ragwell/corpus/pkg/retrieval"
	"github.com/ragwell/corpus/pkg/vectorindex"
)

// App bundles every constructed collaborator a subcommand might need.
// Not every subcommand uses every field; Close releases whichever
// resources were opened.
type App struct {
	Config     *config.Config
	JobStore   jobs.Store
	ChunkStore chunks.Store
	Vectors    vectorindex.Index
	Bus        eventbus.Bus
	Embedder   embedding.Embedder
	Engine     *jobengine.Engine
	Retrieval  *retrieval.Engine
	Answer     *answer.Composer
}

// osFileReader reads job input files straight off disk -- the
// jobengine.FileReader a real deployment needs, as opposed to the
// in-memory fake the package's own tests use.
type osFileReader struct{}

func (osFileReader) ReadFile(ctx context.Context, path string) ([]byte, error) {
	return os.ReadFile(path)
}

// buildApp constructs every component wired together per cfg. The
// worker command uses the whole thing; ingest/ask only touch the
// pieces they need, but building everything once keeps the wiring in
// one place, matching the teacher's single component-manager
// construction step in cmd/hector/serve.go.
func buildApp(cfg *config.Config) (*App, error) {
	jobStore, err := jobs.NewSQLStore(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("job store: %w", err)
	}

	chunkStore, err := chunks.NewSQLStore(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("chunk store: %w", err)
	}

	vectors, err := buildVectorIndex(cfg.Vector)
	if err != nil {
		return nil, fmt.Errorf("vector index: %w", err)
	}
	if err := vectors.EnsureCollection(context.Background(), cfg.Vector.Collection, cfg.Vector.Size); err != nil {
		return nil, fmt.Errorf("ensure vector collection: %w", err)
	}

	bus, err := buildEventBus(cfg.EventBus)
	if err != nil {
		return nil, fmt.Errorf("event bus: %w", err)
	}

	embedder, err := buildEmbedder(cfg.Embedder, cfg.Pipeline)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}

	llmClient, err := llm.NewOpenAIClient(llm.OpenAIConfig{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Timeout: 60 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("llm client: %w", err)
	}

	registry := buildExtractionRegistry()

	dedupEngine := dedup.New(chunkStore, vectors, dedup.Config{Collection: cfg.Vector.Collection})

	appMetrics := metrics.New("ragcore")

	engineCfg := jobengine.Config{WorkerCount: cfg.Pipeline.MaxConcurrentProcessing}
	engineCfg.SetDefaults()

	engine := jobengine.New(engineCfg, jobengine.Deps{
		Jobs:       jobStore,
		Chunks:     chunkStore,
		Vectors:    vectors,
		Bus:        bus,
		Embedder:   embedder,
		Extractors: registry,
		Dedup:      dedupEngine,
		Files:      osFileReader{},
		Metrics:    appMetrics,
		ChunkingConfig: chunking.Config{
			Strategy:     chunking.StrategyFixedSize,
			ChunkSize:    cfg.Pipeline.ChunkSize,
			Overlap:      cfg.Pipeline.ChunkOverlap,
			MinChunkSize: cfg.Pipeline.ChunkSize / 4,
			MaxChunkSize: cfg.Pipeline.ChunkSize * 2,
		},
		EmbeddingBatchSize: cfg.Pipeline.BatchSize,
		Collection:         cfg.Vector.Collection,
	})

	retrievalEngine := retrieval.New(vectors, chunkStore, embedder, cfg.Vector.Collection, retrieval.DefaultConfig())
	retrievalEngine.SetMetrics(appMetrics)
	composer := answer.New(llmClient)

	return &App{
		Config:     cfg,
		JobStore:   jobStore,
		ChunkStore: chunkStore,
		Vectors:    vectors,
		Bus:        bus,
		Embedder:   embedder,
		Engine:     engine,
		Retrieval:  retrievalEngine,
		Answer:     composer,
	}, nil
}

// vectorIndexFactory builds a vectorindex.Index from vector-store
// config. Backends are plugged into a named registry.Registry rather
// than a bare switch, so adding a provider is a Register call instead
// of a new case -- the same pattern this module's extractor registry
// and the teacher's provider registries use for pluggable backends.
type vectorIndexFactory func(config.VectorStoreConfig) (vectorindex.Index, error)

func vectorIndexRegistry() registry.Registry[vectorIndexFactory] {
	r := registry.NewBaseRegistry[vectorIndexFactory]()
	_ = r.Register("qdrant", func(cfg config.VectorStoreConfig) (vectorindex.Index, error) {
		return vectorindex.NewQdrantIndex(vectorindex.QdrantConfig{
			Host:   cfg.Host,
			Port:   cfg.Port,
			APIKey: cfg.APIKey,
		})
	})
	_ = r.Register("pinecone", func(cfg config.VectorStoreConfig) (vectorindex.Index, error) {
		return vectorindex.NewPineconeIndex(vectorindex.PineconeConfig{
			APIKey:    cfg.APIKey,
			Host:      cfg.Host,
			IndexName: cfg.IndexName,
		})
	})
	_ = r.Register("chromem", func(cfg config.VectorStoreConfig) (vectorindex.Index, error) {
		return vectorindex.NewChromemIndex(vectorindex.ChromemConfig{PersistPath: cfg.PersistPath})
	})
	return r
}

func buildVectorIndex(cfg config.VectorStoreConfig) (vectorindex.Index, error) {
	build, ok := vectorIndexRegistry().Get(cfg.Type)
	if !ok {
		build, _ = vectorIndexRegistry().Get("chromem")
	}
	return build(cfg)
}

func buildEventBus(cfg config.EventBusConfig) (eventbus.Bus, error) {
	if cfg.Driver == "memory" {
		return eventbus.NewMemoryBus("ragcore", "processing.failed"), nil
	}
	return eventbus.NewJetStreamBus(eventbus.JetStreamConfig{
		URL:             cfg.URL,
		Stream:          cfg.Stream,
		MaxDeliver:      cfg.MaxDeliver,
		DeadLetterTopic: "processing.failed",
	}, "ragcore")
}

// embedderFactory builds an embedding.Embedder from embedder and
// pipeline config. Registered by provider name for the same reason
// vector backends are: new providers plug in without touching the
// dispatch code.
type embedderFactory func(config.EmbedderConfig, config.PipelineConfig) (embedding.Embedder, error)

func embedderRegistry() registry.Registry[embedderFactory] {
	r := registry.NewBaseRegistry[embedderFactory]()
	_ = r.Register("cohere", func(cfg config.EmbedderConfig, pipeline config.PipelineConfig) (embedding.Embedder, error) {
		return embedding.NewCohereEmbedder(embedding.CohereConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     pipeline.EmbeddingModel,
			Dimension: pipeline.EmbeddingDimension,
			BatchSize: pipeline.BatchSize,
			Timeout:   60 * time.Second,
		})
	})
	_ = r.Register("ollama", func(cfg config.EmbedderConfig, pipeline config.PipelineConfig) (embedding.Embedder, error) {
		return embedding.NewOllamaEmbedder(embedding.OllamaConfig{
			BaseURL:   cfg.BaseURL,
			Model:     pipeline.EmbeddingModel,
			Dimension: pipeline.EmbeddingDimension,
			BatchSize: pipeline.BatchSize,
			Timeout:   60 * time.Second,
		}), nil
	})
	_ = r.Register("openai", func(cfg config.EmbedderConfig, pipeline config.PipelineConfig) (embedding.Embedder, error) {
		return embedding.NewOpenAIEmbedder(embedding.OpenAIConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     pipeline.EmbeddingModel,
			Dimension: pipeline.EmbeddingDimension,
			BatchSize: pipeline.BatchSize,
			Timeout:   60 * time.Second,
		})
	})
	return r
}

func buildEmbedder(cfg config.EmbedderConfig, pipeline config.PipelineConfig) (embedding.Embedder, error) {
	build, ok := embedderRegistry().Get(cfg.Provider)
	if !ok {
		build, _ = embedderRegistry().Get("openai")
	}
	return build(cfg, pipeline)
}

func buildExtractionRegistry() *extraction.Registry {
	registry := extraction.NewRegistry()
	registry.Register(extraction.NewPlainTextExtractor())
	registry.Register(extraction.NewPDFExtractor())
	registry.Register(extraction.NewDocxExtractor())
	registry.Register(extraction.NewLegacyDocExtractor())
	return registry
}
