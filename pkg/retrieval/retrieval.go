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

// Package retrieval ranks chunks relevant to a query using dense
// vectors, lexical keyword overlap, or a weighted fusion of both, then
// filters and deduplicates the result by document. Grounded on the
// pack's hybrid-retrieval idiom (a scoreMap accumulated across
// branches, weighted per branch, sorted descending) adapted to the
// exact per-token scoring formula this pipeline specifies rather than
// BM25.
package retrieval

import (
	"context"
	"sort"
	"time"

	"github.com/ragwell/corpus/pkg/apperror"
	"github.com/ragwell/corpus/pkg/chunks"
	"github.com/ragwell/corpus/pkg/embedding"
	"github.com/ragwell/corpus/pkg/metrics"
	"github.com/ragwell/corpus/pkg/vectorindex"
)

// Mode selects which branch(es) of the pipeline contribute to a
// query's score.
type Mode string

const (
	ModeSemantic Mode = "semantic"
	ModeKeyword  Mode = "keyword"
	ModeHybrid   Mode = "hybrid"
)

// Config tunes the hybrid fusion weights. New replaces the zero value
// with DefaultConfig.
type Config struct {
	SemanticWeight float32
	KeywordWeight  float32
}

// DefaultConfig returns the spec's default fusion weights (0.7/0.3).
func DefaultConfig() Config {
	return Config{SemanticWeight: 0.7, KeywordWeight: 0.3}
}

// Query is one retrieval request.
type Query struct {
	UserID    string
	QueryText string
	Mode      Mode
	Limit     int
	Threshold float32
	Filters   vectorindex.Filter
}

// Result is one ranked chunk.
type Result struct {
	ChunkID    string
	DocumentID string
	Content    string
	Score      float32
	Payload    vectorindex.Payload
}

// Engine runs the retrieval pipeline against one vector collection.
type Engine struct {
	vectors    vectorindex.Index
	chunkStore chunks.Store
	embedder   embedding.Embedder
	collection string
	cfg        Config
	metrics    *metrics.Metrics
}

// New constructs an Engine. cfg's zero value falls back to
// DefaultConfig.
func New(vectors vectorindex.Index, chunkStore chunks.Store, embedder embedding.Embedder, collection string, cfg Config) *Engine {
	if cfg.SemanticWeight == 0 && cfg.KeywordWeight == 0 {
		cfg = DefaultConfig()
	}
	return &Engine{vectors: vectors, chunkStore: chunkStore, embedder: embedder, collection: collection, cfg: cfg}
}

// SetMetrics attaches a metrics collector. Optional; a nil or never-
// called Engine simply records nothing.
func (e *Engine) SetMetrics(m *metrics.Metrics) {
	e.metrics = m
}

// Retrieve runs spec.md §4.J's five-step pipeline: validate, run the
// branch(es) the mode calls for, fuse if hybrid, then drop/sort/
// dedupe/truncate.
func (e *Engine) Retrieve(ctx context.Context, q Query) ([]Result, error) {
	start := time.Now()
	defer func() { e.metrics.RecordRetrieval(string(q.Mode), time.Since(start)) }()

	if err := validate(q); err != nil {
		return nil, err
	}

	var semantic, keyword map[string]Result
	var err error

	switch q.Mode {
	case ModeSemantic:
		semantic, err = e.semanticBranch(ctx, q)
	case ModeKeyword:
		keyword, err = e.keywordBranch(ctx, q)
	case ModeHybrid:
		semantic, err = e.semanticBranch(ctx, q)
		if err == nil {
			keyword, err = e.keywordBranch(ctx, q)
		}
	}
	if err != nil {
		return nil, err
	}

	fused := fuse(semantic, keyword, q.Mode, e.cfg)
	final := postProcess(fused, q.Limit, q.Threshold)
	if err := e.fillContent(ctx, final); err != nil {
		return nil, err
	}
	return final, nil
}

// fillContent populates Content for results the semantic branch
// produced, which carries no chunk text -- only the keyword branch
// reads it off the chunk store directly.
func (e *Engine) fillContent(ctx context.Context, results []Result) error {
	var missing []string
	for _, r := range results {
		if r.Content == "" {
			missing = append(missing, r.ChunkID)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	found, err := e.chunkStore.FindByIDs(ctx, missing)
	if err != nil {
		return apperror.Wrap(apperror.ExternalService, "fetch chunk content", err)
	}
	byID := make(map[string]string, len(found))
	for _, c := range found {
		byID[c.ID] = c.Content
	}
	for i, r := range results {
		if r.Content == "" {
			results[i].Content = byID[r.ChunkID]
		}
	}
	return nil
}

func validate(q Query) error {
	if q.QueryText == "" {
		return apperror.New(apperror.Validation, "query_text must not be empty")
	}
	if len(q.QueryText) > 1000 {
		return apperror.New(apperror.Validation, "query_text must be at most 1000 characters")
	}
	switch q.Mode {
	case ModeSemantic, ModeKeyword, ModeHybrid:
	default:
		return apperror.New(apperror.Validation, "mode must be one of semantic, keyword, hybrid").
			WithDetails(map[string]any{"mode": string(q.Mode)})
	}
	if q.Limit < 1 || q.Limit > 100 {
		return apperror.New(apperror.Validation, "limit must be in [1, 100]")
	}
	if q.Threshold < 0 || q.Threshold > 1 {
		return apperror.New(apperror.Validation, "threshold must be in [0, 1]")
	}
	return nil
}

// fuse combines the branch maps per mode: for hybrid, a chunk missing
// from one branch contributes 0 for that branch's term.
func fuse(semantic, keyword map[string]Result, mode Mode, cfg Config) map[string]Result {
	if mode != ModeHybrid {
		if semantic != nil {
			return semantic
		}
		return keyword
	}

	out := make(map[string]Result, len(semantic)+len(keyword))
	for id, r := range semantic {
		r.Score = r.Score * cfg.SemanticWeight
		out[id] = r
	}
	for id, r := range keyword {
		existing, ok := out[id]
		if !ok {
			r.Score = r.Score * cfg.KeywordWeight
			out[id] = r
			continue
		}
		existing.Score += r.Score * cfg.KeywordWeight
		out[id] = existing
	}
	return out
}

// postProcess drops scores below threshold, sorts descending, dedupes
// by document_id keeping the highest-scored chunk, and truncates to
// limit.
func postProcess(scored map[string]Result, limit int, threshold float32) []Result {
	all := make([]Result, 0, len(scored))
	for _, r := range scored {
		if r.Score < threshold {
			continue
		}
		all = append(all, r)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Score != all[j].Score {
			return all[i].Score > all[j].Score
		}
		return all[i].ChunkID < all[j].ChunkID
	})

	seen := make(map[string]bool, len(all))
	out := make([]Result, 0, limit)
	for _, r := range all {
		if seen[r.DocumentID] {
			continue
		}
		seen[r.DocumentID] = true
		out = append(out, r)
		if len(out) == limit {
			break
		}
	}
	return out
}
