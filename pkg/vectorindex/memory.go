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

package vectorindex

import (
	"context"
	"math"
	"sort"
	"strconv"
	"sync"

	"github.com/ragwell/corpus/pkg/apperror"
)

// MemoryIndex is an in-process Index for tests that don't need a live
// vector database. Cosine similarity is computed directly; Scroll
// orders by id so pagination is stable across pages.
type MemoryIndex struct {
	mu          sync.Mutex
	collections map[string]map[string]Point
}

// NewMemoryIndex returns an empty in-memory vector index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{collections: make(map[string]map[string]Point)}
}

func (idx *MemoryIndex) EnsureCollection(ctx context.Context, collection string, dimension int) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, ok := idx.collections[collection]; !ok {
		idx.collections[collection] = make(map[string]Point)
	}
	return nil
}

func (idx *MemoryIndex) Upsert(ctx context.Context, collection string, points []Point) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	coll, ok := idx.collections[collection]
	if !ok {
		coll = make(map[string]Point)
		idx.collections[collection] = coll
	}
	for _, p := range points {
		coll[p.ID] = p
	}
	return nil
}

func (idx *MemoryIndex) Search(ctx context.Context, collection string, query []float32, k int, scoreThreshold float32, filter Filter) ([]SearchResult, error) {
	idx.mu.Lock()
	coll := idx.collections[collection]
	points := make([]Point, 0, len(coll))
	for _, p := range coll {
		points = append(points, p)
	}
	idx.mu.Unlock()

	var results []SearchResult
	for _, p := range points {
		if !filter.Match(p.Payload) {
			continue
		}
		score := cosineSimilarity(query, p.Vector)
		if score < scoreThreshold {
			continue
		}
		results = append(results, SearchResult{ID: p.ID, Score: score, Vector: p.Vector, Payload: p.Payload})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (idx *MemoryIndex) Scroll(ctx context.Context, collection string, filter Filter, pageSize int, offset string) (ScrollPage, error) {
	idx.mu.Lock()
	coll := idx.collections[collection]
	var ids []string
	for id := range coll {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var matched []Point
	for _, id := range ids {
		p := coll[id]
		if filter.Match(p.Payload) {
			matched = append(matched, p)
		}
	}
	idx.mu.Unlock()

	start := 0
	if offset != "" {
		n, err := strconv.Atoi(offset)
		if err != nil {
			return ScrollPage{}, apperror.New(apperror.Validation, "invalid scroll offset").WithDetails(map[string]any{"offset": offset})
		}
		start = n
	}
	if start > len(matched) {
		start = len(matched)
	}

	end := start + pageSize
	if pageSize <= 0 || end > len(matched) {
		end = len(matched)
	}

	page := ScrollPage{Points: matched[start:end]}
	if end < len(matched) {
		page.NextOffset = strconv.Itoa(end)
	}
	return page, nil
}

func (idx *MemoryIndex) Get(ctx context.Context, collection string, ids []string) ([]Point, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	coll := idx.collections[collection]
	var out []Point
	for _, id := range ids {
		if p, ok := coll[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (idx *MemoryIndex) Delete(ctx context.Context, collection string, ids []string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	coll := idx.collections[collection]
	if coll == nil {
		return nil
	}
	for _, id := range ids {
		delete(coll, id)
	}
	return nil
}

func (idx *MemoryIndex) Close() error { return nil }

func cosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// Map cosine similarity from [-1, 1] onto the [0, 1] score scale
	// as (cos+1)/2, then clamp against rounding.
	normalized := (cos + 1) / 2
	if normalized < 0 {
		normalized = 0
	}
	if normalized > 1 {
		normalized = 1
	}
	return float32(normalized)
}
