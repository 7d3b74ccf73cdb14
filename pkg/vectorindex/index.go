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

// Package vectorindex abstracts the vector database behind a single
// contract so the retrieval and indexing stages never depend on a
// specific backend.
package vectorindex

import (
	"context"
	"time"
)

// Payload is the structured metadata carried by every point: what
// document and chunk it came from, plus any caller-supplied metadata.
type Payload struct {
	DocumentID   string
	ChunkID      string
	Source       string
	Page         int
	ChunkIndex   int
	CreatedAt    time.Time
	UserMetadata map[string]any
}

// Point is one vector entry: an id, its embedding, and its payload.
type Point struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// Op is a filter comparison operator.
type Op string

const (
	OpEq  Op = "eq"
	OpGte Op = "gte"
	OpLte Op = "lte"
	OpGt  Op = "gt"
	OpLt  Op = "lt"
)

// Condition is one leaf of a filter's boolean conjunction. Path
// addresses either a top-level payload field ("document_id") or a
// nested user_metadata field ("user_metadata.tag").
type Condition struct {
	Path  string
	Op    Op
	Value any
}

// Filter is a boolean-AND of Conditions. An empty Filter matches
// everything.
type Filter struct {
	Conditions []Condition
}

// Match reports whether payload satisfies every condition in f.
func (f Filter) Match(p Payload) bool {
	for _, c := range f.Conditions {
		if !c.match(p) {
			return false
		}
	}
	return true
}

// SearchResult is one scored match from Search.
type SearchResult struct {
	ID      string
	Score   float32
	Vector  []float32
	Payload Payload
}

// ScrollPage is one page of Scroll results plus a cursor for the next.
type ScrollPage struct {
	Points     []Point
	NextOffset string
}

// Index is the vector database contract: upsert, similarity search,
// unordered full scan, point lookup, and deletion. Distance metric is
// cosine; Search scores are normalized to [0, 1] where 1 is closest.
type Index interface {
	// EnsureCollection creates the named collection with the given
	// vector dimension if it doesn't already exist. Idempotent.
	EnsureCollection(ctx context.Context, collection string, dimension int) error

	Upsert(ctx context.Context, collection string, points []Point) error

	// Search returns up to k nearest neighbors of query, optionally
	// restricted to results scoring at least scoreThreshold and
	// matching filter.
	Search(ctx context.Context, collection string, query []float32, k int, scoreThreshold float32, filter Filter) ([]SearchResult, error)

	// Scroll returns an unordered page of up to pageSize points
	// matching filter, for callers that need every match rather than
	// the top-k (the keyword-retrieval branch, dedup's vector cleanup).
	// Pass the previous page's NextOffset to continue; "" starts from
	// the beginning. NextOffset is "" on the final page.
	Scroll(ctx context.Context, collection string, filter Filter, pageSize int, offset string) (ScrollPage, error)

	Get(ctx context.Context, collection string, ids []string) ([]Point, error)

	Delete(ctx context.Context, collection string, ids []string) error

	Close() error
}
