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

// Package dedup collapses near-duplicate chunks within one document so
// the retrieval engine never surfaces the same paragraph twice. Exact
// duplicates are grouped by content hash; an optional single-link
// semantic pass on embedding cosine similarity catches paraphrased or
// reformatted repeats the hash pass misses.
package dedup

import (
	"context"
	"sort"

	"github.com/ragwell/corpus/pkg/chunks"
	"github.com/ragwell/corpus/pkg/vectorindex"
)

// Config tunes the dedup pass. New applies SetDefaults to the Config
// it is given.
type Config struct {
	// UseContentHash groups chunks whose normalised content hashes
	// identically. Default on.
	UseContentHash bool

	// UseSemanticSimilarity extends grouping with single-link
	// clustering over embedding cosine similarity, restricted to
	// chunks the hash pass left ungrouped. Default off: it requires
	// every candidate chunk to already carry an embedding.
	UseSemanticSimilarity bool

	// SimilarityThreshold is the minimum cosine similarity for two
	// chunks to join the same semantic cluster.
	SimilarityThreshold float32

	// Collection is the vector index collection chunk embeddings live
	// in, needed to fetch vectors for the semantic pass and to delete
	// a duplicate's vector alongside its chunk row.
	Collection string
}

// SetDefaults fills the zero-value fields of cfg with spec defaults:
// content-hash grouping on, semantic similarity off, threshold 0.95.
func (cfg *Config) SetDefaults() {
	cfg.UseContentHash = true
	if cfg.SimilarityThreshold == 0 {
		cfg.SimilarityThreshold = 0.95
	}
}

// Engine runs the dedup algorithm for one document at a time.
type Engine struct {
	chunks  chunks.Store
	vectors vectorindex.Index
	cfg     Config
}

// New constructs an Engine, applying SetDefaults to cfg, so content-
// hash grouping is always on.
func New(chunkStore chunks.Store, vectors vectorindex.Index, cfg Config) *Engine {
	cfg.SetDefaults()
	return &Engine{chunks: chunkStore, vectors: vectors, cfg: cfg}
}

// Run executes the dedup algorithm from spec.md §4.I for documentID:
// build groups (exact hash, optionally extended by semantic
// clustering), pick one representative per group by earliest
// created_at (ties broken by smaller sequence_number), and remove the
// rest from both stores. It satisfies the Job Engine's Deduplicator
// contract structurally (no import of pkg/jobengine is needed).
func (e *Engine) Run(ctx context.Context, documentID string) (removedCount, groupsCount int, err error) {
	all, err := e.chunks.FindByDocument(ctx, documentID)
	if err != nil {
		return 0, 0, err
	}
	if len(all) == 0 {
		return 0, 0, nil
	}

	groups := e.buildGroups(ctx, all)
	if len(groups) == 0 {
		return 0, 0, nil
	}

	var duplicateIDs []string
	var duplicateEmbeddingIDs []string
	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		representative := pickRepresentative(group)
		for _, c := range group {
			if c.ID == representative.ID {
				continue
			}
			duplicateIDs = append(duplicateIDs, c.ID)
			if c.HasEmbedding() {
				duplicateEmbeddingIDs = append(duplicateEmbeddingIDs, *c.EmbeddingID)
			}
		}
	}

	if len(duplicateIDs) == 0 {
		return 0, len(groups), nil
	}

	// Delete vectors before chunk rows: if the chunk delete below
	// fails partway, the vectors for the not-yet-deleted duplicates
	// are already gone, so a re-run's semantic pass simply treats them
	// as unembedded rather than reviving the duplicate group -- the
	// hash pass is unaffected either way.
	if len(duplicateEmbeddingIDs) > 0 {
		if err := e.vectors.Delete(ctx, e.cfg.Collection, duplicateEmbeddingIDs); err != nil {
			return 0, 0, err
		}
	}
	if err := e.chunks.DeleteBatch(ctx, duplicateIDs); err != nil {
		return 0, 0, err
	}

	return len(duplicateIDs), len(groups), nil
}

// buildGroups returns every group of size > 1 found across the
// content-hash pass and, if enabled, the semantic pass over the chunks
// the hash pass left singleton.
func (e *Engine) buildGroups(ctx context.Context, all []*chunks.Chunk) [][]*chunks.Chunk {
	var groups [][]*chunks.Chunk
	grouped := make(map[string]bool, len(all))

	if e.cfg.UseContentHash {
		byHash := make(map[string][]*chunks.Chunk)
		for _, c := range all {
			hash := c.ContentHash
			if hash == "" {
				hash = chunks.ContentHashOf(c.Content)
			}
			byHash[hash] = append(byHash[hash], c)
		}
		for _, group := range byHash {
			if len(group) > 1 {
				sortByID(group)
				groups = append(groups, group)
				for _, c := range group {
					grouped[c.ID] = true
				}
			}
		}
	}

	if e.cfg.UseSemanticSimilarity {
		var ungrouped []*chunks.Chunk
		for _, c := range all {
			if !grouped[c.ID] && c.HasEmbedding() {
				ungrouped = append(ungrouped, c)
			}
		}
		groups = append(groups, e.semanticClusters(ctx, ungrouped)...)
	}

	return groups
}

// pickRepresentative picks the group member with the smallest
// CreatedAt, breaking ties with the smaller SequenceNumber.
func pickRepresentative(group []*chunks.Chunk) *chunks.Chunk {
	best := group[0]
	for _, c := range group[1:] {
		if c.CreatedAt.Before(best.CreatedAt) {
			best = c
			continue
		}
		if c.CreatedAt.Equal(best.CreatedAt) && c.SequenceNumber < best.SequenceNumber {
			best = c
		}
	}
	return best
}

// sortByID gives deterministic iteration order over a chunk slice
// where map iteration would otherwise be random, so repeated runs over
// unchanged input pick the same representative every time.
func sortByID(group []*chunks.Chunk) {
	sort.Slice(group, func(i, j int) bool { return group[i].ID < group[j].ID })
}
