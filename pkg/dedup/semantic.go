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
	"math"

	"github.com/ragwell/corpus/pkg/chunks"
)

// semanticClusters groups candidates by single-link clustering on
// embedding cosine similarity: any two chunks whose vectors score at
// least cfg.SimilarityThreshold join the same cluster, transitively.
// Only clusters of size > 1 are returned. Candidates without a fetched
// vector (fetch failure or a stale embedding_id) are left ungrouped.
func (e *Engine) semanticClusters(ctx context.Context, candidates []*chunks.Chunk) [][]*chunks.Chunk {
	if len(candidates) < 2 {
		return nil
	}

	ids := make([]string, 0, len(candidates))
	byEmbeddingID := make(map[string]*chunks.Chunk, len(candidates))
	for _, c := range candidates {
		ids = append(ids, *c.EmbeddingID)
		byEmbeddingID[*c.EmbeddingID] = c
	}

	points, err := e.vectors.Get(ctx, e.cfg.Collection, ids)
	if err != nil || len(points) < 2 {
		return nil
	}

	vectorOf := make(map[string][]float32, len(points))
	for _, p := range points {
		vectorOf[p.ID] = p.Vector
	}

	uf := newUnionFind(len(candidates))
	for i := 0; i < len(candidates); i++ {
		vi, ok := vectorOf[*candidates[i].EmbeddingID]
		if !ok {
			continue
		}
		for j := i + 1; j < len(candidates); j++ {
			vj, ok := vectorOf[*candidates[j].EmbeddingID]
			if !ok {
				continue
			}
			if cosineSimilarity(vi, vj) >= e.cfg.SimilarityThreshold {
				uf.union(i, j)
			}
		}
	}

	byRoot := make(map[int][]*chunks.Chunk)
	for i, c := range candidates {
		root := uf.find(i)
		byRoot[root] = append(byRoot[root], c)
	}

	var clusters [][]*chunks.Chunk
	for _, cluster := range byRoot {
		if len(cluster) > 1 {
			sortByID(cluster)
			clusters = append(clusters, cluster)
		}
	}
	return clusters
}

// cosineSimilarity scores two equal-length vectors; mismatched lengths
// or zero-magnitude vectors score 0.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(magA) * math.Sqrt(magB)))
}

// unionFind is a standard disjoint-set structure with path compression
// and union by rank, used to merge pairwise similarity edges into
// transitive clusters.
type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	return &unionFind{parent: parent, rank: make([]int, n)}
}

func (u *unionFind) find(x int) int {
	if u.parent[x] != x {
		u.parent[x] = u.find(u.parent[x])
	}
	return u.parent[x]
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	switch {
	case u.rank[ra] < u.rank[rb]:
		u.parent[ra] = rb
	case u.rank[ra] > u.rank[rb]:
		u.parent[rb] = ra
	default:
		u.parent[rb] = ra
		u.rank[ra]++
	}
}
