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

	"github.com/ragwell/corpus/pkg/apperror"
	"github.com/ragwell/corpus/pkg/embedding"
)

// semanticBranch embeds the query with the corpus's embedder and asks
// the vector index for its nearest neighbors, already scored in
// [0, 1] and filtered.
func (e *Engine) semanticBranch(ctx context.Context, q Query) (map[string]Result, error) {
	results, err := e.embedder.EmbedBatch(ctx, []string{q.QueryText}, embedding.Options{})
	if err != nil {
		return nil, apperror.Wrap(apperror.ExternalService, "embed query", err)
	}
	if len(results) == 0 {
		return nil, apperror.New(apperror.Internal, "embedder returned no result for query")
	}

	hits, err := e.vectors.Search(ctx, e.collection, results[0].Vector, q.Limit, q.Threshold, q.Filters)
	if err != nil {
		return nil, apperror.Wrap(apperror.ExternalService, "search vector index", err)
	}

	out := make(map[string]Result, len(hits))
	for _, hit := range hits {
		out[hit.Payload.ChunkID] = Result{
			ChunkID:    hit.Payload.ChunkID,
			DocumentID: hit.Payload.DocumentID,
			Score:      hit.Score,
			Payload:    hit.Payload,
		}
	}
	return out, nil
}
