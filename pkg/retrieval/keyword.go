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
	"regexp"
	"strings"

	"github.com/ragwell/corpus/pkg/apperror"
	"github.com/ragwell/corpus/pkg/vectorindex"
)

const (
	maxQueryTokens = 10
	minTokenLength = 3
	scrollPageSize = 200
)

var wordRegex = regexp.MustCompile(`[\p{L}\p{N}]+`)

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"is": true, "are": true, "was": true, "were": true, "be": true, "been": true,
	"of": true, "to": true, "in": true, "on": true, "at": true, "for": true,
	"with": true, "by": true, "this": true, "that": true, "it": true, "as": true,
	"from": true, "into": true, "about": true, "than": true, "then": true,
}

// tokenizeQuery lowercases, strips non-word characters, removes a
// small stop-word set, drops tokens shorter than minTokenLength, and
// caps the result at maxQueryTokens -- spec.md §4.J step 3, applied
// verbatim.
func tokenizeQuery(text string) []string {
	words := wordRegex.FindAllString(strings.ToLower(text), -1)
	out := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) < minTokenLength || stopWords[w] {
			continue
		}
		out = append(out, w)
		if len(out) == maxQueryTokens {
			break
		}
	}
	return out
}

// keywordBranch scans the vector index's payload scroll within
// filters, fetches each candidate's content from the chunk store, and
// scores it by Σ_tok count(tok in content) / len(content words).
// Positive scores only; the returned map is unordered (Retrieve sorts).
func (e *Engine) keywordBranch(ctx context.Context, q Query) (map[string]Result, error) {
	tokens := tokenizeQuery(q.QueryText)
	if len(tokens) == 0 {
		return map[string]Result{}, nil
	}

	points, err := e.scanAll(ctx, q.Filters)
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return map[string]Result{}, nil
	}

	ids := make([]string, 0, len(points))
	byChunkID := make(map[string]vectorindex.Point, len(points))
	for _, p := range points {
		ids = append(ids, p.Payload.ChunkID)
		byChunkID[p.Payload.ChunkID] = p
	}

	matched, err := e.chunkStore.FindByIDs(ctx, ids)
	if err != nil {
		return nil, apperror.Wrap(apperror.ExternalService, "fetch chunk content", err)
	}

	out := make(map[string]Result)
	for _, c := range matched {
		words := wordRegex.FindAllString(strings.ToLower(c.Content), -1)
		if len(words) == 0 {
			continue
		}
		counts := make(map[string]int, len(words))
		for _, w := range words {
			counts[w]++
		}

		var score float32
		for _, tok := range tokens {
			score += float32(counts[tok]) / float32(len(words))
		}
		if score <= 0 {
			continue
		}

		point := byChunkID[c.ID]
		out[c.ID] = Result{
			ChunkID:    c.ID,
			DocumentID: c.DocumentID,
			Content:    c.Content,
			Score:      score,
			Payload:    point.Payload,
		}
	}
	return out, nil
}

// scanAll pages through Scroll until every matching point is
// collected.
func (e *Engine) scanAll(ctx context.Context, filter vectorindex.Filter) ([]vectorindex.Point, error) {
	var all []vectorindex.Point
	offset := ""
	for {
		page, err := e.vectors.Scroll(ctx, e.collection, filter, scrollPageSize, offset)
		if err != nil {
			return nil, apperror.Wrap(apperror.ExternalService, "scroll vector index", err)
		}
		all = append(all, page.Points...)
		if page.NextOffset == "" {
			break
		}
		offset = page.NextOffset
	}
	return all, nil
}
