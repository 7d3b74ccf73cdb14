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

package chunking

import (
	"regexp"
)

// blankLinePattern splits on one or more blank lines, tolerating
// trailing whitespace on the otherwise-empty separator line.
var blankLinePattern = regexp.MustCompile(`\n[ \t]*\n+`)

// ParagraphChunker splits on blank-line boundaries and merges runs
// shorter than MinChunkSize forward into the following paragraph,
// structurally grounded on the teacher's merge-short-fragments-forward
// shape (chunker_simple.go's good-break-point accumulation) but
// driven by paragraph boundaries the teacher has no equivalent of.
type ParagraphChunker struct {
	config Config
}

// NewParagraphChunker returns a paragraph chunker.
func NewParagraphChunker(cfg Config) *ParagraphChunker {
	cfg.SetDefaults()
	return &ParagraphChunker{config: cfg}
}

func (c *ParagraphChunker) Strategy() Strategy { return StrategyParagraph }

func (c *ParagraphChunker) Config() Config { return c.config }

func (c *ParagraphChunker) Chunk(content string) ([]Chunk, error) {
	if len(content) == 0 {
		return nil, nil
	}

	spans := splitSpans(content, blankLinePattern)
	spans = mergeShortSpansForward(content, spans, c.config.MinChunkSize)
	spans = capOversizedSpans(content, spans, c.config.MaxChunkSize, c.config.PreserveWords)

	chunks := make([]Chunk, 0, len(spans))
	for _, s := range spans {
		if s.end <= s.start {
			continue
		}
		chunks = append(chunks, Chunk{Content: content[s.start:s.end], Start: s.start, End: s.end})
	}
	return finalizeIndices(chunks), nil
}

var _ Chunker = (*ParagraphChunker)(nil)

// span is a half-open [start, end) byte range into the original text.
type span struct {
	start, end int
}

// splitSpans locates sep's matches in content and returns the spans
// of text between them, in order, skipping empty leading/trailing
// spans produced by a separator at the very start or end.
func splitSpans(content string, sep *regexp.Regexp) []span {
	locs := sep.FindAllStringIndex(content, -1)
	spans := make([]span, 0, len(locs)+1)
	cursor := 0
	for _, loc := range locs {
		if loc[0] > cursor {
			spans = append(spans, span{cursor, loc[0]})
		}
		cursor = loc[1]
	}
	if cursor < len(content) {
		spans = append(spans, span{cursor, len(content)})
	}
	if len(spans) == 0 {
		return []span{{0, len(content)}}
	}
	return spans
}

// mergeShortSpansForward folds any span shorter than minSize into the
// following span, since a standalone short fragment is typically a
// heading or caption that reads better attached to what follows it.
// A trailing short span merges backward instead, since there is
// nothing after it to merge into.
func mergeShortSpansForward(content string, spans []span, minSize int) []span {
	if minSize <= 0 || len(spans) <= 1 {
		return spans
	}

	merged := make([]span, 0, len(spans))
	for i := 0; i < len(spans); i++ {
		s := spans[i]
		for s.end-s.start < minSize && i+1 < len(spans) {
			i++
			s.end = spans[i].end
		}
		merged = append(merged, s)
	}

	if len(merged) > 1 {
		last := merged[len(merged)-1]
		if last.end-last.start < minSize {
			merged[len(merged)-2].end = last.end
			merged = merged[:len(merged)-1]
		}
	}

	return merged
}

// capOversizedSpans splits any span exceeding maxSize into maxSize-
// wide slices (word-boundary-trimmed when preserveWords), so the
// spec's "never exceed max_chunk_size" invariant holds even when a
// single paragraph runs long.
func capOversizedSpans(content string, spans []span, maxSize int, preserveWords bool) []span {
	if maxSize <= 0 {
		return spans
	}

	var out []span
	for _, s := range spans {
		for s.end-s.start > maxSize {
			cut := s.start + maxSize
			if preserveWords {
				cut = trimToWordBoundary(content, s.start, cut)
			}
			if cut <= s.start {
				cut = s.start + maxSize
			}
			out = append(out, span{s.start, cut})
			s.start = cut
		}
		out = append(out, s)
	}
	return out
}
