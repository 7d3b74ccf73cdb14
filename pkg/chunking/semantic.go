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
	"strings"
)

// SemanticChunker produces coherence-preserving splits: it accumulates
// content up to the target chunk_size, then looks forward, no further
// than max_chunk_size, for a paragraph or sentence boundary to break on, generalized
// from the teacher's SemanticChunker good-break-point heuristic
// (which looks for Go source boundaries like blank lines and closing
// braces) to the prose boundaries a document chunker actually sees:
// blank lines and sentence terminators. It force-splits at a word
// boundary if no such boundary is found before max_chunk_size.
type SemanticChunker struct {
	config Config
}

// NewSemanticChunker returns a semantic chunker.
func NewSemanticChunker(cfg Config) *SemanticChunker {
	cfg.SetDefaults()
	return &SemanticChunker{config: cfg}
}

func (c *SemanticChunker) Strategy() Strategy { return StrategySemantic }

func (c *SemanticChunker) Config() Config { return c.config }

func (c *SemanticChunker) Chunk(content string) ([]Chunk, error) {
	if len(content) == 0 {
		return nil, nil
	}
	if len(content) <= c.config.ChunkSize {
		return singleChunk(content), nil
	}

	var chunks []Chunk
	start := 0

	for start < len(content) {
		target := start + c.config.ChunkSize
		ceiling := start + c.config.MaxChunkSize
		if ceiling > len(content) {
			ceiling = len(content)
		}
		if target >= len(content) {
			end := start + len(strings.TrimRight(content[start:], " \n\t"))
			if end > start {
				chunks = append(chunks, Chunk{Content: content[start:end], Start: start, End: end})
			}
			break
		}

		end := findCoherenceBoundary(content, start, target, ceiling)
		if c.config.PreserveWords {
			end = trimToWordBoundary(content, start, end)
		}
		if end <= start {
			end = target
			if end > len(content) {
				end = len(content)
			}
		}

		chunks = append(chunks, Chunk{Content: content[start:end], Start: start, End: end})
		start = end
		for start < len(content) && (content[start] == ' ' || content[start] == '\n' || content[start] == '\t') {
			start++
		}
	}

	return finalizeIndices(chunks), nil
}

var _ Chunker = (*SemanticChunker)(nil)

// findCoherenceBoundary looks in [target, ceiling) for the first
// blank-line boundary, else the first sentence-terminator boundary,
// else the last whitespace; if none exists it falls back to target
// itself, so the chunk never exceeds max_chunk_size.
func findCoherenceBoundary(content string, start, target, ceiling int) int {
	if loc := blankLinePattern.FindStringIndex(content[target:ceiling]); loc != nil {
		return target + loc[0]
	}

	window := content[target:ceiling]
	for i := 0; i < len(window); i++ {
		c := window[i]
		if c != '.' && c != '!' && c != '?' {
			continue
		}
		pos := target + i + 1
		if isSentenceBoundary(content, pos) && !isAbbreviation(content[start:target+i]) {
			return pos
		}
	}

	if idx := strings.LastIndexAny(content[target:ceiling], " \n\t"); idx > 0 {
		return target + idx
	}

	return target
}
