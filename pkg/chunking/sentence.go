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

// commonAbbreviations lists trailing tokens whose period is not a
// sentence terminator, so "Dr. Smith arrived." doesn't split after
// "Dr.". Lowercased for case-insensitive matching.
var commonAbbreviations = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true, "prof": true,
	"sr": true, "jr": true, "vs": true, "etc": true, "inc": true,
	"ltd": true, "co": true, "st": true, "e.g": true, "i.e": true,
	"fig": true, "no": true, "vol": true, "approx": true,
}

// SentenceChunker splits on sentence terminators (. ! ?) followed by
// whitespace and a capital or digit, skipping terminators that follow
// a known abbreviation, then merges short runs forward via the same
// helper ParagraphChunker uses.
type SentenceChunker struct {
	config Config
}

// NewSentenceChunker returns a sentence chunker.
func NewSentenceChunker(cfg Config) *SentenceChunker {
	cfg.SetDefaults()
	return &SentenceChunker{config: cfg}
}

func (c *SentenceChunker) Strategy() Strategy { return StrategySentence }

func (c *SentenceChunker) Config() Config { return c.config }

func (c *SentenceChunker) Chunk(content string) ([]Chunk, error) {
	if len(content) == 0 {
		return nil, nil
	}

	spans := sentenceSpans(content)
	spans = mergeShortSpansForward(content, spans, c.config.MinChunkSize)
	spans = capOversizedSpans(content, spans, c.config.MaxChunkSize, c.config.PreserveWords)

	chunks := make([]Chunk, 0, len(spans))
	for _, s := range spans {
		if s.end <= s.start {
			continue
		}
		trimmed := strings.TrimRight(content[s.start:s.end], " \n\t")
		if trimmed == "" {
			continue
		}
		chunks = append(chunks, Chunk{Content: content[s.start : s.start+len(trimmed)], Start: s.start, End: s.start + len(trimmed)})
	}
	return finalizeIndices(chunks), nil
}

var _ Chunker = (*SentenceChunker)(nil)

// sentenceSpans scans for '.', '!', '?' followed by whitespace and an
// uppercase letter or digit (or end of text), treating the terminator
// as a split point unless the preceding token is a known abbreviation.
func sentenceSpans(content string) []span {
	var spans []span
	start := 0

	for i := 0; i < len(content); i++ {
		c := content[i]
		if c != '.' && c != '!' && c != '?' {
			continue
		}

		end := i + 1
		if end < len(content) && !isSentenceBoundary(content, end) {
			continue
		}
		if c == '.' && isAbbreviation(content[start:i]) {
			continue
		}

		spans = append(spans, span{start, end})
		start = end
		for start < len(content) && (content[start] == ' ' || content[start] == '\n' || content[start] == '\t') {
			start++
		}
		i = start - 1
	}

	if start < len(content) {
		spans = append(spans, span{start, len(content)})
	}
	if len(spans) == 0 {
		return []span{{0, len(content)}}
	}
	return spans
}

// isSentenceBoundary reports whether content[pos:] begins with
// whitespace followed by an uppercase letter or digit, or is the end
// of the text entirely.
func isSentenceBoundary(content string, pos int) bool {
	if pos >= len(content) {
		return true
	}
	if content[pos] != ' ' && content[pos] != '\n' && content[pos] != '\t' {
		return false
	}
	j := pos
	for j < len(content) && (content[j] == ' ' || content[j] == '\n' || content[j] == '\t') {
		j++
	}
	if j >= len(content) {
		return true
	}
	r := content[j]
	return (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// isAbbreviation reports whether the trailing word of sentence is a
// known abbreviation whose period should not be treated as a
// sentence terminator.
func isAbbreviation(sentence string) bool {
	fields := strings.Fields(sentence)
	if len(fields) == 0 {
		return false
	}
	last := strings.ToLower(strings.TrimLeft(fields[len(fields)-1], "([\""))
	return commonAbbreviations[last]
}
