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

// Package chunking splits extracted document text into an ordered
// sequence of fragments. Every Chunker produces byte-offset spans
// (start/end index the original UTF-8 text the way Go's native string
// indexing does, so they equal character offsets only for ASCII
// text) rather than the
// line-offsets a source-code-aware chunker would use, since the
// pipeline chunks arbitrary prose, not Go source.
package chunking

import (
	"fmt"
	"strings"
)

// Strategy names one of the four chunking policies.
type Strategy string

const (
	StrategyFixedSize Strategy = "fixed_size"
	StrategyParagraph Strategy = "paragraph"
	StrategySentence  Strategy = "sentence"
	StrategySemantic  Strategy = "semantic"
)

// Chunk is one fragment produced by a Chunker. Start/End index the
// original text such that text[Start:End] == Content for every
// strategy except semantic, which may coalesce or trim at its
// coherence-preserving boundaries.
type Chunk struct {
	Content  string
	Start    int
	End      int
	Index    int
	Total    int
	Metadata map[string]string
}

// Config controls every chunker's behavior. Not every field applies
// to every strategy; each Chunker documents which ones it reads.
type Config struct {
	Strategy      Strategy
	ChunkSize     int // target/maximum fragment size in bytes
	Overlap       int // fixed_size stride overlap
	MinChunkSize  int // runs shorter than this are merged forward
	MaxChunkSize  int // hard ceiling; no produced chunk may exceed it
	PreserveWords bool
}

// DefaultConfig returns the spec's default sizing: 1000-char chunks,
// 200-char overlap, a 100-char minimum, and a 2000-char ceiling.
func DefaultConfig() Config {
	return Config{
		Strategy:      StrategyFixedSize,
		ChunkSize:     1000,
		Overlap:       200,
		MinChunkSize:  100,
		MaxChunkSize:  2000,
		PreserveWords: true,
	}
}

// SetDefaults replaces a non-positive ChunkSize, MinChunkSize or
// MaxChunkSize, and a negative Overlap, with the defaults above. A zero
// Overlap is kept as given; Strategy and PreserveWords are not touched.
func (c *Config) SetDefaults() {
	d := DefaultConfig()
	if c.ChunkSize <= 0 {
		c.ChunkSize = d.ChunkSize
	}
	if c.Overlap < 0 {
		c.Overlap = d.Overlap
	}
	if c.MinChunkSize <= 0 {
		c.MinChunkSize = d.MinChunkSize
	}
	if c.MaxChunkSize <= 0 {
		c.MaxChunkSize = d.MaxChunkSize
	}
}

// Validate checks that Config's fields form a coherent configuration.
func (c Config) Validate() error {
	switch c.Strategy {
	case StrategyFixedSize, StrategyParagraph, StrategySentence, StrategySemantic:
	default:
		return fmt.Errorf("chunking: unknown strategy %q", c.Strategy)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunking: chunk_size must be > 0")
	}
	if c.Overlap < 0 || c.Overlap >= c.ChunkSize {
		return fmt.Errorf("chunking: overlap must be >= 0 and < chunk_size")
	}
	if c.MinChunkSize > c.ChunkSize {
		return fmt.Errorf("chunking: min_chunk_size must be <= chunk_size")
	}
	if c.MaxChunkSize < c.ChunkSize {
		return fmt.Errorf("chunking: max_chunk_size must be >= chunk_size")
	}
	return nil
}

// Chunker splits text into an ordered sequence of fragments.
type Chunker interface {
	// Chunk splits content per the chunker's policy. It never returns
	// a chunk with empty content, and every chunk's length is within
	// (0, Config().MaxChunkSize].
	Chunk(content string) ([]Chunk, error)
	Strategy() Strategy
	Config() Config
}

// New builds the Chunker named by cfg.Strategy.
func New(cfg Config) (Chunker, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Strategy {
	case StrategyFixedSize:
		return NewFixedSizeChunker(cfg), nil
	case StrategyParagraph:
		return NewParagraphChunker(cfg), nil
	case StrategySentence:
		return NewSentenceChunker(cfg), nil
	case StrategySemantic:
		return NewSemanticChunker(cfg), nil
	default:
		return nil, fmt.Errorf("chunking: unknown strategy %q", cfg.Strategy)
	}
}

// singleChunk wraps the entire content as one chunk, used whenever
// content already fits within a single fragment.
func singleChunk(content string) []Chunk {
	return []Chunk{{
		Content: content,
		Start:   0,
		End:     len(content),
		Index:   0,
		Total:   1,
	}}
}

// finalizeIndices stamps Index/Total across a finished chunk slice.
func finalizeIndices(chunks []Chunk) []Chunk {
	total := len(chunks)
	for i := range chunks {
		chunks[i].Index = i
		chunks[i].Total = total
	}
	return chunks
}

// trimToWordBoundary pulls end back to the nearest preceding space so
// a fragment never splits a word, unless that would empty the chunk.
func trimToWordBoundary(content string, start, end int) int {
	if end >= len(content) {
		return end
	}
	if content[end] == ' ' || content[end] == '\n' || content[end] == '\t' {
		return end
	}
	cut := strings.LastIndexAny(content[start:end], " \n\t")
	if cut <= 0 {
		return end
	}
	return start + cut
}
