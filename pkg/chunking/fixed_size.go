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

// FixedSizeChunker strides across content in fixed-size windows with
// a configurable overlap, generalized from the teacher's
// OverlappingChunker byte-accumulation loop to byte offsets: the
// teacher advances line-by-line and records StartLine/EndLine, this
// advances stride-by-stride and records Start/End directly.
type FixedSizeChunker struct {
	config Config
}

// NewFixedSizeChunker returns a fixed_size chunker.
func NewFixedSizeChunker(cfg Config) *FixedSizeChunker {
	cfg.SetDefaults()
	return &FixedSizeChunker{config: cfg}
}

func (c *FixedSizeChunker) Strategy() Strategy { return StrategyFixedSize }

func (c *FixedSizeChunker) Config() Config { return c.config }

// Chunk strides by chunk_size - overlap, producing chunks of at most
// chunk_size bytes; the last chunk is short rather than padded.
func (c *FixedSizeChunker) Chunk(content string) ([]Chunk, error) {
	if len(content) <= c.config.ChunkSize {
		if len(content) == 0 {
			return nil, nil
		}
		return singleChunk(content), nil
	}

	stride := c.config.ChunkSize - c.config.Overlap
	if stride <= 0 {
		stride = c.config.ChunkSize
	}

	var chunks []Chunk
	for start := 0; start < len(content); start += stride {
		end := start + c.config.ChunkSize
		if end > len(content) {
			end = len(content)
		}
		if c.config.PreserveWords {
			end = trimToWordBoundary(content, start, end)
		}
		if end <= start {
			end = start + c.config.ChunkSize
			if end > len(content) {
				end = len(content)
			}
		}

		chunks = append(chunks, Chunk{
			Content: content[start:end],
			Start:   start,
			End:     end,
		})

		if end >= len(content) {
			break
		}
	}

	return finalizeIndices(chunks), nil
}

var _ Chunker = (*FixedSizeChunker)(nil)
