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

// Package chunks persists TextChunk fragments produced by the chunker
// stage and consumed by the embed, dedup, and retrieval stages.
package chunks

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Kind identifies which chunking strategy produced a chunk.
type Kind string

const (
	KindParagraph Kind = "paragraph"
	KindSentence  Kind = "sentence"
	KindFixedSize Kind = "fixed_size"
	KindSemantic  Kind = "semantic"
)

// Chunk is one fragment of a document's text.
type Chunk struct {
	ID             string
	DocumentID     string
	UserID         string
	Content        string
	Kind           Kind
	SequenceNumber int
	StartOffset    int
	EndOffset      int
	ContentHash    string
	Metadata       map[string]any
	EmbeddingID    *string
	CreatedAt      time.Time
}

// HasEmbedding reports whether an embedding has been indexed for this
// chunk.
func (c *Chunk) HasEmbedding() bool {
	return c.EmbeddingID != nil && *c.EmbeddingID != ""
}

// NormalizeWhitespace collapses runs of whitespace to a single space
// and trims the result, so two chunks that differ only in spacing hash
// identically for the dedup engine's hash-group pass.
func NormalizeWhitespace(content string) string {
	return strings.Join(strings.Fields(content), " ")
}

// ContentHashOf hashes content's whitespace-normalised form; both the
// chunk stage (on write) and the dedup engine (on comparison) use this
// so a chunk's ContentHash is stable regardless of incidental spacing.
func ContentHashOf(content string) string {
	sum := sha256.Sum256([]byte(NormalizeWhitespace(content)))
	return hex.EncodeToString(sum[:])
}
