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

package chunks

import "context"

// Store persists and queries TextChunk records. Implementations must
// maintain a (document_id, content_hash) index efficient enough for
// the dedup engine's range scans.
type Store interface {
	Save(ctx context.Context, chunk *Chunk) error

	// SaveBatch persists multiple chunks in a single call. Each chunk's
	// SequenceNumber is stored as given; the caller assigns it.
	SaveBatch(ctx context.Context, chunks []*Chunk) error

	FindByID(ctx context.Context, id string) (*Chunk, error)

	FindByIDs(ctx context.Context, ids []string) ([]*Chunk, error)

	// FindByDocument returns every chunk for a document ordered by
	// SequenceNumber ascending.
	FindByDocument(ctx context.Context, documentID string) ([]*Chunk, error)

	// FindByContentHash returns every chunk sharing contentHash within
	// documentID, the access pattern the dedup engine's hash-group scan
	// relies on.
	FindByContentHash(ctx context.Context, documentID, contentHash string) ([]*Chunk, error)

	// SetEmbeddingID records that chunk id's embedding has been
	// indexed. Must be called at most once per chunk (embedding_id is
	// set exactly when an embedding exists).
	SetEmbeddingID(ctx context.Context, id, embeddingID string) error

	DeleteBatch(ctx context.Context, ids []string) error

	CountByDocument(ctx context.Context, documentID string) (int, error)

	Close() error
}
