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

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ragwell/corpus/pkg/apperror"
)

// MemStore is an in-process Store for tests, implementing the same
// (document_id, content_hash) scan contract as SQLStore.
type MemStore struct {
	mu     sync.Mutex
	chunks map[string]*Chunk
}

// NewMemStore returns an empty in-memory chunk store.
func NewMemStore() *MemStore {
	return &MemStore{chunks: make(map[string]*Chunk)}
}

func cloneChunk(c *Chunk) *Chunk {
	out := *c
	if c.EmbeddingID != nil {
		id := *c.EmbeddingID
		out.EmbeddingID = &id
	}
	if c.Metadata != nil {
		out.Metadata = make(map[string]any, len(c.Metadata))
		for k, v := range c.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

func (s *MemStore) Save(ctx context.Context, chunk *Chunk) error {
	return s.SaveBatch(ctx, []*Chunk{chunk})
}

func (s *MemStore) SaveBatch(ctx context.Context, batch []*Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for _, c := range batch {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		s.chunks[c.ID] = cloneChunk(c)
	}
	return nil
}

func (s *MemStore) FindByID(ctx context.Context, id string) (*Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chunks[id]
	if !ok {
		return nil, apperror.New(apperror.NotFound, "chunk not found").WithDetails(map[string]any{"chunk_id": id})
	}
	return cloneChunk(c), nil
}

func (s *MemStore) FindByIDs(ctx context.Context, ids []string) ([]*Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Chunk
	for _, id := range ids {
		if c, ok := s.chunks[id]; ok {
			out = append(out, cloneChunk(c))
		}
	}
	return out, nil
}

func (s *MemStore) FindByDocument(ctx context.Context, documentID string) ([]*Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Chunk
	for _, c := range s.chunks {
		if c.DocumentID == documentID {
			out = append(out, cloneChunk(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SequenceNumber < out[j].SequenceNumber })
	return out, nil
}

func (s *MemStore) FindByContentHash(ctx context.Context, documentID, contentHash string) ([]*Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Chunk
	for _, c := range s.chunks {
		if c.DocumentID == documentID && c.ContentHash == contentHash {
			out = append(out, cloneChunk(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SequenceNumber < out[j].SequenceNumber })
	return out, nil
}

func (s *MemStore) SetEmbeddingID(ctx context.Context, id, embeddingID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chunks[id]
	if !ok {
		return apperror.New(apperror.NotFound, "chunk not found").WithDetails(map[string]any{"chunk_id": id})
	}
	if c.EmbeddingID != nil {
		return apperror.New(apperror.BusinessRule, "chunk already has an embedding_id").WithDetails(map[string]any{"chunk_id": id})
	}
	c.EmbeddingID = &embeddingID
	return nil
}

func (s *MemStore) DeleteBatch(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		delete(s.chunks, id)
	}
	return nil
}

func (s *MemStore) CountByDocument(ctx context.Context, documentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, c := range s.chunks {
		if c.DocumentID == documentID {
			count++
		}
	}
	return count, nil
}

func (s *MemStore) Close() error { return nil }
