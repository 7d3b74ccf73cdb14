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

package jobs

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ragwell/corpus/pkg/apperror"
)

// MemStore is an in-process Store for tests that don't need a live
// database. It implements the same linearisation and atomic-claim
// contract as SQLStore.
type MemStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
}

// NewMemStore returns an empty in-memory job store.
func NewMemStore() *MemStore {
	return &MemStore{jobs: make(map[string]*Job)}
}

func clone(j *Job) *Job {
	c := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	if j.Parameters != nil {
		c.Parameters = make(map[string]any, len(j.Parameters))
		for k, v := range j.Parameters {
			c.Parameters[k] = v
		}
	}
	return &c
}

func (s *MemStore) Save(ctx context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if job.ID == "" {
		job.ID = uuid.NewString()
	}

	existing, ok := s.jobs[job.ID]
	if !ok {
		if job.CreatedAt.IsZero() {
			job.CreatedAt = now
		}
		job.UpdatedAt = now
		s.jobs[job.ID] = clone(job)
		return nil
	}

	if !job.UpdatedAt.Equal(existing.UpdatedAt) {
		return apperror.New(apperror.Conflict, "job was modified concurrently").WithDetails(map[string]any{"job_id": job.ID})
	}

	job.UpdatedAt = now
	s.jobs[job.ID] = clone(job)
	return nil
}

func (s *MemStore) FindByID(ctx context.Context, id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, apperror.New(apperror.NotFound, "job not found").WithDetails(map[string]any{"job_id": id})
	}
	return clone(job), nil
}

func (s *MemStore) FindByDocument(ctx context.Context, documentID string) ([]*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Job
	for _, j := range s.jobs {
		if j.DocumentID == documentID {
			out = append(out, clone(j))
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	return out, nil
}

func (s *MemStore) FindNonTerminalByDocumentKind(ctx context.Context, documentID string, kind Kind) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.findNonTerminalLocked(documentID, kind)
}

func (s *MemStore) findNonTerminalLocked(documentID string, kind Kind) (*Job, error) {
	for _, j := range s.jobs {
		if j.DocumentID == documentID && j.Kind == kind && !j.Status.IsTerminal() {
			return clone(j), nil
		}
	}
	return nil, nil
}

// CreateNonTerminal holds the single lock across the existence check
// and the insert, so no second goroutine can observe "no non-terminal
// job yet" before this one's insert becomes visible.
func (s *MemStore) CreateNonTerminal(ctx context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, _ := s.findNonTerminalLocked(job.DocumentID, job.Kind)
	if existing != nil {
		return apperror.New(apperror.BusinessRule, "a non-terminal job already exists for this document and kind").
			WithDetails(map[string]any{"document_id": job.DocumentID, "kind": string(job.Kind), "existing_job_id": existing.ID})
	}

	now := time.Now().UTC()
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	s.jobs[job.ID] = clone(job)
	return nil
}

func (s *MemStore) FindPending(ctx context.Context, limit int, preferHigherPriority bool) ([]*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Job
	for _, j := range s.jobs {
		if j.Status == StatusPending {
			out = append(out, clone(j))
		}
	}
	sort.Slice(out, func(i, k int) bool {
		if preferHigherPriority && out[i].Priority != out[k].Priority {
			return out[i].Priority > out[k].Priority
		}
		return out[i].CreatedAt.Before(out[k].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemStore) FindRetryableFailures(ctx context.Context, limit int) ([]*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Job
	for _, j := range s.jobs {
		if j.Status == StatusFailed && j.RetryCount < j.MaxRetries {
			out = append(out, clone(j))
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemStore) Claim(ctx context.Context, workerID string, preferHigherPriority bool) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var candidates []*Job
	for _, j := range s.jobs {
		if j.Status == StatusPending {
			candidates = append(candidates, j)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, k int) bool {
		if preferHigherPriority && candidates[i].Priority != candidates[k].Priority {
			return candidates[i].Priority > candidates[k].Priority
		}
		return candidates[i].CreatedAt.Before(candidates[k].CreatedAt)
	})

	now := time.Now().UTC()
	winner := candidates[0]
	winner.Status = StatusProcessing
	winner.StartedAt = &now
	winner.UpdatedAt = now
	return clone(winner), nil
}

func (s *MemStore) UpdateStatus(ctx context.Context, id string, status Status, errMsg string) error {
	s.mu.Lock()
	job, ok := s.jobs[id]
	s.mu.Unlock()
	if !ok {
		return apperror.New(apperror.NotFound, "job not found").WithDetails(map[string]any{"job_id": id})
	}
	if job.Status.IsTerminal() {
		return apperror.New(apperror.BusinessRule, "cannot transition a terminal job").WithDetails(map[string]any{"job_id": id, "status": string(job.Status)})
	}

	now := time.Now().UTC()
	updated := clone(job)
	updated.Status = status
	updated.Error = errMsg
	if status == StatusProcessing && updated.StartedAt == nil {
		updated.StartedAt = &now
	}
	if status.IsTerminal() {
		updated.CompletedAt = &now
	}
	if status == StatusFailed {
		updated.RetryCount++
	}

	return s.Save(ctx, updated)
}

func (s *MemStore) CountByStatus(ctx context.Context) (map[Status]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[Status]int)
	for _, j := range s.jobs {
		counts[j.Status]++
	}
	return counts, nil
}

func (s *MemStore) Close() error { return nil }
