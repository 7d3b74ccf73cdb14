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

import "context"

// Store persists and queries ProcessingJob records. Implementations
// must linearise concurrent Save calls for the same job id (optimistic
// concurrency on UpdatedAt is sufficient) and must make Claim atomic.
type Store interface {
	// Save inserts a new job or updates an existing one. For an update,
	// Save must fail with apperror.Conflict if the in-memory job's
	// UpdatedAt does not match the persisted row (another writer raced
	// ahead of it).
	Save(ctx context.Context, job *Job) error

	// FindByID returns the job with the given id, or apperror.NotFound.
	FindByID(ctx context.Context, id string) (*Job, error)

	// FindByDocument returns every job for a document, newest first.
	FindByDocument(ctx context.Context, documentID string) ([]*Job, error)

	// FindNonTerminalByDocumentKind returns the single non-terminal job
	// for (documentID, kind), if one exists. Used for status/listing
	// queries; CreateNonTerminal, not this plus a separate Save, is what
	// enforces the create-job uniqueness contract under concurrent
	// callers.
	FindNonTerminalByDocumentKind(ctx context.Context, documentID string, kind Kind) (*Job, error)

	// CreateNonTerminal inserts job atomically with the check that no
	// other non-terminal job exists for (job.DocumentID, job.Kind) --
	// the two steps are indivisible from the caller's perspective, so
	// two concurrent calls for the same (document_id, kind) can never
	// both succeed. Returns apperror.BusinessRule if one already exists.
	CreateNonTerminal(ctx context.Context, job *Job) error

	// FindPending returns up to limit pending jobs. When
	// preferHigherPriority is true, results are ordered by priority
	// descending, then created_at ascending; otherwise by created_at
	// ascending only.
	FindPending(ctx context.Context, limit int, preferHigherPriority bool) ([]*Job, error)

	// FindRetryableFailures returns failed jobs with RetryCount <
	// MaxRetries.
	FindRetryableFailures(ctx context.Context, limit int) ([]*Job, error)

	// Claim atomically transitions one pending job to processing and
	// returns it, or returns (nil, nil) if no pending job is available.
	// The claim is a compare-and-set on status so two workers racing
	// for the same job never both succeed.
	Claim(ctx context.Context, workerID string, preferHigherPriority bool) (*Job, error)

	// UpdateStatus transitions job id's status, setting StartedAt or
	// CompletedAt as appropriate, and records errMsg for a failed
	// transition.
	UpdateStatus(ctx context.Context, id string, status Status, errMsg string) error

	// CountByStatus returns the number of jobs currently in each
	// status.
	CountByStatus(ctx context.Context) (map[Status]int, error)

	Close() error
}
