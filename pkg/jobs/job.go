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

// Package jobs persists ProcessingJob records: the unit of work the Job
// Engine claims, drives through its stage, and retires.
package jobs

import "time"

// Kind identifies which pipeline stage a job drives.
type Kind string

const (
	KindExtract      Kind = "extract"
	KindChunk        Kind = "chunk"
	KindEmbed        Kind = "embed"
	KindDedup        Kind = "dedup"
	KindIndex        Kind = "index"
	KindFullPipeline Kind = "full_pipeline"
)

// Status is a job's position in the pending → processing →
// {completed | failed} → [retry to pending] state graph. Any live
// state can transition to cancelled.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// IsTerminal reports whether s is a terminal, immutable status.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Job is a single unit of pipeline work against one document.
type Job struct {
	ID          string
	DocumentID  string
	UserID      string
	Kind        Kind
	Status      Status
	Priority    int
	Parameters  map[string]any
	RetryCount  int
	MaxRetries  int
	Error       string
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	UpdatedAt   time.Time
}

// CanRetry reports whether a failed job is still eligible for another
// attempt.
func (j *Job) CanRetry() bool {
	return j.Status == StatusFailed && j.RetryCount < j.MaxRetries
}
