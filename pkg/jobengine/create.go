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

package jobengine

import (
	"context"

	"github.com/google/uuid"

	"github.com/ragwell/corpus/pkg/apperror"
	"github.com/ragwell/corpus/pkg/jobs"
)

// defaultMaxRetries is used when CreateJob's caller doesn't specify one.
const defaultMaxRetries = 3

// CreateJob enforces the create-job contract: a non-terminal job must
// not already exist for (documentID, kind), and the job's Parameters
// must carry the fields its stage handler requires. maxRetries <= 0
// falls back to defaultMaxRetries.
func (e *Engine) CreateJob(ctx context.Context, documentID, userID string, kind jobs.Kind, params map[string]any, priority, maxRetries int) (*jobs.Job, error) {
	if err := validateParameters(kind, params); err != nil {
		return nil, err
	}

	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	job := &jobs.Job{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		UserID:     userID,
		Kind:       kind,
		Status:     jobs.StatusPending,
		Priority:   priority,
		Parameters: params,
		MaxRetries: maxRetries,
		// CreatedAt is left zero: both Store implementations' insert
		// path uses a zero CreatedAt to recognize a brand-new row and
		// stamp it themselves -- setting it here would make SQLStore.Save
		// take its update branch instead of its insert branch.
	}

	// CreateNonTerminal enforces spec.md §4.H's "at most one non-
	// terminal job per (document_id, kind)" as a single atomic
	// check-and-insert, so two workers calling CreateJob for the same
	// document+kind at the same instant can't both pass a separate
	// existence check and both insert.
	if err := e.deps.Jobs.CreateNonTerminal(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// validateParameters enforces the per-kind parameter contract from
// spec.md §4.H before a job is ever persisted.
func validateParameters(kind jobs.Kind, params map[string]any) error {
	switch kind {
	case jobs.KindExtract:
		if !nonEmptyString(params, "file_path") {
			return missingParam(kind, "file_path")
		}
		if !nonEmptyString(params, "file_type") {
			return missingParam(kind, "file_type")
		}
	case jobs.KindChunk:
		if !nonEmptyString(params, "chunk_type") {
			return missingParam(kind, "chunk_type")
		}
		if v, ok := params["chunk_size"]; ok {
			size, isNumber := toInt(v)
			if !isNumber || size <= 0 {
				return apperror.New(apperror.Validation, "chunk_size must be > 0").
					WithDetails(map[string]any{"kind": string(kind)})
			}
		}
	case jobs.KindEmbed:
		if !nonEmptyString(params, "model_name") {
			return missingParam(kind, "model_name")
		}
	case jobs.KindIndex:
		if !nonEmptyString(params, "collection_name") {
			return missingParam(kind, "collection_name")
		}
	case jobs.KindDedup, jobs.KindFullPipeline:
		// No required parameters: dedup operates on the whole document,
		// full_pipeline forwards to its constituent stages.
	default:
		return apperror.New(apperror.Validation, "unknown job kind").WithDetails(map[string]any{"kind": string(kind)})
	}
	return nil
}

func nonEmptyString(params map[string]any, key string) bool {
	v, ok := params[key]
	if !ok {
		return false
	}
	s, ok := v.(string)
	return ok && s != ""
}

func missingParam(kind jobs.Kind, key string) error {
	return apperror.New(apperror.Validation, "missing required parameter").
		WithDetails(map[string]any{"kind": string(kind), "parameter": key})
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
