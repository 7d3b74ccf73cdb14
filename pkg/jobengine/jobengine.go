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

// Package jobengine drives documents through the
// extract→chunk→embed→dedup pipeline, with the embed stage writing the
// vectors to the index. A bounded worker pool
// polls the Job Store independently (no central dispatcher), claims
// one pending job at a time, dispatches it to the stage handler for
// its kind, and resolves the result into the job's completed/failed/
// retried-to-pending state — the poll-loop-per-goroutine shape of the
// pack's other_examples upload worker, generalized from one file-
// upload job type to the pipeline's six stage kinds.
package jobengine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ragwell/corpus/pkg/apperror"
	"github.com/ragwell/corpus/pkg/chunking"
	"github.com/ragwell/corpus/pkg/chunks"
	"github.com/ragwell/corpus/pkg/embedding"
	"github.com/ragwell/corpus/pkg/eventbus"
	"github.com/ragwell/corpus/pkg/extraction"
	"github.com/ragwell/corpus/pkg/jobs"
	"github.com/ragwell/corpus/pkg/metrics"
	"github.com/ragwell/corpus/pkg/vectorindex"
)

// Event topics published across stage transitions.
const (
	TopicDocumentUploaded    = "document.uploaded"
	TopicTextExtracted       = "text.extracted"
	TopicChunksCreated       = "chunks.created"
	TopicEmbeddingsGenerated = "embeddings.generated"
	TopicChunksDeduplicated  = "chunks.deduplicated"
	TopicProcessingFailed    = "processing.failed"
)

// Deduplicator is the Dedup Engine's contract as seen by the Job
// Engine; kept as a narrow local interface (rather than importing
// pkg/dedup directly) so the two packages don't form an import cycle
// and the dedup stage handler can be tested with a fake.
type Deduplicator interface {
	Run(ctx context.Context, documentID string) (removedCount, groupsCount int, err error)
}

// FileReader loads the bytes behind a job's file_path parameter. An
// interface rather than a bare os.ReadFile call so tests can supply an
// in-memory source.
type FileReader interface {
	ReadFile(ctx context.Context, path string) ([]byte, error)
}

// Deps bundles every collaborator a stage handler may need. Nil
// fields are fine as long as no job exercises the stage that needs
// them (e.g. a deployment that never runs a job with an extract stage
// can omit Files and Extractors).
type Deps struct {
	Jobs       jobs.Store
	Chunks     chunks.Store
	Vectors    vectorindex.Index
	Bus        eventbus.Bus
	Embedder   embedding.Embedder
	Extractors *extraction.Registry
	Dedup      Deduplicator
	Files      FileReader
	Metrics    *metrics.Metrics

	ChunkingConfig     chunking.Config
	EmbeddingBatchSize int
	Collection         string
}

// Config tunes the worker pool's scheduling behavior.
type Config struct {
	// WorkerCount is the size of the worker pool (max_concurrent_processing).
	WorkerCount int
	// PollInterval is how often an idle worker checks for pending work.
	PollInterval time.Duration
	// ShutdownGrace bounds how long Stop waits for in-flight jobs.
	ShutdownGrace time.Duration
	// RetryBackoffBase is the base of the exponential retry backoff
	// (attempt 1 waits RetryBackoffBase, attempt 2 waits 2x, ...).
	RetryBackoffBase time.Duration
	// JobDeadline bounds a single stage handler invocation; exceeding
	// it fails the job with a retryable timeout error.
	JobDeadline time.Duration
}

// SetDefaults fills zero-valued fields with the spec's defaults.
func (c *Config) SetDefaults() {
	if c.WorkerCount <= 0 {
		c.WorkerCount = 5
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 30 * time.Second
	}
	if c.RetryBackoffBase <= 0 {
		c.RetryBackoffBase = 1 * time.Second
	}
	if c.JobDeadline <= 0 {
		c.JobDeadline = 5 * time.Minute
	}
}

// Engine owns the worker pool and the stage-handler dispatch table.
type Engine struct {
	cfg  Config
	deps Deps

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

// New builds an Engine. Call Start to begin polling.
func New(cfg Config, deps Deps) *Engine {
	cfg.SetDefaults()
	return &Engine{cfg: cfg, deps: deps}
}

// IsRunning reports whether the worker pool is currently polling.
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Start launches the worker pool. Each worker runs its own poll loop
// until ctx is cancelled or Stop is called.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return apperror.New(apperror.BusinessRule, "job engine already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.running = true
	e.mu.Unlock()

	for i := 0; i < e.cfg.WorkerCount; i++ {
		e.wg.Add(1)
		go e.poll(runCtx, fmt.Sprintf("worker-%d", i))
	}
	return nil
}

// Stop signals every worker to finish its in-flight job and stop
// claiming new ones, then waits up to ShutdownGrace for them to drain.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	cancel := e.cancel
	e.running = false
	e.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(e.cfg.ShutdownGrace):
		return apperror.New(apperror.Timeout, "job engine shutdown grace period exceeded")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// poll runs one worker's claim/dispatch/resolve loop until ctx is done.
func (e *Engine) poll(ctx context.Context, workerID string) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job, err := e.deps.Jobs.Claim(ctx, workerID, true)
			if err != nil {
				slog.Error("job claim failed", "worker", workerID, "error", err)
				continue
			}
			if job == nil {
				continue
			}
			e.processJob(ctx, job)
		}
	}
}

// processJob dispatches job to its stage handler and resolves the
// outcome, recovering from any panic inside the handler the way a
// misbehaving stage dependency (a buggy extractor, a panicking mock)
// would otherwise take the whole worker down.
func (e *Engine) processJob(ctx context.Context, job *jobs.Job) {
	start := time.Now()

	stageCtx, cancel := context.WithTimeout(ctx, e.cfg.JobDeadline)
	defer cancel()

	err := e.runWithRecovery(stageCtx, job)

	if stageCtx.Err() == context.DeadlineExceeded && err == nil {
		err = apperror.New(apperror.Timeout, "job exceeded its deadline").WithDetails(map[string]any{"job_id": job.ID})
	}

	if err != nil {
		e.handleFailure(ctx, job, err, start)
		return
	}
	e.handleSuccess(ctx, job, start)
}

// runWithRecovery wraps the stage dispatch with panic recovery,
// converting a panic into a retryable internal error instead of
// crashing the worker goroutine.
func (e *Engine) runWithRecovery(ctx context.Context, job *jobs.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperror.New(apperror.Internal, fmt.Sprintf("stage handler panicked: %v", r)).
				WithDetails(map[string]any{"job_id": job.ID, "kind": string(job.Kind)})
		}
	}()
	handler, ok := dispatch[job.Kind]
	if !ok {
		return apperror.New(apperror.BusinessRule, fmt.Sprintf("no stage handler for kind %q", job.Kind))
	}
	return handler(ctx, job, &e.deps)
}

func (e *Engine) handleSuccess(ctx context.Context, job *jobs.Job, start time.Time) {
	now := time.Now().UTC()
	job.Status = jobs.StatusCompleted
	job.Error = ""
	job.CompletedAt = &now

	if err := e.deps.Jobs.Save(ctx, job); err != nil {
		slog.Error("failed to persist completed job", "job_id", job.ID, "error", err)
		return
	}
	e.deps.Metrics.RecordJob(string(job.Kind), "completed", time.Since(start))
	slog.Info("job completed", "job_id", job.ID, "kind", string(job.Kind), "duration", time.Since(start))
}

// handleFailure classifies jobErr and either re-queues job with
// incremented retry_count and an exponential backoff pause (matching
// the teacher's sleep-then-re-enqueue idiom) or marks it permanently
// failed and publishes processing_failed. An internal error is retried
// only while the job has no earlier retry.
func (e *Engine) handleFailure(ctx context.Context, job *jobs.Job, jobErr error, start time.Time) {
	retry := apperror.IsRetryable(jobErr) && job.RetryCount < job.MaxRetries
	if apperror.KindOf(jobErr) == apperror.Internal && job.RetryCount >= 1 {
		retry = false
	}
	if retry {
		job.RetryCount++
		job.Error = jobErr.Error()
		job.Status = jobs.StatusPending
		job.StartedAt = nil

		backoff := e.cfg.RetryBackoffBase * time.Duration(1<<uint(job.RetryCount-1))
		slog.Warn("job failed, will retry", "job_id", job.ID, "retry_count", job.RetryCount, "max_retries", job.MaxRetries, "backoff", backoff, "error", jobErr)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
		}

		if err := e.deps.Jobs.Save(ctx, job); err != nil {
			slog.Error("failed to re-queue job after retryable failure", "job_id", job.ID, "error", err)
		}
		e.deps.Metrics.RecordJob(string(job.Kind), "retried", time.Since(start))
		return
	}

	now := time.Now().UTC()
	job.Status = jobs.StatusFailed
	job.Error = jobErr.Error()
	job.CompletedAt = &now

	e.deps.Metrics.RecordJob(string(job.Kind), "failed", time.Since(start))
	slog.Error("job failed permanently", "job_id", job.ID, "kind", string(job.Kind), "retry_count", job.RetryCount, "error", jobErr)

	if err := e.deps.Jobs.Save(ctx, job); err != nil {
		slog.Error("failed to persist permanently-failed job", "job_id", job.ID, "error", err)
	}

	if e.deps.Bus != nil {
		payload := map[string]any{
			"job_id":      job.ID,
			"document_id": job.DocumentID,
			"kind":        string(job.Kind),
			"error":       jobErr.Error(),
			"kind_class":  string(apperror.KindOf(jobErr)),
		}
		if pubErr := e.deps.Bus.Publish(ctx, TopicProcessingFailed, job.DocumentID, payload, nil); pubErr != nil {
			slog.Error("failed to publish processing_failed", "job_id", job.ID, "error", pubErr)
		}
	}
}
