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
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ragwell/corpus/pkg/apperror"
	"github.com/ragwell/corpus/pkg/chunking"
	"github.com/ragwell/corpus/pkg/chunks"
	"github.com/ragwell/corpus/pkg/embedding"
	"github.com/ragwell/corpus/pkg/extraction"
	"github.com/ragwell/corpus/pkg/jobs"
	"github.com/ragwell/corpus/pkg/vectorindex"
)

// maxChunkInputBytes caps the upstream text a chunk job will accept,
// per spec.md §4.H's 10 MB ceiling on chunk input.
const maxChunkInputBytes = 10 * 1024 * 1024

// maxEmbedBatch caps how many chunk ids one embed job processes.
const maxEmbedBatch = 100

// stageHandler implements one job kind's work against job.Parameters,
// mutating job.Parameters in place with whatever result payload
// downstream stages or callers need.
type stageHandler func(ctx context.Context, job *jobs.Job, deps *Deps) error

var dispatch = map[jobs.Kind]stageHandler{
	jobs.KindExtract:      runExtract,
	jobs.KindChunk:        runChunk,
	jobs.KindEmbed:        runEmbed,
	jobs.KindDedup:        runDedup,
	jobs.KindIndex:        runIndex,
	jobs.KindFullPipeline: runFullPipeline,
}

// runExtract loads the source file and produces (text, metadata).
// Empty extracted text is a terminal (non-retryable) error.
func runExtract(ctx context.Context, job *jobs.Job, deps *Deps) error {
	filePath, _ := getString(job.Parameters, "file_path")
	fileType, _ := getString(job.Parameters, "file_type")

	if deps.Files == nil {
		return apperror.New(apperror.Internal, "job engine has no file reader configured")
	}
	if deps.Extractors == nil {
		return apperror.New(apperror.Internal, "job engine has no extractor registry configured")
	}

	data, err := deps.Files.ReadFile(ctx, filePath)
	if err != nil {
		return apperror.Wrap(apperror.ExternalService, "read source file", err).
			WithDetails(map[string]any{"file_path": filePath})
	}

	result, err := deps.Extractors.Extract(ctx, data, extraction.FileType(fileType), extraction.Options{})
	if err != nil {
		return err
	}
	if strings.TrimSpace(result.Text) == "" {
		return apperror.New(apperror.BusinessRule, "extracted text is empty").
			WithDetails(map[string]any{"file_path": filePath, "file_type": fileType})
	}

	job.Parameters["text"] = result.Text
	job.Parameters["metadata"] = result.Metadata
	job.Parameters["word_count"] = result.WordCount
	job.Parameters["page_count"] = result.PageCount

	publish(ctx, deps, TopicTextExtracted, job.DocumentID, map[string]any{
		"document_id": job.DocumentID,
		"job_id":      job.ID,
		"word_count":  result.WordCount,
		"page_count":  result.PageCount,
	})
	return nil
}

// runChunk splits the upstream text into fragments and batch-writes
// them to the Chunk Store. Zero fragments is a terminal error.
func runChunk(ctx context.Context, job *jobs.Job, deps *Deps) error {
	if deps.Chunks == nil {
		return apperror.New(apperror.Internal, "job engine has no chunk store configured")
	}

	text, ok := getString(job.Parameters, "text")
	if !ok || text == "" {
		return apperror.New(apperror.Validation, "chunk job is missing upstream text").
			WithDetails(map[string]any{"job_id": job.ID})
	}
	if len(text) > maxChunkInputBytes {
		return apperror.New(apperror.FileTooLarge, "upstream text exceeds the 10MB chunk input cap").
			WithDetails(map[string]any{"job_id": job.ID, "size": len(text)})
	}

	cfg := deps.ChunkingConfig
	if chunkType, ok := getString(job.Parameters, "chunk_type"); ok && chunkType != "" {
		cfg.Strategy = chunking.Strategy(chunkType)
	}
	if size, ok := toInt(job.Parameters["chunk_size"]); ok && size > 0 {
		cfg.ChunkSize = size
	}

	chunker, err := chunking.New(cfg)
	if err != nil {
		return apperror.Wrap(apperror.Validation, "build chunker", err)
	}
	produced, err := chunker.Chunk(text)
	if err != nil {
		return apperror.Wrap(apperror.Internal, "chunk text", err)
	}
	if len(produced) == 0 {
		return apperror.New(apperror.BusinessRule, "chunking produced zero fragments").
			WithDetails(map[string]any{"job_id": job.ID})
	}

	now := time.Now().UTC()
	batch := make([]*chunks.Chunk, len(produced))
	ids := make([]string, len(produced))
	for i, c := range produced {
		id := uuid.NewString()
		ids[i] = id
		batch[i] = &chunks.Chunk{
			ID:             id,
			DocumentID:     job.DocumentID,
			UserID:         job.UserID,
			Content:        c.Content,
			Kind:           chunks.Kind(cfg.Strategy),
			SequenceNumber: i,
			StartOffset:    c.Start,
			EndOffset:      c.End,
			ContentHash:    chunks.ContentHashOf(c.Content),
			CreatedAt:      now,
		}
	}

	if err := deps.Chunks.SaveBatch(ctx, batch); err != nil {
		return apperror.Wrap(apperror.ExternalService, "save chunk batch", err)
	}

	job.Parameters["chunk_ids"] = ids
	job.Parameters["chunk_count"] = len(ids)

	publish(ctx, deps, TopicChunksCreated, job.DocumentID, map[string]any{
		"document_id": job.DocumentID,
		"job_id":      job.ID,
		"chunk_ids":   ids,
	})
	return nil
}

// runEmbed embeds a bounded, deduped batch of chunk ids, writes the
// vectors to the Vector Index, and sets embedding_id on each chunk.
// The batch is only marked embedded in the Chunk Store after the
// vector upsert succeeds, so a failed upsert leaves every chunk in the
// batch still eligible for a future embed pass.
func runEmbed(ctx context.Context, job *jobs.Job, deps *Deps) error {
	if deps.Embedder == nil {
		return apperror.New(apperror.Internal, "job engine has no embedder configured")
	}
	if deps.Vectors == nil {
		return apperror.New(apperror.Internal, "job engine has no vector index configured")
	}

	targets, err := embedTargets(ctx, job, deps)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return apperror.New(apperror.BusinessRule, "no chunks available to embed").
			WithDetails(map[string]any{"document_id": job.DocumentID})
	}

	texts := make([]string, len(targets))
	for i, c := range targets {
		texts[i] = c.Content
	}

	embedStart := time.Now()
	results, err := deps.Embedder.EmbedBatch(ctx, texts, embedding.Options{BatchSize: deps.EmbeddingBatchSize})
	deps.Metrics.RecordEmbedBatch(deps.Embedder.Model(), time.Since(embedStart))
	if err != nil {
		return apperror.Wrap(apperror.ExternalService, "embed chunk batch", err)
	}
	if len(results) != len(targets) {
		return apperror.New(apperror.Internal, "embedder returned a mismatched result count").
			WithDetails(map[string]any{"expected": len(targets), "got": len(results)})
	}

	collection := deps.Collection
	if name, ok := getString(job.Parameters, "collection_name"); ok && name != "" {
		collection = name
	}
	if collection == "" {
		return apperror.New(apperror.Internal, "no vector collection configured for embed job")
	}

	if err := deps.Vectors.EnsureCollection(ctx, collection, deps.Embedder.Dimension()); err != nil {
		return apperror.Wrap(apperror.ExternalService, "ensure vector collection", err)
	}

	points := make([]vectorindex.Point, len(targets))
	for i, c := range targets {
		points[i] = vectorindex.Point{
			ID:     uuid.NewString(),
			Vector: results[i].Vector,
			Payload: vectorindex.Payload{
				DocumentID:   c.DocumentID,
				ChunkID:      c.ID,
				ChunkIndex:   c.SequenceNumber,
				CreatedAt:    c.CreatedAt,
				UserMetadata: c.Metadata,
			},
		}
	}

	if err := deps.Vectors.Upsert(ctx, collection, points); err != nil {
		return apperror.Wrap(apperror.ExternalService, "upsert vectors", err)
	}

	for i, c := range targets {
		if err := deps.Chunks.SetEmbeddingID(ctx, c.ID, points[i].ID); err != nil {
			return apperror.Wrap(apperror.Internal, "set embedding id", err).
				WithDetails(map[string]any{"chunk_id": c.ID})
		}
	}

	job.Parameters["embedded_count"] = len(targets)

	publish(ctx, deps, TopicEmbeddingsGenerated, job.DocumentID, map[string]any{
		"document_id": job.DocumentID,
		"job_id":      job.ID,
		"count":       len(targets),
		"collection":  collection,
	})
	return nil
}

// embedTargets resolves which chunks an embed job should embed: the
// ids named in its own parameters if given, otherwise every
// not-yet-embedded chunk for the document, capped at maxEmbedBatch.
// Chunks that already have an embedding_id are skipped on both paths,
// not just the fallback one -- a retried job (or one whose chunk_ids
// were recorded before an earlier partial failure) must never re-embed
// and re-upsert a chunk that already succeeded, since that would both
// orphan a duplicate vector and fail SetEmbeddingID's already-set
// guard.
func embedTargets(ctx context.Context, job *jobs.Job, deps *Deps) ([]*chunks.Chunk, error) {
	if ids := stringSlice(job.Parameters["chunk_ids"]); len(ids) > 0 {
		ids = dedupeStrings(ids)
		if len(ids) > maxEmbedBatch {
			ids = ids[:maxEmbedBatch]
		}
		found, err := deps.Chunks.FindByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		targets := make([]*chunks.Chunk, 0, len(found))
		for _, c := range found {
			if c.HasEmbedding() {
				continue
			}
			targets = append(targets, c)
		}
		return targets, nil
	}

	all, err := deps.Chunks.FindByDocument(ctx, job.DocumentID)
	if err != nil {
		return nil, err
	}
	var targets []*chunks.Chunk
	for _, c := range all {
		if c.HasEmbedding() {
			continue
		}
		targets = append(targets, c)
		if len(targets) >= maxEmbedBatch {
			break
		}
	}
	return targets, nil
}

// runDedup collapses duplicate fragments within the document once
// embedding has completed.
func runDedup(ctx context.Context, job *jobs.Job, deps *Deps) error {
	if deps.Dedup == nil {
		return apperror.New(apperror.Internal, "job engine has no dedup engine configured")
	}

	removed, groups, err := deps.Dedup.Run(ctx, job.DocumentID)
	if err != nil {
		return err
	}
	deps.Metrics.RecordDedup(removed, groups)

	job.Parameters["removed_count"] = removed
	job.Parameters["groups_count"] = groups

	publish(ctx, deps, TopicChunksDeduplicated, job.DocumentID, map[string]any{
		"document_id":   job.DocumentID,
		"job_id":        job.ID,
		"removed_count": removed,
		"groups_count":  groups,
	})
	return nil
}

// runIndex is a thin orchestrator: extract, chunk, embed into the
// named collection, then dedup, in the spec's declared stage order.
func runIndex(ctx context.Context, job *jobs.Job, deps *Deps) error {
	localDeps := *deps
	if name, ok := getString(job.Parameters, "collection_name"); ok && name != "" {
		localDeps.Collection = name
	}
	return runPipeline(ctx, job, &localDeps)
}

// runFullPipeline chains extract→chunk→embed→dedup using the engine's
// configured default collection.
func runFullPipeline(ctx context.Context, job *jobs.Job, deps *Deps) error {
	return runPipeline(ctx, job, deps)
}

func runPipeline(ctx context.Context, job *jobs.Job, deps *Deps) error {
	for _, step := range []stageHandler{runExtract, runChunk, runEmbed, runDedup} {
		if err := step(ctx, job, deps); err != nil {
			return err
		}
	}
	return nil
}

func publish(ctx context.Context, deps *Deps, topic, key string, payload map[string]any) {
	if deps.Bus == nil {
		return
	}
	if err := deps.Bus.Publish(ctx, topic, key, payload, nil); err != nil {
		slog.Error("failed to publish event", "topic", topic, "error", err)
	}
}

func getString(params map[string]any, key string) (string, bool) {
	v, ok := params[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func stringSlice(v any) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	default:
		return nil
	}
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
