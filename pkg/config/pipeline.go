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

package config

import (
	"fmt"
	"strings"
)

// PipelineConfig holds the ingestion-and-retrieval tunables from the
// configuration table: chunking geometry, worker concurrency, embedding
// model identity, and the file size and file type settings.
type PipelineConfig struct {
	// ChunkSize is the default fragment size in bytes.
	ChunkSize int `yaml:"chunk_size"`

	// ChunkOverlap is the overlap between fixed-size fragments.
	ChunkOverlap int `yaml:"chunk_overlap"`

	// MaxConcurrentProcessing is the Job Engine worker-pool size.
	MaxConcurrentProcessing int `yaml:"max_concurrent_processing"`

	// BatchSize is the default embedding batch size.
	BatchSize int `yaml:"batch_size"`

	// EmbeddingModel is the embedding model identifier, fixed per
	// deployment (changing it requires re-embedding the whole corpus).
	EmbeddingModel string `yaml:"embedding_model"`

	// EmbeddingDimension is the vector width produced by EmbeddingModel.
	EmbeddingDimension int `yaml:"embedding_dimension"`

	// MaxFileSize is a file size limit as a human size string ("10MB",
	// "1048576", ...). Use MaxFileSizeBytes for the parsed value after
	// SetDefaults has run. Validate requires it to be positive; the
	// extract stage does not compare input files against it.
	MaxFileSize string `yaml:"max_file_size"`

	// MaxFileSizeBytes is MaxFileSize parsed to bytes by SetDefaults.
	MaxFileSizeBytes int64 `yaml:"-"`

	// AllowedFileTypes lists accepted extensions (e.g. pdf, docx, txt,
	// md, html); RAGCORE_ALLOWED_FILE_TYPES sets it as a comma-separated
	// list. AllowsFileType checks against it; the extractor registry does
	// not read it and keeps its own fixed set of file types.
	AllowedFileTypes []string `yaml:"allowed_file_types"`
}

// SetDefaults fills in unset fields with their defaults and parses
// MaxFileSize into MaxFileSizeBytes.
func (c *PipelineConfig) SetDefaults() error {
	if c.ChunkSize == 0 {
		c.ChunkSize = 1000
	}
	if c.ChunkOverlap == 0 {
		c.ChunkOverlap = 200
	}
	if c.MaxConcurrentProcessing == 0 {
		c.MaxConcurrentProcessing = 5
	}
	if c.BatchSize == 0 {
		c.BatchSize = 50
	}
	if c.EmbeddingModel == "" {
		c.EmbeddingModel = "text-embedding-3-small"
	}
	if c.EmbeddingDimension == 0 {
		c.EmbeddingDimension = 1536
	}
	if c.MaxFileSize == "" {
		c.MaxFileSize = "10MB"
	}
	if len(c.AllowedFileTypes) == 0 {
		c.AllowedFileTypes = []string{"pdf", "docx", "doc", "txt", "md", "html"}
	}

	bytes, err := ParseSize(c.MaxFileSize)
	if err != nil {
		return fmt.Errorf("max_file_size: %w", err)
	}
	c.MaxFileSizeBytes = bytes

	return nil
}

// Validate reports a validation error for any geometry or concurrency
// value that can't produce a well-formed chunk or schedule.
func (c *PipelineConfig) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 {
		return fmt.Errorf("chunk_overlap must not be negative, got %d", c.ChunkOverlap)
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("chunk_overlap (%d) must be smaller than chunk_size (%d)", c.ChunkOverlap, c.ChunkSize)
	}
	if c.MaxConcurrentProcessing <= 0 {
		return fmt.Errorf("max_concurrent_processing must be positive, got %d", c.MaxConcurrentProcessing)
	}
	if c.BatchSize <= 0 || c.BatchSize > 100 {
		return fmt.Errorf("batch_size must be in (0, 100], got %d", c.BatchSize)
	}
	if c.EmbeddingDimension <= 0 {
		return fmt.Errorf("embedding_dimension must be positive, got %d", c.EmbeddingDimension)
	}
	if c.MaxFileSizeBytes <= 0 {
		return fmt.Errorf("max_file_size must resolve to a positive byte count")
	}
	if len(c.AllowedFileTypes) == 0 {
		return fmt.Errorf("allowed_file_types must not be empty")
	}
	return nil
}

// AllowsFileType reports whether ext (without a leading dot, case
// insensitive) is in the allowed list.
func (c *PipelineConfig) AllowsFileType(ext string) bool {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, allowed := range c.AllowedFileTypes {
		if strings.ToLower(allowed) == ext {
			return true
		}
	}
	return false
}
