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

// Package extraction turns raw file bytes into plain text plus
// metadata. Extraction is a pure function of (bytes, file type): the
// same input always produces the same output, with no filesystem or
// network side effects visible to the caller.
package extraction

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ragwell/corpus/pkg/apperror"
)

// FileType is one of the file kinds the pipeline accepts for
// extraction.
type FileType string

const (
	FileTypePDF  FileType = "pdf"
	FileTypeDocx FileType = "docx"
	FileTypeDoc  FileType = "doc"
	FileTypeTxt  FileType = "txt"
	FileTypeHTML FileType = "html"
	FileTypeMD   FileType = "md"
)

var supportedFileTypes = map[FileType]bool{
	FileTypePDF:  true,
	FileTypeDocx: true,
	FileTypeDoc:  true,
	FileTypeTxt:  true,
	FileTypeHTML: true,
	FileTypeMD:   true,
}

// Options carries extraction-time tuning knobs. Empty today; kept as a
// struct rather than threading new parameters through every Extractor
// signature as they're added.
type Options struct{}

// Result is what every extractor produces: cleaned text plus the
// counts and metadata the pipeline stages downstream need.
type Result struct {
	Text      string
	Metadata  map[string]string
	PageCount int
	WordCount int
}

// Extractor handles one or more FileTypes.
type Extractor interface {
	Name() string
	CanExtract(fileType FileType) bool
	Extract(ctx context.Context, data []byte, fileType FileType, opts Options) (*Result, error)

	// Priority breaks ties when more than one registered extractor
	// claims the same file type; higher wins.
	Priority() int
}

// Registry dispatches to the highest-priority Extractor willing to
// handle a given file type.
type Registry struct {
	extractors []Extractor
}

// NewRegistry returns an empty extractor registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds extractor and keeps the registry sorted by priority,
// highest first.
func (r *Registry) Register(extractor Extractor) {
	r.extractors = append(r.extractors, extractor)
	sort.SliceStable(r.extractors, func(i, j int) bool {
		return r.extractors[i].Priority() > r.extractors[j].Priority()
	})
}

// Extract runs the best-matching registered extractor against data.
// Unrecognized file types fail with apperror.UnsupportedFileType;
// a registered extractor that errors fails with apperror.Internal
// (extraction_failed, retryable), per the propagation contract.
func (r *Registry) Extract(ctx context.Context, data []byte, fileType FileType, opts Options) (*Result, error) {
	normalized := FileType(strings.ToLower(string(fileType)))
	if !supportedFileTypes[normalized] {
		return nil, apperror.New(apperror.UnsupportedFileType, fmt.Sprintf("unsupported file type %q", fileType)).
			WithDetails(map[string]any{"file_type": string(fileType)})
	}

	var lastErr error
	for _, ext := range r.extractors {
		if !ext.CanExtract(normalized) {
			continue
		}
		result, err := ext.Extract(ctx, data, normalized, opts)
		if err != nil {
			lastErr = err
			continue
		}
		return result, nil
	}

	if lastErr != nil {
		return nil, apperror.Wrap(apperror.Internal, fmt.Sprintf("extraction failed for file type %q", fileType), lastErr)
	}
	return nil, apperror.New(apperror.UnsupportedFileType, fmt.Sprintf("no extractor registered for file type %q", fileType)).
		WithDetails(map[string]any{"file_type": string(fileType)})
}

// wordCount counts whitespace-delimited tokens, matching how the
// pipeline reports word_count everywhere else.
func wordCount(text string) int {
	return len(strings.Fields(text))
}
