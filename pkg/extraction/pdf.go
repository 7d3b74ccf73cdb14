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

package extraction

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFExtractor extracts text page by page, grounded on the teacher's
// PDFParser.
type PDFExtractor struct{}

// NewPDFExtractor returns a PDF extractor.
func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

func (e *PDFExtractor) Name() string { return "pdf" }

func (e *PDFExtractor) CanExtract(fileType FileType) bool { return fileType == FileTypePDF }

func (e *PDFExtractor) Priority() int { return 10 }

func (e *PDFExtractor) Extract(ctx context.Context, data []byte, fileType FileType, opts Options) (*Result, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("parse pdf: %w", err)
	}

	totalPages := reader.NumPage()
	parts := make([]string, 0, totalPages)

	for pageNum := 1; pageNum <= totalPages; pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if strings.TrimSpace(text) != "" {
			parts = append(parts, text)
		}
	}

	content := strings.Join(parts, "\n\n")

	return &Result{
		Text:      content,
		Metadata:  map[string]string{"pages": fmt.Sprintf("%d", totalPages)},
		PageCount: totalPages,
		WordCount: wordCount(content),
	}, nil
}

var _ Extractor = (*PDFExtractor)(nil)
