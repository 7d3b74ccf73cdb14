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
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/nguyenthenguyen/docx"
)

// DocxExtractor extracts text from Word .docx files, grounded on the
// teacher's OfficeParser. nguyenthenguyen/docx only reads from a
// filesystem path (it unzips the OOXML container), so Extract stages
// data through a temp file; the temp file never outlives the call and
// the output is a pure function of data, matching the extraction
// contract.
type DocxExtractor struct{}

// NewDocxExtractor returns a docx extractor.
func NewDocxExtractor() *DocxExtractor {
	return &DocxExtractor{}
}

func (e *DocxExtractor) Name() string { return "docx" }

func (e *DocxExtractor) CanExtract(fileType FileType) bool { return fileType == FileTypeDocx }

func (e *DocxExtractor) Priority() int { return 10 }

func (e *DocxExtractor) Extract(ctx context.Context, data []byte, fileType FileType, opts Options) (*Result, error) {
	tmp, err := os.CreateTemp("", "ragcore-docx-*.docx")
	if err != nil {
		return nil, fmt.Errorf("stage docx temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if _, err := tmp.Write(data); err != nil {
		return nil, fmt.Errorf("write docx temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close docx temp file: %w", err)
	}

	doc, err := docx.ReadDocxFile(tmp.Name())
	if err != nil {
		return nil, fmt.Errorf("read docx: %w", err)
	}
	defer doc.Close()

	content := doc.Editable().GetContent()
	paragraphCount := len(strings.Split(content, "\n\n"))

	return &Result{
		Text:      content,
		Metadata:  map[string]string{"type": "docx", "paragraphs": fmt.Sprintf("%d", paragraphCount)},
		PageCount: 1,
		WordCount: wordCount(content),
	}, nil
}

var _ Extractor = (*DocxExtractor)(nil)
