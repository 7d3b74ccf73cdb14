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
	"strings"
	"unicode"
)

// minRunLength is the shortest printable-byte run worth keeping; this
// matches the common "strings" utility default and discards the
// single- and double-byte noise a binary .doc's control records leave
// behind.
const minRunLength = 4

// LegacyDocExtractor is a best-effort extractor for the pre-OOXML
// binary .doc format. The pack has no binary Word parser, so this
// reuses the teacher's own fallback idiom for unparseable binaries
// (TextExtractor.isBinaryFile/cleanUTF8Content): scan for printable
// runs and keep whatever text survives.
type LegacyDocExtractor struct{}

// NewLegacyDocExtractor returns a best-effort .doc extractor.
func NewLegacyDocExtractor() *LegacyDocExtractor {
	return &LegacyDocExtractor{}
}

func (e *LegacyDocExtractor) Name() string { return "doc" }

func (e *LegacyDocExtractor) CanExtract(fileType FileType) bool { return fileType == FileTypeDoc }

func (e *LegacyDocExtractor) Priority() int { return 5 }

func (e *LegacyDocExtractor) Extract(ctx context.Context, data []byte, fileType FileType, opts Options) (*Result, error) {
	content := extractPrintableRuns(data)

	return &Result{
		Text:      content,
		Metadata:  map[string]string{"type": "doc", "extraction": "best_effort"},
		PageCount: 1,
		WordCount: wordCount(content),
	}, nil
}

// extractPrintableRuns keeps contiguous runs of printable ASCII at
// least minRunLength bytes long, joining runs with a newline.
func extractPrintableRuns(data []byte) string {
	var runs []string
	var current strings.Builder

	flush := func() {
		if current.Len() >= minRunLength {
			runs = append(runs, current.String())
		}
		current.Reset()
	}

	for _, b := range data {
		r := rune(b)
		if b < 0x80 && (unicode.IsPrint(r) || r == '\t') {
			current.WriteByte(b)
			continue
		}
		flush()
	}
	flush()

	return strings.Join(runs, "\n")
}

var _ Extractor = (*LegacyDocExtractor)(nil)
