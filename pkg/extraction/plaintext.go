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
	"regexp"
	"strings"
	"unicode/utf8"
)

// htmlTagPattern strips markup for the html file type; it is
// deliberately naive (no DOM, no entity table beyond the common few)
// since the pipeline only needs the visible text, not a faithful
// render.
var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

var htmlEntityReplacer = strings.NewReplacer(
	"&nbsp;", " ",
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
)

// PlainTextExtractor handles txt, html, and md files, grounded on the
// teacher's TextExtractor: validate/clean UTF-8, and for html strip
// tags with a regexp rather than a full parser.
type PlainTextExtractor struct{}

// NewPlainTextExtractor returns a plaintext/markdown/html extractor.
func NewPlainTextExtractor() *PlainTextExtractor {
	return &PlainTextExtractor{}
}

func (e *PlainTextExtractor) Name() string { return "plaintext" }

func (e *PlainTextExtractor) CanExtract(fileType FileType) bool {
	switch fileType {
	case FileTypeTxt, FileTypeHTML, FileTypeMD:
		return true
	default:
		return false
	}
}

func (e *PlainTextExtractor) Priority() int { return 1 }

func (e *PlainTextExtractor) Extract(ctx context.Context, data []byte, fileType FileType, opts Options) (*Result, error) {
	content := cleanUTF8(string(data))

	if fileType == FileTypeHTML {
		content = stripHTML(content)
	}

	return &Result{
		Text:      content,
		Metadata:  map[string]string{"type": string(fileType)},
		PageCount: 1,
		WordCount: wordCount(content),
	}, nil
}

// cleanUTF8 validates content and strips invalid bytes; if more than
// half the content was invalid, the whole file is rejected as empty
// rather than returned as unrecognizable noise.
func cleanUTF8(content string) string {
	if utf8.ValidString(content) {
		return content
	}

	cleaned := strings.ToValidUTF8(content, "")
	if len(content) == 0 {
		return ""
	}
	invalidRatio := float64(len(content)-len(cleaned)) / float64(len(content))
	if invalidRatio > 0.5 {
		return ""
	}
	return cleaned
}

func stripHTML(content string) string {
	withoutTags := htmlTagPattern.ReplaceAllString(content, " ")
	decoded := htmlEntityReplacer.Replace(withoutTags)
	return strings.Join(strings.Fields(decoded), " ")
}

var _ Extractor = (*PlainTextExtractor)(nil)
