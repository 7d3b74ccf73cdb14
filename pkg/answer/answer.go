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

// Package answer composes a natural-language answer from a question
// and its retrieved chunks: assemble an ordered context prompt, call
// the LLM, and score the result's confidence from the chunks' own
// retrieval scores.
package answer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ragwell/corpus/pkg/apperror"
	"github.com/ragwell/corpus/pkg/llm"
)

// Source is one chunk fed to the LLM as context, carried through
// verbatim on the response so callers can cite it.
type Source struct {
	ChunkID    string
	DocumentID string
	Content    string
	Score      float32
	Sourcefile string
	Page       int
	Title      string
}

// Request is one answer-composition call.
type Request struct {
	UserID         string
	Question       string
	Chunks         []Source
	Model          string
	MaxTokens      int
	Temperature    float64
	SystemPrompt   string
	IncludeSources bool
	Language       string
}

// Response is the composed answer.
type Response struct {
	AnswerText   string
	Sources      []Source
	Confidence   float64
	TokensUsed   int
	GenerationMS int64
}

const (
	minQuestionLen = 1
	maxQuestionLen = 1000
	minChunks      = 1
	maxChunks      = 20
	minMaxTokens   = 50
	maxMaxTokens   = 4000
)

// defaultSystemPrompt is used when Request.SystemPrompt is empty.
const defaultSystemPrompt = "Answer the question using only the provided context. If the context doesn't contain the answer, say so."

// Composer assembles a prompt from retrieved chunks and invokes an
// LLM to answer the question.
type Composer struct {
	client llm.Client
}

// New constructs a Composer around client.
func New(client llm.Client) *Composer {
	return &Composer{client: client}
}

// Compose validates req, builds the context-block prompt, invokes the
// LLM, and scores confidence, per spec.md §4.K.
func (c *Composer) Compose(ctx context.Context, req Request) (Response, error) {
	if err := validate(req); err != nil {
		return Response{}, err
	}

	start := time.Now()
	prompt := buildPrompt(req)

	systemPrompt := req.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}

	resp, err := c.client.Generate(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return Response{}, apperror.Wrap(apperror.ExternalService, "generate answer", err)
	}

	out := Response{
		AnswerText:   resp.Text,
		Confidence:   confidence(req.Chunks),
		TokensUsed:   resp.TokensUsed,
		GenerationMS: time.Since(start).Milliseconds(),
	}
	if req.IncludeSources {
		out.Sources = req.Chunks
	}
	return out, nil
}

func validate(req Request) error {
	if len(req.Question) < minQuestionLen || len(req.Question) > maxQuestionLen {
		return apperror.New(apperror.Validation, "question must be 1-1000 characters")
	}
	if len(req.Chunks) < minChunks || len(req.Chunks) > maxChunks {
		return apperror.New(apperror.Validation, "chunks must number between 1 and 20")
	}
	if req.MaxTokens < minMaxTokens || req.MaxTokens > maxMaxTokens {
		return apperror.New(apperror.Validation, "max_tokens must be in [50, 4000]")
	}
	if req.Temperature < 0 || req.Temperature > 2 {
		return apperror.New(apperror.Validation, "temperature must be in [0, 2]")
	}
	return nil
}

// buildPrompt assembles an ordered context block -- each chunk
// rendered with an index tag and its relevant payload -- followed by
// the question, per spec.md §4.K.
func buildPrompt(req Request) string {
	var b strings.Builder
	b.WriteString("Context:\n")
	for i, s := range req.Chunks {
		b.WriteString(fmt.Sprintf("[%d] ", i+1))
		var tags []string
		if s.Sourcefile != "" {
			tags = append(tags, "source="+s.Sourcefile)
		}
		if s.Page > 0 {
			tags = append(tags, fmt.Sprintf("page=%d", s.Page))
		}
		if s.Title != "" {
			tags = append(tags, "title="+s.Title)
		}
		if len(tags) > 0 {
			b.WriteString("(" + strings.Join(tags, ", ") + ")\n")
		} else {
			b.WriteString("\n")
		}
		b.WriteString(s.Content)
		b.WriteString("\n\n")
	}
	b.WriteString("Question: ")
	b.WriteString(req.Question)
	return b.String()
}

// confidence = 0.8 * mean(chunk.score) + 0.2 * min(|chunks|/5, 1.0),
// per spec.md §4.K.
func confidence(chunks []Source) float64 {
	if len(chunks) == 0 {
		return 0
	}
	var sum float64
	for _, s := range chunks {
		sum += float64(s.Score)
	}
	mean := sum / float64(len(chunks))

	countTerm := float64(len(chunks)) / 5.0
	if countTerm > 1.0 {
		countTerm = 1.0
	}

	return 0.8*mean + 0.2*countTerm
}
