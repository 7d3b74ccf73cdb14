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

package answer

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragwell/corpus/pkg/apperror"
	"github.com/ragwell/corpus/pkg/llm"
)

type fakeClient struct {
	lastRequest llm.Request
	response    llm.Response
	err         error
}

func (f *fakeClient) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	f.lastRequest = req
	if f.err != nil {
		return llm.Response{}, f.err
	}
	return f.response, nil
}
func (f *fakeClient) Close() error { return nil }

func validRequest() Request {
	return Request{
		Question: "What color is the sky?",
		Chunks: []Source{
			{ChunkID: "c1", DocumentID: "d1", Content: "The sky is blue on a clear day.", Score: 0.9, Sourcefile: "sky.txt", Page: 1},
		},
		Model:       "gpt-4o-mini",
		MaxTokens:   500,
		Temperature: 0.2,
	}
}

func TestComposeAssemblesPromptAndReturnsAnswer(t *testing.T) {
	client := &fakeClient{response: llm.Response{Text: "The sky is blue.", TokensUsed: 42}}
	composer := New(client)

	resp, err := composer.Compose(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, "The sky is blue.", resp.AnswerText)
	assert.Equal(t, 42, resp.TokensUsed)
	assert.GreaterOrEqual(t, resp.GenerationMS, int64(0))

	assert.Contains(t, client.lastRequest.Messages[1].Content, "[1]")
	assert.Contains(t, client.lastRequest.Messages[1].Content, "sky.txt")
	assert.Contains(t, client.lastRequest.Messages[1].Content, "What color is the sky?")
}

func TestComposeOmitsSourcesUnlessRequested(t *testing.T) {
	client := &fakeClient{response: llm.Response{Text: "answer"}}
	composer := New(client)

	req := validRequest()
	resp, err := composer.Compose(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, resp.Sources)

	req.IncludeSources = true
	resp, err = composer.Compose(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, resp.Sources, 1)
	assert.Equal(t, "c1", resp.Sources[0].ChunkID)
}

func TestComposeConfidenceFormula(t *testing.T) {
	client := &fakeClient{response: llm.Response{Text: "answer"}}
	composer := New(client)

	req := validRequest()
	req.Chunks = []Source{
		{ChunkID: "c1", Content: "a", Score: 1.0},
		{ChunkID: "c2", Content: "b", Score: 0.5},
	}
	resp, err := composer.Compose(context.Background(), req)
	require.NoError(t, err)

	// mean score = 0.75, count term = min(2/5, 1.0) = 0.4
	expected := 0.8*0.75 + 0.2*0.4
	assert.InDelta(t, expected, resp.Confidence, 1e-9)
}

func TestComposeValidation(t *testing.T) {
	client := &fakeClient{response: llm.Response{Text: "answer"}}
	composer := New(client)
	ctx := context.Background()

	cases := []struct {
		name string
		mod  func(*Request)
	}{
		{"empty question", func(r *Request) { r.Question = "" }},
		{"question too long", func(r *Request) { r.Question = strings.Repeat("a", 1001) }},
		{"no chunks", func(r *Request) { r.Chunks = nil }},
		{"too many chunks", func(r *Request) {
			chunks := make([]Source, 21)
			for i := range chunks {
				chunks[i] = Source{ChunkID: "c", Content: "x", Score: 0.5}
			}
			r.Chunks = chunks
		}},
		{"max_tokens too low", func(r *Request) { r.MaxTokens = 10 }},
		{"max_tokens too high", func(r *Request) { r.MaxTokens = 5000 }},
		{"temperature negative", func(r *Request) { r.Temperature = -0.1 }},
		{"temperature too high", func(r *Request) { r.Temperature = 2.1 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tc.mod(&req)
			_, err := composer.Compose(ctx, req)
			require.Error(t, err)
			assert.Equal(t, apperror.Validation, apperror.KindOf(err))
		})
	}
}

func TestComposeWrapsLLMErrorAsExternalService(t *testing.T) {
	client := &fakeClient{err: assertAnError{}}
	composer := New(client)

	_, err := composer.Compose(context.Background(), validRequest())
	require.Error(t, err)
	assert.Equal(t, apperror.ExternalService, apperror.KindOf(err))
}

type assertAnError struct{}

func (assertAnError) Error() string { return "simulated llm failure" }
