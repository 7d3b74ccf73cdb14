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

package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/pkoukk/tiktoken-go"
)

// openAIDimensions mirrors the teacher's OpenAIEmbedder dimension
// table; dimension is a pure function of model name.
var openAIDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// openAITokenBudget is OpenAI's per-input token ceiling for every
// current embedding model.
const openAITokenBudget = 8191

// OpenAIConfig configures an OpenAIEmbedder.
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	Dimension int
	Timeout   time.Duration
	BatchSize int
}

// OpenAIEmbedder calls OpenAI's /embeddings endpoint, grounded on the
// teacher's embedders/openai.go request/response shapes.
type OpenAIEmbedder struct {
	client    *http.Client
	apiKey    string
	baseURL   string
	model     string
	dimension int
	batchSize int
	encoding  *tiktoken.Tiktoken
}

type openAIEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

type openAIErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// NewOpenAIEmbedder builds an embedder for cfg.Model, defaulting to
// text-embedding-3-small.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("embedding: OpenAI API key is required")
	}

	model := cfg.Model
	if model == "" {
		model = "text-embedding-3-small"
	}
	dimension := cfg.Dimension
	if dimension == 0 {
		dimension = openAIDimensions[model]
		if dimension == 0 {
			dimension = 1536
		}
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	encoding, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("embedding: load tiktoken encoding: %w", err)
	}

	return &OpenAIEmbedder{
		client:    &http.Client{Timeout: timeout},
		apiKey:    cfg.APIKey,
		baseURL:   baseURL,
		model:     model,
		dimension: dimension,
		batchSize: cfg.BatchSize,
		encoding:  encoding,
	}, nil
}

func (e *OpenAIEmbedder) Model() string  { return e.model }
func (e *OpenAIEmbedder) Dimension() int { return e.dimension }
func (e *OpenAIEmbedder) Close() error   { return nil }

func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string, opts Options) ([]Result, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	clamped := make([]string, len(texts))
	truncated := make([]bool, len(texts))
	for i, t := range texts {
		clamped[i], truncated[i] = clampToWordBoundary(t, openAITokenBudget, e.countTokens)
	}

	size := effectiveBatchSize(opts, e.batchSize)
	vectors, usages, err := embedInBatches(ctx, clamped, size, e.requestBatch)
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(vectors))
	for i, v := range vectors {
		results[i] = Result{
			Vector:    v,
			Model:     e.model,
			Dimension: e.dimension,
			Usage:     usages[i],
			Truncated: truncated[i],
		}
	}
	return results, nil
}

func (e *OpenAIEmbedder) countTokens(text string) int {
	return len(e.encoding.Encode(text, nil, nil))
}

func (e *OpenAIEmbedder) requestBatch(ctx context.Context, texts []string) ([][]float32, Usage, error) {
	reqBody, err := json.Marshal(openAIEmbedRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, Usage{}, fmt.Errorf("embedding: marshal OpenAI request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(reqBody))
	if err != nil {
		return nil, Usage{}, fmt.Errorf("embedding: build OpenAI request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, Usage{}, fmt.Errorf("embedding: OpenAI request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Usage{}, fmt.Errorf("embedding: read OpenAI response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, Usage{}, &RateLimitError{RetryAfter: retryAfter(resp.Header), Err: fmt.Errorf("openai returned 429")}
	}
	if resp.StatusCode != http.StatusOK {
		var errResp openAIErrorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
			return nil, Usage{}, fmt.Errorf("embedding: OpenAI API error: %s", errResp.Error.Message)
		}
		return nil, Usage{}, fmt.Errorf("embedding: OpenAI returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed openAIEmbedResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, Usage{}, fmt.Errorf("embedding: decode OpenAI response: %w", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, Usage{}, fmt.Errorf("embedding: OpenAI returned %d embeddings for %d inputs", len(parsed.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, item := range parsed.Data {
		if item.Index < 0 || item.Index >= len(vectors) {
			return nil, Usage{}, fmt.Errorf("embedding: OpenAI embedding index %d out of range", item.Index)
		}
		vectors[item.Index] = item.Embedding
	}

	usage := Usage{PromptTokens: parsed.Usage.PromptTokens, TotalTokens: parsed.Usage.TotalTokens}
	return vectors, usage, nil
}

// retryAfter parses a Retry-After header (seconds form) into a
// Duration, returning 0 when absent or unparseable so the caller
// falls back to linear backoff.
func retryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	seconds, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

var _ Embedder = (*OpenAIEmbedder)(nil)
