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
	"time"
)

// cohereDimensions mirrors the teacher's CohereEmbedder dimension table.
var cohereDimensions = map[string]int{
	"embed-english-v3.0":            1024,
	"embed-multilingual-v3.0":       1024,
	"embed-english-light-v3.0":      384,
	"embed-multilingual-light-v3.0": 384,
}

// cohereTokenBudget is Cohere's documented per-text token ceiling.
const cohereTokenBudget = 512

// CohereConfig configures a CohereEmbedder.
type CohereConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	Dimension int
	Timeout   time.Duration
	BatchSize int
}

// CohereEmbedder calls Cohere's /embed endpoint, grounded on the
// teacher's embedders/cohere.go request/response shapes.
type CohereEmbedder struct {
	client    *http.Client
	apiKey    string
	baseURL   string
	model     string
	dimension int
	batchSize int
}

type cohereEmbedRequest struct {
	Texts     []string `json:"texts"`
	Model     string   `json:"model,omitempty"`
	InputType string   `json:"input_type,omitempty"`
}

type cohereEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

type cohereErrorResponse struct {
	Message string `json:"message"`
}

// NewCohereEmbedder builds an embedder for cfg.Model, defaulting to
// embed-english-v3.0 with Cohere's own default batch size of 96.
func NewCohereEmbedder(cfg CohereConfig) (*CohereEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("embedding: Cohere API key is required")
	}

	model := cfg.Model
	if model == "" {
		model = "embed-english-v3.0"
	}
	dimension := cfg.Dimension
	if dimension == 0 {
		dimension = cohereDimensions[model]
		if dimension == 0 {
			dimension = 1024
		}
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.cohere.ai/v1"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 96
	}

	return &CohereEmbedder{
		client:    &http.Client{Timeout: timeout},
		apiKey:    cfg.APIKey,
		baseURL:   baseURL,
		model:     model,
		dimension: dimension,
		batchSize: batchSize,
	}, nil
}

func (e *CohereEmbedder) Model() string  { return e.model }
func (e *CohereEmbedder) Dimension() int { return e.dimension }
func (e *CohereEmbedder) Close() error   { return nil }

func (e *CohereEmbedder) EmbedBatch(ctx context.Context, texts []string, opts Options) ([]Result, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	clamped := make([]string, len(texts))
	truncated := make([]bool, len(texts))
	for i, t := range texts {
		clamped[i], truncated[i] = clampToWordBoundary(t, cohereTokenBudget, estimateTokensByWord)
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

func (e *CohereEmbedder) requestBatch(ctx context.Context, texts []string) ([][]float32, Usage, error) {
	reqBody, err := json.Marshal(cohereEmbedRequest{Texts: texts, Model: e.model, InputType: "search_document"})
	if err != nil {
		return nil, Usage{}, fmt.Errorf("embedding: marshal Cohere request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embed", bytes.NewReader(reqBody))
	if err != nil {
		return nil, Usage{}, fmt.Errorf("embedding: build Cohere request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, Usage{}, fmt.Errorf("embedding: Cohere request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Usage{}, fmt.Errorf("embedding: read Cohere response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, Usage{}, &RateLimitError{RetryAfter: retryAfter(resp.Header), Err: fmt.Errorf("cohere returned 429")}
	}
	if resp.StatusCode != http.StatusOK {
		var errResp cohereErrorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Message != "" {
			return nil, Usage{}, fmt.Errorf("embedding: Cohere API error: %s", errResp.Message)
		}
		return nil, Usage{}, fmt.Errorf("embedding: Cohere returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed cohereEmbedResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, Usage{}, fmt.Errorf("embedding: decode Cohere response: %w", err)
	}
	if len(parsed.Embeddings) != len(texts) {
		return nil, Usage{}, fmt.Errorf("embedding: Cohere returned %d embeddings for %d inputs", len(parsed.Embeddings), len(texts))
	}

	// Cohere's API does not report token usage per request; approximate
	// from the word-based estimate used for the token-budget clamp.
	total := 0
	for _, t := range texts {
		total += estimateTokensByWord(t)
	}
	return parsed.Embeddings, Usage{PromptTokens: total, TotalTokens: total}, nil
}

var _ Embedder = (*CohereEmbedder)(nil)
