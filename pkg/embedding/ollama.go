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
	"sync"
	"time"
)

// ollamaTokenBudget approximates nomic-embed-text's context window;
// Ollama's /api/embeddings endpoint has no documented universal limit,
// so this is conservative rather than exact.
const ollamaTokenBudget = 8192

// ollamaEmbedMu serializes every Ollama embedding request across all
// OllamaEmbedder instances: the teacher's comment on this same global
// lock still applies — Ollama's llama runner has been observed to
// crash (SIGABRT) on concurrent embedding requests.
var ollamaEmbedMu sync.Mutex

// OllamaConfig configures an OllamaEmbedder.
type OllamaConfig struct {
	BaseURL   string
	Model     string
	Dimension int
	Timeout   time.Duration
	BatchSize int
}

// OllamaEmbedder calls a local Ollama server's /api/embeddings
// endpoint, grounded on the teacher's embedders/ollama.go. Ollama has
// no batch embedding endpoint, so each text in a "batch" is sent as
// its own request, serialized behind ollamaEmbedMu.
type OllamaEmbedder struct {
	client    *http.Client
	baseURL   string
	model     string
	dimension int
	batchSize int
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// NewOllamaEmbedder builds an embedder against a local Ollama server,
// defaulting to nomic-embed-text/768 dimensions as the teacher does.
func NewOllamaEmbedder(cfg OllamaConfig) *OllamaEmbedder {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	model := cfg.Model
	if model == "" {
		model = "nomic-embed-text"
	}
	dimension := cfg.Dimension
	if dimension == 0 {
		dimension = 768
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &OllamaEmbedder{
		client:    &http.Client{Timeout: timeout},
		baseURL:   baseURL,
		model:     model,
		dimension: dimension,
		batchSize: batchSize,
	}
}

func (e *OllamaEmbedder) Model() string  { return e.model }
func (e *OllamaEmbedder) Dimension() int { return e.dimension }
func (e *OllamaEmbedder) Close() error   { return nil }

func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string, opts Options) ([]Result, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	clamped := make([]string, len(texts))
	truncated := make([]bool, len(texts))
	for i, t := range texts {
		clamped[i], truncated[i] = clampToWordBoundary(t, ollamaTokenBudget, estimateTokensByWord)
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

// requestBatch issues one /api/embeddings call per text: Ollama has
// no native batch endpoint, unlike OpenAI/Cohere.
func (e *OllamaEmbedder) requestBatch(ctx context.Context, texts []string) ([][]float32, Usage, error) {
	ollamaEmbedMu.Lock()
	defer ollamaEmbedMu.Unlock()

	vectors := make([][]float32, len(texts))
	totalTokens := 0

	for i, text := range texts {
		vector, err := e.requestOne(ctx, text)
		if err != nil {
			return nil, Usage{}, err
		}
		vectors[i] = vector
		totalTokens += estimateTokensByWord(text)
	}

	return vectors, Usage{PromptTokens: totalTokens, TotalTokens: totalTokens}, nil
}

func (e *OllamaEmbedder) requestOne(ctx context.Context, text string) ([]float32, error) {
	reqBody, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("embedding: marshal Ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embeddings", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("embedding: build Ollama request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("embedding: Ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &RateLimitError{RetryAfter: retryAfter(resp.Header), Err: fmt.Errorf("ollama returned 429")}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding: Ollama returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("embedding: decode Ollama response: %w", err)
	}
	if len(parsed.Embedding) == 0 {
		return nil, fmt.Errorf("embedding: Ollama returned an empty embedding")
	}

	return parsed.Embedding, nil
}

var _ Embedder = (*OllamaEmbedder)(nil)
