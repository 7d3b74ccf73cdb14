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

package main

import (
	"context"
	"fmt"

	"github.com/ragwell/corpus/pkg/answer"
	"github.com/ragwell/corpus/pkg/retrieval"
)

// AskCmd runs one end-to-end query: retrieve the relevant chunks, then
// compose an answer grounded on them.
type AskCmd struct {
	Question       string  `required:"" help:"Question to ask."`
	UserID         string  `help:"User on whose behalf this query runs."`
	Mode           string  `help:"Retrieval mode (semantic, keyword, hybrid)." default:"hybrid"`
	Limit          int     `help:"Maximum chunks to retrieve." default:"5"`
	Threshold      float32 `help:"Minimum fused score to keep a result." default:"0.0"`
	MaxTokens      int     `help:"Maximum answer tokens." default:"500"`
	Temperature    float64 `help:"LLM sampling temperature." default:"0.2"`
	Model          string  `help:"LLM model name." default:"gpt-4o-mini"`
	IncludeSources bool    `help:"Include source citations in the answer."`
}

func (c *AskCmd) Run(cli *CLI) error {
	cfg, err := loadConfig(cli.Config)
	if err != nil {
		return err
	}

	app, err := buildApp(cfg)
	if err != nil {
		return err
	}

	ctx := context.Background()

	results, err := app.Retrieval.Retrieve(ctx, retrieval.Query{
		UserID:    c.UserID,
		QueryText: c.Question,
		Mode:      retrieval.Mode(c.Mode),
		Limit:     c.Limit,
		Threshold: c.Threshold,
	})
	if err != nil {
		return fmt.Errorf("retrieve: %w", err)
	}

	sources := make([]answer.Source, len(results))
	for i, r := range results {
		sources[i] = answer.Source{
			ChunkID:    r.ChunkID,
			DocumentID: r.DocumentID,
			Content:    r.Content,
			Score:      r.Score,
		}
	}

	resp, err := app.Answer.Compose(ctx, answer.Request{
		UserID:         c.UserID,
		Question:       c.Question,
		Chunks:         sources,
		Model:          c.Model,
		MaxTokens:      c.MaxTokens,
		Temperature:    c.Temperature,
		IncludeSources: c.IncludeSources,
	})
	if err != nil {
		return fmt.Errorf("compose answer: %w", err)
	}

	fmt.Println(resp.AnswerText)
	if c.IncludeSources {
		fmt.Println("\nSources:")
		for _, s := range resp.Sources {
			fmt.Printf("  [%s] %s (score=%.3f)\n", s.ChunkID, s.DocumentID, s.Score)
		}
	}
	return nil
}
