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

	"github.com/ragwell/corpus/pkg/jobs"
)

// IngestCmd enqueues a full_pipeline job for a document. The worker
// command's engine picks it up and runs extract -> chunk -> embed ->
// dedup, the way an operator drives ingestion independently
// of whatever uploaded the raw file.
type IngestCmd struct {
	DocumentID string `required:"" help:"Document identifier to associate with this ingestion."`
	UserID     string `required:"" help:"User on whose behalf this document is ingested."`
	File       string `required:"" help:"Path to the source file." type:"path"`
	FileType   string `required:"" help:"File type (pdf, docx, doc, txt, html, md)."`
	Priority   int    `help:"Job priority, higher runs first." default:"0"`
	MaxRetries int    `help:"Maximum retry attempts." default:"3"`
}

func (c *IngestCmd) Run(cli *CLI) error {
	cfg, err := loadConfig(cli.Config)
	if err != nil {
		return err
	}

	app, err := buildApp(cfg)
	if err != nil {
		return err
	}

	params := map[string]any{
		"file_path": c.File,
		"file_type": c.FileType,
	}

	job, err := app.Engine.CreateJob(context.Background(), c.DocumentID, c.UserID, jobs.KindFullPipeline, params, c.Priority, c.MaxRetries)
	if err != nil {
		return err
	}

	fmt.Printf("enqueued job %s (document=%s, kind=%s)\n", job.ID, job.DocumentID, job.Kind)
	return nil
}
