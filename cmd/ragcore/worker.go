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
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ragwell/corpus/pkg/logging"
)

// WorkerCmd starts the job engine's worker pool and blocks until an
// interrupt or terminate signal arrives, then shuts down cooperatively
// -- the non-HTTP equivalent of the teacher's serve command's
// signal.Notify/graceful-shutdown shape.
type WorkerCmd struct{}

func (c *WorkerCmd) Run(cli *CLI) error {
	cfg, err := loadConfig(cli.Config)
	if err != nil {
		return err
	}

	app, err := buildApp(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := app.Engine.Start(ctx); err != nil {
		return err
	}

	logging.Get().Info("worker pool started", slog.Int("workers", cfg.Pipeline.MaxConcurrentProcessing))
	<-ctx.Done()
	logging.Get().Info("shutting down")

	return app.Engine.Stop(context.Background())
}
