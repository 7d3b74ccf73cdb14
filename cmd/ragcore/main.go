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
//
// Usage:
//
//	ragcore worker --config config.yaml
//	ragcore ingest --config config.yaml --document-id doc-1 --user-id user-1 --file report.pdf --file-type pdf
//	ragcore ask --config config.yaml --question "what does the report say?"
//	ragcore validate config.yaml
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"github.com/ragwell/corpus/pkg/config"
	"github.com/ragwell/corpus/pkg/logging"
)

// CLI defines ragcore's command-line interface, grounded on the
// teacher's kong.Kong{CLI struct, one field per subcommand} shape in
// cmd/hector/main.go.
type CLI struct {
	Worker   WorkerCmd   `cmd:"" help:"Run the job engine's worker pool."`
	Ingest   IngestCmd   `cmd:"" help:"Enqueue a document for processing."`
	Ask      AskCmd      `cmd:"" help:"Retrieve context and compose an answer."`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration file."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFormat string `help:"Log format (simple, verbose, or custom)." default:"simple"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("ragcore"),
		kong.Description("Document ingestion, retrieval, and answer composition pipeline."),
	)

	level, err := logging.ParseLevel(cli.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	logging.Init(level, os.Stderr, cli.LogFormat)

	if err := ctx.Run(&cli); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig loads and validates the configuration at path.
func loadConfig(path string) (*config.Config, error) {
	return config.Load(path)
}
