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

// Package config loads and validates the process configuration: an
// optional YAML file overlaid with environment variables, resolved
// into a single validated Config struct before any component starts.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the fully resolved, validated configuration for a ragcore
// process.
type Config struct {
	Database DatabaseConfig    `yaml:"database"`
	Vector   VectorStoreConfig `yaml:"vector"`
	EventBus EventBusConfig    `yaml:"event_bus"`
	Embedder EmbedderConfig    `yaml:"embedder"`
	LLM      LLMConfig         `yaml:"llm"`
	Pipeline PipelineConfig    `yaml:"pipeline"`
	Logging  LoggingConfig     `yaml:"logging"`
}

// Load reads an optional YAML file at path (skipped if path is empty
// or the file doesn't exist), overlays environment variables per the
// table below, fills defaults, and validates the result.
//
// Recognized environment variables:
//
//	RAGCORE_DB_DRIVER, RAGCORE_DB_HOST, RAGCORE_DB_PORT, RAGCORE_DB_NAME,
//	RAGCORE_DB_USER, RAGCORE_DB_PASSWORD
//	RAGCORE_VECTOR_TYPE, RAGCORE_VECTOR_HOST, RAGCORE_VECTOR_API_KEY,
//	RAGCORE_VECTOR_COLLECTION
//	RAGCORE_EVENTBUS_DRIVER, RAGCORE_EVENTBUS_URL
//	RAGCORE_EMBEDDER_PROVIDER, RAGCORE_EMBEDDER_API_KEY
//	RAGCORE_LLM_API_KEY, RAGCORE_LLM_MODEL
//	RAGCORE_CHUNK_SIZE, RAGCORE_CHUNK_OVERLAP,
//	RAGCORE_MAX_CONCURRENT_PROCESSING, RAGCORE_BATCH_SIZE,
//	RAGCORE_EMBEDDING_MODEL, RAGCORE_EMBEDDING_DIMENSION,
//	RAGCORE_MAX_FILE_SIZE, RAGCORE_ALLOWED_FILE_TYPES
//	RAGCORE_LOG_LEVEL, RAGCORE_LOG_FORMAT
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	applyEnvOverrides(cfg)

	cfg.Database.SetDefaults()
	cfg.Vector.SetDefaults()
	cfg.EventBus.SetDefaults()
	cfg.Embedder.SetDefaults()
	cfg.LLM.SetDefaults()
	cfg.Logging.SetDefaults()
	if err := cfg.Pipeline.SetDefaults(); err != nil {
		return nil, fmt.Errorf("pipeline config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate runs every sub-config's Validate method, wrapping the first
// failure with its section name.
func (c *Config) Validate() error {
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := c.Vector.Validate(); err != nil {
		return fmt.Errorf("vector: %w", err)
	}
	if err := c.EventBus.Validate(); err != nil {
		return fmt.Errorf("event_bus: %w", err)
	}
	if err := c.Embedder.Validate(); err != nil {
		return fmt.Errorf("embedder: %w", err)
	}
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	return nil
}
