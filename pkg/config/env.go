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

package config

import (
	"os"
	"strconv"
	"strings"
)

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envStringSlice(key string, dst *[]string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		*dst = out
	}
}

// applyEnvOverrides overlays environment variables onto cfg, taking
// precedence over any value loaded from a YAML file.
func applyEnvOverrides(cfg *Config) {
	envString("RAGCORE_DB_DRIVER", &cfg.Database.Driver)
	envString("RAGCORE_DB_HOST", &cfg.Database.Host)
	envInt("RAGCORE_DB_PORT", &cfg.Database.Port)
	envString("RAGCORE_DB_NAME", &cfg.Database.Database)
	envString("RAGCORE_DB_USER", &cfg.Database.Username)
	envString("RAGCORE_DB_PASSWORD", &cfg.Database.Password)

	envString("RAGCORE_VECTOR_TYPE", &cfg.Vector.Type)
	envString("RAGCORE_VECTOR_HOST", &cfg.Vector.Host)
	envString("RAGCORE_VECTOR_API_KEY", &cfg.Vector.APIKey)
	envString("RAGCORE_VECTOR_COLLECTION", &cfg.Vector.Collection)

	envString("RAGCORE_EVENTBUS_DRIVER", &cfg.EventBus.Driver)
	envString("RAGCORE_EVENTBUS_URL", &cfg.EventBus.URL)

	envString("RAGCORE_EMBEDDER_PROVIDER", &cfg.Embedder.Provider)
	envString("RAGCORE_EMBEDDER_API_KEY", &cfg.Embedder.APIKey)

	envString("RAGCORE_LLM_API_KEY", &cfg.LLM.APIKey)
	envString("RAGCORE_LLM_MODEL", &cfg.LLM.Model)

	envInt("RAGCORE_CHUNK_SIZE", &cfg.Pipeline.ChunkSize)
	envInt("RAGCORE_CHUNK_OVERLAP", &cfg.Pipeline.ChunkOverlap)
	envInt("RAGCORE_MAX_CONCURRENT_PROCESSING", &cfg.Pipeline.MaxConcurrentProcessing)
	envInt("RAGCORE_BATCH_SIZE", &cfg.Pipeline.BatchSize)
	envString("RAGCORE_EMBEDDING_MODEL", &cfg.Pipeline.EmbeddingModel)
	envInt("RAGCORE_EMBEDDING_DIMENSION", &cfg.Pipeline.EmbeddingDimension)
	envString("RAGCORE_MAX_FILE_SIZE", &cfg.Pipeline.MaxFileSize)
	envStringSlice("RAGCORE_ALLOWED_FILE_TYPES", &cfg.Pipeline.AllowedFileTypes)

	envString("RAGCORE_LOG_LEVEL", &cfg.Logging.Level)
	envString("RAGCORE_LOG_FORMAT", &cfg.Logging.Format)
}
