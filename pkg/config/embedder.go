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

import "fmt"

// EmbedderConfig configures the embedding provider used by the Job
// Engine's embed stage.
type EmbedderConfig struct {
	// Provider selects the backend: "openai", "cohere", or "ollama".
	Provider string `yaml:"provider"`

	// APIKey authenticates against the provider (not used for ollama).
	APIKey string `yaml:"api_key,omitempty"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url,omitempty"`

	// MaxRetries is defaulted here but not passed to any embedder; the
	// embedders' rate-limit retry loop has its own fixed bound.
	MaxRetries int `yaml:"max_retries,omitempty"`
}

// SetDefaults fills in unset fields with their defaults.
func (c *EmbedderConfig) SetDefaults() {
	if c.Provider == "" {
		c.Provider = "openai"
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.BaseURL == "" {
		switch c.Provider {
		case "openai":
			c.BaseURL = "https://api.openai.com/v1"
		case "cohere":
			c.BaseURL = "https://api.cohere.ai/v1"
		case "ollama":
			c.BaseURL = "http://localhost:11434"
		}
	}
}

// Validate reports a validation error for an unsupported provider or a
// missing credential it requires.
func (c *EmbedderConfig) Validate() error {
	switch c.Provider {
	case "openai", "cohere":
		if c.APIKey == "" {
			return fmt.Errorf("api_key is required for %s embedder", c.Provider)
		}
	case "ollama":
	default:
		return fmt.Errorf("invalid embedder provider %q (valid: openai, cohere, ollama)", c.Provider)
	}
	return nil
}
