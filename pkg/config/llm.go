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

// LLMConfig configures the chat-completion provider used by the Answer
// Composer. ragcore builds its LLM client from APIKey and BaseURL only;
// Model, Temperature and MaxTokens are defaulted and validated here but
// not read by ragcore, whose ask command takes them from its own flags.
type LLMConfig struct {
	// Provider selects the backend; only "openai" is implemented.
	Provider string `yaml:"provider"`

	// APIKey authenticates against the provider.
	APIKey string `yaml:"api_key,omitempty"`

	// Model is the chat-completion model identifier.
	Model string `yaml:"model"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url,omitempty"`

	// Temperature controls answer randomness.
	Temperature float64 `yaml:"temperature,omitempty"`

	// MaxTokens bounds the generated answer length.
	MaxTokens int `yaml:"max_tokens,omitempty"`
}

// SetDefaults fills in unset fields with their defaults.
func (c *LLMConfig) SetDefaults() {
	if c.Provider == "" {
		c.Provider = "openai"
	}
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 1024
	}
}

// Validate reports a validation error for an unsupported provider or a
// missing credential.
func (c *LLMConfig) Validate() error {
	if c.Provider != "openai" {
		return fmt.Errorf("invalid llm provider %q (valid: openai)", c.Provider)
	}
	if c.APIKey == "" {
		return fmt.Errorf("api_key is required for the llm client")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be in [0, 2], got %f", c.Temperature)
	}
	return nil
}
