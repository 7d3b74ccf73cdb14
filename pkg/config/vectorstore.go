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

// VectorStoreConfig configures the vector index backend and the
// collection the pipeline writes to.
type VectorStoreConfig struct {
	// Type selects the backend: "chromem", "qdrant", or "pinecone".
	Type string `yaml:"type"`

	// Host for external vector stores (qdrant).
	Host string `yaml:"host,omitempty"`

	// Port for external vector stores (qdrant).
	Port int `yaml:"port,omitempty"`

	// APIKey for authenticated access (qdrant, pinecone).
	APIKey string `yaml:"api_key,omitempty"`

	// PersistPath for chromem file persistence.
	PersistPath string `yaml:"persist_path,omitempty"`

	// IndexName for Pinecone.
	IndexName string `yaml:"index_name,omitempty"`

	// Collection is the collection/index name used by ingestion and
	// retrieval (`vector_collection` in the configuration table).
	Collection string `yaml:"collection"`

	// Size is the embedding vector dimension (`vector_size`).
	Size int `yaml:"size"`

	// Distance is the similarity metric: "cosine", "dot", or "euclid"
	// (`vector_distance`).
	Distance string `yaml:"distance"`
}

// SetDefaults fills in unset fields with their defaults.
func (c *VectorStoreConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = "chromem"
	}
	if c.Port == 0 && c.Type == "qdrant" {
		c.Port = 6333
	}
	if c.Collection == "" {
		c.Collection = "documents"
	}
	if c.Size == 0 {
		c.Size = 1536
	}
	if c.Distance == "" {
		c.Distance = "cosine"
	}
}

// Validate reports a validation error for an unsupported backend type,
// distance metric, or a missing field required by the selected backend.
func (c *VectorStoreConfig) Validate() error {
	switch c.Type {
	case "chromem", "qdrant", "pinecone":
	default:
		return fmt.Errorf("invalid vector store type %q (valid: chromem, qdrant, pinecone)", c.Type)
	}

	switch c.Distance {
	case "cosine", "dot", "euclid":
	default:
		return fmt.Errorf("invalid vector distance %q (valid: cosine, dot, euclid)", c.Distance)
	}

	if c.Type == "qdrant" && c.Host == "" {
		return fmt.Errorf("host is required for qdrant vector store")
	}
	if c.Type == "pinecone" && c.APIKey == "" {
		return fmt.Errorf("api_key is required for pinecone vector store")
	}
	if c.Size <= 0 {
		return fmt.Errorf("vector size must be positive, got %d", c.Size)
	}

	return nil
}

// IsEmbedded reports whether the backend runs in-process rather than
// against an external service.
func (c *VectorStoreConfig) IsEmbedded() bool {
	return c.Type == "chromem"
}
