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

// EventBusConfig configures the publish/subscribe backend the Job
// Engine uses to emit stage-completion events.
type EventBusConfig struct {
	// Driver selects the backend: "nats" or "memory".
	Driver string `yaml:"driver"`

	// URL is the NATS server URL (ignored for the memory driver).
	URL string `yaml:"url,omitempty"`

	// Stream is the JetStream stream name backing durable consumers.
	Stream string `yaml:"stream,omitempty"`

	// MaxDeliver caps how often JetStream redelivers a message that was
	// not acknowledged. A handler error does not cause redelivery: the
	// message is acked and reported on the dead-letter topic at once.
	MaxDeliver int `yaml:"max_deliver,omitempty"`
}

// SetDefaults fills in unset fields with their defaults.
func (c *EventBusConfig) SetDefaults() {
	if c.Driver == "" {
		c.Driver = "memory"
	}
	if c.URL == "" {
		c.URL = "nats://127.0.0.1:4222"
	}
	if c.Stream == "" {
		c.Stream = "ragcore-events"
	}
	if c.MaxDeliver == 0 {
		c.MaxDeliver = 5
	}
}

// Validate reports a validation error for an unsupported driver.
func (c *EventBusConfig) Validate() error {
	switch c.Driver {
	case "nats", "memory":
		return nil
	default:
		return fmt.Errorf("invalid event bus driver %q (valid: nats, memory)", c.Driver)
	}
}
