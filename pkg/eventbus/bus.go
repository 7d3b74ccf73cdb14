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

// Package eventbus provides a topic-partitioned, ordered-per-key event
// log with consumer groups and at-least-once delivery, used to
// broadcast pipeline state changes (document uploaded, chunks created,
// embeddings generated, ...) without coupling stages directly to one
// another.
package eventbus

import (
	"context"
	"encoding/json"
	"time"
)

// Envelope is the standard JSON wrapper every published message
// carries: event_type is the topic name, source identifies the
// publishing component, and data is the caller's payload.
type Envelope struct {
	EventType     string          `json:"event_type"`
	Source        string          `json:"source"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
	Data          json.RawMessage `json:"data"`
}

// Message is one delivered event, decoded and ready for a handler.
type Message struct {
	Topic    string
	Key      string
	Envelope Envelope
	Headers  map[string]string
}

// Handler processes one Message. A returned error does not block
// delivery of the next message (the offset still commits) but causes
// the bus to publish a processing_failed event on the dead-letter
// topic, per spec's poison-message-avoidance rule.
type Handler func(ctx context.Context, msg Message) error

// Subscription lets a caller stop receiving further messages.
type Subscription interface {
	Unsubscribe() error
}

// Bus is the contract every backend (NATS JetStream, in-memory fake)
// implements. Publish order is only guaranteed among messages sharing
// the same key within the same topic. Within a consumer group, each
// partition (key) is delivered to exactly one member at a time.
type Bus interface {
	// Publish serializes value into an Envelope and appends it to
	// topic, ordered after any prior publish to the same topic+key.
	Publish(ctx context.Context, topic, key string, value any, headers map[string]string) error

	// Subscribe registers handler to receive every message published
	// to topic, sharing partitions exclusively with other members of
	// group. Different groups each receive their own full copy of the
	// topic.
	Subscribe(ctx context.Context, topic, group string, handler Handler) (Subscription, error)

	Close() error
}
