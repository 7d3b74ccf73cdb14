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

package eventbus

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"sync"
	"time"
)

// MemoryBus is an in-process Bus for tests that don't need a live NATS
// server. Ordering per key is preserved by always routing a given key
// to the same group member; an uncaught handler error is swallowed
// (the message still "commits") and a processing_failed envelope is
// published to the dead-letter topic, mirroring the JetStream backend.
type MemoryBus struct {
	source          string
	deadLetterTopic string

	mu     sync.Mutex
	topics map[string]*memTopic
}

type memTopic struct {
	mu     sync.Mutex
	groups map[string]*memGroup
}

type memGroup struct {
	mu      sync.Mutex
	members []*memMember
}

type memMember struct {
	ch   chan Message
	done chan struct{}
}

// NewMemoryBus returns an empty in-memory event bus. source tags every
// published envelope; deadLetterTopic receives processing_failed
// events for handlers that return an error (defaults to
// "events.dead_letter" if empty).
func NewMemoryBus(source, deadLetterTopic string) *MemoryBus {
	if deadLetterTopic == "" {
		deadLetterTopic = "events.dead_letter"
	}
	return &MemoryBus{
		source:          source,
		deadLetterTopic: deadLetterTopic,
		topics:          make(map[string]*memTopic),
	}
}

func (b *MemoryBus) getTopic(name string) *memTopic {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.topics[name]
	if !ok {
		t = &memTopic{groups: make(map[string]*memGroup)}
		b.topics[name] = t
	}
	return t
}

func (b *MemoryBus) Publish(ctx context.Context, topic, key string, value any, headers map[string]string) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	msg := Message{
		Topic: topic,
		Key:   key,
		Envelope: Envelope{
			EventType: topic,
			Source:    b.source,
			Timestamp: time.Now(),
			Data:      data,
		},
		Headers: headers,
	}
	if headers != nil {
		msg.Envelope.CorrelationID = headers["correlation_id"]
	}

	t := b.getTopic(topic)
	t.mu.Lock()
	groups := make([]*memGroup, 0, len(t.groups))
	for _, g := range t.groups {
		groups = append(groups, g)
	}
	t.mu.Unlock()

	for _, g := range groups {
		g.mu.Lock()
		members := g.members
		g.mu.Unlock()
		if len(members) == 0 {
			continue
		}
		members[partitionIndex(key, len(members))].ch <- msg
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, topic, group string, handler Handler) (Subscription, error) {
	t := b.getTopic(topic)
	t.mu.Lock()
	g, ok := t.groups[group]
	if !ok {
		g = &memGroup{}
		t.groups[group] = g
	}
	t.mu.Unlock()

	member := &memMember{ch: make(chan Message, 256), done: make(chan struct{})}

	g.mu.Lock()
	g.members = append(g.members, member)
	g.mu.Unlock()

	go func() {
		for {
			select {
			case msg, ok := <-member.ch:
				if !ok {
					return
				}
				if err := handler(ctx, msg); err != nil {
					b.publishDeadLetter(ctx, msg, err)
				}
			case <-member.done:
				return
			}
		}
	}()

	return &memSubscription{bus: b, topic: topic, group: group, member: member}, nil
}

func (b *MemoryBus) publishDeadLetter(ctx context.Context, msg Message, handlerErr error) {
	_ = b.Publish(ctx, b.deadLetterTopic, msg.Key, map[string]any{
		"topic": msg.Topic,
		"key":   msg.Key,
		"error": handlerErr.Error(),
	}, nil)
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range b.topics {
		t.mu.Lock()
		for _, g := range t.groups {
			g.mu.Lock()
			for _, m := range g.members {
				close(m.done)
			}
			g.mu.Unlock()
		}
		t.mu.Unlock()
	}
	return nil
}

type memSubscription struct {
	bus    *MemoryBus
	topic  string
	group  string
	member *memMember
}

func (s *memSubscription) Unsubscribe() error {
	s.bus.mu.Lock()
	t, ok := s.bus.topics[s.topic]
	s.bus.mu.Unlock()
	if !ok {
		return nil
	}

	t.mu.Lock()
	g, ok := t.groups[s.group]
	t.mu.Unlock()
	if !ok {
		return nil
	}

	g.mu.Lock()
	for i, m := range g.members {
		if m == s.member {
			g.members = append(g.members[:i], g.members[i+1:]...)
			break
		}
	}
	g.mu.Unlock()

	close(s.member.done)
	return nil
}

// partitionIndex deterministically maps key onto one of n members so
// every message for the same key always lands on the same member,
// preserving per-key order and group-exclusive processing.
func partitionIndex(key string, n int) int {
	if n <= 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(n))
}

var _ Bus = (*MemoryBus)(nil)
