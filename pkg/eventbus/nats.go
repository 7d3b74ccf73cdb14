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
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
)

// JetStreamConfig configures the NATS JetStream backend.
type JetStreamConfig struct {
	URL             string
	Stream          string
	MaxDeliver      int
	DeadLetterTopic string
}

// JetStreamBus implements Bus over a NATS JetStream stream. Each topic
// maps to a subject under the stream (`<stream>.<topic>`); a publish
// key becomes an extra subject token (`<stream>.<topic>.<key>`), which
// lets a durable consumer subscribe with a wildcard and still have
// JetStream preserve per-subject (i.e. per-key) ordering. Consumer
// groups map onto NATS queue-group durable consumers, so members of
// the same group split keys between them while each group gets its
// own full copy of the topic.
type JetStreamBus struct {
	conn            *nats.Conn
	js              nats.JetStreamContext
	source          string
	stream          string
	maxDeliver      int
	deadLetterTopic string

	mu   sync.Mutex
	subs []*nats.Subscription
}

// NewJetStreamBus connects to NATS and ensures the configured stream
// exists.
func NewJetStreamBus(cfg JetStreamConfig, source string) (*JetStreamBus, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.Stream == "" {
		cfg.Stream = "ragcore-events"
	}
	if cfg.MaxDeliver == 0 {
		cfg.MaxDeliver = 5
	}
	if cfg.DeadLetterTopic == "" {
		cfg.DeadLetterTopic = "events.dead_letter"
	}

	conn, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", cfg.URL, err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open jetstream context: %w", err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:     cfg.Stream,
		Subjects: []string{cfg.Stream + ".>"},
	})
	if err != nil && !strings.Contains(err.Error(), "already in use") {
		conn.Close()
		return nil, fmt.Errorf("ensure jetstream stream %q: %w", cfg.Stream, err)
	}

	return &JetStreamBus{
		conn:            conn,
		js:              js,
		source:          source,
		stream:          cfg.Stream,
		maxDeliver:      cfg.MaxDeliver,
		deadLetterTopic: cfg.DeadLetterTopic,
	}, nil
}

func (b *JetStreamBus) subject(topic, key string) string {
	s := b.stream + "." + topic
	if key != "" {
		s += "." + key
	}
	return s
}

// natsHeaderCarrier adapts nats.Msg headers for OTel's TextMapCarrier,
// the same shape natsutil uses for trace propagation.
type natsHeaderCarrier nats.Msg

func (c *natsHeaderCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *natsHeaderCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *natsHeaderCarrier) Keys() []string {
	if c.Header == nil {
		return nil
	}
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

func (b *JetStreamBus) Publish(ctx context.Context, topic, key string, value any, headers map[string]string) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	env := Envelope{EventType: topic, Source: b.source, Timestamp: time.Now(), Data: data}
	if headers != nil {
		env.CorrelationID = headers["correlation_id"]
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}

	msg := nats.NewMsg(b.subject(topic, key))
	msg.Data = payload
	for k, v := range headers {
		if msg.Header == nil {
			msg.Header = make(nats.Header)
		}
		msg.Header.Set(k, v)
	}
	otel.GetTextMapPropagator().Inject(ctx, (*natsHeaderCarrier)(msg))

	_, err = b.js.PublishMsg(msg)
	return err
}

func (b *JetStreamBus) Subscribe(ctx context.Context, topic, group string, handler Handler) (Subscription, error) {
	subj := b.subject(topic, "*")

	sub, err := b.js.QueueSubscribe(subj, group, func(msg *nats.Msg) {
		var env Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			_ = msg.Ack()
			return
		}

		m := Message{
			Topic:    topic,
			Key:      keyFromSubject(msg.Subject, b.stream, topic),
			Envelope: env,
			Headers:  headersFromMsg(msg),
		}

		handlerCtx := otel.GetTextMapPropagator().Extract(ctx, (*natsHeaderCarrier)(msg))
		if err := handler(handlerCtx, m); err != nil {
			b.publishDeadLetter(handlerCtx, m, err)
		}

		// Ack regardless of handler outcome: a poison message must not
		// block the partition forever. Failures are surfaced via the
		// dead-letter topic instead of redelivery.
		_ = msg.Ack()
	}, nats.Durable(durableName(group)), nats.ManualAck(), nats.AckExplicit(), nats.MaxDeliver(b.maxDeliver))
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s (group %s): %w", subj, group, err)
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	return &jetStreamSubscription{sub: sub}, nil
}

func (b *JetStreamBus) publishDeadLetter(ctx context.Context, msg Message, handlerErr error) {
	_ = b.Publish(ctx, b.deadLetterTopic, msg.Key, map[string]any{
		"topic": msg.Topic,
		"key":   msg.Key,
		"error": handlerErr.Error(),
	}, nil)
}

func (b *JetStreamBus) Close() error {
	b.mu.Lock()
	subs := b.subs
	b.mu.Unlock()
	for _, sub := range subs {
		_ = sub.Unsubscribe()
	}
	b.conn.Close()
	return nil
}

type jetStreamSubscription struct {
	sub *nats.Subscription
}

func (s *jetStreamSubscription) Unsubscribe() error {
	return s.sub.Unsubscribe()
}

// durableName sanitizes a consumer group name into a legal JetStream
// durable consumer name (no dots, spaces, or wildcards).
func durableName(group string) string {
	r := strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_")
	return r.Replace(group)
}

// keyFromSubject recovers the partition key appended to the subject
// by Publish, given the known stream and topic prefix.
func keyFromSubject(subject, stream, topic string) string {
	prefix := stream + "." + topic + "."
	if strings.HasPrefix(subject, prefix) {
		return subject[len(prefix):]
	}
	return ""
}

func headersFromMsg(msg *nats.Msg) map[string]string {
	if msg.Header == nil {
		return nil
	}
	out := make(map[string]string, len(msg.Header))
	for k := range msg.Header {
		out[k] = msg.Header.Get(k)
	}
	return out
}

var _ Bus = (*JetStreamBus)(nil)
