package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type uploadedPayload struct {
	DocumentID string `json:"document_id"`
}

func TestPublishSubscribeDeliversEnvelope(t *testing.T) {
	bus := NewMemoryBus("test-service", "")
	defer bus.Close()

	received := make(chan Message, 1)
	_, err := bus.Subscribe(context.Background(), "document.uploaded", "ingest", func(ctx context.Context, msg Message) error {
		received <- msg
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), "document.uploaded", "doc-1",
		uploadedPayload{DocumentID: "doc-1"}, nil))

	select {
	case msg := <-received:
		assert.Equal(t, "document.uploaded", msg.Envelope.EventType)
		assert.Equal(t, "test-service", msg.Envelope.Source)
		assert.Equal(t, "doc-1", msg.Key)

		var data uploadedPayload
		require.NoError(t, json.Unmarshal(msg.Envelope.Data, &data))
		assert.Equal(t, "doc-1", data.DocumentID)
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
}

func TestKeyOrderingPreservedWithinGroup(t *testing.T) {
	bus := NewMemoryBus("test-service", "")
	defer bus.Close()

	var mu sync.Mutex
	var order []int

	done := make(chan struct{})
	count := 0
	_, err := bus.Subscribe(context.Background(), "chunks.created", "indexer", func(ctx context.Context, msg Message) error {
		var n int
		_ = json.Unmarshal(msg.Envelope.Data, &n)
		mu.Lock()
		order = append(order, n)
		count++
		if count == 5 {
			close(done)
		}
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Publish(context.Background(), "chunks.created", "doc-1", i, nil))
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("messages not delivered")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestHandlerErrorPublishesToDeadLetterTopicAndStillCommits(t *testing.T) {
	bus := NewMemoryBus("test-service", "events.dead_letter")
	defer bus.Close()

	dlq := make(chan Message, 1)
	_, err := bus.Subscribe(context.Background(), "events.dead_letter", "monitor", func(ctx context.Context, msg Message) error {
		dlq <- msg
		return nil
	})
	require.NoError(t, err)

	processed := make(chan struct{}, 2)
	_, err = bus.Subscribe(context.Background(), "embeddings.generated", "indexer", func(ctx context.Context, msg Message) error {
		processed <- struct{}{}
		return errors.New("boom")
	})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), "embeddings.generated", "doc-1", map[string]any{"n": 1}, nil))
	require.NoError(t, bus.Publish(context.Background(), "embeddings.generated", "doc-1", map[string]any{"n": 2}, nil))

	for i := 0; i < 2; i++ {
		select {
		case <-processed:
		case <-time.After(time.Second):
			t.Fatal("handler never invoked for message", i)
		}
	}

	select {
	case msg := <-dlq:
		assert.Equal(t, "events.dead_letter", msg.Envelope.EventType)
		var data map[string]any
		require.NoError(t, json.Unmarshal(msg.Envelope.Data, &data))
		assert.Equal(t, "embeddings.generated", data["topic"])
	case <-time.After(time.Second):
		t.Fatal("dead-letter event not published")
	}
}

func TestSeparateGroupsEachReceiveTheirOwnCopy(t *testing.T) {
	bus := NewMemoryBus("test-service", "")
	defer bus.Close()

	groupA := make(chan Message, 1)
	groupB := make(chan Message, 1)

	_, err := bus.Subscribe(context.Background(), "text.extracted", "group-a", func(ctx context.Context, msg Message) error {
		groupA <- msg
		return nil
	})
	require.NoError(t, err)

	_, err = bus.Subscribe(context.Background(), "text.extracted", "group-b", func(ctx context.Context, msg Message) error {
		groupB <- msg
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), "text.extracted", "doc-1", map[string]any{}, nil))

	for _, ch := range []chan Message{groupA, groupB} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatal("group did not receive its own copy")
		}
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewMemoryBus("test-service", "")
	defer bus.Close()

	received := make(chan Message, 2)
	sub, err := bus.Subscribe(context.Background(), "document.uploaded", "ingest", func(ctx context.Context, msg Message) error {
		received <- msg
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), "document.uploaded", "doc-1", map[string]any{}, nil))
	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("first message not delivered")
	}

	require.NoError(t, sub.Unsubscribe())
	require.NoError(t, bus.Publish(context.Background(), "document.uploaded", "doc-2", map[string]any{}, nil))

	select {
	case <-received:
		t.Fatal("received message after unsubscribe")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPartitionIndexIsStableForSameKey(t *testing.T) {
	for _, key := range []string{"doc-1", "doc-2", "", "x"} {
		first := partitionIndex(key, 4)
		second := partitionIndex(key, 4)
		assert.Equal(t, first, second)
	}
	assert.Equal(t, 0, partitionIndex("anything", 1))
}
