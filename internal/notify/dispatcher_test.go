package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"panelbill/internal/model"
)

type recordingBus struct {
	topics   []string
	payloads [][]byte
	err      error
}

func (b *recordingBus) Publish(topic string, data []byte) error {
	b.topics = append(b.topics, topic)
	b.payloads = append(b.payloads, data)
	return b.err
}

func TestDispatcherPublishesTypedEvents(t *testing.T) {
	bus := &recordingBus{}
	d := NewBusDispatcher(bus)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	d.ResourceSuspended(context.Background(), model.ResourceSuspendedEvent{
		ResourceID: "r1", AccountID: "acc1", Reason: model.ReasonInsufficientCoins, At: at,
	})
	d.ResourceResumed(context.Background(), model.ResourceResumedEvent{ResourceID: "r1", AccountID: "acc1", At: at})
	d.ResourceTerminated(context.Background(), model.ResourceTerminatedEvent{ResourceID: "r1", AccountID: "acc1", At: at})
	d.LedgerEntryCreated(context.Background(), model.LedgerEntryCreatedEvent{EntryID: "e1", AccountID: "acc1"})

	assert.Equal(t, []string{
		model.TopicResourceSuspended,
		model.TopicResourceResumed,
		model.TopicResourceTerminated,
		model.TopicLedgerEntryCreated,
	}, bus.topics)

	var ev model.ResourceSuspendedEvent
	require.NoError(t, json.Unmarshal(bus.payloads[0], &ev))
	assert.Equal(t, model.ReasonInsufficientCoins, ev.Reason)
	assert.Equal(t, "r1", ev.ResourceID)
}

func TestDispatcherSwallowsPublishFailures(t *testing.T) {
	bus := &recordingBus{err: errors.New("bus down")}
	d := NewBusDispatcher(bus)

	// Dispatch is best-effort; a dead bus must never panic or block.
	d.ResourceSuspended(context.Background(), model.ResourceSuspendedEvent{ResourceID: "r1"})
	assert.Len(t, bus.topics, 1)
}
