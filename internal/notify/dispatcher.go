package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"

	"panelbill/internal/model"
)

// Bus publishes raw events to a topic. NATS in production; tests use a
// recording fake.
type Bus interface {
	Publish(topic string, data []byte) error
}

// NATSBus adapts a NATS connection to the Bus interface.
type NATSBus struct {
	nc *nats.Conn
}

func NewNATSBus(nc *nats.Conn) *NATSBus {
	return &NATSBus{nc: nc}
}

func (b *NATSBus) Publish(topic string, data []byte) error {
	return b.nc.Publish(topic, data)
}

// Dispatcher emits the engine's discrete notification events. Delivery
// (email, webhook, Discord DM) belongs to external subscribers; dispatch
// here is best-effort and never blocks or fails the caller.
type Dispatcher interface {
	ResourceSuspended(ctx context.Context, ev model.ResourceSuspendedEvent)
	ResourceResumed(ctx context.Context, ev model.ResourceResumedEvent)
	ResourceTerminated(ctx context.Context, ev model.ResourceTerminatedEvent)
	LedgerEntryCreated(ctx context.Context, ev model.LedgerEntryCreatedEvent)
}

// BusDispatcher serializes events as JSON onto the bus.
type BusDispatcher struct {
	bus Bus
}

func NewBusDispatcher(bus Bus) *BusDispatcher {
	return &BusDispatcher{bus: bus}
}

func (d *BusDispatcher) ResourceSuspended(ctx context.Context, ev model.ResourceSuspendedEvent) {
	d.publish(model.TopicResourceSuspended, ev)
}

func (d *BusDispatcher) ResourceResumed(ctx context.Context, ev model.ResourceResumedEvent) {
	d.publish(model.TopicResourceResumed, ev)
}

func (d *BusDispatcher) ResourceTerminated(ctx context.Context, ev model.ResourceTerminatedEvent) {
	d.publish(model.TopicResourceTerminated, ev)
}

func (d *BusDispatcher) LedgerEntryCreated(ctx context.Context, ev model.LedgerEntryCreatedEvent) {
	d.publish(model.TopicLedgerEntryCreated, ev)
}

func (d *BusDispatcher) publish(topic string, ev any) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("notify: marshal event", "topic", topic, "error", err)
		return
	}
	if err := d.bus.Publish(topic, data); err != nil {
		slog.Warn("notify: publish failed", "topic", topic, "error", err)
	}
}

// Nop drops every event, for deployments without a bus.
type Nop struct{}

func (Nop) ResourceSuspended(context.Context, model.ResourceSuspendedEvent)   {}
func (Nop) ResourceResumed(context.Context, model.ResourceResumedEvent)       {}
func (Nop) ResourceTerminated(context.Context, model.ResourceTerminatedEvent) {}
func (Nop) LedgerEntryCreated(context.Context, model.LedgerEntryCreatedEvent) {}
