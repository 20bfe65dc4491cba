package chat

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Tyrowin/livechat/internal/telemetry"
)

// Sink is the outbound half of one connection. Deliver must not block: a sink
// that cannot accept a payload right away returns an error wrapping ErrDelivery.
type Sink interface {
	Deliver(payload []byte) error
	Close() error
}

// Broadcaster fans encoded events out to attached connections. Delivery is
// best-effort: a failing sink is logged and skipped for that delivery only.
type Broadcaster struct {
	mu      sync.RWMutex
	sinks   map[string]Sink
	log     zerolog.Logger
	metrics *telemetry.Metrics
}

// NewBroadcaster creates a Broadcaster with no attached connections.
func NewBroadcaster(log zerolog.Logger, metrics *telemetry.Metrics) *Broadcaster {
	if metrics == nil {
		metrics = telemetry.Default()
	}
	return &Broadcaster{
		sinks:   make(map[string]Sink),
		log:     log,
		metrics: metrics,
	}
}

// Attach registers sink under connectionID, replacing any previous sink.
func (b *Broadcaster) Attach(connectionID string, sink Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks[connectionID] = sink
}

// Detach removes and returns the sink for connectionID.
func (b *Broadcaster) Detach(connectionID string) (Sink, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sink, ok := b.sinks[connectionID]
	if ok {
		delete(b.sinks, connectionID)
	}
	return sink, ok
}

// Len returns the number of attached connections.
func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sinks)
}

// ToAll delivers ev to every attached connection.
func (b *Broadcaster) ToAll(ev Event) {
	b.fanOut(ev, "")
}

// ToAllExcept delivers ev to every attached connection but connectionID.
func (b *Broadcaster) ToAllExcept(connectionID string, ev Event) {
	b.fanOut(ev, connectionID)
}

// ToOne delivers ev to connectionID only. Unknown connections are ignored.
func (b *Broadcaster) ToOne(connectionID string, ev Event) {
	payload, ok := b.encode(ev)
	if !ok {
		return
	}

	b.mu.RLock()
	sink, exists := b.sinks[connectionID]
	b.mu.RUnlock()

	if !exists {
		b.log.Debug().Str("conn_id", connectionID).Str("event", ev.Name).Msg("dropping event for detached connection")
		return
	}
	b.deliver(connectionID, sink, ev.Name, payload)
}

// CloseAll detaches and closes every sink.
func (b *Broadcaster) CloseAll() int {
	b.mu.Lock()
	sinks := b.sinks
	b.sinks = make(map[string]Sink)
	b.mu.Unlock()

	for id, sink := range sinks {
		if err := sink.Close(); err != nil {
			b.log.Debug().Err(err).Str("conn_id", id).Msg("error closing sink")
		}
	}
	return len(sinks)
}

func (b *Broadcaster) fanOut(ev Event, except string) {
	payload, ok := b.encode(ev)
	if !ok {
		return
	}

	b.mu.RLock()
	targets := make(map[string]Sink, len(b.sinks))
	for id, sink := range b.sinks {
		if id != except {
			targets[id] = sink
		}
	}
	b.mu.RUnlock()

	b.log.Debug().Str("event", ev.Name).Int("targets", len(targets)).Msg("broadcasting event")

	for id, sink := range targets {
		b.deliver(id, sink, ev.Name, payload)
	}
}

func (b *Broadcaster) deliver(connectionID string, sink Sink, event string, payload []byte) {
	if err := sink.Deliver(payload); err != nil {
		b.metrics.DeliveriesDroppedTotal.Add(context.Background(), 1)
		b.log.Warn().Err(err).Str("conn_id", connectionID).Str("event", event).Msg("delivery failed, skipping recipient")
	}
}

func (b *Broadcaster) encode(ev Event) ([]byte, bool) {
	payload, err := ev.Encode()
	if err != nil {
		b.log.Error().Err(err).Str("event", ev.Name).Msg("failed to encode event")
		return nil, false
	}
	return payload, true
}
