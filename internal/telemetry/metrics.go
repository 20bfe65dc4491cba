package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/Tyrowin/livechat"

// Metrics holds the OpenTelemetry instruments recorded by the chat engine.
type Metrics struct {
	ConnectionsActive      metric.Int64UpDownCounter
	SessionsActive         metric.Int64UpDownCounter
	MessagesTotal          metric.Int64Counter
	EventsRejectedTotal    metric.Int64Counter
	TypingExpiredTotal     metric.Int64Counter
	DeliveriesDroppedTotal metric.Int64Counter
}

// Default returns instruments bound to the global meter provider. It is a no-op
// until InitTelemetry installs a real provider.
func Default() *Metrics {
	return NewMetrics(otel.GetMeterProvider())
}

// NewMetrics creates all instruments from mp.
func NewMetrics(mp metric.MeterProvider) *Metrics {
	meter := mp.Meter(meterName)

	m := &Metrics{}

	m.ConnectionsActive, _ = meter.Int64UpDownCounter(
		"livechat.connections.active",
		metric.WithDescription("Number of attached WebSocket connections"),
		metric.WithUnit("{connection}"),
	)

	m.SessionsActive, _ = meter.Int64UpDownCounter(
		"livechat.sessions.active",
		metric.WithDescription("Number of logged-in sessions"),
		metric.WithUnit("{session}"),
	)

	m.MessagesTotal, _ = meter.Int64Counter(
		"livechat.messages.total",
		metric.WithDescription("Total number of accepted chat messages"),
		metric.WithUnit("{message}"),
	)

	m.EventsRejectedTotal, _ = meter.Int64Counter(
		"livechat.events.rejected.total",
		metric.WithDescription("Total number of inbound events answered with an error"),
		metric.WithUnit("{event}"),
	)

	m.TypingExpiredTotal, _ = meter.Int64Counter(
		"livechat.typing.expired.total",
		metric.WithDescription("Total number of typing indicators cleared by timeout"),
		metric.WithUnit("{indicator}"),
	)

	m.DeliveriesDroppedTotal, _ = meter.Int64Counter(
		"livechat.deliveries.dropped.total",
		metric.WithDescription("Total number of payloads dropped for a slow or closed connection"),
		metric.WithUnit("{payload}"),
	)

	return m
}

// EventRejected counts one rejected inbound event by name.
func (m *Metrics) EventRejected(ctx context.Context, event string) {
	m.EventsRejectedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("event", event)))
}
