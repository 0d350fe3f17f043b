package chat

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type metrics struct {
	sent     metric.Int64Counter
	rejected metric.Int64Counter
	drops    metric.Int64Counter
	receipts metric.Int64Counter
	online   metric.Int64UpDownCounter
}

func newMetrics() *metrics {
	meter := otel.Meter("go-messenger/chat")
	sent, _ := meter.Int64Counter("chat_messages_sent_total",
		metric.WithDescription("Messages persisted and fanned out"))
	rejected, _ := meter.Int64Counter("chat_messages_rejected_total",
		metric.WithDescription("Send requests rejected before fan-out"))
	drops, _ := meter.Int64Counter("chat_deliveries_dropped_total",
		metric.WithDescription("Per-connection deliveries that failed"))
	receipts, _ := meter.Int64Counter("chat_read_receipts_total",
		metric.WithDescription("Direct messages flipped to read by history loads"))
	online, _ := meter.Int64UpDownCounter("chat_connections_active",
		metric.WithDescription("Live websocket connections"))
	return &metrics{sent: sent, rejected: rejected, drops: drops, receipts: receipts, online: online}
}

func (m *metrics) messageSent(ctx context.Context, msg *Message) {
	kind := "direct"
	if msg.IsGroup() {
		kind = "group"
	}
	m.sent.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("type", msg.Type.String()),
	))
}

func (m *metrics) messageRejected(ctx context.Context, err error) {
	m.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("code", errorCode(err))))
}

func (m *metrics) dropped(ctx context.Context, event string) {
	m.drops.Add(ctx, 1, metric.WithAttributes(attribute.String("event", event)))
}

func (m *metrics) receiptsMarked(ctx context.Context, n int) {
	m.receipts.Add(ctx, int64(n))
}

func (m *metrics) connectionOpened(ctx context.Context) {
	m.online.Add(ctx, 1)
}

func (m *metrics) connectionClosed(ctx context.Context) {
	m.online.Add(ctx, -1)
}
