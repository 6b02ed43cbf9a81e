package websocket

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "diveops.websocket"

type hubMetrics struct {
	connectionsActive metric.Int64UpDownCounter
	connectionsTotal  metric.Int64Counter
	messagesSent      metric.Int64Counter
	messagesDropped   metric.Int64Counter
}

func newHubMetrics(meter metric.Meter) (*hubMetrics, error) {
	if meter == nil {
		meter = otel.Meter(meterName)
	}

	active, err := meter.Int64UpDownCounter("websocket_connections_active",
		metric.WithDescription("Number of connected WebSocket clients"))
	if err != nil {
		return nil, err
	}
	total, err := meter.Int64Counter("websocket_connections_total",
		metric.WithDescription("Total number of WebSocket connections accepted"))
	if err != nil {
		return nil, err
	}
	sent, err := meter.Int64Counter("websocket_messages_sent_total",
		metric.WithDescription("Messages queued to clients, by message type"))
	if err != nil {
		return nil, err
	}
	dropped, err := meter.Int64Counter("websocket_messages_dropped_total",
		metric.WithDescription("Messages dropped because a client buffer was full"))
	if err != nil {
		return nil, err
	}

	return &hubMetrics{
		connectionsActive: active,
		connectionsTotal:  total,
		messagesSent:      sent,
		messagesDropped:   dropped,
	}, nil
}

func (m *hubMetrics) connected(ctx context.Context) {
	if m == nil {
		return
	}
	m.connectionsActive.Add(ctx, 1)
	m.connectionsTotal.Add(ctx, 1)
}

func (m *hubMetrics) disconnected(ctx context.Context) {
	if m == nil {
		return
	}
	m.connectionsActive.Add(ctx, -1)
}

func (m *hubMetrics) delivered(ctx context.Context, msgType string, sent, dropped int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("type", msgType))
	if sent > 0 {
		m.messagesSent.Add(ctx, int64(sent), attrs)
	}
	if dropped > 0 {
		m.messagesDropped.Add(ctx, int64(dropped), attrs)
	}
}
