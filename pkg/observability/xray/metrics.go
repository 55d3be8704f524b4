package xray

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	instrumentationName = "github.com/omeyang/xraykit/xray"

	MetricSent     = "xray.delivery.sent"
	MetricRejected = "xray.delivery.rejected"
	MetricFailed   = "xray.delivery.failed"

	// AttrReason 失败原因属性
	AttrReason = "reason"
)

// 失败原因取值
const (
	reasonQueueFull   = "queue_full"
	reasonClosed      = "closed"
	reasonEncode      = "encode"
	reasonShortWrite  = "short_write"
	reasonCircuitOpen = "circuit_open"
	reasonTransport   = "transport"
)

type deliveryMetrics struct {
	sent     metric.Int64Counter
	rejected metric.Int64Counter
	failed   metric.Int64Counter
}

func newDeliveryMetrics(mp metric.MeterProvider) (*deliveryMetrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)

	sent, err := meter.Int64Counter(MetricSent,
		metric.WithDescription("payloads handed to the transport successfully"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, fmt.Errorf("xray: create counter %s: %w", MetricSent, err)
	}
	rejected, err := meter.Int64Counter(MetricRejected,
		metric.WithDescription("payloads rejected before reaching a worker"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, fmt.Errorf("xray: create counter %s: %w", MetricRejected, err)
	}
	failed, err := meter.Int64Counter(MetricFailed,
		metric.WithDescription("payloads the transport failed to send"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, fmt.Errorf("xray: create counter %s: %w", MetricFailed, err)
	}
	return &deliveryMetrics{sent: sent, rejected: rejected, failed: failed}, nil
}

func (m *deliveryMetrics) recordSent(ctx context.Context) {
	m.sent.Add(ctx, 1)
}

func (m *deliveryMetrics) recordRejected(ctx context.Context, reason string) {
	m.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrReason, reason)))
}

func (m *deliveryMetrics) recordFailed(ctx context.Context, err error) {
	m.failed.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrReason, failureReason(err))))
}

func failureReason(err error) string {
	var short *ShortWriteError
	switch {
	case errors.As(err, &short):
		return reasonShortWrite
	case errors.Is(err, ErrCircuitOpen):
		return reasonCircuitOpen
	case errors.Is(err, ErrTransportClosed):
		return reasonClosed
	default:
		return reasonTransport
	}
}
