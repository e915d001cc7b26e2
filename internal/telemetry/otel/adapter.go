package otel

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"

	"ssi-migration-bridge/internal/telemetry"
	"ssi-migration-bridge/internal/telemetry/domain"
)

// NewEventEmitter returns an EventEmitter that records each migration event
// on an OTel counter, labeled by event type, phase, and protocol. If provider
// is nil, returns a no-op emitter.
func NewEventEmitter(provider *metric.MeterProvider) (telemetry.EventEmitter, error) {
	if provider == nil {
		return noopEmitter{}, nil
	}
	meter := provider.Meter("ssi-bridge.telemetry")
	counter, err := meter.Int64Counter("bridge.migration.events",
		otelmetric.WithDescription("Migration lifecycle events by type"))
	if err != nil {
		return nil, fmt.Errorf("create event counter: %w", err)
	}
	return &metricEmitter{counter: counter}, nil
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, *domain.MigrationEvent) error { return nil }

type metricEmitter struct {
	counter otelmetric.Int64Counter
}

// Emit counts the event. Best-effort; never fails.
func (e *metricEmitter) Emit(ctx context.Context, event *domain.MigrationEvent) error {
	if event == nil {
		return nil
	}
	attrs := []attribute.KeyValue{
		attribute.String("event_type", event.EventType),
	}
	if event.Phase != "" {
		attrs = append(attrs, attribute.String("phase", event.Phase))
	}
	if event.Protocol != "" {
		attrs = append(attrs, attribute.String("protocol", event.Protocol))
	}
	e.counter.Add(ctx, 1, otelmetric.WithAttributes(attrs...))
	return nil
}
