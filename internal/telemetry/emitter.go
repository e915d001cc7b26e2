package telemetry

import (
	"context"

	"ssi-migration-bridge/internal/telemetry/domain"
)

// EventEmitter emits migration events (e.g. to Kafka or OTel metrics).
// Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *domain.MigrationEvent) error
}

// FanOut emits each event to every emitter, returning the first error after
// attempting all of them.
type FanOut []EventEmitter

func (f FanOut) Emit(ctx context.Context, event *domain.MigrationEvent) error {
	var firstErr error
	for _, e := range f {
		if e == nil {
			continue
		}
		if err := e.Emit(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
