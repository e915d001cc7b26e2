// Package producer emits migration events to Kafka for the log-shipping worker.
package producer

import (
	"context"

	"ssi-migration-bridge/internal/telemetry/domain"
)

// Producer emits migration events. Callers use it best-effort: log and ignore errors.
type Producer interface {
	// Emit sends a single event. Implementations may block briefly; call from a goroutine if needed.
	Emit(ctx context.Context, event *domain.MigrationEvent) error
	// Close releases resources (e.g. Kafka writer). Safe to call if already closed.
	Close() error
}
