package telemetry

import (
	"context"
	"sync"
	"testing"
	"time"

	"ssi-migration-bridge/internal/telemetry/domain"
)

// mockEventEmitter implements EventEmitter for tests.
type mockEventEmitter struct {
	mu      sync.Mutex
	events  []*domain.MigrationEvent
	emitErr error
	delay   time.Duration
}

func (m *mockEventEmitter) Emit(ctx context.Context, event *domain.MigrationEvent) error {
	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.delay):
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return m.emitErr
}

func (m *mockEventEmitter) getEvents() []*domain.MigrationEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events
}

func TestEmitAsync_NilEmitter(t *testing.T) {
	event := &domain.MigrationEvent{EventType: domain.EventLogin, TraditionalID: "u1"}

	// Should not panic
	EmitAsync(nil, event, nil)
}

func TestEmitAsync_NilEvent(t *testing.T) {
	emitter := &mockEventEmitter{}

	// Should not panic
	EmitAsync(emitter, nil, nil)

	// Give goroutine time to run (if it starts)
	time.Sleep(10 * time.Millisecond)

	if events := emitter.getEvents(); len(events) != 0 {
		t.Errorf("expected 0 events, got %d", len(events))
	}
}

func TestEmitAsync_SuccessfulEmit(t *testing.T) {
	emitter := &mockEventEmitter{}
	event := &domain.MigrationEvent{
		EventType:     domain.EventDIDAttached,
		TraditionalID: "u1",
		DID:           "did:key:z6MkU1",
		Phase:         "preparation",
	}

	EmitAsync(emitter, event, nil)

	// Wait for goroutine to complete
	time.Sleep(100 * time.Millisecond)

	events := emitter.getEvents()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].TraditionalID != "u1" {
		t.Errorf("event traditional id = %q, want %q", events[0].TraditionalID, "u1")
	}
	if events[0].EventType != domain.EventDIDAttached {
		t.Errorf("event type = %q, want %q", events[0].EventType, domain.EventDIDAttached)
	}
}

func TestEmitAsync_ErrorHandling(t *testing.T) {
	emitter := &mockEventEmitter{emitErr: context.DeadlineExceeded}
	event := &domain.MigrationEvent{EventType: domain.EventLogin, TraditionalID: "u1"}

	// Should not panic on error; the error is logged and dropped.
	EmitAsync(emitter, event, nil)

	time.Sleep(100 * time.Millisecond)
}

func TestEmitAsync_ConcurrentAccess(t *testing.T) {
	emitter := &mockEventEmitter{}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			EmitAsync(emitter, &domain.MigrationEvent{EventType: domain.EventLogin, TraditionalID: "u1"}, nil)
		}()
	}

	wg.Wait()
	// Wait for all async emits to complete
	time.Sleep(200 * time.Millisecond)

	if events := emitter.getEvents(); len(events) != 10 {
		t.Errorf("expected 10 events, got %d", len(events))
	}
}

func TestFanOutEmitsToAll(t *testing.T) {
	a := &mockEventEmitter{}
	b := &mockEventEmitter{emitErr: context.DeadlineExceeded}
	fan := FanOut{a, nil, b}

	err := fan.Emit(context.Background(), &domain.MigrationEvent{EventType: domain.EventLogin, TraditionalID: "u1"})
	if err == nil {
		t.Errorf("expected first error to surface")
	}
	if len(a.getEvents()) != 1 || len(b.getEvents()) != 1 {
		t.Errorf("fan-out skipped an emitter: %d %d", len(a.getEvents()), len(b.getEvents()))
	}
}
