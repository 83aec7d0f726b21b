package events

import (
	"fmt"
	"testing"
)

type stubEvent string

func (s stubEvent) EventType() string { return string(s) }

func TestMemoryEmitterRetainsOrder(t *testing.T) {
	emitter := NewMemoryEmitter(0)
	for i := 0; i < 3; i++ {
		emitter.Emit(stubEvent(fmt.Sprintf("evt-%d", i)))
	}
	captured := emitter.Events()
	if len(captured) != 3 {
		t.Fatalf("expected 3 events, got %d", len(captured))
	}
	for i, evt := range captured {
		if evt.EventType() != fmt.Sprintf("evt-%d", i) {
			t.Fatalf("event %d out of order: %s", i, evt.EventType())
		}
	}
}

func TestMemoryEmitterDropsOldest(t *testing.T) {
	emitter := NewMemoryEmitter(2)
	for i := 0; i < 5; i++ {
		emitter.Emit(stubEvent(fmt.Sprintf("evt-%d", i)))
	}
	captured := emitter.Events()
	if len(captured) != 2 {
		t.Fatalf("expected 2 retained events, got %d", len(captured))
	}
	if captured[0].EventType() != "evt-3" || captured[1].EventType() != "evt-4" {
		t.Fatalf("expected the newest events retained, got %v", captured)
	}
}

func TestMemoryEmitterIgnoresNil(t *testing.T) {
	emitter := NewMemoryEmitter(0)
	emitter.Emit(nil)
	if got := emitter.Events(); len(got) != 0 {
		t.Fatalf("nil events must be dropped, got %d", len(got))
	}
}
