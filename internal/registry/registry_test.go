package registry

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/noorimat/realtime-task-board/internal/protocol"
)

func TestSessionSendAndDrain(t *testing.T) {
	s := NewSession(4)
	env := protocol.Envelope{Event: "task:created"}
	if err := s.Send(env); err != nil {
		t.Fatalf("send: %v", err)
	}
	got := <-s.Outbound()
	if got.Event != "task:created" {
		t.Fatalf("unexpected event %q", got.Event)
	}
}

func TestSessionQueueFull(t *testing.T) {
	s := NewSession(2)
	for i := 0; i < 2; i++ {
		if err := s.Send(protocol.Envelope{Event: "task:updated"}); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	err := s.Send(protocol.Envelope{Event: "task:updated"})
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestSessionClosed(t *testing.T) {
	s := NewSession(2)
	s.Close()
	s.Close() // idempotent
	if err := s.Send(protocol.Envelope{Event: "task:created"}); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
	select {
	case <-s.Done():
	default:
		t.Fatal("Done should be closed")
	}
}

func TestRegistryAddRemoveSnapshot(t *testing.T) {
	r := New()
	a := NewSession(1)
	b := NewSession(1)
	r.Add(a)
	r.Add(b)
	if r.Len() != 2 {
		t.Fatalf("expected 2 sessions, got %d", r.Len())
	}

	r.Remove(a.ID)
	if r.Len() != 1 {
		t.Fatalf("expected 1 session, got %d", r.Len())
	}
	if err := a.Send(protocol.Envelope{}); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("removed session should be closed, got %v", err)
	}

	snap := r.Snapshot()
	if len(snap) != 1 || snap[0].ID != b.ID {
		t.Fatalf("unexpected snapshot: %v", snap)
	}

	r.Remove("unknown") // no-op
	if r.Len() != 1 {
		t.Fatalf("removing unknown id changed registry: %d", r.Len())
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := NewSession(1)
			r.Add(s)
			for _, peer := range r.Snapshot() {
				peer.Send(protocol.Envelope{Event: fmt.Sprintf("e%d", i)})
			}
			if i%2 == 0 {
				r.Remove(s.ID)
			}
		}(i)
	}
	wg.Wait()
	if r.Len() != 25 {
		t.Fatalf("expected 25 surviving sessions, got %d", r.Len())
	}
}
