// Package registry tracks live client sessions and their outbound queues.
package registry

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noorimat/realtime-task-board/internal/protocol"
)

var (
	ErrSessionClosed = errors.New("session closed")
	// ErrQueueFull means the session's outbound buffer is exhausted. The
	// broadcaster never blocks on a slow consumer; the caller decides whether
	// the session survives.
	ErrQueueFull = errors.New("session queue full")
)

// Session is one live client connection. The transport layer drains Outbound
// and owns the underlying socket; the registry and hub only ever enqueue.
type Session struct {
	ID          string
	ConnectedAt time.Time

	out  chan protocol.Envelope
	done chan struct{}
	once sync.Once
}

// NewSession creates a session with a bounded outbound queue.
func NewSession(buffer int) *Session {
	if buffer <= 0 {
		buffer = 64
	}
	return &Session{
		ID:          uuid.NewString(),
		ConnectedAt: time.Now(),
		out:         make(chan protocol.Envelope, buffer),
		done:        make(chan struct{}),
	}
}

// Send enqueues an envelope without blocking. A full queue or a closed
// session reports an error and delivers nothing.
func (s *Session) Send(env protocol.Envelope) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	select {
	case s.out <- env:
		return nil
	case <-s.done:
		return ErrSessionClosed
	default:
		return ErrQueueFull
	}
}

// Outbound is the queue the transport write loop drains.
func (s *Session) Outbound() <-chan protocol.Envelope { return s.out }

// Done is closed when the session is shut down.
func (s *Session) Done() <-chan struct{} { return s.done }

// Close marks the session dead. Idempotent; in-flight Sends fail from here on.
func (s *Session) Close() {
	s.once.Do(func() { close(s.done) })
}

// Registry is the set of currently connected sessions. Safe for concurrent
// add, remove, and snapshot from independent connection handlers.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func New() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
}

// Remove deregisters and closes the session. Removing an unknown id is a
// no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if ok {
		s.Close()
	}
}

// Snapshot returns the current sessions. The slice is a copy; iteration never
// holds the registry lock across sends.
func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
