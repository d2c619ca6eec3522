// Package hub is the synchronization core: it applies mutation intents to the
// task store and fans the resulting events out to every connected session.
package hub

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noorimat/realtime-task-board/internal/db"
	"github.com/noorimat/realtime-task-board/internal/domain"
	"github.com/noorimat/realtime-task-board/internal/events"
	"github.com/noorimat/realtime-task-board/internal/metrics"
	"github.com/noorimat/realtime-task-board/internal/protocol"
	"github.com/noorimat/realtime-task-board/internal/registry"
	"github.com/noorimat/realtime-task-board/internal/repo"
)

// ErrValidation marks intents rejected before reaching the store.
var ErrValidation = errors.New("invalid intent")

type Hub struct {
	DB       *sql.DB
	Repo     repo.Repo
	Events   events.Writer
	Registry *registry.Registry
	Logger   *slog.Logger
	Metrics  *metrics.Collector
	Now      func() time.Time
	NewID    func() string

	// mu is the single-writer funnel: one mutation applies and broadcasts at
	// a time, so per-task event order matches store apply order.
	mu          sync.Mutex
	lastCreated int64
}

func New(conn *sql.DB, dialect db.Dialect, reg *registry.Registry, logger *slog.Logger, m *metrics.Collector) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.Nop()
	}
	return &Hub{
		DB:       conn,
		Repo:     repo.Repo{DB: conn, Dialect: dialect},
		Events:   events.Writer{Dialect: dialect},
		Registry: reg,
		Logger:   logger,
		Metrics:  m,
		Now:      time.Now,
		NewID:    uuid.NewString,
	}
}

func (h *Hub) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *Hub) newID() string {
	if h.NewID != nil {
		return h.NewID()
	}
	return uuid.NewString()
}

// timestamp returns the creation time in epoch milliseconds, clamped so that
// createdAt never decreases within this server instance. Callers hold mu.
func (h *Hub) timestamp() int64 {
	ts := h.now().UnixMilli()
	if ts < h.lastCreated {
		ts = h.lastCreated
	}
	h.lastCreated = ts
	return ts
}

// Connect registers the session and sends it the full task snapshot. The
// snapshot read and the registration happen under the funnel lock, so the
// session can never observe a task both in the snapshot and as a later
// task:created broadcast.
func (h *Hub) Connect(ctx context.Context, s *registry.Session) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	tasks, err := h.Repo.ListTasks(ctx)
	if err != nil {
		return err
	}
	h.Registry.Add(s)
	if err := s.Send(protocol.TasksLoad(tasks)); err != nil {
		h.Registry.Remove(s.ID)
		return err
	}
	return nil
}

// Create validates the payload, assigns id and createdAt, persists the task,
// and broadcasts task:created to every session.
func (h *Hub) Create(ctx context.Context, p protocol.CreatePayload) (domain.Task, error) {
	if strings.TrimSpace(p.Title) == "" {
		return domain.Task{}, fmt.Errorf("%w: title is required", ErrValidation)
	}
	status := p.Status
	if status == "" {
		status = domain.StatusTodo
	}
	if !domain.ValidStatus(status) {
		return domain.Task{}, fmt.Errorf("%w: unknown status %q", ErrValidation, p.Status)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	t := domain.Task{
		ID:          h.newID(),
		Title:       p.Title,
		Description: p.Description,
		Status:      status,
		CreatedAt:   h.timestamp(),
	}
	err := h.withTx(ctx, func(tx *sql.Tx) error {
		if err := h.Repo.InsertTaskTx(ctx, tx, t); err != nil {
			return err
		}
		return h.Events.Append(ctx, tx, "task.created", t.ID, events.EventPayload{"title": t.Title, "status": t.Status})
	})
	if err != nil {
		return domain.Task{}, err
	}
	h.broadcast(protocol.TaskCreated(t))
	return t, nil
}

// Update replaces the mutable fields of an existing task and broadcasts the
// applied state. id and createdAt are never changed; the stored values win
// over whatever the client sent.
func (h *Hub) Update(ctx context.Context, t domain.Task) (domain.Task, error) {
	if strings.TrimSpace(t.ID) == "" {
		return domain.Task{}, fmt.Errorf("%w: id is required", ErrValidation)
	}
	if strings.TrimSpace(t.Title) == "" {
		return domain.Task{}, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if !domain.ValidStatus(t.Status) {
		return domain.Task{}, fmt.Errorf("%w: unknown status %q", ErrValidation, t.Status)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	applied, err := h.Repo.GetTask(ctx, t.ID)
	if err != nil {
		return domain.Task{}, err
	}
	applied.Title = t.Title
	applied.Description = t.Description
	applied.Status = t.Status
	err = h.withTx(ctx, func(tx *sql.Tx) error {
		if err := h.Repo.ReplaceTaskTx(ctx, tx, applied); err != nil {
			return err
		}
		return h.Events.Append(ctx, tx, "task.updated", applied.ID, events.EventPayload{"title": applied.Title, "status": applied.Status})
	})
	if err != nil {
		return domain.Task{}, err
	}
	h.broadcast(protocol.TaskUpdated(applied))
	return applied, nil
}

// Delete removes the task and broadcasts task:deleted. Deleting an id that is
// not stored is a silent no-op: no error, no broadcast.
func (h *Hub) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: id is required", ErrValidation)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	removed := false
	err := h.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		removed, err = h.Repo.DeleteTaskTx(ctx, tx, id)
		if err != nil || !removed {
			return err
		}
		return h.Events.Append(ctx, tx, "task.deleted", id, nil)
	})
	if err != nil {
		return err
	}
	if removed {
		h.broadcast(protocol.TaskDeleted(id))
	}
	return nil
}

// HandleIntent runs the fire-and-forget intent pipeline for one inbound
// envelope. Invalid intents and store failures are logged diagnostics; the
// sender gets no reply either way.
func (h *Hub) HandleIntent(ctx context.Context, session string, env protocol.Envelope) {
	var (
		kind = "unknown"
		err  error
	)
	switch env.Event {
	case protocol.IntentTaskCreate:
		kind = "create"
		var p protocol.CreatePayload
		if uerr := json.Unmarshal(env.Data, &p); uerr != nil {
			err = fmt.Errorf("%w: %v", ErrValidation, uerr)
		} else {
			_, err = h.Create(ctx, p)
		}
	case protocol.IntentTaskUpdate:
		kind = "update"
		var t domain.Task
		if uerr := json.Unmarshal(env.Data, &t); uerr != nil {
			err = fmt.Errorf("%w: %v", ErrValidation, uerr)
		} else {
			_, err = h.Update(ctx, t)
		}
	case protocol.IntentTaskDelete:
		kind = "delete"
		var id string
		if uerr := json.Unmarshal(env.Data, &id); uerr != nil {
			err = fmt.Errorf("%w: %v", ErrValidation, uerr)
		} else {
			err = h.Delete(ctx, id)
		}
	default:
		err = fmt.Errorf("%w: unknown event %q", ErrValidation, env.Event)
	}

	outcome := "applied"
	switch {
	case errors.Is(err, ErrValidation):
		outcome = "invalid"
	case err != nil:
		outcome = "failed"
	}
	h.Metrics.Intents.WithLabelValues(kind, outcome).Inc()
	if err != nil {
		h.Logger.Warn("intent dropped", "event", env.Event, "session", session, "error", err)
	}
}

// broadcast delivers env to every registered session. Failures are isolated:
// a session that is dead or cannot keep up is deregistered and the fan-out
// continues with the rest.
func (h *Hub) broadcast(env protocol.Envelope) {
	for _, s := range h.Registry.Snapshot() {
		if err := s.Send(env); err != nil {
			h.Metrics.SendFailures.Inc()
			h.Registry.Remove(s.ID)
			h.Logger.Warn("session dropped during broadcast", "session", s.ID, "event", env.Event, "error", err)
		}
	}
	h.Metrics.Broadcasts.WithLabelValues(env.Event).Inc()
}

func (h *Hub) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := h.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", repo.ErrUnavailable, err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", repo.ErrUnavailable, err)
	}
	return nil
}
