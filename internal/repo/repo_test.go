package repo

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/noorimat/realtime-task-board/internal/db"
	"github.com/noorimat/realtime-task-board/internal/domain"
	"github.com/noorimat/realtime-task-board/internal/events"
	"github.com/noorimat/realtime-task-board/internal/migrate"
)

func newTestRepo(t *testing.T) Repo {
	t.Helper()
	conn, dialect, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn, dialect); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return Repo{DB: conn, Dialect: dialect}
}

func insertTask(t *testing.T, r Repo, task domain.Task) {
	t.Helper()
	tx, err := r.DB.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := r.InsertTaskTx(context.Background(), tx, task); err != nil {
		tx.Rollback()
		t.Fatalf("insert %s: %v", task.ID, err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestListTasksNewestFirst(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	insertTask(t, r, domain.Task{ID: "a", Title: "first", Status: domain.StatusTodo, CreatedAt: 100})
	insertTask(t, r, domain.Task{ID: "b", Title: "second", Status: domain.StatusTodo, CreatedAt: 200})
	insertTask(t, r, domain.Task{ID: "c", Title: "third", Status: domain.StatusTodo, CreatedAt: 200})

	tasks, err := r.ListTasks(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(tasks))
	}
	// same created_at orders by id descending
	want := []string{"c", "b", "a"}
	for i, id := range want {
		if tasks[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, tasks[i].ID)
		}
	}
}

func TestListTasksEmptyBoard(t *testing.T) {
	r := newTestRepo(t)
	tasks, err := r.ListTasks(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if tasks == nil {
		t.Fatal("expected empty slice, got nil")
	}
	if len(tasks) != 0 {
		t.Fatalf("expected empty board, got %d tasks", len(tasks))
	}
}

func TestGetTaskNotFound(t *testing.T) {
	r := newTestRepo(t)
	_, err := r.GetTask(context.Background(), "ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInsertDuplicateID(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	insertTask(t, r, domain.Task{ID: "dup", Title: "one", Status: domain.StatusTodo, CreatedAt: 1})

	tx, err := r.DB.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	err = r.InsertTaskTx(ctx, tx, domain.Task{ID: "dup", Title: "two", Status: domain.StatusTodo, CreatedAt: 2})
	if !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
}

func TestReplaceTask(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	insertTask(t, r, domain.Task{ID: "x", Title: "before", Status: domain.StatusTodo, CreatedAt: 10})

	withTx(t, r, func(tx *sql.Tx) error {
		return r.ReplaceTaskTx(ctx, tx, domain.Task{ID: "x", Title: "after", Description: "desc", Status: domain.StatusDone, CreatedAt: 10})
	})

	got, err := r.GetTask(ctx, "x")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "after" || got.Description != "desc" || got.Status != domain.StatusDone {
		t.Fatalf("replace not applied: %+v", got)
	}
	if got.CreatedAt != 10 {
		t.Fatalf("createdAt changed: %d", got.CreatedAt)
	}
}

func TestReplaceMissingTask(t *testing.T) {
	r := newTestRepo(t)
	tx, err := r.DB.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	err = r.ReplaceTaskTx(context.Background(), tx, domain.Task{ID: "ghost", Title: "t", Status: domain.StatusTodo})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteTaskIdempotent(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	insertTask(t, r, domain.Task{ID: "d", Title: "doomed", Status: domain.StatusTodo, CreatedAt: 1})

	var removed bool
	withTx(t, r, func(tx *sql.Tx) error {
		var err error
		removed, err = r.DeleteTaskTx(ctx, tx, "d")
		return err
	})
	if !removed {
		t.Fatal("expected first delete to remove the row")
	}

	withTx(t, r, func(tx *sql.Tx) error {
		var err error
		removed, err = r.DeleteTaskTx(ctx, tx, "d")
		return err
	})
	if removed {
		t.Fatal("expected second delete to be a no-op")
	}
}

func TestEventJournal(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	w := events.Writer{Dialect: r.Dialect}

	withTx(t, r, func(tx *sql.Tx) error {
		if err := w.Append(ctx, tx, "task.created", "t1", events.EventPayload{"title": "one"}); err != nil {
			return err
		}
		return w.Append(ctx, tx, "task.deleted", "t1", nil)
	})

	latest, err := r.LatestEventID(ctx)
	if err != nil {
		t.Fatalf("latest event id: %v", err)
	}
	if latest != 2 {
		t.Fatalf("expected latest id 2, got %d", latest)
	}

	evts, err := r.EventsAfter(ctx, 10, 0)
	if err != nil {
		t.Fatalf("events after: %v", err)
	}
	if len(evts) != 2 {
		t.Fatalf("expected 2 events, got %d", len(evts))
	}
	if evts[0].Type != "task.created" || evts[1].Type != "task.deleted" {
		t.Fatalf("unexpected types: %s, %s", evts[0].Type, evts[1].Type)
	}

	evts, err = r.EventsAfter(ctx, 10, evts[0].ID)
	if err != nil {
		t.Fatalf("events after cursor: %v", err)
	}
	if len(evts) != 1 || evts[0].Type != "task.deleted" {
		t.Fatalf("cursor pagination broken: %+v", evts)
	}
}

func withTx(t *testing.T, r Repo, fn func(*sql.Tx) error) {
	t.Helper()
	tx, err := r.DB.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		t.Fatalf("tx: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}
