package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/noorimat/realtime-task-board/internal/db"
	"github.com/noorimat/realtime-task-board/internal/domain"
)

type Repo struct {
	DB      *sql.DB
	Dialect db.Dialect
}

var (
	ErrNotFound    = errors.New("not found")
	ErrDuplicateID = errors.New("duplicate id")
	// ErrUnavailable wraps backend failures: connection loss, failed queries,
	// anything that means the mutation cannot be confirmed durable.
	ErrUnavailable = errors.New("store unavailable")
)

// classify maps driver errors onto the store's error taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("%w: %v", ErrDuplicateID, err)
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %v", ErrDuplicateID, err)
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func (r Repo) rebind(query string) string {
	return r.Dialect.Rebind(query)
}

// ListTasks returns every task ordered by created_at descending. The id
// tiebreak keeps the order deterministic for tasks created in the same
// millisecond.
func (r Repo) ListTasks(ctx context.Context) ([]domain.Task, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id,title,COALESCE(description,'') AS description,status,created_at FROM tasks ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	tasks := []domain.Task{}
	for rows.Next() {
		var t domain.Task
		if err := rows.Scan(&t.ID, &t.Title, &t.Description, &t.Status, &t.CreatedAt); err != nil {
			return nil, classify(err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return tasks, nil
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	var t domain.Task
	err := r.DB.QueryRowContext(ctx,
		r.rebind(`SELECT id,title,COALESCE(description,'') AS description,status,created_at FROM tasks WHERE id=?`), id).
		Scan(&t.ID, &t.Title, &t.Description, &t.Status, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, classify(err)
	}
	return t, nil
}

func (r Repo) InsertTaskTx(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx,
		r.rebind(`INSERT INTO tasks(id,title,description,status,created_at) VALUES (?,?,?,?,?)`),
		t.ID, t.Title, nullable(t.Description), t.Status, t.CreatedAt)
	return classify(err)
}

// ReplaceTaskTx overwrites every mutable field of the task identified by t.ID.
// id and created_at never change after insert.
func (r Repo) ReplaceTaskTx(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	res, err := tx.ExecContext(ctx,
		r.rebind(`UPDATE tasks SET title=?, description=?, status=? WHERE id=?`),
		t.Title, nullable(t.Description), t.Status, t.ID)
	if err != nil {
		return classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTaskTx removes the task if present. Deleting an absent id is a no-op;
// the bool reports whether a row was actually removed.
func (r Repo) DeleteTaskTx(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	res, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM tasks WHERE id=?`), id)
	if err != nil {
		return false, classify(err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// EventsAfter returns up to limit journal entries with id greater than cursor,
// oldest first. Used by the webhook dispatcher and the events API.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx,
		r.rebind(`SELECT id,ts,type,COALESCE(task_id,''),payload_json FROM task_events WHERE id > ? ORDER BY id ASC LIMIT ?`),
		cursor, limit)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	var events []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.TaskID, &e.Payload); err != nil {
			return nil, classify(err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// LatestEventID returns the current journal head, 0 when empty.
func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	if err := r.DB.QueryRowContext(ctx, `SELECT MAX(id) FROM task_events`).Scan(&id); err != nil {
		return 0, classify(err)
	}
	return id.Int64, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
