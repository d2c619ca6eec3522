package db

import (
	"path/filepath"
	"testing"
)

func TestRebindPostgresPlaceholders(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{
			in:   `INSERT INTO tasks(id,title,description,status,created_at) VALUES (?,?,?,?,?)`,
			want: `INSERT INTO tasks(id,title,description,status,created_at) VALUES ($1,$2,$3,$4,$5)`,
		},
		{
			in:   `UPDATE tasks SET title=?, description=?, status=? WHERE id=?`,
			want: `UPDATE tasks SET title=$1, description=$2, status=$3 WHERE id=$4`,
		},
		{
			in:   `SELECT id FROM task_events WHERE id > ? ORDER BY id ASC LIMIT ?`,
			want: `SELECT id FROM task_events WHERE id > $1 ORDER BY id ASC LIMIT $2`,
		},
		{
			in:   `SELECT 1`,
			want: `SELECT 1`,
		},
	}
	for _, c := range cases {
		if got := Postgres.Rebind(c.in); got != c.want {
			t.Fatalf("Rebind(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestRebindSQLiteUnchanged(t *testing.T) {
	q := `INSERT INTO tasks(id,title) VALUES (?,?)`
	if got := SQLite.Rebind(q); got != q {
		t.Fatalf("sqlite rebind changed the query: %q", got)
	}
}

func TestOpenDialectDispatch(t *testing.T) {
	// sql.Open does not connect, so dialect selection is testable without a
	// running Postgres.
	conn, dialect, err := Open("postgres://localhost/board")
	if err != nil {
		t.Fatalf("open postgres url: %v", err)
	}
	conn.Close()
	if dialect != Postgres {
		t.Fatalf("expected Postgres dialect, got %s", dialect)
	}

	conn, dialect, err = Open("postgresql://localhost/board")
	if err != nil {
		t.Fatalf("open postgresql url: %v", err)
	}
	conn.Close()
	if dialect != Postgres {
		t.Fatalf("expected Postgres dialect, got %s", dialect)
	}

	conn, dialect, err = Open(filepath.Join(t.TempDir(), "board.db"))
	if err != nil {
		t.Fatalf("open sqlite path: %v", err)
	}
	conn.Close()
	if dialect != SQLite {
		t.Fatalf("expected SQLite dialect, got %s", dialect)
	}
}
