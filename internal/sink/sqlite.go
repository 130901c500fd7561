package sink

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/phobologic/phpconsistent/internal/model"
)

// SQLite stores failures in a "failures" table, grouped by run id.
type SQLite struct {
	db *sql.DB
}

// NewSQLite creates or opens a SQLite database.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLite{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}
	return s, nil
}

func (s *SQLite) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS failures (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT,
			source TEXT,
			kind TEXT,
			file TEXT,
			line INTEGER,
			target TEXT,
			position INTEGER,
			param_name TEXT,
			expected TEXT,
			observed TEXT,
			message TEXT,
			created_at TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_failures_run ON failures(run_id);`,
		`CREATE INDEX IF NOT EXISTS idx_failures_target ON failures(target);`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLite) Write(ctx context.Context, f model.Failure) error {
	run, _ := RunFrom(ctx)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO failures (run_id, source, kind, file, line, target, position, param_name, expected, observed, message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Source, string(f.Kind), f.File, f.Line, f.Target, f.Position,
		f.ParamName, f.Expected, f.Observed, f.Message(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("inserting failure: %w", err)
	}
	return nil
}

// TargetCount is the number of stored failures for one target.
type TargetCount struct {
	Target string
	Count  int
}

// CountByTarget summarizes stored failures, most frequent first. An empty
// runID covers every run.
func (s *SQLite) CountByTarget(ctx context.Context, runID string) ([]TargetCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT target, COUNT(*) FROM failures
		 WHERE ? = '' OR run_id = ?
		 GROUP BY target ORDER BY COUNT(*) DESC, target`, runID, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TargetCount
	for rows.Next() {
		var tc TargetCount
		if err := rows.Scan(&tc.Target, &tc.Count); err != nil {
			return nil, err
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
