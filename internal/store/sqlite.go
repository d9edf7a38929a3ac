package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const (
	DirName = ".resub"
	DBName  = "history.db"
)

type Store struct {
	db *sql.DB
}

// Path returns where the history database for dir lives.
func Path(dir string) string {
	return filepath.Join(dir, DirName, DBName)
}

// Exists reports whether dir has been initialized with a history database.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, DirName))
	return err == nil
}

func New(dir string) (*Store, error) {
	histDir := filepath.Join(dir, DirName)
	if err := os.MkdirAll(histDir, 0755); err != nil {
		return nil, fmt.Errorf("create %s dir: %w", DirName, err)
	}

	db, err := sql.Open("sqlite", Path(dir))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id         TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL,
		mode       TEXT NOT NULL,
		username   TEXT NOT NULL DEFAULT '',
		file       TEXT NOT NULL DEFAULT '',
		dry_run    INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS operations (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id     TEXT NOT NULL REFERENCES runs(id),
		action     TEXT NOT NULL,
		subreddit  TEXT NOT NULL,
		outcome    TEXT NOT NULL,
		error      TEXT NOT NULL DEFAULT '',
		order_idx  INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_operations_run ON operations(run_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) CreateRun(mode Mode, user, file string, dryRun bool) (*Run, error) {
	id := uuid.NewString()
	now := time.Now().UTC()
	_, err := s.db.Exec(
		"INSERT INTO runs (id, created_at, mode, username, file, dry_run) VALUES (?, ?, ?, ?, ?, ?)",
		id, now, string(mode), user, file, dryRun,
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return &Run{ID: id, CreatedAt: now, Mode: mode, User: user, File: file, DryRun: dryRun}, nil
}

func (s *Store) AddOperation(runID, action, subreddit, outcome, errText string, orderIdx int) (*Operation, error) {
	now := time.Now().UTC()
	res, err := s.db.Exec(
		"INSERT INTO operations (run_id, action, subreddit, outcome, error, order_idx, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		runID, action, subreddit, outcome, errText, orderIdx, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert operation: %w", err)
	}
	id, _ := res.LastInsertId()
	return &Operation{
		ID: id, RunID: runID, Action: action, Subreddit: subreddit,
		Outcome: outcome, Error: errText, OrderIdx: orderIdx, CreatedAt: now,
	}, nil
}

func (s *Store) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		"SELECT id, created_at, mode, username, file, dry_run FROM runs ORDER BY created_at DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.CreatedAt, &r.Mode, &r.User, &r.File, &r.DryRun); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun looks a run up by its full ID or by a unique prefix of it.
// The prefix is matched literally.
func (s *Store) GetRun(id string) (*Run, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("run id is empty")
	}
	rows, err := s.db.Query(
		"SELECT id, created_at, mode, username, file, dry_run FROM runs WHERE substr(id, 1, length(?)) = ? LIMIT 2", id, id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var found []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.CreatedAt, &r.Mode, &r.User, &r.File, &r.DryRun); err != nil {
			return nil, err
		}
		found = append(found, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch len(found) {
	case 0:
		return nil, sql.ErrNoRows
	case 1:
		return &found[0], nil
	default:
		return nil, fmt.Errorf("run id %q is ambiguous", id)
	}
}

func (s *Store) GetOperations(runID string) ([]Operation, error) {
	rows, err := s.db.Query(
		"SELECT id, run_id, action, subreddit, outcome, error, order_idx, created_at FROM operations WHERE run_id = ? ORDER BY order_idx",
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ops []Operation
	for rows.Next() {
		var o Operation
		if err := rows.Scan(&o.ID, &o.RunID, &o.Action, &o.Subreddit, &o.Outcome, &o.Error, &o.OrderIdx, &o.CreatedAt); err != nil {
			return nil, err
		}
		ops = append(ops, o)
	}
	return ops, rows.Err()
}

func (s *Store) CountOperations(runID string) (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM operations WHERE run_id = ?", runID).Scan(&count)
	return count, err
}
