package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"worldstate.ai/internal/world/invariants"
)

// RunRecord summarizes one pipeline run for the audit index.
type RunRecord struct {
	RunID      string
	WorldID    string
	RecordedAt time.Time
	ViewDigest string
	BundlePath string

	Placements int
	Issues     int
	Blocking   bool
	Applied    bool

	Added   int
	Removed int
	Updated int

	Violations []invariants.Violation
}

type SQLiteIndex struct {
	db *sql.DB

	ch   chan RunRecord
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	dropped atomic.Uint64
	failed  atomic.Uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan RunRecord, 1024),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			world_id TEXT NOT NULL,
			recorded_at TEXT NOT NULL,
			view_digest TEXT NOT NULL,
			bundle_path TEXT,
			placements INTEGER NOT NULL,
			issues INTEGER NOT NULL,
			blocking INTEGER NOT NULL,
			applied INTEGER NOT NULL,
			added INTEGER NOT NULL,
			removed INTEGER NOT NULL,
			updated INTEGER NOT NULL,
			has_errors INTEGER NOT NULL,
			has_warnings INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_world_time ON runs(world_id, recorded_at);`,
		`CREATE TABLE IF NOT EXISTS violations (
			run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			code TEXT NOT NULL,
			severity TEXT NOT NULL,
			message TEXT NOT NULL,
			details_json TEXT,
			PRIMARY KEY (run_id, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_violations_code ON violations(code);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Close drains queued records and closes the database.
func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// RecordRun queues r for the writer goroutine and returns its run id. Records
// are dropped when the queue is full.
func (s *SQLiteIndex) RecordRun(r RunRecord) string {
	if r.RunID == "" {
		r.RunID = uuid.NewString()
	}
	if s == nil || s.closed.Load() {
		return r.RunID
	}
	if r.RecordedAt.IsZero() {
		r.RecordedAt = time.Now().UTC()
	}
	select {
	case s.ch <- r:
	default:
		s.dropped.Add(1)
	}
	return r.RunID
}

func (s *SQLiteIndex) Dropped() uint64 {
	if s == nil {
		return 0
	}
	return s.dropped.Load()
}

// Failed counts queued runs whose insert returned an error.
func (s *SQLiteIndex) Failed() uint64 {
	if s == nil {
		return 0
	}
	return s.failed.Load()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()
	for r := range s.ch {
		if err := s.writeRun(ctx, r); err != nil {
			s.failed.Add(1)
		}
	}
}

func (s *SQLiteIndex) writeRun(ctx context.Context, r RunRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	rep := invariants.NewReport(r.Violations)
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs(run_id,world_id,recorded_at,view_digest,bundle_path,placements,issues,blocking,applied,added,removed,updated,has_errors,has_warnings)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.RunID, r.WorldID, r.RecordedAt.UTC().Format(time.RFC3339Nano), r.ViewDigest, r.BundlePath,
		r.Placements, r.Issues, boolInt(r.Blocking), boolInt(r.Applied),
		r.Added, r.Removed, r.Updated, boolInt(rep.HasErrors), boolInt(rep.HasWarnings),
	); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM violations WHERE run_id = ?`, r.RunID); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO violations(run_id,seq,code,severity,message,details_json) VALUES(?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, v := range r.Violations {
		var details any
		if len(v.Details) > 0 {
			b, _ := json.Marshal(v.Details)
			details = string(b)
		}
		if _, err := stmt.ExecContext(ctx, r.RunID, i, v.Code, string(v.Severity), v.Message, details); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
