//go:build sqlite

package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/gob"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/xkilldash9x/episim/internal/sim"

	_ "modernc.org/sqlite"
)

var _ Archive = (*SQLiteStore)(nil)

// SQLiteStore archives runs in a local sqlite file. Series data is stored
// as a gob payload per run; run metadata lives in queryable columns.
type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func newSQLiteStore(ctx context.Context, path string) (Archive, error) {
	s := &SQLiteStore{path: path}
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Init opens the database file and creates the schema.
func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) SaveRun(ctx context.Context, res *sim.Results) error {
	if res == nil {
		return fmt.Errorf("nil results")
	}
	if res.RunID == "" {
		return fmt.Errorf("results have no run id")
	}

	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := encodeResults(res)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO runs (id, label, pop_size, npts, created_at, payload)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			label = excluded.label,
			pop_size = excluded.pop_size,
			npts = excluded.npts,
			created_at = excluded.created_at,
			payload = excluded.payload
	`, res.RunID, res.Label, res.PopSize, res.Npts(), time.Now().UTC().Unix(), payload)
	return err
}

func (s *SQLiteStore) LoadRun(ctx context.Context, runID string) (*sim.Results, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM runs WHERE id = ?`, runID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	res, err := decodeResults(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode run %s: %w", runID, err)
	}
	return res, true, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context) ([]RunMeta, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, label, pop_size, npts, created_at
		FROM runs
		ORDER BY created_at DESC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var metas []RunMeta
	for rows.Next() {
		var (
			m    RunMeta
			unix int64
		)
		if err := rows.Scan(&m.ID, &m.Label, &m.PopSize, &m.Npts, &unix); err != nil {
			return nil, err
		}
		m.CreatedAt = time.Unix(unix, 0).UTC()
		metas = append(metas, m)
	}
	return metas, rows.Err()
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			label TEXT NOT NULL,
			pop_size INTEGER NOT NULL,
			npts INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
	`)
	return err
}

func encodeResults(res *sim.Results) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(res); err != nil {
		return nil, fmt.Errorf("gob encode: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeResults(payload []byte) (*sim.Results, error) {
	var res sim.Results
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&res); err != nil {
		return nil, fmt.Errorf("gob decode: %w", err)
	}
	res.Reindex()
	return &res, nil
}
