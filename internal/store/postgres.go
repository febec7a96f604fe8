package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/episim/internal/sim"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

var _ Archive = (*Store)(nil)

// Store provides a PostgreSQL implementation of the Archive interface.
type Store struct {
	pool    DBPool
	log     *zap.Logger
	closeFn func()
}

// New creates a new store instance and verifies the connection. The caller
// keeps ownership of the pool unless the store was built through Open.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// Close releases the connection pool when the store owns it.
func (s *Store) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// InitSchema creates the archive tables when they do not exist yet.
func (s *Store) InitSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS runs (
            id TEXT PRIMARY KEY,
            label TEXT NOT NULL,
            pop_size BIGINT NOT NULL,
            strains TEXT[] NOT NULL,
            npts BIGINT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL
        );
        CREATE TABLE IF NOT EXISTS series (
            run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
            idx INT NOT NULL,
            channel TEXT NOT NULL,
            day INT NOT NULL,
            value DOUBLE PRECISION NOT NULL,
            PRIMARY KEY (run_id, idx, day)
        );
        CREATE TABLE IF NOT EXISTS summaries (
            run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
            channel TEXT NOT NULL,
            value DOUBLE PRECISION NOT NULL,
            PRIMARY KEY (run_id, channel)
        );
    `)
	if err != nil {
		return fmt.Errorf("failed to create archive schema: %w", err)
	}
	return nil
}

// SaveRun handles the database transaction for inserting one run: the run
// row, its full series, and its final-day summary.
func (s *Store) SaveRun(ctx context.Context, res *sim.Results) error {
	if res == nil {
		return fmt.Errorf("nil results")
	}
	if res.RunID == "" {
		return fmt.Errorf("results have no run id")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// Rollback on an already committed transaction returns ErrTxClosed,
		// which is not worth logging.
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	if err := s.upsertRun(ctx, tx, res); err != nil {
		return err
	}
	if err := s.copySeries(ctx, tx, res); err != nil {
		return err
	}
	if err := s.upsertSummary(ctx, tx, res); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.log.Debug("Archived run",
		zap.String("run_id", res.RunID),
		zap.String("label", res.Label),
		zap.Int("npts", res.Npts()),
	)
	return nil
}

func (s *Store) upsertRun(ctx context.Context, tx pgx.Tx, res *sim.Results) error {
	sql := `
        INSERT INTO runs (id, label, pop_size, strains, npts, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (id) DO UPDATE SET
            label = EXCLUDED.label,
            pop_size = EXCLUDED.pop_size,
            strains = EXCLUDED.strains,
            npts = EXCLUDED.npts,
            created_at = EXCLUDED.created_at;
    `
	strains := res.Strains
	if strains == nil {
		strains = []string{}
	}
	if _, err := tx.Exec(ctx, sql, res.RunID, res.Label, res.PopSize, strains, res.Npts(), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to upsert run %s: %w", res.RunID, err)
	}

	// COPY cannot upsert, so clear any previous series for this run first.
	if _, err := tx.Exec(ctx, `DELETE FROM series WHERE run_id = $1;`, res.RunID); err != nil {
		return fmt.Errorf("failed to clear series for run %s: %w", res.RunID, err)
	}
	return nil
}

func (s *Store) copySeries(ctx context.Context, tx pgx.Tx, res *sim.Results) error {
	npts := res.Npts()
	rows := make([][]interface{}, 0, len(res.Series)*npts)
	for i, series := range res.Series {
		for t, day := range res.Days {
			rows = append(rows, []interface{}{res.RunID, i, series.Name, day, series.Values[t]})
		}
	}

	copyCount, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{"series"},
		[]string{"run_id", "idx", "channel", "day", "value"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to copy series: %w", err)
	}
	if int(copyCount) != len(rows) {
		return fmt.Errorf("mismatch in copied series count: expected %d, got %d", len(rows), copyCount)
	}
	return nil
}

func (s *Store) upsertSummary(ctx context.Context, tx pgx.Tx, res *sim.Results) error {
	summary := res.Summary()
	if len(summary) == 0 {
		return nil
	}

	sqlSummary := `
        INSERT INTO summaries (run_id, channel, value)
        VALUES ($1, $2, $3)
        ON CONFLICT (run_id, channel) DO UPDATE SET
            value = EXCLUDED.value;
    `
	// Queue in channel order so the batch is deterministic.
	names := res.Names()
	batch := &pgx.Batch{}
	for _, name := range names {
		batch.Queue(sqlSummary, res.RunID, name, summary[name])
	}

	br := tx.SendBatch(ctx, batch)
	if br == nil {
		return fmt.Errorf("failed to send batch: batch results is nil")
	}
	defer func() {
		_ = br.Close()
	}()

	for i := range names {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to execute summary upsert for channel %q: %w", names[i], err)
		}
	}
	return nil
}

// LoadRun reads one archived run and reassembles its results.
func (s *Store) LoadRun(ctx context.Context, runID string) (*sim.Results, bool, error) {
	metaSQL := `
        SELECT label, pop_size, strains, npts
        FROM runs
        WHERE id = $1;
    `
	rows, err := s.pool.Query(ctx, metaSQL, runID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to query run %s: %w", runID, err)
	}

	var (
		label   string
		popSize int
		strains []string
		npts    int
		found   bool
	)
	for rows.Next() {
		if err := rows.Scan(&label, &popSize, &strains, &npts); err != nil {
			rows.Close()
			return nil, false, fmt.Errorf("failed to scan run row: %w", err)
		}
		found = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("error during run row iteration: %w", err)
	}
	if !found {
		return nil, false, nil
	}

	seriesSQL := `
        SELECT idx, channel, day, value
        FROM series
        WHERE run_id = $1
        ORDER BY idx ASC, day ASC;
    `
	rows, err = s.pool.Query(ctx, seriesSQL, runID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to query series for run %s: %w", runID, err)
	}
	defer rows.Close()

	type cell struct {
		idx     int
		channel string
		day     int
		value   float64
	}
	var cells []cell
	for rows.Next() {
		var c cell
		if err := rows.Scan(&c.idx, &c.channel, &c.day, &c.value); err != nil {
			return nil, false, fmt.Errorf("failed to scan series row: %w", err)
		}
		cells = append(cells, c)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("error during series iteration: %w", err)
	}
	if len(cells) == 0 && npts > 0 {
		return nil, false, fmt.Errorf("run %s has no series data", runID)
	}

	var names []string
	lastIdx := -1
	for _, c := range cells {
		if c.idx != lastIdx {
			names = append(names, c.channel)
			lastIdx = c.idx
		}
	}

	res := sim.NewResults(npts, names)
	res.RunID = runID
	res.Label = label
	res.PopSize = popSize
	res.Strains = strains
	for _, c := range cells {
		if err := res.Set(c.channel, c.day, c.value); err != nil {
			return nil, false, fmt.Errorf("failed to place series cell: %w", err)
		}
	}
	return res, true, nil
}

// ListRuns returns metadata for every archived run, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]RunMeta, error) {
	query := `
        SELECT id, label, pop_size, npts, created_at
        FROM runs
        ORDER BY created_at DESC;
    `
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var metas []RunMeta
	for rows.Next() {
		var m RunMeta
		if err := rows.Scan(&m.ID, &m.Label, &m.PopSize, &m.Npts, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		metas = append(metas, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return metas, nil
}
