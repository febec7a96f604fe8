package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/episim/internal/sim"
)

// RunMeta describes one archived run without its series data.
type RunMeta struct {
	ID        string
	Label     string
	PopSize   int
	Npts      int
	CreatedAt time.Time
}

// Archive persists completed run results and reads them back.
type Archive interface {
	// SaveRun writes one run, replacing any previous run with the same id.
	SaveRun(ctx context.Context, res *sim.Results) error
	// LoadRun reads one run back. The second return is false when the id
	// is unknown.
	LoadRun(ctx context.Context, runID string) (*sim.Results, bool, error)
	// ListRuns returns metadata for every archived run, newest first.
	ListRuns(ctx context.Context) ([]RunMeta, error)
}

// Open creates an archive for the given backend. The dsn is a postgres
// connection string or a sqlite file path, depending on the backend.
func Open(ctx context.Context, backend, dsn string, logger *zap.Logger) (Archive, error) {
	switch backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "postgres":
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		st, err := New(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, err
		}
		if err := st.InitSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		st.closeFn = pool.Close
		return st, nil
	case "sqlite":
		return newSQLiteStore(ctx, dsn)
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", backend)
	}
}

// CloseIfSupported closes archives that hold external resources.
func CloseIfSupported(a Archive) error {
	closer, ok := a.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
