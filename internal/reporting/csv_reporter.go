package reporting

import (
	"encoding/csv"
	"fmt"
	"io"
	"slices"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/episim/internal/observability"
	"github.com/xkilldash9x/episim/internal/sim"
)

var _ Reporter = (*CSVReporter)(nil)

// CSVReporter writes results in long form, one row per run and day. The
// channel columns are fixed by the first run written; later runs must carry
// the same channels in the same order. It is thread safe.
type CSVReporter struct {
	writer io.WriteCloser
	logger *zap.Logger

	// mu protects the csv writer and column state.
	mu       sync.Mutex
	csv      *csv.Writer
	channels []string
	rows     int
}

// NewCSVReporter creates a reporter that owns the given writer.
func NewCSVReporter(writer io.WriteCloser) *CSVReporter {
	return &CSVReporter{
		writer: writer,
		logger: observability.GetLogger().Named("csv_reporter"),
		csv:    csv.NewWriter(writer),
	}
}

// Write appends every day of one run as CSV rows.
func (r *CSVReporter) Write(res *sim.Results) error {
	if res == nil {
		return fmt.Errorf("nil results")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	names := res.Names()
	if r.channels == nil {
		r.channels = names
		header := append([]string{"run_id", "label", "day"}, names...)
		if err := r.csv.Write(header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	} else if !slices.Equal(r.channels, names) {
		return fmt.Errorf("run %q has a different channel set than the first run", res.Label)
	}

	cols := make([][]float64, len(names))
	for i, name := range names {
		cols[i] = res.Get(name)
	}

	row := make([]string, 0, 3+len(names))
	for t, day := range res.Days {
		row = row[:0]
		row = append(row, res.RunID, res.Label, strconv.Itoa(day))
		for _, col := range cols {
			row = append(row, strconv.FormatFloat(col[t], 'g', -1, 64))
		}
		if err := r.csv.Write(row); err != nil {
			return fmt.Errorf("write day %d: %w", day, err)
		}
		r.rows++
	}

	r.logger.Debug("Wrote run to CSV report",
		zap.String("label", res.Label),
		zap.Int("npts", res.Npts()),
	)
	return nil
}

// Close flushes pending rows and closes the output writer.
func (r *CSVReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.csv.Flush()
	flushErr := r.csv.Error()
	closeErr := r.writer.Close()

	r.logger.Info("Finalized CSV report", zap.Int("total_rows", r.rows))

	if flushErr != nil {
		r.logger.Error("Failed to flush CSV output", zap.Error(flushErr))
		return fmt.Errorf("failed to flush CSV output: %w", flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}
	return nil
}
