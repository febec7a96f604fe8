package reporting

import (
	"fmt"
	"io"
	"sync"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/episim/internal/observability"
	"github.com/xkilldash9x/episim/internal/sim"
)

var _ Reporter = (*JSONReporter)(nil)

// JSONReporter collects run results and writes them as a single indented
// JSON document on Close. It is thread safe.
type JSONReporter struct {
	writer io.WriteCloser
	logger *zap.Logger

	// mu protects the buffered document.
	mu  sync.Mutex
	doc Document
}

// NewJSONReporter creates a reporter that owns the given writer.
func NewJSONReporter(writer io.WriteCloser) *JSONReporter {
	return &JSONReporter{
		writer: writer,
		logger: observability.GetLogger().Named("json_reporter"),
		doc:    Document{Version: DocVersion, CreatedAt: time.Now().UTC()},
	}
}

// Write buffers one completed run.
func (r *JSONReporter) Write(res *sim.Results) error {
	if res == nil {
		return fmt.Errorf("nil results")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.doc.Runs = append(r.doc.Runs, res)
	r.logger.Debug("Buffered run for JSON report",
		zap.String("label", res.Label),
		zap.Int("npts", res.Npts()),
	)
	return nil
}

// Close encodes the buffered document and closes the output writer.
func (r *JSONReporter) Close() error {
	startTime := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.logger.Info("Finalizing JSON report", zap.Int("total_runs", len(r.doc.Runs)))

	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ") // Pretty print

	encodeErr := encoder.Encode(&r.doc)
	// Always attempt to close the writer, regardless of encoding success.
	closeErr := r.writer.Close()

	if encodeErr != nil {
		r.logger.Error("Failed to encode results document", zap.Error(encodeErr))
		// Prioritize the encoding error as it indicates corrupted/incomplete output.
		return fmt.Errorf("failed to encode JSON output: %w", encodeErr)
	}

	if closeErr != nil {
		r.logger.Error("Failed to close output writer", zap.Error(closeErr))
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}

	r.logger.Info("Successfully wrote JSON report",
		zap.Duration("duration_ms", time.Since(startTime)),
	)
	return nil
}
