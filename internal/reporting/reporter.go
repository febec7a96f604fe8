package reporting

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/xkilldash9x/episim/internal/sim"
)

// DocVersion identifies the layout of the Document payload.
const DocVersion = "1"

// Reporter receives completed run results and writes them to an output.
// Implementations buffer runs until Close, which finalizes the report and
// releases any underlying resources (e.g., file handles).
type Reporter interface {
	// Write adds one completed run to the report.
	Write(res *sim.Results) error
	// Close finalizes the report and closes the underlying writer.
	Close() error
}

// Document is the top-level payload shared by the JSON and archive formats.
type Document struct {
	Version   string         `json:"version"`
	CreatedAt time.Time      `json:"created_at"`
	Runs      []*sim.Results `json:"runs"`
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// New creates a new reporter based on the specified format and output path.
// An empty path or "stdout" writes to standard output; the archive format
// needs a real file path.
func New(format, outputPath string) (Reporter, error) {
	if format == "archive" || format == "zst" {
		if outputPath == "" || outputPath == "stdout" {
			return nil, fmt.Errorf("archive output requires a file path")
		}
		return NewArchiveReporter(outputPath), nil
	}

	var writer io.WriteCloser // Use interface type
	isStdOut := outputPath == "" || outputPath == "stdout"

	if isStdOut {
		// Wrap Stdout so Close() is a no-op.
		writer = &nopWriteCloser{os.Stdout}
	} else {
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
	}

	switch format {
	case "json":
		// NewJSONReporter takes ownership of the writer.
		return NewJSONReporter(writer), nil
	case "csv":
		return NewCSVReporter(writer), nil
	default:
		if !isStdOut {
			writer.Close()
		}
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}
