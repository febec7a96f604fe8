package reporting

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	json "github.com/json-iterator/go"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/xkilldash9x/episim/internal/observability"
	"github.com/xkilldash9x/episim/internal/sim"
)

const (
	archiveFormat  = "episim-results"
	archiveVersion = 1
)

var _ Reporter = (*ArchiveReporter)(nil)

// ArchiveHeader identifies the payload. It is written as a single JSON line
// ahead of the gob body, inside the compressed stream.
type ArchiveHeader struct {
	Format    string    `json:"format"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	Runs      int       `json:"runs"`
}

// WriteArchive writes a results document as a zstd-compressed file.
func WriteArchive(path string, doc *Document) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		_ = f.Close()
		return err
	}

	bw := bufio.NewWriterSize(enc, 256*1024)

	hdr := ArchiveHeader{
		Format:    archiveFormat,
		Version:   archiveVersion,
		CreatedAt: doc.CreatedAt,
		Runs:      len(doc.Runs),
	}
	hb, _ := json.Marshal(hdr)
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		_ = f.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		_ = f.Close()
		return err
	}

	if err := gob.NewEncoder(bw).Encode(doc); err != nil {
		_ = enc.Close()
		_ = f.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		_ = f.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// ReadArchive loads a document written by WriteArchive and rebuilds the
// per-run channel indexes.
func ReadArchive(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	line, err := br.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("read archive header: %w", err)
	}
	var hdr ArchiveHeader
	if err := json.Unmarshal(line, &hdr); err != nil {
		return nil, fmt.Errorf("parse archive header: %w", err)
	}
	if hdr.Format != archiveFormat || hdr.Version != archiveVersion {
		return nil, fmt.Errorf("unsupported archive %s v%d", hdr.Format, hdr.Version)
	}

	var doc Document
	if err := gob.NewDecoder(br).Decode(&doc); err != nil {
		return nil, fmt.Errorf("gob decode: %w", err)
	}
	for _, run := range doc.Runs {
		run.Reindex()
	}
	return &doc, nil
}

// ArchiveReporter buffers runs in memory and writes a compressed archive on
// Close. It is thread safe.
type ArchiveReporter struct {
	path   string
	logger *zap.Logger

	// mu protects the buffered document.
	mu  sync.Mutex
	doc Document
}

// NewArchiveReporter creates a reporter that writes to path on Close.
func NewArchiveReporter(path string) *ArchiveReporter {
	return &ArchiveReporter{
		path:   path,
		logger: observability.GetLogger().Named("archive_reporter"),
		doc:    Document{Version: DocVersion, CreatedAt: time.Now().UTC()},
	}
}

// Write buffers one completed run.
func (r *ArchiveReporter) Write(res *sim.Results) error {
	if res == nil {
		return fmt.Errorf("nil results")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.doc.Runs = append(r.doc.Runs, res)
	return nil
}

// Close writes the archive file.
func (r *ArchiveReporter) Close() error {
	startTime := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := WriteArchive(r.path, &r.doc); err != nil {
		r.logger.Error("Failed to write results archive", zap.Error(err))
		return fmt.Errorf("write archive: %w", err)
	}

	r.logger.Info("Wrote results archive",
		zap.String("path", r.path),
		zap.Int("total_runs", len(r.doc.Runs)),
		zap.Duration("duration_ms", time.Since(startTime)),
	)
	return nil
}
