package eventjson

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"mapdetect/internal/logger"
	"mapdetect/pkg/models"
)

// Writer streams attributed call events into <path>.partial and moves the
// file into place on Close, so readers never see a half-written run.
type Writer struct {
	path    string
	partial string

	mu     sync.Mutex
	file   *os.File
	buf    *bufio.Writer
	enc    *json.Encoder
	perKey map[string]int
}

// NewWriter opens the partial output file next to path.
func NewWriter(path string) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create call event directory: %w", err)
		}
	}
	partial := path + ".partial"
	f, err := os.Create(partial)
	if err != nil {
		return nil, fmt.Errorf("create call event file: %w", err)
	}
	buf := bufio.NewWriterSize(f, 256*1024)
	return &Writer{
		path:    path,
		partial: partial,
		file:    f,
		buf:     buf,
		enc:     json.NewEncoder(buf),
		perKey:  make(map[string]int),
	}, nil
}

// WriteEvents appends one JSON line per row. Nil rows are skipped.
func (w *Writer) WriteEvents(rows []*models.CallEventRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return errors.New("call event writer is closed")
	}
	for _, row := range rows {
		if row == nil {
			continue
		}
		if err := w.enc.Encode(row); err != nil {
			return fmt.Errorf("encode call event for %s: %w", row.Key, err)
		}
		w.perKey[row.Key]++
	}
	return nil
}

// Close flushes the partial file and renames it to the final path. Calling
// Close again is a no-op.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	f := w.file
	w.file = nil

	if err := w.buf.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush call events: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close call event file: %w", err)
	}
	if err := os.Rename(w.partial, w.path); err != nil {
		return fmt.Errorf("publish call event file: %w", err)
	}

	total := 0
	for _, n := range w.perKey {
		total += n
	}
	logger.Infof("Call events written: %s rows=%d keys=%d", w.path, total, len(w.perKey))
	return nil
}
