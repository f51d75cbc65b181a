package findingsjson

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"mapdetect/internal/logger"
	"mapdetect/pkg/models"
)

// Writer outputs detector findings to a JSON lines file.
type Writer struct {
	file    *os.File
	encoder *json.Encoder
	mu      sync.Mutex
	count   int
}

// NewWriter creates a JSONL writer for findings.
func NewWriter(path string) (*Writer, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}

	logger.Infof("Findings JSON writer initialized: %s", path)
	return &Writer{
		file:    f,
		encoder: json.NewEncoder(f),
	}, nil
}

// WriteFindings writes a batch of findings.
func (w *Writer) WriteFindings(findings []*models.Finding) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, f := range findings {
		if f == nil {
			continue
		}
		if err := w.encoder.Encode(f); err != nil {
			return fmt.Errorf("failed to encode finding: %w", err)
		}
		w.count++
	}
	return nil
}

// Count returns the number of findings written so far.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Close closes the output file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file != nil {
		err := w.file.Close()
		w.file = nil
		return err
	}
	return nil
}
