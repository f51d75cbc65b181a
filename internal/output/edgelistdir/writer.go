package edgelistdir

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"mapdetect/internal/graph/callgraph"
)

const fileSuffix = ".edgelist"

// Writer stores one edge-list file per attribution key.
type Writer struct {
	dir string
}

// NewWriter creates the output directory if needed.
func NewWriter(dir string) (*Writer, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("edge list directory is empty")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create edge list directory: %w", err)
	}
	return &Writer{dir: dir}, nil
}

// Open reads an existing edge-list directory without creating it.
func Open(dir string) (*Writer, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("open edge list directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("open edge list directory: %s is not a directory", dir)
	}
	return &Writer{dir: dir}, nil
}

// FileName returns the edge-list file name for key.
func FileName(key string) string {
	return key + fileSuffix
}

// WriteGraph replaces the edge-list file for key.
func (w *Writer) WriteGraph(key string, g *callgraph.CallGraph) error {
	path := filepath.Join(w.dir, FileName(key))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create edge list file: %w", err)
	}
	if err := callgraph.WriteEdgeList(f, g); err != nil {
		f.Close()
		return fmt.Errorf("write edge list %s: %w", key, err)
	}
	return f.Close()
}

// LoadGraph reads back the edge list stored for key.
func (w *Writer) LoadGraph(key string) (*callgraph.CallGraph, error) {
	return callgraph.LoadEdgeListFile(filepath.Join(w.dir, FileName(key)))
}

// Keys lists the attribution keys that have an edge-list file, sorted.
func (w *Writer) Keys() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(w.dir, "*"+fileSuffix))
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(matches))
	for _, m := range matches {
		keys = append(keys, strings.TrimSuffix(filepath.Base(m), fileSuffix))
	}
	return keys, nil
}

// Close is a no-op; files are closed per key.
func (w *Writer) Close() error {
	return nil
}
