package reporthttp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"mapdetect/internal/analyzer"
	"mapdetect/internal/graph/callgraph"
	"mapdetect/internal/logger"
)

// KeyHeader carries the attribution key of a posted report.
const KeyHeader = "X-Mapdetect-Key"

// Config configures the report collector endpoint.
type Config struct {
	URL     string
	Timeout time.Duration
	Headers map[string]string
}

// Writer posts one Payload per attribution key.
type Writer struct {
	cfg    Config
	client *http.Client

	mu   sync.Mutex
	sent int
}

// NewWriter validates cfg and prepares an HTTP client.
func NewWriter(cfg Config) (*Writer, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("report collector URL is empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Writer{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}, nil
}

// WriteReport posts the node-graph views of rep over g.
func (w *Writer) WriteReport(rep analyzer.Report, g *callgraph.CallGraph) error {
	body, err := json.Marshal(NewPayload(rep, g))
	if err != nil {
		return fmt.Errorf("encode report %s: %w", rep.Key, err)
	}

	req, err := http.NewRequest(http.MethodPost, w.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build report request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(KeyHeader, rep.Key)
	for k, v := range w.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post report %s: %w", rep.Key, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("post report %s: %s: %s", rep.Key, resp.Status, strings.TrimSpace(string(msg)))
	}
	io.Copy(io.Discard, resp.Body)

	w.mu.Lock()
	w.sent++
	w.mu.Unlock()
	return nil
}

// Sent returns how many reports were accepted by the collector.
func (w *Writer) Sent() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sent
}

// Close drops idle collector connections.
func (w *Writer) Close() error {
	logger.Infof("Report collector %s accepted %d reports", w.cfg.URL, w.Sent())
	w.client.CloseIdleConnections()
	return nil
}
