package eventclickhouse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mapdetect/pkg/models"
)

// Config configures the ClickHouse HTTP writer.
type Config struct {
	URL       string
	Database  string
	Table     string
	Username  string
	Password  string
	Timeout   time.Duration
	BatchSize int
	Headers   map[string]string
}

// Writer sends attributed call events to ClickHouse via HTTP JSONEachRow.
type Writer struct {
	endpoint  string
	headers   map[string]string
	batchSize int
	client    *http.Client
}

type row struct {
	Timestamp string `json:"ts"`
	Key       string `json:"key"`
	From      string `json:"from_service"`
	To        string `json:"to_service"`
	Endpoint  string `json:"endpoint"`
}

// NewWriter creates a ClickHouse HTTP writer.
func NewWriter(cfg Config) (*Writer, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("clickhouse URL is empty")
	}
	if cfg.Database == "" {
		cfg.Database = "default"
	}
	if cfg.Table == "" {
		cfg.Table = "call_events"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5000
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	q := fmt.Sprintf("INSERT INTO %s.%s FORMAT JSONEachRow", quoteIdent(cfg.Database), quoteIdent(cfg.Table))
	base := strings.TrimRight(cfg.URL, "/")
	endpoint := base + "/?query=" + url.QueryEscape(q)

	headers := map[string]string{}
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	if cfg.Username != "" {
		headers["X-ClickHouse-User"] = cfg.Username
	}
	if cfg.Password != "" {
		headers["X-ClickHouse-Key"] = cfg.Password
	}

	return &Writer{
		endpoint:  endpoint,
		headers:   headers,
		batchSize: cfg.BatchSize,
		client:    &http.Client{Timeout: timeout},
	}, nil
}

// WriteEvents sends call events in chunks of at most BatchSize rows.
func (w *Writer) WriteEvents(events []*models.CallEventRow) error {
	for start := 0; start < len(events); start += w.batchSize {
		end := start + w.batchSize
		if end > len(events) {
			end = len(events)
		}
		if err := w.send(events[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) send(events []*models.CallEventRow) error {
	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	n := 0
	for _, ev := range events {
		if ev == nil {
			continue
		}
		r := row{
			Timestamp: ev.Timestamp.UTC().Format("2006-01-02 15:04:05.000"),
			Key:       ev.Key,
			From:      ev.From,
			To:        ev.To,
			Endpoint:  ev.Endpoint,
		}
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("failed to marshal call event: %w", err)
		}
		n++
	}
	if n == 0 {
		return nil
	}

	req, err := http.NewRequest(http.MethodPost, w.endpoint, &body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("clickhouse request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("clickhouse request failed with status %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}
	return nil
}

// Close releases resources.
func (w *Writer) Close() error {
	return nil
}

func quoteIdent(v string) string {
	if v == "" {
		return ""
	}
	v = strings.ReplaceAll(v, "`", "")
	return "`" + v + "`"
}
