package eventjson

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mapdetect/pkg/models"
)

func TestWriteEventsPublishesOnClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "events.jsonl")
	w, err := NewWriter(path)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	rows := []*models.CallEventRow{
		{Timestamp: ts, Key: "alice", From: "a", To: "b", Endpoint: "/x"},
		nil,
		{Timestamp: ts.Add(time.Second), Key: "alice_0", From: "b", To: "c", Endpoint: "/y"},
	}
	if err := w.WriteEvents(rows); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected %s to appear only on close", path)
	}
	if len(w.perKey) != 2 || w.perKey["alice_0"] != 1 {
		t.Fatalf("unexpected per-key counts: %v", w.perKey)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if _, err := os.Stat(path + ".partial"); !os.IsNotExist(err) {
		t.Fatalf("expected partial file to be renamed away")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	want := `{"ts":"2024-01-02T03:04:05Z","key":"alice","from":"a","to":"b","endpoint":"/x"}`
	if len(lines) != 2 || lines[0] != want {
		t.Fatalf("expected 2 rows starting with %s, got %s", want, data)
	}
}

func TestWriteEventsAfterCloseFails(t *testing.T) {
	w, err := NewWriter(filepath.Join(t.TempDir(), "events.jsonl"))
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := w.WriteEvents([]*models.CallEventRow{{Key: "k"}}); err == nil {
		t.Fatalf("expected error writing to a closed writer")
	}
}
