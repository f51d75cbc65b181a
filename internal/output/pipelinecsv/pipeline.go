package pipelinecsv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mapdetect/pkg/models"
)

// Header is the first row of every pipeline file.
var Header = []string{"ISO_TIME", "FROM_SERVICE", "TO_SERVICE", "ENDPOINT"}

const (
	fileSuffix = "_pipeline.csv"
	isoLayout  = "2006-01-02T15:04:05"
)

// Writer stores one pipeline CSV per attribution key under a directory.
type Writer struct {
	dir string
}

// NewWriter creates the output directory if needed.
func NewWriter(dir string) (*Writer, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("pipeline directory is empty")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create pipeline directory: %w", err)
	}
	return &Writer{dir: dir}, nil
}

// FileName returns the pipeline file name for key.
func FileName(key string) string {
	return key + fileSuffix
}

// WritePipeline replaces the pipeline file for key.
func (w *Writer) WritePipeline(key string, events []models.ServiceCallEvent) error {
	path := filepath.Join(w.dir, FileName(key))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create pipeline file: %w", err)
	}
	if err := Write(f, events); err != nil {
		f.Close()
		return fmt.Errorf("write pipeline %s: %w", key, err)
	}
	return f.Close()
}

// Close is a no-op; files are closed per key.
func (w *Writer) Close() error {
	return nil
}

// Write encodes events with the header row.
func Write(out io.Writer, events []models.ServiceCallEvent) error {
	cw := csv.NewWriter(out)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, ev := range events {
		if err := cw.Write([]string{FormatTime(ev.Timestamp), ev.From, ev.To, ev.Endpoint}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// FormatTime renders t as a naive ISO-8601 UTC timestamp. Microseconds are
// printed only when non-zero.
func FormatTime(t time.Time) string {
	t = t.UTC()
	if t.Nanosecond()/1000 == 0 {
		return t.Format(isoLayout)
	}
	return t.Format(isoLayout + ".000000")
}

// Read decodes a pipeline CSV. The header row is optional.
func Read(in io.Reader) ([]models.ServiceCallEvent, error) {
	cr := csv.NewReader(in)
	cr.FieldsPerRecord = len(Header)

	var events []models.ServiceCallEvent
	first := true
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read pipeline row: %w", err)
		}
		if first {
			first = false
			if rec[0] == Header[0] {
				continue
			}
		}
		ts, err := parseTime(rec[0])
		if err != nil {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("line %d: parse time %q: %w", line, rec[0], err)
		}
		events = append(events, models.ServiceCallEvent{
			Timestamp: ts,
			From:      rec[1],
			To:        rec[2],
			Endpoint:  rec[3],
		})
	}
	return events, nil
}

// LoadFile reads a pipeline CSV from disk.
func LoadFile(path string) ([]models.ServiceCallEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pipeline file: %w", err)
	}
	defer f.Close()
	return Read(f)
}

func parseTime(v string) (time.Time, error) {
	if t, err := time.ParseInLocation(isoLayout, v, time.UTC); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, v)
}
