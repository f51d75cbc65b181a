package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestSetOutputFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, Warn)
	defer SetOutput(&bytes.Buffer{}, Info)

	Infof("hidden %d", 1)
	Warnf("shown %d", 2)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("did not expect info message at warn level: %q", out)
	}
	if !strings.Contains(out, "shown 2") {
		t.Fatalf("expected warn message, got %q", out)
	}
}

func TestParseLevelDefaultsToInfo(t *testing.T) {
	if got := parseLevel("verbose"); got != Info {
		t.Fatalf("expected info for unknown level, got %v", got)
	}
	if got := parseLevel("WARNING"); got != Warn {
		t.Fatalf("expected warn, got %v", got)
	}
}

func TestWithFieldsIncludesFields(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, Info)
	defer SetOutput(&bytes.Buffer{}, Info)

	WithFields(Fields{"user": "alice"}).Info("finding")
	if !strings.Contains(buf.String(), "user=alice") {
		t.Fatalf("expected structured field in output, got %q", buf.String())
	}
}
