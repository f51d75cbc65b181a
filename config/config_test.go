package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigParsesDurationsAndLists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mapdetect.yml")
	body := `mapdetect:
  input:
    sessions_dir: capture/pptam
    tracing_dir: capture/tracing-log
    clock_offset: -8h
  pipeline:
    workers: 4
  detection:
    frontend_services: [ts-ui-dashboard]
    database_services:
      - ts-order-mongo
      - ts-user-mongo
  output:
    findings:
      mode: file
    reports:
      enabled: true
      http:
        url: http://collector:8080/graph/data
        timeout: 3s
    graph_store:
      enabled: true
      addr: redis:6379
  metrics:
    file: output/mapdetect.prom
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	md := cfg.MapDetect
	if md.Input.ClockOffset != -8*time.Hour {
		t.Fatalf("expected -8h offset, got %s", md.Input.ClockOffset)
	}
	if md.Pipeline.Workers != 4 || len(md.Detection.DatabaseServices) != 2 {
		t.Fatalf("unexpected config: %+v", md)
	}
	if !md.Output.Reports.Enabled || md.Output.Reports.HTTP.Timeout != 3*time.Second || !md.Output.Graph.Enabled {
		t.Fatalf("unexpected output config: %+v", md.Output)
	}
	if md.Metrics.File != "output/mapdetect.prom" {
		t.Fatalf("unexpected metrics config: %+v", md.Metrics)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
