package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	MapDetect MapDetectConfig `yaml:"mapdetect"`
}

// MapDetectConfig is the project configuration.
type MapDetectConfig struct {
	Input     InputConfig     `yaml:"input"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Detection DetectionConfig `yaml:"detection"`
	Output    OutputConfig    `yaml:"output"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// InputConfig locates the load-test capture.
type InputConfig struct {
	SessionsDir    string `yaml:"sessions_dir"`
	TracingDir     string `yaml:"tracing_dir"`
	SessionLog     string `yaml:"session_log"`
	InstanceMarker string `yaml:"instance_marker"`
	// ClockOffset is added to load-generator timestamps.
	ClockOffset time.Duration `yaml:"clock_offset"`
	TraceSuffix string        `yaml:"trace_suffix"`
}

// PipelineConfig controls batch parallelism.
type PipelineConfig struct {
	Workers int `yaml:"workers"`
}

// DetectionConfig configures the pattern detectors.
type DetectionConfig struct {
	FrontendServices  []string `yaml:"frontend_services"`
	DatabaseServices  []string `yaml:"database_services"`
	ServiceThreshold  int      `yaml:"service_threshold"`
	EndpointThreshold int      `yaml:"endpoint_threshold"`
	// File optionally points at a separate detection YAML that overrides the
	// fields above.
	File string `yaml:"file"`
}

// OutputConfig controls the sinks.
type OutputConfig struct {
	Findings  FindingsOutputConfig `yaml:"findings"`
	Reports   ReportsOutputConfig  `yaml:"reports"`
	Pipelines DirOutputConfig      `yaml:"pipelines"`
	EdgeLists DirOutputConfig      `yaml:"edgelists"`
	Events    EventsOutputConfig   `yaml:"events"`
	Graph     GraphStoreConfig     `yaml:"graph_store"`
	// ByUserKey names the cross-user graph in edge-list and graph stores.
	ByUserKey string `yaml:"by_user_key"`
}

// FindingsOutputConfig controls the findings file.
type FindingsOutputConfig struct {
	Mode string           `yaml:"mode"` // file|none
	File FileOutputConfig `yaml:"file"`
}

// ReportsOutputConfig posts per-key node-graph reports to a collector.
type ReportsOutputConfig struct {
	Enabled bool             `yaml:"enabled"`
	HTTP    HTTPOutputConfig `yaml:"http"`
}

// DirOutputConfig writes one file per attribution key under Dir.
type DirOutputConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// EventsOutputConfig controls attributed call-event output.
type EventsOutputConfig struct {
	Enabled    bool                   `yaml:"enabled"`
	Mode       string                 `yaml:"mode"` // file|clickhouse
	File       FileOutputConfig       `yaml:"file"`
	ClickHouse ClickHouseOutputConfig `yaml:"clickhouse"`
}

// GraphStoreConfig controls Redis call-graph persistence.
type GraphStoreConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// ClickHouseOutputConfig config for ClickHouse HTTP JSONEachRow writes.
type ClickHouseOutputConfig struct {
	URL       string            `yaml:"url"`
	Database  string            `yaml:"database"`
	Table     string            `yaml:"table"`
	Username  string            `yaml:"username"`
	Password  string            `yaml:"password"`
	Timeout   time.Duration     `yaml:"timeout"`
	BatchSize int               `yaml:"batch_size"`
	Headers   map[string]string `yaml:"headers"`
}

// FileOutputConfig config for local JSON output.
type FileOutputConfig struct {
	Path string `yaml:"path"`
}

// HTTPOutputConfig config for remote output.
type HTTPOutputConfig struct {
	URL     string            `yaml:"url"`
	Timeout time.Duration     `yaml:"timeout"`
	Headers map[string]string `yaml:"headers"`
}

// MetricsConfig controls Prometheus exposition.
type MetricsConfig struct {
	// Addr serves /metrics while the batch runs, e.g. ":9108".
	Addr string `yaml:"addr"`
	// File receives a text-format dump at the end of the run.
	File string `yaml:"file"`
}

// LoggingConfig controls logging output.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
