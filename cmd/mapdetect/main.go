package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"mapdetect/config"
	"mapdetect/internal/analyzer"
	"mapdetect/internal/graphstate"
	"mapdetect/internal/logger"
	"mapdetect/internal/metrics"
	"mapdetect/internal/output/edgelistdir"
	"mapdetect/internal/output/eventclickhouse"
	"mapdetect/internal/output/eventjson"
	"mapdetect/internal/output/findingsjson"
	"mapdetect/internal/output/pipelinecsv"
	"mapdetect/internal/output/reporthttp"
	"mapdetect/internal/pipeline"
	"mapdetect/internal/session"
)

func findConfigFile(configArg string) string {
	if configArg != "" {
		path := configArg
		if _, err := os.Stat(path); err == nil {
			return path
		}
		log.Printf("Warning: config file not found at %s, trying default locations", path)
	}

	if _, err := os.Stat("mapdetect.yml"); err == nil {
		return "mapdetect.yml"
	}

	exePath, err := os.Executable()
	if err == nil {
		exeDir := filepath.Dir(exePath)
		path := filepath.Join(exeDir, "mapdetect.yml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return "mapdetect.yml"
}

func applyDefaults(cfg *config.Config) {
	md := &cfg.MapDetect

	if md.Input.SessionsDir == "" {
		md.Input.SessionsDir = "data/pptam"
	}
	if md.Input.TracingDir == "" {
		md.Input.TracingDir = "data/tracing-log"
	}
	if md.Input.SessionLog == "" {
		md.Input.SessionLog = session.DefaultLogName
	}
	if md.Input.InstanceMarker == "" {
		md.Input.InstanceMarker = session.DefaultInstanceMarker
	}
	if md.Input.TraceSuffix == "" {
		md.Input.TraceSuffix = ".log"
	}

	if md.Pipeline.Workers <= 0 {
		md.Pipeline.Workers = 8
	}

	if md.Detection.ServiceThreshold <= 0 {
		md.Detection.ServiceThreshold = analyzer.DefaultBundleThreshold
	}
	if md.Detection.EndpointThreshold <= 0 {
		md.Detection.EndpointThreshold = analyzer.DefaultBundleThreshold
	}

	if md.Output.Findings.Mode == "" {
		md.Output.Findings.Mode = "file"
	}
	if md.Output.Findings.File.Path == "" {
		md.Output.Findings.File.Path = "output/findings.jsonl"
	}
	if md.Output.Pipelines.Dir == "" {
		md.Output.Pipelines.Dir = "pipelines"
	}
	if md.Output.EdgeLists.Dir == "" {
		md.Output.EdgeLists.Dir = "edgelists"
	}
	if md.Output.Events.Mode == "" {
		md.Output.Events.Mode = "file"
	}
	if md.Output.Events.File.Path == "" {
		md.Output.Events.File.Path = "output/call_events.jsonl"
	}
	if md.Output.Events.ClickHouse.Database == "" {
		md.Output.Events.ClickHouse.Database = "mapdetect"
	}
	if md.Output.Events.ClickHouse.Table == "" {
		md.Output.Events.ClickHouse.Table = "call_events"
	}
	if md.Output.Graph.KeyPrefix == "" {
		md.Output.Graph.KeyPrefix = "mapdetect:graph"
	}
	if md.Output.ByUserKey == "" {
		md.Output.ByUserKey = pipeline.DefaultByUserKey
	}

	if md.Logging.Level == "" {
		md.Logging.Level = "info"
	}
}

func detectionOptions(cfg config.DetectionConfig) (analyzer.Options, error) {
	if strings.TrimSpace(cfg.File) != "" {
		return analyzer.LoadOptions(cfg.File)
	}
	return analyzer.Options{
		FrontendServices:  cfg.FrontendServices,
		DatabaseServices:  cfg.DatabaseServices,
		ServiceThreshold:  cfg.ServiceThreshold,
		EndpointThreshold: cfg.EndpointThreshold,
	}.WithDefaults(), nil
}

func buildWriters(out config.OutputConfig) (pipeline.Writers, error) {
	var writers pipeline.Writers

	switch out.Findings.Mode {
	case "file":
		w, err := findingsjson.NewWriter(out.Findings.File.Path)
		if err != nil {
			return writers, fmt.Errorf("findings file writer: %w", err)
		}
		writers.Findings = append(writers.Findings, w)
		logger.Infof("Findings output: file (%s)", out.Findings.File.Path)
	case "none":
	default:
		return writers, fmt.Errorf("unknown findings output mode: %s", out.Findings.Mode)
	}

	if out.Reports.Enabled {
		w, err := reporthttp.NewWriter(reporthttp.Config{
			URL:     out.Reports.HTTP.URL,
			Timeout: out.Reports.HTTP.Timeout,
			Headers: out.Reports.HTTP.Headers,
		})
		if err != nil {
			return writers, fmt.Errorf("report http writer: %w", err)
		}
		writers.Reports = append(writers.Reports, w)
		logger.Infof("Report output: http (%s)", out.Reports.HTTP.URL)
	}

	if out.Pipelines.Enabled {
		w, err := pipelinecsv.NewWriter(out.Pipelines.Dir)
		if err != nil {
			return writers, err
		}
		writers.Pipelines = w
		logger.Infof("Pipeline output: %s", out.Pipelines.Dir)
	}

	if out.EdgeLists.Enabled {
		w, err := edgelistdir.NewWriter(out.EdgeLists.Dir)
		if err != nil {
			return writers, err
		}
		writers.Graphs = append(writers.Graphs, w)
		logger.Infof("Edge list output: %s", out.EdgeLists.Dir)
	}

	if out.Graph.Enabled {
		store, err := graphstate.NewRedisStore(graphstate.RedisConfig{
			Addr:      out.Graph.Addr,
			Password:  out.Graph.Password,
			DB:        out.Graph.DB,
			KeyPrefix: out.Graph.KeyPrefix,
		})
		if err != nil {
			return writers, err
		}
		writers.Graphs = append(writers.Graphs, store)
		logger.Infof("Graph store: redis (%s, prefix %s)", out.Graph.Addr, out.Graph.KeyPrefix)
	}

	if out.Events.Enabled {
		switch out.Events.Mode {
		case "file":
			w, err := eventjson.NewWriter(out.Events.File.Path)
			if err != nil {
				return writers, fmt.Errorf("call event file writer: %w", err)
			}
			writers.Events = w
			logger.Infof("Call event output: file (%s)", out.Events.File.Path)
		case "clickhouse":
			ch := out.Events.ClickHouse
			w, err := eventclickhouse.NewWriter(eventclickhouse.Config{
				URL:       ch.URL,
				Database:  ch.Database,
				Table:     ch.Table,
				Username:  ch.Username,
				Password:  ch.Password,
				Timeout:   ch.Timeout,
				BatchSize: ch.BatchSize,
				Headers:   ch.Headers,
			})
			if err != nil {
				return writers, fmt.Errorf("call event clickhouse writer: %w", err)
			}
			writers.Events = w
			logger.Infof("Call event output: clickhouse (%s/%s.%s)", ch.URL, ch.Database, ch.Table)
		default:
			return writers, fmt.Errorf("unknown call event output mode: %s", out.Events.Mode)
		}
	}

	return writers, nil
}

func serveMetrics(addr string, m *metrics.Metrics) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Metrics server error: %v", err)
		}
	}()
	logger.Infof("Metrics served on %s/metrics", addr)
	return srv
}

func runBatch(args []string) int {
	configArg := ""
	if len(args) > 0 {
		configArg = args[0]
	}

	configPath := findConfigFile(configArg)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	applyDefaults(cfg)
	md := cfg.MapDetect

	if err := logger.Init(md.Logging.Enabled, md.Logging.Level, md.Logging.File, md.Logging.Console); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	logger.Infof("mapdetect starting")
	logger.Infof("Config loaded from: %s", configPath)

	opts, err := detectionOptions(md.Detection)
	if err != nil {
		logger.Errorf("Failed to load detection options: %v", err)
		fmt.Fprintf(os.Stderr, "failed to load detection options: %v\n", err)
		return 1
	}

	m := metrics.New()
	if md.Metrics.Addr != "" {
		srv := serveMetrics(md.Metrics.Addr, m)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()
	}

	writers, err := buildWriters(md.Output)
	if err != nil {
		pipeline.NewBatch(pipeline.Config{}, writers, nil).Close()
		logger.Errorf("Failed to create writers: %v", err)
		fmt.Fprintf(os.Stderr, "failed to create writers: %v\n", err)
		return 1
	}

	batch := pipeline.NewBatch(pipeline.Config{
		SessionsDir: md.Input.SessionsDir,
		TracingDir:  md.Input.TracingDir,
		Session: session.Options{
			LogName:        md.Input.SessionLog,
			InstanceMarker: md.Input.InstanceMarker,
			Offset:         md.Input.ClockOffset,
		},
		TraceSuffix: md.Input.TraceSuffix,
		Workers:     md.Pipeline.Workers,
		Detection:   opts,
		ByUserKey:   md.Output.ByUserKey,
	}, writers, m)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, runErr := batch.Run(ctx)
	if err := batch.Close(); err != nil {
		logger.Errorf("Error closing writers: %v", err)
	}
	if md.Metrics.File != "" {
		if err := m.WriteTextFile(md.Metrics.File); err != nil {
			logger.Errorf("Failed to write metrics file: %v", err)
		}
	}
	if runErr != nil {
		logger.Errorf("Batch failed: %v", runErr)
		fmt.Fprintf(os.Stderr, "batch failed: %v\n", runErr)
		return 1
	}

	violations := 0
	for _, rep := range res.Reports {
		violations += rep.Violations()
	}
	fmt.Printf("users=%d excluded=%d lines=%d accepted=%d dropped=%d keys=%d findings=%d violations=%d\n",
		res.Sessions.Len(), len(res.Excluded), res.Stats.Lines, res.Stats.Accepted, res.Stats.TotalDropped(),
		len(res.Graphs), len(res.Findings()), violations)
	logger.Infof("mapdetect finished")
	return 0
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "run":
			os.Exit(runBatch(os.Args[2:]))
		case "analyze":
			os.Exit(runAnalyzer(os.Args[2:]))
		default:
			// First arg is a config path.
			os.Exit(runBatch(os.Args[1:]))
		}
	}

	os.Exit(runBatch(nil))
}
