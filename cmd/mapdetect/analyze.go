package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mapdetect/internal/analyzer"
	"mapdetect/internal/graph/callgraph"
	"mapdetect/internal/graphstate"
	"mapdetect/internal/output/edgelistdir"
	"mapdetect/internal/output/pipelinecsv"
	"mapdetect/pkg/models"
)

func runAnalyzer(args []string) int {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	edgeList := fs.String("edgelist", "", "Edge list input path (from to key [weight])")
	edgeListDir := fs.String("edgelist-dir", "", "Directory of <key>.edgelist files; analyzes -key or every stored key")
	pipelinePath := fs.String("pipeline", "", "Pipeline CSV input path")
	frontends := fs.String("frontends", "", "Comma-separated designated frontend services")
	databases := fs.String("databases", "", "Comma-separated designated database services")
	detectionFile := fs.String("detection", "", "Optional YAML file with detector options")
	serviceThreshold := fs.Int("service-threshold", analyzer.DefaultBundleThreshold, "Minimum service-level run length")
	endpointThreshold := fs.Int("endpoint-threshold", analyzer.DefaultBundleThreshold, "Minimum endpoint-level run length")
	key := fs.String("key", "", "Attribution key recorded on findings")
	output := fs.String("output", "output/findings.jsonl", "Findings JSONL output path")
	reportOutput := fs.String("report", "", "Optional JSON report output path, including node overlays")
	redisAddr := fs.String("redis", "", "Load graphs from the Redis graph store at this address instead of -edgelist")
	redisPrefix := fs.String("redis-prefix", "mapdetect:graph", "Redis graph store key prefix")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if strings.TrimSpace(*edgeList) == "" && strings.TrimSpace(*edgeListDir) == "" &&
		strings.TrimSpace(*pipelinePath) == "" && strings.TrimSpace(*redisAddr) == "" {
		fmt.Fprintln(os.Stderr, "analyze needs -edgelist, -edgelist-dir, -pipeline or -redis")
		return 2
	}

	opts := analyzer.Options{
		FrontendServices:  analyzer.ParseServiceList(*frontends),
		DatabaseServices:  analyzer.ParseServiceList(*databases),
		ServiceThreshold:  *serviceThreshold,
		EndpointThreshold: *endpointThreshold,
	}
	if strings.TrimSpace(*detectionFile) != "" {
		fileOpts, err := analyzer.LoadOptions(*detectionFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load detection file: %v\n", err)
			return 1
		}
		opts = mergeOptions(fileOpts, opts)
	}

	var events []models.ServiceCallEvent
	if strings.TrimSpace(*pipelinePath) != "" {
		var err error
		events, err = pipelinecsv.LoadFile(*pipelinePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load pipeline: %v\n", err)
			return 1
		}
	}

	var targets []target
	switch {
	case strings.TrimSpace(*redisAddr) != "":
		stored, err := loadStoredGraphs(*redisAddr, *redisPrefix, *key)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load graphs from redis: %v\n", err)
			return 1
		}
		targets = stored
	case strings.TrimSpace(*edgeListDir) != "":
		stored, err := loadEdgeListDir(*edgeListDir, *key)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load edge list directory: %v\n", err)
			return 1
		}
		targets = stored
	case strings.TrimSpace(*edgeList) != "":
		g, err := callgraph.LoadEdgeListFile(*edgeList)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load edge list: %v\n", err)
			return 1
		}
		targets = []target{{graph: g}}
	default:
		targets = []target{{graph: graphFromPipeline(events)}}
	}

	var (
		reports  []analyzer.Report
		findings []models.Finding
	)
	for _, tg := range targets {
		name := tg.key
		if name == "" {
			name = *key
		}
		if name == "" {
			name = keyFromPath(*edgeList, *pipelinePath)
		}
		var pipeline []models.ServiceCallEvent
		if len(targets) == 1 {
			pipeline = events
		}
		report := analyzer.Analyze(name, tg.graph, pipeline, opts)
		reports = append(reports, report)
		findings = append(findings, report.Findings()...)
		fmt.Printf("analyzed key=%s nodes=%d edges=%d events=%d findings=%d violations=%d\n",
			name, tg.graph.NumNodes(), tg.graph.NumEdges(), len(pipeline), len(report.Findings()), report.Violations())
	}

	if err := writeJSONLines(*output, findings); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write findings: %v\n", err)
		return 1
	}
	if strings.TrimSpace(*reportOutput) != "" {
		var v any = reports
		if len(reports) == 1 {
			v = reports[0]
		}
		if err := writeJSON(*reportOutput, v); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			return 1
		}
	}

	fmt.Printf("findings=%d output=%s\n", len(findings), *output)
	return 0
}

type target struct {
	key   string
	graph *callgraph.CallGraph
}

// loadStoredGraphs reads one key, or every stored key when key is empty.
func loadStoredGraphs(addr, prefix, key string) ([]target, error) {
	store, err := graphstate.NewRedisStore(graphstate.RedisConfig{Addr: addr, KeyPrefix: prefix})
	if err != nil {
		return nil, err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	keys := []string{key}
	if key == "" {
		keys, err = store.Keys(ctx)
		if err != nil {
			return nil, err
		}
	}
	out := make([]target, 0, len(keys))
	for _, k := range keys {
		g, err := store.LoadGraph(ctx, k)
		if err != nil {
			return nil, err
		}
		out = append(out, target{key: k, graph: g})
	}
	return out, nil
}

// loadEdgeListDir reads one key, or every <key>.edgelist file when key is empty.
func loadEdgeListDir(dir, key string) ([]target, error) {
	store, err := edgelistdir.Open(dir)
	if err != nil {
		return nil, err
	}
	keys := []string{key}
	if key == "" {
		keys, err = store.Keys()
		if err != nil {
			return nil, err
		}
	}
	out := make([]target, 0, len(keys))
	for _, k := range keys {
		g, err := store.LoadGraph(k)
		if err != nil {
			return nil, err
		}
		out = append(out, target{key: k, graph: g})
	}
	return out, nil
}

// mergeOptions prefers explicitly given flag values over the detection file.
func mergeOptions(file, flags analyzer.Options) analyzer.Options {
	out := file
	if len(flags.FrontendServices) > 0 {
		out.FrontendServices = flags.FrontendServices
	}
	if len(flags.DatabaseServices) > 0 {
		out.DatabaseServices = flags.DatabaseServices
	}
	if flags.ServiceThreshold != analyzer.DefaultBundleThreshold {
		out.ServiceThreshold = flags.ServiceThreshold
	}
	if flags.EndpointThreshold != analyzer.DefaultBundleThreshold {
		out.EndpointThreshold = flags.EndpointThreshold
	}
	return out
}

func graphFromPipeline(events []models.ServiceCallEvent) *callgraph.CallGraph {
	counts := make(map[models.CallKey]int, len(events))
	for _, ev := range events {
		counts[ev.Key()]++
	}
	return callgraph.Build(counts)
}

func keyFromPath(paths ...string) string {
	for _, p := range paths {
		if strings.TrimSpace(p) == "" {
			continue
		}
		base := filepath.Base(p)
		base = strings.TrimSuffix(base, filepath.Ext(base))
		return strings.TrimSuffix(base, "_pipeline")
	}
	return ""
}

func writeJSONLines[T any](path string, rows []T) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, item := range rows {
		if err := enc.Encode(item); err != nil {
			return fmt.Errorf("encode row: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}
