package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"mapdetect/internal/aggregate"
	"mapdetect/internal/analyzer"
	"mapdetect/internal/graph/callgraph"
	"mapdetect/internal/input/tracelog"
	"mapdetect/internal/logger"
	"mapdetect/internal/metrics"
	"mapdetect/internal/session"
	"mapdetect/pkg/models"
)

// DefaultByUserKey names the cross-user graph handed to graph writers.
const DefaultByUserKey = "by_user"

// Config controls one batch run.
type Config struct {
	SessionsDir string
	TracingDir  string
	Session     session.Options
	TraceSuffix string
	Workers     int
	Detection   analyzer.Options
	ByUserKey   string
}

// Writers are the optional sinks of a batch run. Nil entries are skipped.
type Writers struct {
	Findings  []FindingWriter
	Reports   []ReportWriter
	Events    EventWriter
	Pipelines PipelineWriter
	Graphs    []GraphWriter
}

// Result is everything a batch run produced.
type Result struct {
	Sessions    *session.Index
	Excluded    []*session.MalformedLogError
	Accumulator *aggregate.Accumulator
	Stats       tracelog.Stats
	Graphs      map[string]*callgraph.CallGraph
	ByUser      *callgraph.CallGraph
	// Reports are ordered by attribution key.
	Reports []analyzer.Report
}

// Findings flattens every report, in key order.
func (r *Result) Findings() []*models.Finding {
	var out []*models.Finding
	for _, rep := range r.Reports {
		for _, f := range rep.Findings() {
			f := f
			out = append(out, &f)
		}
	}
	return out
}

// Batch runs session loading, trace ingestion, graph building and detection
// over one load-test capture.
type Batch struct {
	cfg     Config
	writers Writers
	metrics *metrics.Metrics
}

// NewBatch creates a batch runner. m may be nil.
func NewBatch(cfg Config, writers Writers, m *metrics.Metrics) *Batch {
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.ByUserKey == "" {
		cfg.ByUserKey = DefaultByUserKey
	}
	cfg.Detection = cfg.Detection.WithDefaults()
	return &Batch{cfg: cfg, writers: writers, metrics: m}
}

// Run executes the batch. Sessions are fully loaded before any trace line is
// attributed. Only unreadable input directories and sink failures are errors.
func (b *Batch) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	logger.Infof("Batch started: sessions=%s tracing=%s workers=%d", b.cfg.SessionsDir, b.cfg.TracingDir, b.cfg.Workers)

	idx, excluded, err := session.Load(b.cfg.SessionsDir, b.cfg.Session)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	b.metrics.ObserveSessions(idx.Len(), len(excluded))
	logger.Infof("Sessions loaded: users=%d excluded=%d", idx.Len(), len(excluded))
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	acc, stats, err := tracelog.IngestDir(ctx, b.cfg.TracingDir, idx, tracelog.Options{
		Suffix:  b.cfg.TraceSuffix,
		Workers: b.cfg.Workers,
	})
	if err != nil {
		return nil, fmt.Errorf("ingest traces: %w", err)
	}
	b.observeIngest(stats)
	logger.Infof("Traces ingested: files=%d lines=%d accepted=%d dropped=%d", stats.Files, stats.Lines, stats.Accepted, stats.TotalDropped())

	res := &Result{
		Sessions:    idx,
		Excluded:    excluded,
		Accumulator: acc,
		Stats:       stats,
		Graphs:      callgraph.BuildAll(acc),
		ByUser:      callgraph.BuildByUser(acc),
	}
	b.metrics.SetGraphs(len(res.Graphs))

	reports, err := b.analyze(ctx, acc, res.Graphs)
	if err != nil {
		return nil, err
	}
	res.Reports = reports

	if err := b.write(res); err != nil {
		return res, err
	}

	logger.Infof("Batch finished in %s: keys=%d findings=%d", time.Since(start).Round(time.Millisecond), len(res.Graphs), len(res.Findings()))
	return res, nil
}

func (b *Batch) observeIngest(stats tracelog.Stats) {
	dropped := make(map[string]int, len(stats.Dropped))
	for reason, n := range stats.Dropped {
		dropped[string(reason)] = n
	}
	b.metrics.ObserveIngest(stats.Lines, stats.Accepted, dropped)
}

func (b *Batch) analyze(ctx context.Context, acc *aggregate.Accumulator, graphs map[string]*callgraph.CallGraph) ([]analyzer.Report, error) {
	keys := acc.Keys()
	reports := make([]analyzer.Report, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Workers)
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			var pipeline []models.ServiceCallEvent
			if t, ok := acc.Tally(key); ok {
				pipeline = t.Pipeline
			}
			reports[i] = analyzer.Analyze(key, graphs[key], pipeline, b.cfg.Detection)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}

	sort.Slice(reports, func(i, j int) bool { return reports[i].Key < reports[j].Key })
	for _, rep := range reports {
		for _, f := range rep.Findings() {
			b.metrics.ObserveFinding(f.Pattern, f.Kind)
		}
	}
	return reports, nil
}

func (b *Batch) write(res *Result) error {
	keys := res.Accumulator.Keys()

	if findings := res.Findings(); len(findings) > 0 {
		for _, w := range b.writers.Findings {
			if w == nil {
				continue
			}
			if err := w.WriteFindings(findings); err != nil {
				return fmt.Errorf("write findings: %w", err)
			}
		}
	}

	for _, w := range b.writers.Reports {
		if w == nil {
			continue
		}
		for _, rep := range res.Reports {
			if err := w.WriteReport(rep, res.Graphs[rep.Key]); err != nil {
				return fmt.Errorf("write report: %w", err)
			}
		}
	}

	if b.writers.Events != nil {
		var rows []*models.CallEventRow
		for _, key := range keys {
			t, _ := res.Accumulator.Tally(key)
			for _, ev := range t.Pipeline {
				rows = append(rows, &models.CallEventRow{
					Timestamp: ev.Timestamp,
					Key:       key,
					From:      ev.From,
					To:        ev.To,
					Endpoint:  ev.Endpoint,
				})
			}
		}
		if err := b.writers.Events.WriteEvents(rows); err != nil {
			return fmt.Errorf("write call events: %w", err)
		}
	}

	if b.writers.Pipelines != nil {
		for _, key := range keys {
			t, _ := res.Accumulator.Tally(key)
			if err := b.writers.Pipelines.WritePipeline(key, t.Pipeline); err != nil {
				return fmt.Errorf("write pipeline: %w", err)
			}
		}
	}

	for _, w := range b.writers.Graphs {
		if w == nil {
			continue
		}
		for _, key := range keys {
			if err := w.WriteGraph(key, res.Graphs[key]); err != nil {
				return fmt.Errorf("write graph: %w", err)
			}
		}
		if res.ByUser.NumEdges() > 0 {
			if err := w.WriteGraph(b.cfg.ByUserKey, res.ByUser); err != nil {
				return fmt.Errorf("write graph: %w", err)
			}
		}
	}
	return nil
}

// Close releases every configured writer.
func (b *Batch) Close() error {
	var first error
	closeOne := func(name string, c interface{ Close() error }) {
		if err := c.Close(); err != nil {
			logger.Errorf("Failed to close %s writer: %v", name, err)
			if first == nil {
				first = err
			}
		}
	}
	for _, w := range b.writers.Findings {
		if w != nil {
			closeOne("findings", w)
		}
	}
	for _, w := range b.writers.Reports {
		if w != nil {
			closeOne("report", w)
		}
	}
	if b.writers.Events != nil {
		closeOne("event", b.writers.Events)
	}
	if b.writers.Pipelines != nil {
		closeOne("pipeline", b.writers.Pipelines)
	}
	for _, w := range b.writers.Graphs {
		if w != nil {
			closeOne("graph", w)
		}
	}
	return first
}
