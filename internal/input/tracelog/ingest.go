package tracelog

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"mapdetect/internal/aggregate"
	"mapdetect/internal/logger"
	"mapdetect/internal/transform/envoy"
	"mapdetect/pkg/models"
)

// DefaultSuffix selects trace log files inside the tracing directory.
const DefaultSuffix = ".log"

// DropReason classifies a trace line that did not become a call event.
type DropReason string

const (
	DropNotJSON      DropReason = "not_json"
	DropMalformed    DropReason = "malformed"
	DropUnattributed DropReason = "unattributed"
	DropNotOutbound  DropReason = "not_outbound"
)

// Attributor maps a call timestamp to a user and user instance.
type Attributor interface {
	Attribute(t time.Time) (user, instance string, ok bool)
}

// Stats counts ingestion outcomes. Dropped lines are diagnostics, not errors.
type Stats struct {
	Files    int
	Lines    int
	Accepted int
	Dropped  map[DropReason]int
}

func newStats() Stats {
	return Stats{Dropped: make(map[DropReason]int)}
}

// Merge adds other into s.
func (s *Stats) Merge(other Stats) {
	if s.Dropped == nil {
		s.Dropped = make(map[DropReason]int)
	}
	s.Files += other.Files
	s.Lines += other.Lines
	s.Accepted += other.Accepted
	for r, n := range other.Dropped {
		s.Dropped[r] += n
	}
}

// TotalDropped sums every drop reason.
func (s Stats) TotalDropped() int {
	n := 0
	for _, c := range s.Dropped {
		n += c
	}
	return n
}

// Options controls directory ingestion.
type Options struct {
	Suffix  string
	Workers int
}

// IngestReader extracts outbound call events of one service from r.
func IngestReader(service string, r io.Reader, attr Attributor) (*aggregate.Accumulator, Stats, error) {
	acc := aggregate.New()
	stats := newStats()

	s := bufio.NewScanner(r)
	buf := make([]byte, 0, 1024*1024)
	s.Buffer(buf, 8*1024*1024)

	for s.Scan() {
		stats.Lines++
		ev, user, instance, reason := extract(service, s.Bytes(), attr)
		if reason != "" {
			stats.Dropped[reason]++
			continue
		}
		acc.AddUser(user, instance, ev)
		stats.Accepted++
	}
	if err := s.Err(); err != nil {
		return nil, stats, fmt.Errorf("scan trace log: %w", err)
	}
	return acc, stats, nil
}

func extract(service string, line []byte, attr Attributor) (models.ServiceCallEvent, string, string, DropReason) {
	rec, err := envoy.ParseLine(line)
	if err != nil {
		if errors.Is(err, envoy.ErrNotJSON) {
			return models.ServiceCallEvent{}, "", "", DropNotJSON
		}
		logger.Debugf("%s: skipping malformed trace line: %v", service, err)
		return models.ServiceCallEvent{}, "", "", DropMalformed
	}

	user, instance, ok := attr.Attribute(rec.StartTime)
	if !ok {
		return models.ServiceCallEvent{}, "", "", DropUnattributed
	}

	target, err := envoy.TargetService(rec.UpstreamCluster)
	if err != nil {
		return models.ServiceCallEvent{}, "", "", DropNotOutbound
	}

	return models.ServiceCallEvent{
		Timestamp: rec.StartTime,
		From:      service,
		To:        target,
		Endpoint:  envoy.NormalizeEndpoint(rec.Path),
	}, user, instance, ""
}

// IngestFile ingests one trace log; the file name stem is the source service.
func IngestFile(path string, attr Attributor) (*aggregate.Accumulator, Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("open trace log: %w", err)
	}
	defer f.Close()

	acc, stats, err := IngestReader(envoy.ServiceFromFileName(filepath.Base(path)), f, attr)
	if err != nil {
		return nil, stats, fmt.Errorf("%s: %w", path, err)
	}
	stats.Files = 1
	return acc, stats, nil
}

// IngestDir ingests every trace log in dir in parallel. Partial results are
// merged in file-name order and the merged pipelines are time-sorted.
func IngestDir(ctx context.Context, dir string, attr Attributor, opts Options) (*aggregate.Accumulator, Stats, error) {
	if opts.Suffix == "" {
		opts.Suffix = DefaultSuffix
	}
	if opts.Workers <= 0 {
		opts.Workers = 8
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("read tracing directory: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), opts.Suffix) {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}

	partials := make([]*aggregate.Accumulator, len(files))
	partialStats := make([]Stats, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i, path := range files {
		i, path := i, path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			acc, st, err := IngestFile(path, attr)
			if err != nil {
				return err
			}
			logger.Debugf("Ingested %s: lines=%d accepted=%d dropped=%d", filepath.Base(path), st.Lines, st.Accepted, st.TotalDropped())
			partials[i] = acc
			partialStats[i] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, Stats{}, err
	}

	merged := aggregate.New()
	stats := newStats()
	for i := range files {
		merged.Merge(partials[i])
		stats.Merge(partialStats[i])
	}
	merged.Finalize()
	return merged, stats, nil
}
