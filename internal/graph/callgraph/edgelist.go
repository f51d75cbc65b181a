package callgraph

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ReadEdgeList parses whitespace-separated "from to key [weight]" lines.
// Repeated (from, to, key) triples accumulate: by weight when given, else by
// one.
func ReadEdgeList(r io.Reader) (*CallGraph, error) {
	g := New()
	s := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	s.Buffer(buf, 4*1024*1024)

	lineNo := 0
	for s.Scan() {
		lineNo++
		fields := strings.Fields(s.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 3 {
			return nil, fmt.Errorf("edge list line %d: expected at least 3 fields, got %d", lineNo, len(fields))
		}
		weight := 1
		if len(fields) > 3 {
			w, err := strconv.Atoi(fields[3])
			if err != nil || w <= 0 {
				return nil, fmt.Errorf("edge list line %d: invalid weight %q", lineNo, fields[3])
			}
			weight = w
		}
		g.AddEdge(fields[0], fields[1], fields[2], weight)
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("scan edge list: %w", err)
	}
	return g, nil
}

// WriteEdgeList writes one "from to key weight" line per edge, sorted.
func WriteEdgeList(w io.Writer, g *CallGraph) error {
	bw := bufio.NewWriter(w)
	for _, e := range g.Edges() {
		if _, err := fmt.Fprintf(bw, "%s %s %s %d\n", e.From, e.To, e.Key, e.Weight); err != nil {
			return fmt.Errorf("write edge: %w", err)
		}
	}
	return bw.Flush()
}

// LoadEdgeListFile reads an edge list from disk.
func LoadEdgeListFile(path string) (*CallGraph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open edge list: %w", err)
	}
	defer f.Close()
	return ReadEdgeList(f)
}
