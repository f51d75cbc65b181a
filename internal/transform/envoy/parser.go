package envoy

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	outboundMarker   = "outbound"
	upstreamSep      = "|"
	upstreamHostPart = 3
	endpointParts    = 5
)

var (
	// ErrNotJSON marks diagnostic lines that are not access-log objects.
	ErrNotJSON = errors.New("line is not a JSON object")
	// ErrMalformedLine marks JSON lines that cannot be decoded.
	ErrMalformedLine = errors.New("malformed access log line")
	// ErrInvalidUpstreamFormat marks inbound, local or unparsable upstream clusters.
	ErrInvalidUpstreamFormat = errors.New("invalid upstream cluster")
)

// Record is the subset of an Envoy access-log entry used for call extraction.
type Record struct {
	StartTime       time.Time
	UpstreamCluster string
	Path            *string
}

type rawRecord struct {
	StartTime       string  `json:"start_time"`
	UpstreamCluster string  `json:"upstream_cluster"`
	Path            *string `json:"path"`
}

// ParseLine decodes one trace log line.
func ParseLine(line []byte) (*Record, error) {
	if len(line) == 0 || line[0] != '{' {
		return nil, ErrNotJSON
	}

	var raw rawRecord
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedLine, err)
	}

	ts, err := ParseStartTime(raw.StartTime)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedLine, err)
	}

	return &Record{
		StartTime:       ts,
		UpstreamCluster: raw.UpstreamCluster,
		Path:            raw.Path,
	}, nil
}

// ParseStartTime parses an ISO-8601 start_time. The trailing zone designator
// is dropped and the value is read as UTC.
func ParseStartTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if len(value) < 2 {
		return time.Time{}, fmt.Errorf("start_time too short: %q", value)
	}
	value = value[:len(value)-1]

	for _, layout := range []string{
		"2006-01-02T15:04:05.999999999",
		"2006-01-02 15:04:05.999999999",
	} {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse start_time %q", value)
}

// TargetService extracts the called service from an upstream cluster such as
// "outbound|8080||ts-order-service.default.svc.cluster.local".
func TargetService(upstream string) (string, error) {
	parts := strings.Split(upstream, upstreamSep)
	if parts[0] != outboundMarker {
		return "", ErrInvalidUpstreamFormat
	}
	if len(parts) <= upstreamHostPart {
		return "", fmt.Errorf("%w: %q", ErrInvalidUpstreamFormat, upstream)
	}
	host := parts[upstreamHostPart]
	if i := strings.IndexByte(host, '.'); i >= 0 {
		host = host[:i]
	}
	if host == "" {
		return "", fmt.Errorf("%w: empty host in %q", ErrInvalidUpstreamFormat, upstream)
	}
	return host, nil
}

// NormalizeEndpoint keeps the first four path segments, dropping deeper
// segments such as path parameters. A missing path becomes "/".
func NormalizeEndpoint(path *string) string {
	if path == nil || *path == "" {
		return "/"
	}
	parts := strings.Split(*path, "/")
	if len(parts) > endpointParts {
		parts = parts[:endpointParts]
	}
	return strings.Join(parts, "/")
}

// ServiceFromFileName derives the source service from a trace log name.
func ServiceFromFileName(name string) string {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[:i]
	}
	return name
}
