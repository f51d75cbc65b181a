package analyzer

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Options configures all three detectors for one run.
type Options struct {
	FrontendServices  []string `yaml:"frontend_services" json:"frontend_services,omitempty"`
	DatabaseServices  []string `yaml:"database_services" json:"database_services,omitempty"`
	ServiceThreshold  int      `yaml:"service_threshold" json:"service_threshold,omitempty"`
	EndpointThreshold int      `yaml:"endpoint_threshold" json:"endpoint_threshold,omitempty"`
}

// WithDefaults returns a copy with thresholds defaulted and service names
// trimmed.
func (o Options) WithDefaults() Options {
	if o.ServiceThreshold <= 0 {
		o.ServiceThreshold = DefaultBundleThreshold
	}
	if o.EndpointThreshold <= 0 {
		o.EndpointThreshold = DefaultBundleThreshold
	}
	o.FrontendServices = cleanNames(o.FrontendServices)
	o.DatabaseServices = cleanNames(o.DatabaseServices)
	return o
}

// LoadOptions reads detector options from a YAML file.
func LoadOptions(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("read detection file: %w", err)
	}
	var opts Options
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return Options{}, fmt.Errorf("parse detection file: %w", err)
	}
	return opts.WithDefaults(), nil
}

// ParseServiceList splits a comma-separated list of service names.
func ParseServiceList(raw string) []string {
	return cleanNames(strings.Split(raw, ","))
}

func cleanNames(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
