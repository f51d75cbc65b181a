package pipeline

import "mapdetect/pkg/models"

// FindingWriter writes detector findings.
type FindingWriter interface {
	WriteFindings(findings []*models.Finding) error
	Close() error
}
