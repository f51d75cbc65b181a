package pipeline

import "mapdetect/pkg/models"

// PipelineWriter persists the time-ordered pipeline of one attribution key.
type PipelineWriter interface {
	WritePipeline(key string, events []models.ServiceCallEvent) error
	Close() error
}
