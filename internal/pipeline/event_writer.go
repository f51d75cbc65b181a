package pipeline

import "mapdetect/pkg/models"

// EventWriter writes attributed call events for time-series storage.
type EventWriter interface {
	WriteEvents(events []*models.CallEventRow) error
	Close() error
}
