package models

import "time"

// UserSession is the activity window of one simulated load-test user.
type UserSession struct {
	UserID    string             `json:"user_id"`
	Start     time.Time          `json:"start"`
	End       time.Time          `json:"end"`
	Instances []InstanceBoundary `json:"instances,omitempty"`
}

// InstanceBoundary marks the start of one repeated user instance.
type InstanceBoundary struct {
	ID    string    `json:"id"`
	Start time.Time `json:"start"`
}

// Contains reports whether t lies strictly inside the session window.
func (s *UserSession) Contains(t time.Time) bool {
	return t.After(s.Start) && t.Before(s.End)
}
