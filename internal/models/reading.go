package models

import (
	"errors"
	"time"
)

// Validation errors
var (
	ErrMalformedValue = errors.New("value is not an integer")
	ErrThresholdRange = errors.New("threshold must be between 0 and 100")
)

const (
	MinThreshold = 0
	MaxThreshold = 100
)

// Channel identifies one sensor and where its value lives in the remote store
type Channel struct {
	// Display name, e.g. "Sensor A"
	Name string `json:"name"`

	// Key under sensorValue/, e.g. "sensor1"
	Key string `json:"key"`
}

// Path returns the remote store path of the channel's current value
func (c Channel) Path() string {
	return "sensorValue/" + c.Key
}

// Reading is one successfully parsed sensor value
type Reading struct {
	Channel    Channel   `json:"channel"`
	Value      int       `json:"value"`
	ObservedAt time.Time `json:"observed_at"`
}

// Violation is a reading above the threshold in force when it was evaluated
type Violation struct {
	Channel   Channel `json:"channel"`
	Value     int     `json:"value"`
	Threshold int     `json:"threshold"`
}

// Snapshot holds the readings resolved so far in one poll cycle, in arrival order.
// The zero value is ready to use. A Snapshot is owned by a single goroutine.
type Snapshot struct {
	order    []string
	readings map[string]Reading
}

// Put records a reading, replacing any earlier one for the same channel
// without changing its position.
func (s *Snapshot) Put(r Reading) {
	if s.readings == nil {
		s.readings = make(map[string]Reading)
	}
	if _, ok := s.readings[r.Channel.Key]; !ok {
		s.order = append(s.order, r.Channel.Key)
	}
	s.readings[r.Channel.Key] = r
}

// Get returns the reading for a channel key
func (s *Snapshot) Get(key string) (Reading, bool) {
	r, ok := s.readings[key]
	return r, ok
}

// Len returns the number of channels resolved
func (s *Snapshot) Len() int {
	return len(s.order)
}

// Readings returns a copy of the readings in arrival order
func (s *Snapshot) Readings() []Reading {
	out := make([]Reading, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, s.readings[key])
	}
	return out
}

// ValidThreshold reports whether v is an allowed threshold
func ValidThreshold(v int) bool {
	return v >= MinThreshold && v <= MaxThreshold
}
