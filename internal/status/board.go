package status

import (
	"fmt"
	"sync"
	"time"

	"smokealert/internal/models"
)

// EventKind classifies what the presentation layer is told
type EventKind string

const (
	// EventAlert carries a dispatched alert message
	EventAlert EventKind = "alert"
	// EventNotice is a short-lived informational message
	EventNotice EventKind = "notice"
	// EventError reports a non-fatal failure
	EventError EventKind = "error"
)

// Event is one message on the board's stream
type Event struct {
	Kind    EventKind `json:"kind"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// ChannelView is the display state of one sensor
type ChannelView struct {
	Name       string     `json:"name"`
	Key        string     `json:"key"`
	Value      *int       `json:"value"`
	ObservedAt *time.Time `json:"observed_at,omitempty"`
}

// View is a consistent copy of everything the board shows
type View struct {
	Channels      []ChannelView        `json:"channels"`
	Threshold     int                  `json:"threshold"`
	ThresholdText string               `json:"threshold_text"`
	Device        models.LivenessState `json:"device"`
	DeviceText    string               `json:"device_text"`
}

// Board holds the read-only observables exposed to the presentation layer:
// latest reading per channel, current threshold, device liveness and an event stream.
type Board struct {
	mu        sync.RWMutex
	channels  []models.Channel
	readings  map[string]models.Reading
	threshold int
	liveness  models.LivenessState

	subMu  sync.Mutex
	subs   map[uint64]chan Event
	nextID uint64
}

// NewBoard creates a board for the configured channels
func NewBoard(channels []models.Channel) *Board {
	return &Board{
		channels: append([]models.Channel(nil), channels...),
		readings: make(map[string]models.Reading, len(channels)),
		subs:     make(map[uint64]chan Event),
	}
}

// SetReading records the latest value for a channel
func (b *Board) SetReading(r models.Reading) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.readings[r.Channel.Key] = r
}

// SetThreshold records the threshold in force
func (b *Board) SetThreshold(v int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.threshold = v
}

// SetLiveness records the latest derived device state
func (b *Board) SetLiveness(s models.LivenessState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.liveness = s
}

// Liveness returns the raw state, including UNKNOWN
func (b *Board) Liveness() models.LivenessState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.liveness
}

// View returns a copy of the current state
func (b *Board) View() View {
	b.mu.RLock()
	defer b.mu.RUnlock()

	v := View{
		Channels:      make([]ChannelView, 0, len(b.channels)),
		Threshold:     b.threshold,
		ThresholdText: fmt.Sprintf("Sensor Threshold: %d%%", b.threshold),
		Device:        b.liveness.Presented(),
		DeviceText:    b.liveness.DisplayText(),
	}
	for _, ch := range b.channels {
		cv := ChannelView{Name: ch.Name, Key: ch.Key}
		if r, ok := b.readings[ch.Key]; ok {
			value, at := r.Value, r.ObservedAt
			cv.Value = &value
			cv.ObservedAt = &at
		}
		v.Channels = append(v.Channels, cv)
	}
	return v
}

// Alert publishes a dispatched alert message
func (b *Board) Alert(msg string) { b.publish(EventAlert, msg) }

// Notice publishes an informational message
func (b *Board) Notice(msg string) { b.publish(EventNotice, msg) }

// Error publishes a failure report
func (b *Board) Error(msg string) { b.publish(EventError, msg) }

// Subscribe returns a stream of events and a cancel func. Slow subscribers miss
// events instead of blocking publishers.
func (b *Board) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	b.subMu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.subMu.Lock()
			delete(b.subs, id)
			b.subMu.Unlock()
			close(ch)
		})
	}
}

func (b *Board) publish(kind EventKind, msg string) {
	ev := Event{Kind: kind, Message: msg, At: time.Now().UTC()}

	b.subMu.Lock()
	defer b.subMu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
