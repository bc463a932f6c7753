package models

import "time"

// LivenessState is the derived device status
type LivenessState int

const (
	// LivenessUnknown is held until the first heartbeat read completes
	LivenessUnknown LivenessState = iota
	LivenessOn
	LivenessOff
)

func (s LivenessState) String() string {
	switch s {
	case LivenessOn:
		return "ON"
	case LivenessOff:
		return "OFF"
	default:
		return "UNKNOWN"
	}
}

// Presented folds UNKNOWN into OFF for display
func (s LivenessState) Presented() LivenessState {
	if s == LivenessOn {
		return LivenessOn
	}
	return LivenessOff
}

// DisplayText is the status line shown to the user
func (s LivenessState) DisplayText() string {
	return "Device is: " + s.Presented().String()
}

// MarshalText renders the presented state
func (s LivenessState) MarshalText() ([]byte, error) {
	return []byte(s.Presented().String()), nil
}

func (s *LivenessState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "ON":
		*s = LivenessOn
	case "OFF":
		*s = LivenessOff
	default:
		*s = LivenessUnknown
	}
	return nil
}

// DeriveLiveness computes the state from a heartbeat in epoch seconds.
// The device is ON iff now - lastSeen <= window, compared in whole seconds.
func DeriveLiveness(lastSeen int64, now time.Time, window time.Duration) (LivenessState, int64) {
	diff := now.Unix() - lastSeen
	if diff <= int64(window/time.Second) {
		return LivenessOn, diff
	}
	return LivenessOff, diff
}
