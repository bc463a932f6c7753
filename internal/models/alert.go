package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Priority of a persistent notification
type Priority string

const (
	PriorityDefault Priority = "DEFAULT"
	PriorityHigh    Priority = "HIGH"
)

// NotificationChannel describes the category persistent notifications are posted under
type NotificationChannel struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Importance  Priority `json:"importance"`
}

// Alert is a dispatched threshold alert wrapped with delivery metadata
type Alert struct {
	ID        string    `json:"id"`
	CycleID   string    `json:"cycle_id"`
	ChannelID string    `json:"channel_id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Priority  Priority  `json:"priority"`
	Threshold int       `json:"threshold"`
	Sensors   []string  `json:"sensors"`
	CreatedAt time.Time `json:"created_at"`
}

// NewAlert creates an alert for the given violations
func NewAlert(cycleID string, channel NotificationChannel, title string, violations []Violation) *Alert {
	names := ViolatingNames(violations)
	threshold := 0
	if len(violations) > 0 {
		threshold = violations[0].Threshold
	}

	return &Alert{
		ID:        uuid.NewString(),
		CycleID:   cycleID,
		ChannelID: channel.ID,
		Title:     title,
		Message:   AlertMessage(violations),
		Priority:  channel.Importance,
		Threshold: threshold,
		Sensors:   names,
		CreatedAt: time.Now().UTC(),
	}
}

// ViolatingNames lists the channel names in violation order
func ViolatingNames(violations []Violation) []string {
	names := make([]string, 0, len(violations))
	for _, v := range violations {
		names = append(names, v.Channel.Name)
	}
	return names
}

// AlertMessage formats the user-facing warning for a set of violations
func AlertMessage(violations []Violation) string {
	if len(violations) == 0 {
		return ""
	}
	return fmt.Sprintf("Warning! %s exceeded the threshold of %d%%",
		strings.Join(ViolatingNames(violations), ", "),
		violations[0].Threshold,
	)
}
