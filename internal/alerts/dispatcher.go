package alerts

import (
	"context"
	"strings"
	"sync"

	"smokealert/internal/logger"
	"smokealert/internal/metrics"
	"smokealert/internal/models"
)

// dedupWindow is how many recent cycles are remembered when dedup is on
const dedupWindow = 16

// Notices shows short-lived messages with no delivery guarantee
type Notices interface {
	Alert(msg string)
}

// Notifier posts persistent notifications under a notification channel
type Notifier interface {
	// EnsureChannel creates the channel if missing; creating an existing channel is a no-op
	EnsureChannel(ctx context.Context, ch models.NotificationChannel) error
	// Permitted reports whether persistent notifications may be posted
	Permitted() bool
	Notify(ctx context.Context, alert *models.Alert) error
}

// DispatcherConfig holds dispatcher configuration
type DispatcherConfig struct {
	Notices  Notices
	Notifier Notifier
	Channel  models.NotificationChannel
	Title    string
	// DedupPerCycle drops a dispatch whose violating set was already dispatched in the same cycle
	DedupPerCycle bool
}

// Dispatcher turns violation sets into alerts
type Dispatcher struct {
	cfg DispatcherConfig

	mu     sync.Mutex
	sent   map[string]string
	cycles []string
}

// NewDispatcher creates a dispatcher
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Channel.Importance == "" {
		cfg.Channel.Importance = models.PriorityHigh
	}
	return &Dispatcher{
		cfg:  cfg,
		sent: make(map[string]string),
	}
}

// Dispatch emits one alert for the violations found in a cycle.
// An empty set does nothing. The ephemeral notice always fires; the persistent
// notification is skipped when permission is not granted.
func (d *Dispatcher) Dispatch(ctx context.Context, cycleID string, violations []models.Violation) {
	if len(violations) == 0 {
		return
	}

	log := logger.WithComponent("dispatcher").With().Str("cycle_id", cycleID).Logger()

	if d.cfg.DedupPerCycle && d.duplicate(cycleID, violations) {
		metrics.AlertsSuppressedTotal.WithLabelValues("duplicate").Inc()
		log.Debug().Msg("violation set already dispatched in this cycle")
		return
	}

	alert := models.NewAlert(cycleID, d.cfg.Channel, d.cfg.Title, violations)
	metrics.AlertsDispatchedTotal.Inc()

	log.Warn().
		Str("alert_id", alert.ID).
		Strs("sensors", alert.Sensors).
		Int("threshold", alert.Threshold).
		Msg(alert.Message)

	if d.cfg.Notices != nil {
		d.cfg.Notices.Alert(alert.Message)
	}

	if d.cfg.Notifier == nil {
		return
	}

	if err := d.cfg.Notifier.EnsureChannel(ctx, d.cfg.Channel); err != nil {
		metrics.AlertsSuppressedTotal.WithLabelValues("channel").Inc()
		log.Warn().Err(err).Str("channel_id", d.cfg.Channel.ID).Msg("notification channel not ready, skipping persistent notification")
		return
	}

	if !d.cfg.Notifier.Permitted() {
		metrics.AlertsSuppressedTotal.WithLabelValues("permission").Inc()
		log.Debug().Msg("notification permission not granted, skipping persistent notification")
		return
	}

	if err := d.cfg.Notifier.Notify(ctx, alert); err != nil {
		log.Error().Err(err).Str("alert_id", alert.ID).Msg("failed to post notification")
	}
}

func (d *Dispatcher) duplicate(cycleID string, violations []models.Violation) bool {
	key := strings.Join(models.ViolatingNames(violations), "\x00")

	d.mu.Lock()
	defer d.mu.Unlock()

	prev, ok := d.sent[cycleID]
	if ok && prev == key {
		return true
	}
	if !ok {
		d.cycles = append(d.cycles, cycleID)
		if len(d.cycles) > dedupWindow {
			delete(d.sent, d.cycles[0])
			d.cycles = d.cycles[1:]
		}
	}
	d.sent[cycleID] = key
	return false
}
