// Package notify implements the persistent notification path: a registry of
// notification channels, the permission switch and a bounded delivery queue.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"smokealert/internal/logger"
	"smokealert/internal/metrics"
	"smokealert/internal/models"
)

var (
	ErrQueueFull      = errors.New("notification queue full")
	ErrUnknownChannel = errors.New("notification channel does not exist")
	// ErrChannelPending is returned while a channel is still being provisioned
	ErrChannelPending = errors.New("notification channel is being created")
)

const defaultProvisionTimeout = 10 * time.Second

// Provisioner creates the backing resource for a notification channel.
// Must treat an already existing resource as success.
type Provisioner interface {
	EnsureChannel(ctx context.Context, ch models.NotificationChannel) error
}

// Center implements the dispatcher's Notifier over a queue drained by worker.Pool.
// Provisioning never runs on the caller of EnsureChannel: the dispatcher sits on the
// poll loop and must not wait on the network.
type Center struct {
	queue            chan<- *models.Alert
	provisioner      Provisioner
	provisionTimeout time.Duration
	permitted        atomic.Bool

	// mu guards channels and pending; never held across provisioning
	mu       sync.Mutex
	channels map[string]models.NotificationChannel
	pending  map[string]bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	enqueued atomic.Uint64
	dropped  atomic.Uint64
}

// CenterConfig holds notification center configuration
type CenterConfig struct {
	Queue       chan<- *models.Alert
	Provisioner Provisioner
	// ProvisionTimeout bounds one provisioning attempt
	ProvisionTimeout time.Duration
	Permitted        bool
}

// NewCenter creates a notification center
func NewCenter(cfg CenterConfig) *Center {
	if cfg.ProvisionTimeout <= 0 {
		cfg.ProvisionTimeout = defaultProvisionTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Center{
		queue:            cfg.Queue,
		provisioner:      cfg.Provisioner,
		provisionTimeout: cfg.ProvisionTimeout,
		channels:         make(map[string]models.NotificationChannel),
		pending:          make(map[string]bool),
		ctx:              ctx,
		cancel:           cancel,
	}
	c.permitted.Store(cfg.Permitted)
	return c
}

// EnsureChannel reports whether ch is ready, starting its creation if needed.
// Without a provisioner the channel is registered at once. Otherwise creation runs
// in the background and ErrChannelPending is returned until it succeeds; a failed
// attempt is retried on the next call.
func (c *Center) EnsureChannel(ctx context.Context, ch models.NotificationChannel) error {
	c.mu.Lock()
	if _, ok := c.channels[ch.ID]; ok {
		c.mu.Unlock()
		return nil
	}
	if c.provisioner == nil {
		c.channels[ch.ID] = ch
		c.mu.Unlock()
		c.logCreated(ch)
		return nil
	}
	if c.pending[ch.ID] || c.ctx.Err() != nil {
		c.mu.Unlock()
		return ErrChannelPending
	}
	c.pending[ch.ID] = true
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		err := c.Provision(c.ctx, ch)

		c.mu.Lock()
		delete(c.pending, ch.ID)
		c.mu.Unlock()

		if err != nil {
			log := logger.WithComponent("notify")
			log.Error().Err(err).Str("channel_id", ch.ID).Msg("background channel provisioning failed")
		}
	}()
	return ErrChannelPending
}

// Provision creates ch and waits for the result, bounded by the provision timeout.
// Used at startup so the channel normally exists before the first alert.
func (c *Center) Provision(ctx context.Context, ch models.NotificationChannel) error {
	c.mu.Lock()
	_, ok := c.channels[ch.ID]
	c.mu.Unlock()
	if ok {
		return nil
	}

	if c.provisioner != nil {
		pctx, cancel := context.WithTimeout(ctx, c.provisionTimeout)
		defer cancel()
		if err := c.provisioner.EnsureChannel(pctx, ch); err != nil {
			return fmt.Errorf("provision channel %s: %w", ch.ID, err)
		}
	}

	c.mu.Lock()
	_, ok = c.channels[ch.ID]
	c.channels[ch.ID] = ch
	c.mu.Unlock()
	if !ok {
		c.logCreated(ch)
	}
	return nil
}

// Close cancels background provisioning and waits for it to exit
func (c *Center) Close() {
	c.cancel()
	c.wg.Wait()
}

func (c *Center) logCreated(ch models.NotificationChannel) {
	log := logger.WithComponent("notify")
	log.Info().
		Str("channel_id", ch.ID).
		Str("name", ch.Name).
		Str("importance", string(ch.Importance)).
		Msg("notification channel created")
}

// Channels lists registered channels by id
func (c *Center) Channels() []models.NotificationChannel {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]models.NotificationChannel, 0, len(c.channels))
	for _, ch := range c.channels {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Permitted reports whether persistent notifications may be posted
func (c *Center) Permitted() bool {
	return c.permitted.Load()
}

// SetPermitted grants or revokes the notification permission
func (c *Center) SetPermitted(v bool) {
	if c.permitted.Swap(v) != v {
		log := logger.WithComponent("notify")
		log.Info().Bool("permitted", v).Msg("notification permission changed")
	}
}

// Notify queues alert for delivery without blocking
func (c *Center) Notify(ctx context.Context, alert *models.Alert) error {
	c.mu.Lock()
	_, ok := c.channels[alert.ChannelID]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownChannel, alert.ChannelID)
	}

	select {
	case c.queue <- alert:
		c.enqueued.Add(1)
		metrics.DeliveryQueueSize.Set(float64(len(c.queue)))
		return nil
	default:
		c.dropped.Add(1)
		metrics.AlertsSuppressedTotal.WithLabelValues("queue_full").Inc()
		return ErrQueueFull
	}
}

// Stats returns center statistics
func (c *Center) Stats() Stats {
	return Stats{
		Enqueued: c.enqueued.Load(),
		Dropped:  c.dropped.Load(),
	}
}

// Stats holds notification center counters
type Stats struct {
	Enqueued uint64
	Dropped  uint64
}
