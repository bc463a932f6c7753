package monitor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"smokealert/internal/alerts"
	"smokealert/internal/logger"
	"smokealert/internal/metrics"
	"smokealert/internal/models"
	"smokealert/internal/remote"
)

// ThresholdSource returns the threshold in force at the moment of the call
type ThresholdSource interface {
	Value() int
}

// Dispatcher receives the violation set after every evaluation
type Dispatcher interface {
	Dispatch(ctx context.Context, cycleID string, violations []models.Violation)
}

// ReadingDisplay is the presentation side of the poller
type ReadingDisplay interface {
	SetReading(r models.Reading)
	Notice(msg string)
	Error(msg string)
}

// PollerConfig holds sensor poller configuration
type PollerConfig struct {
	Store       remote.Store
	Channels    []models.Channel
	Interval    time.Duration
	ReadTimeout time.Duration
	Threshold   ThresholdSource
	Dispatcher  Dispatcher
	Display     ReadingDisplay
	// Now is used for ObservedAt; defaults to time.Now
	Now func() time.Time
}

// Poller reads every channel on a fixed cadence and evaluates each reading as it arrives.
//
// All cycle state lives on the goroutine running Run: read goroutines post their
// results back over a channel, so partial snapshots and in-flight flags are never
// shared. A channel whose previous read has not resolved is skipped on the next tick.
type Poller struct {
	cfg PollerConfig

	cycles    atomic.Uint64
	succeeded atomic.Uint64
	failed    atomic.Uint64
	skipped   atomic.Uint64
}

// cycle is one tick's partial snapshot; only the Run goroutine touches it
type cycle struct {
	id       string
	snapshot models.Snapshot
}

type readResult struct {
	cycle   *cycle
	channel models.Channel
	reading models.Reading
	err     error
}

// NewPoller creates a sensor poller
func NewPoller(cfg PollerConfig) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadTimeout > cfg.Interval {
		cfg.ReadTimeout = cfg.Interval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Poller{cfg: cfg}
}

// Run polls until ctx is cancelled. The first cycle starts immediately.
// It returns after every read goroutine it started has exited.
func (p *Poller) Run(ctx context.Context) error {
	log := logger.WithComponent("poller")
	log.Info().
		Int("channels", len(p.cfg.Channels)).
		Dur("interval", p.cfg.Interval).
		Msg("sensor poller started")

	results := make(chan readResult)
	inflight := make(map[string]bool, len(p.cfg.Channels))

	var wg sync.WaitGroup
	defer wg.Wait()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.startCycle(ctx, results, inflight, &wg)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("sensor poller stopped")
			return nil
		case <-ticker.C:
			p.startCycle(ctx, results, inflight, &wg)
		case res := <-results:
			p.handle(ctx, res, inflight)
		}
	}
}

func (p *Poller) startCycle(ctx context.Context, results chan<- readResult, inflight map[string]bool, wg *sync.WaitGroup) {
	c := &cycle{id: uuid.NewString()}
	p.cycles.Add(1)
	metrics.PollCyclesTotal.Inc()

	for _, ch := range p.cfg.Channels {
		if inflight[ch.Key] {
			p.skipped.Add(1)
			metrics.SensorReadsSkipped.WithLabelValues(ch.Name).Inc()
			log := logger.WithChannel("poller", ch.Name)
			log.Debug().
				Str("cycle_id", c.id).
				Msg("previous read still in flight, skipping")
			continue
		}

		inflight[ch.Key] = true
		wg.Add(1)
		go func(ch models.Channel) {
			defer wg.Done()

			res := p.read(ctx, c, ch)
			select {
			case results <- res:
			case <-ctx.Done():
			}
		}(ch)
	}
}

func (p *Poller) read(ctx context.Context, c *cycle, ch models.Channel) (res readResult) {
	res = readResult{cycle: c, channel: ch}
	defer func() {
		if r := recover(); r != nil {
			log := logger.WithChannel("poller", ch.Name)
			log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("sensor read panic recovered")
			metrics.PanicsRecovered.WithLabelValues("poller").Inc()
			res.err = fmt.Errorf("sensor read panicked: %v", r)
		}
	}()

	readCtx, cancel := context.WithTimeout(ctx, p.cfg.ReadTimeout)
	defer cancel()

	start := time.Now()
	raw, err := p.cfg.Store.Get(readCtx, ch.Path())
	metrics.SensorReadDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		res.err = err
		return res
	}

	v, err := models.ParsePercent(raw)
	if err != nil {
		res.err = err
		return res
	}

	res.reading = models.Reading{Channel: ch, Value: v, ObservedAt: p.cfg.Now()}
	return res
}

// handle applies one read result. Runs on the Run goroutine only.
func (p *Poller) handle(ctx context.Context, res readResult, inflight map[string]bool) {
	delete(inflight, res.channel.Key)

	if ctx.Err() != nil {
		return
	}

	log := logger.WithChannel("poller", res.channel.Name).With().Str("cycle_id", res.cycle.id).Logger()

	if res.err != nil {
		p.failed.Add(1)
		p.report(res, log)
		return
	}

	p.succeeded.Add(1)
	metrics.SensorReadsTotal.WithLabelValues(res.channel.Name, "ok").Inc()
	metrics.SensorValue.WithLabelValues(res.channel.Name).Set(float64(res.reading.Value))
	log.Debug().Int("value", res.reading.Value).Msg("sensor read")

	if p.cfg.Display != nil {
		p.cfg.Display.SetReading(res.reading)
		p.cfg.Display.Notice(readNotice(res.channel))
	}

	res.cycle.snapshot.Put(res.reading)

	violations := alerts.Evaluate(&res.cycle.snapshot, p.cfg.Threshold.Value())
	for _, v := range violations {
		if v.Channel.Key == res.channel.Key {
			metrics.ViolationsTotal.WithLabelValues(v.Channel.Name).Inc()
		}
	}

	if p.cfg.Dispatcher != nil {
		p.cfg.Dispatcher.Dispatch(ctx, res.cycle.id, violations)
	}
}

// readNotice reads "Successfully read sensor A" for a channel named "Sensor A"
func readNotice(ch models.Channel) string {
	name := ch.Name
	if name == "" {
		name = ch.Key
	}
	r, size := utf8.DecodeRuneInString(name)
	return "Successfully read " + string(unicode.ToLower(r)) + name[size:]
}

func (p *Poller) report(res readResult, log zerolog.Logger) {
	var msg string
	switch {
	case errors.Is(res.err, remote.ErrNotFound):
		metrics.SensorReadsTotal.WithLabelValues(res.channel.Name, "absent").Inc()
		log.Warn().Str("path", res.channel.Path()).Msg("path does not exist")
		msg = "Path does not exist!"
	case errors.Is(res.err, models.ErrMalformedValue):
		metrics.SensorReadsTotal.WithLabelValues(res.channel.Name, "malformed").Inc()
		log.Error().Err(res.err).Msg("sensor value is malformed")
		msg = fmt.Sprintf("Invalid data for %s", res.channel.Name)
	default:
		metrics.SensorReadsTotal.WithLabelValues(res.channel.Name, "failed").Inc()
		log.Error().Err(res.err).Msg("failed to read sensor")
		msg = fmt.Sprintf("FAILED to read data for %s", res.channel.Name)
	}

	if p.cfg.Display != nil {
		p.cfg.Display.Error(msg)
	}
}

// Stats returns poller statistics
func (p *Poller) Stats() PollerStats {
	return PollerStats{
		Cycles:    p.cycles.Load(),
		Succeeded: p.succeeded.Load(),
		Failed:    p.failed.Load(),
		Skipped:   p.skipped.Load(),
	}
}

// PollerStats holds poller counters
type PollerStats struct {
	Cycles    uint64
	Succeeded uint64
	Failed    uint64
	Skipped   uint64
}
