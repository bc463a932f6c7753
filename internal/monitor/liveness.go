package monitor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"smokealert/internal/logger"
	"smokealert/internal/metrics"
	"smokealert/internal/models"
	"smokealert/internal/remote"
)

// LivenessDisplay receives every recomputed device state
type LivenessDisplay interface {
	SetLiveness(s models.LivenessState)
}

// LivenessConfig holds liveness monitor configuration
type LivenessConfig struct {
	Store       remote.Store
	Interval    time.Duration
	Window      time.Duration
	ReadTimeout time.Duration
	Display     LivenessDisplay
	Now         func() time.Time
}

// Liveness derives ON/OFF from the staleness of the device heartbeat.
// The state is recomputed from each sample alone; there is no smoothing, so one
// missed heartbeat flips the device to OFF and one fresh heartbeat flips it back.
type Liveness struct {
	cfg   LivenessConfig
	state atomic.Int32
}

type heartbeat struct {
	lastSeen int64
	err      error
}

// NewLiveness creates a liveness monitor in the UNKNOWN state
func NewLiveness(cfg LivenessConfig) *Liveness {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.Window <= 0 {
		cfg.Window = 10 * time.Second
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadTimeout > cfg.Interval {
		cfg.ReadTimeout = cfg.Interval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Liveness{cfg: cfg}
}

// State returns the latest derived state
func (l *Liveness) State() models.LivenessState {
	return models.LivenessState(l.state.Load())
}

// Run checks the heartbeat until ctx is cancelled. The first check starts immediately;
// a tick is skipped while the previous read is unresolved.
func (l *Liveness) Run(ctx context.Context) error {
	log := logger.WithComponent("liveness")
	log.Info().
		Dur("interval", l.cfg.Interval).
		Dur("window", l.cfg.Window).
		Msg("liveness monitor started")

	results := make(chan heartbeat)
	inflight := false

	var wg sync.WaitGroup
	defer wg.Wait()

	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	start := func() {
		if inflight {
			log.Debug().Msg("previous heartbeat read still in flight, skipping")
			return
		}
		inflight = true
		wg.Add(1)
		go func() {
			defer wg.Done()
			hb := l.read(ctx)
			select {
			case results <- hb:
			case <-ctx.Done():
			}
		}()
	}

	start()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("liveness monitor stopped")
			return nil
		case <-ticker.C:
			start()
		case hb := <-results:
			inflight = false
			if ctx.Err() != nil {
				continue
			}
			l.apply(hb)
		}
	}
}

func (l *Liveness) read(ctx context.Context) (hb heartbeat) {
	defer func() {
		if r := recover(); r != nil {
			log := logger.WithComponent("liveness")
			log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("heartbeat read panic recovered")
			metrics.PanicsRecovered.WithLabelValues("liveness").Inc()
			hb.err = fmt.Errorf("heartbeat read panicked: %v", r)
		}
	}()

	readCtx, cancel := context.WithTimeout(ctx, l.cfg.ReadTimeout)
	defer cancel()

	raw, err := l.cfg.Store.Get(readCtx, remote.PathLastSeen)
	if err != nil {
		return heartbeat{err: err}
	}

	v, err := models.ParseInt(raw)
	if err != nil {
		return heartbeat{err: err}
	}
	return heartbeat{lastSeen: v}
}

// apply derives and publishes the state for one heartbeat sample
func (l *Liveness) apply(hb heartbeat) models.LivenessState {
	log := logger.WithComponent("liveness")

	next := models.LivenessOff
	switch {
	case errors.Is(hb.err, remote.ErrNotFound):
		metrics.HeartbeatReadsTotal.WithLabelValues("absent").Inc()
		log.Warn().Str("path", remote.PathLastSeen).Msg("no heartbeat recorded")
	case hb.err != nil:
		metrics.HeartbeatReadsTotal.WithLabelValues("failed").Inc()
		log.Error().Err(hb.err).Msg("failed to read lastSeen")
	default:
		metrics.HeartbeatReadsTotal.WithLabelValues("ok").Inc()
		now := l.cfg.Now()
		var diff int64
		next, diff = models.DeriveLiveness(hb.lastSeen, now, l.cfg.Window)
		metrics.HeartbeatAge.Set(float64(diff))
		log.Debug().
			Int64("current_time", now.Unix()).
			Int64("last_seen", hb.lastSeen).
			Int64("difference", diff).
			Msg("heartbeat checked")
	}

	prev := models.LivenessState(l.state.Swap(int32(next)))
	if prev != next {
		log.Info().Str("from", prev.String()).Str("to", next.String()).Msg("device state changed")
	}

	if next == models.LivenessOn {
		metrics.DeviceOnline.Set(1)
	} else {
		metrics.DeviceOnline.Set(0)
	}

	if l.cfg.Display != nil {
		l.cfg.Display.SetLiveness(next)
	}
	return next
}
