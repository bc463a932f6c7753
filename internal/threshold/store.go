package threshold

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"smokealert/internal/logger"
	"smokealert/internal/metrics"
	"smokealert/internal/models"
	"smokealert/internal/remote"
)

// ErrNotFound is returned by Load when the remote store holds no threshold.
var ErrNotFound = errors.New("threshold data not found")

// Store owns the alert threshold. It is the single writer; readers call Value.
type Store struct {
	remote remote.Store

	value atomic.Int64

	// mu serializes writers and guards gen and watchers
	mu       sync.Mutex
	gen      uint64
	watchers []func(int)
}

// New creates a threshold store with the zero default
func New(rs remote.Store) *Store {
	return &Store{remote: rs}
}

// Value returns the threshold in force
func (s *Store) Value() int {
	return int(s.value.Load())
}

// Watch registers fn to be called with every new local value
func (s *Store) Watch(fn func(int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers = append(s.watchers, fn)
}

// Load fetches the threshold from the remote store.
// An absent path sets the threshold to 0 and returns ErrNotFound. Any other
// failure leaves the current value untouched. A user Set that lands while the
// fetch is in flight wins over the fetched value.
func (s *Store) Load(ctx context.Context) (int, error) {
	log := logger.WithComponent("threshold")

	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	raw, err := s.remote.Get(ctx, remote.PathThreshold)
	switch {
	case errors.Is(err, remote.ErrNotFound):
		log.Warn().Str("path", remote.PathThreshold).Msg("threshold path does not exist, using 0")
		s.commitIfUnchanged(gen, 0)
		return s.Value(), ErrNotFound
	case err != nil:
		log.Error().Err(err).Msg("failed to load threshold")
		return s.Value(), fmt.Errorf("load threshold: %w", err)
	}

	v, err := models.ParsePercent(raw)
	if err != nil {
		log.Error().Err(err).Msg("threshold value is malformed")
		return s.Value(), fmt.Errorf("load threshold: %w", err)
	}
	if !models.ValidThreshold(v) {
		log.Error().Int("value", v).Msg("threshold value out of range")
		return s.Value(), fmt.Errorf("load threshold: %w", models.ErrThresholdRange)
	}

	if !s.commitIfUnchanged(gen, v) {
		log.Info().Int("fetched", v).Int("current", s.Value()).Msg("threshold changed locally during load, keeping local value")
		return s.Value(), nil
	}

	log.Info().Int("threshold", v).Msg("threshold loaded")
	return v, nil
}

// Set replaces the threshold locally and writes it to the remote store.
// The local value is kept even when the write fails; the failure is returned.
func (s *Store) Set(ctx context.Context, v int) error {
	if !models.ValidThreshold(v) {
		return fmt.Errorf("%w: got %d", models.ErrThresholdRange, v)
	}

	s.mu.Lock()
	s.gen++
	watchers := s.commitLocked(v)
	s.mu.Unlock()
	s.notify(watchers)

	if err := s.remote.Set(ctx, remote.PathThreshold, v); err != nil {
		metrics.ThresholdWritesTotal.WithLabelValues("failed").Inc()
		log := logger.WithComponent("threshold")
		log.Error().
			Err(err).
			Int("threshold", v).
			Msg("failed to update threshold remotely, keeping local value")
		return fmt.Errorf("update threshold: %w", err)
	}

	metrics.ThresholdWritesTotal.WithLabelValues("success").Inc()
	return nil
}

func (s *Store) commitIfUnchanged(gen uint64, v int) bool {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return false
	}
	s.gen++
	watchers := s.commitLocked(v)
	s.mu.Unlock()

	s.notify(watchers)
	return true
}

// commitLocked stores v and returns the watchers to notify once mu is released
func (s *Store) commitLocked(v int) []func(int) {
	s.value.Store(int64(v))
	metrics.Threshold.Set(float64(v))
	return append(([]func(int))(nil), s.watchers...)
}

// notify runs outside mu so a watcher may call back into the store. Watchers see
// the value in force when they run, so concurrent writers cannot leave them stale.
func (s *Store) notify(watchers []func(int)) {
	v := s.Value()
	for _, fn := range watchers {
		fn(v)
	}
}
