package worker

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"smokealert/internal/logger"
	"smokealert/internal/metrics"
	"smokealert/internal/models"
)

// Publisher delivers persistent notifications to their final destination
type Publisher interface {
	Publish(ctx context.Context, alert *models.Alert) error
	PublishBatch(ctx context.Context, alerts []*models.Alert) error
}

// Pool drains the notification queue in batches
type Pool struct {
	publisher    Publisher
	queue        <-chan *models.Alert
	workers      int
	batchSize    int
	batchTimeout time.Duration
	sendTimeout  time.Duration

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	delivered atomic.Uint64
	failed    atomic.Uint64
}

// Config holds worker pool configuration
type Config struct {
	Publisher    Publisher
	Queue        <-chan *models.Alert
	Workers      int
	BatchSize    int
	BatchTimeout time.Duration
	// SendTimeout bounds a single publish call
	SendTimeout time.Duration
}

// NewPool creates a new worker pool
func NewPool(cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 250 * time.Millisecond
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		publisher:    cfg.Publisher,
		queue:        cfg.Queue,
		workers:      cfg.Workers,
		batchSize:    cfg.BatchSize,
		batchTimeout: cfg.BatchTimeout,
		sendTimeout:  cfg.SendTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start begins draining the queue
func (p *Pool) Start() {
	log := logger.WithComponent("delivery_pool")
	log.Info().
		Int("workers", p.workers).
		Int("batch_size", p.batchSize).
		Dur("batch_timeout", p.batchTimeout).
		Msg("starting delivery pool")

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop waits for the workers to exit. Workers exit on their own once the queue is
// closed and drained; Stop forces them out if they have not after grace.
func (p *Pool) Stop(grace time.Duration) {
	log := logger.WithComponent("delivery_pool")
	log.Info().Msg("stopping delivery pool")

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(grace):
		log.Warn().Dur("grace", grace).Msg("delivery pool did not drain in time, forcing stop")
		p.cancel()
		<-done
	}
	p.cancel()
	log.Info().Msg("delivery pool stopped")
}

// worker batches alerts from the queue
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	log := logger.WithComponent("delivery_worker").With().Int("worker_id", id).Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("delivery worker panic recovered")
			metrics.PanicsRecovered.WithLabelValues("delivery_worker").Inc()
		}
	}()

	log.Debug().Msg("worker started")
	defer log.Debug().Msg("worker stopped")

	batch := make([]*models.Alert, 0, p.batchSize)
	timer := time.NewTimer(p.batchTimeout)
	defer timer.Stop()

	for {
		select {
		case <-p.ctx.Done():
			p.deliverBatch(batch)
			return

		case alert, ok := <-p.queue:
			if !ok {
				p.deliverBatch(batch)
				return
			}

			batch = append(batch, alert)
			if len(batch) >= p.batchSize {
				p.deliverBatch(batch)
				batch = batch[:0]
				timer.Reset(p.batchTimeout)
			}

		case <-timer.C:
			if len(batch) > 0 {
				p.deliverBatch(batch)
				batch = batch[:0]
			}
			timer.Reset(p.batchTimeout)
		}
	}
}

// deliverBatch publishes a batch, falling back to one-by-one on failure
func (p *Pool) deliverBatch(batch []*models.Alert) {
	if len(batch) == 0 {
		return
	}

	log := logger.WithComponent("delivery_worker")
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), p.sendTimeout)
	defer cancel()

	err := p.publisher.PublishBatch(ctx, batch)
	duration := time.Since(start)
	metrics.DeliveryBatchDuration.Observe(duration.Seconds())

	if err == nil {
		log.Debug().
			Int("batch_size", len(batch)).
			Dur("duration", duration).
			Msg("notifications delivered")
		p.delivered.Add(uint64(len(batch)))
		metrics.DeliveredTotal.Add(float64(len(batch)))
		return
	}

	log.Error().
		Err(err).
		Int("batch_size", len(batch)).
		Dur("duration", duration).
		Msg("failed to deliver batch, retrying individually")

	p.deliverIndividually(batch)
}

func (p *Pool) deliverIndividually(batch []*models.Alert) {
	log := logger.WithComponent("delivery_worker")

	for _, alert := range batch {
		ctx, cancel := context.WithTimeout(context.Background(), p.sendTimeout)
		err := p.publisher.Publish(ctx, alert)
		cancel()

		if err != nil {
			log.Error().
				Err(err).
				Str("alert_id", alert.ID).
				Str("cycle_id", alert.CycleID).
				Msg("failed to deliver notification")
			p.failed.Add(1)
			metrics.DeliveryFailedTotal.Inc()
			continue
		}

		p.delivered.Add(1)
		metrics.DeliveredTotal.Inc()
	}
}

// Stats returns worker pool statistics
func (p *Pool) Stats() Stats {
	return Stats{
		Delivered: p.delivered.Load(),
		Failed:    p.failed.Load(),
	}
}

// Stats holds worker pool metrics
type Stats struct {
	Delivered uint64
	Failed    uint64
}
