// Package service wires the monitor together and owns its lifecycle.
package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"smokealert/internal/alerts"
	"smokealert/internal/config"
	"smokealert/internal/controls"
	"smokealert/internal/handlers"
	"smokealert/internal/kafka"
	"smokealert/internal/logger"
	"smokealert/internal/metrics"
	"smokealert/internal/middleware"
	"smokealert/internal/models"
	"smokealert/internal/monitor"
	"smokealert/internal/notify"
	"smokealert/internal/remote"
	"smokealert/internal/status"
	"smokealert/internal/storage"
	"smokealert/internal/threshold"
	"smokealert/internal/worker"
)

const (
	shutdownGrace = 15 * time.Second
	statsInterval = 30 * time.Second
)

// Service is the high-level coordinator for polling, liveness, alerting and the HTTP API.
type Service struct {
	cfg *config.Config

	store     remote.Store
	board     *status.Board
	threshold *threshold.Store
	buzzer    *controls.Buzzer
	center    *notify.Center
	channel   models.NotificationChannel
	queue     chan *models.Alert
	pool      *worker.Pool
	poller    *monitor.Poller
	liveness  *monitor.Liveness

	publisher      worker.Publisher
	closePublisher func() error

	httpServer *http.Server
	listener   net.Listener
	wg         sync.WaitGroup
}

// Option overrides a collaborator, mainly for tests
type Option func(*Service)

// WithStore uses s instead of the backend named in the config
func WithStore(s remote.Store) Option {
	return func(svc *Service) { svc.store = s }
}

// WithPublisher delivers persistent notifications to p instead of the configured backend
func WithPublisher(p worker.Publisher) Option {
	return func(svc *Service) {
		svc.publisher = p
		svc.closePublisher = func() error { return nil }
	}
}

// New builds every component. Nothing runs until Run is called.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Service, error) {
	s := &Service{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}

	if s.store == nil {
		store, err := remote.New(cfg.Store.Backend, cfg.Store.FirebaseURL, cfg.Store.RedisAddr,
			remote.WithTimeout(cfg.Store.ReadTimeout))
		if err != nil {
			return nil, fmt.Errorf("init store: %w", err)
		}
		s.store = store
	}

	var provisioner notify.Provisioner
	if s.publisher == nil {
		var err error
		provisioner, err = s.initDelivery(ctx)
		if err != nil {
			s.store.Close()
			return nil, fmt.Errorf("init delivery: %w", err)
		}
	}

	channels := make([]models.Channel, 0, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		channels = append(channels, models.Channel{Name: ch.Name, Key: ch.Key})
	}

	s.board = status.NewBoard(channels)
	s.threshold = threshold.New(s.store)
	s.threshold.Watch(s.board.SetThreshold)
	s.buzzer = controls.NewBuzzer(s.store, s.board)

	s.queue = make(chan *models.Alert, cfg.Alerts.QueueSize)
	s.center = notify.NewCenter(notify.CenterConfig{
		Queue:            s.queue,
		Provisioner:      provisioner,
		ProvisionTimeout: cfg.Delivery.Kafka.ProvisionTimeout,
		Permitted:        cfg.Alerts.PermissionGranted,
	})
	s.pool = worker.NewPool(worker.Config{
		Publisher:    s.publisher,
		Queue:        s.queue,
		Workers:      cfg.Delivery.Workers,
		BatchSize:    cfg.Delivery.BatchSize,
		BatchTimeout: cfg.Delivery.BatchTimeout,
	})

	s.channel = models.NotificationChannel{
		ID:          cfg.Alerts.ChannelID,
		Name:        cfg.Alerts.ChannelName,
		Description: cfg.Alerts.ChannelDescription,
		Importance:  models.PriorityHigh,
	}
	dispatcher := alerts.NewDispatcher(alerts.DispatcherConfig{
		Notices:       s.board,
		Notifier:      s.center,
		Channel:       s.channel,
		Title:         cfg.Alerts.Title,
		DedupPerCycle: cfg.Alerts.DedupPerCycle,
	})

	s.poller = monitor.NewPoller(monitor.PollerConfig{
		Store:       s.store,
		Channels:    channels,
		Interval:    cfg.Monitor.PollInterval,
		ReadTimeout: cfg.Store.ReadTimeout,
		Threshold:   s.threshold,
		Dispatcher:  dispatcher,
		Display:     s.board,
	})
	s.liveness = monitor.NewLiveness(monitor.LivenessConfig{
		Store:       s.store,
		Interval:    cfg.Monitor.LivenessInterval,
		Window:      cfg.Monitor.LivenessWindow,
		ReadTimeout: cfg.Store.ReadTimeout,
		Display:     s.board,
	})

	s.httpServer = &http.Server{
		Addr:        cfg.HTTP.Addr,
		Handler:     s.Handler(),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	return s, nil
}

// initDelivery picks the persistent notification backend
func (s *Service) initDelivery(ctx context.Context) (notify.Provisioner, error) {
	log := logger.WithComponent("service")
	d := s.cfg.Delivery

	switch d.Backend {
	case "kafka":
		producer, err := kafka.NewProducer(d.Kafka.Brokers, d.Kafka.Topic, d.Kafka.Producer)
		if err != nil {
			return nil, err
		}
		s.publisher = producer
		s.closePublisher = producer.Close
		log.Info().Strs("brokers", d.Kafka.Brokers).Str("topic", d.Kafka.Topic).Msg("kafka delivery initialized")
		return &kafka.TopicProvisioner{
			Brokers:           d.Kafka.Brokers,
			Topic:             d.Kafka.Topic,
			Partitions:        d.Kafka.Partitions,
			ReplicationFactor: d.Kafka.ReplicationFactor,
			Timeout:           d.Kafka.ProvisionTimeout,
		}, nil

	case "postgres":
		journal, err := storage.OpenPostgres(ctx, d.Postgres.DSN, d.Postgres.Table)
		if err != nil {
			return nil, err
		}
		s.publisher = journal
		s.closePublisher = journal.Close
		log.Info().Str("table", d.Postgres.Table).Msg("postgres journal initialized")
		return nil, nil

	default:
		s.publisher = notify.LogPublisher{}
		s.closePublisher = func() error { return nil }
		return nil, nil
	}
}

// Handler returns the HTTP API
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /status", &handlers.StatusHandler{Board: s.board})
	mux.Handle("PUT /threshold", &handlers.ThresholdHandler{Store: s.threshold, Notices: s.board})
	mux.Handle("PUT /buzzer", &handlers.BuzzerHandler{Buzzer: s.buzzer})
	mux.Handle("/permission", &handlers.PermissionHandler{Permissions: s.center})
	mux.Handle("GET /events", &handlers.EventsHandler{Board: s.board})
	mux.HandleFunc("GET /health", handlers.Health)
	mux.Handle("GET /metrics", promhttp.Handler())

	return middleware.Chain(mux, middleware.Logging, middleware.Recovery)
}

// Board exposes the presentation observables
func (s *Service) Board() *status.Board {
	return s.board
}

// Addr returns the address the HTTP API listens on once Run has started it
func (s *Service) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run loads the threshold, starts both monitoring loops, delivery and the HTTP API,
// and blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	log := logger.WithComponent("service")
	log.Info().Msg("service starting")

	ln, err := net.Listen("tcp", s.cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.HTTP.Addr, err)
	}
	s.listener = ln

	s.loadThreshold(ctx)
	// bounded; on failure the center retries in the background on the next alert
	if err := s.center.Provision(ctx, s.channel); err != nil {
		log.Warn().Err(err).Str("channel_id", s.channel.ID).Msg("notification channel not created at startup")
	}
	s.pool.Start()

	var loops sync.WaitGroup
	loops.Add(2)
	go func() {
		defer loops.Done()
		if err := s.poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("poller stopped")
		}
	}()
	go func() {
		defer loops.Done()
		if err := s.liveness.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("liveness monitor stopped")
		}
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log.Info().Str("addr", ln.Addr().String()).Msg("starting HTTP server")
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.reportStats(ctx)
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	// the poller is the only producer on the queue; it must be gone before the queue closes
	loops.Wait()
	return s.shutdown()
}

// loadThreshold fetches the stored threshold once and reports the outcome on the board
func (s *Service) loadThreshold(ctx context.Context) {
	loadCtx, cancel := context.WithTimeout(ctx, s.cfg.Store.ReadTimeout)
	defer cancel()

	_, err := s.threshold.Load(loadCtx)
	switch {
	case errors.Is(err, threshold.ErrNotFound):
		s.board.Notice("Threshold data not found!")
	case err != nil:
		s.board.Error("Failed to load threshold data")
	}
}

func (s *Service) shutdown() error {
	log := logger.WithComponent("service")
	log.Info().Msg("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	s.center.Close()
	close(s.queue)
	s.pool.Stop(shutdownGrace)

	var errs []error
	if err := s.closePublisher(); err != nil {
		errs = append(errs, fmt.Errorf("close publisher: %w", err))
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}

	s.wg.Wait()

	if err := errors.Join(errs...); err != nil {
		log.Error().Err(err).Msg("shutdown finished with errors")
		return err
	}
	log.Info().Msg("service stopped gracefully")
	return nil
}

// reportStats periodically logs statistics
func (s *Service) reportStats(ctx context.Context) {
	log := logger.WithComponent("service")
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pollStats := s.poller.Stats()
			poolStats := s.pool.Stats()
			centerStats := s.center.Stats()

			metrics.DeliveryQueueSize.Set(float64(len(s.queue)))

			log.Info().
				Uint64("poll_cycles", pollStats.Cycles).
				Uint64("reads_ok", pollStats.Succeeded).
				Uint64("reads_failed", pollStats.Failed).
				Uint64("reads_skipped", pollStats.Skipped).
				Uint64("alerts_enqueued", centerStats.Enqueued).
				Uint64("alerts_dropped", centerStats.Dropped).
				Uint64("alerts_delivered", poolStats.Delivered).
				Uint64("alerts_failed", poolStats.Failed).
				Str("device", s.liveness.State().String()).
				Int("queue_size", len(s.queue)).
				Msg("stats")
		}
	}
}
