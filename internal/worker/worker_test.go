package worker_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"smokealert/internal/models"
	"smokealert/internal/worker"
)

// MockPublisher is a mock implementation of Publisher for testing
type MockPublisher struct {
	published  atomic.Uint64
	batches    atomic.Uint64
	failBatch  bool
	failSingle bool
}

func (m *MockPublisher) Publish(ctx context.Context, alert *models.Alert) error {
	if m.failSingle {
		return context.DeadlineExceeded
	}
	m.published.Add(1)
	return nil
}

func (m *MockPublisher) PublishBatch(ctx context.Context, alerts []*models.Alert) error {
	if m.failBatch {
		return context.DeadlineExceeded
	}
	m.batches.Add(1)
	m.published.Add(uint64(len(alerts)))
	return nil
}

func testAlert() *models.Alert {
	return models.NewAlert("cycle-1",
		models.NotificationChannel{ID: "SensorAlertChannel", Importance: models.PriorityHigh},
		"Sensor Threshold Exceeded",
		[]models.Violation{{Channel: models.Channel{Name: "Sensor B", Key: "sensor2"}, Value: 92, Threshold: 80}},
	)
}

func TestPool_DeliversQueuedAlerts(t *testing.T) {
	ch := make(chan *models.Alert, 100)
	mock := &MockPublisher{}

	pool := worker.NewPool(worker.Config{
		Publisher:    mock,
		Queue:        ch,
		Workers:      2,
		BatchSize:    10,
		BatchTimeout: 50 * time.Millisecond,
	})
	pool.Start()

	for i := 0; i < 25; i++ {
		ch <- testAlert()
	}
	time.Sleep(300 * time.Millisecond)

	close(ch)
	pool.Stop(time.Second)

	if stats := pool.Stats(); stats.Delivered != 25 {
		t.Errorf("expected 25 delivered, got %d", stats.Delivered)
	}
	if mock.published.Load() != 25 {
		t.Errorf("expected 25 published, got %d", mock.published.Load())
	}
}

func TestPool_Batching(t *testing.T) {
	ch := make(chan *models.Alert, 100)
	mock := &MockPublisher{}

	pool := worker.NewPool(worker.Config{
		Publisher:    mock,
		Queue:        ch,
		Workers:      1,
		BatchSize:    5,
		BatchTimeout: time.Second,
	})
	pool.Start()
	defer func() {
		close(ch)
		pool.Stop(time.Second)
	}()

	for i := 0; i < 5; i++ {
		ch <- testAlert()
	}
	time.Sleep(200 * time.Millisecond)

	if mock.published.Load() != 5 || mock.batches.Load() != 1 {
		t.Errorf("expected one batch of 5, got %d alerts in %d batches", mock.published.Load(), mock.batches.Load())
	}
}

func TestPool_TimeoutFlush(t *testing.T) {
	ch := make(chan *models.Alert, 100)
	mock := &MockPublisher{}

	pool := worker.NewPool(worker.Config{
		Publisher:    mock,
		Queue:        ch,
		Workers:      1,
		BatchSize:    100,
		BatchTimeout: 50 * time.Millisecond,
	})
	pool.Start()
	defer func() {
		close(ch)
		pool.Stop(time.Second)
	}()

	for i := 0; i < 3; i++ {
		ch <- testAlert()
	}
	time.Sleep(250 * time.Millisecond)

	if mock.published.Load() != 3 {
		t.Errorf("expected 3 published via timeout, got %d", mock.published.Load())
	}
}

func TestPool_DrainsOnClose(t *testing.T) {
	ch := make(chan *models.Alert, 100)
	mock := &MockPublisher{}

	pool := worker.NewPool(worker.Config{
		Publisher:    mock,
		Queue:        ch,
		Workers:      2,
		BatchSize:    10,
		BatchTimeout: time.Hour,
	})
	pool.Start()

	for i := 0; i < 7; i++ {
		ch <- testAlert()
	}
	close(ch)
	pool.Stop(time.Second)

	if mock.published.Load() != 7 {
		t.Errorf("expected 7 published after shutdown, got %d", mock.published.Load())
	}
}

func TestPool_FallbackToIndividual(t *testing.T) {
	ch := make(chan *models.Alert, 100)
	mock := &MockPublisher{failBatch: true}

	pool := worker.NewPool(worker.Config{
		Publisher:    mock,
		Queue:        ch,
		Workers:      1,
		BatchSize:    5,
		BatchTimeout: 50 * time.Millisecond,
	})
	pool.Start()

	for i := 0; i < 5; i++ {
		ch <- testAlert()
	}
	close(ch)
	pool.Stop(time.Second)

	stats := pool.Stats()
	if stats.Delivered != 5 || stats.Failed != 0 {
		t.Errorf("expected individual fallback to deliver all, got %+v", stats)
	}
}

func TestPool_ErrorHandling(t *testing.T) {
	ch := make(chan *models.Alert, 100)
	mock := &MockPublisher{failBatch: true, failSingle: true}

	pool := worker.NewPool(worker.Config{
		Publisher:    mock,
		Queue:        ch,
		Workers:      1,
		BatchSize:    5,
		BatchTimeout: 50 * time.Millisecond,
	})
	pool.Start()

	for i := 0; i < 5; i++ {
		ch <- testAlert()
	}
	close(ch)
	pool.Stop(time.Second)

	if stats := pool.Stats(); stats.Failed != 5 || stats.Delivered != 0 {
		t.Errorf("expected all 5 failed, got %+v", stats)
	}
}
