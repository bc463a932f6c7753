package alerts

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"smokealert/internal/models"
	"smokealert/internal/notify"
)

var (
	sensorA = models.Channel{Name: "Sensor A", Key: "sensor1"}
	sensorB = models.Channel{Name: "Sensor B", Key: "sensor2"}
	sensorC = models.Channel{Name: "Sensor C", Key: "sensor3"}
	sensorD = models.Channel{Name: "Sensor D", Key: "sensor4"}
)

func snapshotOf(values map[models.Channel]int, order ...models.Channel) *models.Snapshot {
	var s models.Snapshot
	for _, ch := range order {
		s.Put(models.Reading{Channel: ch, Value: values[ch]})
	}
	return &s
}

func TestEvaluateScenario(t *testing.T) {
	values := map[models.Channel]int{sensorA: 45, sensorB: 92, sensorC: 10, sensorD: 70}
	snap := snapshotOf(values, sensorA, sensorB, sensorC, sensorD)

	got := Evaluate(snap, 80)
	if len(got) != 1 || got[0].Channel != sensorB {
		t.Fatalf("expected only Sensor B, got %+v", got)
	}
	if got[0].Value != 92 || got[0].Threshold != 80 {
		t.Fatalf("unexpected violation %+v", got[0])
	}

	msg := models.AlertMessage(got)
	if !strings.Contains(msg, "Sensor B") || !strings.Contains(msg, "80%") {
		t.Fatalf("message %q should mention Sensor B and 80%%", msg)
	}
}

func TestEvaluateStrictGreaterThan(t *testing.T) {
	for v := 0; v <= 100; v += 5 {
		for th := 0; th <= 100; th += 5 {
			snap := snapshotOf(map[models.Channel]int{sensorA: v}, sensorA)
			got := Evaluate(snap, th)
			if (v > th) != (len(got) == 1) {
				t.Fatalf("value %d threshold %d: got %d violations", v, th, len(got))
			}
		}
	}
}

func TestEvaluateEdges(t *testing.T) {
	snap := snapshotOf(map[models.Channel]int{sensorA: 0, sensorB: 1, sensorC: 100}, sensorA, sensorB, sensorC)

	if got := Evaluate(snap, 0); len(got) != 2 {
		t.Errorf("threshold 0: expected 2 violations, got %+v", got)
	}
	if got := Evaluate(snap, 100); got != nil {
		t.Errorf("threshold 100: expected none, got %+v", got)
	}

	out := snapshotOf(map[models.Channel]int{sensorD: 140}, sensorD)
	if got := Evaluate(out, 100); len(got) != 1 {
		t.Errorf("out-of-range data should still violate, got %+v", got)
	}

	if Evaluate(nil, 10) != nil {
		t.Error("nil snapshot should yield no violations")
	}
}

func TestEvaluatePreservesArrivalOrder(t *testing.T) {
	values := map[models.Channel]int{sensorA: 90, sensorB: 95, sensorD: 99}
	snap := snapshotOf(values, sensorD, sensorA, sensorB)

	got := Evaluate(snap, 50)
	names := strings.Join(models.ViolatingNames(got), ", ")
	if names != "Sensor D, Sensor A, Sensor B" {
		t.Fatalf("expected arrival order, got %s", names)
	}
}

type recordingNotices struct {
	mu       sync.Mutex
	messages []string
}

func (r *recordingNotices) Alert(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

type fakeNotifier struct {
	permitted  bool
	channelErr error
	ensured    int
	posted     []*models.Alert
}

func (f *fakeNotifier) EnsureChannel(ctx context.Context, ch models.NotificationChannel) error {
	f.ensured++
	return f.channelErr
}

func (f *fakeNotifier) Permitted() bool { return f.permitted }

func (f *fakeNotifier) Notify(ctx context.Context, alert *models.Alert) error {
	f.posted = append(f.posted, alert)
	return nil
}

func newTestDispatcher(n *recordingNotices, f *fakeNotifier, dedup bool) *Dispatcher {
	return NewDispatcher(DispatcherConfig{
		Notices:       n,
		Notifier:      f,
		Channel:       models.NotificationChannel{ID: "SensorAlertChannel", Name: "Sensor Alert Channel"},
		Title:         "Sensor Threshold Exceeded",
		DedupPerCycle: dedup,
	})
}

func TestDispatchEmptyIsNoop(t *testing.T) {
	n := &recordingNotices{}
	f := &fakeNotifier{permitted: true}
	d := newTestDispatcher(n, f, false)

	d.Dispatch(context.Background(), "cycle-1", nil)

	if len(n.messages) != 0 || f.ensured != 0 || len(f.posted) != 0 {
		t.Fatalf("expected no side effects, got notices=%v ensured=%d posted=%d", n.messages, f.ensured, len(f.posted))
	}
}

func TestDispatchBothPaths(t *testing.T) {
	n := &recordingNotices{}
	f := &fakeNotifier{permitted: true}
	d := newTestDispatcher(n, f, false)

	violations := []models.Violation{{Channel: sensorB, Value: 92, Threshold: 80}}
	d.Dispatch(context.Background(), "cycle-1", violations)

	if len(n.messages) != 1 || n.messages[0] != "Warning! Sensor B exceeded the threshold of 80%" {
		t.Fatalf("unexpected notices %v", n.messages)
	}
	if f.ensured != 1 || len(f.posted) != 1 {
		t.Fatalf("expected channel ensured and one notification, got ensured=%d posted=%d", f.ensured, len(f.posted))
	}

	alert := f.posted[0]
	if alert.ChannelID != "SensorAlertChannel" || alert.Title != "Sensor Threshold Exceeded" || alert.Priority != models.PriorityHigh {
		t.Fatalf("unexpected alert %+v", alert)
	}
}

func TestDispatchWithoutPermission(t *testing.T) {
	n := &recordingNotices{}
	f := &fakeNotifier{permitted: false}
	d := newTestDispatcher(n, f, false)

	d.Dispatch(context.Background(), "cycle-1", []models.Violation{{Channel: sensorA, Value: 90, Threshold: 10}})

	if len(n.messages) != 1 {
		t.Fatalf("ephemeral notice must still fire, got %v", n.messages)
	}
	if len(f.posted) != 0 {
		t.Fatalf("persistent notification must be skipped, got %d", len(f.posted))
	}
}

func TestDispatchChannelFailureSkipsPersistentOnly(t *testing.T) {
	n := &recordingNotices{}
	f := &fakeNotifier{permitted: true, channelErr: errors.New("topic creation refused")}
	d := newTestDispatcher(n, f, false)

	d.Dispatch(context.Background(), "cycle-1", []models.Violation{{Channel: sensorA, Value: 90, Threshold: 10}})

	if len(n.messages) != 1 || len(f.posted) != 0 {
		t.Fatalf("expected notice only, got notices=%v posted=%d", n.messages, len(f.posted))
	}
}

func TestDispatchRepeatsWithoutDedup(t *testing.T) {
	n := &recordingNotices{}
	f := &fakeNotifier{permitted: true}
	d := newTestDispatcher(n, f, false)

	first := []models.Violation{{Channel: sensorA, Value: 90, Threshold: 50}}
	second := append(first, models.Violation{Channel: sensorB, Value: 95, Threshold: 50})

	d.Dispatch(context.Background(), "cycle-1", first)
	d.Dispatch(context.Background(), "cycle-1", first)
	d.Dispatch(context.Background(), "cycle-1", second)

	if len(f.posted) != 3 {
		t.Fatalf("expected every evaluation to dispatch, got %d", len(f.posted))
	}
}

func TestDispatchDedupPerCycle(t *testing.T) {
	n := &recordingNotices{}
	f := &fakeNotifier{permitted: true}
	d := newTestDispatcher(n, f, true)

	first := []models.Violation{{Channel: sensorA, Value: 90, Threshold: 50}}
	second := append(first, models.Violation{Channel: sensorB, Value: 95, Threshold: 50})

	d.Dispatch(context.Background(), "cycle-1", first)
	d.Dispatch(context.Background(), "cycle-1", first)
	d.Dispatch(context.Background(), "cycle-1", second)
	d.Dispatch(context.Background(), "cycle-2", first)

	if len(f.posted) != 3 {
		t.Fatalf("expected 3 dispatches (duplicate dropped), got %d", len(f.posted))
	}
	if len(n.messages) != 3 {
		t.Fatalf("expected 3 notices, got %d", len(n.messages))
	}
}

func TestDispatchDedupForgetsOldCycles(t *testing.T) {
	d := newTestDispatcher(&recordingNotices{}, &fakeNotifier{permitted: true}, true)
	v := []models.Violation{{Channel: sensorA, Value: 90, Threshold: 50}}

	for i := 0; i < dedupWindow*3; i++ {
		d.Dispatch(context.Background(), strings.Repeat("c", i+1), v)
	}
	if len(d.sent) > dedupWindow {
		t.Fatalf("dedup memory should be bounded, got %d entries", len(d.sent))
	}
}

type hangingProvisioner struct{}

func (hangingProvisioner) EnsureChannel(ctx context.Context, ch models.NotificationChannel) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestDispatchReturnsWhileChannelIsCreated(t *testing.T) {
	queue := make(chan *models.Alert, 4)
	center := notify.NewCenter(notify.CenterConfig{
		Queue:            queue,
		Provisioner:      hangingProvisioner{},
		ProvisionTimeout: time.Hour,
		Permitted:        true,
	})
	defer center.Close()

	n := &recordingNotices{}
	d := NewDispatcher(DispatcherConfig{
		Notices:  n,
		Notifier: center,
		Channel:  models.NotificationChannel{ID: "SensorAlertChannel"},
		Title:    "Sensor Threshold Exceeded",
	})

	returned := make(chan struct{})
	go func() {
		for i := 0; i < 3; i++ {
			d.Dispatch(context.Background(), "cycle-1", []models.Violation{{Channel: sensorA, Value: 90, Threshold: 50}})
		}
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Dispatch waited on notification channel creation")
	}

	if len(n.messages) != 3 {
		t.Fatalf("ephemeral notices must still fire, got %v", n.messages)
	}
	if len(queue) != 0 {
		t.Fatalf("nothing may be queued before the channel exists, got %d", len(queue))
	}
}
