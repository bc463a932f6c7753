package storage

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"smokealert/internal/models"
)

func journalAlert(id string) *models.Alert {
	return &models.Alert{
		ID:        id,
		CycleID:   "cycle-1",
		ChannelID: "SensorAlertChannel",
		Title:     "Sensor Threshold Exceeded",
		Message:   "Warning! Sensor B exceeded the threshold of 80%",
		Priority:  models.PriorityHigh,
		Threshold: 80,
		Sensors:   []string{"Sensor B"},
		CreatedAt: time.Now(),
	}
}

func TestPostgresPublishBatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	j, err := NewPostgres(db, "alert_journal")
	if err != nil {
		t.Fatal(err)
	}

	a, b := journalAlert("a1"), journalAlert("a2")
	expectedQuery := regexp.QuoteMeta("INSERT INTO alert_journal (id, cycle_id, channel_id, priority, title, message, threshold, sensors, created_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9),($10,$11,$12,$13,$14,$15,$16,$17,$18) ON CONFLICT (id) DO NOTHING")
	mock.ExpectExec(expectedQuery).
		WithArgs(
			"a1", "cycle-1", "SensorAlertChannel", "HIGH", a.Title, a.Message, 80, sqlmock.AnyArg(), a.CreatedAt,
			"a2", "cycle-1", "SensorAlertChannel", "HIGH", b.Title, b.Message, 80, sqlmock.AnyArg(), b.CreatedAt,
		).
		WillReturnResult(sqlmock.NewResult(0, 2))

	if err := j.PublishBatch(context.Background(), []*models.Alert{a, b}); err != nil {
		t.Fatalf("publish batch: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresPublishBatchEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	j, _ := NewPostgres(db, "alert_journal")
	if err := j.PublishBatch(context.Background(), nil); err != nil {
		t.Fatalf("expected nil error for empty batch, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresPublishError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	j, _ := NewPostgres(db, "alert_journal")
	boom := errors.New("connection reset")
	mock.ExpectExec("INSERT INTO alert_journal").WillReturnError(boom)

	if err := j.Publish(context.Background(), journalAlert("a1")); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestPostgresEnsureSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	j, _ := NewPostgres(db, "alert_journal")
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS alert_journal")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := j.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestNewPostgresRejectsBadTableName(t *testing.T) {
	db, _, _ := sqlmock.New()
	defer db.Close()

	for _, name := range []string{"", "alerts; DROP TABLE x", "1alerts", "a-b"} {
		if _, err := NewPostgres(db, name); err == nil {
			t.Errorf("expected error for table %q", name)
		}
	}
}
