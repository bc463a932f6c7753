// Package storage keeps a durable journal of dispatched alerts.
package storage

import (
	"context"

	"smokealert/internal/models"
)

// Journal records delivered alerts. Writes must be idempotent on alert id so a
// batch retried by the worker pool does not duplicate rows.
type Journal interface {
	Publish(ctx context.Context, alert *models.Alert) error
	PublishBatch(ctx context.Context, alerts []*models.Alert) error
	Close() error
}
