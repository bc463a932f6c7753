package notify

import (
	"context"

	"smokealert/internal/logger"
	"smokealert/internal/models"
)

// LogPublisher delivers notifications to the structured log. Used when no
// external delivery backend is configured.
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, alert *models.Alert) error {
	log := logger.WithComponent("notification")
	log.Warn().
		Str("alert_id", alert.ID).
		Str("channel_id", alert.ChannelID).
		Str("priority", string(alert.Priority)).
		Str("title", alert.Title).
		Strs("sensors", alert.Sensors).
		Msg(alert.Message)
	return nil
}

func (l LogPublisher) PublishBatch(ctx context.Context, alerts []*models.Alert) error {
	for _, a := range alerts {
		if err := l.Publish(ctx, a); err != nil {
			return err
		}
	}
	return nil
}
