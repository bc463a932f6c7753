// Package controls holds user-triggered writes to the device.
package controls

import (
	"context"
	"fmt"

	"smokealert/internal/logger"
	"smokealert/internal/remote"
)

// Notices receives user-visible outcome messages
type Notices interface {
	Notice(msg string)
	Error(msg string)
}

// Buzzer toggles the device's buzzer self-test flag
type Buzzer struct {
	store   remote.Store
	notices Notices
}

func NewBuzzer(store remote.Store, notices Notices) *Buzzer {
	return &Buzzer{store: store, notices: notices}
}

// Set writes the test flag. The outcome is reported as a notice and the write
// error, if any, is returned.
func (b *Buzzer) Set(ctx context.Context, on bool) error {
	log := logger.WithComponent("buzzer")

	if err := b.store.Set(ctx, remote.PathBuzzerTest, on); err != nil {
		log.Error().Err(err).Bool("on", on).Msg("failed to toggle buzzer test")
		b.notices.Error("FAILED to toggle buzzer test")
		return fmt.Errorf("toggle buzzer test: %w", err)
	}

	log.Info().Bool("on", on).Msg("buzzer test toggled")
	b.notices.Notice("Buzzer test toggled!")
	return nil
}
