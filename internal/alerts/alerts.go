package alerts

import (
	"smokealert/internal/models"
)

// Evaluate returns the readings in the snapshot that are strictly above threshold,
// in the order they arrived. Nil when nothing exceeds.
func Evaluate(snapshot *models.Snapshot, threshold int) []models.Violation {
	if snapshot == nil {
		return nil
	}

	var violations []models.Violation
	for _, r := range snapshot.Readings() {
		if r.Value > threshold {
			violations = append(violations, models.Violation{
				Channel:   r.Channel,
				Value:     r.Value,
				Threshold: threshold,
			})
		}
	}
	return violations
}
