// Package limiter defines the weekly point quota mirror and its remote store.
package limiter

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Store is the remote, authoritative weekly usage counter.
type Store interface {
	// Count returns the points used by userID in the week starting at weekStart.
	Count(ctx context.Context, userID uuid.UUID, weekStart time.Time) (int, error)
	// Increment atomically consumes points if the week's count stays within limit.
	// The returned values come from the server and are ground truth.
	Increment(ctx context.Context, userID uuid.UUID, weekStart time.Time, points, limit int) (allowed bool, newCount int, err error)
}

// Status is the three-tier remaining-quota classification shown to the user.
type Status string

const (
	StatusNormal   Status = "normal"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

// Default classification thresholds as remaining/limit ratios.
const (
	DefaultWarnRatio = 0.3
	DefaultCritRatio = 0.1
)

// WeekStart returns Monday 00:00 UTC of the ISO week containing t.
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	// Monday = 0 ... Sunday = 6
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// Remaining returns limit-used clamped at zero.
func Remaining(limit, used int) int {
	if r := limit - used; r > 0 {
		return r
	}
	return 0
}

// Classify maps remaining/limit against the warning and critical ratios.
func Classify(remaining, limit int, warn, crit float64) Status {
	if limit <= 0 {
		return StatusCritical
	}
	ratio := float64(remaining) / float64(limit)
	switch {
	case ratio <= crit:
		return StatusCritical
	case ratio <= warn:
		return StatusWarning
	default:
		return StatusNormal
	}
}
