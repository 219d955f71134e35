// Package timer resolves assignment deadlines and per-attempt timers.
package timer

import (
	"math"
	"time"

	"github.com/noah-isme/lti-assignments-api/internal/models"
)

// IsExpired reports whether the deadline lies strictly before now.
func IsExpired(deadline, now time.Time) bool {
	return deadline.Before(now)
}

// IsAssignmentClosed reports whether the assignment no longer accepts learner work.
func IsAssignmentClosed(assignment *models.Assignment, now time.Time) bool {
	if assignment == nil {
		return true
	}
	return assignment.Status.IsClosed() || IsExpired(assignment.Deadline, now)
}

// ExtendTimer adds extraMinutes to the timer, carrying whole hours once the minutes exceed 59.
// Fractional remainders are rounded to the nearest minute.
func ExtendTimer(t models.Timer, extraMinutes float64) models.Timer {
	hours := t.Hours
	minutes := float64(t.Minutes) + extraMinutes
	if minutes > 59 {
		total := minutes / 60
		whole := math.Floor(total)
		hours += int(whole)
		minutes = math.Round((total - whole) * 60)
		if minutes >= 60 {
			hours++
			minutes -= 60
		}
	} else {
		minutes = math.Round(minutes)
	}
	return models.Timer{Hours: hours, Minutes: int(minutes)}
}

// ResolveDeadline returns the effective deadline of an attempt. A timer only ever shortens the
// assignment deadline.
func ResolveDeadline(createdAt, deadline time.Time, t *models.Timer, extensionMinutes float64) time.Time {
	if t == nil {
		return deadline
	}
	effective := *t
	if extensionMinutes != 0 {
		effective = ExtendTimer(effective, extensionMinutes)
	}
	end := createdAt.Add(effective.Duration())
	if end.Before(deadline) {
		return end
	}
	return deadline
}
