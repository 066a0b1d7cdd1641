package domain

import (
	"fmt"
	"time"
)

// ComputeExpiry returns the next daily cutoff in loc at or after now, as a UTC instant.
// A now that sits exactly on the cutoff rolls to the following day, so the result is
// always strictly after now. Day arithmetic goes through the civil calendar of loc, which
// keeps the cutoff on the configured wall-clock hour across DST changes.
func ComputeExpiry(now time.Time, cutoffHour int, loc *time.Location) (time.Time, error) {
	if cutoffHour < 0 || cutoffHour > 23 {
		return time.Time{}, NewValidationError("cutoff_hour", fmt.Sprintf("must be in [0,23], got %d", cutoffHour))
	}
	if loc == nil {
		return time.Time{}, NewValidationError("timezone", "must be set")
	}
	local := now.In(loc)
	y, m, d := local.Date()
	cutoff := time.Date(y, m, d, cutoffHour, 0, 0, 0, loc)
	if !local.Before(cutoff) {
		cutoff = time.Date(y, m, d+1, cutoffHour, 0, 0, 0, loc)
	}
	return cutoff.UTC(), nil
}
