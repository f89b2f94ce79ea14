package utils

import "time"

// DefaultFineRateCentsPerHour is the hourly overdue charge: $0.10/hour.
const DefaultFineRateCentsPerHour int64 = 10

// CalculateFineCents returns the overdue fine, in cents, for a loan due at
// dueAt when evaluated at now. It is pure and monotonic in now: callers use
// it repeatedly for live previews and once, at return time, to freeze the
// final charge.
//
// Any started hour past the due time counts as a full hour.
func CalculateFineCents(dueAt, now time.Time, ratePerHourCents int64) int64 {
	if !now.After(dueAt) {
		return 0
	}

	elapsed := now.Sub(dueAt)
	lateHours := int64(elapsed / time.Hour)
	if elapsed%time.Hour != 0 {
		lateHours++
	}

	return lateHours * ratePerHourCents
}
