package heartbeat

import (
	"time"

	"aide/internal/store"
)

// inQuietInterval reports whether the hour falls inside [start, end), with
// wrap-around across midnight. start == end disables the interval.
func inQuietInterval(hour, start, end int) bool {
	if start == end {
		return false
	}
	if start < end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

// userLocation resolves the user's timezone, falling back to the server's.
func userLocation(u *store.User) *time.Location {
	if u == nil || u.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(u.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// quietBounds returns the effective quiet interval for a user: the profile
// override when both bounds are set, otherwise the global default.
func quietBounds(u *store.User, globalStart, globalEnd int) (int, int) {
	if u != nil && u.QuietStart != nil && u.QuietEnd != nil {
		return *u.QuietStart, *u.QuietEnd
	}
	return globalStart, globalEnd
}

// nextNotificationTime is the next moment the user's quiet interval ends, in
// the user's timezone.
func nextNotificationTime(now time.Time, u *store.User, globalStart, globalEnd int) time.Time {
	_, end := quietBounds(u, globalStart, globalEnd)
	local := now.In(userLocation(u))
	candidate := time.Date(local.Year(), local.Month(), local.Day(), end, 0, 0, 0, local.Location())
	if !candidate.After(local) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}
