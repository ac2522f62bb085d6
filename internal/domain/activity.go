package domain

import (
	"time"

	"github.com/google/uuid"
)

// UserActivity tracks the last time a user played anything. Maintained by
// the stamp path and read by the inactivity trigger sweep; the external
// auth system owns the rest of the user record.
type UserActivity struct {
	UserID     uuid.UUID `json:"user_id"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// DaysInactive returns whole calendar days since the last activity, counted
// in now's location.
func (a UserActivity) DaysInactive(now time.Time) int {
	last := DateOf(a.LastSeenAt.In(now.Location()))
	today := DateOf(now)
	return int(today.Sub(last).Hours() / 24)
}
