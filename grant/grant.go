package grant

import "time"

// Grant is a subscriber's current access window. At most one Grant exists per
// subscriber; eviction deletes it, and a later payment creates a fresh one.
type Grant struct {
	SubscriberID int64     `json:"subscriberId" gorm:"primaryKey"`
	DisplayName  string    `json:"displayName"` // best-effort human label, advisory only
	EndTime      time.Time `json:"endTime"`     // always UTC
	Warned       bool      `json:"warned"`      // pre-expiry notice sent for the current EndTime
}

// Remaining returns how much of the access window is left relative to now
func (g *Grant) Remaining(now time.Time) time.Duration {
	return g.EndTime.Sub(now)
}

// ProcessedEvent records a payment event that has already been applied, so a
// redelivered event extends nothing. Rows are pruned after the retention window.
type ProcessedEvent struct {
	ID     string    `json:"id" gorm:"primaryKey"`
	SeenAt time.Time `json:"seenAt" gorm:"index"`
}

// Stats is the snapshot summary exposed to the presentation layer.
// Total == Active + Expired holds for any snapshot.
type Stats struct {
	Total   int `json:"total"`
	Active  int `json:"active"`
	Expired int `json:"expired"`
}
