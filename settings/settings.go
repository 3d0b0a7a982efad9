package settings

import (
	"context"
	"time"
)

// Settings are the process-wide tunables consulted by the reconciler and the
// activation path. They are read-mostly and may change between sweeps.
type Settings struct {
	GrantDurationDays        int `json:"grant_duration_days" validate:"gt=0"`
	WarningLeadMinutes       int `json:"warning_lead_minutes" validate:"gte=0"`
	ReconcileIntervalMinutes int `json:"reconciliation_interval_minutes" validate:"gt=0"`
}

// Default returns the documented fallback values, used whenever the persisted
// settings are missing or unreadable
func Default() Settings {
	return Settings{
		GrantDurationDays:        30,
		WarningLeadMinutes:       5,
		ReconcileIntervalMinutes: 2,
	}
}

// GrantDuration is the length of a newly issued or renewed grant
func (s Settings) GrantDuration() time.Duration {
	return time.Duration(s.GrantDurationDays) * 24 * time.Hour
}

// WarningLead is how long before expiry the warning notice fires
func (s Settings) WarningLead() time.Duration {
	return time.Duration(s.WarningLeadMinutes) * time.Minute
}

// ReconcileInterval is the sweep cadence
func (s Settings) ReconcileInterval() time.Duration {
	return time.Duration(s.ReconcileIntervalMinutes) * time.Minute
}

// Provider exposes the current Settings. Implementations never fail the caller:
// a backend read error falls back to Default and is reported out of band.
type Provider interface {
	Get(ctx context.Context) Settings
}

// Updater is a Provider whose Settings can be changed at runtime
type Updater interface {
	Provider
	Update(ctx context.Context, s Settings) error
}
