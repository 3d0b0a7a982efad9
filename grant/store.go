package grant

import (
	"context"
	"time"
)

// ActivateOptions carries a verified payment event into the Store
type ActivateOptions struct {
	EventID      string
	SubscriberID int64
	DisplayName  string
	EndTime      time.Time
}

// Store is the durable mapping from subscriber identity to Grant. Every mutating
// operation is atomic: it either fully applies or fails with an error, and two
// concurrent operations on the same subscriber never interleave into a torn state.
type Store interface {
	// Get returns the Grant for the subscriber, or nil if absent
	Get(ctx context.Context, subscriberID int64) (*Grant, error)

	// Activate applies a payment event in a single atomic step: if the event was
	// already recorded it reports duplicate=true and mutates nothing; otherwise it
	// records the event and creates or renews the Grant. A renewal never shortens
	// the access window, and resets Warned whenever the window is extended.
	Activate(ctx context.Context, opt ActivateOptions) (g *Grant, duplicate bool, err error)

	// MarkWarned flips Warned to true only if the Grant still carries the given
	// EndTime and has not been warned, reporting whether the transition happened.
	// A renewal between the caller's read and this call is therefore never clobbered.
	MarkWarned(ctx context.Context, subscriberID int64, endTime time.Time) (bool, error)

	// DeleteExpired removes the Grant only if it is still expired as of now,
	// re-checking inside the same atomic section that reads it. It reports whether
	// a deletion happened; false means the subscriber renewed concurrently.
	DeleteExpired(ctx context.Context, subscriberID int64, now time.Time) (bool, error)

	// List returns a snapshot of all Grants ordered by EndTime ascending
	List(ctx context.Context) ([]Grant, error)

	// Stats summarizes a snapshot of the store relative to now
	Stats(ctx context.Context, now time.Time) (Stats, error)

	// PruneEvents drops processed payment events seen before the cutoff and
	// returns how many were removed
	PruneEvents(ctx context.Context, olderThan time.Time) (int64, error)
}
