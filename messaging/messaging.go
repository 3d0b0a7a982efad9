package messaging

import (
	"context"
	"time"
)

// Button is an optional action link attached to a direct message
type Button struct {
	Label string
	URL   string
}

// Messenger abstracts the messaging platform that hosts the restricted group.
// All operations are best-effort from the caller's perspective: a failure is
// reported per subscriber and never implies anything about stored state.
type Messenger interface {
	// SendMessage delivers a direct message to the subscriber, optionally with an action link
	SendMessage(ctx context.Context, subscriberID int64, text string, button *Button) error
	// RevokeMembership removes the subscriber from the restricted group
	RevokeMembership(ctx context.Context, subscriberID int64) error
	// RestoreEligibility lifts a previous revocation so the subscriber may join again
	RestoreEligibility(ctx context.Context, subscriberID int64) error
	// CreateInvite returns a join link limited to maxUses uses that expires after ttl
	CreateInvite(ctx context.Context, ttl time.Duration, maxUses int) (string, error)
}
