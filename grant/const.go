package grant

import "time"

// Invite links delivered on activation are single-use and short-lived
const (
	inviteTTL     = 10 * time.Minute
	inviteMaxUses = 1
)

// eventRetention bounds how long processed payment event ids are kept for dedup.
// Stripe stops redelivering well within this window.
const eventRetention = 30 * 24 * time.Hour

// Notice texts delivered to subscribers
const (
	warningText = "⚠️ Heads up: your subscription is about to expire."

	evictedText = "❌ Your subscription has expired and your access has been revoked.\n📌 Tap below to resubscribe:"

	evictedNoLinkText = "❌ Your subscription has expired and your access has been revoked."

	resubscribeLabel = "💳 Resubscribe"

	activatedTextFormat = "✅ Your subscription is active!\n🔗 This invite link is yours only (valid for 10 minutes or a single use):\n%s"
)
