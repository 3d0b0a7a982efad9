package checkout

import (
	"encoding/json"
	"errors"
	"strconv"

	extErrors "github.com/pkg/errors"
	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/webhook"
)

// Typed rejections for inbound payment events. Both are reported before any state mutation.
var (
	// ErrInvalidSignature indicates the payload could not be authenticated against the signing secret
	ErrInvalidSignature = errors.New("checkout: invalid event signature")
	// ErrMissingCorrelation indicates a verified event that cannot be matched back to a subscriber
	ErrMissingCorrelation = errors.New("checkout: event has no subscriber correlation metadata")
)

// completedEventType is the only event type that grants access
const completedEventType = "checkout.session.completed"

// CompletedEvent is a verified payment-completion event
type CompletedEvent struct {
	EventID      string
	SubscriberID int64
	DisplayName  string
}

// ParseEvent verifies the raw payload against the signing secret and extracts the
// subscriber correlation metadata. Event types other than checkout completion return
// nil without error, so the caller can acknowledge and ignore them.
func ParseEvent(payload []byte, sigHeader string, secret string) (*CompletedEvent, error) {
	event, err := webhook.ConstructEvent(payload, sigHeader, secret)
	if err != nil {
		return nil, ErrInvalidSignature
	}

	if event.Type != completedEventType {
		return nil, nil
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, extErrors.Wrap(err, "Cannot decode checkout session from event")
	}

	raw := session.Metadata[MetadataSubscriberID]
	if len(raw) == 0 {
		return nil, ErrMissingCorrelation
	}
	subscriberID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, ErrMissingCorrelation
	}

	displayName := session.Metadata[MetadataDisplayName]
	if len(displayName) == 0 {
		displayName = "unknown"
	}

	return &CompletedEvent{
		EventID:      event.ID,
		SubscriberID: subscriberID,
		DisplayName:  displayName,
	}, nil
}
