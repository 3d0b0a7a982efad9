package checkout

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	extErrors "github.com/pkg/errors"
	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"
	"go.uber.org/zap"
)

// Metadata keys used to correlate a completed checkout back to exactly one subscriber
const (
	MetadataSubscriberID = "subscriber_id"
	MetadataDisplayName  = "display_name"
)

// IssuerOptions contains the configuration for the checkout Issuer
type IssuerOptions struct {
	StripeClient *client.API
	PriceID      string
	SuccessURL   string
	CancelURL    string
	Logger       *zap.Logger
}

// Issuer creates subscription-mode checkout sessions that carry the
// subscriber identity as session metadata
type Issuer struct {
	IssuerOptions
}

// Session is the caller-facing result of creating a checkout session
type Session struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// NewIssuer validates the options and returns an Issuer
func NewIssuer(option IssuerOptions) (*Issuer, error) {
	if option.StripeClient == nil {
		return nil, fmt.Errorf("nil StripeClient is invalid")
	}
	if len(option.PriceID) == 0 {
		return nil, fmt.Errorf("empty PriceID is invalid")
	}
	if len(option.SuccessURL) == 0 {
		return nil, fmt.Errorf("empty SuccessURL is invalid")
	}
	if len(option.CancelURL) == 0 {
		return nil, fmt.Errorf("empty CancelURL is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Issuer{
		IssuerOptions: option,
	}, nil
}

// CreateSession creates a new checkout session for the subscriber. The returned URL is
// presented to the end user, so a provider failure is always surfaced to the caller.
func (i *Issuer) CreateSession(ctx context.Context, subscriberID int64, displayName string) (*Session, error) {
	params := &stripe.CheckoutSessionParams{
		Params: stripe.Params{
			Context:        ctx,
			IdempotencyKey: stripe.String(uuid.New().String()),
		},
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(i.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(i.SuccessURL),
		CancelURL:  stripe.String(i.CancelURL),
	}
	params.AddMetadata(MetadataSubscriberID, strconv.FormatInt(subscriberID, 10))
	params.AddMetadata(MetadataDisplayName, displayName)

	session, err := i.StripeClient.CheckoutSessions.New(params)
	if err != nil {
		i.Logger.Error("Unable to create checkout session on Stripe",
			zap.Int64("SubscriberID", subscriberID),
			zap.Error(err),
		)
		return nil, extErrors.Wrap(err, "Cannot create checkout session")
	}

	return &Session{
		ID:  session.ID,
		URL: session.URL,
	}, nil
}
