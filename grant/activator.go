package grant

import (
	"context"
	"fmt"
	"time"

	"github.com/zllovesuki/membergate/checkout"
	"github.com/zllovesuki/membergate/messaging"
	"github.com/zllovesuki/membergate/settings"
	"github.com/zllovesuki/membergate/util"

	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
)

// ActivatorOptions contains the dependencies of the Activator
type ActivatorOptions struct {
	Store     Store
	Settings  settings.Provider
	Messenger messaging.Messenger
	Locks     *util.KeyedMutex
	Logger    *zap.Logger
}

// Activator consumes verified payment-completion events: it creates or renews the
// Grant, then restores the subscriber's membership eligibility and delivers a
// single-use invite. Entitlement is the source of truth; invite delivery is
// best-effort and never rolls the Grant back.
type Activator struct {
	ActivatorOptions
}

// NewActivator validates the options and returns an Activator
func NewActivator(option ActivatorOptions) (*Activator, error) {
	if option.Store == nil {
		return nil, fmt.Errorf("nil Store is invalid")
	}
	if option.Settings == nil {
		return nil, fmt.Errorf("nil Settings is invalid")
	}
	if option.Messenger == nil {
		return nil, fmt.Errorf("nil Messenger is invalid")
	}
	if option.Locks == nil {
		return nil, fmt.Errorf("nil Locks is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Activator{
		ActivatorOptions: option,
	}, nil
}

// Process applies a verified payment event. An error return means the Grant was not
// durably recorded and the caller should signal the provider to redeliver.
func (a *Activator) Process(ctx context.Context, evt *checkout.CompletedEvent) (*Grant, error) {
	logger := a.Logger.With(
		zap.Int64("SubscriberID", evt.SubscriberID),
		zap.String("EventID", evt.EventID),
	)

	a.Locks.Lock(evt.SubscriberID)
	defer a.Locks.Unlock(evt.SubscriberID)

	cfg := a.Settings.Get(ctx)
	endTime := time.Now().UTC().Add(cfg.GrantDuration())

	g, duplicate, err := a.Store.Activate(ctx, ActivateOptions{
		EventID:      evt.EventID,
		SubscriberID: evt.SubscriberID,
		DisplayName:  evt.DisplayName,
		EndTime:      endTime,
	})
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot activate grant")
	}
	if duplicate {
		logger.Info("Ignoring redelivered payment event")
		return g, nil
	}

	logger.Info("Grant activated",
		zap.Time("EndTime", g.EndTime),
	)

	a.deliverInvite(ctx, evt.SubscriberID, logger)

	return g, nil
}

// deliverInvite restores eligibility and DMs a fresh single-use invite. Failures are
// reported per subscriber only; the committed Grant stands regardless.
func (a *Activator) deliverInvite(ctx context.Context, subscriberID int64, logger *zap.Logger) {
	if err := a.Messenger.RestoreEligibility(ctx, subscriberID); err != nil {
		logger.Error("Cannot restore membership eligibility",
			zap.Error(err),
		)
		return
	}
	link, err := a.Messenger.CreateInvite(ctx, inviteTTL, inviteMaxUses)
	if err != nil {
		logger.Error("Cannot create invite link",
			zap.Error(err),
		)
		return
	}
	if err := a.Messenger.SendMessage(ctx, subscriberID, fmt.Sprintf(activatedTextFormat, link), nil); err != nil {
		logger.Error("Cannot deliver invite link",
			zap.Error(err),
		)
	}
}
