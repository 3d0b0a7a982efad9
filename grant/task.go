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

// CheckoutIssuer is the slice of the checkout Issuer the reconciler needs to
// offer renewal after eviction
type CheckoutIssuer interface {
	CreateSession(ctx context.Context, subscriberID int64, displayName string) (*checkout.Session, error)
}

// TaskOptions contains the dependencies of the reconciliation Task
type TaskOptions struct {
	Store     Store
	Settings  settings.Provider
	Messenger messaging.Messenger
	Issuer    CheckoutIssuer
	Locks     *util.KeyedMutex
	Logger    *zap.Logger
}

// Task is the Expiration Reconciler. Run drives a single-flight periodic sweep
// that advances every Grant toward warn/evict outcomes; Trigger forces a sweep
// ahead of schedule.
type Task struct {
	TaskOptions
	kick chan struct{}
}

// NewTask validates the options and returns a Task
func NewTask(option TaskOptions) (*Task, error) {
	if option.Store == nil {
		return nil, fmt.Errorf("nil Store is invalid")
	}
	if option.Settings == nil {
		return nil, fmt.Errorf("nil Settings is invalid")
	}
	if option.Messenger == nil {
		return nil, fmt.Errorf("nil Messenger is invalid")
	}
	if option.Issuer == nil {
		return nil, fmt.Errorf("nil Issuer is invalid")
	}
	if option.Locks == nil {
		return nil, fmt.Errorf("nil Locks is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Task{
		TaskOptions: option,
		kick:        make(chan struct{}, 1),
	}, nil
}

// Trigger requests a sweep ahead of schedule. It never blocks; a sweep already
// pending or running coalesces the request.
func (t *Task) Trigger() {
	select {
	case t.kick <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is cancelled. The timer is re-armed only after a sweep
// finishes, so sweeps never overlap, and interval changes in settings take
// effect on the next arm. A failing sweep never stops the schedule.
func (t *Task) Run(ctx context.Context) {
	t.Logger.Info("Expiration reconciler started")

	timer := time.NewTimer(t.Settings.Get(ctx).ReconcileInterval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			t.Logger.Info("Expiration reconciler stopped")
			return
		case <-timer.C:
		case <-t.kick:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}

		if err := t.Sweep(ctx); err != nil {
			t.Logger.Error("Reconciliation sweep failed",
				zap.Error(err),
			)
		}

		timer.Reset(t.Settings.Get(ctx).ReconcileInterval())
	}
}

// Sweep visits every Grant once. A failure on one subscriber is logged and never
// aborts the rest of the batch; only a failure to read the snapshot returns an error.
func (t *Task) Sweep(ctx context.Context) error {
	now := time.Now().UTC()
	cfg := t.Settings.Get(ctx)

	grants, err := t.Store.List(ctx)
	if err != nil {
		return extErrors.Wrap(err, "Cannot list grants for sweep")
	}

	for i := range grants {
		t.reconcileGrant(ctx, &grants[i], now, cfg.WarningLead())
	}

	if pruned, err := t.Store.PruneEvents(ctx, now.Add(-eventRetention)); err != nil {
		t.Logger.Error("Cannot prune processed events",
			zap.Error(err),
		)
	} else if pruned > 0 {
		t.Logger.Info("Pruned processed events",
			zap.Int64("Count", pruned),
		)
	}

	return nil
}

func (t *Task) reconcileGrant(ctx context.Context, g *Grant, now time.Time, lead time.Duration) {
	logger := t.Logger.With(
		zap.Int64("SubscriberID", g.SubscriberID),
		zap.Time("EndTime", g.EndTime),
	)

	remaining := g.Remaining(now)
	switch {
	case remaining > lead:
		// plenty of time left
	case remaining > 0:
		if g.Warned {
			return
		}
		t.warn(ctx, g, logger)
	default:
		t.evict(ctx, g.SubscriberID, now, logger)
	}
}

// warn sends the pre-expiry notice, then records it. The order matters: a failed
// send leaves Warned false so the next sweep retries, and MarkWarned is gated on
// the EndTime the notice was sent for, so a concurrent renewal is not clobbered.
func (t *Task) warn(ctx context.Context, g *Grant, logger *zap.Logger) {
	if err := t.Messenger.SendMessage(ctx, g.SubscriberID, warningText, nil); err != nil {
		logger.Error("Cannot deliver expiry warning",
			zap.Error(err),
		)
		return
	}
	if _, err := t.Store.MarkWarned(ctx, g.SubscriberID, g.EndTime); err != nil {
		logger.Error("Cannot record expiry warning",
			zap.Error(err),
		)
		return
	}
	logger.Info("Expiry warning sent")
}

// evict revokes membership, offers renewal, and deletes the Grant. The subscriber's
// state is re-read under the per-subscriber lock, and the final delete re-checks
// expiry in the store, so a renewal racing this eviction always wins.
func (t *Task) evict(ctx context.Context, subscriberID int64, now time.Time, logger *zap.Logger) {
	t.Locks.Lock(subscriberID)
	defer t.Locks.Unlock(subscriberID)

	current, err := t.Store.Get(ctx, subscriberID)
	if err != nil {
		logger.Error("Cannot re-read grant before eviction",
			zap.Error(err),
		)
		return
	}
	if current == nil || current.EndTime.After(now) {
		// renewed since the snapshot was taken
		return
	}

	if err := t.Messenger.RevokeMembership(ctx, subscriberID); err != nil {
		// grant stays; the next sweep retries the eviction
		logger.Error("Cannot revoke membership",
			zap.Error(err),
		)
		return
	}

	text := evictedText
	var button *messaging.Button
	session, err := t.Issuer.CreateSession(ctx, subscriberID, current.DisplayName)
	if err != nil {
		// the renewal offer fails for this subscriber only; eviction proceeds
		logger.Error("Cannot create renewal checkout session",
			zap.Error(err),
		)
		text = evictedNoLinkText
	} else {
		button = &messaging.Button{
			Label: resubscribeLabel,
			URL:   session.URL,
		}
	}

	if err := t.Messenger.SendMessage(ctx, subscriberID, text, button); err != nil {
		logger.Error("Cannot deliver eviction notice",
			zap.Error(err),
		)
	}

	deleted, err := t.Store.DeleteExpired(ctx, subscriberID, now)
	if err != nil {
		logger.Error("Cannot delete expired grant",
			zap.Error(err),
		)
		return
	}
	if deleted {
		logger.Info("Grant evicted")
	}
}
