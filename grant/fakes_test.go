package grant

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zllovesuki/membergate/checkout"
	"github.com/zllovesuki/membergate/messaging"
)

type sentMessage struct {
	SubscriberID int64
	Text         string
	Button       *messaging.Button
}

// fakeMessenger records every call and can inject failures per subscriber
type fakeMessenger struct {
	mu sync.Mutex

	sent     []sentMessage
	revoked  []int64
	restored []int64
	invites  int

	failSendFor   map[int64]error
	failRevokeFor map[int64]error
	failRestore   error
	failInvite    error

	// onRevoke runs before the revocation is recorded, to simulate
	// a renewal racing an eviction
	onRevoke func(subscriberID int64)
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{
		failSendFor:   make(map[int64]error),
		failRevokeFor: make(map[int64]error),
	}
}

func (f *fakeMessenger) SendMessage(ctx context.Context, subscriberID int64, text string, button *messaging.Button) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failSendFor[subscriberID]; err != nil {
		return err
	}
	f.sent = append(f.sent, sentMessage{
		SubscriberID: subscriberID,
		Text:         text,
		Button:       button,
	})
	return nil
}

func (f *fakeMessenger) RevokeMembership(ctx context.Context, subscriberID int64) error {
	if f.onRevoke != nil {
		f.onRevoke(subscriberID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failRevokeFor[subscriberID]; err != nil {
		return err
	}
	f.revoked = append(f.revoked, subscriberID)
	return nil
}

func (f *fakeMessenger) RestoreEligibility(ctx context.Context, subscriberID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRestore != nil {
		return f.failRestore
	}
	f.restored = append(f.restored, subscriberID)
	return nil
}

func (f *fakeMessenger) CreateInvite(ctx context.Context, ttl time.Duration, maxUses int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failInvite != nil {
		return "", f.failInvite
	}
	f.invites++
	return fmt.Sprintf("https://t.me/+invite%d", f.invites), nil
}

func (f *fakeMessenger) sentTo(subscriberID int64) []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentMessage
	for _, m := range f.sent {
		if m.SubscriberID == subscriberID {
			out = append(out, m)
		}
	}
	return out
}

// fakeIssuer hands out deterministic sessions and can inject failures
type fakeIssuer struct {
	mu       sync.Mutex
	sessions int
	fail     error
}

func (f *fakeIssuer) CreateSession(ctx context.Context, subscriberID int64, displayName string) (*checkout.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	f.sessions++
	return &checkout.Session{
		ID:  fmt.Sprintf("cs_test_%d", f.sessions),
		URL: fmt.Sprintf("https://checkout.example/cs_test_%d", f.sessions),
	}, nil
}
