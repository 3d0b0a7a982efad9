package grant

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zllovesuki/membergate/checkout"
	"github.com/zllovesuki/membergate/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestActivator(t *testing.T, store Store, messenger *fakeMessenger) *Activator {
	activator, err := NewActivator(ActivatorOptions{
		Store:     store,
		Settings:  testSettings(),
		Messenger: messenger,
		Locks:     &util.KeyedMutex{},
		Logger:    zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	return activator
}

func TestActivatorProcessNewGrant(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	messenger := newFakeMessenger()
	activator := newTestActivator(t, store, messenger)

	before := time.Now().UTC()
	g, err := activator.Process(ctx, &checkout.CompletedEvent{
		EventID:      "evt_1",
		SubscriberID: 42,
		DisplayName:  "alice",
	})
	require.NoError(t, err)
	require.NotNil(t, g)

	// 30 day default window, anchored at processing time
	expected := before.Add(30 * 24 * time.Hour)
	assert.WithinDuration(t, expected, g.EndTime, 5*time.Second)
	assert.Equal(t, "alice", g.DisplayName)

	// eligibility restored, invite minted, link delivered
	assert.Equal(t, []int64{42}, messenger.restored)
	assert.Equal(t, 1, messenger.invites)
	sent := messenger.sentTo(42)
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Text, "https://t.me/+invite1")
}

func TestActivatorProcessDuplicateEvent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	messenger := newFakeMessenger()
	activator := newTestActivator(t, store, messenger)

	evt := &checkout.CompletedEvent{
		EventID:      "evt_1",
		SubscriberID: 42,
		DisplayName:  "alice",
	}

	first, err := activator.Process(ctx, evt)
	require.NoError(t, err)
	require.NotNil(t, first)

	// redelivery: no extension and no second invite
	second, err := activator.Process(ctx, evt)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.True(t, second.EndTime.Equal(first.EndTime))

	assert.Equal(t, 1, messenger.invites)
	assert.Len(t, messenger.sentTo(42), 1)
}

func TestActivatorProcessRenewalExtends(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	messenger := newFakeMessenger()
	activator := newTestActivator(t, store, messenger)

	first, err := activator.Process(ctx, &checkout.CompletedEvent{
		EventID:      "evt_1",
		SubscriberID: 42,
		DisplayName:  "alice",
	})
	require.NoError(t, err)

	second, err := activator.Process(ctx, &checkout.CompletedEvent{
		EventID:      "evt_2",
		SubscriberID: 42,
		DisplayName:  "alice",
	})
	require.NoError(t, err)
	assert.True(t, second.EndTime.After(first.EndTime) || second.EndTime.Equal(first.EndTime))
}

func TestActivatorDeliveryFailureKeepsGrant(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	messenger := newFakeMessenger()
	messenger.failRestore = errors.New("platform unavailable")
	activator := newTestActivator(t, store, messenger)

	g, err := activator.Process(ctx, &checkout.CompletedEvent{
		EventID:      "evt_1",
		SubscriberID: 42,
		DisplayName:  "alice",
	})
	require.NoError(t, err)
	require.NotNil(t, g)

	// the invite chain stopped at restore, the entitlement stands
	assert.Equal(t, 0, messenger.invites)
	assert.Empty(t, messenger.sentTo(42))

	stored, err := store.Get(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, stored)
}

func TestActivatorInviteFailureStillMessagesNothing(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	messenger := newFakeMessenger()
	messenger.failInvite = errors.New("not enough rights")
	activator := newTestActivator(t, store, messenger)

	g, err := activator.Process(ctx, &checkout.CompletedEvent{
		EventID:      "evt_1",
		SubscriberID: 42,
		DisplayName:  "alice",
	})
	require.NoError(t, err)
	require.NotNil(t, g)

	assert.Equal(t, []int64{42}, messenger.restored)
	assert.Empty(t, messenger.sentTo(42))
}
