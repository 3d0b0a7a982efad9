package settings

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	s := Default()
	assert.Equal(t, 30, s.GrantDurationDays)
	assert.Equal(t, 5, s.WarningLeadMinutes)
	assert.Equal(t, 2, s.ReconcileIntervalMinutes)
}

func TestDurationHelpers(t *testing.T) {
	s := Settings{
		GrantDurationDays:        30,
		WarningLeadMinutes:       5,
		ReconcileIntervalMinutes: 2,
	}
	assert.Equal(t, 30*24*time.Hour, s.GrantDuration())
	assert.Equal(t, 5*time.Minute, s.WarningLead())
	assert.Equal(t, 2*time.Minute, s.ReconcileInterval())
}

func TestMemoryProvider(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider(Default())

	assert.Equal(t, Default(), p.Get(ctx))

	next := Settings{
		GrantDurationDays:        7,
		WarningLeadMinutes:       10,
		ReconcileIntervalMinutes: 1,
	}
	require.NoError(t, p.Update(ctx, next))
	assert.Equal(t, next, p.Get(ctx))
}
