package settings

import (
	"context"
	"sync"
)

// MemoryProvider is an in-process Updater guarded by a mutex
type MemoryProvider struct {
	mu      sync.RWMutex
	current Settings
}

// NewMemoryProvider returns a MemoryProvider seeded with the given Settings
func NewMemoryProvider(initial Settings) *MemoryProvider {
	return &MemoryProvider{
		current: initial,
	}
}

// Get returns the current Settings
func (p *MemoryProvider) Get(ctx context.Context) Settings {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Update replaces the current Settings
func (p *MemoryProvider) Update(ctx context.Context, s Settings) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = s
	return nil
}
