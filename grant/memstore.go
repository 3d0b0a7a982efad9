package grant

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store guarded by a mutex. It carries the same
// atomicity contract as the database-backed Manager and doubles as the
// single-owner deployment option for installations without Postgres.
type MemoryStore struct {
	mu     sync.RWMutex
	grants map[int64]*Grant
	events map[string]time.Time
}

// NewMemoryStore returns an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		grants: make(map[int64]*Grant),
		events: make(map[string]time.Time),
	}
}

func (s *MemoryStore) Get(ctx context.Context, subscriberID int64) (*Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.grants[subscriberID]
	if !ok {
		return nil, nil
	}
	copied := *g
	return &copied, nil
}

func (s *MemoryStore) Activate(ctx context.Context, opt ActivateOptions) (*Grant, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, seen := s.events[opt.EventID]; seen {
		if g, ok := s.grants[opt.SubscriberID]; ok {
			copied := *g
			return &copied, true, nil
		}
		return nil, true, nil
	}
	s.events[opt.EventID] = time.Now().UTC()

	current, ok := s.grants[opt.SubscriberID]
	if !ok {
		current = &Grant{
			SubscriberID: opt.SubscriberID,
			DisplayName:  opt.DisplayName,
			EndTime:      opt.EndTime,
			Warned:       false,
		}
		s.grants[opt.SubscriberID] = current
	} else {
		current.DisplayName = opt.DisplayName
		if opt.EndTime.After(current.EndTime) {
			current.EndTime = opt.EndTime
			current.Warned = false
		}
	}
	copied := *current
	return &copied, false, nil
}

func (s *MemoryStore) MarkWarned(ctx context.Context, subscriberID int64, endTime time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.grants[subscriberID]
	if !ok {
		return false, nil
	}
	if g.Warned || !g.EndTime.Equal(endTime) {
		return false, nil
	}
	g.Warned = true
	return true, nil
}

func (s *MemoryStore) DeleteExpired(ctx context.Context, subscriberID int64, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.grants[subscriberID]
	if !ok {
		return false, nil
	}
	if g.EndTime.After(now) {
		return false, nil
	}
	delete(s.grants, subscriberID)
	return true, nil
}

func (s *MemoryStore) List(ctx context.Context) ([]Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]Grant, 0, len(s.grants))
	for _, g := range s.grants {
		results = append(results, *g)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].EndTime.Before(results[j].EndTime)
	})
	return results, nil
}

func (s *MemoryStore) Stats(ctx context.Context, now time.Time) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{Total: len(s.grants)}
	for _, g := range s.grants {
		if g.EndTime.After(now) {
			stats.Active++
		} else {
			stats.Expired++
		}
	}
	return stats, nil
}

func (s *MemoryStore) PruneEvents(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pruned int64
	for id, seenAt := range s.events {
		if seenAt.Before(olderThan) {
			delete(s.events, id)
			pruned++
		}
	}
	return pruned, nil
}
