package throttle

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	count     int64
	expiresAt time.Time
}

// MemoryRepository is the in-process counterpart of ThrottleRepository.
// Expiry is checked on access instead of by ambient timers.
type MemoryRepository struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[string]*entry
	now     func() time.Time
}

func NewMemoryRepository(window time.Duration) *MemoryRepository {
	return &MemoryRepository{
		window:  window,
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

func (r *MemoryRepository) Fail(_ context.Context, eventID, client, role string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := getKey(KeyThrottle, eventID, client, role)

	e := r.entries[key]
	if e == nil || r.now().After(e.expiresAt) {
		e = &entry{expiresAt: r.now().Add(r.window)}
		r.entries[key] = e
	}

	e.count++

	return e.count, nil
}

func (r *MemoryRepository) Count(_ context.Context, eventID, client, role string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.entries[getKey(KeyThrottle, eventID, client, role)]
	if e == nil || r.now().After(e.expiresAt) {
		return 0, nil
	}

	return e.count, nil
}

func (r *MemoryRepository) Reset(_ context.Context, eventID, client, role string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.entries, getKey(KeyThrottle, eventID, client, role))

	return nil
}
