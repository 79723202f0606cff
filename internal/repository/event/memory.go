package event

import (
	"context"
	"sync"

	"github.com/eventdrop/eventdrop/internal/common"
	"github.com/eventdrop/eventdrop/internal/entity"
)

// MemoryRepository keeps event records in process memory. Used when no redis
// URL is configured and by tests.
type MemoryRepository struct {
	mu     sync.RWMutex
	events map[string]entity.Event
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		events: make(map[string]entity.Event),
	}
}

func (r *MemoryRepository) Create(_ context.Context, ev *entity.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.events[ev.ID]; exists {
		return common.ErrEventIDTaken
	}

	r.events[ev.ID] = *ev

	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (*entity.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ev, exists := r.events[id]
	if !exists {
		return nil, common.ErrEventNotFound
	}

	return &ev, nil
}

func (r *MemoryRepository) Update(_ context.Context, ev *entity.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.events[ev.ID]; !exists {
		return common.ErrEventNotFound
	}

	r.events[ev.ID] = *ev

	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.events[id]; !exists {
		return common.ErrEventNotFound
	}

	delete(r.events, id)

	return nil
}
