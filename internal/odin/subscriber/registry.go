package subscriber

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Store persists the whole subscriber list as a single blob.
type Store interface {
	// Load returns the persisted list, creating an empty one when absent.
	Load(ctx context.Context) ([]int64, error)
	// Save replaces the persisted list.
	Save(ctx context.Context, ids []int64) error
}

// Registry is the set of chat ids receiving alerts. Every mutation is
// written through to the Store before the call returns.
type Registry struct {
	store  Store
	logger *zap.Logger

	mu  sync.Mutex
	ids map[int64]struct{}
}

func NewRegistry(store Store, logger *zap.Logger) *Registry {
	return &Registry{
		store:  store,
		logger: logger,
		ids:    make(map[int64]struct{}),
	}
}

// Load replaces the in-memory set with the persisted list.
func (r *Registry) Load(ctx context.Context) error {
	ids, err := r.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load subscribers: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		r.ids[id] = struct{}{}
	}
	r.logger.Info("loaded subscribers", zap.Int("count", len(r.ids)))
	return nil
}

// Add registers id. It reports false when id was already registered.
// On a persist error the in-memory set keeps the change.
func (r *Registry) Add(ctx context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.ids[id]; ok {
		return false, nil
	}
	r.ids[id] = struct{}{}
	return true, r.persistLocked(ctx)
}

// Remove deregisters id. It reports false when id was not registered.
func (r *Registry) Remove(ctx context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.ids[id]; !ok {
		return false, nil
	}
	delete(r.ids, id)
	return true, r.persistLocked(ctx)
}

func (r *Registry) Contains(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.ids[id]
	return ok
}

// Snapshot returns a sorted copy of the registered ids.
func (r *Registry) Snapshot() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sortedLocked()
}

func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ids)
}

// persistLocked saves under the lock so writes land in mutation order.
func (r *Registry) persistLocked(ctx context.Context) error {
	ids := r.sortedLocked()
	if err := r.store.Save(ctx, ids); err != nil {
		return fmt.Errorf("save subscribers: %w", err)
	}
	r.logger.Debug("saved subscribers", zap.Int("count", len(ids)))
	return nil
}

func (r *Registry) sortedLocked() []int64 {
	out := make([]int64, 0, len(r.ids))
	for id := range r.ids {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
