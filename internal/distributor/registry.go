package distributor

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clipfeed/admin-dashboard/internal/snapshot"
)

// Callback receives every accepted snapshot. Implementations must treat the
// snapshot as read-only.
type Callback func(snapshot.Snapshot)

type subscriber struct {
	label string
	fn    Callback
}

// Registry fans accepted updates out to registered consumers. A consumer
// that panics is isolated and logged; it never blocks delivery to the rest.
type Registry struct {
	mu     sync.RWMutex
	subs   map[string]subscriber
	logger *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		subs:   make(map[string]subscriber),
		logger: logger,
	}
}

// Subscribe registers a consumer callback. The returned id combines the
// label, a timestamp, and a random component so rapid re-subscription of
// the same view never collides.
func (r *Registry) Subscribe(label string, fn Callback) string {
	id := fmt.Sprintf("%s-%d-%s", label, time.Now().UnixMilli(), uuid.NewString()[:8])

	r.mu.Lock()
	r.subs[id] = subscriber{label: label, fn: fn}
	r.mu.Unlock()

	r.logger.Debug("subscriber registered",
		zap.String("label", label),
		zap.String("id", id),
	)
	return id
}

// Unsubscribe removes a subscription. Returns false if the id is unknown,
// so double-unsubscribe is safe.
func (r *Registry) Unsubscribe(id string) bool {
	r.mu.Lock()
	_, ok := r.subs[id]
	delete(r.subs, id)
	r.mu.Unlock()

	if ok {
		r.logger.Debug("subscriber removed", zap.String("id", id))
	}
	return ok
}

// Count returns the number of registered subscribers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// NotifyAll delivers snap to every subscriber. Iteration runs over a copy
// of the registry, so a callback may subscribe or unsubscribe without
// corrupting the broadcast in progress. Each subscriber gets its own
// shallow copy of the snapshot.
func (r *Registry) NotifyAll(snap snapshot.Snapshot) {
	r.mu.RLock()
	targets := make([]subscriber, 0, len(r.subs))
	ids := make([]string, 0, len(r.subs))
	for id, sub := range r.subs {
		targets = append(targets, sub)
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for i, sub := range targets {
		r.deliver(ids[i], sub, snap.Clone())
	}
}

func (r *Registry) deliver(id string, sub subscriber, snap snapshot.Snapshot) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("subscriber callback panicked",
				zap.String("label", sub.label),
				zap.String("id", id),
				zap.Any("panic", rec),
			)
		}
	}()
	sub.fn(snap)
}
