package progress

import (
	"context"
	"sync"
)

// Hub hands out one started tracker per profile
type Hub struct {
	db   Database
	kv   KeyValue
	opts []Option

	mu       sync.Mutex
	trackers map[string]*Tracker
}

func NewHub(db Database, kv KeyValue, opts ...Option) *Hub {
	return &Hub{db: db, kv: kv, opts: opts, trackers: map[string]*Tracker{}}
}

// Get returns the tracker for profileKey, creating and starting it on first use
func (h *Hub) Get(ctx context.Context, profileKey string) *Tracker {
	h.mu.Lock()
	defer h.mu.Unlock()

	t, ok := h.trackers[profileKey]
	if !ok {
		t = NewTracker(profileKey, h.db, h.kv, h.opts...)
		t.Start(context.WithoutCancel(ctx))
		h.trackers[profileKey] = t
	}
	return t
}
