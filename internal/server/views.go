package server

import (
	"context"
	"sync"
	"time"

	"github.com/smhkhrmn/thelastpenguin/internal/feed"
	"github.com/smhkhrmn/thelastpenguin/internal/store"
	"go.uber.org/zap"
)

// ViewFactory builds an unstarted controller for a signed-in user.
type ViewFactory func(identity feed.Identity, profile *store.Profile) (*feed.Controller, error)

// ViewRegistry keeps one live feed controller per user.
type ViewRegistry struct {
	factory  ViewFactory
	clock    func() time.Time
	logger   *zap.Logger
	observer func(count int)

	mu    sync.Mutex
	views map[string]*viewEntry
}

type viewEntry struct {
	controller *feed.Controller
	lastSeen   time.Time
}

// NewViewRegistry constructs a registry. observer, when set, receives the
// number of live views after every change.
func NewViewRegistry(factory ViewFactory, clock func() time.Time, logger *zap.Logger, observer func(int)) *ViewRegistry {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ViewRegistry{
		factory:  factory,
		clock:    clock,
		logger:   logger,
		observer: observer,
		views:    make(map[string]*viewEntry),
	}
}

// Acquire returns the user's controller, creating and starting it on first use.
func (r *ViewRegistry) Acquire(ctx context.Context, identity feed.Identity, profile *store.Profile) (*feed.Controller, error) {
	if controller, ok := r.touch(identity.UserID); ok {
		return controller, nil
	}

	controller, err := r.factory(identity, profile)
	if err != nil {
		return nil, err
	}
	controller.Start(ctx)

	r.mu.Lock()
	if existing, ok := r.views[identity.UserID]; ok {
		existing.lastSeen = r.clock()
		r.mu.Unlock()
		controller.Close()
		return existing.controller, nil
	}
	r.views[identity.UserID] = &viewEntry{controller: controller, lastSeen: r.clock()}
	count := len(r.views)
	r.mu.Unlock()

	r.logger.Debug("feed view opened", zap.String("user_id", identity.UserID))
	r.observe(count)
	return controller, nil
}

// Get returns an existing controller without creating one.
func (r *ViewRegistry) Get(userID string) (*feed.Controller, bool) {
	return r.touch(userID)
}

// Count reports the number of live controllers.
func (r *ViewRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}

// Sweep closes views idle for longer than idle unless keep reports the user
// as still connected. It returns how many views were closed.
func (r *ViewRegistry) Sweep(idle time.Duration, keep func(userID string) bool) int {
	cutoff := r.clock().Add(-idle)
	var closing []*feed.Controller

	r.mu.Lock()
	for userID, entry := range r.views {
		if entry.lastSeen.After(cutoff) || (keep != nil && keep(userID)) {
			continue
		}
		closing = append(closing, entry.controller)
		delete(r.views, userID)
	}
	count := len(r.views)
	r.mu.Unlock()

	for _, controller := range closing {
		controller.Close()
	}
	if len(closing) > 0 {
		r.logger.Debug("idle feed views closed", zap.Int("closed", len(closing)))
		r.observe(count)
	}
	return len(closing)
}

// CloseAll closes every controller.
func (r *ViewRegistry) CloseAll() {
	r.mu.Lock()
	views := r.views
	r.views = make(map[string]*viewEntry)
	r.mu.Unlock()

	for _, entry := range views {
		entry.controller.Close()
	}
	r.observe(0)
}

func (r *ViewRegistry) touch(userID string) (*feed.Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.views[userID]
	if !ok {
		return nil, false
	}
	entry.lastSeen = r.clock()
	return entry.controller, true
}

func (r *ViewRegistry) observe(count int) {
	if r.observer != nil {
		r.observer(count)
	}
}
