package server

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/smhkhrmn/thelastpenguin/internal/feed"
	"github.com/smhkhrmn/thelastpenguin/internal/store"
	"go.uber.org/zap"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestRegistry(t *testing.T, clock *manualClock, observed *[]int) *ViewRegistry {
	t.Helper()
	client := newTestServer(t, nil).store
	factory := func(identity feed.Identity, profile *store.Profile) (*feed.Controller, error) {
		return feed.NewController(feed.ControllerConfig{Store: client, Identity: identity, Profile: profile, Clock: clock.Now})
	}
	registry := NewViewRegistry(factory, clock.Now, zap.NewNop(), func(count int) {
		*observed = append(*observed, count)
	})
	t.Cleanup(registry.CloseAll)
	return registry
}

func TestViewRegistryReusesControllerPerUser(t *testing.T) {
	clock := &manualClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	var observed []int
	registry := newTestRegistry(t, clock, &observed)

	first, err := registry.Acquire(context.Background(), feed.Identity{UserID: "user-a"}, &store.Profile{ID: "user-a"})
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	second, err := registry.Acquire(context.Background(), feed.Identity{UserID: "user-a"}, &store.Profile{ID: "user-a"})
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if first != second {
		t.Fatalf("expected the same controller for one user")
	}
	if _, err := registry.Acquire(context.Background(), feed.Identity{UserID: "user-b"}, &store.Profile{ID: "user-b"}); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if registry.Count() != 2 {
		t.Fatalf("expected 2 views, got %d", registry.Count())
	}
	if len(observed) != 2 || observed[1] != 2 {
		t.Fatalf("unexpected observed counts %v", observed)
	}
	if _, ok := registry.Get("user-c"); ok {
		t.Fatalf("expected Get to skip unknown users")
	}
}

func TestViewRegistrySweepClosesIdleViews(t *testing.T) {
	clock := &manualClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	var observed []int
	registry := newTestRegistry(t, clock, &observed)

	for _, userID := range []string{"idle", "streaming", "active"} {
		if _, err := registry.Acquire(context.Background(), feed.Identity{UserID: userID}, &store.Profile{ID: userID}); err != nil {
			t.Fatalf("acquire %s failed: %v", userID, err)
		}
	}
	clock.Advance(45 * time.Minute)
	if _, ok := registry.Get("active"); !ok {
		t.Fatalf("expected active view")
	}

	closed := registry.Sweep(30*time.Minute, func(userID string) bool { return userID == "streaming" })
	if closed != 1 {
		t.Fatalf("expected one closed view, got %d", closed)
	}
	if _, ok := registry.Get("idle"); ok {
		t.Fatalf("expected idle view to be closed")
	}
	if registry.Count() != 2 {
		t.Fatalf("expected 2 remaining views, got %d", registry.Count())
	}
	if observed[len(observed)-1] != 2 {
		t.Fatalf("expected observer to see 2 views, got %v", observed)
	}
}
