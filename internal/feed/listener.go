package feed

import (
	"sync"

	"github.com/smhkhrmn/thelastpenguin/internal/store"
	"go.uber.org/zap"
)

// Subscriber opens change-feed subscriptions.
type Subscriber interface {
	Subscribe(filter store.ChangeFilter) *store.Subscription
}

// WatchedChanges is the filter the realtime listener subscribes with.
var WatchedChanges = store.ChangeFilter{
	Collections: []store.Collection{
		store.CollectionSignals,
		store.CollectionMissions,
		store.CollectionComments,
		store.CollectionLikes,
	},
	Events: []store.EventType{store.EventInsert, store.EventUpdate},
}

// Listener holds at most one live subscription and hands every event to handle
// on a dedicated goroutine. Acquire replaces the subscription; Close releases it.
type Listener struct {
	subscriber Subscriber
	handle     func(store.ChangeEvent)
	logger     *zap.Logger

	mu           sync.Mutex
	subscription *store.Subscription
	closed       bool
	wg           sync.WaitGroup
}

// NewListener constructs an idle Listener.
func NewListener(subscriber Subscriber, handle func(store.ChangeEvent), logger *zap.Logger) *Listener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Listener{subscriber: subscriber, handle: handle, logger: logger}
}

// Acquire releases any current subscription and opens a new one.
func (l *Listener) Acquire() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.subscription.Close()
	subscription := l.subscriber.Subscribe(WatchedChanges)
	l.subscription = subscription
	l.logger.Debug("realtime subscription acquired",
		zap.String("operation", opListen),
		zap.String("subscription_id", subscription.ID()))

	l.wg.Add(1)
	go l.run(subscription)
}

// Active reports whether a subscription is currently held.
func (l *Listener) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.subscription != nil && !l.closed
}

// Close releases the subscription and waits for its goroutine to exit.
// Events already being handled run to completion.
func (l *Listener) Close() {
	l.mu.Lock()
	l.closed = true
	l.subscription.Close()
	l.subscription = nil
	l.mu.Unlock()
	l.wg.Wait()
}

func (l *Listener) run(subscription *store.Subscription) {
	defer l.wg.Done()
	for {
		select {
		case <-subscription.Done():
			return
		case event := <-subscription.Events():
			select {
			case <-subscription.Done():
				return
			default:
			}
			l.handle(event)
		}
	}
}
