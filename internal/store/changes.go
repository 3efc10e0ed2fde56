package store

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType is the kind of write that produced a change event.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

const defaultChangeBufferSize = 32

// ChangeEvent describes a committed write. Like and Comment are populated for
// their respective collections so listeners can inspect the new row.
type ChangeEvent struct {
	Collection Collection
	Type       EventType
	RecordIDs  []int64
	Like       *Like
	Comment    *Comment
	Timestamp  time.Time
}

// ChangeFilter selects the events a subscription receives. Empty slices match everything.
type ChangeFilter struct {
	Collections []Collection
	Events      []EventType
}

func (f ChangeFilter) matches(event ChangeEvent) bool {
	if len(f.Collections) > 0 && !containsCollection(f.Collections, event.Collection) {
		return false
	}
	if len(f.Events) > 0 && !containsEventType(f.Events, event.Type) {
		return false
	}
	return true
}

// ChangeFeed fans committed writes out to subscribers.
type ChangeFeed struct {
	mu          sync.RWMutex
	subscribers map[string]*changeSubscriber
	bufferSize  int
}

type changeSubscriber struct {
	id     string
	filter ChangeFilter
	stream chan ChangeEvent
	done   chan struct{}
}

// NewChangeFeed constructs an empty feed.
func NewChangeFeed() *ChangeFeed {
	return &ChangeFeed{
		subscribers: make(map[string]*changeSubscriber),
		bufferSize:  defaultChangeBufferSize,
	}
}

// Subscription is a live registration on the change feed. Close releases it.
type Subscription struct {
	id        string
	events    <-chan ChangeEvent
	done      chan struct{}
	closeOnce sync.Once
	release   func()
}

// ID returns the subscription identifier.
func (s *Subscription) ID() string {
	return s.id
}

// Events delivers matching change events until the subscription is closed.
func (s *Subscription) Events() <-chan ChangeEvent {
	return s.events
}

// Done is closed once the subscription has been released.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Close unregisters the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.closeOnce.Do(func() {
		if s.release != nil {
			s.release()
		}
		close(s.done)
	})
}

// Subscribe registers a new subscriber for the events matching filter.
func (f *ChangeFeed) Subscribe(filter ChangeFilter) *Subscription {
	subscriber := &changeSubscriber{
		id:     newSubscriptionID(),
		filter: filter,
		stream: make(chan ChangeEvent, f.bufferSize),
		done:   make(chan struct{}),
	}
	f.mu.Lock()
	f.subscribers[subscriber.id] = subscriber
	f.mu.Unlock()

	return &Subscription{
		id:     subscriber.id,
		events: subscriber.stream,
		done:   subscriber.done,
		release: func() {
			f.unregister(subscriber.id)
		},
	}
}

// Publish delivers event to every matching subscriber without blocking.
func (f *ChangeFeed) Publish(event ChangeEvent) {
	if event.Collection == "" || event.Type == "" {
		return
	}
	f.mu.RLock()
	matching := make([]*changeSubscriber, 0, len(f.subscribers))
	for _, subscriber := range f.subscribers {
		if subscriber.filter.matches(event) {
			matching = append(matching, subscriber)
		}
	}
	f.mu.RUnlock()
	for _, subscriber := range matching {
		select {
		case <-subscriber.done:
		case subscriber.stream <- event:
		default:
		}
	}
}

// SubscriberCount reports the number of live subscriptions.
func (f *ChangeFeed) SubscriberCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subscribers)
}

func (f *ChangeFeed) unregister(id string) {
	f.mu.Lock()
	delete(f.subscribers, id)
	f.mu.Unlock()
}

func newSubscriptionID() string {
	value, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return value.String()
}

func containsCollection(values []Collection, target Collection) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}

func containsEventType(values []EventType, target EventType) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}
