package server

import (
	"context"
	"sync"
	"time"
)

const (
	RealtimeEventFeed         = "feed"
	RealtimeEventNotification = "notification"
	realtimeEventHeartbeat    = "heartbeat"

	defaultRealtimeBuffer = 16
)

// RealtimeMessage is one server-sent event addressed to a user.
type RealtimeMessage struct {
	UserID    string
	EventType string
	Payload   any
	Timestamp time.Time
}

// RealtimeDispatcher fans view updates out to every open stream of a user.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[string]map[int64]*realtimeSubscriber),
		bufferSize:  defaultRealtimeBuffer,
	}
}

// Subscribe registers a stream for userID until ctx ends or cleanup is called.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context, userID string) (<-chan RealtimeMessage, func()) {
	if userID == "" {
		ch := make(chan RealtimeMessage)
		close(ch)
		return ch, func() {}
	}
	subscriber := &realtimeSubscriber{stream: make(chan RealtimeMessage, d.bufferSize)}
	d.register(userID, subscriber)

	var once sync.Once
	cleanup := func() {
		once.Do(func() { d.unregister(userID, subscriber.id) })
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Publish delivers message to the user's streams. A full stream loses its
// oldest pending message so the newest view always gets through.
func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.UserID == "" || message.EventType == "" {
		return
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now().UTC()
	}
	d.mu.RLock()
	targets := make([]*realtimeSubscriber, 0, len(d.subscribers[message.UserID]))
	for _, subscriber := range d.subscribers[message.UserID] {
		targets = append(targets, subscriber)
	}
	d.mu.RUnlock()

	for _, subscriber := range targets {
		select {
		case subscriber.stream <- message:
			continue
		default:
		}
		select {
		case <-subscriber.stream:
		default:
		}
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

// SubscriberCount reports how many streams userID has open.
func (d *RealtimeDispatcher) SubscriberCount(userID string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers[userID])
}

func (d *RealtimeDispatcher) register(userID string, subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	subscriber.id = d.nextID
	if _, ok := d.subscribers[userID]; !ok {
		d.subscribers[userID] = make(map[int64]*realtimeSubscriber)
	}
	d.subscribers[userID][subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregister(userID string, subscriberID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	subscribers := d.subscribers[userID]
	if subscribers == nil {
		return
	}
	delete(subscribers, subscriberID)
	if len(subscribers) == 0 {
		delete(d.subscribers, userID)
	}
}
