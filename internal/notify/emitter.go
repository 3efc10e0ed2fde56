// Package notify keeps the short-lived toast notifications raised by realtime events.
package notify

import (
	"sync"
	"time"
)

// DefaultTTL is how long a notification stays listed.
const DefaultTTL = 6 * time.Second

// Notification is a single toast message.
type Notification struct {
	ID        int64     `json:"id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Timer is a scheduled removal that can be cancelled.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type wallScheduler struct{}

func (wallScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Config wires an Emitter. Zero values select the wall clock, a 6s TTL and no cap.
type Config struct {
	Clock     func() time.Time
	Scheduler Scheduler
	TTL       time.Duration
	MaxItems  int
	OnChange  func([]Notification)
}

// Emitter owns an ordered, newest-first list of notifications, each removed
// independently once its TTL elapses.
type Emitter struct {
	mu        sync.Mutex
	clock     func() time.Time
	scheduler Scheduler
	ttl       time.Duration
	maxItems  int
	onChange  func([]Notification)
	items     []Notification
	timers    map[int64]Timer
	lastID    int64
	closed    bool
}

// NewEmitter constructs an Emitter.
func NewEmitter(cfg Config) *Emitter {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	scheduler := cfg.Scheduler
	if scheduler == nil {
		scheduler = wallScheduler{}
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	maxItems := cfg.MaxItems
	if maxItems < 0 {
		maxItems = 0
	}
	return &Emitter{
		clock:     clock,
		scheduler: scheduler,
		ttl:       ttl,
		maxItems:  maxItems,
		onChange:  cfg.OnChange,
		timers:    make(map[int64]Timer),
	}
}

// Add prepends a notification and schedules its removal.
func (e *Emitter) Add(message string) Notification {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return Notification{}
	}
	now := e.clock()
	id := now.UnixMilli()
	if id <= e.lastID {
		id = e.lastID + 1
	}
	e.lastID = id
	notification := Notification{ID: id, Message: message, CreatedAt: now}
	e.items = append([]Notification{notification}, e.items...)
	e.timers[id] = e.scheduler.AfterFunc(e.ttl, func() {
		e.remove(id)
	})
	if e.maxItems > 0 {
		for len(e.items) > e.maxItems {
			evicted := e.items[len(e.items)-1]
			e.items = e.items[:len(e.items)-1]
			if timer, ok := e.timers[evicted.ID]; ok {
				timer.Stop()
				delete(e.timers, evicted.ID)
			}
		}
	}
	snapshot := e.snapshotLocked()
	e.mu.Unlock()

	e.notify(snapshot)
	return notification
}

// List returns the current notifications, newest first.
func (e *Emitter) List() []Notification {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Close cancels pending removals and rejects further additions.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	for id, timer := range e.timers {
		timer.Stop()
		delete(e.timers, id)
	}
}

func (e *Emitter) remove(id int64) {
	e.mu.Lock()
	if _, ok := e.timers[id]; !ok {
		e.mu.Unlock()
		return
	}
	delete(e.timers, id)
	for index, item := range e.items {
		if item.ID == id {
			e.items = append(e.items[:index], e.items[index+1:]...)
			break
		}
	}
	snapshot := e.snapshotLocked()
	e.mu.Unlock()

	e.notify(snapshot)
}

func (e *Emitter) snapshotLocked() []Notification {
	out := make([]Notification, len(e.items))
	copy(out, e.items)
	return out
}

func (e *Emitter) notify(snapshot []Notification) {
	if e.onChange != nil {
		e.onChange(snapshot)
	}
}
