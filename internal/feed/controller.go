package feed

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smhkhrmn/thelastpenguin/internal/carousel"
	"github.com/smhkhrmn/thelastpenguin/internal/notify"
	"github.com/smhkhrmn/thelastpenguin/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	unknownSector      = "Unknown Sector"
	translationWorkers = 4
)

// Store is everything a Controller needs from the data layer.
type Store interface {
	Reader
	Subscriber
	GetSignal(ctx context.Context, id int64) (*store.Signal, error)
	InsertSignal(ctx context.Context, signal *store.Signal) error
	UpdateSignalTranslations(ctx context.Context, translations map[int64]string) error
	InsertComment(ctx context.Context, comment *store.Comment) error
	FindLike(ctx context.Context, userID string, signalID int64) (*store.Like, error)
	InsertLike(ctx context.Context, like *store.Like) error
	DeleteLike(ctx context.Context, like store.Like) error
	InsertMission(ctx context.Context, mission *store.Mission) error
	ProfilesByIDs(ctx context.Context, ids []string) ([]store.Profile, error)
}

// Translator renders text in English and returns the input on failure.
type Translator interface {
	Translate(ctx context.Context, text string) string
}

type passthroughTranslator struct{}

func (passthroughTranslator) Translate(_ context.Context, text string) string {
	return text
}

// Identity is the signed-in user as reported by the session.
type Identity struct {
	UserID      string
	DisplayName string
	AvatarURL   string
}

// EventKind names a pushed view update.
type EventKind string

const (
	EventFeed         EventKind = "feed"
	EventNotification EventKind = "notification"
)

// Event is pushed to OnEvent whenever the view or notifications change.
type Event struct {
	Kind    EventKind
	Payload any
}

// ControllerConfig wires a Controller.
type ControllerConfig struct {
	Store         Store
	Translator    Translator
	Identity      Identity
	Profile       *store.Profile
	Clock         func() time.Time
	Logger        *zap.Logger
	Recorder      Recorder
	DiscardStale  bool
	Notifications notify.Config
	OnEvent       func(Event)
}

// Controller is the per-session view state: feed, filter, search, carousel
// position, translation toggles, daily panel and notifications.
type Controller struct {
	store      Store
	translator Translator
	logger     *zap.Logger
	recorder   Recorder
	onEvent    func(Event)

	synchronizer *Synchronizer
	emitter      *notify.Emitter
	listener     *Listener
	navigator    carousel.Navigator

	mu            sync.RWMutex
	identity      Identity
	profile       *store.Profile
	filter        Frequency
	search        string
	globalEnglish bool
	translated    map[int64]bool
	dailyOpen     bool

	sending        atomic.Bool
	answering      atomic.Bool
	postingComment atomic.Bool
	postingMission atomic.Bool

	baseCtx context.Context
	cancel  context.CancelFunc
}

// NewController validates configuration and constructs an idle Controller.
// Start performs the first fetch and opens the realtime subscription.
func NewController(cfg ControllerConfig) (*Controller, error) {
	if cfg.Store == nil {
		return nil, newServiceError(opNewController, "missing_store", errMissingStore)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = noopRecorder{}
	}
	translator := cfg.Translator
	if translator == nil {
		translator = passthroughTranslator{}
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	controller := &Controller{
		store:      cfg.Store,
		translator: translator,
		logger:     logger.With(zap.String("user_id", cfg.Identity.UserID)),
		recorder:   recorder,
		onEvent:    cfg.OnEvent,
		identity:   cfg.Identity,
		profile:    cfg.Profile,
		filter:     FrequencyAll,
		translated: make(map[int64]bool),
		baseCtx:    baseCtx,
		cancel:     cancel,
	}

	synchronizer, err := NewSynchronizer(SynchronizerConfig{
		Reader:       cfg.Store,
		Clock:        cfg.Clock,
		Logger:       logger,
		Recorder:     recorder,
		DiscardStale: cfg.DiscardStale,
		OnChange: func(Snapshot) {
			controller.emit(EventFeed, nil)
		},
	})
	if err != nil {
		cancel()
		return nil, err
	}
	controller.synchronizer = synchronizer

	notificationConfig := cfg.Notifications
	if notificationConfig.Clock == nil {
		notificationConfig.Clock = cfg.Clock
	}
	notificationConfig.OnChange = func(items []notify.Notification) {
		controller.emit(EventNotification, items)
	}
	controller.emitter = notify.NewEmitter(notificationConfig)
	controller.listener = NewListener(cfg.Store, controller.handleChange, logger)
	return controller, nil
}

// Start opens the realtime subscription and performs the first fetch.
func (c *Controller) Start(ctx context.Context) {
	c.listener.Acquire()
	c.synchronizer.FetchSignals(ctx, c.currentFilter())
}

// Close releases the subscription and pending notification timers.
func (c *Controller) Close() {
	c.cancel()
	c.listener.Close()
	c.emitter.Close()
}

// Identity returns the session identity.
func (c *Controller) Identity() Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity
}

// SetProfile replaces the profile and re-acquires the realtime subscription.
func (c *Controller) SetProfile(profile *store.Profile) {
	c.mu.Lock()
	c.profile = profile
	c.mu.Unlock()
	c.listener.Acquire()
	c.emit(EventFeed, nil)
}

// SetFilter changes the frequency filter. The carousel returns to the first
// card before the new fetch starts.
func (c *Controller) SetFilter(ctx context.Context, value string) error {
	frequency, ok := ParseFilter(value)
	if !ok {
		return ErrInvalidFrequency
	}
	c.mu.Lock()
	c.filter = frequency
	c.mu.Unlock()
	c.navigator.Reset()
	c.synchronizer.FetchSignals(ctx, frequency)
	return nil
}

// SetSearch sets the free-text query applied to the loaded feed.
func (c *Controller) SetSearch(query string) {
	c.mu.Lock()
	c.search = strings.TrimSpace(query)
	c.mu.Unlock()
	c.navigator.Reset()
	c.emit(EventFeed, nil)
}

// Next moves to the next visible card.
func (c *Controller) Next() int {
	index := c.navigator.Next(len(c.visibleSignals()))
	c.emit(EventFeed, nil)
	return index
}

// Prev moves to the previous visible card.
func (c *Controller) Prev() int {
	index := c.navigator.Prev(len(c.visibleSignals()))
	c.emit(EventFeed, nil)
	return index
}

// Release applies a horizontal drag release.
func (c *Controller) Release(offsetX float64) carousel.ReleaseAction {
	action := c.navigator.Release(offsetX, len(c.visibleSignals()))
	if action != carousel.ReleaseSnap {
		c.emit(EventFeed, nil)
	}
	return action
}

// SetGlobalEnglish toggles English rendering for every card. Turning it on
// translates each signal lacking a translation and stores the results.
func (c *Controller) SetGlobalEnglish(ctx context.Context, enabled bool) {
	c.mu.Lock()
	c.globalEnglish = enabled
	c.mu.Unlock()
	if !enabled {
		c.emit(EventFeed, nil)
		return
	}

	snapshot := c.synchronizer.Snapshot()
	pending := make(map[int64]string)
	for _, list := range [][]EnrichedSignal{snapshot.Signals, snapshot.Responses} {
		for _, signal := range list {
			if signal.TranslationText() == "" {
				pending[signal.ID] = signal.Content
			}
		}
	}
	if len(pending) == 0 {
		c.emit(EventFeed, nil)
		return
	}

	results := c.translateAll(ctx, pending)
	c.synchronizer.ApplyTranslations(results)

	persist := make(map[int64]string, len(results))
	for id, translated := range results {
		if translated != pending[id] {
			persist[id] = translated
		}
	}
	if err := c.store.UpdateSignalTranslations(ctx, persist); err != nil {
		c.logError(opTranslate, "persist_failed", err, zap.Int("count", len(persist)))
	}
}

// TranslateSignal flips the per-card translation toggle and reports whether
// the card now shows its translation.
func (c *Controller) TranslateSignal(ctx context.Context, signalID int64) (bool, error) {
	c.mu.Lock()
	if c.translated[signalID] {
		c.translated[signalID] = false
		c.mu.Unlock()
		c.emit(EventFeed, nil)
		return false, nil
	}
	c.mu.Unlock()

	signal, ok := c.findLoaded(signalID)
	if !ok {
		return false, ErrSignalNotFound
	}
	if signal.TranslationText() == "" {
		translated := c.translator.Translate(ctx, signal.Content)
		c.synchronizer.ApplyTranslations(map[int64]string{signalID: translated})
		if translated != signal.Content {
			if err := c.store.UpdateSignalTranslations(ctx, map[int64]string{signalID: translated}); err != nil {
				c.logError(opTranslate, "persist_failed", err, zap.Int64("signal_id", signalID))
			}
		}
	}

	c.mu.Lock()
	c.translated[signalID] = true
	c.mu.Unlock()
	c.emit(EventFeed, nil)
	return true, nil
}

// SetDailyOpen opens or closes the daily question panel. Opening loads the
// responses; both directions re-acquire the realtime subscription.
func (c *Controller) SetDailyOpen(ctx context.Context, open bool) error {
	question := c.synchronizer.Snapshot().Question
	if open && question == nil {
		return ErrNoDailyQuestion
	}
	c.mu.Lock()
	c.dailyOpen = open
	c.mu.Unlock()
	c.listener.Acquire()
	if open {
		c.synchronizer.FetchDailyResponses(ctx, question.ID)
		return nil
	}
	c.emit(EventFeed, nil)
	return nil
}

// DailyResponses returns the loaded daily responses as cards.
func (c *Controller) DailyResponses() []CardView {
	return c.View().DailyResponses
}

// Notifications lists live notifications, newest first.
func (c *Controller) Notifications() []notify.Notification {
	return c.emitter.List()
}

func (c *Controller) handleChange(event store.ChangeEvent) {
	ctx := c.baseCtx
	if ctx.Err() != nil {
		return
	}
	if event.Type == store.EventInsert {
		switch event.Collection {
		case store.CollectionLikes:
			if event.Like != nil {
				c.notifyLike(ctx, *event.Like)
			}
		case store.CollectionComments:
			if event.Comment != nil {
				c.notifyReply(*event.Comment)
			}
		}
	}
	c.refresh(ctx)
}

func (c *Controller) notifyLike(ctx context.Context, like store.Like) {
	identity, username := c.viewer()
	if username == "" || like.UserID == identity.UserID {
		return
	}
	signal, err := c.store.GetSignal(ctx, like.SignalID)
	if err != nil {
		c.logger.Debug("like notification lookup failed", zap.Int64("signal_id", like.SignalID), zap.Error(err))
		return
	}
	if signal.Author != username {
		return
	}
	country := unknownSector
	senders, err := c.store.ProfilesByIDs(ctx, []string{like.UserID})
	if err == nil && len(senders) > 0 && strings.TrimSpace(senders[0].Country) != "" {
		country = senders[0].Country
	}
	c.emitter.Add(fmt.Sprintf("New signal from %s! 📡", country))
	c.recorder.ObserveNotification()
}

func (c *Controller) notifyReply(comment store.Comment) {
	_, username := c.viewer()
	if username == "" || comment.ReplyTo == nil || *comment.ReplyTo != username || comment.Author == username {
		return
	}
	c.emitter.Add(fmt.Sprintf("%s answered your transmission 💬", comment.Author))
	c.recorder.ObserveNotification()
}

// refresh re-runs the synchronizer, including the daily responses when open.
func (c *Controller) refresh(ctx context.Context) {
	c.synchronizer.FetchSignals(ctx, c.currentFilter())
	c.mu.RLock()
	open := c.dailyOpen
	c.mu.RUnlock()
	if !open {
		return
	}
	if question := c.synchronizer.Snapshot().Question; question != nil {
		c.synchronizer.FetchDailyResponses(ctx, question.ID)
	}
}

func (c *Controller) translateAll(ctx context.Context, pending map[int64]string) map[int64]string {
	var mu sync.Mutex
	results := make(map[int64]string, len(pending))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(translationWorkers)
	for id, content := range pending {
		group.Go(func() error {
			translated := c.translator.Translate(groupCtx, content)
			mu.Lock()
			results[id] = translated
			mu.Unlock()
			return nil
		})
	}
	_ = group.Wait()
	return results
}

func (c *Controller) findLoaded(signalID int64) (EnrichedSignal, bool) {
	snapshot := c.synchronizer.Snapshot()
	for _, list := range [][]EnrichedSignal{snapshot.Signals, snapshot.Responses} {
		for _, signal := range list {
			if signal.ID == signalID {
				return signal, true
			}
		}
	}
	return EnrichedSignal{}, false
}

func (c *Controller) currentFilter() Frequency {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.filter
}

func (c *Controller) viewer() (Identity, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	username := ""
	if c.profile != nil {
		username = c.profile.Username
	}
	return c.identity, username
}

func (c *Controller) emit(kind EventKind, payload any) {
	if c.onEvent == nil {
		return
	}
	if kind == EventFeed {
		payload = c.View()
	}
	c.onEvent(Event{Kind: kind, Payload: payload})
}

func (c *Controller) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	c.logger.Error("feed service error", attrs...)
}
