package feed

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/smhkhrmn/thelastpenguin/internal/store"
	"gorm.io/gorm"
)

var errStubFailure = errors.New("stub failure")

func newTestStore(t *testing.T, clock func() time.Time) *store.Client {
	t.Helper()
	database, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "feed.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := database.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := database.AutoMigrate(store.Models()...); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	client, err := store.NewClient(store.ClientConfig{Database: database, Clock: clock})
	if err != nil {
		t.Fatalf("failed to construct store client: %v", err)
	}
	return client
}

func seedProfile(t *testing.T, client *store.Client, profile store.Profile) *store.Profile {
	t.Helper()
	if err := client.InsertProfile(context.Background(), &profile); err != nil {
		t.Fatalf("failed to seed profile: %v", err)
	}
	return &profile
}

func newTestController(t *testing.T, dataStore Store, identity Identity, profile *store.Profile, translator Translator) *Controller {
	t.Helper()
	controller, err := NewController(ControllerConfig{
		Store:      dataStore,
		Translator: translator,
		Identity:   identity,
		Profile:    profile,
	})
	if err != nil {
		t.Fatalf("failed to construct controller: %v", err)
	}
	controller.Start(context.Background())
	t.Cleanup(controller.Close)
	return controller
}

func waitFor(t *testing.T, description string, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", description)
}

type suffixTranslator struct {
	calls atomic.Int32
}

func (s *suffixTranslator) Translate(_ context.Context, text string) string {
	s.calls.Add(1)
	return text + " [en]"
}

// blockingTranslator holds every call until release is closed.
type blockingTranslator struct {
	entered chan struct{}
	release chan struct{}
}

func newBlockingTranslator() *blockingTranslator {
	return &blockingTranslator{entered: make(chan struct{}, 8), release: make(chan struct{})}
}

func (b *blockingTranslator) Translate(_ context.Context, text string) string {
	b.entered <- struct{}{}
	<-b.release
	return text
}

// countingStore records writes and can inject failures in front of a real client.
type countingStore struct {
	*store.Client
	missionInserts   atomic.Int32
	signalInserts    atomic.Int32
	failSignalInsert error
}

func (s *countingStore) InsertMission(ctx context.Context, mission *store.Mission) error {
	s.missionInserts.Add(1)
	return s.Client.InsertMission(ctx, mission)
}

func (s *countingStore) InsertSignal(ctx context.Context, signal *store.Signal) error {
	s.signalInserts.Add(1)
	if s.failSignalInsert != nil {
		return s.failSignalInsert
	}
	return s.Client.InsertSignal(ctx, signal)
}

// stubReader serves canned reads. listSignals overrides the signal read when set.
type stubReader struct {
	mu          sync.Mutex
	signals     []store.Signal
	signalsErr  error
	listSignals func(ctx context.Context, query store.SignalQuery) ([]store.Signal, error)
	profiles    []store.Profile
	profileErr  error
	question    *store.DailyQuestion
	missions    []store.Mission
	profileCall atomic.Int32
}

func (s *stubReader) ListSignals(ctx context.Context, query store.SignalQuery) ([]store.Signal, error) {
	s.mu.Lock()
	override := s.listSignals
	signals, err := s.signals, s.signalsErr
	s.mu.Unlock()
	if override != nil {
		return override(ctx, query)
	}
	return signals, err
}

func (s *stubReader) ProfilesByUsernames(_ context.Context, names []string) ([]store.Profile, error) {
	s.profileCall.Add(1)
	return s.profiles, s.profileErr
}

func (s *stubReader) LatestDailyQuestion(context.Context) (*store.DailyQuestion, error) {
	return s.question, nil
}

func (s *stubReader) ListMissions(context.Context) ([]store.Mission, error) {
	return s.missions, nil
}

func (s *stubReader) setSignals(signals []store.Signal, err error) {
	s.mu.Lock()
	s.signals, s.signalsErr = signals, err
	s.mu.Unlock()
}
