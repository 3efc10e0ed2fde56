package feed

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smhkhrmn/thelastpenguin/internal/profiles"
	"github.com/smhkhrmn/thelastpenguin/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// MissionWindow is how long a mission stays listed after creation.
const MissionWindow = 7 * 24 * time.Hour

const (
	partSignals   = "signals"
	partQuestion  = "question"
	partMissions  = "missions"
	partResponses = "responses"
	partProfiles  = "profiles"
)

// Reader is the read side of the data store used by the Synchronizer.
type Reader interface {
	ListSignals(ctx context.Context, query store.SignalQuery) ([]store.Signal, error)
	ProfilesByUsernames(ctx context.Context, names []string) ([]store.Profile, error)
	LatestDailyQuestion(ctx context.Context) (*store.DailyQuestion, error)
	ListMissions(ctx context.Context) ([]store.Mission, error)
}

// Recorder receives operational counters.
type Recorder interface {
	ObserveFetch(part string, err error)
	ObserveMutation(action string, err error)
	ObserveNotification()
}

type noopRecorder struct{}

func (noopRecorder) ObserveFetch(string, error)    {}
func (noopRecorder) ObserveMutation(string, error) {}
func (noopRecorder) ObserveNotification()          {}

// EnrichedSignal is a signal with its author's current profile fields applied.
type EnrichedSignal struct {
	store.Signal
	AuthorAvatar     string `json:"author_avatar"`
	AuthorCountry    string `json:"author_country"`
	AuthorOccupation string `json:"author_occupation"`
}

// MissionView is a mission with its contact details parsed.
type MissionView struct {
	store.Mission
	Contact store.ParsedContact `json:"contact"`
}

// Snapshot is the synchronized read state.
type Snapshot struct {
	Signals   []EnrichedSignal     `json:"signals"`
	Question  *store.DailyQuestion `json:"daily_question"`
	Missions  []MissionView        `json:"missions"`
	Responses []EnrichedSignal     `json:"daily_responses"`
	Loading   bool                 `json:"loading"`
}

// SynchronizerConfig wires a Synchronizer.
type SynchronizerConfig struct {
	Reader   Reader
	Clock    func() time.Time
	Logger   *zap.Logger
	Recorder Recorder
	// DiscardStale drops fetch results once a newer fetch has been issued.
	// When false the last fetch to resolve wins.
	DiscardStale bool
	OnChange     func(Snapshot)
}

// Synchronizer owns the in-memory feed, daily question, missions and daily
// responses. It is the only writer of that state.
type Synchronizer struct {
	reader       Reader
	clock        func() time.Time
	logger       *zap.Logger
	recorder     Recorder
	discardStale bool
	onChange     func(Snapshot)

	signalsGen   atomic.Uint64
	responsesGen atomic.Uint64

	mu    sync.RWMutex
	state Snapshot
}

// NewSynchronizer validates configuration and constructs a Synchronizer.
func NewSynchronizer(cfg SynchronizerConfig) (*Synchronizer, error) {
	if cfg.Reader == nil {
		return nil, newServiceError(opNewSynchronizer, "missing_store", errMissingStore)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &Synchronizer{
		reader:       cfg.Reader,
		clock:        clock,
		logger:       logger,
		recorder:     recorder,
		discardStale: cfg.DiscardStale,
		onChange:     cfg.OnChange,
	}, nil
}

// Snapshot returns a copy of the current state.
func (s *Synchronizer) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Signals:   append([]EnrichedSignal(nil), s.state.Signals...),
		Question:  s.state.Question,
		Missions:  append([]MissionView(nil), s.state.Missions...),
		Responses: append([]EnrichedSignal(nil), s.state.Responses...),
		Loading:   s.state.Loading,
	}
}

// Loading reports whether the first fetch is still in flight.
func (s *Synchronizer) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Loading
}

// FetchSignals reloads the feed for frequency together with the newest daily
// question and the active missions. Parts that fail keep their prior state.
func (s *Synchronizer) FetchSignals(ctx context.Context, frequency Frequency) {
	generation := s.signalsGen.Add(1)

	s.mu.Lock()
	if len(s.state.Signals) == 0 {
		s.state.Loading = true
	}
	s.mu.Unlock()

	result := s.load(ctx, frequency)

	s.mu.Lock()
	if s.discardStale && generation != s.signalsGen.Load() {
		s.mu.Unlock()
		s.logger.Debug("discarding superseded feed fetch", zap.Uint64("generation", generation))
		return
	}
	if result.signalsErr == nil {
		s.state.Signals = result.signals
	}
	if result.questionErr == nil && result.question != nil {
		s.state.Question = result.question
	}
	if result.missionsErr == nil {
		s.state.Missions = result.missions
	}
	s.state.Loading = false
	s.mu.Unlock()

	s.changed()
}

// FetchDailyResponses reloads the signals answering questionID.
func (s *Synchronizer) FetchDailyResponses(ctx context.Context, questionID int64) {
	generation := s.responsesGen.Add(1)
	signals, err := s.listEnriched(ctx, store.SignalQuery{DailyQuestionID: &questionID})
	s.recorder.ObserveFetch(partResponses, err)
	if err != nil {
		s.logFetchFailure(partResponses, err)
		return
	}

	s.mu.Lock()
	if s.discardStale && generation != s.responsesGen.Load() {
		s.mu.Unlock()
		return
	}
	s.state.Responses = signals
	s.mu.Unlock()

	s.changed()
}

// ClearResponses empties the daily responses.
func (s *Synchronizer) ClearResponses() {
	s.responsesGen.Add(1)
	s.mu.Lock()
	s.state.Responses = nil
	s.mu.Unlock()
	s.changed()
}

// ApplyTranslations sets cached translations on signals already in memory.
func (s *Synchronizer) ApplyTranslations(translations map[int64]string) {
	if len(translations) == 0 {
		return
	}
	s.mu.Lock()
	for _, list := range [][]EnrichedSignal{s.state.Signals, s.state.Responses} {
		for index := range list {
			if translated, ok := translations[list[index].ID]; ok {
				value := translated
				list[index].Translation = &value
			}
		}
	}
	s.mu.Unlock()
	s.changed()
}

// Load performs a one-off read without touching the synchronized state.
func (s *Synchronizer) Load(ctx context.Context, frequency Frequency) (Snapshot, error) {
	result := s.load(ctx, frequency)
	if result.signalsErr != nil {
		return Snapshot{}, result.signalsErr
	}
	return Snapshot{
		Signals:  result.signals,
		Question: result.question,
		Missions: result.missions,
	}, nil
}

type loadResult struct {
	signals     []EnrichedSignal
	signalsErr  error
	question    *store.DailyQuestion
	questionErr error
	missions    []MissionView
	missionsErr error
}

func (s *Synchronizer) load(ctx context.Context, frequency Frequency) loadResult {
	var result loadResult
	var group errgroup.Group
	group.Go(func() error {
		result.signals, result.signalsErr = s.listEnriched(ctx, store.SignalQuery{Frequency: frequency.query()})
		s.recorder.ObserveFetch(partSignals, result.signalsErr)
		if result.signalsErr != nil {
			s.logFetchFailure(partSignals, result.signalsErr)
		}
		return nil
	})
	group.Go(func() error {
		result.question, result.questionErr = s.reader.LatestDailyQuestion(ctx)
		s.recorder.ObserveFetch(partQuestion, result.questionErr)
		if result.questionErr != nil {
			s.logFetchFailure(partQuestion, result.questionErr)
		}
		return nil
	})
	group.Go(func() error {
		var missions []store.Mission
		missions, result.missionsErr = s.reader.ListMissions(ctx)
		s.recorder.ObserveFetch(partMissions, result.missionsErr)
		if result.missionsErr != nil {
			s.logFetchFailure(partMissions, result.missionsErr)
			return nil
		}
		result.missions = ActiveMissions(missions, s.clock())
		return nil
	})
	_ = group.Wait()
	return result
}

func (s *Synchronizer) listEnriched(ctx context.Context, query store.SignalQuery) ([]EnrichedSignal, error) {
	signals, err := s.reader.ListSignals(ctx, query)
	if err != nil {
		return nil, err
	}
	return s.enrich(ctx, signals), nil
}

// enrich joins every signal to its author's profile with a single batched
// lookup. A failed lookup falls back to the signal's stored fields.
func (s *Synchronizer) enrich(ctx context.Context, signals []store.Signal) []EnrichedSignal {
	authors := make([]string, 0, len(signals))
	seen := make(map[string]struct{}, len(signals))
	for _, signal := range signals {
		if _, ok := seen[signal.Author]; ok || signal.Author == "" {
			continue
		}
		seen[signal.Author] = struct{}{}
		authors = append(authors, signal.Author)
	}

	byUsername := make(map[string]store.Profile, len(authors))
	if len(authors) > 0 {
		found, err := s.reader.ProfilesByUsernames(ctx, authors)
		if err != nil {
			s.recorder.ObserveFetch(partProfiles, err)
			s.logFetchFailure(partProfiles, err)
		}
		for _, profile := range found {
			byUsername[profile.Username] = profile
		}
	}

	enriched := make([]EnrichedSignal, 0, len(signals))
	for _, signal := range signals {
		enriched = append(enriched, EnrichSignal(signal, byUsername[signal.Author]))
	}
	return enriched
}

// EnrichSignal applies profile display fields to signal and sorts its comments
// oldest first. A zero profile leaves the stored role and distance in place.
func EnrichSignal(signal store.Signal, profile store.Profile) EnrichedSignal {
	comments := append([]store.Comment{}, signal.Comments...)
	sort.SliceStable(comments, func(i, j int) bool {
		return comments[i].CreatedAt.Before(comments[j].CreatedAt)
	})
	signal.Comments = comments
	if signal.Likes == nil {
		signal.Likes = []store.Like{}
	}
	return EnrichedSignal{
		Signal:           signal,
		AuthorAvatar:     profiles.AvatarURL(profile.AvatarURL, signal.Author),
		AuthorCountry:    firstNonEmpty(profile.Country, signal.Distance),
		AuthorOccupation: firstNonEmpty(profile.Occupation, signal.Role),
	}
}

// ActiveMissions keeps missions created within MissionWindow of now.
func ActiveMissions(missions []store.Mission, now time.Time) []MissionView {
	cutoff := now.Add(-MissionWindow)
	active := make([]MissionView, 0, len(missions))
	for _, mission := range missions {
		if mission.CreatedAt.Before(cutoff) {
			continue
		}
		active = append(active, MissionView{Mission: mission, Contact: store.ParseContactInfo(mission.ContactInfo)})
	}
	return active
}

func (s *Synchronizer) changed() {
	if s.onChange != nil {
		s.onChange(s.Snapshot())
	}
}

func (s *Synchronizer) logFetchFailure(part string, err error) {
	s.logger.Warn("feed read failed",
		zap.String("operation", opFetch),
		zap.String("part", part),
		zap.Error(err))
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
