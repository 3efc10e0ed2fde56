package feed

import (
	"strings"

	"github.com/smhkhrmn/thelastpenguin/internal/carousel"
	"github.com/smhkhrmn/thelastpenguin/internal/notify"
	"github.com/smhkhrmn/thelastpenguin/internal/store"
)

// CardView is one rendered signal.
type CardView struct {
	EnrichedSignal
	Text         string             `json:"text"`
	ShowsEnglish bool               `json:"shows_english"`
	LikeCount    int                `json:"like_count"`
	CommentCount int                `json:"comment_count"`
	LikedByMe    bool               `json:"liked_by_me"`
	Style        carousel.CardStyle `json:"style"`
}

// ViewState is everything a client needs to draw the feed page.
type ViewState struct {
	Filter         Frequency             `json:"filter"`
	Frequencies    []FrequencyInfo       `json:"frequencies"`
	Search         string                `json:"search"`
	GlobalEnglish  bool                  `json:"global_english"`
	Loading        bool                  `json:"loading"`
	Index          int                   `json:"index"`
	Cards          []CardView            `json:"cards"`
	DailyQuestion  *store.DailyQuestion  `json:"daily_question"`
	DailyOpen      bool                  `json:"daily_open"`
	DailyResponses []CardView            `json:"daily_responses"`
	Missions       []MissionView         `json:"missions"`
	Notifications  []notify.Notification `json:"notifications"`
	Profile        *store.Profile        `json:"profile"`
	NeedsSetup     bool                  `json:"needs_setup"`
	Sending        bool                  `json:"sending"`
	PostingComment bool                  `json:"posting_comment"`
	PostingMission bool                  `json:"posting_mission"`
}

// View renders the current state.
func (c *Controller) View() ViewState {
	snapshot := c.synchronizer.Snapshot()

	c.mu.RLock()
	filter := c.filter
	search := c.search
	globalEnglish := c.globalEnglish
	dailyOpen := c.dailyOpen
	profile := c.profile
	userID := c.identity.UserID
	translated := make(map[int64]bool, len(c.translated))
	for id, on := range c.translated {
		translated[id] = on
	}
	c.mu.RUnlock()

	visible := FilterSignals(snapshot.Signals, search)
	index := c.navigator.Current(len(visible))
	cards := make([]CardView, 0, len(visible))
	for i, signal := range visible {
		card := renderCard(signal, userID, globalEnglish || translated[signal.ID])
		card.Style = carousel.StyleFor(i, index, len(visible))
		cards = append(cards, card)
	}
	responses := make([]CardView, 0, len(snapshot.Responses))
	for _, signal := range snapshot.Responses {
		responses = append(responses, renderCard(signal, userID, globalEnglish || translated[signal.ID]))
	}

	return ViewState{
		Filter:         filter,
		Frequencies:    Frequencies,
		Search:         search,
		GlobalEnglish:  globalEnglish,
		Loading:        snapshot.Loading,
		Index:          index,
		Cards:          cards,
		DailyQuestion:  snapshot.Question,
		DailyOpen:      dailyOpen,
		DailyResponses: responses,
		Missions:       snapshot.Missions,
		Notifications:  c.emitter.List(),
		Profile:        profile,
		NeedsSetup:     profile != nil && !profile.IsSetupComplete,
		Sending:        c.sending.Load() || c.answering.Load(),
		PostingComment: c.postingComment.Load(),
		PostingMission: c.postingMission.Load(),
	}
}

// FilterSignals keeps signals whose content, author or translation contains
// query, ignoring case. An empty query keeps everything.
func FilterSignals(signals []EnrichedSignal, query string) []EnrichedSignal {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return signals
	}
	matched := make([]EnrichedSignal, 0, len(signals))
	for _, signal := range signals {
		if strings.Contains(strings.ToLower(signal.Content), needle) ||
			strings.Contains(strings.ToLower(signal.Author), needle) ||
			strings.Contains(strings.ToLower(signal.TranslationText()), needle) {
			matched = append(matched, signal)
		}
	}
	return matched
}

func (c *Controller) visibleSignals() []EnrichedSignal {
	c.mu.RLock()
	search := c.search
	c.mu.RUnlock()
	return FilterSignals(c.synchronizer.Snapshot().Signals, search)
}

func renderCard(signal EnrichedSignal, userID string, english bool) CardView {
	card := CardView{
		EnrichedSignal: signal,
		Text:           signal.Content,
		LikeCount:      len(signal.Likes),
		CommentCount:   len(signal.Comments),
		LikedByMe:      signal.LikedBy(userID),
	}
	if english && signal.TranslationText() != "" {
		card.Text = signal.TranslationText()
		card.ShowsEnglish = true
	}
	return card
}
