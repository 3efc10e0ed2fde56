package feed

import (
	"context"
	"strings"

	"github.com/smhkhrmn/thelastpenguin/internal/store"
	"go.uber.org/zap"
)

const (
	defaultRole     = "Explorer"
	defaultDistance = "Near Orbit"

	// MissionPartner and MissionPaid are the mission types the client offers.
	// Other values are stored as written.
	MissionPartner = "partner"
	MissionPaid    = "paid"
)

// MissionDraft carries the fields of the mission form.
type MissionDraft struct {
	Title            string `json:"title"`
	Description      string `json:"description"`
	Type             string `json:"type"`
	Budget           string `json:"budget"`
	ContactEmail     string `json:"contact_email"`
	ContactSkype     string `json:"contact_skype"`
	ContactInstagram string `json:"contact_instagram"`
}

// Broadcast posts a new signal on frequency with its English translation.
func (c *Controller) Broadcast(ctx context.Context, text string, frequency Frequency) (*store.Signal, error) {
	identity, _ := c.viewer()
	if identity.UserID == "" {
		return nil, ErrUnauthenticated
	}
	content := strings.TrimSpace(text)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if !ValidSignalFrequency(frequency) {
		return nil, ErrInvalidFrequency
	}
	if !c.sending.CompareAndSwap(false, true) {
		return nil, ErrActionInProgress
	}
	defer c.sending.Store(false)

	signal := c.newSignal(ctx, content, frequency)
	if err := c.store.InsertSignal(ctx, signal); err != nil {
		c.recorder.ObserveMutation(opBroadcast, err)
		c.logError(opBroadcast, "insert_failed", err)
		return nil, newServiceError(opBroadcast, "insert_failed", err)
	}
	c.recorder.ObserveMutation(opBroadcast, nil)
	c.refresh(ctx)
	return signal, nil
}

// AnswerDailyQuestion posts a general-frequency signal linked to the loaded
// daily question and reloads its responses.
func (c *Controller) AnswerDailyQuestion(ctx context.Context, text string) (*store.Signal, error) {
	identity, _ := c.viewer()
	if identity.UserID == "" {
		return nil, ErrUnauthenticated
	}
	content := strings.TrimSpace(text)
	if content == "" {
		return nil, ErrEmptyContent
	}
	question := c.synchronizer.Snapshot().Question
	if question == nil {
		return nil, ErrNoDailyQuestion
	}
	if !c.answering.CompareAndSwap(false, true) {
		return nil, ErrActionInProgress
	}
	defer c.answering.Store(false)

	signal := c.newSignal(ctx, content, FrequencyGeneral)
	questionID := question.ID
	signal.DailyQuestionID = &questionID
	if err := c.store.InsertSignal(ctx, signal); err != nil {
		c.recorder.ObserveMutation(opAnswerDaily, err)
		c.logError(opAnswerDaily, "insert_failed", err, zap.Int64("daily_question_id", questionID))
		return nil, newServiceError(opAnswerDaily, "insert_failed", err)
	}
	c.recorder.ObserveMutation(opAnswerDaily, nil)
	c.synchronizer.FetchSignals(ctx, c.currentFilter())
	c.synchronizer.FetchDailyResponses(ctx, questionID)
	return signal, nil
}

// PostComment adds a comment to signalID, optionally replying to a username.
func (c *Controller) PostComment(ctx context.Context, signalID int64, text, replyTo string) (*store.Comment, error) {
	identity, _ := c.viewer()
	if identity.UserID == "" {
		return nil, ErrUnauthenticated
	}
	content := strings.TrimSpace(text)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if !c.postingComment.CompareAndSwap(false, true) {
		return nil, ErrActionInProgress
	}
	defer c.postingComment.Store(false)

	author, _, _ := c.authorship()
	comment := &store.Comment{SignalID: signalID, Content: content, Author: author}
	if target := strings.TrimSpace(replyTo); target != "" {
		comment.ReplyTo = &target
	}
	if err := c.store.InsertComment(ctx, comment); err != nil {
		c.recorder.ObserveMutation(opPostComment, err)
		c.logError(opPostComment, "insert_failed", err, zap.Int64("signal_id", signalID))
		return nil, newServiceError(opPostComment, "insert_failed", err)
	}
	c.recorder.ObserveMutation(opPostComment, nil)
	c.refresh(ctx)
	return comment, nil
}

// ToggleLike removes the user's like on signalID if present, otherwise adds
// one. It reports whether the signal is liked afterwards.
func (c *Controller) ToggleLike(ctx context.Context, signalID int64) (bool, error) {
	identity, _ := c.viewer()
	if identity.UserID == "" {
		return false, ErrUnauthenticated
	}

	existing, err := c.store.FindLike(ctx, identity.UserID, signalID)
	if err != nil {
		c.recorder.ObserveMutation(opToggleLike, err)
		c.logError(opToggleLike, "lookup_failed", err, zap.Int64("signal_id", signalID))
		return false, newServiceError(opToggleLike, "lookup_failed", err)
	}

	liked := existing == nil
	if existing != nil {
		err = c.store.DeleteLike(ctx, *existing)
	} else {
		err = c.store.InsertLike(ctx, &store.Like{UserID: identity.UserID, SignalID: signalID})
	}
	if err != nil {
		c.recorder.ObserveMutation(opToggleLike, err)
		c.logError(opToggleLike, "write_failed", err, zap.Int64("signal_id", signalID))
		return !liked, newServiceError(opToggleLike, "write_failed", err)
	}
	c.recorder.ObserveMutation(opToggleLike, nil)
	c.refresh(ctx)
	return liked, nil
}

// CreateMission stores a mission. The contact email is required; the
// remaining contact handles are optional.
func (c *Controller) CreateMission(ctx context.Context, draft MissionDraft) (*store.Mission, error) {
	identity, _ := c.viewer()
	if identity.UserID == "" {
		return nil, ErrUnauthenticated
	}
	contact := store.ContactInfo{
		Email:     strings.TrimSpace(draft.ContactEmail),
		Skype:     strings.TrimSpace(draft.ContactSkype),
		Instagram: strings.TrimSpace(draft.ContactInstagram),
	}
	if contact.Email == "" {
		return nil, ErrMissingContactEmail
	}
	missionType := strings.TrimSpace(draft.Type)
	if missionType == "" {
		missionType = MissionPartner
	}
	if !c.postingMission.CompareAndSwap(false, true) {
		return nil, ErrActionInProgress
	}
	defer c.postingMission.Store(false)

	encoded, err := contact.Encode()
	if err != nil {
		return nil, newServiceError(opCreateMission, "encode_contact_failed", err)
	}
	mission := &store.Mission{
		Title:       draft.Title,
		Description: draft.Description,
		Type:        missionType,
		Budget:      draft.Budget,
		ContactInfo: encoded,
		UserID:      identity.UserID,
	}
	if err := c.store.InsertMission(ctx, mission); err != nil {
		c.recorder.ObserveMutation(opCreateMission, err)
		c.logError(opCreateMission, "insert_failed", err)
		return nil, newServiceError(opCreateMission, "insert_failed", err)
	}
	c.recorder.ObserveMutation(opCreateMission, nil)
	c.refresh(ctx)
	return mission, nil
}

func (c *Controller) newSignal(ctx context.Context, content string, frequency Frequency) *store.Signal {
	author, role, distance := c.authorship()
	translation := c.translator.Translate(ctx, content)
	return &store.Signal{
		Content:     content,
		Translation: &translation,
		Frequency:   string(frequency),
		Author:      author,
		Role:        role,
		Distance:    distance,
	}
}

// authorship resolves author, role and distance from the profile, falling
// back to the session display name and the literal defaults.
func (c *Controller) authorship() (string, string, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var profile store.Profile
	if c.profile != nil {
		profile = *c.profile
	}
	author := firstNonEmpty(profile.Username, c.identity.DisplayName, c.identity.UserID)
	role := firstNonEmpty(profile.Occupation, defaultRole)
	distance := firstNonEmpty(profile.Country, defaultDistance)
	return author, role, distance
}
