package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("store: record not found")

	errMissingDatabase = errors.New("store: database handle is required")
)

const (
	orderNewestFirst = "created_at DESC, id DESC"
	queryUserSignal  = "user_id = ? AND signal_id = ?"
)

// SignalQuery narrows ListSignals. Zero values apply no restriction.
type SignalQuery struct {
	Frequency       string
	DailyQuestionID *int64
	Author          string
}

// ClientConfig wires the data client.
type ClientConfig struct {
	Database *gorm.DB
	Feed     *ChangeFeed
	Clock    func() time.Time
}

// Client is the typed data client over the six application collections.
// Every committed write is published on the change feed.
type Client struct {
	db    *gorm.DB
	feed  *ChangeFeed
	clock func() time.Time
}

// NewClient validates configuration and constructs a Client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	changeFeed := cfg.Feed
	if changeFeed == nil {
		changeFeed = NewChangeFeed()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Client{db: cfg.Database, feed: changeFeed, clock: clock}, nil
}

// Feed exposes the change feed the client publishes to.
func (c *Client) Feed() *ChangeFeed {
	return c.feed
}

// Subscribe registers for change events matching filter.
func (c *Client) Subscribe(filter ChangeFilter) *Subscription {
	return c.feed.Subscribe(filter)
}

// ListSignals returns signals newest first with comments and likes preloaded.
func (c *Client) ListSignals(ctx context.Context, query SignalQuery) ([]Signal, error) {
	tx := c.db.WithContext(ctx).
		Preload("Comments").
		Preload("Likes").
		Order(orderNewestFirst)
	if query.Frequency != "" {
		tx = tx.Where("frequency = ?", query.Frequency)
	}
	if query.DailyQuestionID != nil {
		tx = tx.Where("daily_question_id = ?", *query.DailyQuestionID)
	}
	if query.Author != "" {
		tx = tx.Where("author = ?", query.Author)
	}
	var signals []Signal
	if err := tx.Find(&signals).Error; err != nil {
		return nil, fmt.Errorf("store: list signals: %w", err)
	}
	return signals, nil
}

// GetSignal loads a single signal without associations.
func (c *Client) GetSignal(ctx context.Context, id int64) (*Signal, error) {
	var signal Signal
	err := c.db.WithContext(ctx).Where("id = ?", id).Take(&signal).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get signal: %w", err)
	}
	return &signal, nil
}

// SignalsByIDs loads signals without associations.
func (c *Client) SignalsByIDs(ctx context.Context, ids []int64) ([]Signal, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var signals []Signal
	if err := c.db.WithContext(ctx).Where("id IN ?", ids).Find(&signals).Error; err != nil {
		return nil, fmt.Errorf("store: signals by ids: %w", err)
	}
	return signals, nil
}

// InsertSignal stores a new signal and assigns its identifier.
func (c *Client) InsertSignal(ctx context.Context, signal *Signal) error {
	if signal.CreatedAt.IsZero() {
		signal.CreatedAt = c.clock().UTC()
	}
	if err := c.db.WithContext(ctx).Omit("Comments", "Likes").Create(signal).Error; err != nil {
		return fmt.Errorf("store: insert signal: %w", err)
	}
	c.publish(CollectionSignals, EventInsert, []int64{signal.ID}, nil, nil)
	return nil
}

// UpdateSignalTranslations caches translations for several signals in one transaction.
func (c *Client) UpdateSignalTranslations(ctx context.Context, translations map[int64]string) error {
	if len(translations) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(translations))
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for id, translation := range translations {
			if err := tx.Model(&Signal{}).Where("id = ?", id).Update("translation", translation).Error; err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: update translations: %w", err)
	}
	c.publish(CollectionSignals, EventUpdate, ids, nil, nil)
	return nil
}

// InsertComment stores a comment on a signal.
func (c *Client) InsertComment(ctx context.Context, comment *Comment) error {
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = c.clock().UTC()
	}
	if err := c.db.WithContext(ctx).Create(comment).Error; err != nil {
		return fmt.Errorf("store: insert comment: %w", err)
	}
	stored := *comment
	c.publish(CollectionComments, EventInsert, []int64{comment.ID}, nil, &stored)
	return nil
}

// FindLike returns the like for (userID, signalID) or nil when absent.
func (c *Client) FindLike(ctx context.Context, userID string, signalID int64) (*Like, error) {
	var like Like
	err := c.db.WithContext(ctx).Where(queryUserSignal, userID, signalID).Take(&like).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: find like: %w", err)
	}
	return &like, nil
}

// InsertLike stores a like.
func (c *Client) InsertLike(ctx context.Context, like *Like) error {
	if like.CreatedAt.IsZero() {
		like.CreatedAt = c.clock().UTC()
	}
	if err := c.db.WithContext(ctx).Create(like).Error; err != nil {
		return fmt.Errorf("store: insert like: %w", err)
	}
	stored := *like
	c.publish(CollectionLikes, EventInsert, []int64{like.ID}, &stored, nil)
	return nil
}

// DeleteLike removes a like by identifier.
func (c *Client) DeleteLike(ctx context.Context, like Like) error {
	if err := c.db.WithContext(ctx).Where("id = ?", like.ID).Delete(&Like{}).Error; err != nil {
		return fmt.Errorf("store: delete like: %w", err)
	}
	c.publish(CollectionLikes, EventDelete, []int64{like.ID}, &like, nil)
	return nil
}

// LikesForSignals returns the likes on the given signals, newest first.
func (c *Client) LikesForSignals(ctx context.Context, signalIDs []int64) ([]Like, error) {
	if len(signalIDs) == 0 {
		return nil, nil
	}
	var likes []Like
	if err := c.db.WithContext(ctx).
		Where("signal_id IN ?", signalIDs).
		Order(orderNewestFirst).
		Find(&likes).Error; err != nil {
		return nil, fmt.Errorf("store: likes for signals: %w", err)
	}
	return likes, nil
}

// InsertMission stores a mission.
func (c *Client) InsertMission(ctx context.Context, mission *Mission) error {
	if mission.CreatedAt.IsZero() {
		mission.CreatedAt = c.clock().UTC()
	}
	if err := c.db.WithContext(ctx).Create(mission).Error; err != nil {
		return fmt.Errorf("store: insert mission: %w", err)
	}
	c.publish(CollectionMissions, EventInsert, []int64{mission.ID}, nil, nil)
	return nil
}

// ListMissions returns every mission newest first.
func (c *Client) ListMissions(ctx context.Context) ([]Mission, error) {
	var missions []Mission
	if err := c.db.WithContext(ctx).Order(orderNewestFirst).Find(&missions).Error; err != nil {
		return nil, fmt.Errorf("store: list missions: %w", err)
	}
	return missions, nil
}

// LatestDailyQuestion returns the newest daily question or nil when none exist.
func (c *Client) LatestDailyQuestion(ctx context.Context) (*DailyQuestion, error) {
	var question DailyQuestion
	err := c.db.WithContext(ctx).Order(orderNewestFirst).Limit(1).Take(&question).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: latest daily question: %w", err)
	}
	return &question, nil
}

// InsertDailyQuestion stores a new daily question.
func (c *Client) InsertDailyQuestion(ctx context.Context, question *DailyQuestion) error {
	if question.CreatedAt.IsZero() {
		question.CreatedAt = c.clock().UTC()
	}
	if err := c.db.WithContext(ctx).Create(question).Error; err != nil {
		return fmt.Errorf("store: insert daily question: %w", err)
	}
	c.publish(CollectionDailyQuestions, EventInsert, []int64{question.ID}, nil, nil)
	return nil
}

// GetProfile loads a profile by identity subject.
func (c *Client) GetProfile(ctx context.Context, id string) (*Profile, error) {
	var profile Profile
	err := c.db.WithContext(ctx).Where("id = ?", id).Take(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get profile: %w", err)
	}
	return &profile, nil
}

// FindProfileByUsername performs a case-insensitive username lookup and
// returns nil when no profile matches.
func (c *Client) FindProfileByUsername(ctx context.Context, username string) (*Profile, error) {
	normalized := strings.TrimSpace(username)
	if normalized == "" {
		return nil, nil
	}
	var profile Profile
	err := c.db.WithContext(ctx).
		Where("LOWER(username) = LOWER(?)", normalized).
		Take(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: find profile by username: %w", err)
	}
	return &profile, nil
}

// ProfilesByUsernames loads every profile whose username is in names.
func (c *Client) ProfilesByUsernames(ctx context.Context, names []string) ([]Profile, error) {
	if len(names) == 0 {
		return nil, nil
	}
	var profiles []Profile
	if err := c.db.WithContext(ctx).Where("username IN ?", names).Find(&profiles).Error; err != nil {
		return nil, fmt.Errorf("store: profiles by usernames: %w", err)
	}
	return profiles, nil
}

// ProfilesByIDs loads every profile whose identifier is in ids.
func (c *Client) ProfilesByIDs(ctx context.Context, ids []string) ([]Profile, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var profiles []Profile
	if err := c.db.WithContext(ctx).Where("id IN ?", ids).Find(&profiles).Error; err != nil {
		return nil, fmt.Errorf("store: profiles by ids: %w", err)
	}
	return profiles, nil
}

// InsertProfile stores a new profile.
func (c *Client) InsertProfile(ctx context.Context, profile *Profile) error {
	if err := c.db.WithContext(ctx).Create(profile).Error; err != nil {
		return fmt.Errorf("store: insert profile: %w", err)
	}
	c.publish(CollectionProfiles, EventInsert, nil, nil, nil)
	return nil
}

// UpdateProfile persists every column of an existing profile.
func (c *Client) UpdateProfile(ctx context.Context, profile *Profile) error {
	if err := c.db.WithContext(ctx).Save(profile).Error; err != nil {
		return fmt.Errorf("store: update profile: %w", err)
	}
	c.publish(CollectionProfiles, EventUpdate, nil, nil, nil)
	return nil
}

func (c *Client) publish(collection Collection, eventType EventType, ids []int64, like *Like, comment *Comment) {
	c.feed.Publish(ChangeEvent{
		Collection: collection,
		Type:       eventType,
		RecordIDs:  ids,
		Like:       like,
		Comment:    comment,
		Timestamp:  c.clock().UTC(),
	})
}
