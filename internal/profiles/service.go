// Package profiles resolves session identities to profiles and serves the
// profile setup form and public profile pages.
package profiles

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/smhkhrmn/thelastpenguin/internal/auth"
	"github.com/smhkhrmn/thelastpenguin/internal/store"
	"go.uber.org/zap"
)

const (
	// MinUsernameLength is the shortest accepted username, in characters.
	MinUsernameLength = 3

	DefaultVesselName = "Unidentified Vessel"

	StatusDrifting     = "Drifting"
	StatusTransmitting = "Transmitting"
	StatusListening    = "Listening"
	StatusSOS          = "S.O.S"

	defaultSenderName    = "Explorer"
	defaultSenderCountry = "Void"
)

// Statuses lists the accepted current_status values.
var Statuses = []string{StatusDrifting, StatusTransmitting, StatusListening, StatusSOS}

var (
	ErrInvalidIdentity    = errors.New("profiles: invalid identity")
	ErrUsernameTooShort   = errors.New("profiles: username must be at least 3 characters")
	ErrUsernameTaken      = errors.New("profiles: username already taken")
	ErrMissingField       = errors.New("profiles: required field missing")
	ErrInvalidStatus      = errors.New("profiles: unknown status")
	ErrProfileNotFound    = errors.New("profiles: profile not found")
	errMissingProfileRepo = errors.New("profiles: data store is required")
)

// Store is the data access the profile service needs.
type Store interface {
	GetProfile(ctx context.Context, id string) (*store.Profile, error)
	FindProfileByUsername(ctx context.Context, username string) (*store.Profile, error)
	ProfilesByIDs(ctx context.Context, ids []string) ([]store.Profile, error)
	InsertProfile(ctx context.Context, profile *store.Profile) error
	UpdateProfile(ctx context.Context, profile *store.Profile) error
	ListSignals(ctx context.Context, query store.SignalQuery) ([]store.Signal, error)
	LikesForSignals(ctx context.Context, signalIDs []int64) ([]store.Like, error)
}

// ServiceConfig describes the dependencies of the profile service.
type ServiceConfig struct {
	Store  Store
	Logger *zap.Logger
}

// Service manages profiles.
type Service struct {
	store  Store
	logger *zap.Logger
}

// NewService constructs the profile service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errMissingProfileRepo
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: cfg.Store, logger: logger}, nil
}

// Resolve returns the profile for the session, creating an empty one the
// first time a subject is seen.
func (s *Service) Resolve(ctx context.Context, claims auth.SessionClaims) (*store.Profile, error) {
	subject := SubjectFromClaims(claims)
	if subject == "" {
		return nil, ErrInvalidIdentity
	}
	profile, err := s.store.GetProfile(ctx, subject)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	profile = &store.Profile{
		ID:            subject,
		AvatarURL:     normalize(claims.UserAvatarURL),
		VesselName:    DefaultVesselName,
		CurrentStatus: StatusDrifting,
	}
	if err := s.store.InsertProfile(ctx, profile); err != nil {
		return nil, err
	}
	s.logger.Info("profile created", zap.String("user_id", subject))
	return profile, nil
}

// Form is the profile setup and edit form.
type Form struct {
	Username      string `json:"username"`
	Country       string `json:"country"`
	Occupation    string `json:"occupation"`
	Bio           string `json:"bio"`
	VesselName    string `json:"vessel_name"`
	CurrentStatus string `json:"current_status"`
	ExternalLink  string `json:"external_link"`
}

// Validate normalizes the form in place and checks its required fields.
func (f *Form) Validate() error {
	f.Username = normalize(f.Username)
	f.Country = normalize(f.Country)
	f.Occupation = normalize(f.Occupation)
	f.Bio = strings.TrimSpace(f.Bio)
	f.VesselName = normalize(f.VesselName)
	f.CurrentStatus = normalize(f.CurrentStatus)
	f.ExternalLink = normalize(f.ExternalLink)

	if utf8.RuneCountInString(f.Username) < MinUsernameLength {
		return ErrUsernameTooShort
	}
	if f.Country == "" {
		return fmt.Errorf("%w: country", ErrMissingField)
	}
	if f.Occupation == "" {
		return fmt.Errorf("%w: occupation", ErrMissingField)
	}
	if f.VesselName == "" {
		f.VesselName = DefaultVesselName
	}
	if f.CurrentStatus == "" {
		f.CurrentStatus = StatusDrifting
	}
	for _, status := range Statuses {
		if status == f.CurrentStatus {
			return nil
		}
	}
	return ErrInvalidStatus
}

// Setup applies the form to the user's profile and marks setup complete.
func (s *Service) Setup(ctx context.Context, userID string, form Form) (*store.Profile, error) {
	if normalize(userID) == "" {
		return nil, ErrInvalidIdentity
	}
	if err := form.Validate(); err != nil {
		return nil, err
	}
	holder, err := s.store.FindProfileByUsername(ctx, form.Username)
	if err != nil {
		return nil, err
	}
	if holder != nil && holder.ID != userID {
		return nil, ErrUsernameTaken
	}

	profile, err := s.store.GetProfile(ctx, userID)
	creating := errors.Is(err, store.ErrNotFound)
	if err != nil && !creating {
		return nil, err
	}
	if creating {
		profile = &store.Profile{ID: userID}
	}
	profile.Username = form.Username
	profile.Country = form.Country
	profile.Occupation = form.Occupation
	profile.Bio = form.Bio
	profile.VesselName = form.VesselName
	profile.CurrentStatus = form.CurrentStatus
	profile.ExternalLink = form.ExternalLink
	profile.IsSetupComplete = true

	if creating {
		err = s.store.InsertProfile(ctx, profile)
	} else {
		err = s.store.UpdateProfile(ctx, profile)
	}
	if err != nil {
		s.logger.Error("profile setup failed", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}
	return profile, nil
}

// ReceivedLike is a like on one of the profile's signals, with sender details.
type ReceivedLike struct {
	store.Like
	SenderName    string `json:"sender_name"`
	SenderCountry string `json:"sender_country"`
	SenderAvatar  string `json:"sender_avatar"`
	SignalText    string `json:"signal_text"`
}

// PublicProfile is everything the public profile page shows.
type PublicProfile struct {
	Profile         store.Profile  `json:"profile"`
	Avatar          string         `json:"avatar"`
	Signals         []store.Signal `json:"signals"`
	ReceivedLikes   []ReceivedLike `json:"received_likes"`
	TotalResonances int            `json:"total_resonances"`
	IsOwner         bool           `json:"is_owner"`
}

// Public loads the public page for username, matched without regard to case.
// viewerID may be empty.
func (s *Service) Public(ctx context.Context, username, viewerID string) (*PublicProfile, error) {
	profile, err := s.store.FindProfileByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, ErrProfileNotFound
	}

	signals, err := s.store.ListSignals(ctx, store.SignalQuery{Author: profile.Username})
	if err != nil {
		return nil, err
	}
	page := &PublicProfile{
		Profile:       *profile,
		Avatar:        AvatarURL(profile.AvatarURL, profile.Username),
		Signals:       make([]store.Signal, 0, len(signals)),
		ReceivedLikes: []ReceivedLike{},
		IsOwner:       viewerID != "" && viewerID == profile.ID,
	}
	signalText := make(map[int64]string, len(signals))
	signalIDs := make([]int64, 0, len(signals))
	for _, signal := range signals {
		sort.SliceStable(signal.Comments, func(i, j int) bool {
			return signal.Comments[i].CreatedAt.Before(signal.Comments[j].CreatedAt)
		})
		page.Signals = append(page.Signals, signal)
		page.TotalResonances += len(signal.Comments)
		signalText[signal.ID] = signal.Content
		signalIDs = append(signalIDs, signal.ID)
	}
	if len(signalIDs) == 0 {
		return page, nil
	}

	likes, err := s.store.LikesForSignals(ctx, signalIDs)
	if err != nil {
		s.logger.Warn("received likes lookup failed", zap.String("username", profile.Username), zap.Error(err))
		return page, nil
	}
	senderIDs := make([]string, 0, len(likes))
	for _, like := range likes {
		senderIDs = append(senderIDs, like.UserID)
	}
	senders, err := s.store.ProfilesByIDs(ctx, senderIDs)
	if err != nil {
		s.logger.Warn("like sender lookup failed", zap.Error(err))
	}
	byID := make(map[string]store.Profile, len(senders))
	for _, sender := range senders {
		byID[sender.ID] = sender
	}
	for _, like := range likes {
		sender := byID[like.UserID]
		page.ReceivedLikes = append(page.ReceivedLikes, ReceivedLike{
			Like:          like,
			SenderName:    orDefault(sender.Username, defaultSenderName),
			SenderCountry: orDefault(sender.Country, defaultSenderCountry),
			SenderAvatar:  sender.AvatarURL,
			SignalText:    signalText[like.SignalID],
		})
	}
	return page, nil
}

// SubjectFromClaims derives the stable profile identifier from session claims.
// A "provider:subject" user id contributes only its subject.
func SubjectFromClaims(claims auth.SessionClaims) string {
	subject := normalize(claims.Subject)
	raw := normalize(claims.UserID)
	if raw != "" {
		if strings.Contains(raw, ":") {
			segments := strings.SplitN(raw, ":", 2)
			if normalize(segments[0]) != "" && normalize(segments[1]) != "" {
				return normalize(segments[1])
			}
		}
		if subject == "" {
			subject = raw
		}
	}
	if subject == "" {
		subject = normalize(claims.UserEmail)
	}
	return subject
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}

func orDefault(value, fallback string) string {
	if normalize(value) == "" {
		return fallback
	}
	return value
}
