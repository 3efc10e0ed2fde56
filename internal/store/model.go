package store

import "time"

// Collection names a table exposed by the data client and its change feed.
type Collection string

const (
	CollectionSignals        Collection = "signals"
	CollectionComments       Collection = "comments"
	CollectionLikes          Collection = "likes"
	CollectionMissions       Collection = "missions"
	CollectionProfiles       Collection = "profiles"
	CollectionDailyQuestions Collection = "daily_questions"
)

// Signal is a posted broadcast with its comments and likes.
type Signal struct {
	ID              int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Content         string    `gorm:"column:content;type:text;not null" json:"content"`
	Translation     *string   `gorm:"column:translation;type:text" json:"translation,omitempty"`
	Frequency       string    `gorm:"column:frequency;size:32;not null;index" json:"frequency"`
	Author          string    `gorm:"column:author;size:190;not null;index" json:"author"`
	Role            string    `gorm:"column:role;size:190;not null;default:''" json:"role"`
	Distance        string    `gorm:"column:distance;size:190;not null;default:''" json:"distance"`
	DailyQuestionID *int64    `gorm:"column:daily_question_id;index" json:"daily_question_id,omitempty"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime;index" json:"created_at"`
	Comments        []Comment `gorm:"foreignKey:SignalID" json:"comments"`
	Likes           []Like    `gorm:"foreignKey:SignalID" json:"likes"`
}

// TableName provides the explicit table binding for GORM.
func (Signal) TableName() string {
	return string(CollectionSignals)
}

// TranslationText returns the cached translation or an empty string.
func (s Signal) TranslationText() string {
	if s.Translation == nil {
		return ""
	}
	return *s.Translation
}

// LikedBy reports whether the given user has an echo on the signal.
func (s Signal) LikedBy(userID string) bool {
	if userID == "" {
		return false
	}
	for _, like := range s.Likes {
		if like.UserID == userID {
			return true
		}
	}
	return false
}

// Comment is attached to exactly one signal.
type Comment struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	SignalID  int64     `gorm:"column:signal_id;not null;index" json:"signal_id"`
	Content   string    `gorm:"column:content;type:text;not null" json:"content"`
	Author    string    `gorm:"column:author;size:190;not null" json:"author"`
	ReplyTo   *string   `gorm:"column:reply_to;size:190;index" json:"reply_to,omitempty"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// TableName provides the explicit table binding for GORM.
func (Comment) TableName() string {
	return string(CollectionComments)
}

// Like is a single (user, signal) echo.
type Like struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	UserID    string    `gorm:"column:user_id;size:190;not null;uniqueIndex:idx_likes_user_signal,priority:1" json:"user_id"`
	SignalID  int64     `gorm:"column:signal_id;not null;index;uniqueIndex:idx_likes_user_signal,priority:2" json:"signal_id"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// TableName provides the explicit table binding for GORM.
func (Like) TableName() string {
	return string(CollectionLikes)
}

// Profile is the public identity of a signed-in user.
type Profile struct {
	ID              string    `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	Username        string    `gorm:"column:username;size:190;not null;default:'';index" json:"username"`
	Country         string    `gorm:"column:country;size:190;not null;default:''" json:"country"`
	Occupation      string    `gorm:"column:occupation;size:190;not null;default:''" json:"occupation"`
	AvatarURL       string    `gorm:"column:avatar_url;size:512;not null;default:''" json:"avatar_url"`
	Bio             string    `gorm:"column:bio;type:text;not null;default:''" json:"bio"`
	VesselName      string    `gorm:"column:vessel_name;size:190;not null;default:''" json:"vessel_name"`
	CurrentStatus   string    `gorm:"column:current_status;size:32;not null;default:''" json:"current_status"`
	ExternalLink    string    `gorm:"column:external_link;size:512;not null;default:''" json:"external_link"`
	IsSetupComplete bool      `gorm:"column:is_setup_complete;not null;default:false" json:"is_setup_complete"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// TableName provides the explicit table binding for GORM.
func (Profile) TableName() string {
	return string(CollectionProfiles)
}

// Mission is a job or collaboration posting.
type Mission struct {
	ID          int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Title       string    `gorm:"column:title;size:255;not null;default:''" json:"title"`
	Description string    `gorm:"column:description;type:text;not null;default:''" json:"description"`
	Type        string    `gorm:"column:type;size:16;not null" json:"type"`
	Budget      string    `gorm:"column:budget;size:190;not null;default:''" json:"budget"`
	ContactInfo string    `gorm:"column:contact_info;type:text;not null" json:"contact_info"`
	UserID      string    `gorm:"column:user_id;size:190;not null;index" json:"user_id"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime;index" json:"created_at"`
}

// TableName provides the explicit table binding for GORM.
func (Mission) TableName() string {
	return string(CollectionMissions)
}

// DailyQuestion is the rotating prompt signals can answer.
type DailyQuestion struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Content   string    `gorm:"column:content;type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime;index" json:"created_at"`
}

// TableName provides the explicit table binding for GORM.
func (DailyQuestion) TableName() string {
	return string(CollectionDailyQuestions)
}

// Models lists every persisted record for schema migration.
func Models() []any {
	return []any{
		&Signal{},
		&Comment{},
		&Like{},
		&Profile{},
		&Mission{},
		&DailyQuestion{},
	}
}
