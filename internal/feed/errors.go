package feed

import (
	"errors"
	"fmt"
)

// Validation failures. Each is returned before any remote call is made.
var (
	ErrUnauthenticated     = errors.New("feed: authentication required")
	ErrEmptyContent        = errors.New("feed: content is required")
	ErrMissingContactEmail = errors.New("feed: contact email is required")
	ErrInvalidFrequency    = errors.New("feed: unknown frequency")
	ErrNoDailyQuestion     = errors.New("feed: no daily question is loaded")
	ErrActionInProgress    = errors.New("feed: action already in progress")
	ErrSignalNotFound      = errors.New("feed: signal not found")

	errMissingStore = errors.New("feed: data store is required")
)

// ServiceError wraps a failed remote write with a stable code.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opNewController   = "feed.controller.new"
	opNewSynchronizer = "feed.synchronizer.new"
	opBroadcast       = "feed.broadcast"
	opAnswerDaily     = "feed.answer_daily"
	opPostComment     = "feed.post_comment"
	opToggleLike      = "feed.toggle_like"
	opCreateMission   = "feed.create_mission"
	opTranslate       = "feed.translate"
	opFetch           = "feed.fetch"
	opListen          = "feed.listen"
)

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}
