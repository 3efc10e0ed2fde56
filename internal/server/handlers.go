package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smhkhrmn/thelastpenguin/internal/feed"
	"github.com/smhkhrmn/thelastpenguin/internal/persona"
	"github.com/smhkhrmn/thelastpenguin/internal/profiles"
	"go.uber.org/zap"
)

type contentPayload struct {
	Content   string `json:"content"`
	Frequency string `json:"frequency"`
}

type commentPayload struct {
	Content string `json:"content"`
	ReplyTo string `json:"reply_to"`
}

type filterPayload struct {
	Frequency string `json:"frequency"`
}

type searchPayload struct {
	Query string `json:"query"`
}

type releasePayload struct {
	OffsetX float64 `json:"offset_x"`
}

type togglePayload struct {
	Enabled *bool `json:"enabled"`
	Open    *bool `json:"open"`
}

type replyPayload struct {
	Message   string `json:"message"`
	Frequency string `json:"frequency"`
}

// feedErrorStatus maps validation sentinels to their status and code.
var feedErrorStatus = []struct {
	err    error
	status int
	code   string
}{
	{feed.ErrUnauthenticated, http.StatusUnauthorized, "unauthorized"},
	{feed.ErrEmptyContent, http.StatusBadRequest, "empty_content"},
	{feed.ErrMissingContactEmail, http.StatusBadRequest, "missing_contact_email"},
	{feed.ErrInvalidFrequency, http.StatusBadRequest, "invalid_frequency"},
	{feed.ErrNoDailyQuestion, http.StatusConflict, "no_daily_question"},
	{feed.ErrActionInProgress, http.StatusConflict, "action_in_progress"},
	{feed.ErrSignalNotFound, http.StatusNotFound, "signal_not_found"},
}

func (h *httpHandler) writeFeedError(c *gin.Context, err error) {
	for _, mapping := range feedErrorStatus {
		if errors.Is(err, mapping.err) {
			c.JSON(mapping.status, gin.H{"error": mapping.code})
			return
		}
	}
	var serviceErr *feed.ServiceError
	if errors.As(err, &serviceErr) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "remote_write_failed", "code": serviceErr.Code()})
		return
	}
	h.logger.Error("unexpected feed error", zap.String("request_id", c.GetString(requestIDContextKey)), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
}

func signalIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_signal_id"})
		return 0, false
	}
	return id, true
}

func (h *httpHandler) handlePublicFeed(c *gin.Context) {
	frequency, ok := feed.ParseFilter(c.Query("frequency"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_frequency"})
		return
	}
	snapshot, err := h.publicFeed.Load(c.Request.Context(), frequency)
	if err != nil {
		h.logger.Error("public feed load failed", zap.String("frequency", string(frequency)), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "feed_unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"frequency":      frequency,
		"signals":        feed.FilterSignals(snapshot.Signals, c.Query("q")),
		"daily_question": snapshot.Question,
		"missions":       snapshot.Missions,
	})
}

func (h *httpHandler) handlePublicProfile(c *gin.Context) {
	viewerID := ""
	if claims, err := h.sessions.ValidateRequest(c.Request); err == nil {
		viewerID = profiles.SubjectFromClaims(claims)
	}
	page, err := h.profiles.Public(c.Request.Context(), c.Param("username"), viewerID)
	if errors.Is(err, profiles.ErrProfileNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "profile_not_found"})
		return
	}
	if err != nil {
		h.logger.Error("public profile load failed", zap.String("username", c.Param("username")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "profile_unavailable"})
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *httpHandler) handleMe(c *gin.Context) {
	claims, profile, err := sessionFrom(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	seed := profile.Username
	if seed == "" {
		seed = profile.ID
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id":      profile.ID,
		"display_name": claims.DisplayName(),
		"avatar":       profiles.AvatarURL(profile.AvatarURL, seed),
		"profile":      profile,
		"needs_setup":  !profile.IsSetupComplete,
	})
}

func (h *httpHandler) handleProfileSetup(c *gin.Context) {
	_, profile, err := sessionFrom(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var form profiles.Form
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	updated, err := h.profiles.Setup(c.Request.Context(), profile.ID, form)
	switch {
	case errors.Is(err, profiles.ErrUsernameTooShort):
		c.JSON(http.StatusBadRequest, gin.H{"error": "username_too_short"})
		return
	case errors.Is(err, profiles.ErrMissingField):
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_field", "detail": err.Error()})
		return
	case errors.Is(err, profiles.ErrInvalidStatus):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_status"})
		return
	case errors.Is(err, profiles.ErrUsernameTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "username_taken"})
		return
	case err != nil:
		h.logger.Error("profile setup failed", zap.String("user_id", profile.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "profile_setup_failed"})
		return
	}
	if controller, ok := h.views.Get(profile.ID); ok {
		controller.SetProfile(updated)
	}
	c.JSON(http.StatusOK, updated)
}

func (h *httpHandler) handleView(c *gin.Context) {
	controller, ok := h.viewFor(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, controller.View())
}

func (h *httpHandler) handleSetFilter(c *gin.Context) {
	controller, ok := h.viewFor(c)
	if !ok {
		return
	}
	var request filterPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := controller.SetFilter(c.Request.Context(), request.Frequency); err != nil {
		h.writeFeedError(c, err)
		return
	}
	c.JSON(http.StatusOK, controller.View())
}

func (h *httpHandler) handleSetSearch(c *gin.Context) {
	controller, ok := h.viewFor(c)
	if !ok {
		return
	}
	var request searchPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	controller.SetSearch(request.Query)
	c.JSON(http.StatusOK, controller.View())
}

func (h *httpHandler) handleNext(c *gin.Context) {
	controller, ok := h.viewFor(c)
	if !ok {
		return
	}
	controller.Next()
	c.JSON(http.StatusOK, controller.View())
}

func (h *httpHandler) handlePrev(c *gin.Context) {
	controller, ok := h.viewFor(c)
	if !ok {
		return
	}
	controller.Prev()
	c.JSON(http.StatusOK, controller.View())
}

func (h *httpHandler) handleRelease(c *gin.Context) {
	controller, ok := h.viewFor(c)
	if !ok {
		return
	}
	var request releasePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	action := controller.Release(request.OffsetX)
	c.JSON(http.StatusOK, gin.H{"action": action, "view": controller.View()})
}

func (h *httpHandler) handleGlobalEnglish(c *gin.Context) {
	controller, ok := h.viewFor(c)
	if !ok {
		return
	}
	var request togglePayload
	if err := c.ShouldBindJSON(&request); err != nil || request.Enabled == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	controller.SetGlobalEnglish(c.Request.Context(), *request.Enabled)
	c.JSON(http.StatusOK, controller.View())
}

func (h *httpHandler) handleDailyPanel(c *gin.Context) {
	controller, ok := h.viewFor(c)
	if !ok {
		return
	}
	var request togglePayload
	if err := c.ShouldBindJSON(&request); err != nil || request.Open == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := controller.SetDailyOpen(c.Request.Context(), *request.Open); err != nil {
		h.writeFeedError(c, err)
		return
	}
	c.JSON(http.StatusOK, controller.View())
}

func (h *httpHandler) handleDailyResponses(c *gin.Context) {
	controller, ok := h.viewFor(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"responses": controller.DailyResponses()})
}

func (h *httpHandler) handleBroadcast(c *gin.Context) {
	controller, ok := h.viewFor(c)
	if !ok {
		return
	}
	var request contentPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	frequency := feed.Frequency(strings.ToLower(strings.TrimSpace(request.Frequency)))
	if frequency == "" {
		frequency = feed.FrequencyGeneral
	}
	signal, err := controller.Broadcast(c.Request.Context(), request.Content, frequency)
	if err != nil {
		h.writeFeedError(c, err)
		return
	}
	c.JSON(http.StatusCreated, signal)
}

func (h *httpHandler) handlePostComment(c *gin.Context) {
	controller, ok := h.viewFor(c)
	if !ok {
		return
	}
	signalID, ok := signalIDParam(c)
	if !ok {
		return
	}
	var request commentPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	comment, err := controller.PostComment(c.Request.Context(), signalID, request.Content, request.ReplyTo)
	if err != nil {
		h.writeFeedError(c, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

func (h *httpHandler) handleToggleLike(c *gin.Context) {
	controller, ok := h.viewFor(c)
	if !ok {
		return
	}
	signalID, ok := signalIDParam(c)
	if !ok {
		return
	}
	liked, err := controller.ToggleLike(c.Request.Context(), signalID)
	if err != nil {
		h.writeFeedError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"signal_id": signalID, "liked": liked})
}

func (h *httpHandler) handleTranslateSignal(c *gin.Context) {
	controller, ok := h.viewFor(c)
	if !ok {
		return
	}
	signalID, ok := signalIDParam(c)
	if !ok {
		return
	}
	showing, err := controller.TranslateSignal(c.Request.Context(), signalID)
	if err != nil {
		h.writeFeedError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"signal_id": signalID, "showing_translation": showing})
}

func (h *httpHandler) handleAnswerDaily(c *gin.Context) {
	controller, ok := h.viewFor(c)
	if !ok {
		return
	}
	var request contentPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	signal, err := controller.AnswerDailyQuestion(c.Request.Context(), request.Content)
	if err != nil {
		h.writeFeedError(c, err)
		return
	}
	c.JSON(http.StatusCreated, signal)
}

func (h *httpHandler) handleCreateMission(c *gin.Context) {
	controller, ok := h.viewFor(c)
	if !ok {
		return
	}
	var draft feed.MissionDraft
	if err := c.ShouldBindJSON(&draft); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	mission, err := controller.CreateMission(c.Request.Context(), draft)
	if err != nil {
		h.writeFeedError(c, err)
		return
	}
	c.JSON(http.StatusCreated, mission)
}

func (h *httpHandler) handleReply(c *gin.Context) {
	if h.replier == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "persona_disabled"})
		return
	}
	var request replyPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	reply, err := h.replier.Reply(c.Request.Context(), request.Message, request.Frequency)
	if errors.Is(err, persona.ErrEmptyMessage) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty_message"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reply_failed", "reply": reply})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reply": reply})
}
