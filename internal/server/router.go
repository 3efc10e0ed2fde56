package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smhkhrmn/thelastpenguin/internal/auth"
	"github.com/smhkhrmn/thelastpenguin/internal/feed"
	"github.com/smhkhrmn/thelastpenguin/internal/metrics"
	"github.com/smhkhrmn/thelastpenguin/internal/notify"
	"github.com/smhkhrmn/thelastpenguin/internal/profiles"
	"github.com/smhkhrmn/thelastpenguin/internal/store"
	"go.uber.org/zap"
)

const (
	claimsContextKey    = "lighthouse_claims"
	profileContextKey   = "lighthouse_profile"
	requestIDContextKey = "lighthouse_request_id"
	requestIDHeader     = "X-Request-ID"
	streamPath          = "/stream"

	defaultHeartbeatInterval = 25 * time.Second
)

var (
	errMissingStore          = errors.New("data store dependency required")
	errMissingProfiles       = errors.New("profile service dependency required")
	errMissingSessions       = errors.New("session validator dependency required")
	errMissingRealtime       = errors.New("realtime dispatcher dependency required")
	errSessionProfileMissing = errors.New("session profile missing from request context")
)

// SessionValidator authenticates a request from its session cookie or bearer token.
type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
}

// Replier produces persona replies. A nil Replier disables /reply.
type Replier interface {
	Reply(ctx context.Context, message, frequency string) (string, error)
}

type Dependencies struct {
	Store             *store.Client
	Profiles          *profiles.Service
	Sessions          SessionValidator
	Translator        feed.Translator
	Replier           Replier
	Realtime          *RealtimeDispatcher
	Metrics           *metrics.Collectors
	MetricsGatherer   prometheus.Gatherer
	Logger            *zap.Logger
	Clock             func() time.Time
	AllowedOrigins    []string
	DiscardStale      bool
	Notifications     notify.Config
	HeartbeatInterval time.Duration
}

// HTTPHandler serves the API and owns the per-user feed views.
type HTTPHandler struct {
	engine   *gin.Engine
	views    *ViewRegistry
	realtime *RealtimeDispatcher
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.engine.ServeHTTP(w, r)
}

// Views exposes the view registry for housekeeping.
func (h *HTTPHandler) Views() *ViewRegistry {
	return h.views
}

// SweepIdleViews closes views idle for longer than idle and with no open stream.
func (h *HTTPHandler) SweepIdleViews(idle time.Duration) int {
	return h.views.Sweep(idle, func(userID string) bool {
		return h.realtime.SubscriberCount(userID) > 0
	})
}

// Close releases every feed view.
func (h *HTTPHandler) Close() {
	h.views.CloseAll()
}

func NewHTTPHandler(deps Dependencies) (*HTTPHandler, error) {
	if deps.Store == nil {
		return nil, errMissingStore
	}
	if deps.Profiles == nil {
		return nil, errMissingProfiles
	}
	if deps.Sessions == nil {
		return nil, errMissingSessions
	}
	if deps.Realtime == nil {
		return nil, errMissingRealtime
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	gatherer := deps.MetricsGatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	publicFeed, err := feed.NewSynchronizer(feed.SynchronizerConfig{
		Reader:   deps.Store,
		Clock:    deps.Clock,
		Logger:   logger,
		Recorder: deps.Metrics,
	})
	if err != nil {
		return nil, err
	}

	handler := &httpHandler{
		store:      deps.Store,
		profiles:   deps.Profiles,
		sessions:   deps.Sessions,
		replier:    deps.Replier,
		realtime:   deps.Realtime,
		publicFeed: publicFeed,
		logger:     logger,
		heartbeat:  heartbeat,
	}
	handler.views = NewViewRegistry(func(identity feed.Identity, profile *store.Profile) (*feed.Controller, error) {
		return feed.NewController(feed.ControllerConfig{
			Store:         deps.Store,
			Translator:    deps.Translator,
			Identity:      identity,
			Profile:       profile,
			Clock:         deps.Clock,
			Logger:        logger,
			Recorder:      deps.Metrics,
			DiscardStale:  deps.DiscardStale,
			Notifications: deps.Notifications,
			OnEvent: func(event feed.Event) {
				deps.Realtime.Publish(RealtimeMessage{
					UserID:    identity.UserID,
					EventType: string(event.Kind),
					Payload:   event.Payload,
				})
			},
		})
	}, deps.Clock, logger, deps.Metrics.SetActiveViews)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestID())
	router.Use(deps.Metrics.Middleware())
	router.Use(cors.New(corsConfig(deps.AllowedOrigins)))
	router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{streamPath})))

	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	router.GET("/feed", handler.handlePublicFeed)
	router.GET("/profiles/:username", handler.handlePublicProfile)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/me", handler.handleMe)
	protected.PUT("/me/profile", handler.handleProfileSetup)

	protected.GET("/view", handler.handleView)
	protected.POST("/view/filter", handler.handleSetFilter)
	protected.POST("/view/search", handler.handleSetSearch)
	protected.POST("/view/next", handler.handleNext)
	protected.POST("/view/prev", handler.handlePrev)
	protected.POST("/view/release", handler.handleRelease)
	protected.POST("/view/english", handler.handleGlobalEnglish)
	protected.POST("/view/daily", handler.handleDailyPanel)
	protected.GET("/daily/responses", handler.handleDailyResponses)

	protected.POST("/signals", handler.handleBroadcast)
	protected.POST("/signals/:id/comments", handler.handlePostComment)
	protected.POST("/signals/:id/like", handler.handleToggleLike)
	protected.POST("/signals/:id/translate", handler.handleTranslateSignal)
	protected.POST("/daily/answers", handler.handleAnswerDaily)
	protected.POST("/missions", handler.handleCreateMission)
	protected.POST("/reply", handler.handleReply)
	protected.GET(streamPath, handler.handleStream)

	return &HTTPHandler{engine: router, views: handler.views, realtime: deps.Realtime}, nil
}

type httpHandler struct {
	store      *store.Client
	profiles   *profiles.Service
	sessions   SessionValidator
	replier    Replier
	realtime   *RealtimeDispatcher
	views      *ViewRegistry
	publicFeed *feed.Synchronizer
	logger     *zap.Logger
	heartbeat  time.Duration
}

func corsConfig(origins []string) cors.Config {
	config := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", requestIDHeader},
		ExposeHeaders:    []string{requestIDHeader},
		AllowCredentials: len(origins) > 0,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
	}
	return config
}

// requestID propagates X-Request-ID, generating one when absent.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(requestIDContextKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// authorizeRequest validates the session and resolves the caller's profile.
func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		fields := []zap.Field{zap.String("request_id", c.GetString(requestIDContextKey)), zap.Error(err)}
		if errors.Is(err, auth.ErrExpiredSessionToken) || errors.Is(err, auth.ErrMissingSessionToken) || errors.Is(err, jwt.ErrTokenExpired) {
			h.logger.Info("session validation failed", fields...)
		} else {
			h.logger.Warn("session validation failed", fields...)
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	profile, err := h.profiles.Resolve(c.Request.Context(), claims)
	if err != nil {
		if errors.Is(err, profiles.ErrInvalidIdentity) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		h.logger.Error("profile resolution failed", zap.String("request_id", c.GetString(requestIDContextKey)), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "profile_unavailable"})
		return
	}
	c.Set(claimsContextKey, claims)
	c.Set(profileContextKey, profile)
	c.Next()
}

func sessionFrom(c *gin.Context) (auth.SessionClaims, *store.Profile, error) {
	claims, _ := c.Get(claimsContextKey)
	profile, _ := c.Get(profileContextKey)
	sessionClaims, okClaims := claims.(auth.SessionClaims)
	sessionProfile, okProfile := profile.(*store.Profile)
	if !okClaims || !okProfile || sessionProfile == nil {
		return auth.SessionClaims{}, nil, errSessionProfileMissing
	}
	return sessionClaims, sessionProfile, nil
}

// viewFor returns the caller's feed controller, opening it on first use.
func (h *httpHandler) viewFor(c *gin.Context) (*feed.Controller, bool) {
	claims, profile, err := sessionFrom(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil, false
	}
	identity := feed.Identity{
		UserID:      profile.ID,
		DisplayName: claims.DisplayName(),
		AvatarURL:   claims.UserAvatarURL,
	}
	controller, err := h.views.Acquire(c.Request.Context(), identity, profile)
	if err != nil {
		h.logger.Error("feed view unavailable", zap.String("user_id", profile.ID), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "view_unavailable"})
		return nil, false
	}
	return controller, true
}
