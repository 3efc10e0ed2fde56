// Package translate wraps the remote machine-translation endpoint.
package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

const (
	// DefaultEndpoint is the MyMemory translation API.
	DefaultEndpoint = "https://api.mymemory.translated.net/get"

	// MaxInputLength is the longest input, in characters, sent to the remote service.
	MaxInputLength = 500

	defaultTimeout   = 10 * time.Second
	sourceLanguage   = "Autodetect"
	targetLanguage   = "en"
	sameLanguageHint = "SELECT TWO DISTINCT LANGUAGES"
)

var (
	errUnexpectedStatus = errors.New("translate: unexpected response status")
	errSameLanguage     = errors.New("translate: source and target language match")
	errEmptyTranslation = errors.New("translate: empty translation")
)

// Outcome labels a translation attempt for metrics.
type Outcome string

const (
	OutcomeTranslated Outcome = "translated"
	OutcomeSkipped    Outcome = "skipped"
	OutcomeFailed     Outcome = "failed"
)

// Recorder observes translation outcomes.
type Recorder interface {
	ObserveTranslation(outcome string)
}

// Config wires the Gateway.
type Config struct {
	Endpoint   string
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     *zap.Logger
	Recorder   Recorder
}

// Gateway translates short texts to English and never fails outward.
type Gateway struct {
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
	recorder   Recorder
}

type remoteResponse struct {
	ResponseData struct {
		TranslatedText string `json:"translatedText"`
	} `json:"responseData"`
	ResponseStatus json.Number `json:"responseStatus"`
}

// NewGateway constructs a Gateway, filling defaults for unset fields.
func NewGateway(cfg Config) *Gateway {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		endpoint:   endpoint,
		httpClient: httpClient,
		logger:     logger,
		recorder:   cfg.Recorder,
	}
}

// Translate returns the English rendering of text, or text itself when the
// input is empty, too long, or the remote call fails in any way.
func (g *Gateway) Translate(ctx context.Context, text string) string {
	if strings.TrimSpace(text) == "" || utf8.RuneCountInString(text) > MaxInputLength {
		g.observe(OutcomeSkipped)
		return text
	}
	translated, err := g.fetch(ctx, text)
	if err != nil {
		g.logger.Warn("translation failed", zap.Error(err))
		g.observe(OutcomeFailed)
		return text
	}
	g.observe(OutcomeTranslated)
	return translated
}

func (g *Gateway) fetch(ctx context.Context, text string) (string, error) {
	query := url.Values{}
	query.Set("q", text)
	query.Set("langpair", sourceLanguage+"|"+targetLanguage)

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+query.Encode(), http.NoBody)
	if err != nil {
		return "", err
	}
	response, err := g.httpClient.Do(request)
	if err != nil {
		return "", err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: http %d", errUnexpectedStatus, response.StatusCode)
	}

	var payload remoteResponse
	if err := json.NewDecoder(response.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("translate: decode response: %w", err)
	}
	status, err := payload.ResponseStatus.Int64()
	if err != nil || status != http.StatusOK {
		return "", fmt.Errorf("%w: %q", errUnexpectedStatus, payload.ResponseStatus.String())
	}
	translated := payload.ResponseData.TranslatedText
	if strings.Contains(translated, sameLanguageHint) {
		return "", errSameLanguage
	}
	if strings.TrimSpace(translated) == "" {
		return "", errEmptyTranslation
	}
	return translated, nil
}

func (g *Gateway) observe(outcome Outcome) {
	if g.recorder != nil {
		g.recorder.ObserveTranslation(string(outcome))
	}
}
