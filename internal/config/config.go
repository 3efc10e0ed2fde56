package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                  = "LIGHTHOUSE"
	defaultHTTPAddress         = "0.0.0.0:8080"
	defaultDatabaseDriver      = DriverSQLite
	defaultDatabaseDSN         = "lighthouse.db"
	defaultLogLevel            = "info"
	defaultCookieName          = "app_session"
	defaultIssuer              = "tauth"
	defaultTranslateEndpoint   = "https://api.mymemory.translated.net/get"
	defaultTranslateTimeout    = 10 * time.Second
	defaultGeminiModel         = "gemini-2.0-flash"
	defaultNotificationTTL     = 6 * time.Second
	defaultNotificationMaxSize = 0

	// DriverSQLite and DriverPostgres are the supported database drivers.
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress          string
	DatabaseDriver       string
	DatabaseDSN          string
	LogLevel             string
	TAuthSigningKey      string
	TAuthCookieName      string
	TAuthIssuer          string
	TranslateEndpoint    string
	TranslateTimeout     time.Duration
	GeminiAPIKey         string
	GeminiModel          string
	DiscardStaleFetches  bool
	NotificationTTL      time.Duration
	NotificationMaxItems int
	AllowedOrigins       []string
}

// PersonaEnabled reports whether AI persona replies can be served.
func (c AppConfig) PersonaEnabled() bool {
	return strings.TrimSpace(c.GeminiAPIKey) != ""
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.dsn", defaultDatabaseDSN)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("tauth.cookie_name", defaultCookieName)
	configViper.SetDefault("tauth.issuer", defaultIssuer)
	configViper.SetDefault("translate.endpoint", defaultTranslateEndpoint)
	configViper.SetDefault("translate.timeout", defaultTranslateTimeout)
	configViper.SetDefault("gemini.model", defaultGeminiModel)
	configViper.SetDefault("feed.discard_stale", false)
	configViper.SetDefault("notifications.ttl", defaultNotificationTTL)
	configViper.SetDefault("notifications.max_items", defaultNotificationMaxSize)
	configViper.SetDefault("cors.allowed_origins", []string{})

	// AutomaticEnv only resolves keys viper already knows about.
	_ = configViper.BindEnv("tauth.signing_secret")
	_ = configViper.BindEnv("gemini.api_key")
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:          strings.TrimSpace(configViper.GetString("http.address")),
		DatabaseDriver:       strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabaseDSN:          strings.TrimSpace(configViper.GetString("database.dsn")),
		LogLevel:             configViper.GetString("log.level"),
		TAuthSigningKey:      configViper.GetString("tauth.signing_secret"),
		TAuthCookieName:      strings.TrimSpace(configViper.GetString("tauth.cookie_name")),
		TAuthIssuer:          strings.TrimSpace(configViper.GetString("tauth.issuer")),
		TranslateEndpoint:    strings.TrimSpace(configViper.GetString("translate.endpoint")),
		TranslateTimeout:     configViper.GetDuration("translate.timeout"),
		GeminiAPIKey:         strings.TrimSpace(configViper.GetString("gemini.api_key")),
		GeminiModel:          strings.TrimSpace(configViper.GetString("gemini.model")),
		DiscardStaleFetches:  configViper.GetBool("feed.discard_stale"),
		NotificationTTL:      configViper.GetDuration("notifications.ttl"),
		NotificationMaxItems: configViper.GetInt("notifications.max_items"),
		AllowedOrigins:       splitOrigins(configViper.GetStringSlice("cors.allowed_origins")),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.TAuthSigningKey) == "" {
		return fmt.Errorf("tauth.signing_secret is required")
	}
	if c.DatabaseDriver != DriverSQLite && c.DatabaseDriver != DriverPostgres {
		return fmt.Errorf("database.driver must be %q or %q", DriverSQLite, DriverPostgres)
	}
	if c.DatabaseDSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.TAuthCookieName == "" {
		return fmt.Errorf("tauth.cookie_name is required")
	}
	if c.TranslateTimeout <= 0 {
		return fmt.Errorf("translate.timeout must be positive")
	}
	if c.NotificationTTL <= 0 {
		return fmt.Errorf("notifications.ttl must be positive")
	}
	if c.NotificationMaxItems < 0 {
		return fmt.Errorf("notifications.max_items must not be negative")
	}
	return nil
}

// splitOrigins accepts both list values and a single comma separated env value.
func splitOrigins(values []string) []string {
	origins := make([]string, 0, len(values))
	for _, value := range values {
		for _, origin := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
	}
	return origins
}
