package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smhkhrmn/thelastpenguin/internal/auth"
	"github.com/smhkhrmn/thelastpenguin/internal/config"
	"github.com/smhkhrmn/thelastpenguin/internal/database"
	"github.com/smhkhrmn/thelastpenguin/internal/logging"
	"github.com/smhkhrmn/thelastpenguin/internal/metrics"
	"github.com/smhkhrmn/thelastpenguin/internal/notify"
	"github.com/smhkhrmn/thelastpenguin/internal/persona"
	"github.com/smhkhrmn/thelastpenguin/internal/profiles"
	"github.com/smhkhrmn/thelastpenguin/internal/server"
	"github.com/smhkhrmn/thelastpenguin/internal/store"
	"github.com/smhkhrmn/thelastpenguin/internal/translate"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	shutdownTimeout   = 10 * time.Second
	viewSweepInterval = time.Minute
	viewIdleTimeout   = 30 * time.Minute
)

var (
	cfgFile string
	envFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "lighthouse-api",
		Short:         "The Last Penguin feed service",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newServeCommand(), newQuestionsCommand(), newSessionCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Path to configuration file")
	flags.StringVar(&envFile, "env-file", ".env", "Optional dotenv file loaded before configuration")
	flags.String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	flags.String("database-driver", defaults.GetString("database.driver"), "Database driver (sqlite, postgres)")
	flags.String("database-dsn", defaults.GetString("database.dsn"), "Database file path or DSN")
	flags.String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	flags.String("signing-secret", "", "Session signing secret (overrides env)")
	flags.Bool("discard-stale", defaults.GetBool("feed.discard_stale"), "Drop feed fetches superseded by a newer one")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "tauth.signing_secret", "signing-secret")
	bindFlag(cmd, "feed.discard_stale", "discard-stale")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

func newQuestionsCommand() *cobra.Command {
	questions := &cobra.Command{
		Use:   "questions",
		Short: "Manage daily questions",
	}
	questions.AddCommand(&cobra.Command{
		Use:   "add <question>",
		Short: "Publish a new daily question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content := strings.TrimSpace(strings.Join(args, " "))
			if content == "" {
				return errors.New("question text is required")
			}
			appConfig, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			db, closeDB, err := openDatabase(appConfig, logger)
			if err != nil {
				return err
			}
			defer closeDB()

			client, err := store.NewClient(store.ClientConfig{Database: db})
			if err != nil {
				return err
			}
			question := &store.DailyQuestion{Content: content}
			if err := client.InsertDailyQuestion(cmd.Context(), question); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "daily question %d published\n", question.ID)
			return nil
		},
	})
	return questions
}

func newSessionCommand() *cobra.Command {
	var (
		displayName string
		email       string
		ttl         time.Duration
	)
	session := &cobra.Command{
		Use:   "session",
		Short: "Development session helpers",
	}
	mint := &cobra.Command{
		Use:   "mint <user-id>",
		Short: "Print a signed session token for local testing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
				SigningSecret: []byte(appConfig.TAuthSigningKey),
				Issuer:        appConfig.TAuthIssuer,
				TokenTTL:      ttl,
			})
			if err != nil {
				return err
			}
			token, expiresAt, err := issuer.IssueSessionToken(cmd.Context(), auth.SessionIdentity{
				UserID:      args[0],
				Email:       email,
				DisplayName: displayName,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n# expires %s\n", appConfig.TAuthCookieName, token, expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	mint.Flags().StringVar(&displayName, "name", "", "Display name claim")
	mint.Flags().StringVar(&email, "email", "", "Email claim")
	mint.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	session.AddCommand(mint)
	return session
}

func loadRuntime() (config.AppConfig, *zap.Logger, error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return config.AppConfig{}, nil, err
	}
	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return config.AppConfig{}, nil, err
	}
	return appConfig, logger, nil
}

func openDatabase(appConfig config.AppConfig, logger *zap.Logger) (*gorm.DB, func(), error) {
	db, err := database.Open(appConfig.DatabaseDriver, appConfig.DatabaseDSN, logger)
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	return db, func() { _ = sqlDB.Close() }, nil
}

func runServer(ctx context.Context) error {
	appConfig, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, closeDB, err := openDatabase(appConfig, logger)
	if err != nil {
		return err
	}
	defer closeDB()

	collectors, err := metrics.New(prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}

	dataStore, err := store.NewClient(store.ClientConfig{Database: db})
	if err != nil {
		return err
	}

	profileService, err := profiles.NewService(profiles.ServiceConfig{Store: dataStore, Logger: logger})
	if err != nil {
		return err
	}

	sessionValidator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.TAuthSigningKey),
		Issuer:        appConfig.TAuthIssuer,
		CookieName:    appConfig.TAuthCookieName,
	})
	if err != nil {
		return err
	}

	translator := translate.NewGateway(translate.Config{
		Endpoint: appConfig.TranslateEndpoint,
		Timeout:  appConfig.TranslateTimeout,
		Logger:   logger,
		Recorder: collectors,
	})

	var replier server.Replier
	if appConfig.PersonaEnabled() {
		generator, err := persona.NewGeminiGenerator(ctx, appConfig.GeminiAPIKey, appConfig.GeminiModel)
		if err != nil {
			return err
		}
		personaReplier, err := persona.NewReplier(generator, logger)
		if err != nil {
			return err
		}
		replier = personaReplier
	} else {
		logger.Info("persona replies disabled", zap.String("reason", "gemini.api_key not set"))
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Store:          dataStore,
		Profiles:       profileService,
		Sessions:       sessionValidator,
		Translator:     translator,
		Replier:        replier,
		Realtime:       server.NewRealtimeDispatcher(),
		Metrics:        collectors,
		Logger:         logger,
		AllowedOrigins: appConfig.AllowedOrigins,
		DiscardStale:   appConfig.DiscardStaleFetches,
		Notifications: notify.Config{
			TTL:      appConfig.NotificationTTL,
			MaxItems: appConfig.NotificationMaxItems,
		},
	})
	if err != nil {
		return err
	}
	defer handler.Close()

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpServer := newHTTPServer(signalCtx, appConfig.HTTPAddress, handler)

	go sweepIdleViews(signalCtx, handler, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress), zap.String("database_driver", appConfig.DatabaseDriver))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// newHTTPServer derives every request context from ctx so open event streams
// end as soon as shutdown begins.
func newHTTPServer(ctx context.Context, address string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:    address,
		Handler: handler,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}

func sweepIdleViews(ctx context.Context, handler *server.HTTPHandler, logger *zap.Logger) {
	ticker := time.NewTicker(viewSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if closed := handler.SweepIdleViews(viewIdleTimeout); closed > 0 {
				logger.Debug("idle views swept", zap.Int("closed", closed), zap.Int("live", handler.Views().Count()))
			}
		}
	}
}
