package main

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/plateworks/platespot/internal/auth"
	"github.com/plateworks/platespot/internal/config"
	"github.com/plateworks/platespot/internal/database"
	"github.com/plateworks/platespot/internal/logging"
	"github.com/plateworks/platespot/internal/notify"
	"github.com/plateworks/platespot/internal/ocr"
	"github.com/plateworks/platespot/internal/plates"
	"github.com/plateworks/platespot/internal/players"
	"github.com/plateworks/platespot/internal/racer"
	"github.com/plateworks/platespot/internal/ratelimit"
	"github.com/plateworks/platespot/internal/server"
	"github.com/plateworks/platespot/internal/sessions"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "platespot-api",
		Short: "PlateSpot plate game and racing backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("bot-token", "", "Telegram bot token (overrides env)")
	cmd.PersistentFlags().String("signing-secret", "", "Backend signing secret (overrides env)")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("auth.token_ttl_minutes"), "Backend token TTL in minutes")
	cmd.PersistentFlags().Int64("game-id", defaults.GetInt64("game.id"), "Active plate game identifier")
	cmd.PersistentFlags().String("admin-ids", "", "Comma-separated admin player ids")
	cmd.PersistentFlags().String("ocr-url", "", "Plate recognition provider URL")
	cmd.PersistentFlags().String("ocr-api-key", "", "Plate recognition provider API key")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "bot.token", "bot-token")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "auth.token_ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "game.id", "game-id")
	bindFlag(cmd, "admin.ids", "admin-ids")
	bindFlag(cmd, "ocr.url", "ocr-url")
	bindFlag(cmd, "ocr.api_key", "ocr-api-key")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	// A local .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

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

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	verifier, err := auth.NewInitDataVerifier(auth.InitDataVerifierConfig{
		BotToken: appConfig.BotToken,
	})
	if err != nil {
		return err
	}
	tokenManager := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		TokenTTL:      appConfig.TokenTTL,
	})

	playersService, err := players.NewService(db)
	if err != nil {
		return err
	}
	platesService, err := plates.NewService(plates.ServiceConfig{
		Database:         db,
		GameID:           appConfig.GameID,
		SubmissionPoints: appConfig.SubmissionPoints,
		SpottedBonus:     appConfig.SpottedBonus,
		Logger:           logger,
	})
	if err != nil {
		return err
	}
	racerService, err := racer.NewService(racer.ServiceConfig{
		Database: db,
		Rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	sessionService, err := sessions.NewService(sessions.ServiceConfig{Database: db})
	if err != nil {
		return err
	}
	limiter, err := ratelimit.NewLimiter(ratelimit.LimiterConfig{Database: db})
	if err != nil {
		return err
	}

	var notifier notify.Notifier = notify.Nop{}
	telegramNotifier, err := notify.NewTelegram(appConfig.BotToken)
	if err != nil {
		logger.Warn("telegram notifier unavailable, notifications disabled", zap.Error(err))
	} else {
		notifier = telegramNotifier
	}

	var recognizer ocr.Recognizer
	if appConfig.OCRURL != "" && appConfig.OCRAPIKey != "" {
		recognizer, err = ocr.NewClient(ocr.ClientConfig{
			Endpoint: appConfig.OCRURL,
			APIKey:   appConfig.OCRAPIKey,
		})
		if err != nil {
			return err
		}
	} else {
		logger.Info("no recognition provider configured, photo submissions rely on captions")
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		InitDataVerifier: verifier,
		TokenManager:     tokenManager,
		PlayersService:   playersService,
		PlatesService:    platesService,
		RacerService:     racerService,
		Recognizer:       recognizer,
		Notifier:         notifier,
		Limiter:          limiter,
		AdminIDs:         appConfig.AdminIDs,
		SubmitsPerDay:    appConfig.SubmitsPerDay,
		Hashtag:          appConfig.Hashtag,
		Logger:           logger,
	})
	if err != nil {
		return err
	}

	challengeNotifier, err := racer.NewChallengeNotifier(db, notifier, logger)
	if err != nil {
		return err
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(5*time.Second),
		gocron.NewTask(func() { challengeNotifier.Run(signalCtx) }),
	)
	if err != nil {
		return err
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			purged, err := sessionService.PurgeExpired(signalCtx)
			if err != nil {
				logger.Error("session sweep failed", zap.Error(err))
				return
			}
			if purged > 0 {
				logger.Debug("expired sessions purged", zap.Int64("count", purged))
			}
		}),
	)
	if err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Shutdown() //nolint:errcheck

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
