package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lmittmann/tint"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	api "mailsweep-backend/cmd/api"
	criteriaDelivery "mailsweep-backend/internal/criteria/delivery"
	criteriadomain "mailsweep-backend/internal/criteria/domain"
	criteriaRepo "mailsweep-backend/internal/criteria/repository"
	"mailsweep-backend/internal/digest"
	"mailsweep-backend/internal/notification"
	statedomain "mailsweep-backend/internal/state/domain"
	stateRepo "mailsweep-backend/internal/state/repository"
	triageDelivery "mailsweep-backend/internal/triage/delivery"
	"mailsweep-backend/internal/triage/usecase"
	"mailsweep-backend/pkg/classifier"
	"mailsweep-backend/pkg/config"
	"mailsweep-backend/pkg/gmail"
	"mailsweep-backend/pkg/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting mailsweep backend")

	store, criteriaRepository, err := buildStores(cfg, logger)
	if err != nil {
		logger.Error("failed to set up storage", "error", err)
		os.Exit(1)
	}

	mailService := gmail.NewService(cfg.GoogleClientID, cfg.GoogleClientSecret,
		cfg.TopicName(), gmail.NewStaticTokens(cfg.MailboxTokens()))

	llm, err := classifier.NewOpenRouter(cfg.OpenRouterAPIKey, cfg.OpenRouterBaseURL, cfg.ClassifierModel)
	if err != nil {
		logger.Error("failed to create classifier", "error", err)
		os.Exit(1)
	}

	notifier, err := telegram.New(cfg.TelegramBotToken, cfg.TelegramChatID, logger)
	if err != nil {
		logger.Error("failed to create telegram notifier", "error", err)
		os.Exit(1)
	}

	engine := usecase.NewEngine(llm, criteriaRepository, cfg.ClassifierTimeout, logger)
	controller := usecase.NewController(mailService, store, engine, cfg.JobIdleTimeout, logger)
	synchronizer := usecase.NewSynchronizer(mailService, store, engine, notifier, logger)
	feedback := usecase.NewFeedback(mailService, store, criteriaRepository, logger)
	digestService := digest.NewService(store, notifier, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Push notification intake, only when a GCP project is configured.
	if cfg.PubSubEnabled() {
		intake, err := notification.NewService(cfg.GoogleProjectID, cfg.PubSubTopic,
			cfg.GoogleCredentials, synchronizer, logger)
		if err != nil {
			logger.Error("failed to create notification intake", "error", err)
			os.Exit(1)
		}
		defer intake.Close()

		go func() {
			if err := intake.Start(ctx); err != nil {
				logger.Error("notification intake stopped", "error", err)
			}
		}()

		for _, mailbox := range cfg.Mailboxes {
			if _, err := synchronizer.RegisterWatch(ctx, mailbox); err != nil {
				logger.Warn("watch registration failed", "mailbox", mailbox, "error", err)
			}
		}
	} else {
		logger.Info("pub/sub intake disabled, no GOOGLE_PROJECT_ID configured")
	}

	triageHandler := triageDelivery.NewTriageHandler(controller, synchronizer, feedback,
		digestService, store, triageDelivery.HandlerOpts{
			Mailboxes:        cfg.Mailboxes,
			NotifierEnabled:  notifier.Enabled(),
			PersistentStore:  cfg.DatabaseURL != "",
			DefaultBatchSize: cfg.DefaultBatchSize,
		})
	criteriaHandler := criteriaDelivery.NewCriteriaHandler(criteriaRepository)

	router := gin.Default()
	api.SetupRoutes(router, triageHandler, criteriaHandler)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh

		logger.Info("received shutdown signal", "signal", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	logger.Info("listening", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("stopped")
}

// buildStores opens the Postgres-backed stores when DATABASE_URL is set and
// falls back to the in-memory ones otherwise.
func buildStores(cfg *config.Config, logger *slog.Logger) (stateRepo.Store, criteriaRepo.Repository, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("no DATABASE_URL configured, state will not survive restarts")
		return stateRepo.NewMemoryStore(), criteriaRepo.NewMemoryRepository(), nil
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		return nil, nil, err
	}
	if err := db.AutoMigrate(
		&statedomain.MailboxCheckpoint{},
		&statedomain.MessageDecision{},
		&statedomain.AlertItem{},
		&criteriadomain.Criterion{},
	); err != nil {
		return nil, nil, err
	}
	logger.Info("database connected and migrated")
	return stateRepo.NewGormStore(db), criteriaRepo.NewGormRepository(db), nil
}

func setupLogger(level, format string) *slog.Logger {
	var handler slog.Handler
	logLevel := parseLevel(level)

	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: logLevel,
		})
	} else {
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      logLevel,
			TimeFormat: time.DateTime,
		})
	}

	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
