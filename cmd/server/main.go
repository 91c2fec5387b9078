package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"ledgermate-backend/internal/api"
	"ledgermate-backend/internal/assistant"
	"ledgermate-backend/internal/config"
	"ledgermate-backend/internal/crypto"
	"ledgermate-backend/internal/functions"
	"ledgermate-backend/internal/handlers"
	"ledgermate-backend/internal/integrations"
	"ledgermate-backend/internal/integrations/slack"
	"ledgermate-backend/internal/llm"
	"ledgermate-backend/internal/policy"
	"ledgermate-backend/internal/services"
	"ledgermate-backend/internal/store"
	"ledgermate-backend/internal/store/postgres"
	"ledgermate-backend/pkg/logger"
)

func main() {
	// 1. Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Logger
	logg := logger.New(logger.Config{Level: cfg.LogLevel, JSON: cfg.LogJSON})
	logger.SetGlobal(logg)
	logg.Info("starting ledgermate backend", "port", cfg.HTTPPort)

	// 3. Database pool and schema
	dbCtx, dbCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer dbCancel()

	dbpool, err := pgxpool.New(dbCtx, cfg.DatabaseURL)
	if err != nil {
		fatal(logg, err, "unable to create database connection pool")
	}
	defer dbpool.Close()

	if err := dbpool.Ping(dbCtx); err != nil {
		fatal(logg, err, "unable to ping database")
	}

	pgStore := postgres.NewPostgresStore(dbpool)
	if err := pgStore.Migrate(dbCtx); err != nil {
		fatal(logg, err, "failed to apply database schema")
	}
	logg.Info("database ready")

	// 4. Credential encryption
	codec, err := crypto.NewCodec(cfg.EncryptionKey)
	if err != nil {
		fatal(logg, err, "failed to create credential codec")
	}

	// 5. Integration connectors
	intRegistry := integrations.NewDefaultRegistry()

	// 6. Model client
	model := llm.NewClient(llm.Config{
		BaseURL:        cfg.OpenAIBaseURL,
		APIKey:         cfg.OpenAIAPIKey,
		MaxRetries:     cfg.MaxRetries,
		RetryBaseDelay: cfg.RetryBaseDelay,
		HTTPTimeout:    cfg.RequestTimeout,
	})

	// 7. Tool registries
	customerReg, err := functions.NewCustomerRegistry(pgStore)
	if err != nil {
		fatal(logg, err, "failed to build customer tool registry")
	}
	invoiceReg, err := functions.NewInvoiceRegistry(pgStore)
	if err != nil {
		fatal(logg, err, "failed to build invoice tool registry")
	}
	orderReg, err := functions.NewSalesOrderRegistry(pgStore)
	if err != nil {
		fatal(logg, err, "failed to build sales order tool registry")
	}
	knowledgeReg, err := functions.NewKnowledgeRegistry(pgStore, codec)
	if err != nil {
		fatal(logg, err, "failed to build knowledge tool registry")
	}
	toolSet, err := functions.NewSet(customerReg, invoiceReg, orderReg, knowledgeReg)
	if err != nil {
		fatal(logg, err, "failed to assemble tool set")
	}

	// 8. Tool call policy
	gate, err := policy.NewFromFile(dbCtx, cfg.ToolPolicyPath)
	if err != nil {
		fatal(logg, err, "failed to load tool policy")
	}

	// 9. Orchestration engine
	engineCfg := assistant.DefaultConfig()
	engineCfg.SettingsDefaults = store.SettingsDefaults{
		DailyLimit:   cfg.DefaultDailyLimit,
		Model:        cfg.DefaultModel,
		MaxTokens:    cfg.DefaultMaxTokens,
		Temperature:  cfg.DefaultTemperature,
		SystemPrompt: engineCfg.SettingsDefaults.SystemPrompt,
	}
	engine := assistant.New(pgStore, model, toolSet, gate, engineCfg)

	// 10. Services
	authService := services.NewAuthService(pgStore, cfg)
	assistantService := services.NewAssistantService(pgStore, engine)
	settingsService := services.NewSettingsService(pgStore, engineCfg.SettingsDefaults)
	credentialsService := services.NewCredentialsService(pgStore, codec, intRegistry)
	slackSender := slack.NewSender(pgStore, codec)

	// 11. Router
	router := api.NewRouter(api.RouterDependencies{
		AuthHandler:         handlers.NewAuthHandler(authService),
		AssistantHandler:    handlers.NewAssistantHandler(assistantService),
		SettingsHandler:     handlers.NewSettingsHandler(settingsService),
		CredentialsHandler:  handlers.NewCredentialsHandler(credentialsService),
		SlackWebhookHandler: handlers.NewSlackWebhookHandler(assistantService, slackSender),
		Config:              cfg,
	})

	// 12. HTTP server
	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: router,
		// Chat exchanges legitimately run close to the 60s request timeout,
		// so the write timeout has to clear it.
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logg.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(logg, err, "server stopped unexpectedly")
		}
	}()

	<-stopChan
	logg.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		fatal(logg, err, "graceful shutdown failed")
	}
	logg.Info("server stopped")
}

func fatal(logg *logger.Logger, err error, msg string) {
	logg.LogError(err, msg)
	os.Exit(1)
}
