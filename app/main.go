package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maxsanz/keyword-universe/app/api"
	"github.com/maxsanz/keyword-universe/app/cfg"
	"github.com/maxsanz/keyword-universe/app/config"
	"github.com/maxsanz/keyword-universe/app/database"
	"github.com/maxsanz/keyword-universe/app/ingest"
	"github.com/maxsanz/keyword-universe/app/llm"
	"github.com/maxsanz/keyword-universe/app/tasks"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown, exit gracefully
		return
	}

	logLevel := slog.LevelInfo
	if appCfg.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("Starting Keyword Universe server", "version", appCfg.Version)

	db, err := database.NewConnection(appCfg.DBPath)
	if err != nil {
		slog.Error("Failed to open database", "path", appCfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run database migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database ready", "path", appCfg.DBPath, "schema_version", version, "dirty", dirty)

	if err := os.MkdirAll(appCfg.UploadsDir, 0o755); err != nil {
		slog.Error("Failed to create uploads directory", "dir", appCfg.UploadsDir, "error", err)
		os.Exit(1)
	}

	profiles, err := config.NewLoader(appCfg.ProfilesDir).LoadAll()
	if err != nil {
		slog.Error("Failed to load analysis profiles", "dir", appCfg.ProfilesDir, "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded analysis profiles", "count", len(profiles))

	clients, err := llm.NewClients(llm.Options{
		Provider:        appCfg.Provider,
		AnthropicAPIKey: appCfg.AnthropicAPIKey,
		AnthropicModel:  appCfg.AnthropicModel,
		OpenAIAPIKey:    appCfg.OpenAIAPIKey,
		OpenAIBaseURL:   appCfg.OpenAIBaseURL,
		OpenAIModel:     appCfg.OpenAIModel,
		MaxTokens:       appCfg.MaxTokens,
	})
	if err != nil {
		slog.Error("Failed to configure LLM providers", "provider", appCfg.Provider, "error", err)
		os.Exit(1)
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}

	var semrush *ingest.Semrush
	if appCfg.SemrushAPIKey != "" {
		semrush = ingest.NewSemrush(appCfg.SemrushAPIKey, appCfg.SemrushDatabase, httpClient)
		slog.Info("Semrush ingestion enabled", "database", appCfg.SemrushDatabase)
	}

	analyzer := ingest.NewURLAnalyzer(httpClient, appCfg.UserAgent)

	runRepo := database.NewRunRepository(db)
	universeRepo := database.NewUniverseRepository(db)

	scheduler := tasks.NewScheduler(universeRepo)
	scheduler.Start()
	defer scheduler.Stop()
	slog.Info("Background scheduler started", "workers", appCfg.WorkerCount)

	apiHandler := api.NewHandler(db, runRepo, universeRepo, profiles, clients, semrush, analyzer, scheduler, appCfg.UploadsDir)
	server := api.NewServer(apiHandler, appCfg.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
