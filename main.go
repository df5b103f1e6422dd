package main

import (
	"net/http"
	"os"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"

	"licensedesk.app/server/handlers"
	"licensedesk.app/server/internal/config"
	"licensedesk.app/server/internal/logger"
	"licensedesk.app/server/license"
	"licensedesk.app/server/storage"
)

var version = "dev"

func main() {
	if versionBytes, err := os.ReadFile("VERSION"); err == nil {
		version = strings.TrimSpace(string(versionBytes))
	}

	godotenv.Load()

	cfg, err := config.New()
	if err != nil {
		logger.Error("invalid configuration", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			TracesSampleRate: 1.0,
		})
		if err != nil {
			logger.Error("sentry init failed", map[string]interface{}{"error": err.Error()})
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLiteStorage(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open storage", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	defer store.Close()

	engine := license.NewEngine(store)
	server := handlers.NewHTTPServer(cfg, engine, version)

	logger.Info("license desk starting", map[string]interface{}{
		"version": version,
		"port":    cfg.Port,
	})

	if err := http.ListenAndServe(":"+cfg.Port, server.Router); err != nil {
		logger.Error("server stopped", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
}
