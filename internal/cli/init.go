// Package cli holds the initialization steps shared by the daemon and the
// simulator binaries.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"stepledger/internal/config"
	"stepledger/internal/log"
	"stepledger/internal/storage"
)

// SetupLogger builds the structured logger and installs it as the slog
// default.
func SetupLogger() *log.Logger {
	logger := log.New(log.DefaultConfig())
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads a .env file for local development. Missing files are
// fine, production sets real environment variables.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and exits on validation failure.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", log.FieldError, err.Error())
		os.Exit(1)
	}
	return cfg
}

// InitStorage opens the ledger repository or exits.
func InitStorage(logger *log.Logger, dbPath string) *storage.LedgerRepository {
	repo, err := storage.NewLedgerRepository(dbPath)
	if err != nil {
		logger.Error("opening ledger storage", log.FieldError, err.Error(), "path", dbPath)
		os.Exit(1)
	}
	return repo
}

// SignalContext returns a context canceled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
