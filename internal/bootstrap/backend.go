// Package bootstrap assembles the records backend shared by the API server
// and the operator CLI.
package bootstrap

import (
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/cbc-grading-api/internal/backend"
	"github.com/noah-isme/cbc-grading-api/internal/client"
	"github.com/noah-isme/cbc-grading-api/internal/config"
	"github.com/noah-isme/cbc-grading-api/internal/database"
	"github.com/noah-isme/cbc-grading-api/internal/repository"
)

// Records is the configured backend plus the database handle, when one is open.
// DB is set in database mode, and in REST mode when a database URL is configured
// for the grading audit trail.
type Records struct {
	backend.Backend
	DB *gorm.DB
}

// Close releases the database connection pool.
func (r Records) Close() error {
	if r.DB == nil {
		return nil
	}
	sqlDB, err := r.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// OpenRecords connects to the backend selected by cfg.BackendMode.
func OpenRecords(cfg config.Config, logger zerolog.Logger) (Records, error) {
	var records Records

	if cfg.DatabaseURL != "" {
		db, err := database.ConnectPostgres(cfg.DatabaseURL)
		if err != nil {
			return Records{}, err
		}
		if err := database.Migrate(db); err != nil {
			return Records{}, err
		}
		records.DB = db
	}

	switch cfg.BackendMode {
	case config.BackendDatabase:
		if records.DB == nil {
			return Records{}, fmt.Errorf("database backend requires a database url")
		}
		records.Backend = repository.NewGradingStore(records.DB)
	case config.BackendREST:
		restClient, err := client.New(client.Config{
			BaseURL:       cfg.BackendURL,
			Token:         cfg.BackendToken,
			Timeout:       cfg.BackendTimeout,
			TrailingSlash: cfg.BackendTrailingSlash,
			UserAgent:     cfg.AppName,
		}, logger)
		if err != nil {
			_ = records.Close()
			return Records{}, err
		}
		records.Backend = restClient
	default:
		_ = records.Close()
		return Records{}, fmt.Errorf("unknown backend mode %q", cfg.BackendMode)
	}

	logger.Info().Str("backend", cfg.BackendMode).Bool("database", records.DB != nil).Msg("records backend ready")
	return records, nil
}
