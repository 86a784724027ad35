// Package container provides dependency injection and lifecycle management
// for the imprest service.
package container

import (
	"fmt"
	"time"

	"github.com/lord-charles/srcc-dashboard-sub000/internal/application/service"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/infrastructure/external/lark"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/infrastructure/messaging/amqp"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/infrastructure/worker"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	Database DatabaseConfig
	Auth     AuthConfig
	Imprest  ImprestConfig
	Storage  StorageConfig

	// Lark is optional; without credentials notifications are only logged
	Lark lark.Config

	// AMQP is optional; without a URL events are not published
	AMQP amqp.Config

	Recipients service.Recipients

	Worker WorkerConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to the SQLite database file; empty selects the in-memory store
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// AutoMigrate applies pending migrations on start
	AutoMigrate bool
}

// AuthConfig holds bearer token settings.
type AuthConfig struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

// ImprestConfig holds workflow policy settings.
type ImprestConfig struct {
	AccountingWindow time.Duration
}

// StorageConfig holds receipt file storage settings.
type StorageConfig struct {
	// ReceiptDir is the base directory for uploads; empty disables uploads
	ReceiptDir  string
	URLPrefix   string
	MaxFileSize int64
}

// WorkerConfig holds background worker settings.
type WorkerConfig struct {
	Disabled bool
	Overdue  worker.OverdueScannerConfig
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:            "data/imprest.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			AutoMigrate:     true,
		},
		Auth: AuthConfig{
			Issuer: "imprest",
			TTL:    12 * time.Hour,
		},
		Imprest: ImprestConfig{
			AccountingWindow: 14 * 24 * time.Hour,
		},
		Storage: StorageConfig{
			ReceiptDir:  "data/receipts",
			URLPrefix:   "/api/v1/receipts",
			MaxFileSize: 10 << 20,
		},
		Lark: lark.Config{
			ReceiveIDType: "user_id",
		},
		AMQP: amqp.Config{
			Exchange:       "imprest.events",
			ExchangeKind:   "topic",
			PublishTimeout: 5 * time.Second,
		},
		Worker: WorkerConfig{
			Overdue: worker.DefaultOverdueScannerConfig(),
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	if c.Auth.Secret == "" {
		return fmt.Errorf("auth.secret is required")
	}
	if c.Imprest.AccountingWindow <= 0 {
		return fmt.Errorf("imprest.accounting_window must be positive")
	}
	if c.Storage.ReceiptDir != "" && c.Storage.URLPrefix == "" {
		return fmt.Errorf("storage.url_prefix is required when uploads are enabled")
	}
	if c.AMQP.URL != "" && c.AMQP.Exchange == "" {
		return fmt.Errorf("amqp.exchange is required when amqp.url is set")
	}
	return nil
}
