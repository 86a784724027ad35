package config

import (
	"github.com/lord-charles/srcc-dashboard-sub000/internal/application/service"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/container"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/infrastructure/external/lark"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/infrastructure/messaging/amqp"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/infrastructure/worker"
	apihttp "github.com/lord-charles/srcc-dashboard-sub000/internal/interfaces/http"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
			AutoMigrate:     c.Database.AutoMigrate,
		},
		Auth: container.AuthConfig{
			Secret: c.Auth.JWTSecret,
			Issuer: c.Auth.Issuer,
			TTL:    c.Auth.TokenTTL,
		},
		Imprest: container.ImprestConfig{
			AccountingWindow: c.Imprest.AccountingWindow,
		},
		Storage: container.StorageConfig{
			ReceiptDir:  c.Receipts.Dir,
			URLPrefix:   c.Receipts.URLPrefix,
			MaxFileSize: c.Receipts.MaxFileSize,
		},
		Lark: lark.Config{
			AppID:         c.Lark.AppID,
			AppSecret:     c.Lark.AppSecret,
			ReceiveIDType: c.Lark.ReceiveIDType,
		},
		AMQP: amqp.Config{
			URL:            c.AMQP.URL,
			Exchange:       c.AMQP.Exchange,
			ExchangeKind:   c.AMQP.ExchangeKind,
			PublishTimeout: c.AMQP.PublishTimeout,
		},
		Recipients: service.Recipients{
			HODs:        c.Notify.HODs,
			Accountants: c.Notify.Accountants,
			Admins:      c.Notify.Admins,
		},
		Worker: container.WorkerConfig{
			Overdue: worker.OverdueScannerConfig{Interval: c.Worker.OverdueScanInterval},
		},
	}
}

// ToServerConfig converts the server section to the HTTP adapter's config
func (c *Config) ToServerConfig() apihttp.ServerConfig {
	return apihttp.ServerConfig{
		Host:            c.Server.Host,
		Port:            c.Server.Port,
		ReadTimeout:     c.Server.ReadTimeout,
		WriteTimeout:    c.Server.WriteTimeout,
		RateLimit:       c.Server.RateLimit,
		RateBurst:       c.Server.RateBurst,
		MaxUploadMemory: c.Server.MaxUploadMemory,
	}
}
