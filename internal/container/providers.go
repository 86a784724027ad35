package container

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/lord-charles/srcc-dashboard-sub000/internal/application/dispatcher"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/application/port"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/application/service"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/application/workflow"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/event"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/infrastructure/auth"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/infrastructure/export"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/infrastructure/external/lark"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/infrastructure/messaging/amqp"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/infrastructure/persistence/memory"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/infrastructure/persistence/repository"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/infrastructure/persistence/sqlite"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/infrastructure/storage"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/infrastructure/worker"
	"github.com/lord-charles/srcc-dashboard-sub000/pkg/database"
)

// DatabaseBundle holds database-related components.
// DB is nil when the in-memory store is used.
type DatabaseBundle struct {
	DB           *database.DB
	TxManager    port.TransactionManager
	Repositories *RepositoryBundle
}

// ProvideDatabase opens the configured backend and builds its repositories.
// SQLite databases are migrated first when AutoMigrate is set.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if cfg.Path == "" {
		logger.Warn("No database path configured, using in-memory store")
		store := memory.NewStore()
		return &DatabaseBundle{
			TxManager: store,
			Repositories: &RepositoryBundle{
				Imprest:     store.Imprests(),
				History:     store.History(),
				Idempotency: store.Idempotency(),
			},
		}, nil
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	if cfg.AutoMigrate {
		if err := database.NewMigrator(cfg.Path, logger).Up(); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	return &DatabaseBundle{
		DB:        db,
		TxManager: sqlite.NewDB(db.DB, logger),
		Repositories: &RepositoryBundle{
			Imprest:     repository.NewImprestRepository(db.DB, logger),
			History:     repository.NewHistoryRepository(db.DB, logger),
			Idempotency: repository.NewIdempotencyRepository(db.DB, logger),
		},
	}, nil
}

// ProvideTokenService creates the bearer token issuer and verifier.
func ProvideTokenService(cfg *AuthConfig) (*auth.TokenService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("auth config is required")
	}
	return auth.NewTokenService(cfg.Secret, cfg.Issuer, cfg.TTL)
}

// ProvideNotifier returns the Lark messenger when credentials are configured,
// otherwise a notifier that only logs.
func ProvideNotifier(cfg *lark.Config, logger *zap.Logger) port.Notifier {
	if cfg == nil || !cfg.Enabled() {
		logger.Warn("Lark credentials not configured, notifications will only be logged")
		return &logNotifier{logger: logger}
	}
	return lark.NewSDKClient(*cfg, logger).Messenger()
}

// ProvidePublisher connects the AMQP event publisher; it returns nil when no URL is configured.
func ProvidePublisher(cfg *amqp.Config, logger *zap.Logger) (port.EventPublisher, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, nil
	}
	publisher, err := amqp.NewPublisher(*cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect event publisher: %w", err)
	}
	return publisher, nil
}

// ProvideReceiptStorage creates receipt file storage; it returns nil when uploads are disabled.
func ProvideReceiptStorage(cfg *StorageConfig, logger *zap.Logger) *storage.LocalReceiptStorage {
	if cfg == nil || cfg.ReceiptDir == "" {
		return nil
	}
	return storage.NewLocalReceiptStorage(cfg.ReceiptDir, cfg.URLPrefix, cfg.MaxFileSize, logger)
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(logger *zap.Logger) dispatcher.Dispatcher {
	return dispatcher.NewDispatcher(dispatcher.WithLogger(logger))
}

// WorkflowDeps are the collaborators of the transition engine.
type WorkflowDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Dispatcher dispatcher.Dispatcher
	Logger     *zap.Logger
}

// ProvideWorkflowEngine creates the transition engine.
func ProvideWorkflowEngine(deps *WorkflowDeps) (workflow.Engine, error) {
	if deps == nil || deps.Repos == nil || deps.TxManager == nil {
		return nil, fmt.Errorf("repositories and transaction manager are required")
	}
	return workflow.NewEngine(
		deps.Repos.Imprest,
		deps.Repos.History,
		deps.Repos.Idempotency,
		deps.TxManager,
		workflow.WithDispatcher(deps.Dispatcher),
		workflow.WithLogger(deps.Logger),
	), nil
}

// ServiceDeps are the collaborators of the application services.
type ServiceDeps struct {
	Engine     workflow.Engine
	Repos      *RepositoryBundle
	Receipts   port.ReceiptStorage
	Notifier   port.Notifier
	Recipients service.Recipients
	Imprest    *ImprestConfig
	Logger     *zap.Logger
}

// ProvideServices creates all application services.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil || deps.Engine == nil || deps.Repos == nil {
		return nil, fmt.Errorf("engine and repositories are required")
	}

	opts := []service.ServiceOption{
		service.WithAccountingWindow(deps.Imprest.AccountingWindow),
	}
	if deps.Receipts != nil {
		opts = append(opts, service.WithReceiptStorage(deps.Receipts))
	}

	return &ServiceBundle{
		Imprest:      service.NewImprestService(deps.Engine, deps.Repos.Imprest, deps.Repos.History, deps.Logger, opts...),
		Stats:        service.NewStatsService(deps.Repos.Imprest, export.NewExcelExporter(deps.Logger), deps.Logger),
		Notification: service.NewNotificationService(deps.Notifier, deps.Recipients, deps.Logger),
	}, nil
}

// RegisterEventHandlers subscribes notifications and, when configured, broker publishing.
func RegisterEventHandlers(d dispatcher.Dispatcher, notifications service.NotificationService, publisher port.EventPublisher) {
	notifications.RegisterHandlers(d)
	if publisher != nil {
		d.SubscribeAll("amqp.publish", func(ctx context.Context, evt *event.Event) error {
			return publisher.Publish(ctx, evt)
		})
	}
}

// ProvideWorkers creates the worker manager with its workers registered.
func ProvideWorkers(cfg *WorkerConfig, repos *RepositoryBundle, d dispatcher.Dispatcher, logger *zap.Logger) *worker.WorkerManager {
	manager := worker.NewWorkerManager(logger)
	manager.Register(worker.NewOverdueScanner(cfg.Overdue, repos.Imprest, d, logger))
	return manager
}

// logNotifier stands in for a chat channel when none is configured
type logNotifier struct {
	logger *zap.Logger
}

func (n *logNotifier) Notify(ctx context.Context, msg port.Notification) error {
	n.logger.Info("Notification",
		zap.String("recipient_id", msg.RecipientID),
		zap.String("title", msg.Title),
		zap.String("body", msg.Body))
	return nil
}
