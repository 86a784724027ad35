package container

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/lord-charles/srcc-dashboard-sub000/internal/application/dispatcher"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/application/port"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/application/service"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/application/workflow"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/infrastructure/auth"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/infrastructure/storage"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/infrastructure/worker"
	"github.com/lord-charles/srcc-dashboard-sub000/pkg/database"
)

// Container manages all application dependencies and lifecycle.
// Components are initialized in dependency order and torn down in reverse.
type Container struct {
	config *Config
	logger *zap.Logger

	// Infrastructure - Data
	db           *database.DB
	txManager    port.TransactionManager
	repositories *RepositoryBundle

	// Infrastructure - External
	notifier  port.Notifier
	publisher port.EventPublisher
	tokens    *auth.TokenService

	// Infrastructure - Storage
	receipts *storage.LocalReceiptStorage

	// Application
	dispatcher dispatcher.Dispatcher
	engine     workflow.Engine
	services   *ServiceBundle

	// Workers
	workers *worker.WorkerManager

	// Lifecycle
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Imprest     port.ImprestRepository
	History     port.HistoryRepository
	Idempotency port.IdempotencyRepository
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Imprest      service.ImprestService
	Stats        service.StatsService
	Notification service.NotificationService
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components and begins processing.
// Components are initialized in dependency order:
// 1. Database and repositories
// 2. External clients (token service, notifier, event publisher)
// 3. Receipt storage
// 4. Event dispatcher and workflow engine
// 5. Application services and event handlers
// 6. Workers
func (c *Container) Start(ctx context.Context) (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization")

	defer func() {
		if err != nil {
			c.teardown()
		}
	}()

	if err := c.initDatabase(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.logger.Info("Database initialized")

	if err := c.initExternalClients(); err != nil {
		return fmt.Errorf("failed to initialize external clients: %w", err)
	}
	c.logger.Info("External clients initialized")

	c.receipts = ProvideReceiptStorage(&c.config.Storage, c.logger)
	c.logger.Info("Storage initialized", zap.Bool("uploads_enabled", c.receipts != nil))

	if err := c.initDispatcherAndWorkflow(); err != nil {
		return fmt.Errorf("failed to initialize dispatcher and workflow: %w", err)
	}
	c.logger.Info("Dispatcher and workflow engine initialized")

	if err := c.initServices(); err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	c.logger.Info("Application services initialized")

	if err := c.initWorkers(); err != nil {
		return fmt.Errorf("failed to initialize workers: %w", err)
	}

	c.ready.Store(true)
	c.logger.Info("Container started successfully")

	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")
	err := c.teardown()
	c.closed.Store(true)
	c.ready.Store(false)

	if err != nil {
		c.logger.Error("Container closed with errors", zap.Error(err))
		return err
	}
	c.logger.Info("Container closed successfully")
	return nil
}

// teardown must be called with mu held
func (c *Container) teardown() error {
	var errs []error

	if c.cancel != nil {
		c.cancel()
	}

	if c.workers != nil && c.workers.IsRunning() {
		if err := c.workers.StopAll(); err != nil {
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		} else {
			c.logger.Info("Workers stopped")
		}
	}

	// drains in-flight notifications before the publisher goes away
	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		}
		c.dispatcher = nil
	}

	if c.publisher != nil {
		if err := c.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
		c.publisher = nil
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
		c.db = nil
	}

	return errors.Join(errs...)
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

func (c *Container) initDatabase() error {
	bundle, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return err
	}

	c.db = bundle.DB
	c.txManager = bundle.TxManager
	c.repositories = bundle.Repositories
	return nil
}

func (c *Container) initExternalClients() error {
	tokens, err := ProvideTokenService(&c.config.Auth)
	if err != nil {
		return err
	}
	c.tokens = tokens

	c.notifier = ProvideNotifier(&c.config.Lark, c.logger)

	publisher, err := ProvidePublisher(&c.config.AMQP, c.logger)
	if err != nil {
		return err
	}
	c.publisher = publisher
	return nil
}

func (c *Container) initDispatcherAndWorkflow() error {
	c.dispatcher = ProvideDispatcher(c.logger)

	engine, err := ProvideWorkflowEngine(&WorkflowDeps{
		Repos:      c.repositories,
		TxManager:  c.txManager,
		Dispatcher: c.dispatcher,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}
	c.engine = engine
	return nil
}

func (c *Container) initServices() error {
	deps := &ServiceDeps{
		Engine:     c.engine,
		Repos:      c.repositories,
		Notifier:   c.notifier,
		Recipients: c.config.Recipients,
		Imprest:    &c.config.Imprest,
		Logger:     c.logger,
	}
	if c.receipts != nil {
		deps.Receipts = c.receipts
	}

	services, err := ProvideServices(deps)
	if err != nil {
		return err
	}
	c.services = services

	RegisterEventHandlers(c.dispatcher, services.Notification, c.publisher)
	return nil
}

func (c *Container) initWorkers() error {
	if c.config.Worker.Disabled {
		c.logger.Info("Background workers disabled")
		return nil
	}

	c.workers = ProvideWorkers(&c.config.Worker, c.repositories, c.dispatcher, c.logger)
	if err := c.workers.StartAll(c.ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}
	c.logger.Info("Workers initialized and started", zap.Int("count", c.workers.GetWorkerCount()))
	return nil
}

// Getters for accessing container components

// Repositories returns all repositories.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Services returns all application services.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Tokens returns the bearer token service.
func (c *Container) Tokens() *auth.TokenService {
	return c.tokens
}

// Receipts returns receipt storage, or nil when uploads are disabled.
func (c *Container) Receipts() *storage.LocalReceiptStorage {
	return c.receipts
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// Workers returns the worker manager.
func (c *Container) Workers() *worker.WorkerManager {
	return c.workers
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}
