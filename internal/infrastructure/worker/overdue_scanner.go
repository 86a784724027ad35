package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lord-charles/srcc-dashboard-sub000/internal/application/dispatcher"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/application/port"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/entity"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/event"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/stats"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/workflow"
)

const dayLayout = "2006-01-02"

// OverdueScannerConfig holds configuration for the overdue scanner
type OverdueScannerConfig struct {
	Interval time.Duration
}

// DefaultOverdueScannerConfig returns default configuration
func DefaultOverdueScannerConfig() OverdueScannerConfig {
	return OverdueScannerConfig{
		Interval: time.Hour,
	}
}

// OverdueScanner emits imprest.overdue for disbursed records past their accounting due date.
// It never transitions records. Each record is announced at most once per calendar day (UTC).
type OverdueScanner struct {
	config      OverdueScannerConfig
	imprestRepo port.ImprestRepository
	dispatcher  dispatcher.Dispatcher
	logger      *zap.Logger
	now         func() time.Time

	mu          sync.Mutex
	cancel      context.CancelFunc
	done        chan struct{}
	isRunning   bool
	notified    map[string]string
	noticeCount int
}

// NewOverdueScanner creates a new overdue scanner
func NewOverdueScanner(
	config OverdueScannerConfig,
	imprestRepo port.ImprestRepository,
	d dispatcher.Dispatcher,
	logger *zap.Logger,
) *OverdueScanner {
	if config.Interval <= 0 {
		config.Interval = DefaultOverdueScannerConfig().Interval
	}
	return &OverdueScanner{
		config:      config,
		imprestRepo: imprestRepo,
		dispatcher:  d,
		logger:      logger,
		now:         time.Now,
		notified:    make(map[string]string),
	}
}

// Start begins the scan loop; the first scan runs immediately
func (w *OverdueScanner) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.isRunning {
		w.mu.Unlock()
		return fmt.Errorf("overdue scanner already running")
	}

	var loopCtx context.Context
	loopCtx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	w.isRunning = true
	w.mu.Unlock()

	w.logger.Info("OverdueScanner started", zap.Duration("interval", w.config.Interval))

	go w.loop(loopCtx)
	return nil
}

// Stop terminates the loop and waits for an in-flight scan
func (w *OverdueScanner) Stop() error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}
	w.isRunning = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done

	w.logger.Info("OverdueScanner stopped", zap.Int("notice_count", w.noticeCountSnapshot()))
	return nil
}

// Name returns the worker name for identification
func (w *OverdueScanner) Name() string {
	return "OverdueScanner"
}

func (w *OverdueScanner) loop(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		if _, err := w.ScanOnce(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error("Overdue scan failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			w.logger.Debug("Scan loop context cancelled")
			return
		case <-ticker.C:
		}
	}
}

// ScanOnce checks every disbursed record and returns how many notices it sent
func (w *OverdueScanner) ScanOnce(ctx context.Context) (int, error) {
	records, err := w.imprestRepo.List(ctx, port.ListFilter{Status: workflow.StateDisbursed})
	if err != nil {
		return 0, fmt.Errorf("failed to list disbursed imprests: %w", err)
	}

	now := w.now().UTC()
	today := now.Format(dayLayout)
	byID := make(map[string]*entity.Imprest, len(records))
	for _, rec := range records {
		byID[rec.ID] = rec
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	overdue := make(map[string]bool)
	sent := 0
	for _, d := range stats.Compute(records, now).UpcomingDeadlines {
		if !d.Overdue {
			continue
		}
		overdue[d.ImprestID] = true
		if w.notified[d.ImprestID] == today {
			continue
		}

		rec := byID[d.ImprestID]
		evt := event.NewEvent(event.TypeOverdue, d.ImprestID, map[string]interface{}{
			"requester_id":   d.RequesterID,
			"requester_name": d.RequesterName,
			"department":     d.Department,
			"amount":         d.Amount.String(),
			"currency":       rec.Currency,
			"due_date":       d.DueDate.UTC().Format(dayLayout),
			"days_overdue":   -d.DaysUntilDue,
		})
		if err := w.dispatcher.Dispatch(ctx, evt); err != nil {
			w.logger.Warn("Overdue notice failed",
				zap.String("imprest_id", d.ImprestID),
				zap.Error(err))
			continue
		}
		w.notified[d.ImprestID] = today
		sent++
	}

	// records that were accounted for or moved on no longer need tracking
	for id := range w.notified {
		if !overdue[id] {
			delete(w.notified, id)
		}
	}
	w.noticeCount += sent

	if sent > 0 {
		w.logger.Info("Overdue notices sent", zap.Int("count", sent))
	}
	return sent, nil
}

func (w *OverdueScanner) noticeCountSnapshot() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.noticeCount
}
