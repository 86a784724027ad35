package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/lord-charles/srcc-dashboard-sub000/internal/application/port"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/entity"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/imprest"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/stats"
)

// StatsService derives dashboard statistics over the records an actor may see
type StatsService interface {
	Stats(ctx context.Context, actor entity.Actor) (stats.Stats, error)
	Export(ctx context.Context, actor entity.Actor, w io.Writer) error
	Exporter() port.RegisterExporter
}

type statsServiceImpl struct {
	imprestRepo port.ImprestRepository
	exporter    port.RegisterExporter
	logger      *zap.Logger
	now         func() time.Time
}

// NewStatsService creates a new StatsService
func NewStatsService(imprestRepo port.ImprestRepository, exporter port.RegisterExporter, logger *zap.Logger) StatsService {
	return &statsServiceImpl{
		imprestRepo: imprestRepo,
		exporter:    exporter,
		logger:      logger,
		now:         time.Now,
	}
}

// Stats computes the aggregate view as of now
func (s *statsServiceImpl) Stats(ctx context.Context, actor entity.Actor) (stats.Stats, error) {
	records, err := s.scoped(ctx, actor)
	if err != nil {
		return stats.Stats{}, err
	}
	return stats.Compute(records, s.now()), nil
}

// Export writes the actor's register with its statistics
func (s *statsServiceImpl) Export(ctx context.Context, actor entity.Actor, w io.Writer) error {
	if s.exporter == nil {
		return fmt.Errorf("no register exporter configured")
	}
	records, err := s.scoped(ctx, actor)
	if err != nil {
		return err
	}
	if err := s.exporter.Export(w, records, stats.Compute(records, s.now())); err != nil {
		s.logger.Error("Failed to export register", zap.String("actor_id", actor.ID), zap.Error(err))
		return fmt.Errorf("failed to export register: %w", err)
	}
	s.logger.Info("Register exported", zap.String("actor_id", actor.ID), zap.Int("records", len(records)))
	return nil
}

func (s *statsServiceImpl) Exporter() port.RegisterExporter {
	return s.exporter
}

func (s *statsServiceImpl) scoped(ctx context.Context, actor entity.Actor) ([]*entity.Imprest, error) {
	filter, err := ScopedFilter(actor, ListQuery{})
	if err != nil {
		return nil, err
	}
	records, err := s.imprestRepo.List(ctx, filter)
	if err != nil {
		s.logger.Error("Failed to list imprests for stats", zap.Error(err))
		return nil, err
	}
	for _, rec := range records {
		if err := imprest.Reconcile(rec); err != nil {
			return nil, fmt.Errorf("stored accounting of %s is invalid: %w", rec.ID, err)
		}
	}
	return records, nil
}
