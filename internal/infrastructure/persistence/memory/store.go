// Package memory is an in-process persistence backend used by tests and by
// the server when no database path is configured. Transactions are serialised
// and a failed transaction restores the snapshot taken when it began.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/lord-charles/srcc-dashboard-sub000/internal/application/port"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/entity"
)

type contextKey string

const txKey contextKey = "memory-tx"

// Store holds every table of the memory backend
type Store struct {
	txMu sync.Mutex

	mu          sync.RWMutex
	imprests    map[string]*entity.Imprest
	history     []*entity.ImprestHistory
	historySeq  int64
	idempotency map[string]entity.IdempotencyRecord
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		imprests:    make(map[string]*entity.Imprest),
		idempotency: make(map[string]entity.IdempotencyRecord),
	}
}

type snapshot struct {
	imprests    map[string]*entity.Imprest
	history     []*entity.ImprestHistory
	historySeq  int64
	idempotency map[string]entity.IdempotencyRecord
}

func (s *Store) snapshot() snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := snapshot{
		imprests:    make(map[string]*entity.Imprest, len(s.imprests)),
		history:     append([]*entity.ImprestHistory(nil), s.history...),
		historySeq:  s.historySeq,
		idempotency: make(map[string]entity.IdempotencyRecord, len(s.idempotency)),
	}
	for id, rec := range s.imprests {
		snap.imprests[id] = rec
	}
	for k, v := range s.idempotency {
		snap.idempotency[k] = v
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.imprests = snap.imprests
	s.history = snap.history
	s.historySeq = snap.historySeq
	s.idempotency = snap.idempotency
}

// WithTransaction implements port.TransactionManager
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if ctx.Value(txKey) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	defer func() {
		if p := recover(); p != nil {
			s.restore(snap)
			panic(p)
		}
		if err != nil {
			s.restore(snap)
		}
	}()

	return fn(context.WithValue(ctx, txKey, true))
}

// Imprests returns the imprest repository view of the store
func (s *Store) Imprests() port.ImprestRepository { return imprestRepo{s} }

// History returns the history repository view of the store
func (s *Store) History() port.HistoryRepository { return historyRepo{s} }

// Idempotency returns the idempotency repository view of the store
func (s *Store) Idempotency() port.IdempotencyRepository { return idempotencyRepo{s} }

type imprestRepo struct{ s *Store }

func (r imprestRepo) Create(ctx context.Context, rec *entity.Imprest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.imprests[rec.ID]; exists {
		return fmt.Errorf("%w: imprest %s", port.ErrDuplicateKey, rec.ID)
	}
	r.s.imprests[rec.ID] = rec.Clone()
	return nil
}

func (r imprestRepo) GetByID(ctx context.Context, id string) (*entity.Imprest, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	rec, ok := r.s.imprests[id]
	if !ok {
		return nil, fmt.Errorf("%w: imprest %s", port.ErrNotFound, id)
	}
	return rec.Clone(), nil
}

func (r imprestRepo) List(ctx context.Context, filter port.ListFilter) ([]*entity.Imprest, error) {
	r.s.mu.RLock()
	out := []*entity.Imprest{}
	for _, rec := range r.s.imprests {
		if filter.RequesterID != "" && rec.RequesterID != filter.RequesterID {
			continue
		}
		if filter.Department != "" && rec.Department != filter.Department {
			continue
		}
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		out = append(out, rec.Clone())
	}
	r.s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].RequestDate.Equal(out[j].RequestDate) {
			return out[i].RequestDate.After(out[j].RequestDate)
		}
		return out[i].ID < out[j].ID
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []*entity.Imprest{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r imprestRepo) Update(ctx context.Context, rec *entity.Imprest, expectedVersion int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.imprests[rec.ID]
	if !ok || stored.Version != expectedVersion {
		return fmt.Errorf("%w: imprest %s at version %d", port.ErrVersionConflict, rec.ID, expectedVersion)
	}
	r.s.imprests[rec.ID] = rec.Clone()
	return nil
}

type historyRepo struct{ s *Store }

func (r historyRepo) Create(ctx context.Context, h *entity.ImprestHistory) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.historySeq++
	h.ID = r.s.historySeq
	c := *h
	r.s.history = append(r.s.history, &c)
	return nil
}

func (r historyRepo) GetByImprestID(ctx context.Context, imprestID string) ([]*entity.ImprestHistory, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []*entity.ImprestHistory{}
	for _, h := range r.s.history {
		if h.ImprestID == imprestID {
			c := *h
			out = append(out, &c)
		}
	}
	return out, nil
}

type idempotencyRepo struct{ s *Store }

func (r idempotencyRepo) Get(ctx context.Context, key string) (*entity.IdempotencyRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	rec, ok := r.s.idempotency[key]
	if !ok {
		return nil, port.ErrNotFound
	}
	return &rec, nil
}

func (r idempotencyRepo) Create(ctx context.Context, rec *entity.IdempotencyRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.idempotency[rec.Key]; exists {
		return port.ErrDuplicateKey
	}
	r.s.idempotency[rec.Key] = *rec
	return nil
}

var _ port.TransactionManager = (*Store)(nil)
