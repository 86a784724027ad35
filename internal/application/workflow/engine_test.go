package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lord-charles/srcc-dashboard-sub000/internal/application/dispatcher"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/application/port"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/entity"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/event"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/imprest"
	domainwf "github.com/lord-charles/srcc-dashboard-sub000/internal/domain/workflow"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/infrastructure/persistence/memory"
)

var (
	clock      = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	requester  = entity.Actor{ID: "u-emp", Name: "Amina", Role: entity.RoleEmployee, Department: "ops"}
	hod        = entity.Actor{ID: "u-hod", Name: "Baraka", Role: entity.RoleHOD, Department: "ops"}
	accountant = entity.Actor{ID: "u-acc", Name: "Chebet", Role: entity.RoleAccountant, Department: "finance"}
)

// Mock implementations

type mockDispatcher struct {
	mu     sync.Mutex
	events []*event.Event
}

func (m *mockDispatcher) Subscribe(eventType event.Type, handler dispatcher.Handler) {}

func (m *mockDispatcher) SubscribeNamed(eventType event.Type, name string, handler dispatcher.Handler) {}

func (m *mockDispatcher) SubscribeAll(name string, handler dispatcher.Handler) {}

func (m *mockDispatcher) Unsubscribe(eventType event.Type, name string) {}

func (m *mockDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	m.DispatchAsync(ctx, evt)
	return nil
}

func (m *mockDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
}

func (m *mockDispatcher) ListHandlers(eventType event.Type) []dispatcher.HandlerInfo { return nil }

func (m *mockDispatcher) Close() error { return nil }

func (m *mockDispatcher) types() []event.Type {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]event.Type, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.Type)
	}
	return out
}

// conflictingRepo simulates a writer that commits between our read and our write
type conflictingRepo struct {
	port.ImprestRepository
}

func (r conflictingRepo) Update(ctx context.Context, rec *entity.Imprest, expectedVersion int64) error {
	return port.ErrVersionConflict
}

type failingHistory struct {
	port.HistoryRepository
	failOn string
}

func (h failingHistory) Create(ctx context.Context, rec *entity.ImprestHistory) error {
	if rec.Action == h.failOn {
		return errors.New("disk full")
	}
	return h.HistoryRepository.Create(ctx, rec)
}

type fixture struct {
	store      *memory.Store
	dispatcher *mockDispatcher
	engine     Engine
}

func newFixture(t *testing.T, wrap func(*memory.Store) (port.ImprestRepository, port.HistoryRepository)) *fixture {
	t.Helper()
	store := memory.NewStore()
	imprests, history := store.Imprests(), store.History()
	if wrap != nil {
		imprests, history = wrap(store)
	}
	d := &mockDispatcher{}
	return &fixture{
		store:      store,
		dispatcher: d,
		engine: NewEngine(imprests, history, store.Idempotency(), store,
			WithDispatcher(d),
			WithClock(func() time.Time { return clock })),
	}
}

func (f *fixture) seed(t *testing.T) *entity.Imprest {
	t.Helper()
	rec, err := imprest.New(requester, imprest.NewRequest{
		PaymentReason: "Workshop in Kisumu",
		Currency:      "KES",
		Amount:        decimal.NewFromInt(5000),
		PaymentType:   entity.PaymentTypeTraining,
	}, "imp-1", clock, 0)
	require.NoError(t, err)
	require.NoError(t, f.engine.Create(context.Background(), rec, requester))
	return rec
}

func (f *fixture) apply(t *testing.T, actor entity.Actor, cmd imprest.Command, key string) *entity.Imprest {
	t.Helper()
	res, err := f.engine.Apply(context.Background(), TransitionRequest{ImprestID: "imp-1", Actor: actor, Command: cmd, IdempotencyKey: key})
	require.NoError(t, err)
	return res.Record
}

func (f *fixture) history(t *testing.T) []*entity.ImprestHistory {
	t.Helper()
	h, err := f.store.History().GetByImprestID(context.Background(), "imp-1")
	require.NoError(t, err)
	return h
}

func TestEngine_Create(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t)

	stored, err := f.store.Imprests().GetByID(context.Background(), "imp-1")
	require.NoError(t, err)
	assert.Equal(t, domainwf.StatePendingHOD, stored.Status)

	history := f.history(t)
	require.Len(t, history, 1)
	assert.Equal(t, entity.ActionCreate, history[0].Action)
	assert.Equal(t, []event.Type{event.TypeImprestCreated}, f.dispatcher.types())

	dup := stored.Clone()
	assert.ErrorIs(t, f.engine.Create(context.Background(), dup, requester), port.ErrDuplicateKey)
}

func TestEngine_ApplyPersistsAndEmits(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t)

	rec := f.apply(t, hod, imprest.ApproveHOD{Comments: "ok"}, "")
	assert.Equal(t, domainwf.StatePendingAccountant, rec.Status)
	assert.Equal(t, int64(2), rec.Version)
	assert.Equal(t, clock, rec.UpdatedAt)

	stored, err := f.store.Imprests().GetByID(context.Background(), "imp-1")
	require.NoError(t, err)
	assert.Equal(t, rec.Status, stored.Status)
	assert.Equal(t, rec.Version, stored.Version)
	require.NotNil(t, stored.HODApproval)
	assert.Equal(t, hod.ID, stored.HODApproval.Approver.ID)

	history := f.history(t)
	require.Len(t, history, 2)
	assert.Equal(t, "approve_hod", history[1].Action)
	assert.Equal(t, "pending_hod", history[1].PreviousStatus)
	assert.Equal(t, "pending_accountant", history[1].NewStatus)
	assert.Equal(t, entity.RoleHOD, history[1].ActorRole)
	assert.Equal(t, "ok", history[1].Comments)

	types := f.dispatcher.types()
	require.Len(t, types, 2)
	assert.Equal(t, event.TypeHODApproved, types[1])
}

func TestEngine_StaleExpectedVersion(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t)
	f.apply(t, hod, imprest.ApproveHOD{}, "")

	_, err := f.engine.Apply(context.Background(), TransitionRequest{
		ImprestID:       "imp-1",
		ExpectedVersion: 1,
		Actor:           accountant,
		Command:         imprest.ApproveAccountant{},
	})
	assert.ErrorIs(t, err, imprest.ErrStaleState)
	assert.Equal(t, imprest.KindState, imprest.KindOf(err))

	stored, _ := f.store.Imprests().GetByID(context.Background(), "imp-1")
	assert.Equal(t, domainwf.StatePendingAccountant, stored.Status)
	assert.Len(t, f.history(t), 2)
}

func TestEngine_ConcurrentWriterLoses(t *testing.T) {
	f := newFixture(t, func(s *memory.Store) (port.ImprestRepository, port.HistoryRepository) {
		return conflictingRepo{s.Imprests()}, s.History()
	})
	f.seed(t)

	_, err := f.engine.Apply(context.Background(), TransitionRequest{ImprestID: "imp-1", Actor: hod, Command: imprest.ApproveHOD{}})
	assert.ErrorIs(t, err, imprest.ErrStaleState)
	assert.Len(t, f.history(t), 1)
	assert.Len(t, f.dispatcher.types(), 1)
}

func TestEngine_ConcurrentApprovalsOnlyOneWins(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		failures  []error
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.Apply(context.Background(), TransitionRequest{
				ImprestID:       "imp-1",
				ExpectedVersion: 1,
				Actor:           hod,
				Command:         imprest.ApproveHOD{},
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else {
				failures = append(failures, err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	for _, err := range failures {
		assert.Equal(t, imprest.KindState, imprest.KindOf(err))
	}
}

func TestEngine_IdempotentReplay(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t)
	f.apply(t, hod, imprest.ApproveHOD{}, "")
	f.apply(t, accountant, imprest.ApproveAccountant{}, "")

	disburse := imprest.Disburse{Amount: decimal.NewFromInt(5000)}
	first, err := f.engine.Apply(context.Background(), TransitionRequest{ImprestID: "imp-1", Actor: accountant, Command: disburse, IdempotencyKey: "pay-1"})
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	second, err := f.engine.Apply(context.Background(), TransitionRequest{ImprestID: "imp-1", Actor: accountant, Command: disburse, IdempotencyKey: "pay-1"})
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Record.Version, second.Record.Version)
	assert.Equal(t, domainwf.StatePendingAcknowledgment, second.Record.Status)

	assert.Len(t, f.history(t), 4)
	assert.Len(t, f.dispatcher.types(), 4)

	_, err = f.engine.Apply(context.Background(), TransitionRequest{
		ImprestID:      "imp-1",
		Actor:          requester,
		Command:        imprest.Acknowledge{Received: true},
		IdempotencyKey: "pay-1",
	})
	assert.ErrorIs(t, err, imprest.ErrIdempotencyConflict)
	assert.Equal(t, imprest.KindConflict, imprest.KindOf(err))
}

func TestEngine_FailedStepRollsBack(t *testing.T) {
	f := newFixture(t, func(s *memory.Store) (port.ImprestRepository, port.HistoryRepository) {
		return s.Imprests(), failingHistory{HistoryRepository: s.History(), failOn: "approve_hod"}
	})
	f.seed(t)

	_, err := f.engine.Apply(context.Background(), TransitionRequest{ImprestID: "imp-1", Actor: hod, Command: imprest.ApproveHOD{}})
	require.Error(t, err)
	assert.Equal(t, imprest.KindInternal, imprest.KindOf(err))

	stored, _ := f.store.Imprests().GetByID(context.Background(), "imp-1")
	assert.Equal(t, domainwf.StatePendingHOD, stored.Status)
	assert.Equal(t, int64(1), stored.Version)
	assert.Nil(t, stored.HODApproval)
	assert.Len(t, f.dispatcher.types(), 1)
}

func TestEngine_DomainErrorsPassThrough(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t)

	_, err := f.engine.Apply(context.Background(), TransitionRequest{ImprestID: "imp-1", Actor: requester, Command: imprest.ApproveHOD{}})
	assert.ErrorIs(t, err, imprest.ErrForbidden)

	_, err = f.engine.Apply(context.Background(), TransitionRequest{ImprestID: "imp-1", Actor: hod, Command: imprest.Reject{}})
	assert.ErrorIs(t, err, imprest.ErrMissingReason)

	_, err = f.engine.Apply(context.Background(), TransitionRequest{ImprestID: "nope", Actor: hod, Command: imprest.ApproveHOD{}})
	assert.ErrorIs(t, err, imprest.ErrNotFound)

	_, err = f.engine.Apply(context.Background(), TransitionRequest{ImprestID: "imp-1", Actor: hod})
	assert.ErrorIs(t, err, imprest.ErrInvalidInput)

	assert.Len(t, f.history(t), 1)
	assert.Len(t, f.dispatcher.types(), 1)
}
