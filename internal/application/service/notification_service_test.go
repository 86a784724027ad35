package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lord-charles/srcc-dashboard-sub000/internal/application/dispatcher"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/application/port"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/event"
)

type mockNotifier struct {
	mu     sync.Mutex
	sent   []port.Notification
	failOn string
}

func (m *mockNotifier) Notify(ctx context.Context, n port.Notification) error {
	if n.RecipientID == m.failOn {
		return errors.New("channel unavailable")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, n)
	return nil
}

func (m *mockNotifier) recipients() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []string{}
	for _, n := range m.sent {
		out = append(out, n.RecipientID)
	}
	return out
}

var testRecipients = Recipients{
	HODs:        map[string][]string{"ops": {"u-hod"}},
	Accountants: []string{"u-acc", "u-acc2"},
	Admins:      []string{"u-adm"},
}

func testEvent(typ event.Type) *event.Event {
	return event.NewEvent(typ, "imp-7", map[string]interface{}{
		"requester_id":   "u-emp",
		"requester_name": "Wanjiru",
		"department":     "ops",
		"amount":         "4500",
		"currency":       "KES",
		"comments":       "see attached",
		"due_date":       "2026-05-18",
	})
}

func TestNotificationService_Routing(t *testing.T) {
	tests := []struct {
		typ  event.Type
		want []string
	}{
		{event.TypeImprestCreated, []string{"u-hod"}},
		{event.TypeHODApproved, []string{"u-acc", "u-acc2"}},
		{event.TypeAccountantApproved, []string{"u-emp"}},
		{event.TypeRejected, []string{"u-emp"}},
		{event.TypeDisbursed, []string{"u-emp"}},
		{event.TypeAcknowledged, []string{"u-acc", "u-acc2"}},
		{event.TypeDisputed, []string{"u-adm"}},
		{event.TypeDisputeResolved, []string{"u-emp"}},
		{event.TypeAccountingSubmitted, []string{"u-acc", "u-acc2"}},
		{event.TypeAccountingVerified, []string{"u-emp"}},
		{event.TypeOverdue, []string{"u-emp", "u-hod"}},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			notifier := &mockNotifier{}
			svc := NewNotificationService(notifier, testRecipients, zap.NewNop())

			require.NoError(t, svc.HandleEvent(context.Background(), testEvent(tt.typ)))
			assert.Equal(t, tt.want, notifier.recipients())
			for _, n := range notifier.sent {
				assert.NotEmpty(t, n.Title)
				assert.Contains(t, n.Body, "imp-7")
				assert.NotEmpty(t, n.DedupeKey)
			}
		})
	}
}

func TestNotificationService_CommentsAndAmount(t *testing.T) {
	notifier := &mockNotifier{}
	svc := NewNotificationService(notifier, testRecipients, zap.NewNop())

	require.NoError(t, svc.HandleEvent(context.Background(), testEvent(event.TypeRejected)))
	require.Len(t, notifier.sent, 1)
	assert.Contains(t, notifier.sent[0].Body, "KES 4500")
	assert.Contains(t, notifier.sent[0].Body, "Comments: see attached")
}

func TestNotificationService_PartialFailure(t *testing.T) {
	notifier := &mockNotifier{failOn: "u-acc"}
	svc := NewNotificationService(notifier, testRecipients, zap.NewNop())

	err := svc.HandleEvent(context.Background(), testEvent(event.TypeHODApproved))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "u-acc")
	assert.Equal(t, []string{"u-acc2"}, notifier.recipients())
}

func TestNotificationService_NoAudience(t *testing.T) {
	notifier := &mockNotifier{}
	svc := NewNotificationService(notifier, Recipients{}, zap.NewNop())

	assert.NoError(t, svc.HandleEvent(context.Background(), testEvent(event.TypeImprestCreated)))
	assert.Empty(t, notifier.recipients())
}

func TestNotificationService_RegisterHandlers(t *testing.T) {
	notifier := &mockNotifier{}
	svc := NewNotificationService(notifier, testRecipients, zap.NewNop())
	d := dispatcher.NewDispatcher()
	defer d.Close()

	svc.RegisterHandlers(d)
	require.Len(t, d.ListHandlers(event.TypeDisbursed), 1)
	assert.Equal(t, "notify.imprest.disbursed", d.ListHandlers(event.TypeDisbursed)[0].Name)

	require.NoError(t, d.Dispatch(context.Background(), testEvent(event.TypeDisbursed)))
	assert.Equal(t, []string{"u-emp"}, notifier.recipients())
}
