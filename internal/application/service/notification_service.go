package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/lord-charles/srcc-dashboard-sub000/internal/application/dispatcher"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/application/port"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/event"
)

// Recipients maps roles to the people who should hear about a stage
type Recipients struct {
	// HODs lists the department heads per department
	HODs        map[string][]string
	Accountants []string
	Admins      []string
}

// NotificationService turns committed imprest events into messages for the next actor
type NotificationService interface {
	HandleEvent(ctx context.Context, evt *event.Event) error
	RegisterHandlers(d dispatcher.Dispatcher)
}

type notificationServiceImpl struct {
	notifier   port.Notifier
	recipients Recipients
	logger     *zap.Logger
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(notifier port.Notifier, recipients Recipients, logger *zap.Logger) NotificationService {
	return &notificationServiceImpl{
		notifier:   notifier,
		recipients: recipients,
		logger:     logger,
	}
}

var notifiedTypes = []event.Type{
	event.TypeImprestCreated,
	event.TypeHODApproved,
	event.TypeAccountantApproved,
	event.TypeRejected,
	event.TypeDisbursed,
	event.TypeAcknowledged,
	event.TypeDisputed,
	event.TypeDisputeResolved,
	event.TypeAccountingSubmitted,
	event.TypeAccountingVerified,
	event.TypeOverdue,
}

// RegisterHandlers subscribes the service to every event that has an audience
func (s *notificationServiceImpl) RegisterHandlers(d dispatcher.Dispatcher) {
	for _, typ := range notifiedTypes {
		d.SubscribeNamed(typ, "notify."+typ.String(), s.HandleEvent)
	}
}

// HandleEvent sends one message per recipient; a failed recipient does not stop the others
func (s *notificationServiceImpl) HandleEvent(ctx context.Context, evt *event.Event) error {
	routed, title, body := s.route(evt)
	ids := make([]string, 0, len(routed))
	for _, id := range routed {
		if id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		s.logger.Debug("No recipients for event",
			zap.String("event_type", evt.Type.String()),
			zap.String("imprest_id", evt.ImprestID))
		return nil
	}

	var errs []error
	for _, id := range ids {
		n := port.Notification{
			RecipientID: id,
			Title:       title,
			Body:        body,
			DedupeKey:   evt.ID + ":" + id,
		}
		if err := s.notifier.Notify(ctx, n); err != nil {
			s.logger.Error("Failed to send notification",
				zap.String("event_type", evt.Type.String()),
				zap.String("imprest_id", evt.ImprestID),
				zap.String("recipient_id", id),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("notify %s: %w", id, err))
		}
	}

	if len(errs) == 0 {
		s.logger.Info("Notifications sent",
			zap.String("event_type", evt.Type.String()),
			zap.String("imprest_id", evt.ImprestID),
			zap.Int("recipients", len(ids)))
	}
	return errors.Join(errs...)
}

// route picks the audience and wording for an event
func (s *notificationServiceImpl) route(evt *event.Event) ([]string, string, string) {
	requester := evt.GetPayloadString("requester_id")
	name := evt.GetPayloadString("requester_name")
	if name == "" {
		name = requester
	}
	dept := evt.GetPayloadString("department")
	money := fmt.Sprintf("%s %s", evt.GetPayloadString("currency"), evt.GetPayloadString("amount"))
	comments := evt.GetPayloadString("comments")

	withComments := func(body string) string {
		if comments == "" {
			return body
		}
		return body + "\n\nComments: " + comments
	}

	switch evt.Type {
	case event.TypeImprestCreated:
		return s.recipients.HODs[dept], "Imprest awaiting your approval",
			fmt.Sprintf("%s requested an imprest of %s (%s).", name, money, evt.ImprestID)
	case event.TypeHODApproved:
		return s.recipients.Accountants, "Imprest awaiting finance approval",
			withComments(fmt.Sprintf("The %s department head approved %s's imprest of %s (%s).", dept, name, money, evt.ImprestID))
	case event.TypeAccountantApproved:
		return []string{requester}, "Imprest approved",
			withComments(fmt.Sprintf("Your imprest of %s (%s) is approved and awaits disbursement.", money, evt.ImprestID))
	case event.TypeRejected:
		return []string{requester}, "Imprest rejected",
			withComments(fmt.Sprintf("Your imprest of %s (%s) was rejected.", money, evt.ImprestID))
	case event.TypeDisbursed:
		return []string{requester}, "Funds disbursed",
			withComments(fmt.Sprintf("%s was disbursed for imprest %s. Please confirm receipt.", money, evt.ImprestID))
	case event.TypeAcknowledged:
		return s.recipients.Accountants, "Receipt confirmed",
			fmt.Sprintf("%s confirmed receiving %s (%s).", name, money, evt.ImprestID)
	case event.TypeDisputed:
		return s.recipients.Admins, "Disbursement disputed",
			withComments(fmt.Sprintf("%s reports not receiving %s (%s).", name, money, evt.ImprestID))
	case event.TypeDisputeResolved:
		return []string{requester}, "Dispute resolved",
			withComments(fmt.Sprintf("The dispute on imprest %s was resolved.", evt.ImprestID))
	case event.TypeAccountingSubmitted:
		return s.recipients.Accountants, "Accounting awaiting verification",
			fmt.Sprintf("%s submitted receipts for imprest %s (%s).", name, evt.ImprestID, money)
	case event.TypeAccountingVerified:
		return []string{requester}, "Accounting verified",
			withComments(fmt.Sprintf("Your accounting for imprest %s was verified and the imprest is closed.", evt.ImprestID))
	case event.TypeOverdue:
		ids := append([]string{requester}, s.recipients.HODs[dept]...)
		return ids, "Imprest accounting overdue",
			fmt.Sprintf("Accounting for imprest %s (%s) was due on %s.", evt.ImprestID, money, evt.GetPayloadString("due_date"))
	default:
		return nil, "", ""
	}
}
