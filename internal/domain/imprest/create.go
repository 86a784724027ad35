package imprest

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/entity"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/workflow"
	"github.com/lord-charles/srcc-dashboard-sub000/pkg/utils"
)

// DefaultAccountingWindow is how long a requester has to account for funds after requesting them
const DefaultAccountingWindow = 14 * 24 * time.Hour

// NewRequest carries the requester's input for a new imprest
type NewRequest struct {
	PaymentReason  string
	Currency       string
	Amount         decimal.Decimal
	PaymentType    entity.PaymentType
	Explanation    string
	AttachmentURLs []string
}

// New validates the request and builds a record in pending_hod owned by the actor
func New(actor entity.Actor, req NewRequest, id string, now time.Time, window time.Duration) (*entity.Imprest, error) {
	if actor.ID == "" {
		return nil, ErrUnauthorized
	}

	reason := utils.SanitizeString(req.PaymentReason)
	if reason == "" {
		return nil, invalid("payment_reason", ErrInvalidInput, "payment reason is required")
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if err := utils.ValidateCurrency(currency); err != nil {
		return nil, invalid("currency", ErrInvalidInput, err.Error())
	}
	if err := utils.ValidateAmount(req.Amount); err != nil {
		return nil, invalid("amount", ErrInvalidAmount, err.Error())
	}
	if !req.PaymentType.IsValid() {
		return nil, invalid("payment_type", ErrInvalidInput, "unknown payment type "+string(req.PaymentType))
	}
	if window <= 0 {
		window = DefaultAccountingWindow
	}

	attachments := make([]string, 0, len(req.AttachmentURLs))
	for _, u := range req.AttachmentURLs {
		if u = strings.TrimSpace(u); u != "" {
			attachments = append(attachments, u)
		}
	}

	now = now.UTC()
	return &entity.Imprest{
		ID:             id,
		RequesterID:    actor.ID,
		RequesterName:  actor.Name,
		Department:     actor.Department,
		PaymentReason:  reason,
		PaymentType:    req.PaymentType,
		Currency:       currency,
		Amount:         req.Amount,
		Explanation:    utils.SanitizeString(req.Explanation),
		AttachmentURLs: attachments,
		RequestDate:    now,
		DueDate:        now.Add(window),
		Status:         workflow.StatePendingHOD,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}
