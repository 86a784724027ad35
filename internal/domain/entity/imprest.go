package entity

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/workflow"
)

// Party identifies a person acting on an imprest
type Party struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Approval is a completed sign-off stage
type Approval struct {
	Approver  Party     `json:"approver"`
	Timestamp time.Time `json:"timestamp"`
	Comments  string    `json:"comments"`
}

// Rejection terminates the workflow at the stage it was raised from
type Rejection struct {
	RejectedBy Party          `json:"rejected_by"`
	Stage      workflow.State `json:"stage"`
	Timestamp  time.Time      `json:"timestamp"`
	Reason     string         `json:"reason"`
}

// Disbursement records the release of funds
type Disbursement struct {
	DisbursedBy Party           `json:"disbursed_by"`
	Timestamp   time.Time       `json:"timestamp"`
	Amount      decimal.Decimal `json:"amount"`
	Comments    string          `json:"comments"`
}

// Acknowledgment is the requester's confirmation or dispute of receipt.
// Received=false opens a dispute.
type Acknowledgment struct {
	AcknowledgedBy Party     `json:"acknowledged_by"`
	Timestamp      time.Time `json:"timestamp"`
	Received       bool      `json:"received"`
	Comments       string    `json:"comments"`
}

// DisputeResolution closes a dispute out of band
type DisputeResolution struct {
	ResolvedBy Party     `json:"resolved_by"`
	Timestamp  time.Time `json:"timestamp"`
	Comments   string    `json:"comments"`
}

// Receipt is one line of an accounting submission
type Receipt struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	ReceiptURL  string          `json:"receipt_url,omitempty"`
	UploadedAt  time.Time       `json:"uploaded_at"`
}

// Classification describes the sign of an accounting balance
type Classification string

const (
	ClassificationBalanced Classification = "balanced"
	ClassificationSurplus  Classification = "surplus" // requester returns funds
	ClassificationDeficit  Classification = "deficit" // requester owes an explanation
)

// Verification is the accountant's sign-off on a submitted accounting
type Verification struct {
	VerifiedBy Party     `json:"verified_by"`
	Timestamp  time.Time `json:"timestamp"`
	Comments   string    `json:"comments"`
}

// Accounting reconciles receipts against the disbursed amount.
// TotalAmount, Balance and Classification are derived from Receipts.
type Accounting struct {
	SubmittedBy    Party           `json:"submitted_by"`
	SubmittedAt    time.Time       `json:"submitted_at"`
	Receipts       []Receipt       `json:"receipts"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	Balance        decimal.Decimal `json:"balance"`
	Classification Classification  `json:"classification"`
	Comments       string          `json:"comments"`
	Verification   *Verification   `json:"verification,omitempty"`
}

// Imprest is one cash advance request and its full lifecycle
type Imprest struct {
	ID             string          `json:"id"`
	RequesterID    string          `json:"requester_id"`
	RequesterName  string          `json:"requester_name"`
	Department     string          `json:"department"`
	PaymentReason  string          `json:"payment_reason"`
	PaymentType    PaymentType     `json:"payment_type"`
	Currency       string          `json:"currency"`
	Amount         decimal.Decimal `json:"amount"`
	Explanation    string          `json:"explanation"`
	AttachmentURLs []string        `json:"attachment_urls"`
	RequestDate    time.Time       `json:"request_date"`
	DueDate        time.Time       `json:"due_date"`

	Status  workflow.State `json:"status"`
	Version int64          `json:"version"`

	HODApproval        *Approval          `json:"hod_approval,omitempty"`
	AccountantApproval *Approval          `json:"accountant_approval,omitempty"`
	Rejection          *Rejection         `json:"rejection,omitempty"`
	Disbursement       *Disbursement      `json:"disbursement,omitempty"`
	Acknowledgment     *Acknowledgment    `json:"acknowledgment,omitempty"`
	DisputeResolution  *DisputeResolution `json:"dispute_resolution,omitempty"`
	Accounting         *Accounting        `json:"accounting,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ErrInvariantViolated is returned by Validate when sub-structures contradict the status
var ErrInvariantViolated = errors.New("imprest invariant violated")

// Clone returns a deep copy so transitions can be applied without touching the original
func (i *Imprest) Clone() *Imprest {
	if i == nil {
		return nil
	}
	c := *i
	// never nil so both backends render an empty list as []
	c.AttachmentURLs = make([]string, len(i.AttachmentURLs))
	copy(c.AttachmentURLs, i.AttachmentURLs)
	if i.HODApproval != nil {
		v := *i.HODApproval
		c.HODApproval = &v
	}
	if i.AccountantApproval != nil {
		v := *i.AccountantApproval
		c.AccountantApproval = &v
	}
	if i.Rejection != nil {
		v := *i.Rejection
		c.Rejection = &v
	}
	if i.Disbursement != nil {
		v := *i.Disbursement
		c.Disbursement = &v
	}
	if i.Acknowledgment != nil {
		v := *i.Acknowledgment
		c.Acknowledgment = &v
	}
	if i.DisputeResolution != nil {
		v := *i.DisputeResolution
		c.DisputeResolution = &v
	}
	if i.Accounting != nil {
		v := *i.Accounting
		v.Receipts = append([]Receipt(nil), i.Accounting.Receipts...)
		if i.Accounting.Verification != nil {
			ver := *i.Accounting.Verification
			v.Verification = &ver
		}
		c.Accounting = &v
	}
	return &c
}

// DisbursedAmount returns the released amount, or zero if nothing was disbursed
func (i *Imprest) DisbursedAmount() decimal.Decimal {
	if i.Disbursement == nil {
		return decimal.Zero
	}
	return i.Disbursement.Amount
}

// EffectiveAmount is the disbursed amount once funds were released, the requested amount before
func (i *Imprest) EffectiveAmount() decimal.Decimal {
	if i.Disbursement != nil {
		return i.Disbursement.Amount
	}
	return i.Amount
}

// IsOwnedBy reports whether the party is the requester
func (i *Imprest) IsOwnedBy(id string) bool {
	return id != "" && i.RequesterID == id
}

// Validate checks the structural invariants between status and sub-structures
func (i *Imprest) Validate() error {
	if !i.Status.IsValid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvariantViolated, i.Status)
	}
	if i.HODApproval != nil && i.Status == workflow.StatePendingHOD {
		return fmt.Errorf("%w: hod approval present while pending hod", ErrInvariantViolated)
	}
	if i.AccountantApproval != nil && i.HODApproval == nil {
		return fmt.Errorf("%w: accountant approval without hod approval", ErrInvariantViolated)
	}
	if i.Rejection != nil && i.HODApproval != nil && i.AccountantApproval != nil {
		return fmt.Errorf("%w: record is both rejected and fully approved", ErrInvariantViolated)
	}
	if i.Disbursement != nil {
		if i.HODApproval == nil || i.AccountantApproval == nil || i.Rejection != nil {
			return fmt.Errorf("%w: disbursement without both approvals", ErrInvariantViolated)
		}
		if !i.Disbursement.Amount.IsPositive() {
			return fmt.Errorf("%w: disbursed amount must be positive", ErrInvariantViolated)
		}
	}
	if i.Acknowledgment != nil && i.Disbursement == nil {
		return fmt.Errorf("%w: acknowledgment without disbursement", ErrInvariantViolated)
	}
	if i.Accounting != nil {
		total := decimal.Zero
		for _, r := range i.Accounting.Receipts {
			total = total.Add(r.Amount)
		}
		if !total.Equal(i.Accounting.TotalAmount) {
			return fmt.Errorf("%w: accounting total %s does not match receipts %s", ErrInvariantViolated, i.Accounting.TotalAmount, total)
		}
	}
	return nil
}
