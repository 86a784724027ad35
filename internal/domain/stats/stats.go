// Package stats folds a set of imprest records into portfolio statistics.
// Compute is a pure function: it never mutates its input and holds no state.
package stats

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/entity"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/workflow"
)

// MaxRecentActivity caps the recent activity feed
const MaxRecentActivity = 5

// ActivityKind names a milestone shown in the recent activity feed
type ActivityKind string

const (
	ActivityAccountingVerified ActivityKind = "accounting_verified"
	ActivityDisbursed          ActivityKind = "disbursed"
	ActivityAccountantApproved ActivityKind = "accountant_approved"
	ActivityHODApproved        ActivityKind = "hod_approved"
	ActivityRejected           ActivityKind = "rejected"
)

// Activity is one milestone of one record
type Activity struct {
	ImprestID string          `json:"imprest_id"`
	Kind      ActivityKind    `json:"kind"`
	Actor     entity.Party    `json:"actor"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
}

// Deadline is a disbursed record waiting for its accounting
type Deadline struct {
	ImprestID     string          `json:"imprest_id"`
	RequesterID   string          `json:"requester_id"`
	RequesterName string          `json:"requester_name"`
	Department    string          `json:"department"`
	Amount        decimal.Decimal `json:"amount"`
	DueDate       time.Time       `json:"due_date"`
	DaysUntilDue  int             `json:"days_until_due"`
	Overdue       bool            `json:"overdue"`
}

// Stats is the aggregate view over a record collection
type Stats struct {
	StatusCounts             map[workflow.State]int `json:"status_counts"`
	TotalCount               int                    `json:"total_count"`
	TotalAmount              decimal.Decimal        `json:"total_amount"`
	ActiveAmount             decimal.Decimal        `json:"active_amount"`
	AccountingRequiredAmount decimal.Decimal        `json:"accounting_required_amount"`
	AverageProcessingHours   float64                `json:"average_processing_hours"`
	ProcessingSamples        int                    `json:"processing_samples"`
	RecentActivity           []Activity             `json:"recent_activity"`
	UpcomingDeadlines        []Deadline             `json:"upcoming_deadlines"`
	AsOf                     time.Time              `json:"as_of"`
}

var activeStates = map[workflow.State]bool{
	workflow.StatePendingHOD:            true,
	workflow.StatePendingAccountant:     true,
	workflow.StateApproved:              true,
	workflow.StatePendingAcknowledgment: true,
	workflow.StateDisbursed:             true,
}

// activityRank orders kinds with equal timestamps and ids
var activityRank = map[ActivityKind]int{
	ActivityAccountingVerified: 0,
	ActivityDisbursed:          1,
	ActivityAccountantApproved: 2,
	ActivityHODApproved:        3,
	ActivityRejected:           4,
}

// Compute aggregates records as of the given instant
func Compute(records []*entity.Imprest, asOf time.Time) Stats {
	s := Stats{
		StatusCounts:             make(map[workflow.State]int, len(workflow.AllStates)),
		TotalAmount:              decimal.Zero,
		ActiveAmount:             decimal.Zero,
		AccountingRequiredAmount: decimal.Zero,
		RecentActivity:           []Activity{},
		UpcomingDeadlines:        []Deadline{},
		AsOf:                     asOf,
	}
	for _, st := range workflow.AllStates {
		s.StatusCounts[st] = 0
	}

	var hours float64
	var activity []Activity

	for _, rec := range records {
		if rec == nil {
			continue
		}
		s.TotalCount++
		s.StatusCounts[rec.Status]++
		s.TotalAmount = s.TotalAmount.Add(rec.Amount)

		if activeStates[rec.Status] {
			s.ActiveAmount = s.ActiveAmount.Add(rec.EffectiveAmount())
		}
		if rec.Status == workflow.StateDisbursed {
			s.AccountingRequiredAmount = s.AccountingRequiredAmount.Add(rec.DisbursedAmount())
			s.UpcomingDeadlines = append(s.UpcomingDeadlines, deadlineOf(rec, asOf))
		}

		if rec.HODApproval != nil && !rec.HODApproval.Timestamp.IsZero() && !rec.CreatedAt.IsZero() {
			hours += rec.HODApproval.Timestamp.Sub(rec.CreatedAt).Hours()
			s.ProcessingSamples++
		}

		activity = append(activity, activitiesOf(rec)...)
	}

	if s.ProcessingSamples > 0 {
		s.AverageProcessingHours = hours / float64(s.ProcessingSamples)
	}

	sort.SliceStable(activity, func(i, j int) bool {
		a, b := activity[i], activity[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.After(b.Timestamp)
		}
		if a.ImprestID != b.ImprestID {
			return a.ImprestID < b.ImprestID
		}
		return activityRank[a.Kind] < activityRank[b.Kind]
	})
	if len(activity) > MaxRecentActivity {
		activity = activity[:MaxRecentActivity]
	}
	s.RecentActivity = append(s.RecentActivity, activity...)

	sort.SliceStable(s.UpcomingDeadlines, func(i, j int) bool {
		a, b := s.UpcomingDeadlines[i], s.UpcomingDeadlines[j]
		if !a.DueDate.Equal(b.DueDate) {
			return a.DueDate.Before(b.DueDate)
		}
		return a.ImprestID < b.ImprestID
	})

	return s
}

func deadlineOf(rec *entity.Imprest, asOf time.Time) Deadline {
	return Deadline{
		ImprestID:     rec.ID,
		RequesterID:   rec.RequesterID,
		RequesterName: rec.RequesterName,
		Department:    rec.Department,
		Amount:        rec.DisbursedAmount(),
		DueDate:       rec.DueDate,
		DaysUntilDue:  int(rec.DueDate.Sub(asOf) / (24 * time.Hour)),
		Overdue:       asOf.After(rec.DueDate),
	}
}

func activitiesOf(rec *entity.Imprest) []Activity {
	var out []Activity
	add := func(kind ActivityKind, actor entity.Party, amount decimal.Decimal, ts time.Time) {
		if ts.IsZero() {
			return
		}
		out = append(out, Activity{ImprestID: rec.ID, Kind: kind, Actor: actor, Amount: amount, Timestamp: ts})
	}

	if rec.Accounting != nil && rec.Accounting.Verification != nil {
		v := rec.Accounting.Verification
		add(ActivityAccountingVerified, v.VerifiedBy, rec.Accounting.TotalAmount, v.Timestamp)
	}
	if d := rec.Disbursement; d != nil {
		add(ActivityDisbursed, d.DisbursedBy, d.Amount, d.Timestamp)
	}
	if a := rec.AccountantApproval; a != nil {
		add(ActivityAccountantApproved, a.Approver, rec.Amount, a.Timestamp)
	}
	if a := rec.HODApproval; a != nil {
		add(ActivityHODApproved, a.Approver, rec.Amount, a.Timestamp)
	}
	if r := rec.Rejection; r != nil {
		add(ActivityRejected, r.RejectedBy, rec.Amount, r.Timestamp)
	}
	return out
}
