package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type InvestmentStatus string

const (
	InvestmentPending   InvestmentStatus = "pending"
	InvestmentActive    InvestmentStatus = "active"
	InvestmentCompleted InvestmentStatus = "completed"
	InvestmentMatured   InvestmentStatus = "matured"
	InvestmentCancelled InvestmentStatus = "cancelled"
	InvestmentFailed    InvestmentStatus = "failed"
)

var investmentTransitions = map[InvestmentStatus][]InvestmentStatus{
	InvestmentPending: {InvestmentActive, InvestmentCancelled, InvestmentFailed},
	InvestmentActive:  {InvestmentCompleted, InvestmentMatured, InvestmentFailed, InvestmentCancelled},
	InvestmentMatured: {InvestmentCompleted},
}

func (s InvestmentStatus) Valid() bool {
	switch s {
	case InvestmentPending, InvestmentActive, InvestmentCompleted, InvestmentMatured, InvestmentCancelled, InvestmentFailed:
		return true
	}
	return false
}

// CanTransition reports whether the lifecycle allows moving from s to next.
// active→cancelled is only reached through an admin refund.
func (s InvestmentStatus) CanTransition(next InvestmentStatus) bool {
	for _, allowed := range investmentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Investment struct {
	ID                  int64            `json:"id"`
	UserID              int64            `json:"user_id"`
	PackageID           int64            `json:"package_id"`
	PackageName         string           `json:"package_name,omitempty"`
	Amount              decimal.Decimal  `json:"amount"`
	Status              InvestmentStatus `json:"status"`
	ExpectedReturn      decimal.Decimal  `json:"expected_return"`
	ActualReturn        *decimal.Decimal `json:"actual_return"`
	StartDate           time.Time        `json:"start_date"`
	EndDate             time.Time        `json:"end_date"`
	CompletedAt         *time.Time       `json:"completed_date"`
	WithdrawalRequestID *int64           `json:"withdrawal_request"`
	ReferredBy          *int64           `json:"referred_by"`
	CreatedAt           time.Time        `json:"investment_date"`
	UpdatedAt           time.Time        `json:"updated_at"`
	DeletedAt           *time.Time       `json:"-"`
}

// CanWithdraw is the withdrawal eligibility rule.
func (i *Investment) CanWithdraw() bool {
	return i.Status == InvestmentCompleted && i.WithdrawalRequestID == nil && i.ActualReturn != nil
}

// TotalReturn is the payout owed at maturity. ActualReturn already includes
// the principal; ExpectedReturn is the interest only.
func (i *Investment) TotalReturn() decimal.Decimal {
	if i.ActualReturn != nil {
		return *i.ActualReturn
	}
	return i.Amount.Add(i.ExpectedReturn)
}

func (i *Investment) IsDue(now time.Time) bool {
	return !dateOf(now).Before(dateOf(i.EndDate))
}

func (i *Investment) ProgressPercentage(now time.Time) float64 {
	return progress(i.StartDate, i.EndDate, now)
}

type InvestmentFilter struct {
	UserID         *int64
	PackageID      *int64
	Status         InvestmentStatus
	Withdrawable   bool
	IncludeDeleted bool
}

type InvestmentSummary struct {
	TotalInvested        decimal.Decimal `json:"total_invested"`
	TotalReturns         decimal.Decimal `json:"total_returns"`
	ActiveInvestments    int             `json:"active_investments"`
	CompletedInvestments int             `json:"completed_investments"`
	PendingInvestments   int             `json:"pending_investments"`
	TotalPortfolioValue  decimal.Decimal `json:"total_portfolio_value"`
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func progress(start, end, now time.Time) float64 {
	total := dateOf(end).Sub(dateOf(start)).Hours() / 24
	if total <= 0 {
		return 0
	}
	elapsed := dateOf(now).Sub(dateOf(start)).Hours() / 24
	pct := elapsed / total * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
