package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type WithdrawalStatus string

const (
	WithdrawalPending   WithdrawalStatus = "pending"
	WithdrawalApproved  WithdrawalStatus = "approved"
	WithdrawalCompleted WithdrawalStatus = "completed"
	WithdrawalRejected  WithdrawalStatus = "rejected"
	WithdrawalFailed    WithdrawalStatus = "failed"
)

type WithdrawalType string

const (
	WithdrawalFull     WithdrawalType = "full"
	WithdrawalInterest WithdrawalType = "interest"
	WithdrawalReinvest WithdrawalType = "reinvest"
)

func (t WithdrawalType) Valid() bool {
	return t == WithdrawalFull || t == WithdrawalInterest || t == WithdrawalReinvest
}

type WithdrawalRequest struct {
	ID               int64            `json:"id"`
	UserID           int64            `json:"user_id"`
	Amount           decimal.Decimal  `json:"amount"`
	RequestedAmount  decimal.Decimal  `json:"requested_amount"`
	Type             WithdrawalType   `json:"type"`
	Status           WithdrawalStatus `json:"status"`
	PaymentReference string           `json:"payment_reference,omitempty"`
	AdminNotes       string           `json:"admin_notes,omitempty"`
	InvestmentIDs    []int64          `json:"investments"`
	RequestedAt      time.Time        `json:"request_date"`
	ProcessedAt      *time.Time       `json:"processed_date"`
}

// WithdrawalAmount sums the payout of the selected investments. Full pays the
// whole actual return; interest and reinvest pay only the gain.
func WithdrawalAmount(t WithdrawalType, investments []Investment) decimal.Decimal {
	total := decimal.Zero
	principal := decimal.Zero
	for _, inv := range investments {
		if inv.ActualReturn != nil {
			total = total.Add(*inv.ActualReturn)
		}
		principal = principal.Add(inv.Amount)
	}
	if t == WithdrawalFull {
		return total
	}
	return total.Sub(principal)
}

type WithdrawalFilter struct {
	UserID *int64
	Status WithdrawalStatus
}

type WithdrawalStats struct {
	PendingWithdrawals   int             `json:"pending_withdrawals"`
	ApprovedWithdrawals  int             `json:"approved_withdrawals"`
	CompletedWithdrawals int             `json:"completed_withdrawals"`
	RejectedWithdrawals  int             `json:"rejected_withdrawals"`
	TotalAmount          decimal.Decimal `json:"total_amount"`
}
