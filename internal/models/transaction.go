package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TypeInvestment    TransactionType = "investment"
	TypeWithdrawal    TransactionType = "withdrawal"
	TypeReturn        TransactionType = "return"
	TypeReferralBonus TransactionType = "referral_bonus"
	TypeRefund        TransactionType = "refund"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TypeInvestment, TypeWithdrawal, TypeReturn, TypeReferralBonus, TypeRefund:
		return true
	}
	return false
}

// IsCredit reports whether the entry adds money to the user.
func (t TransactionType) IsCredit() bool {
	return t == TypeReturn || t == TypeReferralBonus || t == TypeRefund
}

type StatusType string

const (
	StatusPending   StatusType = "pending"
	StatusCompleted StatusType = "completed"
	StatusFailed    StatusType = "failed"
	StatusCancelled StatusType = "cancelled"
)

func (s StatusType) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Transaction is an append-only money movement record used for reporting.
type Transaction struct {
	ID               int64           `json:"id"`
	UserID           int64           `json:"user_id"`
	InvestmentID     *int64          `json:"investment,omitempty"`
	Type             TransactionType `json:"transaction_type"`
	Amount           decimal.Decimal `json:"amount"`
	Status           StatusType      `json:"status"`
	PaymentMethod    string          `json:"payment_method"`
	PaymentReference string          `json:"payment_reference"`
	Description      string          `json:"description"`
	CreatedAt        time.Time       `json:"created_at"`
	CompletedAt      *time.Time      `json:"completed_at"`
}

type TransactionFilter struct {
	UserID       *int64
	InvestmentID *int64
	Type         TransactionType
	Status       StatusType
	Limit        int
}

type TransactionStats struct {
	TotalTransactions     int             `json:"total_transactions"`
	CompletedTransactions int             `json:"completed_transactions"`
	PendingTransactions   int             `json:"pending_transactions"`
	TotalAmount           decimal.Decimal `json:"total_amount"`
}
