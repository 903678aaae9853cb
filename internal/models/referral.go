package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ReferralCode struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Code      string    `json:"code"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

type ReferralStatus string

const (
	ReferralPending   ReferralStatus = "pending"
	ReferralActive    ReferralStatus = "active"
	ReferralCompleted ReferralStatus = "completed"
	ReferralCancelled ReferralStatus = "cancelled"
)

type Referral struct {
	ID             int64           `json:"id"`
	ReferrerID     int64           `json:"referrer"`
	ReferredUserID int64           `json:"referred_user"`
	ReferralCodeID int64           `json:"referral_code"`
	Status         ReferralStatus  `json:"status"`
	CommissionRate decimal.Decimal `json:"commission_rate"`
	CreatedAt      time.Time       `json:"created_at"`
	ActivatedAt    *time.Time      `json:"activated_at"`
	CompletedAt    *time.Time      `json:"completed_at"`
}

// Activate moves a pending referral to active and reports whether it did.
func (r *Referral) Activate(now time.Time) bool {
	if r.Status != ReferralPending {
		return false
	}
	r.Status = ReferralActive
	r.ActivatedAt = &now
	return true
}

type EarningStatus string

const (
	EarningPending   EarningStatus = "pending"
	EarningPaid      EarningStatus = "paid"
	EarningCancelled EarningStatus = "cancelled"
)

type ReferralEarning struct {
	ID             int64           `json:"id"`
	ReferralID     int64           `json:"referral"`
	ReferrerID     int64           `json:"referrer"`
	InvestmentID   int64           `json:"investment"`
	Amount         decimal.Decimal `json:"amount"`
	CommissionRate decimal.Decimal `json:"commission_rate"`
	Status         EarningStatus   `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	PaidAt         *time.Time      `json:"paid_at"`
}

// Commission is amount × rate / 100.
func Commission(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate).Div(decimal.NewFromInt(100)).Round(2)
}

type ReferralFilter struct {
	ReferrerID     *int64
	ReferralCodeID *int64
	Status         ReferralStatus
}

type EarningFilter struct {
	ReferrerID *int64
	Status     EarningStatus
}

// ReferralStats is computed on read from referrals and earnings.
type ReferralStats struct {
	TotalReferrals   int             `json:"total_referrals"`
	PendingReferrals int             `json:"pending_referrals"`
	ActiveReferrals  int             `json:"active_referrals"`
	TotalEarnings    decimal.Decimal `json:"total_earnings"`
	PendingEarnings  decimal.Decimal `json:"pending_earnings"`
	PaidEarnings     decimal.Decimal `json:"paid_earnings"`
}

type ReferralCodeStats struct {
	ReferralCode
	TotalReferrals  int             `json:"total_referrals"`
	ActiveReferrals int             `json:"active_referrals"`
	PaidEarnings    decimal.Decimal `json:"total_earnings"`
}
