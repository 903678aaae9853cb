package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentKind says which table a payment settles.
type PaymentKind string

const (
	PaymentForInvestment PaymentKind = "investment"
	PaymentForStorage    PaymentKind = "storage"
	PaymentForOrder      PaymentKind = "order"
)

func (k PaymentKind) Valid() bool {
	switch k {
	case PaymentForInvestment, PaymentForStorage, PaymentForOrder:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSuccess   PaymentStatus = "success"
	PaymentFailed    PaymentStatus = "failed"
	PaymentAbandoned PaymentStatus = "abandoned"
	PaymentRefunded  PaymentStatus = "refunded"
)

// NormalizePaymentStatus folds gateway spellings into PaymentStatus.
func NormalizePaymentStatus(s string) PaymentStatus {
	switch s {
	case "success", "successful":
		return PaymentSuccess
	case "failed", "reversed":
		return PaymentFailed
	case "abandoned":
		return PaymentAbandoned
	case "refunded":
		return PaymentRefunded
	}
	return PaymentPending
}

type Payment struct {
	ID               int64           `json:"id"`
	UserID           int64           `json:"user_id"`
	Kind             PaymentKind     `json:"kind"`
	TargetID         int64           `json:"target_id"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	Status           PaymentStatus   `json:"status"`
	Reference        string          `json:"reference"`
	AccessCode       string          `json:"access_code,omitempty"`
	AuthorizationURL string          `json:"authorization_url,omitempty"`
	GatewayID        string          `json:"gateway_id,omitempty"`
	PaymentMethod    string          `json:"payment_method"`
	Metadata         json.RawMessage `json:"metadata,omitempty"`
	PaidAt           *time.Time      `json:"paid_at"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func (p *Payment) IsSuccessful() bool { return p.Status == PaymentSuccess }

// AmountInKobo converts the amount to the gateway's minor unit.
func (p *Payment) AmountInKobo() int64 {
	return p.Amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

type PaymentFilter struct {
	UserID        *int64
	Kind          PaymentKind
	TargetID      *int64
	Status        PaymentStatus
	CreatedBefore *time.Time
}
