package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// LedgerKind tags which table an admin-facing ledger entry comes from.
type LedgerKind string

const (
	LedgerInvestment LedgerKind = "INV"
	LedgerStorage    LedgerKind = "STO"
	LedgerOrder      LedgerKind = "ORD"
)

type LedgerRef struct {
	Kind LedgerKind
	ID   int64
}

func (r LedgerRef) String() string {
	return fmt.Sprintf("%s-%d", r.Kind, r.ID)
}

func (r LedgerRef) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// ParseLedgerRef parses "INV-12", "STO-3" or "ORD-40".
func ParseLedgerRef(s string) (LedgerRef, error) {
	prefix, rawID, ok := strings.Cut(s, "-")
	if !ok {
		return LedgerRef{}, fmt.Errorf("missing kind prefix in %q", s)
	}
	kind := LedgerKind(strings.ToUpper(prefix))
	switch kind {
	case LedgerInvestment, LedgerStorage, LedgerOrder:
	default:
		return LedgerRef{}, fmt.Errorf("unknown kind %q", prefix)
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return LedgerRef{}, fmt.Errorf("invalid id in %q", s)
	}
	return LedgerRef{Kind: kind, ID: id}, nil
}

type LedgerEntry struct {
	Ref         LedgerRef       `json:"id"`
	UserID      int64           `json:"user_id"`
	Type        string          `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Status      string          `json:"status"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"created_at"`
}

// LedgerPatch is an admin correction; nil fields are left unchanged.
type LedgerPatch struct {
	Amount *decimal.Decimal `json:"amount"`
	Status *string          `json:"status"`
}

type AdminDashboard struct {
	TotalUsers            int             `json:"total_users"`
	TotalInvestments      int             `json:"total_investments"`
	ActiveInvestments     int             `json:"active_investments"`
	PendingInvestments    int             `json:"pending_investments"`
	TotalInvested         decimal.Decimal `json:"total_invested"`
	ActivePackages        int             `json:"active_packages"`
	CompletedTransactions int             `json:"completed_transactions"`
	TransactionVolume     decimal.Decimal `json:"transaction_volume"`
	PendingWithdrawals    int             `json:"pending_withdrawals"`
	StorageInvestments    int             `json:"storage_investments"`
	Orders                int             `json:"orders"`
}
