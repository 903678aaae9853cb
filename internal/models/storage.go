package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// StoragePlan is a commodity storage offering sold by the bag.
type StoragePlan struct {
	ID                    int64           `json:"id"`
	ProductName           string          `json:"product_name"`
	Description           string          `json:"description"`
	BuyingPricePerBag     decimal.Decimal `json:"buying_price_per_bag"`
	ProjectedSellingPrice decimal.Decimal `json:"projected_selling_price"`
	StorageDueDate        time.Time       `json:"storage_due_date"`
	AvailableQuantity     int             `json:"available_quantity"`
	TotalQuantity         int             `json:"total_quantity"`
	MinimumQuantity       int             `json:"minimum_quantity"`
	MaximumQuantity       int             `json:"maximum_quantity"`
	IsActive              bool            `json:"is_active"`
	StorageCostPerBag     decimal.Decimal `json:"storage_cost_per_bag"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

func (p *StoragePlan) ROIPercentage() decimal.Decimal {
	if !p.BuyingPricePerBag.IsPositive() {
		return decimal.Zero
	}
	return p.ProjectedSellingPrice.Sub(p.BuyingPricePerBag).
		Div(p.BuyingPricePerBag).
		Mul(decimal.NewFromInt(100)).
		Round(1)
}

func (p *StoragePlan) IsAvailable() bool {
	return p.IsActive && p.AvailableQuantity > 0
}

type StorageStatus string

const (
	StoragePending   StorageStatus = "pending"
	StorageActive    StorageStatus = "active"
	StorageMatured   StorageStatus = "matured"
	StorageCompleted StorageStatus = "completed"
	StorageCancelled StorageStatus = "cancelled"
)

type StorageInvestment struct {
	ID                          int64           `json:"id"`
	UserID                      int64           `json:"user_id"`
	PlanID                      int64           `json:"storage_plan"`
	ProductName                 string          `json:"product_name,omitempty"`
	CustomerName                string          `json:"customer_name"`
	CustomerEmail               string          `json:"customer_email"`
	CustomerPhone               string          `json:"customer_phone"`
	QuantityBags                int             `json:"quantity_bags"`
	PricePerBag                 decimal.Decimal `json:"price_per_bag"`
	TotalInvestmentAmount       decimal.Decimal `json:"total_investment_amount"`
	ProjectedSellingPricePerBag decimal.Decimal `json:"projected_selling_price_per_bag"`
	ProjectedReturns            decimal.Decimal `json:"projected_returns"`
	Status                      StorageStatus   `json:"status"`
	DueDate                     time.Time       `json:"due_date"`
	MaturedAt                   *time.Time      `json:"matured_date"`
	CompletedAt                 *time.Time      `json:"completion_date"`
	PaymentReference            string          `json:"payment_reference,omitempty"`
	PaymentStatus               string          `json:"payment_status"`
	PaymentDate                 *time.Time      `json:"payment_date"`
	CreatedAt                   time.Time       `json:"purchase_date"`
	UpdatedAt                   time.Time       `json:"updated_at"`
}

func (s *StorageInvestment) ROIPercentage() decimal.Decimal {
	if !s.TotalInvestmentAmount.IsPositive() {
		return decimal.Zero
	}
	return s.ProjectedReturns.Sub(s.TotalInvestmentAmount).
		Div(s.TotalInvestmentAmount).
		Mul(decimal.NewFromInt(100)).
		Round(1)
}

func (s *StorageInvestment) DaysRemaining(now time.Time) int {
	days := int(dateOf(s.DueDate).Sub(dateOf(now)).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

func (s *StorageInvestment) ProgressPercentage(now time.Time) float64 {
	return progress(s.CreatedAt, s.DueDate, now)
}

func (s *StorageInvestment) IsDue(now time.Time) bool {
	return !dateOf(now).Before(dateOf(s.DueDate))
}

type StorageFilter struct {
	UserID    *int64
	PlanID    *int64
	Status    StorageStatus
	DueBefore *time.Time
}

type StorageUpdateType string

const (
	UpdateStorageStart StorageUpdateType = "storage_start"
	UpdateQualityCheck StorageUpdateType = "quality_check"
	UpdatePrice        StorageUpdateType = "price_update"
	UpdateMaturity     StorageUpdateType = "maturity"
	UpdateSaleComplete StorageUpdateType = "sale_complete"
	UpdateGeneral      StorageUpdateType = "general"
)

func (t StorageUpdateType) Valid() bool {
	switch t {
	case UpdateStorageStart, UpdateQualityCheck, UpdatePrice, UpdateMaturity, UpdateSaleComplete, UpdateGeneral:
		return true
	}
	return false
}

type StorageUpdate struct {
	ID                 int64             `json:"id"`
	InvestmentID       int64             `json:"investment"`
	Type               StorageUpdateType `json:"update_type"`
	Title              string            `json:"title"`
	Message            string            `json:"message"`
	CurrentMarketPrice *decimal.Decimal  `json:"current_market_price"`
	CreatedAt          time.Time         `json:"created_at"`
}

type StorageDashboard struct {
	TotalInvested        decimal.Decimal `json:"total_invested"`
	ProjectedReturns     decimal.Decimal `json:"projected_returns"`
	ActiveInvestments    int             `json:"active_investments"`
	PendingInvestments   int             `json:"pending_investments"`
	MaturedInvestments   int             `json:"matured_investments"`
	CompletedInvestments int             `json:"completed_investments"`
	TotalBags            int             `json:"total_bags"`
}
