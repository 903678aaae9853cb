package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PackageStatus string

const (
	PackageActive    PackageStatus = "active"
	PackageInactive  PackageStatus = "inactive"
	PackageCompleted PackageStatus = "completed"
	PackageSuspended PackageStatus = "suspended"
)

func (s PackageStatus) Valid() bool {
	switch s {
	case PackageActive, PackageInactive, PackageCompleted, PackageSuspended:
		return true
	}
	return false
}

var PackageCategories = []string{"grains", "cash_crops", "livestock", "aquaculture", "processing", "horticulture"}

var RiskLevels = []string{"low", "medium", "high"}

// InvestmentPackage is an investable farming offering with a finite number of slots.
type InvestmentPackage struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	Category       string          `json:"category"`
	RiskLevel      string          `json:"risk_level"`
	Status         PackageStatus   `json:"status"`
	MinAmount      decimal.Decimal `json:"min_amount"`
	MaxAmount      decimal.Decimal `json:"max_amount"`
	InterestRate   decimal.Decimal `json:"interest_rate"`
	DurationMonths int             `json:"duration_months"`
	TotalSlots     int             `json:"total_slots"`
	AvailableSlots int             `json:"available_slots"`
	Location       string          `json:"location"`
	StartDate      time.Time       `json:"start_date"`
	EndDate        time.Time       `json:"end_date"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (p *InvestmentPackage) FilledPercentage() float64 {
	if p.TotalSlots == 0 {
		return 0
	}
	return float64(p.TotalSlots-p.AvailableSlots) / float64(p.TotalSlots) * 100
}

func (p *InvestmentPackage) IsAvailable() bool {
	return p.Status == PackageActive && p.AvailableSlots > 0
}

type PackageFilter struct {
	Status    PackageStatus
	Category  string
	RiskLevel string
}

type PackageStats struct {
	TotalPackages  int `json:"total_packages"`
	ActivePackages int `json:"active_packages"`
	TotalSlots     int `json:"total_slots"`
	AvailableSlots int `json:"available_slots"`
	FilledSlots    int `json:"filled_slots"`
}
