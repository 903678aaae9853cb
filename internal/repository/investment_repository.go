package repository

import (
	"context"
	"time"

	"github.com/honeynil/agri-invest-service/internal/models"
)

// CapacityStore is the conditional counter behind every offering with a
// finite inventory. Reserve never drops below zero and Release never rises
// above the offering's total.
type CapacityStore interface {
	Reserve(ctx context.Context, id int64, qty int) (remaining int, err error)
	Release(ctx context.Context, id int64, qty int) (remaining int, err error)
}

type PackageRepository interface {
	CapacityStore
	Create(ctx context.Context, pkg *models.InvestmentPackage) error
	Update(ctx context.Context, pkg *models.InvestmentPackage) error
	GetByID(ctx context.Context, id int64) (*models.InvestmentPackage, error)
	List(ctx context.Context, filter models.PackageFilter) ([]models.InvestmentPackage, error)
	Delete(ctx context.Context, id int64) error
	Stats(ctx context.Context) (*models.PackageStats, error)
}

type InvestmentRepository interface {
	Create(ctx context.Context, inv *models.Investment) error
	GetByID(ctx context.Context, id int64) (*models.Investment, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*models.Investment, error)
	Update(ctx context.Context, inv *models.Investment) error
	List(ctx context.Context, filter models.InvestmentFilter) ([]models.Investment, error)
	SoftDelete(ctx context.Context, id int64, at time.Time) error
	HardDelete(ctx context.Context, id int64) error
	CountByUser(ctx context.Context, userID int64) (int, error)
	// LockWithdrawable row-locks the user's withdrawable investments,
	// narrowed to ids when ids is non-empty.
	LockWithdrawable(ctx context.Context, userID int64, ids []int64) ([]models.Investment, error)
	LinkWithdrawal(ctx context.Context, withdrawalID int64, ids []int64) error
	Summary(ctx context.Context, userID *int64) (*models.InvestmentSummary, error)
}

type PaymentRepository interface {
	Create(ctx context.Context, p *models.Payment) error
	GetByReference(ctx context.Context, reference string) (*models.Payment, error)
	GetByReferenceForUpdate(ctx context.Context, reference string) (*models.Payment, error)
	Update(ctx context.Context, p *models.Payment) error
	List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, error)
}

type WithdrawalRepository interface {
	Create(ctx context.Context, w *models.WithdrawalRequest) error
	GetByID(ctx context.Context, id int64) (*models.WithdrawalRequest, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*models.WithdrawalRequest, error)
	Update(ctx context.Context, w *models.WithdrawalRequest) error
	List(ctx context.Context, filter models.WithdrawalFilter) ([]models.WithdrawalRequest, error)
	Stats(ctx context.Context) (*models.WithdrawalStats, error)
}
