package repository

import (
	"context"

	"github.com/honeynil/agri-invest-service/internal/models"
)

type StoragePlanRepository interface {
	CapacityStore
	Create(ctx context.Context, plan *models.StoragePlan) error
	Update(ctx context.Context, plan *models.StoragePlan) error
	GetByID(ctx context.Context, id int64) (*models.StoragePlan, error)
	List(ctx context.Context, activeOnly bool) ([]models.StoragePlan, error)
	Delete(ctx context.Context, id int64) error
	CountInvestments(ctx context.Context, planID int64) (int, error)
}

type StorageInvestmentRepository interface {
	Create(ctx context.Context, inv *models.StorageInvestment) error
	GetByID(ctx context.Context, id int64) (*models.StorageInvestment, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*models.StorageInvestment, error)
	Update(ctx context.Context, inv *models.StorageInvestment) error
	List(ctx context.Context, filter models.StorageFilter) ([]models.StorageInvestment, error)
	CreateUpdate(ctx context.Context, u *models.StorageUpdate) error
	ListUpdates(ctx context.Context, investmentID int64) ([]models.StorageUpdate, error)
}
