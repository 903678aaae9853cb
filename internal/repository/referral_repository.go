package repository

import (
	"context"

	"github.com/honeynil/agri-invest-service/internal/models"
)

type ReferralRepository interface {
	CreateCode(ctx context.Context, code *models.ReferralCode) error
	GetCodeByUser(ctx context.Context, userID int64) (*models.ReferralCode, error)
	GetCodeByValue(ctx context.Context, code string) (*models.ReferralCode, error)
	ListCodeStats(ctx context.Context) ([]models.ReferralCodeStats, error)

	Create(ctx context.Context, r *models.Referral) error
	GetByReferredUser(ctx context.Context, userID int64) (*models.Referral, error)
	GetPendingByReferredForUpdate(ctx context.Context, userID int64) (*models.Referral, error)
	Update(ctx context.Context, r *models.Referral) error
	List(ctx context.Context, filter models.ReferralFilter) ([]models.Referral, error)

	CreateEarning(ctx context.Context, e *models.ReferralEarning) error
	GetEarningForUpdate(ctx context.Context, id int64) (*models.ReferralEarning, error)
	UpdateEarning(ctx context.Context, e *models.ReferralEarning) error
	ListEarnings(ctx context.Context, filter models.EarningFilter) ([]models.ReferralEarning, error)

	Stats(ctx context.Context, referrerID *int64) (*models.ReferralStats, error)
}
