package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/honeynil/agri-invest-service/internal/models"
	"github.com/honeynil/agri-invest-service/internal/repository"
	pkgerrors "github.com/honeynil/agri-invest-service/pkg/errors"
)

type ReferralService interface {
	MyCode(ctx context.Context, userID int64) (*models.ReferralCode, error)
	Referrals(ctx context.Context, filter models.ReferralFilter) ([]models.Referral, error)
	Earnings(ctx context.Context, filter models.EarningFilter) ([]models.ReferralEarning, error)
	Stats(ctx context.Context, referrerID *int64) (*models.ReferralStats, error)
	MarkEarningPaid(ctx context.Context, id int64) (*models.ReferralEarning, error)
	CodeStats(ctx context.Context) ([]models.ReferralCodeStats, error)
}

type referralService struct {
	store    repository.Store
	notifier Notifier
	now      clock
}

func NewReferralService(store repository.Store, notifier Notifier) *referralService {
	return &referralService{store: store, notifier: notifier, now: systemClock}
}

// MyCode returns the user's referral code, issuing one for accounts created
// before codes existed.
func (s *referralService) MyCode(ctx context.Context, userID int64) (*models.ReferralCode, error) {
	code, err := s.store.Referrals().GetCodeByUser(ctx, userID)
	if err == nil {
		return code, nil
	}
	if !stderrors.Is(err, pkgerrors.ErrReferralCodeNotFound) {
		return nil, err
	}
	code = &models.ReferralCode{UserID: userID, Code: newReferralCode(), IsActive: true}
	if err := s.store.Referrals().CreateCode(ctx, code); err != nil {
		slog.Error("failed to issue referral code", "user_id", userID, "error", err)
		return nil, err
	}
	slog.Info("referral code issued", "user_id", userID, "code", code.Code)
	return code, nil
}

func (s *referralService) Referrals(ctx context.Context, filter models.ReferralFilter) ([]models.Referral, error) {
	return s.store.Referrals().List(ctx, filter)
}

func (s *referralService) Earnings(ctx context.Context, filter models.EarningFilter) ([]models.ReferralEarning, error) {
	return s.store.Referrals().ListEarnings(ctx, filter)
}

func (s *referralService) Stats(ctx context.Context, referrerID *int64) (*models.ReferralStats, error) {
	return s.store.Referrals().Stats(ctx, referrerID)
}

func (s *referralService) CodeStats(ctx context.Context) ([]models.ReferralCodeStats, error) {
	return s.store.Referrals().ListCodeStats(ctx)
}

// MarkEarningPaid settles a pending commission and books it as a
// referral_bonus transaction for the referrer.
func (s *referralService) MarkEarningPaid(ctx context.Context, id int64) (*models.ReferralEarning, error) {
	ctx, span := startSpan(ctx, "referral-service", "MarkEarningPaid")
	defer span.End()

	var (
		earning *models.ReferralEarning
		box     outbox
	)
	now := s.now()
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		earning, err = repos.Referrals().GetEarningForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if earning.Status != models.EarningPending {
			return pkgerrors.Business(pkgerrors.ErrInvalidTransition, "earning is already %s", earning.Status)
		}
		earning.Status = models.EarningPaid
		earning.PaidAt = &now
		if err := repos.Referrals().UpdateEarning(ctx, earning); err != nil {
			return err
		}
		invID := earning.InvestmentID
		if _, err := repos.Transactions().Create(ctx, &models.Transaction{
			UserID:       earning.ReferrerID,
			InvestmentID: &invID,
			Type:         models.TypeReferralBonus,
			Amount:       earning.Amount,
			Status:       models.StatusCompleted,
			Description:  fmt.Sprintf("Referral commission for investment #%d", earning.InvestmentID),
			CompletedAt:  &now,
		}); err != nil {
			return err
		}
		box.add(earning.ReferrerID, models.NotificationEarning, fmt.Sprintf("Your referral commission of %s has been paid.", earning.Amount.StringFixed(2)))
		return nil
	})
	if err != nil {
		return nil, fail(span, err, "mark earning paid failed")
	}
	box.flush(ctx, s.notifier)
	slog.Info("referral earning paid", "earning_id", id, "referrer_id", earning.ReferrerID, "amount", earning.Amount)
	return earning, nil
}
