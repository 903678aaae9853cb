package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/honeynil/agri-invest-service/internal/infrastructure/observability"
	"github.com/honeynil/agri-invest-service/internal/models"
	"github.com/honeynil/agri-invest-service/internal/repository"
	pkgerrors "github.com/honeynil/agri-invest-service/pkg/errors"
	"github.com/shopspring/decimal"
)

// InvestmentPatch is an admin edit; nil fields stay unchanged.
type InvestmentPatch struct {
	Status       *models.InvestmentStatus
	ActualReturn *decimal.Decimal
}

type InvestmentService interface {
	Create(ctx context.Context, userID, packageID int64, amount decimal.Decimal) (*models.Investment, error)
	List(ctx context.Context, filter models.InvestmentFilter) ([]models.Investment, error)
	Get(ctx context.Context, userID, id int64) (*models.Investment, error)
	Summary(ctx context.Context, userID *int64) (*models.InvestmentSummary, error)
	Withdrawable(ctx context.Context, userID int64) ([]models.Investment, error)
	PaymentStatus(ctx context.Context, userID, id int64) (*models.Payment, error)
	Complete(ctx context.Context, userID, id int64) (*models.Investment, error)
	Cancel(ctx context.Context, userID, id int64) error

	AdminGet(ctx context.Context, id int64) (*models.Investment, error)
	Approve(ctx context.Context, id int64) (*models.Investment, error)
	Reject(ctx context.Context, id int64, reason string) (*models.Investment, error)
	ForceApprove(ctx context.Context, id int64) (*models.Investment, error)
	ForceComplete(ctx context.Context, id int64, actualReturn *decimal.Decimal) (*models.Investment, error)
	Update(ctx context.Context, id int64, patch InvestmentPatch, asAdmin bool) (*models.Investment, error)
	HardDelete(ctx context.Context, id int64) error
}

type investmentService struct {
	store    repository.Store
	notifier Notifier
	now      clock
}

func NewInvestmentService(store repository.Store, notifier Notifier) *investmentService {
	return &investmentService{store: store, notifier: notifier, now: systemClock}
}

func (s *investmentService) Create(ctx context.Context, userID, packageID int64, amount decimal.Decimal) (*models.Investment, error) {
	ctx, span := startSpan(ctx, "investment-service", "Create")
	defer span.End()

	if !amount.IsPositive() {
		return nil, fail(span, pkgerrors.Business(pkgerrors.ErrInvalidInput, "amount must be positive"), "invalid amount")
	}

	var (
		inv *models.Investment
		box outbox
	)
	now := s.now()
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		pkg, err := repos.Packages().GetByID(ctx, packageID)
		if err != nil {
			return err
		}
		if !pkg.IsAvailable() {
			return pkgerrors.Business(pkgerrors.ErrPackageUnavailable, "package %q is not available for investment", pkg.Name)
		}
		if amount.LessThan(pkg.MinAmount) || amount.GreaterThan(pkg.MaxAmount) {
			return pkgerrors.Business(pkgerrors.ErrInvalidInput, "amount must be between %s and %s", pkg.MinAmount.StringFixed(2), pkg.MaxAmount.StringFixed(2))
		}

		prior, err := repos.Investments().CountByUser(ctx, userID)
		if err != nil {
			return err
		}
		var referral *models.Referral
		if prior == 0 {
			referral, err = repos.Referrals().GetPendingByReferredForUpdate(ctx, userID)
			if err != nil && !stderrors.Is(err, pkgerrors.ErrReferralNotFound) {
				return err
			}
		}

		start := dateOf(now)
		inv = &models.Investment{
			UserID:         userID,
			PackageID:      pkg.ID,
			Amount:         amount,
			Status:         models.InvestmentPending,
			ExpectedReturn: amount.Mul(pkg.InterestRate).Div(decimal.NewFromInt(100)).Round(2),
			StartDate:      start,
			EndDate:        start.AddDate(0, pkg.DurationMonths, 0),
		}
		if referral != nil {
			inv.ReferredBy = &referral.ReferrerID
		}
		if err := repos.Investments().Create(ctx, inv); err != nil {
			return err
		}
		if referral == nil {
			return nil
		}
		return accrueReferral(ctx, repos, referral, inv, now, &box)
	})
	if err != nil {
		slog.Warn("investment create failed", "user_id", userID, "package_id", packageID, "amount", amount, "error", err)
		return nil, fail(span, err, "investment create failed")
	}

	box.flush(ctx, s.notifier)
	slog.Info("investment created", "investment_id", inv.ID, "user_id", userID, "package_id", packageID, "amount", amount)
	return inv, nil
}

// accrueReferral activates the referral of a first-time investor and books
// the referrer's commission.
func accrueReferral(ctx context.Context, repos repository.Repositories, ref *models.Referral, inv *models.Investment, now time.Time, box *outbox) error {
	if !ref.Activate(now) {
		return nil
	}
	if err := repos.Referrals().Update(ctx, ref); err != nil {
		return err
	}
	earning := &models.ReferralEarning{
		ReferralID:     ref.ID,
		ReferrerID:     ref.ReferrerID,
		InvestmentID:   inv.ID,
		Amount:         models.Commission(inv.Amount, ref.CommissionRate),
		CommissionRate: ref.CommissionRate,
		Status:         models.EarningPending,
	}
	if err := repos.Referrals().CreateEarning(ctx, earning); err != nil {
		return err
	}
	box.add(ref.ReferrerID, models.NotificationReferral, "A user you referred has made their first investment.")
	box.add(ref.ReferrerID, models.NotificationEarning, fmt.Sprintf("You earned a referral commission of %s.", earning.Amount.StringFixed(2)))
	slog.Info("referral activated", "referral_id", ref.ID, "referrer_id", ref.ReferrerID, "earning", earning.Amount)
	return nil
}

// activateInvestment takes a slot and moves a pending investment to active.
// When the slot was the last one every other pending investment of the
// package is cancelled.
func activateInvestment(ctx context.Context, repos repository.Repositories, inv *models.Investment, payment *models.Payment, now time.Time, box *outbox) error {
	if inv.DeletedAt != nil || inv.Status != models.InvestmentPending {
		return pkgerrors.Business(pkgerrors.ErrInvalidTransition, "investment %d is %s and cannot be activated", inv.ID, inv.Status)
	}
	remaining, err := repos.Packages().Reserve(ctx, inv.PackageID, 1)
	if err != nil {
		return err
	}

	inv.Status = models.InvestmentActive
	if err := repos.Investments().Update(ctx, inv); err != nil {
		return err
	}
	invID := inv.ID
	completed := now
	if _, err := repos.Transactions().Create(ctx, &models.Transaction{
		UserID:           inv.UserID,
		InvestmentID:     &invID,
		Type:             models.TypeInvestment,
		Amount:           inv.Amount,
		Status:           models.StatusCompleted,
		PaymentMethod:    payment.PaymentMethod,
		PaymentReference: payment.Reference,
		Description:      fmt.Sprintf("Investment in %s", inv.PackageName),
		CompletedAt:      &completed,
	}); err != nil {
		return err
	}
	box.add(inv.UserID, models.NotificationInvestment, fmt.Sprintf("Your investment of %s in %s is now active.", inv.Amount.StringFixed(2), inv.PackageName))

	if remaining == 0 {
		observability.CapacityExhausted.WithLabelValues(string(models.PaymentForInvestment)).Inc()
		return cancelOtherPending(ctx, repos, inv.PackageID, inv.ID, now, box)
	}
	return nil
}

func cancelOtherPending(ctx context.Context, repos repository.Repositories, packageID, keepID int64, now time.Time, box *outbox) error {
	pending, err := repos.Investments().List(ctx, models.InvestmentFilter{PackageID: &packageID, Status: models.InvestmentPending})
	if err != nil {
		return err
	}
	for i := range pending {
		other := &pending[i]
		if other.ID == keepID {
			continue
		}
		if err := cancelInvestment(ctx, repos, other, "package fully subscribed", now); err != nil {
			return err
		}
		observability.AutoCancelled.WithLabelValues("package_full").Inc()
		box.add(other.UserID, models.NotificationInvestment, fmt.Sprintf("Your pending investment in %s was cancelled because the package is fully subscribed.", other.PackageName))
		slog.Info("pending investment auto-cancelled", "investment_id", other.ID, "package_id", packageID)
	}
	return nil
}

// cancelInvestment cancels, books a refund entry and hides the investment.
// An active investment gives its slot back.
func cancelInvestment(ctx context.Context, repos repository.Repositories, inv *models.Investment, reason string, now time.Time) error {
	if !inv.Status.CanTransition(models.InvestmentCancelled) {
		return pkgerrors.Business(pkgerrors.ErrInvalidTransition, "investment %d is %s and cannot be cancelled", inv.ID, inv.Status)
	}
	wasActive := inv.Status == models.InvestmentActive
	inv.Status = models.InvestmentCancelled
	if err := repos.Investments().Update(ctx, inv); err != nil {
		return err
	}
	if wasActive {
		if _, err := repos.Packages().Release(ctx, inv.PackageID, 1); err != nil {
			return err
		}
	}
	invID := inv.ID
	if _, err := repos.Transactions().Create(ctx, &models.Transaction{
		UserID:       inv.UserID,
		InvestmentID: &invID,
		Type:         models.TypeRefund,
		Amount:       inv.Amount,
		Status:       models.StatusCompleted,
		Description:  "Refund: " + reason,
		CompletedAt:  &now,
	}); err != nil {
		return err
	}
	if err := repos.Investments().SoftDelete(ctx, inv.ID, now); err != nil {
		return err
	}
	inv.DeletedAt = &now
	return nil
}

func (s *investmentService) List(ctx context.Context, filter models.InvestmentFilter) ([]models.Investment, error) {
	if filter.Status == "" && !filter.IncludeDeleted {
		all, err := s.store.Investments().List(ctx, filter)
		if err != nil {
			return nil, err
		}
		out := all[:0]
		for _, inv := range all {
			if inv.Status != models.InvestmentCancelled {
				out = append(out, inv)
			}
		}
		return out, nil
	}
	return s.store.Investments().List(ctx, filter)
}

func (s *investmentService) owned(ctx context.Context, repos repository.Repositories, userID, id int64, forUpdate bool) (*models.Investment, error) {
	var (
		inv *models.Investment
		err error
	)
	if forUpdate {
		inv, err = repos.Investments().GetByIDForUpdate(ctx, id)
	} else {
		inv, err = repos.Investments().GetByID(ctx, id)
	}
	if err != nil {
		return nil, err
	}
	if inv.UserID != userID || inv.DeletedAt != nil {
		return nil, pkgerrors.ErrInvestmentNotFound
	}
	return inv, nil
}

func (s *investmentService) Get(ctx context.Context, userID, id int64) (*models.Investment, error) {
	return s.owned(ctx, s.store, userID, id, false)
}

func (s *investmentService) AdminGet(ctx context.Context, id int64) (*models.Investment, error) {
	return s.store.Investments().GetByID(ctx, id)
}

func (s *investmentService) Summary(ctx context.Context, userID *int64) (*models.InvestmentSummary, error) {
	return s.store.Investments().Summary(ctx, userID)
}

func (s *investmentService) Withdrawable(ctx context.Context, userID int64) ([]models.Investment, error) {
	return s.store.Investments().List(ctx, models.InvestmentFilter{UserID: &userID, Withdrawable: true})
}

// PaymentStatus returns the latest payment attempt for the investment.
func (s *investmentService) PaymentStatus(ctx context.Context, userID, id int64) (*models.Payment, error) {
	if _, err := s.owned(ctx, s.store, userID, id, false); err != nil {
		return nil, err
	}
	payments, err := s.store.Payments().List(ctx, models.PaymentFilter{Kind: models.PaymentForInvestment, TargetID: &id})
	if err != nil {
		return nil, err
	}
	if len(payments) == 0 {
		return nil, pkgerrors.ErrPaymentNotFound
	}
	return &payments[0], nil
}

func (s *investmentService) Complete(ctx context.Context, userID, id int64) (*models.Investment, error) {
	ctx, span := startSpan(ctx, "investment-service", "Complete")
	defer span.End()

	var inv *models.Investment
	now := s.now()
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		inv, err = s.owned(ctx, repos, userID, id, true)
		if err != nil {
			return err
		}
		if inv.Status != models.InvestmentActive {
			return pkgerrors.Business(pkgerrors.ErrInvalidTransition, "only active investments can be completed")
		}
		if !inv.IsDue(now) {
			return pkgerrors.Business(pkgerrors.ErrInvalidTransition, "investment matures on %s", inv.EndDate.Format(time.DateOnly))
		}
		return completeInvestment(ctx, repos, inv, nil, now)
	})
	if err != nil {
		return nil, fail(span, err, "investment complete failed")
	}
	slog.Info("investment completed", "investment_id", id, "user_id", userID)
	return inv, nil
}

func completeInvestment(ctx context.Context, repos repository.Repositories, inv *models.Investment, actualReturn *decimal.Decimal, now time.Time) error {
	if !inv.Status.CanTransition(models.InvestmentCompleted) {
		return pkgerrors.Business(pkgerrors.ErrInvalidTransition, "investment %d is %s and cannot be completed", inv.ID, inv.Status)
	}
	inv.Status = models.InvestmentCompleted
	inv.CompletedAt = &now
	if actualReturn != nil {
		inv.ActualReturn = actualReturn
	}
	return repos.Investments().Update(ctx, inv)
}

func (s *investmentService) Cancel(ctx context.Context, userID, id int64) error {
	ctx, span := startSpan(ctx, "investment-service", "Cancel")
	defer span.End()

	now := s.now()
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		inv, err := s.owned(ctx, repos, userID, id, true)
		if err != nil {
			return err
		}
		if inv.Status != models.InvestmentPending {
			return pkgerrors.Business(pkgerrors.ErrInvalidTransition, "only pending investments can be cancelled")
		}
		return cancelInvestment(ctx, repos, inv, "cancelled by investor", now)
	})
	if err != nil {
		return fail(span, err, "investment cancel failed")
	}
	slog.Info("investment cancelled", "investment_id", id, "user_id", userID)
	return nil
}

// Approve activates a pending investment whose payment already succeeded.
func (s *investmentService) Approve(ctx context.Context, id int64) (*models.Investment, error) {
	ctx, span := startSpan(ctx, "investment-service", "Approve")
	defer span.End()

	var (
		inv *models.Investment
		box outbox
	)
	now := s.now()
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		inv, err = repos.Investments().GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		payments, err := repos.Payments().List(ctx, models.PaymentFilter{Kind: models.PaymentForInvestment, TargetID: &id, Status: models.PaymentSuccess})
		if err != nil {
			return err
		}
		if len(payments) == 0 {
			return pkgerrors.Business(pkgerrors.ErrInvalidTransition, "investment has no successful payment; use force approve")
		}
		return activateInvestment(ctx, repos, inv, &payments[0], now, &box)
	})
	if err != nil {
		return nil, fail(span, err, "investment approve failed")
	}
	box.flush(ctx, s.notifier)
	slog.Info("investment approved", "investment_id", id)
	return inv, nil
}

func (s *investmentService) Reject(ctx context.Context, id int64, reason string) (*models.Investment, error) {
	ctx, span := startSpan(ctx, "investment-service", "Reject")
	defer span.End()

	if reason == "" {
		reason = "rejected by administrator"
	}
	var (
		inv *models.Investment
		box outbox
	)
	now := s.now()
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		inv, err = repos.Investments().GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if inv.Status != models.InvestmentPending {
			return pkgerrors.Business(pkgerrors.ErrInvalidTransition, "only pending investments can be rejected")
		}
		if err := cancelInvestment(ctx, repos, inv, reason, now); err != nil {
			return err
		}
		box.add(inv.UserID, models.NotificationInvestment, fmt.Sprintf("Your investment in %s was rejected: %s", inv.PackageName, reason))
		return nil
	})
	if err != nil {
		return nil, fail(span, err, "investment reject failed")
	}
	box.flush(ctx, s.notifier)
	slog.Info("investment rejected", "investment_id", id, "reason", reason)
	return inv, nil
}

// ForceApprove activates without a gateway payment and records a manual
// success payment so the activation stays traceable.
func (s *investmentService) ForceApprove(ctx context.Context, id int64) (*models.Investment, error) {
	ctx, span := startSpan(ctx, "investment-service", "ForceApprove")
	defer span.End()

	var (
		inv *models.Investment
		box outbox
	)
	now := s.now()
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		inv, err = repos.Investments().GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if inv.Status != models.InvestmentPending {
			return pkgerrors.Business(pkgerrors.ErrInvalidTransition, "only pending investments can be force approved")
		}
		payment := &models.Payment{
			UserID:        inv.UserID,
			Kind:          models.PaymentForInvestment,
			TargetID:      inv.ID,
			Amount:        inv.Amount,
			Currency:      defaultCurrency,
			Status:        models.PaymentSuccess,
			Reference:     "MAN-" + uuid.NewString(),
			PaymentMethod: "admin_override",
			PaidAt:        &now,
		}
		if err := repos.Payments().Create(ctx, payment); err != nil {
			return err
		}
		return activateInvestment(ctx, repos, inv, payment, now, &box)
	})
	if err != nil {
		return nil, fail(span, err, "investment force approve failed")
	}
	box.flush(ctx, s.notifier)
	slog.Info("investment force approved", "investment_id", id)
	return inv, nil
}

func (s *investmentService) ForceComplete(ctx context.Context, id int64, actualReturn *decimal.Decimal) (*models.Investment, error) {
	ctx, span := startSpan(ctx, "investment-service", "ForceComplete")
	defer span.End()

	if actualReturn != nil && actualReturn.IsNegative() {
		return nil, fail(span, pkgerrors.Business(pkgerrors.ErrInvalidInput, "actual return cannot be negative"), "invalid actual return")
	}
	var (
		inv *models.Investment
		box outbox
	)
	now := s.now()
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		inv, err = repos.Investments().GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := completeInvestment(ctx, repos, inv, actualReturn, now); err != nil {
			return err
		}
		box.add(inv.UserID, models.NotificationInvestment, fmt.Sprintf("Your investment in %s has been completed.", inv.PackageName))
		return nil
	})
	if err != nil {
		return nil, fail(span, err, "investment force complete failed")
	}
	box.flush(ctx, s.notifier)
	slog.Info("investment force completed", "investment_id", id, "actual_return", actualReturn)
	return inv, nil
}

// Update applies a status transition and/or an actual return. The actual
// return is only accepted on completed investments, and once set only an
// admin may change it.
func (s *investmentService) Update(ctx context.Context, id int64, patch InvestmentPatch, asAdmin bool) (*models.Investment, error) {
	ctx, span := startSpan(ctx, "investment-service", "Update")
	defer span.End()

	if patch.ActualReturn != nil && patch.ActualReturn.IsNegative() {
		return nil, fail(span, pkgerrors.Business(pkgerrors.ErrInvalidInput, "actual return cannot be negative"), "invalid actual return")
	}
	var inv *models.Investment
	now := s.now()
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		inv, err = repos.Investments().GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}

		if patch.Status != nil && *patch.Status != inv.Status {
			next := *patch.Status
			if !next.Valid() {
				return pkgerrors.Business(pkgerrors.ErrInvalidInput, "unknown status %q", next)
			}
			if !inv.Status.CanTransition(next) {
				return pkgerrors.Business(pkgerrors.ErrInvalidTransition, "cannot move investment from %s to %s", inv.Status, next)
			}
			switch next {
			case models.InvestmentActive:
				return pkgerrors.Business(pkgerrors.ErrInvalidTransition, "use approve or force approve to activate an investment")
			case models.InvestmentCancelled:
				if err := cancelInvestment(ctx, repos, inv, "cancelled by administrator", now); err != nil {
					return err
				}
			case models.InvestmentCompleted:
				if err := completeInvestment(ctx, repos, inv, nil, now); err != nil {
					return err
				}
			default:
				inv.Status = next
				if err := repos.Investments().Update(ctx, inv); err != nil {
					return err
				}
			}
		}

		if patch.ActualReturn == nil {
			return nil
		}
		if inv.Status != models.InvestmentCompleted {
			return pkgerrors.Business(pkgerrors.ErrInvalidTransition, "actual return can only be set on completed investments")
		}
		if inv.ActualReturn != nil && !asAdmin {
			return pkgerrors.Business(pkgerrors.ErrActualReturnLocked, "actual return has already been set")
		}
		if inv.WithdrawalRequestID != nil {
			return pkgerrors.Business(pkgerrors.ErrActualReturnLocked, "investment is already part of a withdrawal request")
		}
		inv.ActualReturn = patch.ActualReturn
		return repos.Investments().Update(ctx, inv)
	})
	if err != nil {
		return nil, fail(span, err, "investment update failed")
	}
	slog.Info("investment updated", "investment_id", id, "status", inv.Status, "actual_return", inv.ActualReturn, "admin", asAdmin)
	return inv, nil
}

func (s *investmentService) HardDelete(ctx context.Context, id int64) error {
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		inv, err := repos.Investments().GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if inv.Status == models.InvestmentActive && inv.DeletedAt == nil {
			if _, err := repos.Packages().Release(ctx, inv.PackageID, 1); err != nil {
				return err
			}
		}
		return repos.Investments().HardDelete(ctx, id)
	})
	if err != nil {
		slog.Warn("investment delete failed", "investment_id", id, "error", err)
		return err
	}
	slog.Info("investment deleted", "investment_id", id)
	return nil
}

type investmentSettler struct{}

func (investmentSettler) charge(ctx context.Context, repos repository.Repositories, userID, targetID int64) (*chargeInfo, error) {
	inv, err := repos.Investments().GetByIDForUpdate(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if inv.UserID != userID || inv.DeletedAt != nil {
		return nil, pkgerrors.ErrInvestmentNotFound
	}
	if inv.Status != models.InvestmentPending {
		return nil, pkgerrors.Business(pkgerrors.ErrInvalidTransition, "investment is %s and not awaiting payment", inv.Status)
	}
	user, err := repos.Users().GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &chargeInfo{Amount: inv.Amount, Email: user.Email, Label: "investment in " + inv.PackageName}, nil
}

func (investmentSettler) attach(context.Context, repository.Repositories, int64, string) error {
	return nil
}

func (investmentSettler) succeed(ctx context.Context, repos repository.Repositories, p *models.Payment, now time.Time, box *outbox) (bool, error) {
	inv, err := repos.Investments().GetByIDForUpdate(ctx, p.TargetID)
	if err != nil {
		return false, err
	}
	err = activateInvestment(ctx, repos, inv, p, now, box)
	switch {
	case err == nil:
		return false, nil
	case stderrors.Is(err, pkgerrors.ErrInsufficientCapacity):
		slog.Warn("payment arrived for a full package", "investment_id", inv.ID, "reference", p.Reference)
		if err := cancelInvestment(ctx, repos, inv, "package fully subscribed", now); err != nil {
			return false, err
		}
		box.add(inv.UserID, models.NotificationInvestment, fmt.Sprintf("Your investment in %s could not be activated because the package is fully subscribed.", inv.PackageName))
		return true, nil
	case stderrors.Is(err, pkgerrors.ErrInvalidTransition):
		slog.Warn("payment arrived for an investment no longer pending", "investment_id", inv.ID, "status", inv.Status, "reference", p.Reference)
		return true, nil
	}
	return false, err
}

// reject fails the investment on a declined charge. An abandoned checkout
// is cancelled and hidden instead; nothing was paid so nothing is refunded.
func (investmentSettler) reject(ctx context.Context, repos repository.Repositories, p *models.Payment, now time.Time, box *outbox) error {
	inv, err := repos.Investments().GetByIDForUpdate(ctx, p.TargetID)
	if err != nil {
		return err
	}
	if inv.Status != models.InvestmentPending {
		return nil
	}
	if p.Status == models.PaymentAbandoned {
		inv.Status = models.InvestmentCancelled
		if err := repos.Investments().Update(ctx, inv); err != nil {
			return err
		}
		observability.AutoCancelled.WithLabelValues("payment_abandoned").Inc()
		box.add(inv.UserID, models.NotificationInvestment, fmt.Sprintf("Your pending investment in %s was cancelled because payment was not completed.", inv.PackageName))
		return repos.Investments().SoftDelete(ctx, inv.ID, now)
	}
	inv.Status = models.InvestmentFailed
	if err := repos.Investments().Update(ctx, inv); err != nil {
		return err
	}
	box.add(inv.UserID, models.NotificationInvestment, fmt.Sprintf("Payment for your investment in %s failed.", inv.PackageName))
	return nil
}

func (investmentSettler) refund(ctx context.Context, repos repository.Repositories, p *models.Payment, now time.Time, _ *outbox) error {
	inv, err := repos.Investments().GetByIDForUpdate(ctx, p.TargetID)
	if err != nil {
		return err
	}
	if inv.Status != models.InvestmentPending && inv.Status != models.InvestmentActive {
		return pkgerrors.Business(pkgerrors.ErrInvalidTransition, "investment is %s and cannot be refunded", inv.Status)
	}
	return cancelInvestment(ctx, repos, inv, "payment "+p.Reference+" refunded", now)
}
