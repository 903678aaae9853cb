package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/honeynil/agri-invest-service/internal/infrastructure/observability"
	"github.com/honeynil/agri-invest-service/internal/models"
	"github.com/honeynil/agri-invest-service/internal/repository"
	pkgerrors "github.com/honeynil/agri-invest-service/pkg/errors"
	"github.com/shopspring/decimal"
)

type PurchaseInput struct {
	PlanID        int64
	Quantity      int
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
}

type StorageService interface {
	ListPlans(ctx context.Context, activeOnly bool) ([]models.StoragePlan, error)
	GetPlan(ctx context.Context, id int64) (*models.StoragePlan, error)
	CreatePlan(ctx context.Context, plan *models.StoragePlan) error
	UpdatePlan(ctx context.Context, plan *models.StoragePlan) error
	DeletePlan(ctx context.Context, id int64) error

	Purchase(ctx context.Context, userID int64, in PurchaseInput) (*models.StorageInvestment, *models.Payment, error)
	List(ctx context.Context, filter models.StorageFilter) ([]models.StorageInvestment, error)
	Get(ctx context.Context, userID *int64, id int64) (*models.StorageInvestment, error)
	Mature(ctx context.Context, userID, id int64) (*models.StorageInvestment, error)
	Complete(ctx context.Context, id int64) (*models.StorageInvestment, error)
	AddUpdate(ctx context.Context, u *models.StorageUpdate) error
	Updates(ctx context.Context, userID *int64, id int64) ([]models.StorageUpdate, error)
	Dashboard(ctx context.Context, userID *int64) (*models.StorageDashboard, error)
	CancelOverdue(ctx context.Context) (int, error)
}

type storageService struct {
	store    repository.Store
	payments PaymentService
	notifier Notifier
	now      clock
}

func NewStorageService(store repository.Store, payments PaymentService, notifier Notifier) *storageService {
	return &storageService{store: store, payments: payments, notifier: notifier, now: systemClock}
}

func (s *storageService) ListPlans(ctx context.Context, activeOnly bool) ([]models.StoragePlan, error) {
	return s.store.StoragePlans().List(ctx, activeOnly)
}

func (s *storageService) GetPlan(ctx context.Context, id int64) (*models.StoragePlan, error) {
	return s.store.StoragePlans().GetByID(ctx, id)
}

func validatePlan(plan *models.StoragePlan) error {
	switch {
	case strings.TrimSpace(plan.ProductName) == "":
		return pkgerrors.Business(pkgerrors.ErrInvalidInput, "product name is required")
	case !plan.BuyingPricePerBag.IsPositive():
		return pkgerrors.Business(pkgerrors.ErrInvalidInput, "buying price must be positive")
	case !plan.ProjectedSellingPrice.IsPositive():
		return pkgerrors.Business(pkgerrors.ErrInvalidInput, "projected selling price must be positive")
	case plan.StorageCostPerBag.IsNegative():
		return pkgerrors.Business(pkgerrors.ErrInvalidInput, "storage cost cannot be negative")
	case plan.TotalQuantity <= 0:
		return pkgerrors.Business(pkgerrors.ErrInvalidInput, "total quantity must be positive")
	case plan.AvailableQuantity < 0 || plan.AvailableQuantity > plan.TotalQuantity:
		return pkgerrors.Business(pkgerrors.ErrInvalidInput, "available quantity cannot exceed total quantity")
	case plan.MinimumQuantity < 1:
		return pkgerrors.Business(pkgerrors.ErrInvalidInput, "minimum quantity must be at least 1")
	case plan.MaximumQuantity != 0 && plan.MaximumQuantity < plan.MinimumQuantity:
		return pkgerrors.Business(pkgerrors.ErrInvalidInput, "maximum quantity cannot be below minimum quantity")
	case plan.StorageDueDate.IsZero():
		return pkgerrors.Business(pkgerrors.ErrInvalidInput, "storage due date is required")
	}
	return nil
}

func (s *storageService) CreatePlan(ctx context.Context, plan *models.StoragePlan) error {
	ctx, span := startSpan(ctx, "storage-service", "CreatePlan")
	defer span.End()

	if plan.AvailableQuantity == 0 {
		plan.AvailableQuantity = plan.TotalQuantity
	}
	if plan.MinimumQuantity == 0 {
		plan.MinimumQuantity = 1
	}
	if err := validatePlan(plan); err != nil {
		return fail(span, err, "invalid plan")
	}
	if !dateOf(plan.StorageDueDate).After(dateOf(s.now())) {
		return fail(span, pkgerrors.Business(pkgerrors.ErrInvalidInput, "storage due date must be in the future"), "invalid plan")
	}
	if err := s.store.StoragePlans().Create(ctx, plan); err != nil {
		return fail(span, err, "plan create failed")
	}
	slog.Info("storage plan created", "plan_id", plan.ID, "product", plan.ProductName, "quantity", plan.TotalQuantity)
	return nil
}

func (s *storageService) UpdatePlan(ctx context.Context, plan *models.StoragePlan) error {
	ctx, span := startSpan(ctx, "storage-service", "UpdatePlan")
	defer span.End()

	if err := validatePlan(plan); err != nil {
		return fail(span, err, "invalid plan")
	}
	if err := s.store.StoragePlans().Update(ctx, plan); err != nil {
		return fail(span, err, "plan update failed")
	}
	slog.Info("storage plan updated", "plan_id", plan.ID)
	return nil
}

func (s *storageService) DeletePlan(ctx context.Context, id int64) error {
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		n, err := repos.StoragePlans().CountInvestments(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return pkgerrors.Business(pkgerrors.ErrPlanHasInvestments, "plan has %d investments and cannot be deleted", n)
		}
		return repos.StoragePlans().Delete(ctx, id)
	})
	if err != nil {
		slog.Warn("storage plan delete failed", "plan_id", id, "error", err)
		return err
	}
	slog.Info("storage plan deleted", "plan_id", id)
	return nil
}

// Purchase holds the bags as soon as the order is placed and opens a
// checkout for them. The bags go back if the payment cannot be started.
func (s *storageService) Purchase(ctx context.Context, userID int64, in PurchaseInput) (*models.StorageInvestment, *models.Payment, error) {
	ctx, span := startSpan(ctx, "storage-service", "Purchase")
	defer span.End()

	if in.Quantity <= 0 {
		return nil, nil, fail(span, pkgerrors.Business(pkgerrors.ErrInvalidInput, "quantity must be positive"), "invalid quantity")
	}

	var inv *models.StorageInvestment
	now := s.now()
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		plan, err := repos.StoragePlans().GetByID(ctx, in.PlanID)
		if err != nil {
			return err
		}
		if !plan.IsAvailable() {
			return pkgerrors.Business(pkgerrors.ErrPackageUnavailable, "storage plan %q is not available", plan.ProductName)
		}
		if !dateOf(plan.StorageDueDate).After(dateOf(now)) {
			return pkgerrors.Business(pkgerrors.ErrPackageUnavailable, "storage plan %q has closed", plan.ProductName)
		}
		if in.Quantity < plan.MinimumQuantity || (plan.MaximumQuantity > 0 && in.Quantity > plan.MaximumQuantity) {
			return pkgerrors.Business(pkgerrors.ErrInvalidInput, "quantity must be between %d and %d bags", plan.MinimumQuantity, plan.MaximumQuantity)
		}
		if _, err := repos.StoragePlans().Reserve(ctx, plan.ID, in.Quantity); err != nil {
			if stderrors.Is(err, pkgerrors.ErrInsufficientCapacity) {
				return pkgerrors.Business(pkgerrors.ErrInsufficientCapacity, "only %d bags left", plan.AvailableQuantity)
			}
			return err
		}

		user, err := repos.Users().GetByID(ctx, userID)
		if err != nil {
			return err
		}
		qty := decimal.NewFromInt(int64(in.Quantity))
		inv = &models.StorageInvestment{
			UserID:                      userID,
			PlanID:                      plan.ID,
			ProductName:                 plan.ProductName,
			CustomerName:                firstNonEmpty(in.CustomerName, user.FullName()),
			CustomerEmail:               firstNonEmpty(in.CustomerEmail, user.Email),
			CustomerPhone:               in.CustomerPhone,
			QuantityBags:                in.Quantity,
			PricePerBag:                 plan.BuyingPricePerBag,
			TotalInvestmentAmount:       plan.BuyingPricePerBag.Mul(qty),
			ProjectedSellingPricePerBag: plan.ProjectedSellingPrice,
			ProjectedReturns:            plan.ProjectedSellingPrice.Mul(qty),
			Status:                      models.StoragePending,
			DueDate:                     plan.StorageDueDate,
			PaymentStatus:               string(models.PaymentPending),
		}
		return repos.StorageInvestments().Create(ctx, inv)
	})
	if err != nil {
		slog.Warn("storage purchase failed", "user_id", userID, "plan_id", in.PlanID, "quantity", in.Quantity, "error", err)
		return nil, nil, fail(span, err, "storage purchase failed")
	}
	slog.Info("storage purchase reserved", "storage_id", inv.ID, "user_id", userID, "plan_id", in.PlanID, "quantity", in.Quantity)

	payment, err := s.payments.Initialize(ctx, userID, models.PaymentForStorage, inv.ID)
	if err != nil {
		// A gateway error already cancelled the purchase through its failed payment.
		if !stderrors.Is(err, pkgerrors.ErrGateway) {
			s.abort(ctx, inv.ID)
		}
		return nil, nil, fail(span, err, "payment initialize failed")
	}
	inv.PaymentReference = payment.Reference
	return inv, payment, nil
}

func (s *storageService) abort(ctx context.Context, id int64) {
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		inv, err := repos.StorageInvestments().GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		return cancelStorage(ctx, repos, inv, string(models.PaymentFailed))
	})
	if err != nil {
		slog.Error("failed to release aborted storage purchase", "storage_id", id, "error", err)
	}
}

// cancelStorage cancels a pending or active storage investment and puts its
// bags back on the plan.
func cancelStorage(ctx context.Context, repos repository.Repositories, inv *models.StorageInvestment, paymentStatus string) error {
	if inv.Status != models.StoragePending && inv.Status != models.StorageActive {
		return pkgerrors.Business(pkgerrors.ErrInvalidTransition, "storage investment is %s and cannot be cancelled", inv.Status)
	}
	inv.Status = models.StorageCancelled
	if paymentStatus != "" {
		inv.PaymentStatus = paymentStatus
	}
	if err := repos.StorageInvestments().Update(ctx, inv); err != nil {
		return err
	}
	_, err := repos.StoragePlans().Release(ctx, inv.PlanID, inv.QuantityBags)
	return err
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func (s *storageService) List(ctx context.Context, filter models.StorageFilter) ([]models.StorageInvestment, error) {
	return s.store.StorageInvestments().List(ctx, filter)
}

// Get scopes the lookup to userID unless it is nil.
func (s *storageService) Get(ctx context.Context, userID *int64, id int64) (*models.StorageInvestment, error) {
	inv, err := s.store.StorageInvestments().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if userID != nil && inv.UserID != *userID {
		return nil, pkgerrors.ErrStorageInvestmentNotFound
	}
	return inv, nil
}

func (s *storageService) Mature(ctx context.Context, userID, id int64) (*models.StorageInvestment, error) {
	ctx, span := startSpan(ctx, "storage-service", "Mature")
	defer span.End()

	var inv *models.StorageInvestment
	now := s.now()
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		inv, err = repos.StorageInvestments().GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if inv.UserID != userID {
			return pkgerrors.ErrStorageInvestmentNotFound
		}
		if inv.Status != models.StorageActive {
			return pkgerrors.Business(pkgerrors.ErrInvalidTransition, "only active storage investments can mature")
		}
		if !inv.IsDue(now) {
			return pkgerrors.Business(pkgerrors.ErrInvalidTransition, "storage is due on %s", inv.DueDate.Format(time.DateOnly))
		}
		inv.Status = models.StorageMatured
		inv.MaturedAt = &now
		if err := repos.StorageInvestments().Update(ctx, inv); err != nil {
			return err
		}
		return repos.StorageInvestments().CreateUpdate(ctx, &models.StorageUpdate{
			InvestmentID: inv.ID,
			Type:         models.UpdateMaturity,
			Title:        "Storage matured",
			Message:      fmt.Sprintf("%d bags of %s reached their storage due date.", inv.QuantityBags, inv.ProductName),
		})
	})
	if err != nil {
		return nil, fail(span, err, "storage mature failed")
	}
	slog.Info("storage investment matured", "storage_id", id, "user_id", userID)
	return inv, nil
}

// Complete closes a matured storage investment and books the payout.
func (s *storageService) Complete(ctx context.Context, id int64) (*models.StorageInvestment, error) {
	ctx, span := startSpan(ctx, "storage-service", "Complete")
	defer span.End()

	var (
		inv *models.StorageInvestment
		box outbox
	)
	now := s.now()
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		inv, err = repos.StorageInvestments().GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if inv.Status != models.StorageMatured {
			return pkgerrors.Business(pkgerrors.ErrInvalidTransition, "only matured storage investments can be completed")
		}
		inv.Status = models.StorageCompleted
		inv.CompletedAt = &now
		if err := repos.StorageInvestments().Update(ctx, inv); err != nil {
			return err
		}
		if _, err := repos.Transactions().Create(ctx, &models.Transaction{
			UserID:           inv.UserID,
			Type:             models.TypeReturn,
			Amount:           inv.ProjectedReturns,
			Status:           models.StatusCompleted,
			PaymentReference: inv.PaymentReference,
			Description:      fmt.Sprintf("Storage sale: %d bags of %s", inv.QuantityBags, inv.ProductName),
			CompletedAt:      &now,
		}); err != nil {
			return err
		}
		if err := repos.StorageInvestments().CreateUpdate(ctx, &models.StorageUpdate{
			InvestmentID: inv.ID,
			Type:         models.UpdateSaleComplete,
			Title:        "Sale completed",
			Message:      fmt.Sprintf("Your %s has been sold for %s.", inv.ProductName, inv.ProjectedReturns.StringFixed(2)),
		}); err != nil {
			return err
		}
		box.add(inv.UserID, models.NotificationStorage, fmt.Sprintf("Your %s storage investment has been completed.", inv.ProductName))
		return nil
	})
	if err != nil {
		return nil, fail(span, err, "storage complete failed")
	}
	box.flush(ctx, s.notifier)
	slog.Info("storage investment completed", "storage_id", id)
	return inv, nil
}

// AddUpdate posts a progress note. A price update with a market price
// re-projects the returns of a running investment.
func (s *storageService) AddUpdate(ctx context.Context, u *models.StorageUpdate) error {
	ctx, span := startSpan(ctx, "storage-service", "AddUpdate")
	defer span.End()

	if !u.Type.Valid() {
		return fail(span, pkgerrors.Business(pkgerrors.ErrInvalidInput, "unknown update type %q", u.Type), "invalid update")
	}
	if strings.TrimSpace(u.Title) == "" {
		return fail(span, pkgerrors.Business(pkgerrors.ErrInvalidInput, "title is required"), "invalid update")
	}
	if u.CurrentMarketPrice != nil && !u.CurrentMarketPrice.IsPositive() {
		return fail(span, pkgerrors.Business(pkgerrors.ErrInvalidInput, "market price must be positive"), "invalid update")
	}

	var box outbox
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		inv, err := repos.StorageInvestments().GetByIDForUpdate(ctx, u.InvestmentID)
		if err != nil {
			return err
		}
		if u.Type == models.UpdatePrice && u.CurrentMarketPrice != nil &&
			(inv.Status == models.StorageActive || inv.Status == models.StorageMatured) {
			inv.ProjectedReturns = u.CurrentMarketPrice.Mul(decimal.NewFromInt(int64(inv.QuantityBags)))
			if err := repos.StorageInvestments().Update(ctx, inv); err != nil {
				return err
			}
		}
		if err := repos.StorageInvestments().CreateUpdate(ctx, u); err != nil {
			return err
		}
		box.add(inv.UserID, models.NotificationStorage, fmt.Sprintf("%s: %s", inv.ProductName, u.Title))
		return nil
	})
	if err != nil {
		return fail(span, err, "storage update failed")
	}
	box.flush(ctx, s.notifier)
	slog.Info("storage update posted", "storage_id", u.InvestmentID, "type", u.Type)
	return nil
}

func (s *storageService) Updates(ctx context.Context, userID *int64, id int64) ([]models.StorageUpdate, error) {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return nil, err
	}
	return s.store.StorageInvestments().ListUpdates(ctx, id)
}

func (s *storageService) Dashboard(ctx context.Context, userID *int64) (*models.StorageDashboard, error) {
	invs, err := s.store.StorageInvestments().List(ctx, models.StorageFilter{UserID: userID})
	if err != nil {
		return nil, err
	}
	d := &models.StorageDashboard{TotalInvested: decimal.Zero, ProjectedReturns: decimal.Zero}
	for _, inv := range invs {
		switch inv.Status {
		case models.StoragePending:
			d.PendingInvestments++
			continue
		case models.StorageCancelled:
			continue
		case models.StorageActive:
			d.ActiveInvestments++
		case models.StorageMatured:
			d.MaturedInvestments++
		case models.StorageCompleted:
			d.CompletedInvestments++
		}
		d.TotalInvested = d.TotalInvested.Add(inv.TotalInvestmentAmount)
		d.ProjectedReturns = d.ProjectedReturns.Add(inv.ProjectedReturns)
		d.TotalBags += inv.QuantityBags
	}
	return d, nil
}

// CancelOverdue cancels purchases still unpaid on their due date.
func (s *storageService) CancelOverdue(ctx context.Context) (int, error) {
	now := s.now()
	due := dateOf(now).Add(24 * time.Hour)
	overdue, err := s.store.StorageInvestments().List(ctx, models.StorageFilter{Status: models.StoragePending, DueBefore: &due})
	if err != nil {
		return 0, err
	}

	cancelled := 0
	for _, candidate := range overdue {
		var box outbox
		err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
			inv, err := repos.StorageInvestments().GetByIDForUpdate(ctx, candidate.ID)
			if err != nil {
				return err
			}
			if inv.Status != models.StoragePending {
				return nil
			}
			if err := cancelStorage(ctx, repos, inv, string(models.PaymentAbandoned)); err != nil {
				return err
			}
			cancelled++
			box.add(inv.UserID, models.NotificationStorage, fmt.Sprintf("Your unpaid %s storage purchase was cancelled.", inv.ProductName))
			return nil
		})
		if err != nil {
			slog.Error("failed to cancel overdue storage purchase", "storage_id", candidate.ID, "error", err)
			continue
		}
		box.flush(ctx, s.notifier)
		observability.AutoCancelled.WithLabelValues("storage_overdue").Inc()
	}
	if cancelled > 0 {
		slog.Info("overdue storage purchases cancelled", "count", cancelled)
	}
	return cancelled, nil
}

type storageSettler struct{}

func (storageSettler) charge(ctx context.Context, repos repository.Repositories, userID, targetID int64) (*chargeInfo, error) {
	inv, err := repos.StorageInvestments().GetByIDForUpdate(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if inv.UserID != userID {
		return nil, pkgerrors.ErrStorageInvestmentNotFound
	}
	if inv.Status != models.StoragePending {
		return nil, pkgerrors.Business(pkgerrors.ErrInvalidTransition, "storage investment is %s and not awaiting payment", inv.Status)
	}
	email := inv.CustomerEmail
	if email == "" {
		user, err := repos.Users().GetByID(ctx, userID)
		if err != nil {
			return nil, err
		}
		email = user.Email
	}
	return &chargeInfo{
		Amount: inv.TotalInvestmentAmount,
		Email:  email,
		Label:  fmt.Sprintf("%d bags of %s", inv.QuantityBags, inv.ProductName),
	}, nil
}

func (storageSettler) attach(ctx context.Context, repos repository.Repositories, targetID int64, reference string) error {
	inv, err := repos.StorageInvestments().GetByIDForUpdate(ctx, targetID)
	if err != nil {
		return err
	}
	inv.PaymentReference = reference
	inv.PaymentStatus = string(models.PaymentPending)
	return repos.StorageInvestments().Update(ctx, inv)
}

func (storageSettler) succeed(ctx context.Context, repos repository.Repositories, p *models.Payment, now time.Time, box *outbox) (bool, error) {
	inv, err := repos.StorageInvestments().GetByIDForUpdate(ctx, p.TargetID)
	if err != nil {
		return false, err
	}
	if inv.Status != models.StoragePending {
		slog.Warn("payment arrived for a storage investment no longer pending", "storage_id", inv.ID, "status", inv.Status, "reference", p.Reference)
		return true, nil
	}
	inv.Status = models.StorageActive
	inv.PaymentStatus = string(models.PaymentSuccess)
	inv.PaymentReference = p.Reference
	inv.PaymentDate = p.PaidAt
	if err := repos.StorageInvestments().Update(ctx, inv); err != nil {
		return false, err
	}
	if _, err := repos.Transactions().Create(ctx, &models.Transaction{
		UserID:           inv.UserID,
		Type:             models.TypeInvestment,
		Amount:           inv.TotalInvestmentAmount,
		Status:           models.StatusCompleted,
		PaymentMethod:    p.PaymentMethod,
		PaymentReference: p.Reference,
		Description:      fmt.Sprintf("Storage purchase: %d bags of %s", inv.QuantityBags, inv.ProductName),
		CompletedAt:      &now,
	}); err != nil {
		return false, err
	}
	if err := repos.StorageInvestments().CreateUpdate(ctx, &models.StorageUpdate{
		InvestmentID: inv.ID,
		Type:         models.UpdateStorageStart,
		Title:        "Storage started",
		Message:      fmt.Sprintf("%d bags of %s are now in storage.", inv.QuantityBags, inv.ProductName),
	}); err != nil {
		return false, err
	}
	plan, err := repos.StoragePlans().GetByID(ctx, inv.PlanID)
	if err != nil {
		return false, err
	}
	if plan.AvailableQuantity == 0 {
		observability.CapacityExhausted.WithLabelValues(string(models.PaymentForStorage)).Inc()
	}
	box.add(inv.UserID, models.NotificationStorage, fmt.Sprintf("Payment received: %d bags of %s are now in storage.", inv.QuantityBags, inv.ProductName))
	return false, nil
}

func (storageSettler) reject(ctx context.Context, repos repository.Repositories, p *models.Payment, _ time.Time, box *outbox) error {
	inv, err := repos.StorageInvestments().GetByIDForUpdate(ctx, p.TargetID)
	if err != nil {
		return err
	}
	if inv.Status != models.StoragePending {
		return nil
	}
	if err := cancelStorage(ctx, repos, inv, string(p.Status)); err != nil {
		return err
	}
	box.add(inv.UserID, models.NotificationStorage, fmt.Sprintf("Payment for %d bags of %s did not go through; the purchase was cancelled.", inv.QuantityBags, inv.ProductName))
	return nil
}

func (storageSettler) refund(ctx context.Context, repos repository.Repositories, p *models.Payment, now time.Time, _ *outbox) error {
	inv, err := repos.StorageInvestments().GetByIDForUpdate(ctx, p.TargetID)
	if err != nil {
		return err
	}
	if err := cancelStorage(ctx, repos, inv, string(models.PaymentRefunded)); err != nil {
		return err
	}
	_, err = repos.Transactions().Create(ctx, refundEntry(p, p.Amount, "storage purchase refunded", now))
	return err
}
