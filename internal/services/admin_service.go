package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/honeynil/agri-invest-service/internal/models"
	"github.com/honeynil/agri-invest-service/internal/repository"
	pkgerrors "github.com/honeynil/agri-invest-service/pkg/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

type LedgerFilter struct {
	Kind   models.LedgerKind
	Status string
}

type AdminService interface {
	Dashboard(ctx context.Context) (*models.AdminDashboard, error)
	Ledger(ctx context.Context, filter LedgerFilter) ([]models.LedgerEntry, error)
	LedgerEntry(ctx context.Context, ref models.LedgerRef) (*models.LedgerEntry, error)
	PatchLedger(ctx context.Context, ref models.LedgerRef, patch models.LedgerPatch) (*models.LedgerEntry, error)
	Transactions(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, error)
	TransactionStats(ctx context.Context) (*models.TransactionStats, error)
}

type adminService struct {
	store repository.Store
	now   clock
}

func NewAdminService(store repository.Store) *adminService {
	return &adminService{store: store, now: systemClock}
}

// Dashboard gathers the counters concurrently; they are read outside a
// transaction so the figures may be a few writes apart.
func (s *adminService) Dashboard(ctx context.Context) (*models.AdminDashboard, error) {
	ctx, span := startSpan(ctx, "admin-service", "Dashboard")
	defer span.End()

	d := &models.AdminDashboard{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.store.Users().Count(gctx)
		d.TotalUsers = n
		return err
	})
	g.Go(func() error {
		sum, err := s.store.Investments().Summary(gctx, nil)
		if err != nil {
			return err
		}
		d.TotalInvested = sum.TotalInvested
		d.ActiveInvestments = sum.ActiveInvestments
		d.PendingInvestments = sum.PendingInvestments
		d.TotalInvestments = sum.ActiveInvestments + sum.PendingInvestments + sum.CompletedInvestments
		return nil
	})
	g.Go(func() error {
		stats, err := s.store.Packages().Stats(gctx)
		if err != nil {
			return err
		}
		d.ActivePackages = stats.ActivePackages
		return nil
	})
	g.Go(func() error {
		stats, err := s.store.Transactions().Stats(gctx)
		if err != nil {
			return err
		}
		d.CompletedTransactions = stats.CompletedTransactions
		d.TransactionVolume = stats.TotalAmount
		return nil
	})
	g.Go(func() error {
		stats, err := s.store.Withdrawals().Stats(gctx)
		if err != nil {
			return err
		}
		d.PendingWithdrawals = stats.PendingWithdrawals
		return nil
	})
	g.Go(func() error {
		rows, err := s.store.StorageInvestments().List(gctx, models.StorageFilter{})
		d.StorageInvestments = len(rows)
		return err
	})
	g.Go(func() error {
		rows, err := s.store.Orders().List(gctx, models.OrderFilter{})
		d.Orders = len(rows)
		return err
	})
	if err := g.Wait(); err != nil {
		slog.Error("failed to build admin dashboard", "error", err)
		return nil, fail(span, err, "dashboard failed")
	}
	return d, nil
}

func investmentEntry(inv models.Investment) models.LedgerEntry {
	return models.LedgerEntry{
		Ref:         models.LedgerRef{Kind: models.LedgerInvestment, ID: inv.ID},
		UserID:      inv.UserID,
		Type:        "investment",
		Amount:      inv.Amount,
		Status:      string(inv.Status),
		Description: inv.PackageName,
		CreatedAt:   inv.CreatedAt,
	}
}

func storageEntry(inv models.StorageInvestment) models.LedgerEntry {
	return models.LedgerEntry{
		Ref:         models.LedgerRef{Kind: models.LedgerStorage, ID: inv.ID},
		UserID:      inv.UserID,
		Type:        "storage",
		Amount:      inv.TotalInvestmentAmount,
		Status:      string(inv.Status),
		Description: fmt.Sprintf("%d bags of %s", inv.QuantityBags, inv.ProductName),
		CreatedAt:   inv.CreatedAt,
	}
}

func orderEntry(o models.Order) models.LedgerEntry {
	return models.LedgerEntry{
		Ref:         models.LedgerRef{Kind: models.LedgerOrder, ID: o.ID},
		UserID:      o.UserID,
		Type:        "order",
		Amount:      o.TotalAmount,
		Status:      string(o.Status),
		Description: "Order " + o.Reference,
		CreatedAt:   o.CreatedAt,
	}
}

// Ledger merges investments, storage purchases and orders into one list,
// newest first.
func (s *adminService) Ledger(ctx context.Context, filter LedgerFilter) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	want := func(kind models.LedgerKind) bool { return filter.Kind == "" || filter.Kind == kind }

	if want(models.LedgerInvestment) {
		invs, err := s.store.Investments().List(ctx, models.InvestmentFilter{IncludeDeleted: true})
		if err != nil {
			return nil, err
		}
		for _, inv := range invs {
			entries = append(entries, investmentEntry(inv))
		}
	}
	if want(models.LedgerStorage) {
		rows, err := s.store.StorageInvestments().List(ctx, models.StorageFilter{})
		if err != nil {
			return nil, err
		}
		for _, inv := range rows {
			entries = append(entries, storageEntry(inv))
		}
	}
	if want(models.LedgerOrder) {
		orders, err := s.store.Orders().List(ctx, models.OrderFilter{})
		if err != nil {
			return nil, err
		}
		for _, o := range orders {
			entries = append(entries, orderEntry(o))
		}
	}

	if filter.Status != "" {
		kept := entries[:0]
		for _, e := range entries {
			if e.Status == filter.Status {
				kept = append(kept, e)
			}
		}
		entries = kept
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].CreatedAt.After(entries[j].CreatedAt) })
	return entries, nil
}

func (s *adminService) LedgerEntry(ctx context.Context, ref models.LedgerRef) (*models.LedgerEntry, error) {
	var e models.LedgerEntry
	switch ref.Kind {
	case models.LedgerInvestment:
		inv, err := s.store.Investments().GetByID(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		e = investmentEntry(*inv)
	case models.LedgerStorage:
		inv, err := s.store.StorageInvestments().GetByID(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		e = storageEntry(*inv)
	case models.LedgerOrder:
		o, err := s.store.Orders().GetByID(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		e = orderEntry(*o)
	default:
		return nil, pkgerrors.ErrInvalidLedgerRef
	}
	return &e, nil
}

// PatchLedger applies an admin correction to the row behind ref. Amounts can
// only change while an investment is unpaid; statuses follow each kind's
// lifecycle and never mark anything paid.
func (s *adminService) PatchLedger(ctx context.Context, ref models.LedgerRef, patch models.LedgerPatch) (*models.LedgerEntry, error) {
	ctx, span := startSpan(ctx, "admin-service", "PatchLedger")
	defer span.End()

	if patch.Amount == nil && patch.Status == nil {
		return nil, fail(span, pkgerrors.Business(pkgerrors.ErrInvalidInput, "nothing to update"), "empty patch")
	}
	if patch.Amount != nil && !patch.Amount.IsPositive() {
		return nil, fail(span, pkgerrors.Business(pkgerrors.ErrInvalidInput, "amount must be positive"), "invalid amount")
	}

	now := s.now()
	var entry models.LedgerEntry
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		switch ref.Kind {
		case models.LedgerInvestment:
			inv, err := repos.Investments().GetByIDForUpdate(ctx, ref.ID)
			if err != nil {
				return err
			}
			if err := patchInvestment(ctx, repos, inv, patch, now); err != nil {
				return err
			}
			entry = investmentEntry(*inv)
		case models.LedgerStorage:
			inv, err := repos.StorageInvestments().GetByIDForUpdate(ctx, ref.ID)
			if err != nil {
				return err
			}
			if err := patchStorage(ctx, repos, inv, patch, now); err != nil {
				return err
			}
			entry = storageEntry(*inv)
		case models.LedgerOrder:
			o, err := repos.Orders().GetByIDForUpdate(ctx, ref.ID)
			if err != nil {
				return err
			}
			if err := patchOrder(ctx, repos, o, patch); err != nil {
				return err
			}
			entry = orderEntry(*o)
		default:
			return pkgerrors.ErrInvalidLedgerRef
		}
		return nil
	})
	if err != nil {
		return nil, fail(span, err, "ledger patch failed")
	}
	slog.Info("ledger entry patched", "ref", ref.String(), "status", entry.Status, "amount", entry.Amount)
	return &entry, nil
}

func patchInvestment(ctx context.Context, repos repository.Repositories, inv *models.Investment, patch models.LedgerPatch, now time.Time) error {
	if patch.Amount != nil {
		if inv.Status != models.InvestmentPending {
			return pkgerrors.Business(pkgerrors.ErrInvalidTransition, "amount can only change while the investment is pending")
		}
		pkg, err := repos.Packages().GetByID(ctx, inv.PackageID)
		if err != nil {
			return err
		}
		inv.Amount = *patch.Amount
		inv.ExpectedReturn = inv.Amount.Mul(pkg.InterestRate).Div(decimal.NewFromInt(100)).Round(2)
		if err := repos.Investments().Update(ctx, inv); err != nil {
			return err
		}
	}
	if patch.Status == nil || models.InvestmentStatus(*patch.Status) == inv.Status {
		return nil
	}
	next := models.InvestmentStatus(*patch.Status)
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
		return cancelInvestment(ctx, repos, inv, "cancelled by administrator", now)
	case models.InvestmentCompleted:
		return completeInvestment(ctx, repos, inv, nil, now)
	}
	inv.Status = next
	return repos.Investments().Update(ctx, inv)
}

var storageTransitions = map[models.StorageStatus][]models.StorageStatus{
	models.StoragePending: {models.StorageCancelled},
	models.StorageActive:  {models.StorageMatured, models.StorageCancelled},
	models.StorageMatured: {models.StorageCompleted},
}

func patchStorage(ctx context.Context, repos repository.Repositories, inv *models.StorageInvestment, patch models.LedgerPatch, now time.Time) error {
	if patch.Amount != nil {
		return pkgerrors.Business(pkgerrors.ErrInvalidInput, "storage amounts follow the plan price and cannot be edited")
	}
	next := models.StorageStatus(*patch.Status)
	if next == inv.Status {
		return nil
	}
	allowed := false
	for _, s := range storageTransitions[inv.Status] {
		allowed = allowed || s == next
	}
	if !allowed {
		return pkgerrors.Business(pkgerrors.ErrInvalidTransition, "cannot move storage investment from %s to %s", inv.Status, next)
	}
	switch next {
	case models.StorageCancelled:
		return cancelStorage(ctx, repos, inv, "")
	case models.StorageMatured:
		inv.MaturedAt = &now
	case models.StorageCompleted:
		inv.CompletedAt = &now
	}
	inv.Status = next
	return repos.StorageInvestments().Update(ctx, inv)
}

func patchOrder(ctx context.Context, repos repository.Repositories, o *models.Order, patch models.LedgerPatch) error {
	if patch.Amount != nil {
		return pkgerrors.Business(pkgerrors.ErrInvalidInput, "order totals follow their items and cannot be edited")
	}
	next := models.OrderStatus(*patch.Status)
	if next == o.Status {
		return nil
	}
	if !o.Status.CanTransition(next) || next == models.OrderPaid {
		return pkgerrors.Business(pkgerrors.ErrInvalidTransition, "cannot move order from %s to %s", o.Status, next)
	}
	if next == models.OrderCancelled && o.Status == models.OrderPaid {
		if err := releaseStock(ctx, repos, o.Items); err != nil {
			return err
		}
	}
	o.Status = next
	return repos.Orders().Update(ctx, o)
}

func (s *adminService) Transactions(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, error) {
	return s.store.Transactions().List(ctx, filter)
}

func (s *adminService) TransactionStats(ctx context.Context) (*models.TransactionStats, error) {
	return s.store.Transactions().Stats(ctx)
}
