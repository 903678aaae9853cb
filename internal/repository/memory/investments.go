package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/honeynil/agri-invest-service/internal/models"
	pkgerrors "github.com/honeynil/agri-invest-service/pkg/errors"
	"github.com/shopspring/decimal"
)

type packageRepo struct{ s *Store }

func (r packageRepo) Reserve(_ context.Context, id int64, qty int) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.st.packages[id]
	if !ok {
		return 0, pkgerrors.ErrPackageNotFound
	}
	left, err := reserve(&p.AvailableSlots, qty)
	if err != nil {
		return 0, err
	}
	r.s.st.packages[id] = p
	return left, nil
}

func (r packageRepo) Release(_ context.Context, id int64, qty int) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.st.packages[id]
	if !ok {
		return 0, pkgerrors.ErrPackageNotFound
	}
	left, err := release(&p.AvailableSlots, p.TotalSlots, qty)
	if err != nil {
		return 0, err
	}
	r.s.st.packages[id] = p
	return left, nil
}

func (r packageRepo) Create(_ context.Context, pkg *models.InvestmentPackage) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	pkg.ID = r.s.st.nextID()
	pkg.CreatedAt = r.s.now()
	pkg.UpdatedAt = pkg.CreatedAt
	r.s.st.packages[pkg.ID] = *pkg
	return nil
}

func (r packageRepo) Update(_ context.Context, pkg *models.InvestmentPackage) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	old, ok := r.s.st.packages[pkg.ID]
	if !ok {
		return pkgerrors.ErrPackageNotFound
	}
	pkg.CreatedAt = old.CreatedAt
	pkg.UpdatedAt = r.s.now()
	r.s.st.packages[pkg.ID] = *pkg
	return nil
}

func (r packageRepo) GetByID(_ context.Context, id int64) (*models.InvestmentPackage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.st.packages[id]
	if !ok {
		return nil, pkgerrors.ErrPackageNotFound
	}
	return &p, nil
}

func (r packageRepo) List(_ context.Context, f models.PackageFilter) ([]models.InvestmentPackage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.InvestmentPackage
	for _, p := range r.s.st.packages {
		if (f.Status == "" || p.Status == f.Status) &&
			(f.Category == "" || p.Category == f.Category) &&
			(f.RiskLevel == "" || p.RiskLevel == f.RiskLevel) {
			out = append(out, p)
		}
	}
	return newestFirst(out, func(p models.InvestmentPackage) int64 { return p.ID }), nil
}

func (r packageRepo) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.packages[id]; !ok {
		return pkgerrors.ErrPackageNotFound
	}
	for _, inv := range r.s.st.investments {
		if inv.PackageID == id {
			return pkgerrors.Business(pkgerrors.ErrInvalidInput, "package has investments")
		}
	}
	delete(r.s.st.packages, id)
	return nil
}

func (r packageRepo) Stats(context.Context) (*models.PackageStats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var s models.PackageStats
	for _, p := range r.s.st.packages {
		s.TotalPackages++
		if p.Status == models.PackageActive {
			s.ActivePackages++
		}
		s.TotalSlots += p.TotalSlots
		s.AvailableSlots += p.AvailableSlots
	}
	s.FilledSlots = s.TotalSlots - s.AvailableSlots
	return &s, nil
}

type investmentRepo struct{ s *Store }

// view fills the joined columns. Callers hold the lock.
func (r investmentRepo) view(inv models.Investment) models.Investment {
	inv.PackageName = r.s.st.packages[inv.PackageID].Name
	return inv
}

func (r investmentRepo) Create(_ context.Context, inv *models.Investment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.packages[inv.PackageID]; !ok {
		return fmt.Errorf("failed to create investment: %w", pkgerrors.ErrPackageNotFound)
	}
	inv.ID = r.s.st.nextID()
	inv.CreatedAt = r.s.now()
	inv.UpdatedAt = inv.CreatedAt
	r.s.st.investments[inv.ID] = *inv
	*inv = r.view(*inv)
	return nil
}

func (r investmentRepo) GetByID(_ context.Context, id int64) (*models.Investment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	inv, ok := r.s.st.investments[id]
	if !ok {
		return nil, pkgerrors.ErrInvestmentNotFound
	}
	inv = r.view(inv)
	return &inv, nil
}

func (r investmentRepo) GetByIDForUpdate(ctx context.Context, id int64) (*models.Investment, error) {
	return r.GetByID(ctx, id)
}

func (r investmentRepo) Update(_ context.Context, inv *models.Investment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	old, ok := r.s.st.investments[inv.ID]
	if !ok {
		return pkgerrors.ErrInvestmentNotFound
	}
	next := old
	next.Amount = inv.Amount
	next.Status = inv.Status
	next.ExpectedReturn = inv.ExpectedReturn
	next.ActualReturn = inv.ActualReturn
	next.StartDate = inv.StartDate
	next.EndDate = inv.EndDate
	next.CompletedAt = inv.CompletedAt
	next.WithdrawalRequestID = inv.WithdrawalRequestID
	next.UpdatedAt = r.s.now()
	r.s.st.investments[inv.ID] = next
	inv.UpdatedAt = next.UpdatedAt
	return nil
}

func withdrawable(inv models.Investment) bool {
	return inv.DeletedAt == nil && inv.CanWithdraw()
}

func (r investmentRepo) List(_ context.Context, f models.InvestmentFilter) ([]models.Investment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Investment
	for _, inv := range r.s.st.investments {
		if f.UserID != nil && inv.UserID != *f.UserID {
			continue
		}
		if f.PackageID != nil && inv.PackageID != *f.PackageID {
			continue
		}
		if f.Status != "" && inv.Status != f.Status {
			continue
		}
		if f.Withdrawable && !inv.CanWithdraw() {
			continue
		}
		if !f.IncludeDeleted && inv.DeletedAt != nil {
			continue
		}
		out = append(out, r.view(inv))
	}
	return newestFirst(out, func(i models.Investment) int64 { return i.ID }), nil
}

func (r investmentRepo) SoftDelete(_ context.Context, id int64, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	inv, ok := r.s.st.investments[id]
	if !ok || inv.DeletedAt != nil {
		return pkgerrors.ErrInvestmentNotFound
	}
	inv.DeletedAt = &at
	inv.UpdatedAt = r.s.now()
	r.s.st.investments[id] = inv
	return nil
}

func (r investmentRepo) HardDelete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.investments[id]; !ok {
		return pkgerrors.ErrInvestmentNotFound
	}
	for _, e := range r.s.st.earnings {
		if e.InvestmentID == id {
			return pkgerrors.Business(pkgerrors.ErrInvalidInput, "investment has referral earnings")
		}
	}
	for txID, tx := range r.s.st.transactions {
		if tx.InvestmentID != nil && *tx.InvestmentID == id {
			tx.InvestmentID = nil
			r.s.st.transactions[txID] = tx
		}
	}
	delete(r.s.st.investments, id)
	return nil
}

func (r investmentRepo) CountByUser(_ context.Context, userID int64) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, inv := range r.s.st.investments {
		if inv.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (r investmentRepo) LockWithdrawable(_ context.Context, userID int64, ids []int64) ([]models.Investment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Investment
	for _, inv := range r.s.st.investments {
		if inv.UserID != userID || !withdrawable(inv) {
			continue
		}
		if len(ids) > 0 && !slices.Contains(ids, inv.ID) {
			continue
		}
		out = append(out, r.view(inv))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r investmentRepo) LinkWithdrawal(_ context.Context, withdrawalID int64, ids []int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, id := range ids {
		inv, ok := r.s.st.investments[id]
		if !ok || inv.WithdrawalRequestID != nil {
			return pkgerrors.Business(pkgerrors.ErrNothingToWithdraw, "some investments are already linked to a withdrawal")
		}
	}
	for _, id := range ids {
		inv := r.s.st.investments[id]
		wid := withdrawalID
		inv.WithdrawalRequestID = &wid
		inv.UpdatedAt = r.s.now()
		r.s.st.investments[id] = inv
	}
	return nil
}

func (r investmentRepo) Summary(_ context.Context, userID *int64) (*models.InvestmentSummary, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	s := models.InvestmentSummary{TotalInvested: decimal.Zero, TotalReturns: decimal.Zero}
	for _, inv := range r.s.st.investments {
		if userID != nil && inv.UserID != *userID {
			continue
		}
		if inv.DeletedAt != nil || inv.Status == models.InvestmentCancelled || inv.Status == models.InvestmentFailed {
			continue
		}
		s.TotalInvested = s.TotalInvested.Add(inv.Amount)
		switch inv.Status {
		case models.InvestmentActive:
			s.ActiveInvestments++
		case models.InvestmentPending:
			s.PendingInvestments++
		case models.InvestmentCompleted:
			s.CompletedInvestments++
			if inv.ActualReturn != nil {
				s.TotalReturns = s.TotalReturns.Add(*inv.ActualReturn)
			}
		}
	}
	s.TotalPortfolioValue = s.TotalInvested.Add(s.TotalReturns)
	return &s, nil
}
