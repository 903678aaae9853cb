package memory

import (
	"context"

	"github.com/honeynil/agri-invest-service/internal/models"
	pkgerrors "github.com/honeynil/agri-invest-service/pkg/errors"
)

type planRepo struct{ s *Store }

func (r planRepo) Reserve(_ context.Context, id int64, qty int) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.st.plans[id]
	if !ok {
		return 0, pkgerrors.ErrStoragePlanNotFound
	}
	left, err := reserve(&p.AvailableQuantity, qty)
	if err != nil {
		return 0, err
	}
	r.s.st.plans[id] = p
	return left, nil
}

func (r planRepo) Release(_ context.Context, id int64, qty int) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.st.plans[id]
	if !ok {
		return 0, pkgerrors.ErrStoragePlanNotFound
	}
	left, err := release(&p.AvailableQuantity, p.TotalQuantity, qty)
	if err != nil {
		return 0, err
	}
	r.s.st.plans[id] = p
	return left, nil
}

func (r planRepo) Create(_ context.Context, plan *models.StoragePlan) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	plan.ID = r.s.st.nextID()
	plan.CreatedAt = r.s.now()
	plan.UpdatedAt = plan.CreatedAt
	r.s.st.plans[plan.ID] = *plan
	return nil
}

func (r planRepo) Update(_ context.Context, plan *models.StoragePlan) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	old, ok := r.s.st.plans[plan.ID]
	if !ok {
		return pkgerrors.ErrStoragePlanNotFound
	}
	plan.CreatedAt = old.CreatedAt
	plan.UpdatedAt = r.s.now()
	r.s.st.plans[plan.ID] = *plan
	return nil
}

func (r planRepo) GetByID(_ context.Context, id int64) (*models.StoragePlan, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.st.plans[id]
	if !ok {
		return nil, pkgerrors.ErrStoragePlanNotFound
	}
	return &p, nil
}

func (r planRepo) List(_ context.Context, activeOnly bool) ([]models.StoragePlan, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.StoragePlan
	for _, p := range r.s.st.plans {
		if !activeOnly || p.IsAvailable() {
			out = append(out, p)
		}
	}
	return newestFirst(out, func(p models.StoragePlan) int64 { return p.ID }), nil
}

func (r planRepo) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.plans[id]; !ok {
		return pkgerrors.ErrStoragePlanNotFound
	}
	delete(r.s.st.plans, id)
	return nil
}

func (r planRepo) CountInvestments(_ context.Context, planID int64) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, inv := range r.s.st.storage {
		if inv.PlanID == planID {
			n++
		}
	}
	return n, nil
}

type storageRepo struct{ s *Store }

func (r storageRepo) view(inv models.StorageInvestment) models.StorageInvestment {
	inv.ProductName = r.s.st.plans[inv.PlanID].ProductName
	return inv
}

func (r storageRepo) Create(_ context.Context, inv *models.StorageInvestment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.plans[inv.PlanID]; !ok {
		return pkgerrors.ErrStoragePlanNotFound
	}
	inv.ID = r.s.st.nextID()
	inv.CreatedAt = r.s.now()
	inv.UpdatedAt = inv.CreatedAt
	r.s.st.storage[inv.ID] = *inv
	*inv = r.view(*inv)
	return nil
}

func (r storageRepo) GetByID(_ context.Context, id int64) (*models.StorageInvestment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	inv, ok := r.s.st.storage[id]
	if !ok {
		return nil, pkgerrors.ErrStorageInvestmentNotFound
	}
	inv = r.view(inv)
	return &inv, nil
}

func (r storageRepo) GetByIDForUpdate(ctx context.Context, id int64) (*models.StorageInvestment, error) {
	return r.GetByID(ctx, id)
}

func (r storageRepo) Update(_ context.Context, inv *models.StorageInvestment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	old, ok := r.s.st.storage[inv.ID]
	if !ok {
		return pkgerrors.ErrStorageInvestmentNotFound
	}
	old.Status = inv.Status
	old.MaturedAt = inv.MaturedAt
	old.CompletedAt = inv.CompletedAt
	old.PaymentReference = inv.PaymentReference
	old.PaymentStatus = inv.PaymentStatus
	old.PaymentDate = inv.PaymentDate
	old.ProjectedReturns = inv.ProjectedReturns
	old.UpdatedAt = r.s.now()
	r.s.st.storage[inv.ID] = old
	inv.UpdatedAt = old.UpdatedAt
	return nil
}

func (r storageRepo) List(_ context.Context, f models.StorageFilter) ([]models.StorageInvestment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.StorageInvestment
	for _, inv := range r.s.st.storage {
		if f.UserID != nil && inv.UserID != *f.UserID {
			continue
		}
		if f.PlanID != nil && inv.PlanID != *f.PlanID {
			continue
		}
		if f.Status != "" && inv.Status != f.Status {
			continue
		}
		if f.DueBefore != nil && !inv.DueDate.Before(*f.DueBefore) {
			continue
		}
		out = append(out, r.view(inv))
	}
	return newestFirst(out, func(s models.StorageInvestment) int64 { return s.ID }), nil
}

func (r storageRepo) CreateUpdate(_ context.Context, u *models.StorageUpdate) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.storage[u.InvestmentID]; !ok {
		return pkgerrors.ErrStorageInvestmentNotFound
	}
	u.ID = r.s.st.nextID()
	u.CreatedAt = r.s.now()
	r.s.st.updates[u.ID] = *u
	return nil
}

func (r storageRepo) ListUpdates(_ context.Context, investmentID int64) ([]models.StorageUpdate, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.StorageUpdate
	for _, u := range r.s.st.updates {
		if u.InvestmentID == investmentID {
			out = append(out, u)
		}
	}
	return newestFirst(out, func(u models.StorageUpdate) int64 { return u.ID }), nil
}
