package memory

import (
	"context"
	"fmt"

	"github.com/honeynil/agri-invest-service/internal/models"
	pkgerrors "github.com/honeynil/agri-invest-service/pkg/errors"
	"github.com/shopspring/decimal"
)

type paymentRepo struct{ s *Store }

func (r paymentRepo) Create(_ context.Context, p *models.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.st.payments[p.Reference]; exists {
		return pkgerrors.ErrRequestAlreadyProcessed
	}
	p.ID = r.s.st.nextID()
	p.CreatedAt = r.s.now()
	p.UpdatedAt = p.CreatedAt
	r.s.st.payments[p.Reference] = *p
	return nil
}

func (r paymentRepo) GetByReference(_ context.Context, reference string) (*models.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.st.payments[reference]
	if !ok {
		return nil, pkgerrors.ErrPaymentNotFound
	}
	return &p, nil
}

func (r paymentRepo) GetByReferenceForUpdate(ctx context.Context, reference string) (*models.Payment, error) {
	return r.GetByReference(ctx, reference)
}

func (r paymentRepo) Update(_ context.Context, p *models.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	old, ok := r.s.st.payments[p.Reference]
	if !ok || old.ID != p.ID {
		return pkgerrors.ErrPaymentNotFound
	}
	next := old
	next.Status = p.Status
	next.AccessCode = p.AccessCode
	next.AuthorizationURL = p.AuthorizationURL
	next.GatewayID = p.GatewayID
	next.PaymentMethod = p.PaymentMethod
	next.Metadata = p.Metadata
	next.PaidAt = p.PaidAt
	next.UpdatedAt = r.s.now()
	r.s.st.payments[p.Reference] = next
	p.UpdatedAt = next.UpdatedAt
	return nil
}

func (r paymentRepo) List(_ context.Context, f models.PaymentFilter) ([]models.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Payment
	for _, p := range r.s.st.payments {
		if f.UserID != nil && p.UserID != *f.UserID {
			continue
		}
		if f.Kind != "" && p.Kind != f.Kind {
			continue
		}
		if f.TargetID != nil && p.TargetID != *f.TargetID {
			continue
		}
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		if f.CreatedBefore != nil && !p.CreatedAt.Before(*f.CreatedBefore) {
			continue
		}
		out = append(out, p)
	}
	return newestFirst(out, func(p models.Payment) int64 { return p.ID }), nil
}

type transactionRepo struct{ s *Store }

func (r transactionRepo) Create(_ context.Context, tx *models.Transaction) (int64, error) {
	if tx == nil {
		return 0, pkgerrors.ErrNilTransaction
	}
	if !tx.Type.Valid() {
		return 0, pkgerrors.ErrInvalidTransactionType
	}
	if !tx.Status.Valid() {
		return 0, pkgerrors.ErrInvalidTransactionStatus
	}
	if !tx.Amount.IsPositive() {
		return 0, fmt.Errorf("amount must be positive")
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	tx.ID = r.s.st.nextID()
	tx.CreatedAt = r.s.now()
	r.s.st.transactions[tx.ID] = *tx
	return tx.ID, nil
}

func (r transactionRepo) GetByID(_ context.Context, id int64) (*models.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	tx, ok := r.s.st.transactions[id]
	if !ok {
		return nil, pkgerrors.ErrTransactionNotFound
	}
	return &tx, nil
}

func (r transactionRepo) Update(_ context.Context, tx *models.Transaction) error {
	if !tx.Status.Valid() {
		return pkgerrors.ErrInvalidTransactionStatus
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	old, ok := r.s.st.transactions[tx.ID]
	if !ok {
		return pkgerrors.ErrTransactionNotFound
	}
	old.Amount = tx.Amount
	old.Status = tx.Status
	old.Description = tx.Description
	old.CompletedAt = tx.CompletedAt
	r.s.st.transactions[tx.ID] = old
	return nil
}

func (r transactionRepo) List(_ context.Context, f models.TransactionFilter) ([]models.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Transaction
	for _, tx := range r.s.st.transactions {
		if f.UserID != nil && tx.UserID != *f.UserID {
			continue
		}
		if f.InvestmentID != nil && (tx.InvestmentID == nil || *tx.InvestmentID != *f.InvestmentID) {
			continue
		}
		if f.Type != "" && tx.Type != f.Type {
			continue
		}
		if f.Status != "" && tx.Status != f.Status {
			continue
		}
		out = append(out, tx)
	}
	out = newestFirst(out, func(t models.Transaction) int64 { return t.ID })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r transactionRepo) Stats(context.Context) (*models.TransactionStats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	s := models.TransactionStats{TotalAmount: decimal.Zero}
	for _, tx := range r.s.st.transactions {
		s.TotalTransactions++
		switch tx.Status {
		case models.StatusCompleted:
			s.CompletedTransactions++
			s.TotalAmount = s.TotalAmount.Add(tx.Amount)
		case models.StatusPending:
			s.PendingTransactions++
		}
	}
	return &s, nil
}

type withdrawalRepo struct{ s *Store }

// view fills the linked investment ids. Callers hold the lock.
func (r withdrawalRepo) view(w models.WithdrawalRequest) models.WithdrawalRequest {
	w.InvestmentIDs = []int64{}
	for _, inv := range r.s.st.investments {
		if inv.WithdrawalRequestID != nil && *inv.WithdrawalRequestID == w.ID {
			w.InvestmentIDs = append(w.InvestmentIDs, inv.ID)
		}
	}
	sortIDs(w.InvestmentIDs)
	return w
}

func (r withdrawalRepo) Create(_ context.Context, w *models.WithdrawalRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w.ID = r.s.st.nextID()
	w.RequestedAt = r.s.now()
	stored := *w
	stored.InvestmentIDs = nil
	r.s.st.withdrawals[w.ID] = stored
	return nil
}

func (r withdrawalRepo) GetByID(_ context.Context, id int64) (*models.WithdrawalRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, ok := r.s.st.withdrawals[id]
	if !ok {
		return nil, pkgerrors.ErrWithdrawalNotFound
	}
	w = r.view(w)
	return &w, nil
}

func (r withdrawalRepo) GetByIDForUpdate(ctx context.Context, id int64) (*models.WithdrawalRequest, error) {
	return r.GetByID(ctx, id)
}

func (r withdrawalRepo) Update(_ context.Context, w *models.WithdrawalRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	old, ok := r.s.st.withdrawals[w.ID]
	if !ok {
		return pkgerrors.ErrWithdrawalNotFound
	}
	old.Status = w.Status
	old.PaymentReference = w.PaymentReference
	old.AdminNotes = w.AdminNotes
	old.ProcessedAt = w.ProcessedAt
	r.s.st.withdrawals[w.ID] = old
	return nil
}

func (r withdrawalRepo) List(_ context.Context, f models.WithdrawalFilter) ([]models.WithdrawalRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.WithdrawalRequest
	for _, w := range r.s.st.withdrawals {
		if f.UserID != nil && w.UserID != *f.UserID {
			continue
		}
		if f.Status != "" && w.Status != f.Status {
			continue
		}
		out = append(out, r.view(w))
	}
	return newestFirst(out, func(w models.WithdrawalRequest) int64 { return w.ID }), nil
}

func (r withdrawalRepo) Stats(context.Context) (*models.WithdrawalStats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	s := models.WithdrawalStats{TotalAmount: decimal.Zero}
	for _, w := range r.s.st.withdrawals {
		switch w.Status {
		case models.WithdrawalPending:
			s.PendingWithdrawals++
		case models.WithdrawalApproved:
			s.ApprovedWithdrawals++
		case models.WithdrawalCompleted:
			s.CompletedWithdrawals++
			s.TotalAmount = s.TotalAmount.Add(w.Amount)
		case models.WithdrawalRejected:
			s.RejectedWithdrawals++
		}
	}
	return &s, nil
}
