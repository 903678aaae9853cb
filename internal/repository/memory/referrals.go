package memory

import (
	"context"

	"github.com/honeynil/agri-invest-service/internal/models"
	pkgerrors "github.com/honeynil/agri-invest-service/pkg/errors"
	"github.com/shopspring/decimal"
)

type referralRepo struct{ s *Store }

func (r referralRepo) CreateCode(_ context.Context, code *models.ReferralCode) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.st.codes {
		if c.UserID == code.UserID || c.Code == code.Code {
			return pkgerrors.Business(pkgerrors.ErrInvalidInput, "referral code already exists")
		}
	}
	code.ID = r.s.st.nextID()
	code.CreatedAt = r.s.now()
	r.s.st.codes[code.ID] = *code
	return nil
}

func (r referralRepo) findCode(match func(models.ReferralCode) bool) (*models.ReferralCode, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.st.codes {
		if match(c) {
			return &c, nil
		}
	}
	return nil, pkgerrors.ErrReferralCodeNotFound
}

func (r referralRepo) GetCodeByUser(_ context.Context, userID int64) (*models.ReferralCode, error) {
	return r.findCode(func(c models.ReferralCode) bool { return c.UserID == userID })
}

func (r referralRepo) GetCodeByValue(_ context.Context, code string) (*models.ReferralCode, error) {
	return r.findCode(func(c models.ReferralCode) bool { return c.Code == code })
}

func (r referralRepo) ListCodeStats(context.Context) ([]models.ReferralCodeStats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.ReferralCodeStats
	for _, c := range r.s.st.codes {
		st := models.ReferralCodeStats{ReferralCode: c, PaidEarnings: decimal.Zero}
		for _, ref := range r.s.st.referrals {
			if ref.ReferralCodeID != c.ID {
				continue
			}
			st.TotalReferrals++
			if ref.Status == models.ReferralActive {
				st.ActiveReferrals++
			}
			for _, e := range r.s.st.earnings {
				if e.ReferralID == ref.ID && e.Status == models.EarningPaid {
					st.PaidEarnings = st.PaidEarnings.Add(e.Amount)
				}
			}
		}
		out = append(out, st)
	}
	return newestFirst(out, func(s models.ReferralCodeStats) int64 { return s.ID }), nil
}

func (r referralRepo) Create(_ context.Context, ref *models.Referral) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.st.referrals {
		if existing.ReferredUserID == ref.ReferredUserID {
			return pkgerrors.Business(pkgerrors.ErrInvalidInput, "user already has a referrer")
		}
	}
	ref.ID = r.s.st.nextID()
	ref.CreatedAt = r.s.now()
	r.s.st.referrals[ref.ID] = *ref
	return nil
}

func (r referralRepo) GetByReferredUser(_ context.Context, userID int64) (*models.Referral, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, ref := range r.s.st.referrals {
		if ref.ReferredUserID == userID {
			return &ref, nil
		}
	}
	return nil, pkgerrors.ErrReferralNotFound
}

func (r referralRepo) GetPendingByReferredForUpdate(ctx context.Context, userID int64) (*models.Referral, error) {
	ref, err := r.GetByReferredUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if ref.Status != models.ReferralPending {
		return nil, pkgerrors.ErrReferralNotFound
	}
	return ref, nil
}

func (r referralRepo) Update(_ context.Context, ref *models.Referral) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	old, ok := r.s.st.referrals[ref.ID]
	if !ok {
		return pkgerrors.ErrReferralNotFound
	}
	old.Status = ref.Status
	old.CommissionRate = ref.CommissionRate
	old.ActivatedAt = ref.ActivatedAt
	old.CompletedAt = ref.CompletedAt
	r.s.st.referrals[ref.ID] = old
	return nil
}

func (r referralRepo) List(_ context.Context, f models.ReferralFilter) ([]models.Referral, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Referral
	for _, ref := range r.s.st.referrals {
		if f.ReferrerID != nil && ref.ReferrerID != *f.ReferrerID {
			continue
		}
		if f.ReferralCodeID != nil && ref.ReferralCodeID != *f.ReferralCodeID {
			continue
		}
		if f.Status != "" && ref.Status != f.Status {
			continue
		}
		out = append(out, ref)
	}
	return newestFirst(out, func(r models.Referral) int64 { return r.ID }), nil
}

func (r referralRepo) CreateEarning(_ context.Context, e *models.ReferralEarning) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e.ID = r.s.st.nextID()
	e.CreatedAt = r.s.now()
	r.s.st.earnings[e.ID] = *e
	return nil
}

func (r referralRepo) GetEarningForUpdate(_ context.Context, id int64) (*models.ReferralEarning, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.st.earnings[id]
	if !ok {
		return nil, pkgerrors.ErrEarningNotFound
	}
	return &e, nil
}

func (r referralRepo) UpdateEarning(_ context.Context, e *models.ReferralEarning) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	old, ok := r.s.st.earnings[e.ID]
	if !ok {
		return pkgerrors.ErrEarningNotFound
	}
	old.Status = e.Status
	old.PaidAt = e.PaidAt
	r.s.st.earnings[e.ID] = old
	return nil
}

func (r referralRepo) ListEarnings(_ context.Context, f models.EarningFilter) ([]models.ReferralEarning, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.ReferralEarning
	for _, e := range r.s.st.earnings {
		if f.ReferrerID != nil && e.ReferrerID != *f.ReferrerID {
			continue
		}
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		out = append(out, e)
	}
	return newestFirst(out, func(e models.ReferralEarning) int64 { return e.ID }), nil
}

func (r referralRepo) Stats(_ context.Context, referrerID *int64) (*models.ReferralStats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	s := models.ReferralStats{TotalEarnings: decimal.Zero, PendingEarnings: decimal.Zero, PaidEarnings: decimal.Zero}
	for _, ref := range r.s.st.referrals {
		if referrerID != nil && ref.ReferrerID != *referrerID {
			continue
		}
		s.TotalReferrals++
		switch ref.Status {
		case models.ReferralPending:
			s.PendingReferrals++
		case models.ReferralActive:
			s.ActiveReferrals++
		}
	}
	for _, e := range r.s.st.earnings {
		if referrerID != nil && e.ReferrerID != *referrerID {
			continue
		}
		switch e.Status {
		case models.EarningPending:
			s.PendingEarnings = s.PendingEarnings.Add(e.Amount)
		case models.EarningPaid:
			s.PaidEarnings = s.PaidEarnings.Add(e.Amount)
		default:
			continue
		}
		s.TotalEarnings = s.TotalEarnings.Add(e.Amount)
	}
	return &s, nil
}
