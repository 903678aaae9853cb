package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/honeynil/agri-invest-service/internal/models"
	pkgerrors "github.com/honeynil/agri-invest-service/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
)

type PostgresReferralRepository struct {
	db DBTX
}

func NewPostgresReferralRepository(db DBTX) *PostgresReferralRepository {
	return &PostgresReferralRepository{db: db}
}

const (
	referralColumns = `id, referrer_id, referred_user_id, referral_code_id, status, commission_rate, created_at, activated_at, completed_at`
	earningColumns  = `id, referral_id, referrer_id, investment_id, amount, commission_rate, status, created_at, paid_at`
)

func scanReferral(row interface{ Scan(...any) error }) (*models.Referral, error) {
	var (
		ref         models.Referral
		activatedAt sql.NullTime
		completedAt sql.NullTime
	)
	err := row.Scan(&ref.ID, &ref.ReferrerID, &ref.ReferredUserID, &ref.ReferralCodeID, &ref.Status, &ref.CommissionRate,
		&ref.CreatedAt, &activatedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	ref.ActivatedAt = timePtr(activatedAt)
	ref.CompletedAt = timePtr(completedAt)
	return &ref, nil
}

func scanEarning(row interface{ Scan(...any) error }) (*models.ReferralEarning, error) {
	var (
		e      models.ReferralEarning
		paidAt sql.NullTime
	)
	err := row.Scan(&e.ID, &e.ReferralID, &e.ReferrerID, &e.InvestmentID, &e.Amount, &e.CommissionRate, &e.Status, &e.CreatedAt, &paidAt)
	if err != nil {
		return nil, err
	}
	e.PaidAt = timePtr(paidAt)
	return &e, nil
}

func (r *PostgresReferralRepository) CreateCode(ctx context.Context, code *models.ReferralCode) (err error) {
	ctx, done := track(ctx, "referral-repository", "CreateReferralCode", attribute.Int64("user_id", code.UserID))
	defer done(&err)

	err = r.db.QueryRowContext(ctx,
		`INSERT INTO referral_codes (user_id, code, is_active) VALUES ($1, $2, $3) RETURNING id, created_at`,
		code.UserID, code.Code, code.IsActive,
	).Scan(&code.ID, &code.CreatedAt)
	if isUniqueViolation(err) {
		return pkgerrors.Business(pkgerrors.ErrInvalidInput, "referral code already exists")
	}
	if err != nil {
		slog.Error("failed to create referral code", "method", "CreateCode", "user_id", code.UserID, "error", err)
		return fmt.Errorf("failed to create referral code: %w", err)
	}
	return nil
}

func (r *PostgresReferralRepository) getCode(ctx context.Context, method, column string, value any) (code *models.ReferralCode, err error) {
	ctx, done := track(ctx, "referral-repository", method)
	defer done(&err)

	var c models.ReferralCode
	err = r.db.QueryRowContext(ctx, `SELECT id, user_id, code, is_active, created_at FROM referral_codes WHERE `+column+` = $1`, value).
		Scan(&c.ID, &c.UserID, &c.Code, &c.IsActive, &c.CreatedAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrReferralCodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get referral code: %w", err)
	}
	return &c, nil
}

func (r *PostgresReferralRepository) GetCodeByUser(ctx context.Context, userID int64) (*models.ReferralCode, error) {
	return r.getCode(ctx, "GetReferralCodeByUser", "user_id", userID)
}

func (r *PostgresReferralRepository) GetCodeByValue(ctx context.Context, code string) (*models.ReferralCode, error) {
	return r.getCode(ctx, "GetReferralCodeByValue", "code", code)
}

func (r *PostgresReferralRepository) ListCodeStats(ctx context.Context) (out []models.ReferralCodeStats, err error) {
	ctx, done := track(ctx, "referral-repository", "ListReferralCodeStats")
	defer done(&err)

	query := `
	SELECT c.id, c.user_id, c.code, c.is_active, c.created_at,
		(SELECT COUNT(*) FROM referrals r WHERE r.referral_code_id = c.id),
		(SELECT COUNT(*) FROM referrals r WHERE r.referral_code_id = c.id AND r.status = 'active'),
		(SELECT COALESCE(SUM(e.amount), 0) FROM referral_earnings e
			JOIN referrals r ON r.id = e.referral_id
			WHERE r.referral_code_id = c.id AND e.status = 'paid')
	FROM referral_codes c
	ORDER BY c.created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list referral code stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s models.ReferralCodeStats
		if err = rows.Scan(&s.ID, &s.UserID, &s.Code, &s.IsActive, &s.CreatedAt, &s.TotalReferrals, &s.ActiveReferrals, &s.PaidEarnings); err != nil {
			return nil, fmt.Errorf("failed to scan referral code stats: %w", err)
		}
		out = append(out, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate referral code stats: %w", err)
	}
	return out, nil
}

func (r *PostgresReferralRepository) Create(ctx context.Context, ref *models.Referral) (err error) {
	ctx, done := track(ctx, "referral-repository", "CreateReferral",
		attribute.Int64("referrer_id", ref.ReferrerID), attribute.Int64("referred_user_id", ref.ReferredUserID))
	defer done(&err)

	query := `INSERT INTO referrals (referrer_id, referred_user_id, referral_code_id, status, commission_rate)
	VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`
	err = r.db.QueryRowContext(ctx, query, ref.ReferrerID, ref.ReferredUserID, ref.ReferralCodeID, ref.Status, ref.CommissionRate).
		Scan(&ref.ID, &ref.CreatedAt)
	if isUniqueViolation(err) {
		return pkgerrors.Business(pkgerrors.ErrInvalidInput, "user already has a referrer")
	}
	if err != nil {
		slog.Error("failed to create referral", "method", "Create", "referrer_id", ref.ReferrerID, "error", err)
		return fmt.Errorf("failed to create referral: %w", err)
	}
	slog.Info("referral created", "method", "Create", "referral_id", ref.ID, "referrer_id", ref.ReferrerID, "referred_user_id", ref.ReferredUserID)
	return nil
}

func (r *PostgresReferralRepository) getByReferred(ctx context.Context, method string, userID int64, pendingForUpdate bool) (ref *models.Referral, err error) {
	ctx, done := track(ctx, "referral-repository", method, attribute.Int64("referred_user_id", userID))
	defer done(&err)

	query := `SELECT ` + referralColumns + ` FROM referrals WHERE referred_user_id = $1`
	if pendingForUpdate {
		query += ` AND status = 'pending' FOR UPDATE`
	}
	ref, err = scanReferral(r.db.QueryRowContext(ctx, query, userID))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrReferralNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get referral: %w", err)
	}
	return ref, nil
}

func (r *PostgresReferralRepository) GetByReferredUser(ctx context.Context, userID int64) (*models.Referral, error) {
	return r.getByReferred(ctx, "GetReferralByReferredUser", userID, false)
}

func (r *PostgresReferralRepository) GetPendingByReferredForUpdate(ctx context.Context, userID int64) (*models.Referral, error) {
	return r.getByReferred(ctx, "GetPendingReferralForUpdate", userID, true)
}

func (r *PostgresReferralRepository) Update(ctx context.Context, ref *models.Referral) (err error) {
	ctx, done := track(ctx, "referral-repository", "UpdateReferral", attribute.Int64("referral_id", ref.ID))
	defer done(&err)

	var activatedAt, completedAt sql.NullTime
	if ref.ActivatedAt != nil {
		activatedAt = sql.NullTime{Time: *ref.ActivatedAt, Valid: true}
	}
	if ref.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *ref.CompletedAt, Valid: true}
	}
	res, err := r.db.ExecContext(ctx, `UPDATE referrals SET status = $1, commission_rate = $2, activated_at = $3, completed_at = $4 WHERE id = $5`,
		ref.Status, ref.CommissionRate, activatedAt, completedAt, ref.ID)
	if err != nil {
		return fmt.Errorf("failed to update referral: %w", err)
	}
	return rowsAffected(res, pkgerrors.ErrReferralNotFound)
}

func (r *PostgresReferralRepository) List(ctx context.Context, filter models.ReferralFilter) (out []models.Referral, err error) {
	ctx, done := track(ctx, "referral-repository", "ListReferrals")
	defer done(&err)

	var referrerID, codeID sql.NullInt64
	if filter.ReferrerID != nil {
		referrerID = sql.NullInt64{Int64: *filter.ReferrerID, Valid: true}
	}
	if filter.ReferralCodeID != nil {
		codeID = sql.NullInt64{Int64: *filter.ReferralCodeID, Valid: true}
	}
	query := `SELECT ` + referralColumns + ` FROM referrals
	WHERE ($1::bigint IS NULL OR referrer_id = $1)
	AND ($2::bigint IS NULL OR referral_code_id = $2)
	AND ($3 = '' OR status = $3)
	ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, referrerID, codeID, string(filter.Status))
	if err != nil {
		return nil, fmt.Errorf("failed to list referrals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		ref, scanErr := scanReferral(rows)
		if scanErr != nil {
			err = fmt.Errorf("failed to scan referral: %w", scanErr)
			return nil, err
		}
		out = append(out, *ref)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate referrals: %w", err)
	}
	return out, nil
}

func (r *PostgresReferralRepository) CreateEarning(ctx context.Context, e *models.ReferralEarning) (err error) {
	ctx, done := track(ctx, "referral-repository", "CreateReferralEarning", attribute.Int64("referral_id", e.ReferralID))
	defer done(&err)

	query := `INSERT INTO referral_earnings (referral_id, referrer_id, investment_id, amount, commission_rate, status)
	VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at`
	err = r.db.QueryRowContext(ctx, query, e.ReferralID, e.ReferrerID, e.InvestmentID, e.Amount, e.CommissionRate, e.Status).
		Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		slog.Error("failed to create referral earning", "method", "CreateEarning", "referral_id", e.ReferralID, "error", err)
		return fmt.Errorf("failed to create referral earning: %w", err)
	}
	slog.Info("referral earning created", "method", "CreateEarning", "earning_id", e.ID, "referrer_id", e.ReferrerID, "amount", e.Amount)
	return nil
}

func (r *PostgresReferralRepository) GetEarningForUpdate(ctx context.Context, id int64) (e *models.ReferralEarning, err error) {
	ctx, done := track(ctx, "referral-repository", "GetReferralEarningForUpdate", attribute.Int64("earning_id", id))
	defer done(&err)

	e, err = scanEarning(r.db.QueryRowContext(ctx, `SELECT `+earningColumns+` FROM referral_earnings WHERE id = $1 FOR UPDATE`, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrEarningNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get referral earning: %w", err)
	}
	return e, nil
}

func (r *PostgresReferralRepository) UpdateEarning(ctx context.Context, e *models.ReferralEarning) (err error) {
	ctx, done := track(ctx, "referral-repository", "UpdateReferralEarning", attribute.Int64("earning_id", e.ID))
	defer done(&err)

	var paidAt sql.NullTime
	if e.PaidAt != nil {
		paidAt = sql.NullTime{Time: *e.PaidAt, Valid: true}
	}
	res, err := r.db.ExecContext(ctx, `UPDATE referral_earnings SET status = $1, paid_at = $2 WHERE id = $3`, e.Status, paidAt, e.ID)
	if err != nil {
		return fmt.Errorf("failed to update referral earning: %w", err)
	}
	return rowsAffected(res, pkgerrors.ErrEarningNotFound)
}

func (r *PostgresReferralRepository) ListEarnings(ctx context.Context, filter models.EarningFilter) (out []models.ReferralEarning, err error) {
	ctx, done := track(ctx, "referral-repository", "ListReferralEarnings")
	defer done(&err)

	var referrerID sql.NullInt64
	if filter.ReferrerID != nil {
		referrerID = sql.NullInt64{Int64: *filter.ReferrerID, Valid: true}
	}
	query := `SELECT ` + earningColumns + ` FROM referral_earnings
	WHERE ($1::bigint IS NULL OR referrer_id = $1) AND ($2 = '' OR status = $2)
	ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, referrerID, string(filter.Status))
	if err != nil {
		return nil, fmt.Errorf("failed to list referral earnings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		e, scanErr := scanEarning(rows)
		if scanErr != nil {
			err = fmt.Errorf("failed to scan referral earning: %w", scanErr)
			return nil, err
		}
		out = append(out, *e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate referral earnings: %w", err)
	}
	return out, nil
}

// Stats aggregates referral counts and earning sums; referrerID nil means
// platform-wide.
func (r *PostgresReferralRepository) Stats(ctx context.Context, referrerID *int64) (stats *models.ReferralStats, err error) {
	ctx, done := track(ctx, "referral-repository", "ReferralStats")
	defer done(&err)

	var rid sql.NullInt64
	if referrerID != nil {
		rid = sql.NullInt64{Int64: *referrerID, Valid: true}
	}

	var s models.ReferralStats
	query := `
	SELECT
		(SELECT COUNT(*) FROM referrals WHERE $1::bigint IS NULL OR referrer_id = $1),
		(SELECT COUNT(*) FROM referrals WHERE ($1::bigint IS NULL OR referrer_id = $1) AND status = 'pending'),
		(SELECT COUNT(*) FROM referrals WHERE ($1::bigint IS NULL OR referrer_id = $1) AND status = 'active'),
		(SELECT COALESCE(SUM(amount), 0) FROM referral_earnings WHERE ($1::bigint IS NULL OR referrer_id = $1) AND status <> 'cancelled'),
		(SELECT COALESCE(SUM(amount), 0) FROM referral_earnings WHERE ($1::bigint IS NULL OR referrer_id = $1) AND status = 'pending'),
		(SELECT COALESCE(SUM(amount), 0) FROM referral_earnings WHERE ($1::bigint IS NULL OR referrer_id = $1) AND status = 'paid')`
	err = r.db.QueryRowContext(ctx, query, rid).Scan(
		&s.TotalReferrals, &s.PendingReferrals, &s.ActiveReferrals, &s.TotalEarnings, &s.PendingEarnings, &s.PaidEarnings,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get referral stats: %w", err)
	}
	return &s, nil
}
