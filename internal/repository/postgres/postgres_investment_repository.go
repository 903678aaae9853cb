package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/honeynil/agri-invest-service/internal/models"
	pkgerrors "github.com/honeynil/agri-invest-service/pkg/errors"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

type PostgresInvestmentRepository struct {
	db DBTX
}

func NewPostgresInvestmentRepository(db DBTX) *PostgresInvestmentRepository {
	return &PostgresInvestmentRepository{db: db}
}

const investmentSelect = `SELECT i.id, i.user_id, i.package_id, p.name, i.amount, i.status, i.expected_return,
	i.actual_return, i.start_date, i.end_date, i.completed_at, i.withdrawal_request_id, i.referred_by,
	i.created_at, i.updated_at, i.deleted_at
	FROM investments i JOIN investment_packages p ON p.id = i.package_id`

func scanInvestment(row interface{ Scan(...any) error }) (*models.Investment, error) {
	var (
		inv          models.Investment
		actualReturn decimal.NullDecimal
		completedAt  sql.NullTime
		withdrawalID sql.NullInt64
		referredBy   sql.NullInt64
		deletedAt    sql.NullTime
	)
	err := row.Scan(&inv.ID, &inv.UserID, &inv.PackageID, &inv.PackageName, &inv.Amount, &inv.Status,
		&inv.ExpectedReturn, &actualReturn, &inv.StartDate, &inv.EndDate, &completedAt, &withdrawalID,
		&referredBy, &inv.CreatedAt, &inv.UpdatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}
	inv.ActualReturn = decimalPtr(actualReturn)
	inv.CompletedAt = timePtr(completedAt)
	inv.WithdrawalRequestID = int64Ptr(withdrawalID)
	inv.ReferredBy = int64Ptr(referredBy)
	inv.DeletedAt = timePtr(deletedAt)
	return &inv, nil
}

func scanInvestments(rows *sql.Rows) ([]models.Investment, error) {
	defer rows.Close()
	var out []models.Investment
	for rows.Next() {
		inv, err := scanInvestment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan investment: %w", err)
		}
		out = append(out, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate investments: %w", err)
	}
	return out, nil
}

func (r *PostgresInvestmentRepository) Create(ctx context.Context, inv *models.Investment) (err error) {
	ctx, done := track(ctx, "investment-repository", "CreateInvestment",
		attribute.Int64("user_id", inv.UserID), attribute.Int64("package_id", inv.PackageID))
	defer done(&err)

	query := `
	INSERT INTO investments (user_id, package_id, amount, status, expected_return, start_date, end_date, referred_by)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	RETURNING id, created_at, updated_at
	`
	var referredBy sql.NullInt64
	if inv.ReferredBy != nil {
		referredBy = sql.NullInt64{Int64: *inv.ReferredBy, Valid: true}
	}
	err = r.db.QueryRowContext(ctx, query,
		inv.UserID, inv.PackageID, inv.Amount, inv.Status, inv.ExpectedReturn, inv.StartDate, inv.EndDate, referredBy,
	).Scan(&inv.ID, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		slog.Error("failed to create investment", "method", "Create", "user_id", inv.UserID, "package_id", inv.PackageID, "error", err)
		return fmt.Errorf("failed to create investment: %w", err)
	}
	slog.Info("investment created", "method", "Create", "investment_id", inv.ID, "user_id", inv.UserID, "amount", inv.Amount)
	return nil
}

func (r *PostgresInvestmentRepository) get(ctx context.Context, method string, id int64, lock bool) (inv *models.Investment, err error) {
	ctx, done := track(ctx, "investment-repository", method, attribute.Int64("investment_id", id))
	defer done(&err)

	query := investmentSelect + ` WHERE i.id = $1`
	if lock {
		query += ` FOR UPDATE OF i`
	}
	inv, err = scanInvestment(r.db.QueryRowContext(ctx, query, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrInvestmentNotFound
	}
	if err != nil {
		slog.Error("failed to get investment", "method", method, "investment_id", id, "error", err)
		return nil, fmt.Errorf("failed to get investment: %w", err)
	}
	return inv, nil
}

func (r *PostgresInvestmentRepository) GetByID(ctx context.Context, id int64) (*models.Investment, error) {
	return r.get(ctx, "GetInvestmentByID", id, false)
}

func (r *PostgresInvestmentRepository) GetByIDForUpdate(ctx context.Context, id int64) (*models.Investment, error) {
	return r.get(ctx, "GetInvestmentByIDForUpdate", id, true)
}

func (r *PostgresInvestmentRepository) Update(ctx context.Context, inv *models.Investment) (err error) {
	ctx, done := track(ctx, "investment-repository", "UpdateInvestment", attribute.Int64("investment_id", inv.ID))
	defer done(&err)

	var withdrawalID sql.NullInt64
	if inv.WithdrawalRequestID != nil {
		withdrawalID = sql.NullInt64{Int64: *inv.WithdrawalRequestID, Valid: true}
	}
	var completedAt sql.NullTime
	if inv.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *inv.CompletedAt, Valid: true}
	}

	query := `
	UPDATE investments SET amount = $1, status = $2, expected_return = $3, actual_return = $4,
		start_date = $5, end_date = $6, completed_at = $7, withdrawal_request_id = $8, updated_at = NOW()
	WHERE id = $9
	RETURNING updated_at
	`
	err = r.db.QueryRowContext(ctx, query,
		inv.Amount, inv.Status, inv.ExpectedReturn, nullDecimal(inv.ActualReturn),
		inv.StartDate, inv.EndDate, completedAt, withdrawalID, inv.ID,
	).Scan(&inv.UpdatedAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		return pkgerrors.ErrInvestmentNotFound
	}
	if err != nil {
		slog.Error("failed to update investment", "method", "Update", "investment_id", inv.ID, "error", err)
		return fmt.Errorf("failed to update investment: %w", err)
	}
	slog.Info("investment updated", "method", "Update", "investment_id", inv.ID, "status", inv.Status)
	return nil
}

func (r *PostgresInvestmentRepository) List(ctx context.Context, filter models.InvestmentFilter) (out []models.Investment, err error) {
	ctx, done := track(ctx, "investment-repository", "ListInvestments")
	defer done(&err)

	var userID, packageID sql.NullInt64
	if filter.UserID != nil {
		userID = sql.NullInt64{Int64: *filter.UserID, Valid: true}
	}
	if filter.PackageID != nil {
		packageID = sql.NullInt64{Int64: *filter.PackageID, Valid: true}
	}

	query := investmentSelect + `
	WHERE ($1::bigint IS NULL OR i.user_id = $1)
	AND ($2::bigint IS NULL OR i.package_id = $2)
	AND ($3 = '' OR i.status = $3)
	AND ($4 = FALSE OR (i.status = 'completed' AND i.withdrawal_request_id IS NULL AND i.actual_return IS NOT NULL))
	AND ($5 = TRUE OR i.deleted_at IS NULL)
	ORDER BY i.created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID, packageID, string(filter.Status), filter.Withdrawable, filter.IncludeDeleted)
	if err != nil {
		slog.Error("failed to list investments", "method", "List", "error", err)
		return nil, fmt.Errorf("failed to list investments: %w", err)
	}
	return scanInvestments(rows)
}

func (r *PostgresInvestmentRepository) SoftDelete(ctx context.Context, id int64, at time.Time) (err error) {
	ctx, done := track(ctx, "investment-repository", "SoftDeleteInvestment", attribute.Int64("investment_id", id))
	defer done(&err)

	res, err := r.db.ExecContext(ctx, `UPDATE investments SET deleted_at = $1, updated_at = NOW() WHERE id = $2 AND deleted_at IS NULL`, at, id)
	if err != nil {
		return fmt.Errorf("failed to soft delete investment: %w", err)
	}
	return rowsAffected(res, pkgerrors.ErrInvestmentNotFound)
}

func (r *PostgresInvestmentRepository) HardDelete(ctx context.Context, id int64) (err error) {
	ctx, done := track(ctx, "investment-repository", "HardDeleteInvestment", attribute.Int64("investment_id", id))
	defer done(&err)

	res, err := r.db.ExecContext(ctx, `DELETE FROM investments WHERE id = $1`, id)
	if isForeignKeyViolation(err) {
		return pkgerrors.Business(pkgerrors.ErrInvalidInput, "investment has referral earnings")
	}
	if err != nil {
		slog.Error("failed to delete investment", "method", "HardDelete", "investment_id", id, "error", err)
		return fmt.Errorf("failed to delete investment: %w", err)
	}
	return rowsAffected(res, pkgerrors.ErrInvestmentNotFound)
}

// CountByUser counts every investment ever created by the user, including
// soft-deleted ones.
func (r *PostgresInvestmentRepository) CountByUser(ctx context.Context, userID int64) (n int, err error) {
	ctx, done := track(ctx, "investment-repository", "CountInvestmentsByUser", attribute.Int64("user_id", userID))
	defer done(&err)

	if err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM investments WHERE user_id = $1`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count investments: %w", err)
	}
	return n, nil
}

func (r *PostgresInvestmentRepository) LockWithdrawable(ctx context.Context, userID int64, ids []int64) (out []models.Investment, err error) {
	ctx, done := track(ctx, "investment-repository", "LockWithdrawable", attribute.Int64("user_id", userID))
	defer done(&err)

	query := investmentSelect + `
	WHERE i.user_id = $1
	AND i.status = 'completed'
	AND i.withdrawal_request_id IS NULL
	AND i.actual_return IS NOT NULL
	AND i.deleted_at IS NULL
	AND (cardinality($2::bigint[]) = 0 OR i.id = ANY($2::bigint[]))
	ORDER BY i.id
	FOR UPDATE OF i`
	rows, err := r.db.QueryContext(ctx, query, userID, pq.Array(ids))
	if err != nil {
		slog.Error("failed to lock withdrawable investments", "method", "LockWithdrawable", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to lock withdrawable investments: %w", err)
	}
	return scanInvestments(rows)
}

func (r *PostgresInvestmentRepository) LinkWithdrawal(ctx context.Context, withdrawalID int64, ids []int64) (err error) {
	ctx, done := track(ctx, "investment-repository", "LinkWithdrawal", attribute.Int64("withdrawal_id", withdrawalID))
	defer done(&err)

	res, err := r.db.ExecContext(ctx, `
	UPDATE investments SET withdrawal_request_id = $1, updated_at = NOW()
	WHERE id = ANY($2::bigint[]) AND withdrawal_request_id IS NULL`, withdrawalID, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to link withdrawal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if int(n) != len(ids) {
		err = pkgerrors.Business(pkgerrors.ErrNothingToWithdraw, "some investments are already linked to a withdrawal")
		return err
	}
	return nil
}

func (r *PostgresInvestmentRepository) Summary(ctx context.Context, userID *int64) (summary *models.InvestmentSummary, err error) {
	ctx, done := track(ctx, "investment-repository", "InvestmentSummary")
	defer done(&err)

	var uid sql.NullInt64
	if userID != nil {
		uid = sql.NullInt64{Int64: *userID, Valid: true}
	}

	var s models.InvestmentSummary
	query := `
		SELECT COALESCE(SUM(amount), 0),
			COALESCE(SUM(actual_return) FILTER (WHERE status = 'completed'), 0),
			COUNT(*) FILTER (WHERE status = 'active'),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'pending')
		FROM investments
		WHERE deleted_at IS NULL AND status NOT IN ('cancelled', 'failed')
		AND ($1::bigint IS NULL OR user_id = $1)`
	err = r.db.QueryRowContext(ctx, query, uid).Scan(
		&s.TotalInvested, &s.TotalReturns, &s.ActiveInvestments, &s.CompletedInvestments, &s.PendingInvestments,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get investment summary: %w", err)
	}
	s.TotalPortfolioValue = s.TotalInvested.Add(s.TotalReturns)
	return &s, nil
}
