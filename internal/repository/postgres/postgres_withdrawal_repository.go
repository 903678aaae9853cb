package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/honeynil/agri-invest-service/internal/models"
	pkgerrors "github.com/honeynil/agri-invest-service/pkg/errors"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
)

type PostgresWithdrawalRepository struct {
	db DBTX
}

func NewPostgresWithdrawalRepository(db DBTX) *PostgresWithdrawalRepository {
	return &PostgresWithdrawalRepository{db: db}
}

const withdrawalSelect = `SELECT w.id, w.user_id, w.amount, w.requested_amount, w.withdrawal_type, w.status,
	w.payment_reference, w.admin_notes, w.requested_at, w.processed_at,
	ARRAY(SELECT i.id FROM investments i WHERE i.withdrawal_request_id = w.id ORDER BY i.id)
	FROM withdrawal_requests w`

func scanWithdrawal(row interface{ Scan(...any) error }) (*models.WithdrawalRequest, error) {
	var (
		w           models.WithdrawalRequest
		processedAt sql.NullTime
		ids         pq.Int64Array
	)
	err := row.Scan(&w.ID, &w.UserID, &w.Amount, &w.RequestedAmount, &w.Type, &w.Status,
		&w.PaymentReference, &w.AdminNotes, &w.RequestedAt, &processedAt, &ids)
	if err != nil {
		return nil, err
	}
	w.ProcessedAt = timePtr(processedAt)
	w.InvestmentIDs = []int64(ids)
	return &w, nil
}

func (r *PostgresWithdrawalRepository) Create(ctx context.Context, w *models.WithdrawalRequest) (err error) {
	ctx, done := track(ctx, "withdrawal-repository", "CreateWithdrawal", attribute.Int64("user_id", w.UserID))
	defer done(&err)

	query := `
	INSERT INTO withdrawal_requests (user_id, amount, requested_amount, withdrawal_type, status)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING id, requested_at
	`
	err = r.db.QueryRowContext(ctx, query, w.UserID, w.Amount, w.RequestedAmount, w.Type, w.Status).Scan(&w.ID, &w.RequestedAt)
	if err != nil {
		slog.Error("failed to create withdrawal", "method", "Create", "user_id", w.UserID, "error", err)
		return fmt.Errorf("failed to create withdrawal: %w", err)
	}
	slog.Info("withdrawal created", "method", "Create", "withdrawal_id", w.ID, "user_id", w.UserID, "amount", w.Amount)
	return nil
}

func (r *PostgresWithdrawalRepository) get(ctx context.Context, method string, id int64, lock bool) (w *models.WithdrawalRequest, err error) {
	ctx, done := track(ctx, "withdrawal-repository", method, attribute.Int64("withdrawal_id", id))
	defer done(&err)

	query := withdrawalSelect + ` WHERE w.id = $1`
	if lock {
		query += ` FOR UPDATE OF w`
	}
	w, err = scanWithdrawal(r.db.QueryRowContext(ctx, query, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrWithdrawalNotFound
	}
	if err != nil {
		slog.Error("failed to get withdrawal", "method", method, "withdrawal_id", id, "error", err)
		return nil, fmt.Errorf("failed to get withdrawal: %w", err)
	}
	return w, nil
}

func (r *PostgresWithdrawalRepository) GetByID(ctx context.Context, id int64) (*models.WithdrawalRequest, error) {
	return r.get(ctx, "GetWithdrawalByID", id, false)
}

func (r *PostgresWithdrawalRepository) GetByIDForUpdate(ctx context.Context, id int64) (*models.WithdrawalRequest, error) {
	return r.get(ctx, "GetWithdrawalByIDForUpdate", id, true)
}

func (r *PostgresWithdrawalRepository) Update(ctx context.Context, w *models.WithdrawalRequest) (err error) {
	ctx, done := track(ctx, "withdrawal-repository", "UpdateWithdrawal", attribute.Int64("withdrawal_id", w.ID))
	defer done(&err)

	var processedAt sql.NullTime
	if w.ProcessedAt != nil {
		processedAt = sql.NullTime{Time: *w.ProcessedAt, Valid: true}
	}
	res, err := r.db.ExecContext(ctx, `
	UPDATE withdrawal_requests SET status = $1, payment_reference = $2, admin_notes = $3, processed_at = $4
	WHERE id = $5`, w.Status, w.PaymentReference, w.AdminNotes, processedAt, w.ID)
	if err != nil {
		slog.Error("failed to update withdrawal", "method", "Update", "withdrawal_id", w.ID, "error", err)
		return fmt.Errorf("failed to update withdrawal: %w", err)
	}
	if err = rowsAffected(res, pkgerrors.ErrWithdrawalNotFound); err != nil {
		return err
	}
	slog.Info("withdrawal updated", "method", "Update", "withdrawal_id", w.ID, "status", w.Status)
	return nil
}

func (r *PostgresWithdrawalRepository) List(ctx context.Context, filter models.WithdrawalFilter) (out []models.WithdrawalRequest, err error) {
	ctx, done := track(ctx, "withdrawal-repository", "ListWithdrawals")
	defer done(&err)

	var userID sql.NullInt64
	if filter.UserID != nil {
		userID = sql.NullInt64{Int64: *filter.UserID, Valid: true}
	}
	query := withdrawalSelect + `
	WHERE ($1::bigint IS NULL OR w.user_id = $1) AND ($2 = '' OR w.status = $2)
	ORDER BY w.requested_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID, string(filter.Status))
	if err != nil {
		return nil, fmt.Errorf("failed to list withdrawals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		w, scanErr := scanWithdrawal(rows)
		if scanErr != nil {
			err = fmt.Errorf("failed to scan withdrawal: %w", scanErr)
			return nil, err
		}
		out = append(out, *w)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate withdrawals: %w", err)
	}
	return out, nil
}

func (r *PostgresWithdrawalRepository) Stats(ctx context.Context) (stats *models.WithdrawalStats, err error) {
	ctx, done := track(ctx, "withdrawal-repository", "WithdrawalStats")
	defer done(&err)

	var s models.WithdrawalStats
	query := `
		SELECT COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'approved'),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'rejected'),
			COALESCE(SUM(amount) FILTER (WHERE status = 'completed'), 0)
		FROM withdrawal_requests`
	err = r.db.QueryRowContext(ctx, query).Scan(
		&s.PendingWithdrawals, &s.ApprovedWithdrawals, &s.CompletedWithdrawals, &s.RejectedWithdrawals, &s.TotalAmount,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get withdrawal stats: %w", err)
	}
	return &s, nil
}
