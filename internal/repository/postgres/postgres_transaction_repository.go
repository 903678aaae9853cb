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

type PostgresTransactionRepository struct {
	db DBTX
}

func NewPostgresTransactionRepository(db DBTX) *PostgresTransactionRepository {
	return &PostgresTransactionRepository{db: db}
}

const transactionColumns = `id, user_id, investment_id, transaction_type, amount, status, payment_method,
	payment_reference, description, created_at, completed_at`

func scanTransaction(row interface{ Scan(...any) error }) (*models.Transaction, error) {
	var (
		tx           models.Transaction
		investmentID sql.NullInt64
		completedAt  sql.NullTime
	)
	err := row.Scan(&tx.ID, &tx.UserID, &investmentID, &tx.Type, &tx.Amount, &tx.Status, &tx.PaymentMethod,
		&tx.PaymentReference, &tx.Description, &tx.CreatedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	tx.InvestmentID = int64Ptr(investmentID)
	tx.CompletedAt = timePtr(completedAt)
	return &tx, nil
}

func (r *PostgresTransactionRepository) Create(ctx context.Context, tx *models.Transaction) (id int64, err error) {
	ctx, done := track(ctx, "transaction-repository", "CreateTransaction")
	defer done(&err)

	if tx == nil {
		err = pkgerrors.ErrNilTransaction
		slog.Error("failed to create transaction", "method", "Create", "error", err)
		return 0, err
	}

	if !tx.Type.Valid() {
		err = pkgerrors.ErrInvalidTransactionType
		slog.Error("invalid transaction type", "method", "Create", "type", tx.Type, "error", err)
		return 0, err
	}

	if !tx.Status.Valid() {
		err = pkgerrors.ErrInvalidTransactionStatus
		slog.Error("invalid transaction status", "method", "Create", "status", tx.Status, "error", err)
		return 0, err
	}

	if !tx.Amount.IsPositive() {
		err = fmt.Errorf("amount must be positive")
		slog.Error("amount must be positive", "method", "Create", "amount", tx.Amount, "error", err)
		return 0, err
	}

	var investmentID sql.NullInt64
	if tx.InvestmentID != nil {
		investmentID = sql.NullInt64{Int64: *tx.InvestmentID, Valid: true}
	}
	var completedAt sql.NullTime
	if tx.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *tx.CompletedAt, Valid: true}
	}

	query := `INSERT INTO transactions (user_id, investment_id, transaction_type, amount, status, payment_method,
		payment_reference, description, completed_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id, created_at`
	err = r.db.QueryRowContext(ctx, query,
		tx.UserID, investmentID, tx.Type, tx.Amount, tx.Status, tx.PaymentMethod, tx.PaymentReference, tx.Description, completedAt,
	).Scan(&tx.ID, &tx.CreatedAt)
	if err != nil {
		slog.Error("failed to create transaction", "method", "Create", "user_id", tx.UserID, "type", tx.Type, "status", tx.Status, "error", err)
		return 0, fmt.Errorf("failed to create transaction: %w", err)
	}

	slog.Info("transaction created", "method", "Create", "id", tx.ID, "user_id", tx.UserID, "type", tx.Type, "status", tx.Status)
	return tx.ID, nil
}

func (r *PostgresTransactionRepository) GetByID(ctx context.Context, id int64) (tx *models.Transaction, err error) {
	ctx, done := track(ctx, "transaction-repository", "GetTransactionByID", attribute.Int64("transaction_id", id))
	defer done(&err)

	tx, err = scanTransaction(r.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		slog.Error("transaction not found", "method", "GetByID", "transaction_id", id, "error", err)
		return nil, pkgerrors.ErrTransactionNotFound
	}
	if err != nil {
		slog.Error("failed to get transaction by id", "method", "GetByID", "transaction_id", id, "error", err)
		return nil, fmt.Errorf("failed to get transaction by id: %w", err)
	}
	return tx, nil
}

func (r *PostgresTransactionRepository) Update(ctx context.Context, tx *models.Transaction) (err error) {
	ctx, done := track(ctx, "transaction-repository", "UpdateTransaction", attribute.Int64("transaction_id", tx.ID))
	defer done(&err)

	if !tx.Status.Valid() {
		err = pkgerrors.ErrInvalidTransactionStatus
		return err
	}
	var completedAt sql.NullTime
	if tx.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *tx.CompletedAt, Valid: true}
	}
	res, err := r.db.ExecContext(ctx, `UPDATE transactions SET amount = $1, status = $2, description = $3, completed_at = $4 WHERE id = $5`,
		tx.Amount, tx.Status, tx.Description, completedAt, tx.ID)
	if err != nil {
		slog.Error("failed to update transaction", "method", "Update", "transaction_id", tx.ID, "error", err)
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	return rowsAffected(res, pkgerrors.ErrTransactionNotFound)
}

func (r *PostgresTransactionRepository) List(ctx context.Context, filter models.TransactionFilter) (out []models.Transaction, err error) {
	ctx, done := track(ctx, "transaction-repository", "ListTransactions")
	defer done(&err)

	var userID, investmentID sql.NullInt64
	if filter.UserID != nil {
		userID = sql.NullInt64{Int64: *filter.UserID, Valid: true}
	}
	if filter.InvestmentID != nil {
		investmentID = sql.NullInt64{Int64: *filter.InvestmentID, Valid: true}
	}
	var limit sql.NullInt64
	if filter.Limit > 0 {
		limit = sql.NullInt64{Int64: int64(filter.Limit), Valid: true}
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions
	WHERE ($1::bigint IS NULL OR user_id = $1)
	AND ($2::bigint IS NULL OR investment_id = $2)
	AND ($3 = '' OR transaction_type = $3)
	AND ($4 = '' OR status = $4)
	ORDER BY created_at DESC
	LIMIT $5`
	rows, err := r.db.QueryContext(ctx, query, userID, investmentID, string(filter.Type), string(filter.Status), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		tx, scanErr := scanTransaction(rows)
		if scanErr != nil {
			err = fmt.Errorf("failed to scan transaction: %w", scanErr)
			return nil, err
		}
		out = append(out, *tx)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	return out, nil
}

func (r *PostgresTransactionRepository) Stats(ctx context.Context) (stats *models.TransactionStats, err error) {
	ctx, done := track(ctx, "transaction-repository", "TransactionStats")
	defer done(&err)

	var s models.TransactionStats
	query := `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'pending'),
			COALESCE(SUM(amount) FILTER (WHERE status = 'completed'), 0)
		FROM transactions`
	if err = r.db.QueryRowContext(ctx, query).Scan(&s.TotalTransactions, &s.CompletedTransactions, &s.PendingTransactions, &s.TotalAmount); err != nil {
		return nil, fmt.Errorf("failed to get transaction stats: %w", err)
	}
	return &s, nil
}
