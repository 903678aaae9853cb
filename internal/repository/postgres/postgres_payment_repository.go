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

type PostgresPaymentRepository struct {
	db DBTX
}

func NewPostgresPaymentRepository(db DBTX) *PostgresPaymentRepository {
	return &PostgresPaymentRepository{db: db}
}

const paymentColumns = `id, user_id, kind, target_id, amount, currency, status, reference, access_code,
	authorization_url, gateway_id, payment_method, metadata, paid_at, created_at, updated_at`

func scanPayment(row interface{ Scan(...any) error }) (*models.Payment, error) {
	var (
		p        models.Payment
		metadata []byte
		paidAt   sql.NullTime
	)
	err := row.Scan(&p.ID, &p.UserID, &p.Kind, &p.TargetID, &p.Amount, &p.Currency, &p.Status, &p.Reference,
		&p.AccessCode, &p.AuthorizationURL, &p.GatewayID, &p.PaymentMethod, &metadata, &paidAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		p.Metadata = metadata
	}
	p.PaidAt = timePtr(paidAt)
	return &p, nil
}

func metadataArg(p *models.Payment) any {
	if len(p.Metadata) == 0 {
		return nil
	}
	return []byte(p.Metadata)
}

func (r *PostgresPaymentRepository) Create(ctx context.Context, p *models.Payment) (err error) {
	ctx, done := track(ctx, "payment-repository", "CreatePayment",
		attribute.String("reference", p.Reference), attribute.String("kind", string(p.Kind)))
	defer done(&err)

	query := `
	INSERT INTO payments (user_id, kind, target_id, amount, currency, status, reference, access_code,
		authorization_url, gateway_id, payment_method, metadata)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	RETURNING id, created_at, updated_at
	`
	err = r.db.QueryRowContext(ctx, query,
		p.UserID, p.Kind, p.TargetID, p.Amount, p.Currency, p.Status, p.Reference, p.AccessCode,
		p.AuthorizationURL, p.GatewayID, p.PaymentMethod, metadataArg(p),
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if isUniqueViolation(err) {
		return pkgerrors.ErrRequestAlreadyProcessed
	}
	if err != nil {
		slog.Error("failed to create payment", "method", "Create", "reference", p.Reference, "error", err)
		return fmt.Errorf("failed to create payment: %w", err)
	}
	slog.Info("payment created", "method", "Create", "payment_id", p.ID, "reference", p.Reference, "kind", p.Kind, "target_id", p.TargetID)
	return nil
}

func (r *PostgresPaymentRepository) get(ctx context.Context, method, reference string, lock bool) (p *models.Payment, err error) {
	ctx, done := track(ctx, "payment-repository", method, attribute.String("reference", reference))
	defer done(&err)

	query := `SELECT ` + paymentColumns + ` FROM payments WHERE reference = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	p, err = scanPayment(r.db.QueryRowContext(ctx, query, reference))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrPaymentNotFound
	}
	if err != nil {
		slog.Error("failed to get payment", "method", method, "reference", reference, "error", err)
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return p, nil
}

func (r *PostgresPaymentRepository) GetByReference(ctx context.Context, reference string) (*models.Payment, error) {
	return r.get(ctx, "GetPaymentByReference", reference, false)
}

func (r *PostgresPaymentRepository) GetByReferenceForUpdate(ctx context.Context, reference string) (*models.Payment, error) {
	return r.get(ctx, "GetPaymentByReferenceForUpdate", reference, true)
}

func (r *PostgresPaymentRepository) Update(ctx context.Context, p *models.Payment) (err error) {
	ctx, done := track(ctx, "payment-repository", "UpdatePayment", attribute.String("reference", p.Reference))
	defer done(&err)

	var paidAt sql.NullTime
	if p.PaidAt != nil {
		paidAt = sql.NullTime{Time: *p.PaidAt, Valid: true}
	}
	query := `
	UPDATE payments SET status = $1, access_code = $2, authorization_url = $3, gateway_id = $4,
		payment_method = $5, metadata = $6, paid_at = $7, updated_at = NOW()
	WHERE id = $8
	RETURNING updated_at
	`
	err = r.db.QueryRowContext(ctx, query,
		p.Status, p.AccessCode, p.AuthorizationURL, p.GatewayID, p.PaymentMethod, metadataArg(p), paidAt, p.ID,
	).Scan(&p.UpdatedAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		return pkgerrors.ErrPaymentNotFound
	}
	if err != nil {
		slog.Error("failed to update payment", "method", "Update", "reference", p.Reference, "error", err)
		return fmt.Errorf("failed to update payment: %w", err)
	}
	slog.Info("payment updated", "method", "Update", "reference", p.Reference, "status", p.Status)
	return nil
}

func (r *PostgresPaymentRepository) List(ctx context.Context, filter models.PaymentFilter) (out []models.Payment, err error) {
	ctx, done := track(ctx, "payment-repository", "ListPayments")
	defer done(&err)

	var userID, targetID sql.NullInt64
	var before sql.NullTime
	if filter.UserID != nil {
		userID = sql.NullInt64{Int64: *filter.UserID, Valid: true}
	}
	if filter.TargetID != nil {
		targetID = sql.NullInt64{Int64: *filter.TargetID, Valid: true}
	}
	if filter.CreatedBefore != nil {
		before = sql.NullTime{Time: *filter.CreatedBefore, Valid: true}
	}

	query := `SELECT ` + paymentColumns + ` FROM payments
	WHERE ($1::bigint IS NULL OR user_id = $1)
	AND ($2 = '' OR kind = $2)
	AND ($3::bigint IS NULL OR target_id = $3)
	AND ($4 = '' OR status = $4)
	AND ($5::timestamptz IS NULL OR created_at < $5)
	ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID, string(filter.Kind), targetID, string(filter.Status), before)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, scanErr := scanPayment(rows)
		if scanErr != nil {
			err = fmt.Errorf("failed to scan payment: %w", scanErr)
			return nil, err
		}
		out = append(out, *p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate payments: %w", err)
	}
	return out, nil
}
