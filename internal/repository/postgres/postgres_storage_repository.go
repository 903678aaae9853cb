package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/honeynil/agri-invest-service/internal/models"
	pkgerrors "github.com/honeynil/agri-invest-service/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

type PostgresStoragePlanRepository struct {
	db DBTX
}

func NewPostgresStoragePlanRepository(db DBTX) *PostgresStoragePlanRepository {
	return &PostgresStoragePlanRepository{db: db}
}

const planColumns = `id, product_name, description, buying_price_per_bag, projected_selling_price, storage_due_date,
	available_quantity, total_quantity, minimum_quantity, maximum_quantity, is_active, storage_cost_per_bag,
	created_at, updated_at`

func scanPlan(row interface{ Scan(...any) error }) (*models.StoragePlan, error) {
	var p models.StoragePlan
	err := row.Scan(&p.ID, &p.ProductName, &p.Description, &p.BuyingPricePerBag, &p.ProjectedSellingPrice, &p.StorageDueDate,
		&p.AvailableQuantity, &p.TotalQuantity, &p.MinimumQuantity, &p.MaximumQuantity, &p.IsActive, &p.StorageCostPerBag,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PostgresStoragePlanRepository) Reserve(ctx context.Context, id int64, qty int) (int, error) {
	return planCapacity.reserve(ctx, r.db, id, qty)
}

func (r *PostgresStoragePlanRepository) Release(ctx context.Context, id int64, qty int) (int, error) {
	return planCapacity.release(ctx, r.db, id, qty)
}

func (r *PostgresStoragePlanRepository) Create(ctx context.Context, plan *models.StoragePlan) (err error) {
	ctx, done := track(ctx, "storage-plan-repository", "CreateStoragePlan")
	defer done(&err)

	query := `
	INSERT INTO storage_plans (product_name, description, buying_price_per_bag, projected_selling_price, storage_due_date,
		available_quantity, total_quantity, minimum_quantity, maximum_quantity, is_active, storage_cost_per_bag)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	RETURNING id, created_at, updated_at
	`
	err = r.db.QueryRowContext(ctx, query,
		plan.ProductName, plan.Description, plan.BuyingPricePerBag, plan.ProjectedSellingPrice, plan.StorageDueDate,
		plan.AvailableQuantity, plan.TotalQuantity, plan.MinimumQuantity, plan.MaximumQuantity, plan.IsActive, plan.StorageCostPerBag,
	).Scan(&plan.ID, &plan.CreatedAt, &plan.UpdatedAt)
	if err != nil {
		slog.Error("failed to create storage plan", "method", "Create", "product_name", plan.ProductName, "error", err)
		return fmt.Errorf("failed to create storage plan: %w", err)
	}
	slog.Info("storage plan created", "method", "Create", "plan_id", plan.ID)
	return nil
}

func (r *PostgresStoragePlanRepository) Update(ctx context.Context, plan *models.StoragePlan) (err error) {
	ctx, done := track(ctx, "storage-plan-repository", "UpdateStoragePlan", attribute.Int64("plan_id", plan.ID))
	defer done(&err)

	query := `
	UPDATE storage_plans SET product_name = $1, description = $2, buying_price_per_bag = $3, projected_selling_price = $4,
		storage_due_date = $5, available_quantity = $6, total_quantity = $7, minimum_quantity = $8, maximum_quantity = $9,
		is_active = $10, storage_cost_per_bag = $11, updated_at = NOW()
	WHERE id = $12
	RETURNING updated_at
	`
	err = r.db.QueryRowContext(ctx, query,
		plan.ProductName, plan.Description, plan.BuyingPricePerBag, plan.ProjectedSellingPrice, plan.StorageDueDate,
		plan.AvailableQuantity, plan.TotalQuantity, plan.MinimumQuantity, plan.MaximumQuantity, plan.IsActive, plan.StorageCostPerBag,
		plan.ID,
	).Scan(&plan.UpdatedAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		return pkgerrors.ErrStoragePlanNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update storage plan: %w", err)
	}
	return nil
}

func (r *PostgresStoragePlanRepository) GetByID(ctx context.Context, id int64) (plan *models.StoragePlan, err error) {
	ctx, done := track(ctx, "storage-plan-repository", "GetStoragePlanByID", attribute.Int64("plan_id", id))
	defer done(&err)

	plan, err = scanPlan(r.db.QueryRowContext(ctx, `SELECT `+planColumns+` FROM storage_plans WHERE id = $1`, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrStoragePlanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get storage plan: %w", err)
	}
	return plan, nil
}

func (r *PostgresStoragePlanRepository) List(ctx context.Context, activeOnly bool) (out []models.StoragePlan, err error) {
	ctx, done := track(ctx, "storage-plan-repository", "ListStoragePlans")
	defer done(&err)

	rows, err := r.db.QueryContext(ctx, `SELECT `+planColumns+` FROM storage_plans
	WHERE ($1 = FALSE OR (is_active = TRUE AND available_quantity > 0))
	ORDER BY created_at DESC`, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list storage plans: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, scanErr := scanPlan(rows)
		if scanErr != nil {
			err = fmt.Errorf("failed to scan storage plan: %w", scanErr)
			return nil, err
		}
		out = append(out, *p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate storage plans: %w", err)
	}
	return out, nil
}

func (r *PostgresStoragePlanRepository) Delete(ctx context.Context, id int64) (err error) {
	ctx, done := track(ctx, "storage-plan-repository", "DeleteStoragePlan", attribute.Int64("plan_id", id))
	defer done(&err)

	res, err := r.db.ExecContext(ctx, `DELETE FROM storage_plans WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete storage plan: %w", err)
	}
	return rowsAffected(res, pkgerrors.ErrStoragePlanNotFound)
}

func (r *PostgresStoragePlanRepository) CountInvestments(ctx context.Context, planID int64) (n int, err error) {
	ctx, done := track(ctx, "storage-plan-repository", "CountStorageInvestments", attribute.Int64("plan_id", planID))
	defer done(&err)

	if err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM storage_investments WHERE plan_id = $1`, planID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count storage investments: %w", err)
	}
	return n, nil
}

type PostgresStorageInvestmentRepository struct {
	db DBTX
}

func NewPostgresStorageInvestmentRepository(db DBTX) *PostgresStorageInvestmentRepository {
	return &PostgresStorageInvestmentRepository{db: db}
}

const storageInvestmentSelect = `SELECT s.id, s.user_id, s.plan_id, p.product_name, s.customer_name, s.customer_email,
	s.customer_phone, s.quantity_bags, s.price_per_bag, s.total_investment_amount, s.projected_selling_price_per_bag,
	s.projected_returns, s.status, s.due_date, s.matured_at, s.completed_at, s.payment_reference, s.payment_status,
	s.payment_date, s.created_at, s.updated_at
	FROM storage_investments s JOIN storage_plans p ON p.id = s.plan_id`

func scanStorageInvestment(row interface{ Scan(...any) error }) (*models.StorageInvestment, error) {
	var (
		s           models.StorageInvestment
		maturedAt   sql.NullTime
		completedAt sql.NullTime
		paymentDate sql.NullTime
	)
	err := row.Scan(&s.ID, &s.UserID, &s.PlanID, &s.ProductName, &s.CustomerName, &s.CustomerEmail, &s.CustomerPhone,
		&s.QuantityBags, &s.PricePerBag, &s.TotalInvestmentAmount, &s.ProjectedSellingPricePerBag, &s.ProjectedReturns,
		&s.Status, &s.DueDate, &maturedAt, &completedAt, &s.PaymentReference, &s.PaymentStatus, &paymentDate,
		&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.MaturedAt = timePtr(maturedAt)
	s.CompletedAt = timePtr(completedAt)
	s.PaymentDate = timePtr(paymentDate)
	return &s, nil
}

func (r *PostgresStorageInvestmentRepository) Create(ctx context.Context, inv *models.StorageInvestment) (err error) {
	ctx, done := track(ctx, "storage-investment-repository", "CreateStorageInvestment", attribute.Int64("plan_id", inv.PlanID))
	defer done(&err)

	query := `
	INSERT INTO storage_investments (user_id, plan_id, customer_name, customer_email, customer_phone, quantity_bags,
		price_per_bag, total_investment_amount, projected_selling_price_per_bag, projected_returns, status, due_date,
		payment_reference, payment_status)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	RETURNING id, created_at, updated_at
	`
	err = r.db.QueryRowContext(ctx, query,
		inv.UserID, inv.PlanID, inv.CustomerName, inv.CustomerEmail, inv.CustomerPhone, inv.QuantityBags,
		inv.PricePerBag, inv.TotalInvestmentAmount, inv.ProjectedSellingPricePerBag, inv.ProjectedReturns, inv.Status,
		inv.DueDate, inv.PaymentReference, inv.PaymentStatus,
	).Scan(&inv.ID, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		slog.Error("failed to create storage investment", "method", "Create", "plan_id", inv.PlanID, "error", err)
		return fmt.Errorf("failed to create storage investment: %w", err)
	}
	slog.Info("storage investment created", "method", "Create", "storage_investment_id", inv.ID, "quantity", inv.QuantityBags)
	return nil
}

func (r *PostgresStorageInvestmentRepository) get(ctx context.Context, method string, id int64, lock bool) (inv *models.StorageInvestment, err error) {
	ctx, done := track(ctx, "storage-investment-repository", method, attribute.Int64("storage_investment_id", id))
	defer done(&err)

	query := storageInvestmentSelect + ` WHERE s.id = $1`
	if lock {
		query += ` FOR UPDATE OF s`
	}
	inv, err = scanStorageInvestment(r.db.QueryRowContext(ctx, query, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrStorageInvestmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get storage investment: %w", err)
	}
	return inv, nil
}

func (r *PostgresStorageInvestmentRepository) GetByID(ctx context.Context, id int64) (*models.StorageInvestment, error) {
	return r.get(ctx, "GetStorageInvestmentByID", id, false)
}

func (r *PostgresStorageInvestmentRepository) GetByIDForUpdate(ctx context.Context, id int64) (*models.StorageInvestment, error) {
	return r.get(ctx, "GetStorageInvestmentByIDForUpdate", id, true)
}

func (r *PostgresStorageInvestmentRepository) Update(ctx context.Context, inv *models.StorageInvestment) (err error) {
	ctx, done := track(ctx, "storage-investment-repository", "UpdateStorageInvestment", attribute.Int64("storage_investment_id", inv.ID))
	defer done(&err)

	var maturedAt, completedAt, paymentDate sql.NullTime
	if inv.MaturedAt != nil {
		maturedAt = sql.NullTime{Time: *inv.MaturedAt, Valid: true}
	}
	if inv.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *inv.CompletedAt, Valid: true}
	}
	if inv.PaymentDate != nil {
		paymentDate = sql.NullTime{Time: *inv.PaymentDate, Valid: true}
	}
	query := `
	UPDATE storage_investments SET status = $1, matured_at = $2, completed_at = $3, payment_reference = $4,
		payment_status = $5, payment_date = $6, projected_returns = $7, updated_at = NOW()
	WHERE id = $8
	RETURNING updated_at
	`
	err = r.db.QueryRowContext(ctx, query,
		inv.Status, maturedAt, completedAt, inv.PaymentReference, inv.PaymentStatus, paymentDate, inv.ProjectedReturns, inv.ID,
	).Scan(&inv.UpdatedAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		return pkgerrors.ErrStorageInvestmentNotFound
	}
	if err != nil {
		slog.Error("failed to update storage investment", "method", "Update", "storage_investment_id", inv.ID, "error", err)
		return fmt.Errorf("failed to update storage investment: %w", err)
	}
	slog.Info("storage investment updated", "method", "Update", "storage_investment_id", inv.ID, "status", inv.Status)
	return nil
}

func (r *PostgresStorageInvestmentRepository) List(ctx context.Context, filter models.StorageFilter) (out []models.StorageInvestment, err error) {
	ctx, done := track(ctx, "storage-investment-repository", "ListStorageInvestments")
	defer done(&err)

	var userID, planID sql.NullInt64
	var dueBefore sql.NullTime
	if filter.UserID != nil {
		userID = sql.NullInt64{Int64: *filter.UserID, Valid: true}
	}
	if filter.PlanID != nil {
		planID = sql.NullInt64{Int64: *filter.PlanID, Valid: true}
	}
	if filter.DueBefore != nil {
		dueBefore = sql.NullTime{Time: *filter.DueBefore, Valid: true}
	}

	query := storageInvestmentSelect + `
	WHERE ($1::bigint IS NULL OR s.user_id = $1)
	AND ($2::bigint IS NULL OR s.plan_id = $2)
	AND ($3 = '' OR s.status = $3)
	AND ($4::date IS NULL OR s.due_date < $4)
	ORDER BY s.created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID, planID, string(filter.Status), dueBefore)
	if err != nil {
		return nil, fmt.Errorf("failed to list storage investments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		s, scanErr := scanStorageInvestment(rows)
		if scanErr != nil {
			err = fmt.Errorf("failed to scan storage investment: %w", scanErr)
			return nil, err
		}
		out = append(out, *s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate storage investments: %w", err)
	}
	return out, nil
}

func (r *PostgresStorageInvestmentRepository) CreateUpdate(ctx context.Context, u *models.StorageUpdate) (err error) {
	ctx, done := track(ctx, "storage-investment-repository", "CreateStorageUpdate", attribute.Int64("storage_investment_id", u.InvestmentID))
	defer done(&err)

	err = r.db.QueryRowContext(ctx, `
	INSERT INTO storage_updates (investment_id, update_type, title, message, current_market_price)
	VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`,
		u.InvestmentID, u.Type, u.Title, u.Message, nullDecimal(u.CurrentMarketPrice),
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create storage update: %w", err)
	}
	return nil
}

func (r *PostgresStorageInvestmentRepository) ListUpdates(ctx context.Context, investmentID int64) (out []models.StorageUpdate, err error) {
	ctx, done := track(ctx, "storage-investment-repository", "ListStorageUpdates", attribute.Int64("storage_investment_id", investmentID))
	defer done(&err)

	rows, err := r.db.QueryContext(ctx, `SELECT id, investment_id, update_type, title, message, current_market_price, created_at
	FROM storage_updates WHERE investment_id = $1 ORDER BY created_at DESC`, investmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list storage updates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			u     models.StorageUpdate
			price decimal.NullDecimal
		)
		if err = rows.Scan(&u.ID, &u.InvestmentID, &u.Type, &u.Title, &u.Message, &price, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan storage update: %w", err)
		}
		u.CurrentMarketPrice = decimalPtr(price)
		out = append(out, u)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate storage updates: %w", err)
	}
	return out, nil
}
