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

type PostgresPackageRepository struct {
	db DBTX
}

func NewPostgresPackageRepository(db DBTX) *PostgresPackageRepository {
	return &PostgresPackageRepository{db: db}
}

const packageColumns = `id, name, description, category, risk_level, status, min_amount, max_amount, interest_rate,
	duration_months, total_slots, available_slots, location, start_date, end_date, created_at, updated_at`

func scanPackage(row interface{ Scan(...any) error }) (*models.InvestmentPackage, error) {
	var p models.InvestmentPackage
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Category, &p.RiskLevel, &p.Status, &p.MinAmount, &p.MaxAmount,
		&p.InterestRate, &p.DurationMonths, &p.TotalSlots, &p.AvailableSlots, &p.Location, &p.StartDate, &p.EndDate,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PostgresPackageRepository) Reserve(ctx context.Context, id int64, qty int) (int, error) {
	return packageCapacity.reserve(ctx, r.db, id, qty)
}

func (r *PostgresPackageRepository) Release(ctx context.Context, id int64, qty int) (int, error) {
	return packageCapacity.release(ctx, r.db, id, qty)
}

func (r *PostgresPackageRepository) Create(ctx context.Context, pkg *models.InvestmentPackage) (err error) {
	ctx, done := track(ctx, "package-repository", "CreatePackage")
	defer done(&err)

	query := `
	INSERT INTO investment_packages (name, description, category, risk_level, status, min_amount, max_amount,
		interest_rate, duration_months, total_slots, available_slots, location, start_date, end_date)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	RETURNING id, created_at, updated_at
	`
	err = r.db.QueryRowContext(ctx, query,
		pkg.Name, pkg.Description, pkg.Category, pkg.RiskLevel, pkg.Status, pkg.MinAmount, pkg.MaxAmount,
		pkg.InterestRate, pkg.DurationMonths, pkg.TotalSlots, pkg.AvailableSlots, pkg.Location, pkg.StartDate, pkg.EndDate,
	).Scan(&pkg.ID, &pkg.CreatedAt, &pkg.UpdatedAt)
	if err != nil {
		slog.Error("failed to create package", "method", "Create", "name", pkg.Name, "error", err)
		return fmt.Errorf("failed to create package: %w", err)
	}
	slog.Info("package created", "method", "Create", "package_id", pkg.ID, "name", pkg.Name)
	return nil
}

func (r *PostgresPackageRepository) Update(ctx context.Context, pkg *models.InvestmentPackage) (err error) {
	ctx, done := track(ctx, "package-repository", "UpdatePackage", attribute.Int64("package_id", pkg.ID))
	defer done(&err)

	query := `
	UPDATE investment_packages SET name = $1, description = $2, category = $3, risk_level = $4, status = $5,
		min_amount = $6, max_amount = $7, interest_rate = $8, duration_months = $9, total_slots = $10,
		available_slots = $11, location = $12, start_date = $13, end_date = $14, updated_at = NOW()
	WHERE id = $15
	RETURNING updated_at
	`
	err = r.db.QueryRowContext(ctx, query,
		pkg.Name, pkg.Description, pkg.Category, pkg.RiskLevel, pkg.Status, pkg.MinAmount, pkg.MaxAmount,
		pkg.InterestRate, pkg.DurationMonths, pkg.TotalSlots, pkg.AvailableSlots, pkg.Location, pkg.StartDate, pkg.EndDate,
		pkg.ID,
	).Scan(&pkg.UpdatedAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		return pkgerrors.ErrPackageNotFound
	}
	if err != nil {
		slog.Error("failed to update package", "method", "Update", "package_id", pkg.ID, "error", err)
		return fmt.Errorf("failed to update package: %w", err)
	}
	return nil
}

func (r *PostgresPackageRepository) GetByID(ctx context.Context, id int64) (pkg *models.InvestmentPackage, err error) {
	ctx, done := track(ctx, "package-repository", "GetPackageByID", attribute.Int64("package_id", id))
	defer done(&err)

	pkg, err = scanPackage(r.db.QueryRowContext(ctx, `SELECT `+packageColumns+` FROM investment_packages WHERE id = $1`, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrPackageNotFound
	}
	if err != nil {
		slog.Error("failed to get package", "method", "GetByID", "package_id", id, "error", err)
		return nil, fmt.Errorf("failed to get package: %w", err)
	}
	return pkg, nil
}

func (r *PostgresPackageRepository) List(ctx context.Context, filter models.PackageFilter) (out []models.InvestmentPackage, err error) {
	ctx, done := track(ctx, "package-repository", "ListPackages")
	defer done(&err)

	query := `SELECT ` + packageColumns + ` FROM investment_packages
	WHERE ($1 = '' OR status = $1) AND ($2 = '' OR category = $2) AND ($3 = '' OR risk_level = $3)
	ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, string(filter.Status), filter.Category, filter.RiskLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to list packages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, scanErr := scanPackage(rows)
		if scanErr != nil {
			err = fmt.Errorf("failed to scan package: %w", scanErr)
			return nil, err
		}
		out = append(out, *p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate packages: %w", err)
	}
	return out, nil
}

func (r *PostgresPackageRepository) Delete(ctx context.Context, id int64) (err error) {
	ctx, done := track(ctx, "package-repository", "DeletePackage", attribute.Int64("package_id", id))
	defer done(&err)

	res, err := r.db.ExecContext(ctx, `DELETE FROM investment_packages WHERE id = $1`, id)
	if isForeignKeyViolation(err) {
		return pkgerrors.Business(pkgerrors.ErrInvalidInput, "package has investments")
	}
	if err != nil {
		slog.Error("failed to delete package", "method", "Delete", "package_id", id, "error", err)
		return fmt.Errorf("failed to delete package: %w", err)
	}
	return rowsAffected(res, pkgerrors.ErrPackageNotFound)
}

func (r *PostgresPackageRepository) Stats(ctx context.Context) (stats *models.PackageStats, err error) {
	ctx, done := track(ctx, "package-repository", "PackageStats")
	defer done(&err)

	var s models.PackageStats
	query := `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE status = 'active'),
			COALESCE(SUM(total_slots), 0),
			COALESCE(SUM(available_slots), 0)
		FROM investment_packages`
	if err = r.db.QueryRowContext(ctx, query).Scan(&s.TotalPackages, &s.ActivePackages, &s.TotalSlots, &s.AvailableSlots); err != nil {
		return nil, fmt.Errorf("failed to get package stats: %w", err)
	}
	s.FilledSlots = s.TotalSlots - s.AvailableSlots
	return &s, nil
}
