package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"

	pkgerrors "github.com/honeynil/agri-invest-service/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
)

// capacityTable names the counter columns of one offering table.
type capacityTable struct {
	component string
	table     string
	available string
	// total is empty when the counter has no ceiling.
	total    string
	notFound error
}

var (
	packageCapacity = capacityTable{"package-repository", "investment_packages", "available_slots", "total_slots", pkgerrors.ErrPackageNotFound}
	planCapacity    = capacityTable{"storage-plan-repository", "storage_plans", "available_quantity", "total_quantity", pkgerrors.ErrStoragePlanNotFound}
	productCapacity = capacityTable{"product-repository", "products", "stock", "", pkgerrors.ErrProductNotFound}
)

// reserve decrements the counter only when enough remains.
func (c capacityTable) reserve(ctx context.Context, db DBTX, id int64, qty int) (remaining int, err error) {
	ctx, done := track(ctx, c.component, "Reserve", attribute.Int64("id", id), attribute.Int("qty", qty))
	defer done(&err)

	if qty <= 0 {
		err = fmt.Errorf("%w: quantity must be positive", pkgerrors.ErrInvalidInput)
		return 0, err
	}

	query := fmt.Sprintf(`UPDATE %[1]s SET %[2]s = %[2]s - $1 WHERE id = $2 AND (%[2]s - $1) >= 0 RETURNING %[2]s`,
		c.table, c.available)
	err = db.QueryRowContext(ctx, query, qty, id).Scan(&remaining)
	if stderrors.Is(err, sql.ErrNoRows) {
		if err = c.exists(ctx, db, id); err != nil {
			return 0, err
		}
		slog.Warn("insufficient capacity", "method", "Reserve", "table", c.table, "id", id, "qty", qty)
		return 0, pkgerrors.ErrInsufficientCapacity
	}
	if err != nil {
		slog.Error("failed to reserve capacity", "method", "Reserve", "table", c.table, "id", id, "error", err)
		return 0, fmt.Errorf("failed to reserve capacity: %w", err)
	}

	slog.Info("capacity reserved", "method", "Reserve", "table", c.table, "id", id, "qty", qty, "remaining", remaining)
	return remaining, nil
}

// release increments the counter, capped at the total where there is one.
func (c capacityTable) release(ctx context.Context, db DBTX, id int64, qty int) (remaining int, err error) {
	ctx, done := track(ctx, c.component, "Release", attribute.Int64("id", id), attribute.Int("qty", qty))
	defer done(&err)

	if qty <= 0 {
		err = fmt.Errorf("%w: quantity must be positive", pkgerrors.ErrInvalidInput)
		return 0, err
	}

	next := fmt.Sprintf("%s + $1", c.available)
	if c.total != "" {
		next = fmt.Sprintf("LEAST(%s, %s + $1)", c.total, c.available)
	}
	query := fmt.Sprintf(`UPDATE %s SET %s = %s WHERE id = $2 RETURNING %s`, c.table, c.available, next, c.available)
	err = db.QueryRowContext(ctx, query, qty, id).Scan(&remaining)
	if stderrors.Is(err, sql.ErrNoRows) {
		return 0, c.notFound
	}
	if err != nil {
		slog.Error("failed to release capacity", "method", "Release", "table", c.table, "id", id, "error", err)
		return 0, fmt.Errorf("failed to release capacity: %w", err)
	}

	slog.Info("capacity released", "method", "Release", "table", c.table, "id", id, "qty", qty, "remaining", remaining)
	return remaining, nil
}

func (c capacityTable) exists(ctx context.Context, db DBTX, id int64) error {
	var found bool
	if err := db.QueryRowContext(ctx, fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, c.table), id).Scan(&found); err != nil {
		return fmt.Errorf("failed to check %s: %w", c.table, err)
	}
	if !found {
		return c.notFound
	}
	return nil
}
