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

type PostgresProductRepository struct {
	db DBTX
}

func NewPostgresProductRepository(db DBTX) *PostgresProductRepository {
	return &PostgresProductRepository{db: db}
}

const productColumns = `id, name, description, price, stock, category, is_active, created_at`

func scanProduct(row interface{ Scan(...any) error }) (*models.Product, error) {
	var p models.Product
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock, &p.Category, &p.IsActive, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PostgresProductRepository) Reserve(ctx context.Context, id int64, qty int) (int, error) {
	return productCapacity.reserve(ctx, r.db, id, qty)
}

func (r *PostgresProductRepository) Release(ctx context.Context, id int64, qty int) (int, error) {
	return productCapacity.release(ctx, r.db, id, qty)
}

func (r *PostgresProductRepository) Create(ctx context.Context, p *models.Product) (err error) {
	ctx, done := track(ctx, "product-repository", "CreateProduct")
	defer done(&err)

	err = r.db.QueryRowContext(ctx, `
	INSERT INTO products (name, description, price, stock, category, is_active)
	VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at`,
		p.Name, p.Description, p.Price, p.Stock, p.Category, p.IsActive,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		slog.Error("failed to create product", "method", "Create", "name", p.Name, "error", err)
		return fmt.Errorf("failed to create product: %w", err)
	}
	return nil
}

func (r *PostgresProductRepository) Update(ctx context.Context, p *models.Product) (err error) {
	ctx, done := track(ctx, "product-repository", "UpdateProduct", attribute.Int64("product_id", p.ID))
	defer done(&err)

	res, err := r.db.ExecContext(ctx, `
	UPDATE products SET name = $1, description = $2, price = $3, stock = $4, category = $5, is_active = $6
	WHERE id = $7`, p.Name, p.Description, p.Price, p.Stock, p.Category, p.IsActive, p.ID)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	return rowsAffected(res, pkgerrors.ErrProductNotFound)
}

func (r *PostgresProductRepository) GetByID(ctx context.Context, id int64) (p *models.Product, err error) {
	ctx, done := track(ctx, "product-repository", "GetProductByID", attribute.Int64("product_id", id))
	defer done(&err)

	p, err = scanProduct(r.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return p, nil
}

func (r *PostgresProductRepository) List(ctx context.Context, activeOnly bool) (out []models.Product, err error) {
	ctx, done := track(ctx, "product-repository", "ListProducts")
	defer done(&err)

	rows, err := r.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products WHERE ($1 = FALSE OR is_active = TRUE) ORDER BY name`, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, scanErr := scanProduct(rows)
		if scanErr != nil {
			err = fmt.Errorf("failed to scan product: %w", scanErr)
			return nil, err
		}
		out = append(out, *p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate products: %w", err)
	}
	return out, nil
}

func (r *PostgresProductRepository) Delete(ctx context.Context, id int64) (err error) {
	ctx, done := track(ctx, "product-repository", "DeleteProduct", attribute.Int64("product_id", id))
	defer done(&err)

	res, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if isForeignKeyViolation(err) {
		return pkgerrors.Business(pkgerrors.ErrInvalidInput, "product has orders")
	}
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	return rowsAffected(res, pkgerrors.ErrProductNotFound)
}

type PostgresCartRepository struct {
	db DBTX
}

func NewPostgresCartRepository(db DBTX) *PostgresCartRepository {
	return &PostgresCartRepository{db: db}
}

func (r *PostgresCartRepository) Get(ctx context.Context, userID int64) (cart *models.Cart, err error) {
	ctx, done := track(ctx, "cart-repository", "GetCart", attribute.Int64("user_id", userID))
	defer done(&err)

	rows, err := r.db.QueryContext(ctx, `
	SELECT c.product_id, p.name, p.price, c.quantity, c.updated_at
	FROM cart_items c JOIN products p ON p.id = c.product_id
	WHERE c.user_id = $1
	ORDER BY c.product_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	defer rows.Close()

	cart = &models.Cart{UserID: userID, Items: []models.CartItem{}}
	for rows.Next() {
		var item models.CartItem
		var updatedAt sql.NullTime
		if err = rows.Scan(&item.ProductID, &item.ProductName, &item.UnitPrice, &item.Quantity, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cart item: %w", err)
		}
		if updatedAt.Valid && updatedAt.Time.After(cart.UpdatedAt) {
			cart.UpdatedAt = updatedAt.Time
		}
		cart.Items = append(cart.Items, item)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cart: %w", err)
	}
	return cart, nil
}

func (r *PostgresCartRepository) SetItem(ctx context.Context, userID, productID int64, qty int) (err error) {
	ctx, done := track(ctx, "cart-repository", "SetCartItem", attribute.Int64("user_id", userID), attribute.Int64("product_id", productID))
	defer done(&err)

	if qty <= 0 {
		_, err = r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2`, userID, productID)
		if err != nil {
			return fmt.Errorf("failed to remove cart item: %w", err)
		}
		return nil
	}
	_, err = r.db.ExecContext(ctx, `
	INSERT INTO cart_items (user_id, product_id, quantity) VALUES ($1, $2, $3)
	ON CONFLICT (user_id, product_id) DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = NOW()`,
		userID, productID, qty)
	if err != nil {
		return fmt.Errorf("failed to set cart item: %w", err)
	}
	return nil
}

func (r *PostgresCartRepository) Clear(ctx context.Context, userID int64) (err error) {
	ctx, done := track(ctx, "cart-repository", "ClearCart", attribute.Int64("user_id", userID))
	defer done(&err)

	if _, err = r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}

type PostgresOrderRepository struct {
	db DBTX
}

func NewPostgresOrderRepository(db DBTX) *PostgresOrderRepository {
	return &PostgresOrderRepository{db: db}
}

const orderColumns = `o.id, o.user_id, o.reference, o.email, o.first_name, o.last_name, o.phone, o.address, o.city, o.state,
	o.total_amount, o.payment_reference, o.status, o.created_at, o.updated_at`

func scanOrder(row interface{ Scan(...any) error }) (*models.Order, error) {
	var o models.Order
	s := &o.Shipping
	err := row.Scan(&o.ID, &o.UserID, &o.Reference, &s.Email, &s.FirstName, &s.LastName, &s.Phone, &s.Address, &s.City, &s.State,
		&o.TotalAmount, &o.PaymentReference, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// Create inserts the order and its items; callers run it inside WithinTx.
func (r *PostgresOrderRepository) Create(ctx context.Context, o *models.Order) (err error) {
	ctx, done := track(ctx, "order-repository", "CreateOrder", attribute.Int64("user_id", o.UserID))
	defer done(&err)

	s := o.Shipping
	err = r.db.QueryRowContext(ctx, `
	INSERT INTO orders (user_id, reference, email, first_name, last_name, phone, address, city, state, total_amount,
		payment_reference, status)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	RETURNING id, created_at, updated_at`,
		o.UserID, o.Reference, s.Email, s.FirstName, s.LastName, s.Phone, s.Address, s.City, s.State, o.TotalAmount,
		o.PaymentReference, o.Status,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		slog.Error("failed to create order", "method", "Create", "user_id", o.UserID, "error", err)
		return fmt.Errorf("failed to create order: %w", err)
	}

	for _, item := range o.Items {
		_, err = r.db.ExecContext(ctx, `INSERT INTO order_items (order_id, product_id, name, quantity, price) VALUES ($1, $2, $3, $4, $5)`,
			o.ID, item.ProductID, item.Name, item.Quantity, item.Price)
		if err != nil {
			slog.Error("failed to create order item", "method", "Create", "order_id", o.ID, "product_id", item.ProductID, "error", err)
			return fmt.Errorf("failed to create order item: %w", err)
		}
	}

	slog.Info("order created", "method", "Create", "order_id", o.ID, "user_id", o.UserID, "total", o.TotalAmount)
	return nil
}

func (r *PostgresOrderRepository) get(ctx context.Context, method string, id int64, lock bool) (o *models.Order, err error) {
	ctx, done := track(ctx, "order-repository", method, attribute.Int64("order_id", id))
	defer done(&err)

	query := `SELECT ` + orderColumns + ` FROM orders o WHERE o.id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	o, err = scanOrder(r.db.QueryRowContext(ctx, query, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	orders := []models.Order{*o}
	if err = r.loadItems(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

func (r *PostgresOrderRepository) GetByID(ctx context.Context, id int64) (*models.Order, error) {
	return r.get(ctx, "GetOrderByID", id, false)
}

func (r *PostgresOrderRepository) GetByIDForUpdate(ctx context.Context, id int64) (*models.Order, error) {
	return r.get(ctx, "GetOrderByIDForUpdate", id, true)
}

func (r *PostgresOrderRepository) Update(ctx context.Context, o *models.Order) (err error) {
	ctx, done := track(ctx, "order-repository", "UpdateOrder", attribute.Int64("order_id", o.ID))
	defer done(&err)

	err = r.db.QueryRowContext(ctx, `
	UPDATE orders SET status = $1, payment_reference = $2, updated_at = NOW() WHERE id = $3 RETURNING updated_at`,
		o.Status, o.PaymentReference, o.ID,
	).Scan(&o.UpdatedAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		return pkgerrors.ErrOrderNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	slog.Info("order updated", "method", "Update", "order_id", o.ID, "status", o.Status)
	return nil
}

func (r *PostgresOrderRepository) List(ctx context.Context, filter models.OrderFilter) (out []models.Order, err error) {
	ctx, done := track(ctx, "order-repository", "ListOrders")
	defer done(&err)

	var userID, productID sql.NullInt64
	if filter.UserID != nil {
		userID = sql.NullInt64{Int64: *filter.UserID, Valid: true}
	}
	if filter.ProductID != nil {
		productID = sql.NullInt64{Int64: *filter.ProductID, Valid: true}
	}
	query := `SELECT ` + orderColumns + ` FROM orders o
	WHERE ($1::bigint IS NULL OR o.user_id = $1)
	AND ($2 = '' OR o.status = $2)
	AND ($3::bigint IS NULL OR EXISTS (SELECT 1 FROM order_items oi WHERE oi.order_id = o.id AND oi.product_id = $3))
	ORDER BY o.created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID, string(filter.Status), productID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	for rows.Next() {
		o, scanErr := scanOrder(rows)
		if scanErr != nil {
			rows.Close()
			err = fmt.Errorf("failed to scan order: %w", scanErr)
			return nil, err
		}
		out = append(out, *o)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate orders: %w", err)
	}
	if err = r.loadItems(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PostgresOrderRepository) loadItems(ctx context.Context, orders []models.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]int64, len(orders))
	index := make(map[int64]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
		orders[i].Items = []models.OrderItem{}
	}

	rows, err := r.db.QueryContext(ctx, `SELECT order_id, product_id, name, quantity, price FROM order_items
	WHERE order_id = ANY($1::bigint[]) ORDER BY id`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to load order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var orderID int64
		var item models.OrderItem
		if err := rows.Scan(&orderID, &item.ProductID, &item.Name, &item.Quantity, &item.Price); err != nil {
			return fmt.Errorf("failed to scan order item: %w", err)
		}
		if i, ok := index[orderID]; ok {
			orders[i].Items = append(orders[i].Items, item)
		}
	}
	return rows.Err()
}
