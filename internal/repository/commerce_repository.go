package repository

import (
	"context"

	"github.com/honeynil/agri-invest-service/internal/models"
)

type ProductRepository interface {
	CapacityStore
	Create(ctx context.Context, p *models.Product) error
	Update(ctx context.Context, p *models.Product) error
	GetByID(ctx context.Context, id int64) (*models.Product, error)
	List(ctx context.Context, activeOnly bool) ([]models.Product, error)
	Delete(ctx context.Context, id int64) error
}

type CartRepository interface {
	Get(ctx context.Context, userID int64) (*models.Cart, error)
	// SetItem stores qty for the product; qty 0 removes the line.
	SetItem(ctx context.Context, userID, productID int64, qty int) error
	Clear(ctx context.Context, userID int64) error
}

type OrderRepository interface {
	Create(ctx context.Context, o *models.Order) error
	GetByID(ctx context.Context, id int64) (*models.Order, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*models.Order, error)
	Update(ctx context.Context, o *models.Order) error
	List(ctx context.Context, filter models.OrderFilter) ([]models.Order, error)
}
