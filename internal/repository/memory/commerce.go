package memory

import (
	"context"
	"slices"
	"sort"

	"github.com/honeynil/agri-invest-service/internal/models"
	pkgerrors "github.com/honeynil/agri-invest-service/pkg/errors"
)

type productRepo struct{ s *Store }

func (r productRepo) Reserve(_ context.Context, id int64, qty int) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.st.products[id]
	if !ok {
		return 0, pkgerrors.ErrProductNotFound
	}
	left, err := reserve(&p.Stock, qty)
	if err != nil {
		return 0, err
	}
	r.s.st.products[id] = p
	return left, nil
}

func (r productRepo) Release(_ context.Context, id int64, qty int) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.st.products[id]
	if !ok {
		return 0, pkgerrors.ErrProductNotFound
	}
	left, err := release(&p.Stock, -1, qty)
	if err != nil {
		return 0, err
	}
	r.s.st.products[id] = p
	return left, nil
}

func (r productRepo) Create(_ context.Context, p *models.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p.ID = r.s.st.nextID()
	p.CreatedAt = r.s.now()
	r.s.st.products[p.ID] = *p
	return nil
}

func (r productRepo) Update(_ context.Context, p *models.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	old, ok := r.s.st.products[p.ID]
	if !ok {
		return pkgerrors.ErrProductNotFound
	}
	p.CreatedAt = old.CreatedAt
	r.s.st.products[p.ID] = *p
	return nil
}

func (r productRepo) GetByID(_ context.Context, id int64) (*models.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.st.products[id]
	if !ok {
		return nil, pkgerrors.ErrProductNotFound
	}
	return &p, nil
}

func (r productRepo) List(_ context.Context, activeOnly bool) ([]models.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Product
	for _, p := range r.s.st.products {
		if !activeOnly || p.IsActive {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r productRepo) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.products[id]; !ok {
		return pkgerrors.ErrProductNotFound
	}
	for _, o := range r.s.st.orders {
		for _, item := range o.Items {
			if item.ProductID == id {
				return pkgerrors.Business(pkgerrors.ErrInvalidInput, "product has orders")
			}
		}
	}
	delete(r.s.st.products, id)
	for _, lines := range r.s.st.carts {
		delete(lines, id)
	}
	return nil
}

type cartRepo struct{ s *Store }

func (r cartRepo) Get(_ context.Context, userID int64) (*models.Cart, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cart := &models.Cart{UserID: userID, Items: []models.CartItem{}}
	for productID, line := range r.s.st.carts[userID] {
		p := r.s.st.products[productID]
		cart.Items = append(cart.Items, models.CartItem{
			ProductID:   productID,
			ProductName: p.Name,
			UnitPrice:   p.Price,
			Quantity:    line.qty,
		})
		if line.updatedAt.After(cart.UpdatedAt) {
			cart.UpdatedAt = line.updatedAt
		}
	}
	sort.Slice(cart.Items, func(i, j int) bool { return cart.Items[i].ProductID < cart.Items[j].ProductID })
	return cart, nil
}

func (r cartRepo) SetItem(_ context.Context, userID, productID int64, qty int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if qty <= 0 {
		delete(r.s.st.carts[userID], productID)
		return nil
	}
	if _, ok := r.s.st.products[productID]; !ok {
		return pkgerrors.ErrProductNotFound
	}
	lines, ok := r.s.st.carts[userID]
	if !ok {
		lines = map[int64]cartLine{}
		r.s.st.carts[userID] = lines
	}
	lines[productID] = cartLine{qty: qty, updatedAt: r.s.now()}
	return nil
}

func (r cartRepo) Clear(_ context.Context, userID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.st.carts, userID)
	return nil
}

type orderRepo struct{ s *Store }

func (r orderRepo) Create(_ context.Context, o *models.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o.ID = r.s.st.nextID()
	o.CreatedAt = r.s.now()
	o.UpdatedAt = o.CreatedAt
	stored := *o
	stored.Items = slices.Clone(o.Items)
	r.s.st.orders[o.ID] = stored
	return nil
}

func (r orderRepo) GetByID(_ context.Context, id int64) (*models.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.st.orders[id]
	if !ok {
		return nil, pkgerrors.ErrOrderNotFound
	}
	o.Items = slices.Clone(o.Items)
	return &o, nil
}

func (r orderRepo) GetByIDForUpdate(ctx context.Context, id int64) (*models.Order, error) {
	return r.GetByID(ctx, id)
}

func (r orderRepo) Update(_ context.Context, o *models.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	old, ok := r.s.st.orders[o.ID]
	if !ok {
		return pkgerrors.ErrOrderNotFound
	}
	old.Status = o.Status
	old.PaymentReference = o.PaymentReference
	old.UpdatedAt = r.s.now()
	r.s.st.orders[o.ID] = old
	o.UpdatedAt = old.UpdatedAt
	return nil
}

func (r orderRepo) List(_ context.Context, f models.OrderFilter) ([]models.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Order
	for _, o := range r.s.st.orders {
		if f.UserID != nil && o.UserID != *f.UserID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if f.ProductID != nil && !slices.ContainsFunc(o.Items, func(i models.OrderItem) bool { return i.ProductID == *f.ProductID }) {
			continue
		}
		o.Items = slices.Clone(o.Items)
		out = append(out, o)
	}
	return newestFirst(out, func(o models.Order) int64 { return o.ID }), nil
}
