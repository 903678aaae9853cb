package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/honeynil/agri-invest-service/internal/infrastructure/observability"
	"github.com/honeynil/agri-invest-service/internal/models"
	"github.com/honeynil/agri-invest-service/internal/repository"
	pkgerrors "github.com/honeynil/agri-invest-service/pkg/errors"
	"github.com/shopspring/decimal"
)

type CommerceService interface {
	ListProducts(ctx context.Context, activeOnly bool) ([]models.Product, error)
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	CreateProduct(ctx context.Context, p *models.Product) error
	UpdateProduct(ctx context.Context, p *models.Product) error
	DeleteProduct(ctx context.Context, id int64) error

	Cart(ctx context.Context, userID int64) (*models.Cart, error)
	AddToCart(ctx context.Context, userID, productID int64, qty int) (*models.Cart, error)
	UpdateCartItem(ctx context.Context, userID, productID int64, qty int) (*models.Cart, error)
	RemoveFromCart(ctx context.Context, userID, productID int64) (*models.Cart, error)
	ClearCart(ctx context.Context, userID int64) error

	Checkout(ctx context.Context, userID int64, shipping models.ShippingDetails) (*models.Order, *models.Payment, error)
	Orders(ctx context.Context, filter models.OrderFilter) ([]models.Order, error)
	GetOrder(ctx context.Context, userID *int64, id int64) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, status models.OrderStatus) (*models.Order, error)
}

type commerceService struct {
	store    repository.Store
	payments PaymentService
	notifier Notifier
	now      clock
}

func NewCommerceService(store repository.Store, payments PaymentService, notifier Notifier) *commerceService {
	return &commerceService{store: store, payments: payments, notifier: notifier, now: systemClock}
}

func (s *commerceService) ListProducts(ctx context.Context, activeOnly bool) ([]models.Product, error) {
	return s.store.Products().List(ctx, activeOnly)
}

func (s *commerceService) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	return s.store.Products().GetByID(ctx, id)
}

func validateProduct(p *models.Product) error {
	switch {
	case strings.TrimSpace(p.Name) == "":
		return pkgerrors.Business(pkgerrors.ErrInvalidInput, "name is required")
	case !p.Price.IsPositive():
		return pkgerrors.Business(pkgerrors.ErrInvalidInput, "price must be positive")
	case p.Stock < 0:
		return pkgerrors.Business(pkgerrors.ErrInvalidInput, "stock cannot be negative")
	}
	return nil
}

func (s *commerceService) CreateProduct(ctx context.Context, p *models.Product) error {
	if err := validateProduct(p); err != nil {
		return err
	}
	if err := s.store.Products().Create(ctx, p); err != nil {
		slog.Error("product create failed", "name", p.Name, "error", err)
		return err
	}
	slog.Info("product created", "product_id", p.ID, "name", p.Name, "stock", p.Stock)
	return nil
}

func (s *commerceService) UpdateProduct(ctx context.Context, p *models.Product) error {
	if err := validateProduct(p); err != nil {
		return err
	}
	if err := s.store.Products().Update(ctx, p); err != nil {
		slog.Warn("product update failed", "product_id", p.ID, "error", err)
		return err
	}
	slog.Info("product updated", "product_id", p.ID, "stock", p.Stock, "active", p.IsActive)
	return nil
}

func (s *commerceService) DeleteProduct(ctx context.Context, id int64) error {
	if err := s.store.Products().Delete(ctx, id); err != nil {
		slog.Warn("product delete failed", "product_id", id, "error", err)
		return err
	}
	slog.Info("product deleted", "product_id", id)
	return nil
}

func (s *commerceService) Cart(ctx context.Context, userID int64) (*models.Cart, error) {
	return s.store.Carts().Get(ctx, userID)
}

func currentQty(cart *models.Cart, productID int64) int {
	for _, item := range cart.Items {
		if item.ProductID == productID {
			return item.Quantity
		}
	}
	return 0
}

// setCartQty stores qty for the product after checking it against stock.
// add makes qty relative to what is already in the cart.
func (s *commerceService) setCartQty(ctx context.Context, userID, productID int64, qty int, add bool) (*models.Cart, error) {
	ctx, span := startSpan(ctx, "commerce-service", "SetCartItem")
	defer span.End()

	if qty <= 0 && add {
		return nil, fail(span, pkgerrors.Business(pkgerrors.ErrInvalidInput, "quantity must be positive"), "invalid quantity")
	}
	var cart *models.Cart
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		current, err := repos.Carts().Get(ctx, userID)
		if err != nil {
			return err
		}
		next := qty
		if add {
			next += currentQty(current, productID)
		}
		if next > 0 {
			product, err := repos.Products().GetByID(ctx, productID)
			if err != nil {
				return err
			}
			if !product.IsActive {
				return pkgerrors.Business(pkgerrors.ErrProductNotFound, "%s is no longer sold", product.Name)
			}
			if next > product.Stock {
				return pkgerrors.Business(pkgerrors.ErrInsufficientCapacity, "only %d of %s in stock", product.Stock, product.Name)
			}
		}
		if err := repos.Carts().SetItem(ctx, userID, productID, next); err != nil {
			return err
		}
		cart, err = repos.Carts().Get(ctx, userID)
		return err
	})
	if err != nil {
		return nil, fail(span, err, "cart update failed")
	}
	return cart, nil
}

func (s *commerceService) AddToCart(ctx context.Context, userID, productID int64, qty int) (*models.Cart, error) {
	return s.setCartQty(ctx, userID, productID, qty, true)
}

func (s *commerceService) UpdateCartItem(ctx context.Context, userID, productID int64, qty int) (*models.Cart, error) {
	if qty < 0 {
		return nil, pkgerrors.Business(pkgerrors.ErrInvalidInput, "quantity cannot be negative")
	}
	return s.setCartQty(ctx, userID, productID, qty, false)
}

func (s *commerceService) RemoveFromCart(ctx context.Context, userID, productID int64) (*models.Cart, error) {
	return s.setCartQty(ctx, userID, productID, 0, false)
}

func (s *commerceService) ClearCart(ctx context.Context, userID int64) error {
	return s.store.Carts().Clear(ctx, userID)
}

func newOrderReference() string {
	return "ORD-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}

// Checkout turns the cart into a pending order and opens a checkout for it.
// Stock is only taken once the payment succeeds.
func (s *commerceService) Checkout(ctx context.Context, userID int64, shipping models.ShippingDetails) (*models.Order, *models.Payment, error) {
	ctx, span := startSpan(ctx, "commerce-service", "Checkout")
	defer span.End()

	if shipping.Address == "" || shipping.City == "" || shipping.State == "" {
		return nil, nil, fail(span, pkgerrors.Business(pkgerrors.ErrInvalidInput, "address, city and state are required"), "invalid shipping")
	}

	var order *models.Order
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		cart, err := repos.Carts().Get(ctx, userID)
		if err != nil {
			return err
		}
		if len(cart.Items) == 0 {
			return pkgerrors.Business(pkgerrors.ErrEmptyCart, "your cart is empty")
		}
		user, err := repos.Users().GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if shipping.Email == "" {
			shipping.Email = user.Email
		}
		if shipping.FirstName == "" && shipping.LastName == "" {
			shipping.FirstName, shipping.LastName = user.FirstName, user.LastName
		}

		order = &models.Order{
			UserID:      userID,
			Reference:   newOrderReference(),
			Shipping:    shipping,
			TotalAmount: decimal.Zero,
			Status:      models.OrderPending,
		}
		for _, item := range cart.Items {
			product, err := repos.Products().GetByID(ctx, item.ProductID)
			if err != nil {
				return err
			}
			if !product.IsActive || item.Quantity > product.Stock {
				return pkgerrors.Business(pkgerrors.ErrInsufficientCapacity, "%s is out of stock", product.Name)
			}
			order.Items = append(order.Items, models.OrderItem{
				ProductID: product.ID,
				Name:      product.Name,
				Quantity:  item.Quantity,
				Price:     product.Price,
			})
			order.TotalAmount = order.TotalAmount.Add(product.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
		}
		if err := repos.Orders().Create(ctx, order); err != nil {
			return err
		}
		return repos.Carts().Clear(ctx, userID)
	})
	if err != nil {
		slog.Warn("checkout failed", "user_id", userID, "error", err)
		return nil, nil, fail(span, err, "checkout failed")
	}
	slog.Info("order placed", "order_id", order.ID, "reference", order.Reference, "user_id", userID, "total", order.TotalAmount)

	payment, err := s.payments.Initialize(ctx, userID, models.PaymentForOrder, order.ID)
	if err != nil {
		if !stderrors.Is(err, pkgerrors.ErrGateway) {
			s.abort(ctx, order.ID)
		}
		return nil, nil, fail(span, err, "payment initialize failed")
	}
	order.PaymentReference = payment.Reference
	return order, payment, nil
}

func (s *commerceService) abort(ctx context.Context, id int64) {
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		order, err := repos.Orders().GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		order.Status = models.OrderCancelled
		return repos.Orders().Update(ctx, order)
	})
	if err != nil {
		slog.Error("failed to cancel aborted order", "order_id", id, "error", err)
	}
}

func (s *commerceService) Orders(ctx context.Context, filter models.OrderFilter) ([]models.Order, error) {
	return s.store.Orders().List(ctx, filter)
}

func (s *commerceService) GetOrder(ctx context.Context, userID *int64, id int64) (*models.Order, error) {
	order, err := s.store.Orders().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if userID != nil && order.UserID != *userID {
		return nil, pkgerrors.ErrOrderNotFound
	}
	return order, nil
}

// UpdateOrderStatus is the admin fulfilment path. Orders become paid only
// through their payment; cancelling a paid order puts its stock back.
func (s *commerceService) UpdateOrderStatus(ctx context.Context, id int64, status models.OrderStatus) (*models.Order, error) {
	ctx, span := startSpan(ctx, "commerce-service", "UpdateOrderStatus")
	defer span.End()

	var (
		order *models.Order
		box   outbox
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		order, err = repos.Orders().GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !order.Status.CanTransition(status) {
			return pkgerrors.Business(pkgerrors.ErrInvalidTransition, "cannot move order from %s to %s", order.Status, status)
		}
		if status == models.OrderPaid {
			return pkgerrors.Business(pkgerrors.ErrInvalidTransition, "orders are marked paid by their payment")
		}
		if status == models.OrderCancelled && order.Status == models.OrderPaid {
			if err := releaseStock(ctx, repos, order.Items); err != nil {
				return err
			}
		}
		order.Status = status
		if err := repos.Orders().Update(ctx, order); err != nil {
			return err
		}
		box.add(order.UserID, models.NotificationOrder, fmt.Sprintf("Your order %s is now %s.", order.Reference, status))
		return nil
	})
	if err != nil {
		return nil, fail(span, err, "order status update failed")
	}
	box.flush(ctx, s.notifier)
	slog.Info("order status updated", "order_id", id, "status", status)
	return order, nil
}

func releaseStock(ctx context.Context, repos repository.Repositories, items []models.OrderItem) error {
	for _, item := range items {
		if _, err := repos.Products().Release(ctx, item.ProductID, item.Quantity); err != nil {
			return err
		}
	}
	return nil
}

// cancelOrdersWithProduct cancels the other pending orders that contain a
// product that just sold out.
func cancelOrdersWithProduct(ctx context.Context, repos repository.Repositories, productID, keepID int64, now time.Time, box *outbox) error {
	pending, err := repos.Orders().List(ctx, models.OrderFilter{Status: models.OrderPending, ProductID: &productID})
	if err != nil {
		return err
	}
	for i := range pending {
		o := &pending[i]
		if o.ID == keepID {
			continue
		}
		o.Status = models.OrderCancelled
		if err := repos.Orders().Update(ctx, o); err != nil {
			return err
		}
		if _, err := repos.Transactions().Create(ctx, &models.Transaction{
			UserID:           o.UserID,
			Type:             models.TypeRefund,
			Amount:           o.TotalAmount,
			Status:           models.StatusCompleted,
			PaymentReference: o.PaymentReference,
			Description:      fmt.Sprintf("Refund: order %s cancelled, item sold out", o.Reference),
			CompletedAt:      &now,
		}); err != nil {
			return err
		}
		observability.AutoCancelled.WithLabelValues("product_sold_out").Inc()
		box.add(o.UserID, models.NotificationOrder, fmt.Sprintf("Your order %s was cancelled because an item sold out.", o.Reference))
		slog.Info("pending order auto-cancelled", "order_id", o.ID, "product_id", productID)
	}
	return nil
}

type orderSettler struct{}

func (orderSettler) charge(ctx context.Context, repos repository.Repositories, userID, targetID int64) (*chargeInfo, error) {
	order, err := repos.Orders().GetByIDForUpdate(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, pkgerrors.ErrOrderNotFound
	}
	if order.Status != models.OrderPending {
		return nil, pkgerrors.Business(pkgerrors.ErrInvalidTransition, "order is %s and not awaiting payment", order.Status)
	}
	email := order.Shipping.Email
	if email == "" {
		user, err := repos.Users().GetByID(ctx, userID)
		if err != nil {
			return nil, err
		}
		email = user.Email
	}
	return &chargeInfo{Amount: order.TotalAmount, Email: email, Label: "order " + order.Reference}, nil
}

func (orderSettler) attach(ctx context.Context, repos repository.Repositories, targetID int64, reference string) error {
	order, err := repos.Orders().GetByIDForUpdate(ctx, targetID)
	if err != nil {
		return err
	}
	order.PaymentReference = reference
	return repos.Orders().Update(ctx, order)
}

// succeed takes stock for every line. If any line no longer fits, the stock
// taken so far goes back and the order is cancelled for a refund.
func (orderSettler) succeed(ctx context.Context, repos repository.Repositories, p *models.Payment, now time.Time, box *outbox) (bool, error) {
	order, err := repos.Orders().GetByIDForUpdate(ctx, p.TargetID)
	if err != nil {
		return false, err
	}
	if order.Status != models.OrderPending {
		slog.Warn("payment arrived for an order no longer pending", "order_id", order.ID, "status", order.Status, "reference", p.Reference)
		return true, nil
	}

	var soldOut []int64
	for i, item := range order.Items {
		remaining, err := repos.Products().Reserve(ctx, item.ProductID, item.Quantity)
		if stderrors.Is(err, pkgerrors.ErrInsufficientCapacity) {
			if err := releaseStock(ctx, repos, order.Items[:i]); err != nil {
				return false, err
			}
			order.Status = models.OrderCancelled
			if err := repos.Orders().Update(ctx, order); err != nil {
				return false, err
			}
			box.add(order.UserID, models.NotificationOrder, fmt.Sprintf("Your order %s could not be fulfilled because %s sold out.", order.Reference, item.Name))
			return true, nil
		}
		if err != nil {
			return false, err
		}
		if remaining == 0 {
			soldOut = append(soldOut, item.ProductID)
		}
	}

	order.Status = models.OrderPaid
	order.PaymentReference = p.Reference
	if err := repos.Orders().Update(ctx, order); err != nil {
		return false, err
	}
	box.add(order.UserID, models.NotificationOrder, fmt.Sprintf("Payment received for order %s.", order.Reference))

	for _, productID := range soldOut {
		observability.CapacityExhausted.WithLabelValues(string(models.PaymentForOrder)).Inc()
		if err := cancelOrdersWithProduct(ctx, repos, productID, order.ID, now, box); err != nil {
			return false, err
		}
	}
	return false, nil
}

func (orderSettler) reject(ctx context.Context, repos repository.Repositories, p *models.Payment, _ time.Time, box *outbox) error {
	order, err := repos.Orders().GetByIDForUpdate(ctx, p.TargetID)
	if err != nil {
		return err
	}
	if order.Status != models.OrderPending {
		return nil
	}
	order.Status = models.OrderCancelled
	if err := repos.Orders().Update(ctx, order); err != nil {
		return err
	}
	box.add(order.UserID, models.NotificationOrder, fmt.Sprintf("Payment for order %s did not go through; the order was cancelled.", order.Reference))
	return nil
}

func (orderSettler) refund(ctx context.Context, repos repository.Repositories, p *models.Payment, now time.Time, _ *outbox) error {
	order, err := repos.Orders().GetByIDForUpdate(ctx, p.TargetID)
	if err != nil {
		return err
	}
	if !order.Status.CanTransition(models.OrderCancelled) {
		return pkgerrors.Business(pkgerrors.ErrInvalidTransition, "order is %s and cannot be refunded", order.Status)
	}
	if order.Status == models.OrderPaid {
		if err := releaseStock(ctx, repos, order.Items); err != nil {
			return err
		}
	}
	order.Status = models.OrderCancelled
	if err := repos.Orders().Update(ctx, order); err != nil {
		return err
	}
	_, err = repos.Transactions().Create(ctx, refundEntry(p, p.Amount, "order "+order.Reference+" refunded", now))
	return err
}
