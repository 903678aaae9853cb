package handler

import (
	"net/http"

	"github.com/honeynil/agri-invest-service/internal/models"
	"github.com/shopspring/decimal"
)

type productRequest struct {
	Name        string          `json:"name" validate:"required,max=200"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock" validate:"gte=0"`
	Category    string          `json:"category" validate:"max=100"`
	IsActive    *bool           `json:"is_active"`
}

func (req productRequest) model() *models.Product {
	p := &models.Product{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Stock:       req.Stock,
		Category:    req.Category,
		IsActive:    true,
	}
	if req.IsActive != nil {
		p.IsActive = *req.IsActive
	}
	return p
}

type cartItemRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,gt=0"`
}

type cartQuantityRequest struct {
	Quantity int `json:"quantity" validate:"gte=0"`
}

type cartResponse struct {
	*models.Cart
	Total decimal.Decimal `json:"total"`
}

type checkoutRequest struct {
	Email     string `json:"email" validate:"required,email"`
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"required,max=100"`
	Phone     string `json:"phone" validate:"required,max=20"`
	Address   string `json:"address" validate:"required"`
	City      string `json:"city" validate:"required,max=100"`
	State     string `json:"state" validate:"required,max=100"`
}

type checkoutResponse struct {
	Order   *models.Order   `json:"order"`
	Payment *models.Payment `json:"payment"`
}

type orderStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending paid delivered cancelled"`
}

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	h.listProducts(w, r, true)
}

func (h *Handler) AdminListProducts(w http.ResponseWriter, r *http.Request) {
	h.listProducts(w, r, false)
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request, activeOnly bool) {
	items, err := h.Commerce.ListProducts(r.Context(), activeOnly)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.Commerce.GetProduct(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) AdminCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if !h.decode(w, r, &req) {
		return
	}
	p := req.model()
	if err := h.Commerce.CreateProduct(r.Context(), p); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) AdminUpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req productRequest
	if !h.decode(w, r, &req) {
		return
	}
	p := req.model()
	p.ID = id
	if err := h.Commerce.UpdateProduct(r.Context(), p); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) AdminDeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.Commerce.DeleteProduct(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeCart(w http.ResponseWriter, r *http.Request, cart *models.Cart, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cartResponse{Cart: cart, Total: cart.Total()})
}

func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	cart, err := h.Commerce.Cart(r.Context(), userID)
	h.writeCart(w, r, cart, err)
}

func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req cartItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	cart, err := h.Commerce.AddToCart(r.Context(), userID, req.ProductID, req.Quantity)
	h.writeCart(w, r, cart, err)
}

func (h *Handler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	productID, err := pathID(r, "product_id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req cartQuantityRequest
	if !h.decode(w, r, &req) {
		return
	}
	cart, err := h.Commerce.UpdateCartItem(r.Context(), userID, productID, req.Quantity)
	h.writeCart(w, r, cart, err)
}

func (h *Handler) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	productID, err := pathID(r, "product_id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	cart, err := h.Commerce.RemoveFromCart(r.Context(), userID, productID)
	h.writeCart(w, r, cart, err)
}

func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	if err := h.Commerce.ClearCart(r.Context(), userID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req checkoutRequest
	if !h.decode(w, r, &req) {
		return
	}
	order, payment, err := h.Commerce.Checkout(r.Context(), userID, models.ShippingDetails(req))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, checkoutResponse{Order: order, Payment: payment})
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	h.listOrders(w, r, models.OrderFilter{
		UserID: &userID,
		Status: models.OrderStatus(r.URL.Query().Get("status")),
	})
}

func (h *Handler) AdminListOrders(w http.ResponseWriter, r *http.Request) {
	userID, err := queryID(r, "user_id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	productID, err := queryID(r, "product_id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.listOrders(w, r, models.OrderFilter{
		UserID:    userID,
		ProductID: productID,
		Status:    models.OrderStatus(r.URL.Query().Get("status")),
	})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request, filter models.OrderFilter) {
	orders, err := h.Commerce.Orders(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	h.getOrder(w, r, &userID)
}

func (h *Handler) AdminGetOrder(w http.ResponseWriter, r *http.Request) {
	h.getOrder(w, r, nil)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request, userID *int64) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	order, err := h.Commerce.GetOrder(r.Context(), userID, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) AdminUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req orderStatusRequest
	if !h.decode(w, r, &req) {
		return
	}
	order, err := h.Commerce.UpdateOrderStatus(r.Context(), id, models.OrderStatus(req.Status))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}
