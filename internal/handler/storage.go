package handler

import (
	"net/http"
	"time"

	"github.com/honeynil/agri-invest-service/internal/models"
	service "github.com/honeynil/agri-invest-service/internal/services"
	"github.com/shopspring/decimal"
)

type planRequest struct {
	ProductName           string          `json:"product_name" validate:"required,max=200"`
	Description           string          `json:"description"`
	BuyingPricePerBag     decimal.Decimal `json:"buying_price_per_bag"`
	ProjectedSellingPrice decimal.Decimal `json:"projected_selling_price"`
	StorageCostPerBag     decimal.Decimal `json:"storage_cost_per_bag"`
	StorageDueDate        time.Time       `json:"storage_due_date" validate:"required"`
	TotalQuantity         int             `json:"total_quantity" validate:"required,gt=0"`
	AvailableQuantity     *int            `json:"available_quantity" validate:"omitempty,gte=0"`
	MinimumQuantity       int             `json:"minimum_quantity" validate:"gte=0"`
	MaximumQuantity       int             `json:"maximum_quantity" validate:"gte=0"`
	IsActive              *bool           `json:"is_active"`
}

func (req planRequest) model() *models.StoragePlan {
	plan := &models.StoragePlan{
		ProductName:           req.ProductName,
		Description:           req.Description,
		BuyingPricePerBag:     req.BuyingPricePerBag,
		ProjectedSellingPrice: req.ProjectedSellingPrice,
		StorageCostPerBag:     req.StorageCostPerBag,
		StorageDueDate:        req.StorageDueDate,
		TotalQuantity:         req.TotalQuantity,
		AvailableQuantity:     req.TotalQuantity,
		MinimumQuantity:       req.MinimumQuantity,
		MaximumQuantity:       req.MaximumQuantity,
		IsActive:              true,
	}
	if req.AvailableQuantity != nil {
		plan.AvailableQuantity = *req.AvailableQuantity
	}
	if req.IsActive != nil {
		plan.IsActive = *req.IsActive
	}
	return plan
}

type purchaseRequest struct {
	PlanID        int64  `json:"storage_plan" validate:"required,gt=0"`
	Quantity      int    `json:"quantity_bags" validate:"required,gt=0"`
	CustomerName  string `json:"customer_name" validate:"required,max=200"`
	CustomerEmail string `json:"customer_email" validate:"required,email"`
	CustomerPhone string `json:"customer_phone" validate:"required,max=20"`
}

type purchaseResponse struct {
	Investment *models.StorageInvestment `json:"investment"`
	Payment    *models.Payment           `json:"payment"`
}

type storageUpdateRequest struct {
	Type               string           `json:"update_type" validate:"required,oneof=storage_start quality_check price_update maturity sale_complete general"`
	Title              string           `json:"title" validate:"required,max=200"`
	Message            string           `json:"message" validate:"required"`
	CurrentMarketPrice *decimal.Decimal `json:"current_market_price"`
}

func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	h.listPlans(w, r, true)
}

func (h *Handler) AdminListPlans(w http.ResponseWriter, r *http.Request) {
	h.listPlans(w, r, false)
}

func (h *Handler) listPlans(w http.ResponseWriter, r *http.Request, activeOnly bool) {
	plans, err := h.Storage.ListPlans(r.Context(), activeOnly)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plans)
}

func (h *Handler) GetPlan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	plan, err := h.Storage.GetPlan(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (h *Handler) AdminCreatePlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if !h.decode(w, r, &req) {
		return
	}
	plan := req.model()
	if err := h.Storage.CreatePlan(r.Context(), plan); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, plan)
}

func (h *Handler) AdminUpdatePlan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req planRequest
	if !h.decode(w, r, &req) {
		return
	}
	plan := req.model()
	plan.ID = id
	if req.AvailableQuantity == nil {
		current, err := h.Storage.GetPlan(r.Context(), id)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		plan.AvailableQuantity = current.AvailableQuantity
	}
	if err := h.Storage.UpdatePlan(r.Context(), plan); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (h *Handler) AdminDeletePlan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.Storage.DeletePlan(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) PurchaseStorage(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req purchaseRequest
	if !h.decode(w, r, &req) {
		return
	}
	inv, payment, err := h.Storage.Purchase(r.Context(), userID, service.PurchaseInput{
		PlanID:        req.PlanID,
		Quantity:      req.Quantity,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		CustomerPhone: req.CustomerPhone,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, purchaseResponse{Investment: inv, Payment: payment})
}

func (h *Handler) ListStorage(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	h.listStorage(w, r, models.StorageFilter{
		UserID: &userID,
		Status: models.StorageStatus(r.URL.Query().Get("status")),
	})
}

func (h *Handler) AdminListStorage(w http.ResponseWriter, r *http.Request) {
	userID, err := queryID(r, "user_id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	planID, err := queryID(r, "plan_id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.listStorage(w, r, models.StorageFilter{
		UserID: userID,
		PlanID: planID,
		Status: models.StorageStatus(r.URL.Query().Get("status")),
	})
}

func (h *Handler) listStorage(w http.ResponseWriter, r *http.Request, filter models.StorageFilter) {
	items, err := h.Storage.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) GetStorage(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	inv, err := h.Storage.Get(r.Context(), &userID, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (h *Handler) MatureStorage(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	inv, err := h.Storage.Mature(r.Context(), userID, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (h *Handler) AdminCompleteStorage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	inv, err := h.Storage.Complete(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (h *Handler) StorageUpdates(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	updates, err := h.Storage.Updates(r.Context(), &userID, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updates)
}

func (h *Handler) AdminAddStorageUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req storageUpdateRequest
	if !h.decode(w, r, &req) {
		return
	}
	update := &models.StorageUpdate{
		InvestmentID:       id,
		Type:               models.StorageUpdateType(req.Type),
		Title:              req.Title,
		Message:            req.Message,
		CurrentMarketPrice: req.CurrentMarketPrice,
	}
	if err := h.Storage.AddUpdate(r.Context(), update); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, update)
}

func (h *Handler) StorageDashboard(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	h.storageDashboard(w, r, &userID)
}

func (h *Handler) AdminStorageDashboard(w http.ResponseWriter, r *http.Request) {
	h.storageDashboard(w, r, nil)
}

func (h *Handler) storageDashboard(w http.ResponseWriter, r *http.Request, userID *int64) {
	dash, err := h.Storage.Dashboard(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dash)
}
