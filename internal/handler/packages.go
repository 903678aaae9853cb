package handler

import (
	"net/http"
	"time"

	"github.com/honeynil/agri-invest-service/internal/models"
	"github.com/shopspring/decimal"
)

type packageRequest struct {
	Name           string          `json:"name" validate:"required,max=200"`
	Description    string          `json:"description"`
	Category       string          `json:"category" validate:"required,oneof=grains cash_crops livestock aquaculture processing horticulture"`
	RiskLevel      string          `json:"risk_level" validate:"required,oneof=low medium high"`
	Status         string          `json:"status" validate:"omitempty,oneof=active inactive completed suspended"`
	MinAmount      decimal.Decimal `json:"min_amount"`
	MaxAmount      decimal.Decimal `json:"max_amount"`
	InterestRate   decimal.Decimal `json:"interest_rate"`
	DurationMonths int             `json:"duration_months" validate:"required,gt=0"`
	TotalSlots     int             `json:"total_slots" validate:"required,gt=0"`
	AvailableSlots *int            `json:"available_slots" validate:"omitempty,gte=0"`
	Location       string          `json:"location"`
	StartDate      time.Time       `json:"start_date" validate:"required"`
	EndDate        time.Time       `json:"end_date" validate:"required"`
}

func (req packageRequest) model() *models.InvestmentPackage {
	status := models.PackageStatus(req.Status)
	if status == "" {
		status = models.PackageActive
	}
	pkg := &models.InvestmentPackage{
		Name:           req.Name,
		Description:    req.Description,
		Category:       req.Category,
		RiskLevel:      req.RiskLevel,
		Status:         status,
		MinAmount:      req.MinAmount,
		MaxAmount:      req.MaxAmount,
		InterestRate:   req.InterestRate,
		DurationMonths: req.DurationMonths,
		TotalSlots:     req.TotalSlots,
		AvailableSlots: req.TotalSlots,
		Location:       req.Location,
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
	}
	if req.AvailableSlots != nil {
		pkg.AvailableSlots = *req.AvailableSlots
	}
	return pkg
}

// ListPackages shows active packages unless a status filter is given.
func (h *Handler) ListPackages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.PackageFilter{
		Status:    models.PackageActive,
		Category:  q.Get("category"),
		RiskLevel: q.Get("risk_level"),
	}
	if s := q.Get("status"); s != "" {
		filter.Status = models.PackageStatus(s)
	}
	h.listPackages(w, r, filter)
}

func (h *Handler) AdminListPackages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	h.listPackages(w, r, models.PackageFilter{
		Status:    models.PackageStatus(q.Get("status")),
		Category:  q.Get("category"),
		RiskLevel: q.Get("risk_level"),
	})
}

func (h *Handler) listPackages(w http.ResponseWriter, r *http.Request, filter models.PackageFilter) {
	pkgs, err := h.Packages.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pkgs)
}

func (h *Handler) GetPackage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	pkg, err := h.Packages.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pkg)
}

func (h *Handler) PackageCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Packages.Categories())
}

func (h *Handler) PackageStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Packages.Stats(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) AdminCreatePackage(w http.ResponseWriter, r *http.Request) {
	var req packageRequest
	if !h.decode(w, r, &req) {
		return
	}
	pkg := req.model()
	if err := h.Packages.Create(r.Context(), pkg); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, pkg)
}

func (h *Handler) AdminUpdatePackage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req packageRequest
	if !h.decode(w, r, &req) {
		return
	}
	pkg := req.model()
	pkg.ID = id
	if req.AvailableSlots == nil {
		current, err := h.Packages.Get(r.Context(), id)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		pkg.AvailableSlots = current.AvailableSlots
	}
	if err := h.Packages.Update(r.Context(), pkg); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pkg)
}

func (h *Handler) AdminDeletePackage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.Packages.Delete(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
