package handler

import (
	"net/http"

	"github.com/honeynil/agri-invest-service/internal/models"
	service "github.com/honeynil/agri-invest-service/internal/services"
	"github.com/shopspring/decimal"
)

type createInvestmentRequest struct {
	PackageID int64           `json:"package_id" validate:"required,gt=0"`
	Amount    decimal.Decimal `json:"amount"`
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type forceCompleteRequest struct {
	ActualReturn *decimal.Decimal `json:"actual_return"`
}

type investmentPatchRequest struct {
	Status       *string          `json:"status" validate:"omitempty,oneof=pending active completed matured cancelled failed"`
	ActualReturn *decimal.Decimal `json:"actual_return"`
}

func (h *Handler) CreateInvestment(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req createInvestmentRequest
	if !h.decode(w, r, &req) {
		return
	}
	inv, err := h.Investments.Create(r.Context(), userID, req.PackageID, req.Amount)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

func (h *Handler) ListInvestments(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	h.listInvestments(w, r, models.InvestmentFilter{
		UserID: &userID,
		Status: models.InvestmentStatus(r.URL.Query().Get("status")),
	})
}

func (h *Handler) investmentsByStatus(status models.InvestmentStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := currentUser(w, r)
		if !ok {
			return
		}
		h.listInvestments(w, r, models.InvestmentFilter{UserID: &userID, Status: status})
	}
}

func (h *Handler) AdminListInvestments(w http.ResponseWriter, r *http.Request) {
	userID, err := queryID(r, "user_id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	packageID, err := queryID(r, "package_id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.listInvestments(w, r, models.InvestmentFilter{
		UserID:         userID,
		PackageID:      packageID,
		Status:         models.InvestmentStatus(r.URL.Query().Get("status")),
		IncludeDeleted: r.URL.Query().Get("include_deleted") == "true",
	})
}

func (h *Handler) listInvestments(w http.ResponseWriter, r *http.Request, filter models.InvestmentFilter) {
	items, err := h.Investments.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) InvestmentSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	summary, err := h.Investments.Summary(r.Context(), &userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) AdminInvestmentStats(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Investments.Summary(r.Context(), nil)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) WithdrawableInvestments(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	items, err := h.Investments.Withdrawable(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// ownedInvestmentAction covers the user-scoped /investments/{id} routes.
func (h *Handler) ownedInvestmentAction(w http.ResponseWriter, r *http.Request, fn func(userID, id int64) (any, error)) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out, err := fn(userID, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if out == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetInvestment(w http.ResponseWriter, r *http.Request) {
	h.ownedInvestmentAction(w, r, func(userID, id int64) (any, error) {
		return h.Investments.Get(r.Context(), userID, id)
	})
}

func (h *Handler) InvestmentPaymentStatus(w http.ResponseWriter, r *http.Request) {
	h.ownedInvestmentAction(w, r, func(userID, id int64) (any, error) {
		return h.Investments.PaymentStatus(r.Context(), userID, id)
	})
}

func (h *Handler) CompleteInvestment(w http.ResponseWriter, r *http.Request) {
	h.ownedInvestmentAction(w, r, func(userID, id int64) (any, error) {
		return h.Investments.Complete(r.Context(), userID, id)
	})
}

func (h *Handler) CancelInvestment(w http.ResponseWriter, r *http.Request) {
	h.ownedInvestmentAction(w, r, func(userID, id int64) (any, error) {
		return nil, h.Investments.Cancel(r.Context(), userID, id)
	})
}

// adminInvestmentAction runs fn on the {id} path variable and writes the result.
func (h *Handler) adminInvestmentAction(w http.ResponseWriter, r *http.Request, fn func(id int64) (*models.Investment, error)) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	inv, err := fn(id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (h *Handler) AdminGetInvestment(w http.ResponseWriter, r *http.Request) {
	h.adminInvestmentAction(w, r, func(id int64) (*models.Investment, error) {
		return h.Investments.AdminGet(r.Context(), id)
	})
}

func (h *Handler) AdminApproveInvestment(w http.ResponseWriter, r *http.Request) {
	h.adminInvestmentAction(w, r, func(id int64) (*models.Investment, error) {
		return h.Investments.Approve(r.Context(), id)
	})
}

func (h *Handler) AdminRejectInvestment(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	h.adminInvestmentAction(w, r, func(id int64) (*models.Investment, error) {
		return h.Investments.Reject(r.Context(), id, req.Reason)
	})
}

func (h *Handler) AdminForceApprove(w http.ResponseWriter, r *http.Request) {
	h.adminInvestmentAction(w, r, func(id int64) (*models.Investment, error) {
		return h.Investments.ForceApprove(r.Context(), id)
	})
}

func (h *Handler) AdminForceComplete(w http.ResponseWriter, r *http.Request) {
	var req forceCompleteRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	h.adminInvestmentAction(w, r, func(id int64) (*models.Investment, error) {
		return h.Investments.ForceComplete(r.Context(), id, req.ActualReturn)
	})
}

func (h *Handler) AdminUpdateInvestment(w http.ResponseWriter, r *http.Request) {
	var req investmentPatchRequest
	if !h.decode(w, r, &req) {
		return
	}
	patch := service.InvestmentPatch{ActualReturn: req.ActualReturn}
	if req.Status != nil {
		status := models.InvestmentStatus(*req.Status)
		patch.Status = &status
	}
	h.adminInvestmentAction(w, r, func(id int64) (*models.Investment, error) {
		return h.Investments.Update(r.Context(), id, patch, true)
	})
}

func (h *Handler) AdminDeleteInvestment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.Investments.HardDelete(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
