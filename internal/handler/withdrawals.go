package handler

import (
	"context"
	"net/http"

	"github.com/honeynil/agri-invest-service/internal/models"
)

type createWithdrawalRequest struct {
	Type          string  `json:"withdrawal_type" validate:"required,oneof=full interest reinvest"`
	InvestmentIDs []int64 `json:"investment_ids" validate:"omitempty,dive,gt=0"`
}

type notesRequest struct {
	Notes string `json:"admin_notes" validate:"max=2000"`
}

func (h *Handler) CreateWithdrawal(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req createWithdrawalRequest
	if !h.decode(w, r, &req) {
		return
	}
	wr, err := h.Withdrawals.Create(r.Context(), userID, models.WithdrawalType(req.Type), req.InvestmentIDs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, wr)
}

func (h *Handler) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	h.listWithdrawals(w, r, models.WithdrawalFilter{
		UserID: &userID,
		Status: models.WithdrawalStatus(r.URL.Query().Get("status")),
	})
}

func (h *Handler) AdminListWithdrawals(w http.ResponseWriter, r *http.Request) {
	userID, err := queryID(r, "user_id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.listWithdrawals(w, r, models.WithdrawalFilter{
		UserID: userID,
		Status: models.WithdrawalStatus(r.URL.Query().Get("status")),
	})
}

func (h *Handler) listWithdrawals(w http.ResponseWriter, r *http.Request, filter models.WithdrawalFilter) {
	items, err := h.Withdrawals.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) GetWithdrawal(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	wr, err := h.Withdrawals.Get(r.Context(), &userID, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wr)
}

func (h *Handler) AdminWithdrawalStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Withdrawals.Stats(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type withdrawalAction func(ctx context.Context, id int64, notes string) (*models.WithdrawalRequest, error)

// withdrawalTransition handles the admin routes that take optional notes.
func (h *Handler) withdrawalTransition(action withdrawalAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		var req notesRequest
		if !h.decodeOptional(w, r, &req) {
			return
		}
		wr, err := action(r.Context(), id, req.Notes)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, wr)
	}
}

func (h *Handler) AdminApproveWithdrawal(w http.ResponseWriter, r *http.Request) {
	h.withdrawalTransition(h.Withdrawals.Approve)(w, r)
}

func (h *Handler) AdminRejectWithdrawal(w http.ResponseWriter, r *http.Request) {
	h.withdrawalTransition(h.Withdrawals.Reject)(w, r)
}

func (h *Handler) AdminMarkWithdrawalPaid(w http.ResponseWriter, r *http.Request) {
	h.withdrawalTransition(h.Withdrawals.MarkPaid)(w, r)
}

func (h *Handler) AdminWithdrawalNotes(w http.ResponseWriter, r *http.Request) {
	h.withdrawalTransition(h.Withdrawals.SetNotes)(w, r)
}

func (h *Handler) AdminDisburseWithdrawal(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	wr, err := h.Withdrawals.Disburse(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wr)
}
