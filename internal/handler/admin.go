package handler

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/honeynil/agri-invest-service/internal/models"
	service "github.com/honeynil/agri-invest-service/internal/services"
	pkgerrors "github.com/honeynil/agri-invest-service/pkg/errors"
	"github.com/shopspring/decimal"
)

type ledgerPatchRequest struct {
	Amount *decimal.Decimal `json:"amount"`
	Status *string          `json:"status" validate:"omitempty,min=1,max=20"`
}

func (h *Handler) AdminDashboard(w http.ResponseWriter, r *http.Request) {
	dash, err := h.Admin.Dashboard(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dash)
}

// AdminLedger lists the combined investment, storage and order ledger.
// ?source=transactions switches to the raw transaction log.
func (h *Handler) AdminLedger(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("source") == "transactions" {
		h.adminTransactions(w, r)
		return
	}
	entries, err := h.Admin.Ledger(r.Context(), service.LedgerFilter{
		Kind:   models.LedgerKind(q.Get("kind")),
		Status: q.Get("status"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) adminTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID, err := queryID(r, "user_id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	filter := models.TransactionFilter{
		UserID: userID,
		Type:   models.TransactionType(q.Get("type")),
		Status: models.StatusType(q.Get("status")),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			h.badRequest(w, "invalid limit")
			return
		}
		filter.Limit = limit
	}
	txs, err := h.Admin.Transactions(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

func (h *Handler) AdminTransactionStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Admin.TransactionStats(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func ledgerRef(r *http.Request) (models.LedgerRef, error) {
	ref, err := models.ParseLedgerRef(mux.Vars(r)["ref"])
	if err != nil {
		return models.LedgerRef{}, pkgerrors.Business(pkgerrors.ErrInvalidLedgerRef, "invalid transaction id: %v", err)
	}
	return ref, nil
}

func (h *Handler) AdminLedgerEntry(w http.ResponseWriter, r *http.Request) {
	ref, err := ledgerRef(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	entry, err := h.Admin.LedgerEntry(r.Context(), ref)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) AdminPatchLedger(w http.ResponseWriter, r *http.Request) {
	ref, err := ledgerRef(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req ledgerPatchRequest
	if !h.decode(w, r, &req) {
		return
	}
	entry, err := h.Admin.PatchLedger(r.Context(), ref, models.LedgerPatch{Amount: req.Amount, Status: req.Status})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
