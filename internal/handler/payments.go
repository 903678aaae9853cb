package handler

import (
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/honeynil/agri-invest-service/internal/models"
	"github.com/shopspring/decimal"
)

const maxWebhookBody = 1 << 20

type initializePaymentRequest struct {
	Kind     string `json:"kind" validate:"omitempty,oneof=investment storage order"`
	TargetID int64  `json:"target_id" validate:"required,gt=0"`
}

type refundRequest struct {
	Amount *decimal.Decimal `json:"amount"`
	Reason string           `json:"reason" validate:"max=500"`
}

func (h *Handler) InitializePayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req initializePaymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	kind := models.PaymentKind(req.Kind)
	if kind == "" {
		kind = models.PaymentForInvestment
	}
	payment, err := h.Payments.Initialize(r.Context(), userID, kind, req.TargetID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, payment)
}

func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	ref := mux.Vars(r)["reference"]
	// ownership check before the gateway round trip
	if _, err := h.Payments.Get(r.Context(), userID, ref); err != nil {
		h.writeError(w, r, err)
		return
	}
	payment, err := h.Payments.Verify(r.Context(), ref)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	payment, err := h.Payments.Get(r.Context(), userID, mux.Vars(r)["reference"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	h.listPayments(w, r, models.PaymentFilter{
		UserID: &userID,
		Kind:   models.PaymentKind(r.URL.Query().Get("kind")),
		Status: models.PaymentStatus(r.URL.Query().Get("status")),
	})
}

func (h *Handler) AdminListPayments(w http.ResponseWriter, r *http.Request) {
	userID, err := queryID(r, "user_id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.listPayments(w, r, models.PaymentFilter{
		UserID: userID,
		Kind:   models.PaymentKind(r.URL.Query().Get("kind")),
		Status: models.PaymentStatus(r.URL.Query().Get("status")),
	})
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request, filter models.PaymentFilter) {
	items, err := h.Payments.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) AdminRefundPayment(w http.ResponseWriter, r *http.Request) {
	var req refundRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	payment, err := h.Payments.Refund(r.Context(), mux.Vars(r)["reference"], req.Amount, req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

// PaystackWebhook needs the raw body; the signature covers the exact bytes.
func (h *Handler) PaystackWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		h.badRequest(w, "unreadable body")
		return
	}
	if err := h.Payments.Webhook(r.Context(), body, r.Header.Get("X-Paystack-Signature")); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
