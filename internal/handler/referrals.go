package handler

import (
	"net/http"

	"github.com/honeynil/agri-invest-service/internal/models"
)

func (h *Handler) MyReferralCode(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	code, err := h.Referrals.MyCode(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, code)
}

func (h *Handler) MyReferrals(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	h.referrals(w, r, models.ReferralFilter{
		ReferrerID: &userID,
		Status:     models.ReferralStatus(r.URL.Query().Get("status")),
	})
}

func (h *Handler) AdminReferrals(w http.ResponseWriter, r *http.Request) {
	referrerID, err := queryID(r, "referrer_id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	codeID, err := queryID(r, "code_id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.referrals(w, r, models.ReferralFilter{
		ReferrerID:     referrerID,
		ReferralCodeID: codeID,
		Status:         models.ReferralStatus(r.URL.Query().Get("status")),
	})
}

func (h *Handler) referrals(w http.ResponseWriter, r *http.Request, filter models.ReferralFilter) {
	items, err := h.Referrals.Referrals(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) MyEarnings(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	h.earnings(w, r, models.EarningFilter{
		ReferrerID: &userID,
		Status:     models.EarningStatus(r.URL.Query().Get("status")),
	})
}

func (h *Handler) AdminEarnings(w http.ResponseWriter, r *http.Request) {
	referrerID, err := queryID(r, "referrer_id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.earnings(w, r, models.EarningFilter{
		ReferrerID: referrerID,
		Status:     models.EarningStatus(r.URL.Query().Get("status")),
	})
}

func (h *Handler) earnings(w http.ResponseWriter, r *http.Request, filter models.EarningFilter) {
	items, err := h.Referrals.Earnings(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) MyReferralStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	stats, err := h.Referrals.Stats(r.Context(), &userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) AdminMarkEarningPaid(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	earning, err := h.Referrals.MarkEarningPaid(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, earning)
}

func (h *Handler) AdminReferralCodes(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Referrals.CodeStats(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
