package api

import (
	"encoding/json"
	"net/http"

	"ms-pricing/internal/analytics"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	Service *analytics.Service
}

func (h *Handler) GetRuleStats(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "ruleId")

	stats, err := h.Service.RuleStats(r.Context(), ruleID)
	if err != nil {
		http.Error(w, "Could not load rule stats: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

func (h *Handler) GetRedemptions(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")

	summaries, err := h.Service.Redemptions(r.Context(), from, to)
	if err != nil {
		http.Error(w, "Could not load redemption report: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summaries)
}
