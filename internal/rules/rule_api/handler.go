package rule_api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"ms-pricing/internal/logger"
	"ms-pricing/internal/models"
	"ms-pricing/internal/pricing"
	"ms-pricing/internal/rules/db"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type Handler struct {
	DB     *db.DB
	Logger *logger.Logger
}

// ListRules returns the catalog; ?active=true narrows to active rules.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	var (
		rules []models.DiscountRule
		err   error
	)
	if r.URL.Query().Get("active") == "true" {
		rules, err = h.DB.ListActive(r.Context())
	} else {
		rules, err = h.DB.ListAll(r.Context())
	}
	if err != nil {
		http.Error(w, "Could not list rules: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if rules == nil {
		rules = []models.DiscountRule{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rules)
}

func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "ruleId")
	rule, err := h.DB.GetRuleByID(r.Context(), ruleID)
	if err != nil {
		http.Error(w, "Rule not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rule)
}

func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var rule models.DiscountRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if rule.Name == "" {
		http.Error(w, "Rule name is required", http.StatusBadRequest)
		return
	}
	if rule.ValidUntil.Before(rule.ValidFrom) {
		http.Error(w, "valid_until must not precede valid_from", http.StatusBadRequest)
		return
	}
	// Misconfigured rules are rejected here rather than silently skipped
	// during evaluation.
	if err := pricing.CheckRuleIntegrity(&rule); err != nil {
		http.Error(w, "Invalid rule configuration: "+err.Error(), http.StatusBadRequest)
		return
	}

	if rule.Code != "" {
		existing, err := h.DB.GetRuleByCode(r.Context(), rule.Code)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Could not check code uniqueness: "+err.Error(), http.StatusInternalServerError)
			return
		}
		if existing != nil {
			http.Error(w, "A rule with this code already exists", http.StatusConflict)
			return
		}
	}

	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	rule.CurrentUses = 0
	rule.IsActive = true
	rule.CreatedAt = time.Now()

	if err := h.DB.CreateRule(r.Context(), rule); err != nil {
		http.Error(w, "Could not create rule: "+err.Error(), http.StatusInternalServerError)
		return
	}

	h.Logger.LogRule("CREATE", rule.ID, rule.Name)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(rule)
}

func (h *Handler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "ruleId")

	existing, err := h.DB.GetRuleByID(r.Context(), ruleID)
	if err != nil {
		http.Error(w, "Rule not found", http.StatusNotFound)
		return
	}

	var update models.DiscountRule
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	// Ensure ID consistency; usage counters are never admin-editable.
	update.ID = ruleID
	update.CurrentUses = existing.CurrentUses

	if err := pricing.CheckRuleIntegrity(&update); err != nil {
		http.Error(w, "Invalid rule configuration: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.DB.UpdateRule(r.Context(), update); err != nil {
		http.Error(w, "Could not update rule: "+err.Error(), http.StatusInternalServerError)
		return
	}

	h.Logger.LogRule("UPDATE", ruleID, update.Name)

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Rule updated successfully"))
}

// DeleteRule soft-deactivates: rules referenced by past calculations must
// stay resolvable, so the catalog never hard-deletes.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "ruleId")

	if err := h.DB.DeactivateRule(r.Context(), ruleID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Rule not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Could not deactivate rule: "+err.Error(), http.StatusInternalServerError)
		return
	}

	h.Logger.LogRule("DEACTIVATE", ruleID, "rule soft-disabled")

	w.WriteHeader(http.StatusNoContent)
}
