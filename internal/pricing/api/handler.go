package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"ms-pricing/internal/logger"
	"ms-pricing/internal/models"
	"ms-pricing/internal/pricing"
)

type Handler struct {
	Engine *pricing.Engine
	Logger *logger.Logger
}

// CalculatePricing handles preview calculations: no side effects, safe to
// call repeatedly while the customer edits the booking form.
func (h *Handler) CalculatePricing(w http.ResponseWriter, r *http.Request) {
	var req models.PricingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	calc, err := h.Engine.Preview(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, calc)
}

// ValidatePromo checks a promo code against partial booking data. The
// verdict is always a 200: an invalid code is a result, not a failure.
func (h *Handler) ValidatePromo(w http.ResponseWriter, r *http.Request) {
	var req models.PromoValidationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.Engine.ValidatePromo(r.Context(), req.Code, req.BookingData)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// CommitPricing is the internal commit path invoked by the booking service
// when a booking is actually created. It reserves usage quota and returns
// the calculation whose applied rules the caller persists for audit.
func (h *Handler) CommitPricing(w http.ResponseWriter, r *http.Request) {
	var req models.PricingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	calc, err := h.Engine.Commit(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, calc)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var validationErr *pricing.ValidationError
	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"code":  "VALIDATION_ERROR",
			"field": validationErr.Field,
			"error": validationErr.Error(),
		})
	case errors.Is(err, pricing.ErrPromoCodeInvalid):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"code":  "PROMO_CODE_INVALID",
			"error": err.Error(),
		})
	case errors.Is(err, pricing.ErrPromoCodeExhausted):
		writeJSON(w, http.StatusConflict, map[string]string{
			"code":  "PROMO_CODE_EXHAUSTED",
			"error": err.Error(),
		})
	default:
		h.Logger.Error("API", "Pricing request failed: "+err.Error())
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"code":  "INTERNAL_ERROR",
			"error": "could not compute pricing",
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
