package pricing

import (
	"errors"
	"fmt"

	"ms-pricing/internal/models"
)

// Terminal caller-facing failures. Anything else the engine recovers from
// locally by excluding the offending rule.
var (
	// ErrPromoCodeInvalid means the supplied code matches no active rule, or
	// matches one outside its validity window or whose conditions fail.
	ErrPromoCodeInvalid = errors.New("promo code is invalid")

	// ErrPromoCodeExhausted means the code matches a rule whose global or
	// per-customer usage cap is already reached.
	ErrPromoCodeExhausted = errors.New("promo code usage limit reached")

	// ErrQuotaExhausted is returned by usage stores when a conditional
	// increment finds the cap already reached. Never surfaced to callers.
	ErrQuotaExhausted = errors.New("rule usage quota exhausted")
)

// ValidationError reports a malformed request field. Surfaced immediately,
// no partial processing.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// validateRequest rejects requests the engine must not process at all.
func validateRequest(req models.PricingRequest) error {
	if req.ServiceType == "" {
		return &ValidationError{Field: "service_type", Message: "must not be empty"}
	}
	if req.BasePrice <= 0 {
		return &ValidationError{Field: "base_price", Message: "must be greater than zero"}
	}
	if req.PaxCount < 1 {
		return &ValidationError{Field: "pax_count", Message: "must be at least 1"}
	}
	if req.StartDate.IsZero() {
		return &ValidationError{Field: "start_date", Message: "must be set"}
	}
	if req.EndDate != nil && req.EndDate.Before(req.StartDate) {
		return &ValidationError{Field: "end_date", Message: "must not precede start_date"}
	}
	return nil
}
