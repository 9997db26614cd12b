package models

import (
	"time"

	"github.com/uptrace/bun"
)

// PricingRequest is the ephemeral input to a pricing calculation. The same
// shape is used for previews and for the internal commit path; BookingID is
// only set by the booking service on commit, for audit.
type PricingRequest struct {
	ServiceType string     `json:"service_type"`
	BasePrice   float64    `json:"base_price"`
	PaxCount    int        `json:"pax_count"`
	StartDate   time.Time  `json:"start_date"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	CustomerID  string     `json:"customer_id,omitempty"`
	PromoCode   string     `json:"promo_code,omitempty"`
	BookingID   string     `json:"booking_id,omitempty"`
}

// AppliedRule records the monetary effect of one rule inside a calculation,
// in application order.
type AppliedRule struct {
	RuleID         string       `json:"rule_id"`
	RuleName       string       `json:"rule_name"`
	DiscountType   DiscountType `json:"discount_type"`
	DiscountAmount float64      `json:"discount_amount"`
}

// PricingCalculation is the result of a pricing run.
// TotalPrice is always BasePrice - DiscountAmount and never negative.
type PricingCalculation struct {
	BasePrice      float64       `json:"base_price"`
	DiscountAmount float64       `json:"discount_amount"`
	TotalPrice     float64       `json:"total_price"`
	AppliedRules   []AppliedRule `json:"applied_rules"`
	Currency       string        `json:"currency"`
}

// PromoValidationRequest checks a promo code against partial booking data
// without running a full calculation.
type PromoValidationRequest struct {
	Code        string         `json:"code"`
	BookingData PricingRequest `json:"bookingData"`
}

// PromoValidationResult carries the verdict for a promo code: either the
// resolved rule summary or an explicit invalid/expired/exhausted reason.
type PromoValidationResult struct {
	Valid  bool         `json:"valid"`
	Reason string       `json:"reason,omitempty"`
	Rule   *RuleSummary `json:"rule,omitempty"`
}

// RuleUsage is one committed redemption of a rule, persisted for audit and
// for compensating releases when a booking is cancelled.
type RuleUsage struct {
	bun.BaseModel `bun:"table:rule_usage"`

	ID             string    `bun:"id,pk" json:"id"`
	RuleID         string    `bun:"rule_id,notnull" json:"rule_id"`
	RuleName       string    `bun:"rule_name,notnull" json:"rule_name"`
	BookingID      string    `bun:"booking_id,nullzero" json:"booking_id,omitempty"`
	CustomerID     string    `bun:"customer_id,nullzero" json:"customer_id,omitempty"`
	DiscountAmount float64   `bun:"discount_amount,notnull" json:"discount_amount"`
	CommittedAt    time.Time `bun:"committed_at,notnull,default:current_timestamp" json:"committed_at"`
}

// PricingCommittedEvent is published after a commit-mode calculation has
// reserved its usage quota.
type PricingCommittedEvent struct {
	BookingID      string        `json:"booking_id"`
	CustomerID     string        `json:"customer_id,omitempty"`
	BasePrice      float64       `json:"base_price"`
	DiscountAmount float64       `json:"discount_amount"`
	TotalPrice     float64       `json:"total_price"`
	Currency       string        `json:"currency"`
	AppliedRules   []AppliedRule `json:"applied_rules"`
	CommittedAt    time.Time     `json:"committed_at"`
}

// PricingReleasedEvent is published after a cancelled booking's rule usage
// has been released.
type PricingReleasedEvent struct {
	BookingID  string    `json:"booking_id"`
	RuleIDs    []string  `json:"rule_ids"`
	ReleasedAt time.Time `json:"released_at"`
}

// BookingCancelledEvent is the shape of the booking service's cancellation
// events consumed for compensating quota releases.
type BookingCancelledEvent struct {
	BookingID   string    `json:"booking_id"`
	CustomerID  string    `json:"customer_id,omitempty"`
	CancelledAt time.Time `json:"cancelled_at"`
}

// RuleStats aggregates the audit trail for one rule.
type RuleStats struct {
	RuleID          string  `json:"rule_id"`
	Redemptions     int     `json:"redemptions"`
	UniqueCustomers int     `json:"unique_customers"`
	TotalDiscount   float64 `json:"total_discount"`
}

// RedemptionSummary is one row of the redemption report, grouped by rule.
type RedemptionSummary struct {
	RuleID        string  `json:"rule_id"`
	RuleName      string  `json:"rule_name"`
	Redemptions   int     `json:"redemptions"`
	TotalDiscount float64 `json:"total_discount"`
}
