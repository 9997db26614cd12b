package models

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/uptrace/bun"
)

// DiscountType selects the calculation formula for a rule.
type DiscountType string

const (
	DiscountPercentage  DiscountType = "percentage"
	DiscountFixedAmount DiscountType = "fixed_amount"
	DiscountBuyXGetY    DiscountType = "buy_x_get_y"
	DiscountEarlyBird   DiscountType = "early_bird"
	DiscountGroup       DiscountType = "group"
)

// DiscountRule is a reusable promotional rule from the catalog.
// Rules with a Code require the customer to supply a matching promo code;
// rules without one are automatic and always structurally evaluated.
type DiscountRule struct {
	bun.BaseModel `bun:"table:discount_rules"`

	ID                 string         `bun:"id,pk" json:"id"`
	Name               string         `bun:"name,notnull" json:"name"`
	Description        string         `bun:"description,nullzero" json:"description,omitempty"`
	Code               string         `bun:"code,nullzero" json:"code,omitempty"`
	DiscountType       DiscountType   `bun:"discount_type,notnull" json:"discount_type"`
	DiscountPercentage *float64       `bun:"discount_percentage" json:"discount_percentage,omitempty"`
	DiscountAmount     *float64       `bun:"discount_amount" json:"discount_amount,omitempty"`
	Conditions         RuleConditions `bun:"conditions,type:jsonb" json:"conditions"`
	ValidFrom          time.Time      `bun:"valid_from,notnull" json:"valid_from"`
	ValidUntil         time.Time      `bun:"valid_until,notnull" json:"valid_until"`
	MaxUses            *int64         `bun:"max_uses" json:"max_uses,omitempty"`
	MaxUsesPerCustomer *int64         `bun:"max_uses_per_customer" json:"max_uses_per_customer,omitempty"`
	CurrentUses        int64          `bun:"current_uses,notnull,default:0" json:"current_uses"`
	Priority           int            `bun:"priority,notnull" json:"priority"`
	IsActive           bool           `bun:"is_active,notnull" json:"is_active"`
	IsCombinable       bool           `bun:"is_combinable,notnull" json:"is_combinable"`
	CreatedAt          time.Time      `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt          time.Time      `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

// RuleConditions is the closed set of predicate parameters a rule may carry.
// Condition keys this engine version does not know are collected in Unknown;
// a rule carrying any unknown key is never eligible (fail-closed).
type RuleConditions struct {
	MinPax         *int     `json:"min_pax,omitempty"`
	ServiceTypes   []string `json:"service_types,omitempty"`
	MinAdvanceDays *int     `json:"min_advance_days,omitempty"`
	MinGroupSize   *int     `json:"min_group_size,omitempty"`
	BuyQuantity    *int     `json:"buy_quantity,omitempty"`
	GetQuantity    *int     `json:"get_quantity,omitempty"`

	Unknown []string `json:"-"`
}

var knownConditionKeys = map[string]bool{
	"min_pax":          true,
	"service_types":    true,
	"min_advance_days": true,
	"min_group_size":   true,
	"buy_quantity":     true,
	"get_quantity":     true,
}

// UnmarshalJSON decodes the known predicate fields and records every key it
// does not recognise so the eligibility filter can fail closed on them.
func (c *RuleConditions) UnmarshalJSON(data []byte) error {
	type plain RuleConditions
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for key := range raw {
		if !knownConditionKeys[key] {
			p.Unknown = append(p.Unknown, key)
		}
	}
	sort.Strings(p.Unknown)

	*c = RuleConditions(p)
	return nil
}

// RuleSummary is the external projection of a rule returned by promo
// validation. It never exposes usage counters.
type RuleSummary struct {
	ID                 string       `json:"id"`
	Name               string       `json:"name"`
	Description        string       `json:"description,omitempty"`
	Code               string       `json:"code,omitempty"`
	DiscountType       DiscountType `json:"discount_type"`
	DiscountPercentage *float64     `json:"discount_percentage,omitempty"`
	DiscountAmount     *float64     `json:"discount_amount,omitempty"`
	ValidUntil         time.Time    `json:"valid_until"`
	IsCombinable       bool         `json:"is_combinable"`
}

// Summary builds the external projection of a rule.
func (r *DiscountRule) Summary() RuleSummary {
	return RuleSummary{
		ID:                 r.ID,
		Name:               r.Name,
		Description:        r.Description,
		Code:               r.Code,
		DiscountType:       r.DiscountType,
		DiscountPercentage: r.DiscountPercentage,
		DiscountAmount:     r.DiscountAmount,
		ValidUntil:         r.ValidUntil,
		IsCombinable:       r.IsCombinable,
	}
}
