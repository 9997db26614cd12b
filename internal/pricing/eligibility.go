package pricing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ms-pricing/internal/logger"
	"ms-pricing/internal/models"
)

// CustomerUsage reads per-customer redemption counts. The read is a
// pre-check and may be stale; the authoritative check happens at commit.
type CustomerUsage interface {
	Uses(ctx context.Context, ruleID, customerID string) (int64, error)
}

// Filter narrows the rule catalog to rules whose conditions a request
// satisfies. All checks fail closed: a condition the filter cannot verify
// never grants a discount.
type Filter struct {
	Usage  CustomerUsage
	Logger *logger.Logger
}

// FilterResult carries the eligible set plus the fate of the supplied promo
// code, so the engine can distinguish "no discount" from "bad code".
type FilterResult struct {
	Eligible []models.DiscountRule

	// PromoMatched is true when the request's promo code survived filtering.
	PromoMatched bool
	// PromoExhausted is true when the code matched a rule but its global or
	// per-customer cap is reached.
	PromoExhausted bool
	// PromoReason explains why the code did not survive.
	PromoReason string
}

// Filter evaluates every rule against the request. Rules present in
// excluded are skipped outright (used by the commit retry path).
func (f *Filter) Filter(ctx context.Context, req models.PricingRequest, rules []models.DiscountRule, now time.Time, excluded map[string]bool) (*FilterResult, error) {
	result := &FilterResult{}

	for _, rule := range rules {
		if excluded[rule.ID] {
			continue
		}

		codeMatch := rule.Code != "" && rule.Code == req.PromoCode

		verdict, err := f.evaluate(ctx, req, rule, now)
		if err != nil {
			return nil, err
		}

		if verdict.eligible {
			result.Eligible = append(result.Eligible, rule)
			if codeMatch {
				result.PromoMatched = true
			}
			continue
		}

		// Track why the customer's code failed, for the error taxonomy.
		if codeMatch && !result.PromoMatched {
			result.PromoReason = verdict.reason
			result.PromoExhausted = verdict.exhausted
		}
	}

	if req.PromoCode != "" && !result.PromoMatched && result.PromoReason == "" {
		result.PromoReason = fmt.Sprintf("no rule matches code %q", req.PromoCode)
	}

	return result, nil
}

type verdict struct {
	eligible  bool
	exhausted bool
	reason    string
}

func ineligible(reason string) verdict { return verdict{reason: reason} }
func exhausted(reason string) verdict  { return verdict{reason: reason, exhausted: true} }

func (f *Filter) evaluate(ctx context.Context, req models.PricingRequest, rule models.DiscountRule, now time.Time) (verdict, error) {
	if !rule.IsActive {
		return ineligible("rule is not active"), nil
	}

	// Malformed rules are a data-integrity fault: log and exclude, never
	// fail the whole request.
	if err := CheckRuleIntegrity(&rule); err != nil {
		if f.Logger != nil {
			f.Logger.Warn("RULE", fmt.Sprintf("Excluding misconfigured rule %s: %v", rule.ID, err))
		}
		return ineligible("rule is misconfigured"), nil
	}

	// Validity window is inclusive on both ends, checked against the
	// booking's start date.
	if req.StartDate.Before(rule.ValidFrom) {
		return ineligible("rule is not yet valid for this start date"), nil
	}
	if req.StartDate.After(rule.ValidUntil) {
		return ineligible("rule has expired for this start date"), nil
	}

	// Code-gated rules require an exact, case-sensitive match. Automatic
	// rules (no code) are always structurally evaluated.
	if rule.Code != "" && rule.Code != req.PromoCode {
		return ineligible("promo code does not match"), nil
	}

	// A condition key this engine version cannot evaluate means the rule
	// is not eligible.
	if len(rule.Conditions.Unknown) > 0 {
		if f.Logger != nil {
			f.Logger.Warn("RULE", fmt.Sprintf("Rule %s carries unknown condition keys [%s], treating as not eligible", rule.ID, strings.Join(rule.Conditions.Unknown, ", ")))
		}
		return ineligible("rule has conditions this engine cannot verify"), nil
	}

	if v := evaluateConditions(req, rule, now); !v.eligible {
		return v, nil
	}

	// Global cap pre-check from the catalog snapshot.
	if rule.MaxUses != nil && rule.CurrentUses >= *rule.MaxUses {
		return exhausted("rule usage limit reached"), nil
	}

	// Per-customer cap pre-check. Without a customer id the cap is treated
	// as not applicable.
	if rule.MaxUsesPerCustomer != nil && *rule.MaxUsesPerCustomer > 0 && req.CustomerID != "" {
		uses, err := f.Usage.Uses(ctx, rule.ID, req.CustomerID)
		if err != nil {
			return verdict{}, fmt.Errorf("failed to read customer usage for rule %s: %w", rule.ID, err)
		}
		if uses >= *rule.MaxUsesPerCustomer {
			return exhausted("customer usage limit reached"), nil
		}
	}

	return verdict{eligible: true}, nil
}

func evaluateConditions(req models.PricingRequest, rule models.DiscountRule, now time.Time) verdict {
	cond := rule.Conditions

	if len(cond.ServiceTypes) > 0 {
		allowed := false
		for _, st := range cond.ServiceTypes {
			if st == req.ServiceType {
				allowed = true
				break
			}
		}
		if !allowed {
			return ineligible("service type is not covered by this rule")
		}
	}

	if cond.MinPax != nil && req.PaxCount < *cond.MinPax {
		return ineligible("pax count below rule minimum")
	}

	if cond.MinGroupSize != nil && req.PaxCount < *cond.MinGroupSize {
		return ineligible("group size below rule minimum")
	}

	if cond.MinAdvanceDays != nil {
		days := int(req.StartDate.Sub(now).Hours() / 24)
		if days < *cond.MinAdvanceDays {
			return ineligible("booking is not far enough in advance")
		}
	}

	// BuyXGetY needs at least one complete group to grant anything.
	if rule.DiscountType == models.DiscountBuyXGetY {
		if req.PaxCount < *cond.BuyQuantity+*cond.GetQuantity {
			return ineligible("not enough pax for a complete buy/get group")
		}
	}

	return verdict{eligible: true}
}

// CheckRuleIntegrity verifies that a rule's discount fields match its type.
// Shared with the admin write path so misconfigured rules are rejected at
// creation rather than silently skipped at evaluation.
func CheckRuleIntegrity(rule *models.DiscountRule) error {
	switch rule.DiscountType {
	case models.DiscountPercentage:
		if rule.DiscountPercentage == nil {
			return fmt.Errorf("percentage rule missing discount_percentage")
		}
		if *rule.DiscountPercentage < 0 || *rule.DiscountPercentage > 100 {
			return fmt.Errorf("discount_percentage %v out of range [0,100]", *rule.DiscountPercentage)
		}
	case models.DiscountFixedAmount:
		if rule.DiscountAmount == nil {
			return fmt.Errorf("fixed amount rule missing discount_amount")
		}
		if *rule.DiscountAmount < 0 {
			return fmt.Errorf("discount_amount %v must be non-negative", *rule.DiscountAmount)
		}
	case models.DiscountBuyXGetY:
		if rule.Conditions.BuyQuantity == nil || rule.Conditions.GetQuantity == nil {
			return fmt.Errorf("buy_x_get_y rule missing buy_quantity/get_quantity conditions")
		}
		if *rule.Conditions.BuyQuantity < 1 || *rule.Conditions.GetQuantity < 1 {
			return fmt.Errorf("buy_quantity and get_quantity must be at least 1")
		}
	case models.DiscountEarlyBird, models.DiscountGroup:
		// Eligibility variants: they resolve to exactly one of the two
		// monetary fields.
		if rule.DiscountPercentage == nil && rule.DiscountAmount == nil {
			return fmt.Errorf("%s rule needs discount_percentage or discount_amount", rule.DiscountType)
		}
		if rule.DiscountPercentage != nil && rule.DiscountAmount != nil {
			return fmt.Errorf("%s rule must not set both discount_percentage and discount_amount", rule.DiscountType)
		}
		if rule.DiscountPercentage != nil && (*rule.DiscountPercentage < 0 || *rule.DiscountPercentage > 100) {
			return fmt.Errorf("discount_percentage %v out of range [0,100]", *rule.DiscountPercentage)
		}
		if rule.DiscountAmount != nil && *rule.DiscountAmount < 0 {
			return fmt.Errorf("discount_amount %v must be non-negative", *rule.DiscountAmount)
		}
	default:
		return fmt.Errorf("unsupported discount type: %s", rule.DiscountType)
	}
	return nil
}
