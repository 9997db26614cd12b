package pricing

import (
	"ms-pricing/internal/models"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Apply folds the applied rules left to right over the base price.
// Discounts compound: each rule is computed against the price net of the
// rules before it, never against the original base price. Arithmetic runs
// on decimals; the total discount is rounded once at the end to 2 decimal
// places, half-up, and the invariant 0 <= discount <= basePrice holds by
// construction.
func Apply(basePrice float64, paxCount int, applied []models.DiscountRule) (float64, []models.AppliedRule) {
	base := decimal.NewFromFloat(basePrice)
	remaining := base

	breakdown := make([]models.AppliedRule, 0, len(applied))
	for _, rule := range applied {
		amount := ruleDiscount(base, remaining, paxCount, rule)
		if amount.IsNegative() {
			amount = decimal.Zero
		}
		if amount.GreaterThan(remaining) {
			amount = remaining
		}
		remaining = remaining.Sub(amount)

		breakdown = append(breakdown, models.AppliedRule{
			RuleID:         rule.ID,
			RuleName:       rule.Name,
			DiscountType:   rule.DiscountType,
			DiscountAmount: amount.Round(2).InexactFloat64(),
		})
	}

	discount := base.Sub(remaining).Round(2)
	return discount.InexactFloat64(), breakdown
}

func ruleDiscount(base, remaining decimal.Decimal, paxCount int, rule models.DiscountRule) decimal.Decimal {
	switch rule.DiscountType {
	case models.DiscountPercentage:
		return percentageOf(remaining, *rule.DiscountPercentage)

	case models.DiscountFixedAmount:
		return fixedOff(remaining, *rule.DiscountAmount)

	case models.DiscountBuyXGetY:
		buy := *rule.Conditions.BuyQuantity
		get := *rule.Conditions.GetQuantity
		// Partial groups do not qualify: integer floor division.
		groups := paxCount / (buy + get)
		if groups == 0 {
			return decimal.Zero
		}
		perUnit := base.Div(decimal.NewFromInt(int64(paxCount)))
		return perUnit.Mul(decimal.NewFromInt(int64(groups * get)))

	case models.DiscountEarlyBird, models.DiscountGroup:
		// Eligibility variants, not distinct formulas.
		if rule.DiscountPercentage != nil {
			return percentageOf(remaining, *rule.DiscountPercentage)
		}
		if rule.DiscountAmount != nil {
			return fixedOff(remaining, *rule.DiscountAmount)
		}
	}
	return decimal.Zero
}

func percentageOf(remaining decimal.Decimal, pct float64) decimal.Decimal {
	return remaining.Mul(decimal.NewFromFloat(pct)).Div(hundred)
}

func fixedOff(remaining decimal.Decimal, amount float64) decimal.Decimal {
	d := decimal.NewFromFloat(amount)
	if d.GreaterThan(remaining) {
		return remaining
	}
	return d
}
