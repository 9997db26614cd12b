package pricing

import (
	"sort"

	"ms-pricing/internal/models"
)

// Resolve orders the eligible rules and decides which subset actually
// applies. Rules are taken greedily in (priority ascending, id ascending)
// order until, and including, the first non-combinable rule: a
// non-combinable rule claims exclusivity over everything after it but does
// not cancel combinable rules that already stacked ahead of it. The id
// tie-break keeps the applied order, and therefore the usage commits,
// deterministic when priorities collide.
func Resolve(eligible []models.DiscountRule) []models.DiscountRule {
	sorted := make([]models.DiscountRule, len(eligible))
	copy(sorted, eligible)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			return sorted[i].Priority < sorted[j].Priority
		}
		return sorted[i].ID < sorted[j].ID
	})

	applied := make([]models.DiscountRule, 0, len(sorted))
	for _, rule := range sorted {
		applied = append(applied, rule)
		if !rule.IsCombinable {
			break
		}
	}
	return applied
}
