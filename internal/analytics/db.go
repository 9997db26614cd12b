package analytics

import (
	"context"

	"ms-pricing/internal/models"

	"github.com/uptrace/bun"
)

// DB handles analytics database operations over the rule_usage audit trail.
type DB struct {
	bun *bun.DB
}

// NewDB creates a new analytics DB handler
func NewDB(db *bun.DB) *DB {
	return &DB{bun: db}
}

// GetRuleStats aggregates the audit trail for one rule
func (db *DB) GetRuleStats(ctx context.Context, ruleID string) (*models.RuleStats, error) {
	stats := &models.RuleStats{RuleID: ruleID}

	err := db.bun.NewRaw(
		"SELECT COUNT(*), COUNT(DISTINCT customer_id), COALESCE(SUM(discount_amount), 0) FROM rule_usage WHERE rule_id = ?",
		ruleID).
		Scan(ctx, &stats.Redemptions, &stats.UniqueCustomers, &stats.TotalDiscount)
	if err != nil {
		return nil, err
	}

	return stats, nil
}

// GetRedemptions reports redemptions grouped by rule within a window
func (db *DB) GetRedemptions(ctx context.Context, from, to string) ([]models.RedemptionSummary, error) {
	var summaries []models.RedemptionSummary

	query := db.bun.NewSelect().
		Table("rule_usage").
		ColumnExpr("rule_id").
		ColumnExpr("rule_name").
		ColumnExpr("COUNT(*) AS redemptions").
		ColumnExpr("COALESCE(SUM(discount_amount), 0) AS total_discount").
		GroupExpr("rule_id, rule_name").
		OrderExpr("redemptions DESC")

	if from != "" {
		query = query.Where("committed_at >= ?", from)
	}
	if to != "" {
		query = query.Where("committed_at <= ?", to)
	}

	if err := query.Scan(ctx, &summaries); err != nil {
		return nil, err
	}
	return summaries, nil
}
