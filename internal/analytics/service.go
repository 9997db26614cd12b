package analytics

import (
	"context"
	"fmt"

	"ms-pricing/internal/logger"
	"ms-pricing/internal/models"
)

// Service computes redemption analytics for the admin surface.
type Service struct {
	db     *DB
	logger *logger.Logger
}

func NewService(db *DB, log *logger.Logger) *Service {
	return &Service{db: db, logger: log}
}

// RuleStats returns the aggregated redemption figures for one rule.
func (s *Service) RuleStats(ctx context.Context, ruleID string) (*models.RuleStats, error) {
	stats, err := s.db.GetRuleStats(ctx, ruleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load stats for rule %s: %w", ruleID, err)
	}
	return stats, nil
}

// Redemptions returns the per-rule redemption report for a date window.
// Empty bounds mean an unbounded window on that side.
func (s *Service) Redemptions(ctx context.Context, from, to string) ([]models.RedemptionSummary, error) {
	summaries, err := s.db.GetRedemptions(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load redemption report: %w", err)
	}
	if summaries == nil {
		summaries = []models.RedemptionSummary{}
	}
	s.logger.LogDatabase("SELECT", "rule_usage", fmt.Sprintf("redemption report rows=%d", len(summaries)))
	return summaries, nil
}
