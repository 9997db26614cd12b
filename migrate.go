package main

import (
	"context"
	"fmt"
	"time"

	"ms-pricing/internal/logger"
	"ms-pricing/internal/models"

	"github.com/uptrace/bun"
)

// seedDemoRules inserts a small demo catalog so a fresh environment has
// something to price against. Existing rows win on conflict.
func seedDemoRules(ctx context.Context, db *bun.DB, log *logger.Logger) {
	now := time.Now().UTC()

	rules := []models.DiscountRule{
		{
			ID:                 "summer-promo-20",
			Name:               "Summer Promo 20%",
			Description:        "20% off any tour booked with code SUMMER20",
			Code:               "SUMMER20",
			DiscountType:       models.DiscountPercentage,
			DiscountPercentage: float64Ptr(20),
			Conditions:         models.RuleConditions{},
			ValidFrom:          now.AddDate(0, -1, 0),
			ValidUntil:         now.AddDate(0, 2, 0),
			MaxUses:            int64Ptr(500),
			MaxUsesPerCustomer: int64Ptr(1),
			Priority:           10,
			IsActive:           true,
			IsCombinable:       true,
			CreatedAt:          now,
		},
		{
			ID:                 "early-bird-60",
			Name:               "Early Bird",
			Description:        "10% off tours booked at least 60 days in advance",
			DiscountType:       models.DiscountEarlyBird,
			DiscountPercentage: float64Ptr(10),
			Conditions: models.RuleConditions{
				MinAdvanceDays: intPtr(60),
			},
			ValidFrom:    now.AddDate(0, -6, 0),
			ValidUntil:   now.AddDate(1, 0, 0),
			Priority:     20,
			IsActive:     true,
			IsCombinable: true,
			CreatedAt:    now,
		},
		{
			ID:             "group-8plus",
			Name:           "Group Discount",
			Description:    "Flat 500 off for groups of 8 or more",
			DiscountType:   models.DiscountGroup,
			DiscountAmount: float64Ptr(500),
			Conditions: models.RuleConditions{
				MinGroupSize: intPtr(8),
			},
			ValidFrom:    now.AddDate(0, -6, 0),
			ValidUntil:   now.AddDate(1, 0, 0),
			Priority:     30,
			IsActive:     true,
			IsCombinable: true,
			CreatedAt:    now,
		},
		{
			ID:           "desert-buy4get1",
			Name:         "Desert Trek Buy 4 Get 1",
			Description:  "One free seat for every four paid on desert treks",
			DiscountType: models.DiscountBuyXGetY,
			Conditions: models.RuleConditions{
				ServiceTypes: []string{"desert_trek"},
				BuyQuantity:  intPtr(4),
				GetQuantity:  intPtr(1),
			},
			ValidFrom:    now.AddDate(0, -6, 0),
			ValidUntil:   now.AddDate(1, 0, 0),
			Priority:     5,
			IsActive:     true,
			IsCombinable: false,
			CreatedAt:    now,
		},
	}

	for i := range rules {
		_, err := db.NewInsert().
			Model(&rules[i]).
			On("CONFLICT (id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			log.Error("DATABASE", fmt.Sprintf("Failed to seed rule %s: %v", rules[i].ID, err))
			continue
		}
		log.LogRule("SEED", rules[i].ID, rules[i].Name)
	}
}

func float64Ptr(v float64) *float64 { return &v }
func int64Ptr(v int64) *int64       { return &v }
func intPtr(v int) *int             { return &v }
