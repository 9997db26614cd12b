package analytics

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"ms-pricing/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"
)

func setupAnalyticsDB(t *testing.T) (*DB, *bun.DB) {
	sqldb, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}
	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	_, err = bunDB.NewCreateTable().Model((*models.RuleUsage)(nil)).Exec(context.Background())
	require.NoError(t, err)

	return NewDB(bunDB), bunDB
}

func seedUsage(t *testing.T, bunDB *bun.DB, ruleID, ruleName, customerID string, amount float64, committedAt time.Time) {
	t.Helper()
	usage := models.RuleUsage{
		ID:             uuid.New().String(),
		RuleID:         ruleID,
		RuleName:       ruleName,
		BookingID:      uuid.New().String(),
		CustomerID:     customerID,
		DiscountAmount: amount,
		CommittedAt:    committedAt,
	}
	_, err := bunDB.NewInsert().Model(&usage).Exec(context.Background())
	require.NoError(t, err)
}

func TestGetRuleStats(t *testing.T) {
	analyticsDB, bunDB := setupAnalyticsDB(t)
	defer bunDB.Close()

	now := time.Now()
	seedUsage(t, bunDB, "promo", "Summer Promo", "cust-1", 100, now)
	seedUsage(t, bunDB, "promo", "Summer Promo", "cust-1", 50, now)
	seedUsage(t, bunDB, "promo", "Summer Promo", "cust-2", 75, now)
	seedUsage(t, bunDB, "other", "Other Rule", "cust-3", 10, now)

	stats, err := analyticsDB.GetRuleStats(context.Background(), "promo")
	require.NoError(t, err)

	assert.Equal(t, "promo", stats.RuleID)
	assert.Equal(t, 3, stats.Redemptions)
	assert.Equal(t, 2, stats.UniqueCustomers)
	assert.Equal(t, 225.0, stats.TotalDiscount)
}

func TestGetRuleStatsWithNoUsage(t *testing.T) {
	analyticsDB, bunDB := setupAnalyticsDB(t)
	defer bunDB.Close()

	stats, err := analyticsDB.GetRuleStats(context.Background(), "unused")
	require.NoError(t, err)

	assert.Equal(t, 0, stats.Redemptions)
	assert.Equal(t, 0.0, stats.TotalDiscount)
}

func TestGetRedemptionsGroupsByRule(t *testing.T) {
	analyticsDB, bunDB := setupAnalyticsDB(t)
	defer bunDB.Close()

	now := time.Now()
	seedUsage(t, bunDB, "popular", "Popular Rule", "cust-1", 100, now)
	seedUsage(t, bunDB, "popular", "Popular Rule", "cust-2", 100, now)
	seedUsage(t, bunDB, "niche", "Niche Rule", "cust-3", 500, now)

	summaries, err := analyticsDB.GetRedemptions(context.Background(), "", "")
	require.NoError(t, err)

	require.Len(t, summaries, 2)
	// Ordered by redemption count, most redeemed first.
	assert.Equal(t, "popular", summaries[0].RuleID)
	assert.Equal(t, 2, summaries[0].Redemptions)
	assert.Equal(t, 200.0, summaries[0].TotalDiscount)
	assert.Equal(t, "niche", summaries[1].RuleID)
	assert.Equal(t, 500.0, summaries[1].TotalDiscount)
}

func TestGetRedemptionsDateWindow(t *testing.T) {
	analyticsDB, bunDB := setupAnalyticsDB(t)
	defer bunDB.Close()

	old := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC)
	seedUsage(t, bunDB, "r1", "Rule One", "cust-1", 100, old)
	seedUsage(t, bunDB, "r2", "Rule Two", "cust-2", 200, recent)

	summaries, err := analyticsDB.GetRedemptions(context.Background(), "2026-06-01", "")
	require.NoError(t, err)

	require.Len(t, summaries, 1)
	assert.Equal(t, "r2", summaries[0].RuleID)
}
