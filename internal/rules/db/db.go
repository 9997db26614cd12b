package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"ms-pricing/internal/models"
	"ms-pricing/internal/pricing"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

// ---------------- RULE CATALOG ----------------

// GetRuleByID → fetch one rule by its ID
func (d *DB) GetRuleByID(ctx context.Context, id string) (*models.DiscountRule, error) {
	var rule models.DiscountRule
	err := d.Bun.NewSelect().
		Model(&rule).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

// GetRuleByCode → fetch one rule by its promo code
func (d *DB) GetRuleByCode(ctx context.Context, code string) (*models.DiscountRule, error) {
	var rule models.DiscountRule
	err := d.Bun.NewSelect().
		Model(&rule).
		Where("code = ?", code).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

// ListActive → fetch all active rules, in deterministic priority order
func (d *DB) ListActive(ctx context.Context) ([]models.DiscountRule, error) {
	var rules []models.DiscountRule
	err := d.Bun.NewSelect().
		Model(&rules).
		Where("is_active = ?", true).
		Order("priority ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rules, nil
}

// ListAll → fetch the whole catalog for the admin surface
func (d *DB) ListAll(ctx context.Context) ([]models.DiscountRule, error) {
	var rules []models.DiscountRule
	err := d.Bun.NewSelect().
		Model(&rules).
		Order("priority ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rules, nil
}

// CreateRule → insert new rule
func (d *DB) CreateRule(ctx context.Context, rule models.DiscountRule) error {
	_, err := d.Bun.NewInsert().Model(&rule).Exec(ctx)
	return err
}

// UpdateRule → update admin-editable fields; usage counters are only
// touched through CommitUse/ReleaseUse
func (d *DB) UpdateRule(ctx context.Context, rule models.DiscountRule) error {
	rule.UpdatedAt = time.Now()
	_, err := d.Bun.NewUpdate().
		Model(&rule).
		Column("name", "description", "code", "discount_type", "discount_percentage",
			"discount_amount", "conditions", "valid_from", "valid_until", "max_uses",
			"max_uses_per_customer", "priority", "is_active", "is_combinable", "updated_at").
		Where("id = ?", rule.ID).
		Exec(ctx)
	return err
}

// DeactivateRule → soft-disable; rules with history are never hard-deleted
// because past calculations reference them by id
func (d *DB) DeactivateRule(ctx context.Context, id string) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.DiscountRule)(nil)).
		Set("is_active = ?", false).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ---------------- USAGE COMMITS ----------------

// CommitUse → atomic conditional increment of current_uses. The WHERE
// clause closes the race between concurrent bookings against a
// near-exhausted rule: the increment only lands while below max_uses.
func (d *DB) CommitUse(ctx context.Context, ruleID string) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.DiscountRule)(nil)).
		Set("current_uses = current_uses + 1").
		Where("id = ?", ruleID).
		Where("max_uses IS NULL OR current_uses < max_uses").
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// Either the rule vanished or its quota is spent; distinguish so
		// the engine only treats real exhaustion as a race.
		exists, err := d.Bun.NewSelect().
			Model((*models.DiscountRule)(nil)).
			Where("id = ?", ruleID).
			Exists(ctx)
		if err != nil {
			return err
		}
		if !exists {
			return sql.ErrNoRows
		}
		return pricing.ErrQuotaExhausted
	}
	return nil
}

// ReleaseUse → compensating decrement, floored at zero
func (d *DB) ReleaseUse(ctx context.Context, ruleID string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.DiscountRule)(nil)).
		Set("current_uses = current_uses - 1").
		Where("id = ?", ruleID).
		Where("current_uses > 0").
		Exec(ctx)
	return err
}

// ---------------- USAGE AUDIT ----------------

// RecordUsage → append one committed redemption to the audit trail
func (d *DB) RecordUsage(ctx context.Context, usage models.RuleUsage) error {
	_, err := d.Bun.NewInsert().Model(&usage).Exec(ctx)
	return err
}

// UsageByBooking → fetch the redemptions a booking committed
func (d *DB) UsageByBooking(ctx context.Context, bookingID string) ([]models.RuleUsage, error) {
	var usages []models.RuleUsage
	err := d.Bun.NewSelect().
		Model(&usages).
		Where("booking_id = ?", bookingID).
		Order("committed_at ASC").
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return usages, nil
}

// DeleteUsageByBooking → drop a cancelled booking's audit rows after the
// counters have been released
func (d *DB) DeleteUsageByBooking(ctx context.Context, bookingID string) error {
	_, err := d.Bun.NewDelete().
		Model((*models.RuleUsage)(nil)).
		Where("booking_id = ?", bookingID).
		Exec(ctx)
	return err
}
