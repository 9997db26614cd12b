package pricing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-pricing/internal/logger"
	"ms-pricing/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RuleStore is the persistent catalog of discount rules. CommitUse must be
// atomic at the storage layer: increment current_uses only while below
// max_uses, never as a read-then-write pair.
type RuleStore interface {
	ListActive(ctx context.Context) ([]models.DiscountRule, error)
	CommitUse(ctx context.Context, ruleID string) error
	ReleaseUse(ctx context.Context, ruleID string) error
	RecordUsage(ctx context.Context, usage models.RuleUsage) error
	UsageByBooking(ctx context.Context, bookingID string) ([]models.RuleUsage, error)
	DeleteUsageByBooking(ctx context.Context, bookingID string) error
}

// UsageCounter tracks per-(rule, customer) redemption counts with the same
// conditional-increment guarantee as the rule store.
type UsageCounter interface {
	Uses(ctx context.Context, ruleID, customerID string) (int64, error)
	Commit(ctx context.Context, ruleID, customerID string, maxPerCustomer int64) error
	Release(ctx context.Context, ruleID, customerID string) error
}

// EventPublisher streams pricing lifecycle events to the rest of the
// platform.
type EventPublisher interface {
	PublishPricingCommitted(event models.PricingCommittedEvent) error
	PublishPricingReleased(event models.PricingReleasedEvent) error
}

// Engine orchestrates filter, resolver, calculator and quota commits.
// Preview never touches counters; Commit reserves quota and is the point of
// no return for the rules it reserves.
type Engine struct {
	Rules    RuleStore
	Usage    UsageCounter
	Events   EventPublisher
	Logger   *logger.Logger
	Currency string

	// Now is swappable for tests; defaults to time.Now.
	Now func() time.Time
}

func NewEngine(rules RuleStore, usage UsageCounter, events EventPublisher, log *logger.Logger, currency string) *Engine {
	return &Engine{
		Rules:    rules,
		Usage:    usage,
		Events:   events,
		Logger:   log,
		Currency: currency,
	}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Preview runs the pure pipeline with no side effects. Safe to call
// repeatedly and in parallel.
func (e *Engine) Preview(ctx context.Context, req models.PricingRequest) (*models.PricingCalculation, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	rules, err := e.Rules.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load rule catalog: %w", err)
	}

	calc, _, err := e.compute(ctx, req, rules, nil, true)
	if err != nil {
		return nil, err
	}

	e.Logger.LogPricing("PREVIEW", fmt.Sprintf("base=%.2f discount=%.2f rules=%d", calc.BasePrice, calc.DiscountAmount, len(calc.AppliedRules)))
	return calc, nil
}

// Commit runs the full pipeline including quota reservation. A rule whose
// commit loses a concurrency race is excluded and the pure pipeline reruns;
// rules already committed that survive the rerun are not committed twice,
// and ones that drop out are released so counters never leak.
func (e *Engine) Commit(ctx context.Context, req models.PricingRequest) (*models.PricingCalculation, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	rules, err := e.Rules.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load rule catalog: %w", err)
	}

	excluded := make(map[string]bool)
	committed := make(map[string]bool)
	var committedOrder []string
	enforcePromo := true

	// Each pass either finishes or excludes at least one more rule, so the
	// loop is bounded by the catalog size.
	for attempt := 0; attempt <= len(rules); attempt++ {
		calc, applied, err := e.compute(ctx, req, rules, excluded, enforcePromo)
		if err != nil {
			e.releaseAll(ctx, committedOrder, committed, req.CustomerID)
			return nil, err
		}
		enforcePromo = false

		raceLost := ""
		for _, rule := range applied {
			if committed[rule.ID] {
				continue
			}
			err := e.commitRule(ctx, rule, req.CustomerID)
			if errors.Is(err, ErrQuotaExhausted) {
				e.Logger.Warn("PRICING", fmt.Sprintf("Commit race on rule %s, recomputing without it", rule.ID))
				raceLost = rule.ID
				break
			}
			if err != nil {
				e.releaseAll(ctx, committedOrder, committed, req.CustomerID)
				return nil, fmt.Errorf("failed to commit usage for rule %s: %w", rule.ID, err)
			}
			committed[rule.ID] = true
			committedOrder = append(committedOrder, rule.ID)
		}

		if raceLost != "" {
			excluded[raceLost] = true
			continue
		}

		// Release commits for rules that fell out of the recomputed set.
		appliedSet := make(map[string]bool, len(applied))
		for _, rule := range applied {
			appliedSet[rule.ID] = true
		}
		kept := committedOrder[:0]
		for _, id := range committedOrder {
			if appliedSet[id] {
				kept = append(kept, id)
				continue
			}
			e.releaseRule(ctx, id, req.CustomerID)
			delete(committed, id)
		}
		committedOrder = kept

		e.recordAudit(ctx, req, calc)
		e.publishCommitted(req, calc)

		e.Logger.LogPricing("COMMIT", fmt.Sprintf("booking=%s base=%.2f discount=%.2f rules=%d", req.BookingID, calc.BasePrice, calc.DiscountAmount, len(calc.AppliedRules)))
		return calc, nil
	}

	e.releaseAll(ctx, committedOrder, committed, req.CustomerID)
	return nil, fmt.Errorf("pricing commit did not converge after %d attempts", len(rules)+1)
}

// ValidatePromo resolves a promo code against partial booking data and
// returns an explicit verdict instead of a calculation.
func (e *Engine) ValidatePromo(ctx context.Context, code string, booking models.PricingRequest) (*models.PromoValidationResult, error) {
	if code == "" {
		return nil, &ValidationError{Field: "code", Message: "must not be empty"}
	}

	rules, err := e.Rules.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load rule catalog: %w", err)
	}

	// Booking data is partial on this endpoint; fill neutral defaults so
	// structural predicates can still run.
	req := booking
	req.PromoCode = code
	if req.StartDate.IsZero() {
		req.StartDate = e.now()
	}
	if req.PaxCount < 1 {
		req.PaxCount = 1
	}

	var summary *models.RuleSummary
	for i := range rules {
		if rules[i].Code == code {
			s := rules[i].Summary()
			summary = &s
			break
		}
	}

	filter := &Filter{Usage: e.Usage, Logger: e.Logger}
	res, err := filter.Filter(ctx, req, rules, e.now(), nil)
	if err != nil {
		return nil, err
	}

	if res.PromoMatched {
		return &models.PromoValidationResult{Valid: true, Rule: summary}, nil
	}
	return &models.PromoValidationResult{Valid: false, Reason: res.PromoReason, Rule: summary}, nil
}

// ReleaseBooking compensates a cancelled booking: decrements the global and
// per-customer counters for every rule the booking committed and removes
// the audit rows.
func (e *Engine) ReleaseBooking(ctx context.Context, bookingID string) error {
	if bookingID == "" {
		return nil
	}

	usages, err := e.Rules.UsageByBooking(ctx, bookingID)
	if err != nil {
		return fmt.Errorf("failed to load usage for booking %s: %w", bookingID, err)
	}
	if len(usages) == 0 {
		return nil
	}

	var firstErr error
	ruleIDs := make([]string, 0, len(usages))
	for _, usage := range usages {
		ruleIDs = append(ruleIDs, usage.RuleID)
		if err := e.Rules.ReleaseUse(ctx, usage.RuleID); err != nil && firstErr == nil {
			firstErr = err
		}
		if usage.CustomerID != "" {
			if err := e.Usage.Release(ctx, usage.RuleID, usage.CustomerID); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		e.Logger.LogUsage("RELEASE", usage.RuleID, fmt.Sprintf("booking %s cancelled", bookingID))
	}

	if err := e.Rules.DeleteUsageByBooking(ctx, bookingID); err != nil && firstErr == nil {
		firstErr = err
	}

	if e.Events != nil {
		event := models.PricingReleasedEvent{
			BookingID:  bookingID,
			RuleIDs:    ruleIDs,
			ReleasedAt: e.now(),
		}
		if err := e.Events.PublishPricingReleased(event); err != nil {
			e.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish pricing released event: %v", err))
		}
	}

	return firstErr
}

// compute runs the pure Filter -> Resolve -> Apply pipeline.
// Promo enforcement only happens on the first pass of a commit: a promo
// rule excluded later by a commit race is dropped silently, per the
// recovery policy.
func (e *Engine) compute(ctx context.Context, req models.PricingRequest, rules []models.DiscountRule, excluded map[string]bool, enforcePromo bool) (*models.PricingCalculation, []models.DiscountRule, error) {
	filter := &Filter{Usage: e.Usage, Logger: e.Logger}
	res, err := filter.Filter(ctx, req, rules, e.now(), excluded)
	if err != nil {
		return nil, nil, err
	}

	if enforcePromo && req.PromoCode != "" && !res.PromoMatched {
		if res.PromoExhausted {
			return nil, nil, ErrPromoCodeExhausted
		}
		return nil, nil, ErrPromoCodeInvalid
	}

	applied := Resolve(res.Eligible)
	discount, breakdown := Apply(req.BasePrice, req.PaxCount, applied)

	total := decimal.NewFromFloat(req.BasePrice).
		Sub(decimal.NewFromFloat(discount)).
		Round(2).
		InexactFloat64()

	calc := &models.PricingCalculation{
		BasePrice:      req.BasePrice,
		DiscountAmount: discount,
		TotalPrice:     total,
		AppliedRules:   breakdown,
		Currency:       e.Currency,
	}
	return calc, applied, nil
}

// commitRule reserves one rule: global store increment first, then the
// per-customer counter. A per-customer failure rolls the global increment
// back so the pair stays consistent.
func (e *Engine) commitRule(ctx context.Context, rule models.DiscountRule, customerID string) error {
	if err := e.Rules.CommitUse(ctx, rule.ID); err != nil {
		return err
	}

	if customerID != "" {
		var maxPerCustomer int64
		if rule.MaxUsesPerCustomer != nil {
			maxPerCustomer = *rule.MaxUsesPerCustomer
		}
		if err := e.Usage.Commit(ctx, rule.ID, customerID, maxPerCustomer); err != nil {
			if rerr := e.Rules.ReleaseUse(ctx, rule.ID); rerr != nil {
				e.Logger.Error("USAGE", fmt.Sprintf("Failed to roll back global usage for rule %s: %v", rule.ID, rerr))
			}
			return err
		}
	}

	e.Logger.LogUsage("COMMIT", rule.ID, "usage reserved")
	return nil
}

func (e *Engine) releaseRule(ctx context.Context, ruleID, customerID string) {
	if err := e.Rules.ReleaseUse(ctx, ruleID); err != nil {
		e.Logger.Error("USAGE", fmt.Sprintf("Failed to release global usage for rule %s: %v", ruleID, err))
	}
	if customerID != "" {
		if err := e.Usage.Release(ctx, ruleID, customerID); err != nil {
			e.Logger.Error("USAGE", fmt.Sprintf("Failed to release customer usage for rule %s: %v", ruleID, err))
		}
	}
	e.Logger.LogUsage("RELEASE", ruleID, "usage returned")
}

func (e *Engine) releaseAll(ctx context.Context, order []string, committed map[string]bool, customerID string) {
	for _, id := range order {
		if committed[id] {
			e.releaseRule(ctx, id, customerID)
			delete(committed, id)
		}
	}
}

func (e *Engine) recordAudit(ctx context.Context, req models.PricingRequest, calc *models.PricingCalculation) {
	for _, applied := range calc.AppliedRules {
		usage := models.RuleUsage{
			ID:             uuid.New().String(),
			RuleID:         applied.RuleID,
			RuleName:       applied.RuleName,
			BookingID:      req.BookingID,
			CustomerID:     req.CustomerID,
			DiscountAmount: applied.DiscountAmount,
			CommittedAt:    e.now(),
		}
		if err := e.Rules.RecordUsage(ctx, usage); err != nil {
			e.Logger.Error("DATABASE", fmt.Sprintf("Failed to record usage audit for rule %s: %v", applied.RuleID, err))
		}
	}
}

func (e *Engine) publishCommitted(req models.PricingRequest, calc *models.PricingCalculation) {
	if e.Events == nil || req.BookingID == "" {
		return
	}
	event := models.PricingCommittedEvent{
		BookingID:      req.BookingID,
		CustomerID:     req.CustomerID,
		BasePrice:      calc.BasePrice,
		DiscountAmount: calc.DiscountAmount,
		TotalPrice:     calc.TotalPrice,
		Currency:       calc.Currency,
		AppliedRules:   calc.AppliedRules,
		CommittedAt:    e.now(),
	}
	if err := e.Events.PublishPricingCommitted(event); err != nil {
		e.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish pricing committed event: %v", err))
	}
}
