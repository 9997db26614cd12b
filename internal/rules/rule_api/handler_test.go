package rule_api_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ms-pricing/internal/logger"
	"ms-pricing/internal/models"
	"ms-pricing/internal/rules/db"
	"ms-pricing/internal/rules/rule_api"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"
)

func setupHandler(t *testing.T) (*db.DB, *chi.Mux, *bun.DB) {
	sqldb, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}
	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	_, err = bunDB.NewCreateTable().Model((*models.DiscountRule)(nil)).Exec(context.Background())
	require.NoError(t, err)
	_, err = bunDB.NewCreateTable().Model((*models.RuleUsage)(nil)).Exec(context.Background())
	require.NoError(t, err)

	ruleDB := &db.DB{Bun: bunDB}
	h := &rule_api.Handler{DB: ruleDB, Logger: logger.NewLogger()}

	r := chi.NewRouter()
	r.Get("/discount-rules", h.ListRules)
	r.Post("/discount-rules", h.CreateRule)
	r.Get("/discount-rules/{ruleId}", h.GetRule)
	r.Put("/discount-rules/{ruleId}", h.UpdateRule)
	r.Delete("/discount-rules/{ruleId}", h.DeleteRule)

	return ruleDB, r, bunDB
}

func fptr(v float64) *float64 { return &v }

func validRuleBody() models.DiscountRule {
	return models.DiscountRule{
		Name:               "Summer Promo",
		Code:               "SUMMER20",
		DiscountType:       models.DiscountPercentage,
		DiscountPercentage: fptr(20),
		ValidFrom:          time.Now().AddDate(0, -1, 0),
		ValidUntil:         time.Now().AddDate(0, 1, 0),
		Priority:           10,
		IsCombinable:       true,
	}
}

func doJSON(t *testing.T, router *chi.Mux, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateRule(t *testing.T) {
	_, router, bunDB := setupHandler(t)
	defer bunDB.Close()

	rec := doJSON(t, router, http.MethodPost, "/discount-rules", validRuleBody())
	require.Equal(t, http.StatusCreated, rec.Code)

	var created models.DiscountRule
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.NotEmpty(t, created.ID)
	assert.True(t, created.IsActive)
	assert.Equal(t, int64(0), created.CurrentUses)
}

func TestCreateRuleRejectsMisconfigured(t *testing.T) {
	_, router, bunDB := setupHandler(t)
	defer bunDB.Close()

	// Percentage rule without a percentage.
	body := validRuleBody()
	body.DiscountPercentage = nil
	rec := doJSON(t, router, http.MethodPost, "/discount-rules", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Missing name.
	body = validRuleBody()
	body.Name = ""
	rec = doJSON(t, router, http.MethodPost, "/discount-rules", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Inverted validity window.
	body = validRuleBody()
	body.ValidUntil = body.ValidFrom.AddDate(0, -2, 0)
	rec = doJSON(t, router, http.MethodPost, "/discount-rules", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateRuleDuplicateCode(t *testing.T) {
	_, router, bunDB := setupHandler(t)
	defer bunDB.Close()

	rec := doJSON(t, router, http.MethodPost, "/discount-rules", validRuleBody())
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/discount-rules", validRuleBody())
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestListRulesActiveFilter(t *testing.T) {
	ruleDB, router, bunDB := setupHandler(t)
	defer bunDB.Close()

	active := validRuleBody()
	active.ID = "active"
	active.Code = ""
	active.IsActive = true
	require.NoError(t, ruleDB.CreateRule(context.Background(), active))

	inactive := validRuleBody()
	inactive.ID = "inactive"
	inactive.Code = ""
	inactive.IsActive = false
	require.NoError(t, ruleDB.CreateRule(context.Background(), inactive))

	rec := doJSON(t, router, http.MethodGet, "/discount-rules", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var all []models.DiscountRule
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&all))
	assert.Len(t, all, 2)

	rec = doJSON(t, router, http.MethodGet, "/discount-rules?active=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var activeOnly []models.DiscountRule
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&activeOnly))
	require.Len(t, activeOnly, 1)
	assert.Equal(t, "active", activeOnly[0].ID)
}

func TestGetRuleNotFound(t *testing.T) {
	_, router, bunDB := setupHandler(t)
	defer bunDB.Close()

	rec := doJSON(t, router, http.MethodGet, "/discount-rules/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateRulePreservesUsageCounter(t *testing.T) {
	ruleDB, router, bunDB := setupHandler(t)
	defer bunDB.Close()

	rule := validRuleBody()
	rule.ID = "r1"
	require.NoError(t, ruleDB.CreateRule(context.Background(), rule))
	require.NoError(t, ruleDB.CommitUse(context.Background(), "r1"))

	update := validRuleBody()
	update.Name = "Renamed Promo"
	update.CurrentUses = 999 // must be ignored
	rec := doJSON(t, router, http.MethodPut, "/discount-rules/r1", update)
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := ruleDB.GetRuleByID(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed Promo", got.Name)
	assert.Equal(t, int64(1), got.CurrentUses)
}

func TestDeleteRuleSoftDeactivates(t *testing.T) {
	ruleDB, router, bunDB := setupHandler(t)
	defer bunDB.Close()

	rule := validRuleBody()
	rule.ID = "r1"
	require.NoError(t, ruleDB.CreateRule(context.Background(), rule))

	rec := doJSON(t, router, http.MethodDelete, "/discount-rules/r1", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	// Soft delete: the row survives, deactivated.
	got, err := ruleDB.GetRuleByID(context.Background(), "r1")
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	rec = doJSON(t, router, http.MethodDelete, "/discount-rules/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
