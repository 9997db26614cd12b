package pricing

import (
	"testing"

	"ms-pricing/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestResolveOrdersByPriorityThenID(t *testing.T) {
	eligible := []models.DiscountRule{
		{ID: "zz", Priority: 10, IsCombinable: true},
		{ID: "aa", Priority: 10, IsCombinable: true},
		{ID: "mid", Priority: 5, IsCombinable: true},
	}

	applied := Resolve(eligible)

	assert.Len(t, applied, 3)
	assert.Equal(t, "mid", applied[0].ID)
	assert.Equal(t, "aa", applied[1].ID)
	assert.Equal(t, "zz", applied[2].ID)
}

func TestResolveStopsAfterNonCombinable(t *testing.T) {
	// The non-combinable rule still applies, but nothing after it does.
	eligible := []models.DiscountRule{
		{ID: "a", Priority: 1, IsCombinable: true},
		{ID: "b", Priority: 2, IsCombinable: false},
		{ID: "c", Priority: 3, IsCombinable: true},
	}

	applied := Resolve(eligible)

	assert.Len(t, applied, 2)
	assert.Equal(t, "a", applied[0].ID)
	assert.Equal(t, "b", applied[1].ID)
}

func TestResolveNonCombinableWithTopPriorityWinsAlone(t *testing.T) {
	eligible := []models.DiscountRule{
		{ID: "exclusive", Priority: 1, IsCombinable: false},
		{ID: "stacker", Priority: 2, IsCombinable: true},
	}

	applied := Resolve(eligible)

	assert.Len(t, applied, 1)
	assert.Equal(t, "exclusive", applied[0].ID)
}

func TestResolveDoesNotMutateInput(t *testing.T) {
	eligible := []models.DiscountRule{
		{ID: "b", Priority: 2, IsCombinable: true},
		{ID: "a", Priority: 1, IsCombinable: true},
	}

	Resolve(eligible)

	assert.Equal(t, "b", eligible[0].ID)
	assert.Equal(t, "a", eligible[1].ID)
}

func TestResolveEmptyInput(t *testing.T) {
	assert.Empty(t, Resolve(nil))
}
