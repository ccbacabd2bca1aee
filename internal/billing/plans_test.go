package billing

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billingsync/internal/types"
)

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := NewCatalog([]PlanEntry{
		{Plan: types.PlanFree, Name: "Free"},
		{Plan: types.PlanPro, Name: "Pro", MonthlyPriceID: "price_pro_m", AnnualPriceID: "price_pro_y", MonthlyPrice: 1900, AnnualPrice: 19000},
		{Plan: types.PlanEnterprise, Name: "Enterprise", MonthlyPriceID: "price_ent_m", AnnualPriceID: "price_ent_y", MonthlyPrice: 9900, AnnualPrice: 99000},
	})
	require.NoError(t, err)
	return c
}

func TestCatalog_ResolvePlan(t *testing.T) {
	c := testCatalog(t)

	tests := []struct {
		name    string
		priceID string
		want    types.PlanTier
		wantOK  bool
	}{
		{"monthly", "price_pro_m", types.PlanPro, true},
		{"annual", "price_ent_y", types.PlanEnterprise, true},
		{"unknown", "price_legacy", "", false},
		{"empty never matches free", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := c.ResolvePlan(tt.priceID)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCatalog_NilSnapshotResolvesNothing(t *testing.T) {
	var c *Catalog
	_, ok := c.ResolvePlan("price_pro_m")
	assert.False(t, ok)
}

func TestNewCatalog_Validation(t *testing.T) {
	tests := []struct {
		name    string
		entries []PlanEntry
	}{
		{"empty", nil},
		{"unknown tier", []PlanEntry{{Plan: "gold", MonthlyPriceID: "p1"}}},
		{"negative price", []PlanEntry{{Plan: types.PlanPro, MonthlyPrice: -1}}},
		{"duplicate plan", []PlanEntry{{Plan: types.PlanPro, MonthlyPriceID: "a"}, {Plan: types.PlanPro, MonthlyPriceID: "b"}}},
		{"price shared by two plans", []PlanEntry{{Plan: types.PlanPro, MonthlyPriceID: "a"}, {Plan: types.PlanBusiness, AnnualPriceID: "a"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCatalog(tt.entries)
			require.Error(t, err)
			var appErr *types.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, types.ErrCodeValidationPlanCatalog, appErr.Code)
		})
	}
}

func TestCatalog_EntriesReturnsCopy(t *testing.T) {
	c := testCatalog(t)
	entries := c.Entries()
	entries[1].MonthlyPriceID = "tampered"

	plan, ok := c.ResolvePlan("price_pro_m")
	assert.True(t, ok)
	assert.Equal(t, types.PlanPro, plan)
}

const catalogYAML = `
plans:
  - plan: free
    name: Free
  - plan: pro
    name: Pro
    monthly_price_id: price_pro_m
    annual_price_id: price_pro_y
    monthly_price: 1900
    annual_price: 19000
`

func writeCatalog(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "plans.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadCatalog(t *testing.T) {
	path := writeCatalog(t, t.TempDir(), catalogYAML)

	c, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, path, c.Source())
	assert.Len(t, c.Entries(), 2)

	plan, ok := c.ResolvePlan("price_pro_y")
	assert.True(t, ok)
	assert.Equal(t, types.PlanPro, plan)
}

func TestLoadCatalog_Errors(t *testing.T) {
	_, err := LoadCatalog(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)

	path := writeCatalog(t, t.TempDir(), "plans: [")
	_, err = LoadCatalog(path)
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeValidationPlanCatalog, appErr.Code)
}

func TestCatalogHolder_Reload(t *testing.T) {
	dir := t.TempDir()
	path := writeCatalog(t, dir, catalogYAML)
	initial, err := LoadCatalog(path)
	require.NoError(t, err)

	h := NewCatalogHolder(initial, path, nil)
	_, ok := h.ResolvePlan("price_biz_m")
	assert.False(t, ok)

	writeCatalog(t, dir, catalogYAML+`
  - plan: business
    monthly_price_id: price_biz_m
`)
	next, err := h.Reload()
	require.NoError(t, err)
	assert.Same(t, next, h.Current())

	plan, ok := h.ResolvePlan("price_biz_m")
	assert.True(t, ok)
	assert.Equal(t, types.PlanBusiness, plan)
}

func TestCatalogHolder_ReloadFailureKeepsSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := writeCatalog(t, dir, catalogYAML)
	initial, err := LoadCatalog(path)
	require.NoError(t, err)
	h := NewCatalogHolder(initial, path, nil)

	writeCatalog(t, dir, "plans:\n  - plan: gold\n")
	_, err = h.Reload()
	require.Error(t, err)
	assert.Same(t, initial, h.Current())
}
