// Package billing holds the billing domain: the plan catalog, provider event
// decoding, and the account reconciliation state machine.
package billing

import (
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"billingsync/internal/types"
)

// PlanEntry maps one plan tier to its provider price identifiers. Prices are
// in minor currency units.
type PlanEntry struct {
	Plan           types.PlanTier `yaml:"plan" json:"plan" validate:"required,oneof=free pro business enterprise"`
	Name           string         `yaml:"name" json:"name"`
	MonthlyPriceID string         `yaml:"monthly_price_id" json:"monthly_price_id"`
	AnnualPriceID  string         `yaml:"annual_price_id" json:"annual_price_id"`
	MonthlyPrice   int64          `yaml:"monthly_price" json:"monthly_price" validate:"gte=0"`
	AnnualPrice    int64          `yaml:"annual_price" json:"annual_price" validate:"gte=0"`
}

type catalogFile struct {
	Plans []PlanEntry `yaml:"plans" validate:"required,min=1,dive"`
}

// PlanResolver maps a provider price identifier to a plan tier.
type PlanResolver interface {
	ResolvePlan(priceID string) (types.PlanTier, bool)
}

// Catalog is an immutable snapshot of the plan configuration. Lookups are
// safe for concurrent use without locking.
type Catalog struct {
	entries  []PlanEntry
	source   string
	loadedAt time.Time
}

var catalogValidator = validator.New()

// NewCatalog validates entries and returns a snapshot. A plan may appear at
// most once and a price id may belong to at most one plan.
func NewCatalog(entries []PlanEntry) (*Catalog, error) {
	if err := catalogValidator.Struct(catalogFile{Plans: entries}); err != nil {
		return nil, types.NewAppError(types.ErrCodeValidationPlanCatalog, "plan catalog failed validation", err)
	}

	seenPlans := make(map[types.PlanTier]bool, len(entries))
	seenPrices := make(map[string]types.PlanTier, len(entries)*2)
	for _, e := range entries {
		if seenPlans[e.Plan] {
			return nil, types.NewAppError(types.ErrCodeValidationPlanCatalog,
				fmt.Sprintf("plan %q listed more than once", e.Plan), nil)
		}
		seenPlans[e.Plan] = true

		for _, id := range []string{e.MonthlyPriceID, e.AnnualPriceID} {
			if id == "" {
				continue
			}
			if owner, dup := seenPrices[id]; dup {
				return nil, types.NewAppError(types.ErrCodeValidationPlanCatalog,
					fmt.Sprintf("price id %q mapped to both %q and %q", id, owner, e.Plan), nil)
			}
			seenPrices[id] = e.Plan
		}
	}

	out := make([]PlanEntry, len(entries))
	copy(out, entries)
	return &Catalog{entries: out, loadedAt: time.Now().UTC()}, nil
}

// LoadCatalog reads and validates a YAML plan catalog from path.
func LoadCatalog(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan catalog %s: %w", path, err)
	}

	var f catalogFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, types.NewAppError(types.ErrCodeValidationPlanCatalog, "plan catalog is not valid YAML", err)
	}

	c, err := NewCatalog(f.Plans)
	if err != nil {
		return nil, err
	}
	c.source = path
	return c, nil
}

// ResolvePlan returns the plan whose monthly or annual price id equals
// priceID. It never falls back to a default tier.
func (c *Catalog) ResolvePlan(priceID string) (types.PlanTier, bool) {
	if c == nil || priceID == "" {
		return "", false
	}
	for _, e := range c.entries {
		if e.MonthlyPriceID == priceID || e.AnnualPriceID == priceID {
			return e.Plan, true
		}
	}
	return "", false
}

// Entries returns a copy of the catalog entries.
func (c *Catalog) Entries() []PlanEntry {
	out := make([]PlanEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

func (c *Catalog) Source() string      { return c.source }
func (c *Catalog) LoadedAt() time.Time { return c.loadedAt }

// CatalogHolder owns the active Catalog snapshot. Readers take the current
// pointer; Reload swaps in a fully validated replacement.
type CatalogHolder struct {
	current atomic.Pointer[Catalog]
	path    string
	logger  *slog.Logger
}

// NewCatalogHolder wraps an initial snapshot. path is re-read on Reload.
func NewCatalogHolder(initial *Catalog, path string, logger *slog.Logger) *CatalogHolder {
	if logger == nil {
		logger = slog.Default()
	}
	h := &CatalogHolder{path: path, logger: logger}
	h.current.Store(initial)
	return h
}

// Current returns the active snapshot.
func (h *CatalogHolder) Current() *Catalog {
	return h.current.Load()
}

// ResolvePlan resolves against the active snapshot.
func (h *CatalogHolder) ResolvePlan(priceID string) (types.PlanTier, bool) {
	return h.Current().ResolvePlan(priceID)
}

// Reload re-reads the catalog file. On failure the active snapshot is kept.
func (h *CatalogHolder) Reload() (*Catalog, error) {
	next, err := LoadCatalog(h.path)
	if err != nil {
		h.logger.Error("plan catalog reload failed, keeping active snapshot",
			"path", h.path,
			"error", err,
		)
		return nil, err
	}
	prev := h.current.Swap(next)
	prevCount := 0
	if prev != nil {
		prevCount = len(prev.entries)
	}
	h.logger.Info("plan catalog reloaded",
		"path", h.path,
		"plans", len(next.entries),
		"previous_plans", prevCount,
	)
	return next, nil
}
