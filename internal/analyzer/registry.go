package analyzer

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Sentinel errors for registry lookups and registration.
var (
	ErrUnknownCategory = errors.New("unknown category")
	ErrEmptySuiteSet   = errors.New("category has no check suites")
	ErrNoAlwaysRun     = errors.New("category has no always-run suite")
)

// Registration binds a category to its analyzer, base cost, and suite catalog.
type Registration struct {
	Analyzer Analyzer
	BaseCost int
	Suites   []CheckSuite
}

// Registry maps categories to registered analyzers. It is populated at
// startup and read-only afterwards, so lookups need no locking.
type Registry struct {
	entries map[Category]Registration
}

// NewRegistry creates an empty analyzer registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[Category]Registration)}
}

// Register adds an analyzer for a category. Misconfiguration (empty suite
// set, no always-run suite, non-positive base cost) fails here, at startup,
// so it can never surface at request time.
func (r *Registry) Register(category Category, a Analyzer, baseCost int, suites []CheckSuite) error {
	if a == nil {
		return fmt.Errorf("category %s: analyzer is nil", category)
	}
	if baseCost < 1 {
		return fmt.Errorf("category %s: base cost must be >= 1, got %d", category, baseCost)
	}
	if len(suites) == 0 {
		return fmt.Errorf("category %s: %w", category, ErrEmptySuiteSet)
	}

	hasAlwaysRun := false
	seen := make(map[string]struct{}, len(suites))
	for _, s := range suites {
		if s.Name == "" {
			return fmt.Errorf("category %s: suite with empty name", category)
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("category %s: duplicate suite %q", category, s.Name)
		}
		seen[s.Name] = struct{}{}
		if s.AlwaysRun {
			hasAlwaysRun = true
		}
		if s.StandardOnly && s.EconomyEligible {
			return fmt.Errorf("category %s: suite %q is both standard-only and economy-eligible", category, s.Name)
		}
	}
	if !hasAlwaysRun {
		return fmt.Errorf("category %s: %w", category, ErrNoAlwaysRun)
	}

	if _, exists := r.entries[category]; exists {
		return fmt.Errorf("category %s already registered", category)
	}

	r.entries[category] = Registration{Analyzer: a, BaseCost: baseCost, Suites: suites}

	log.Debug().
		Str("category", string(category)).
		Int("base_cost", baseCost).
		Int("suites", len(suites)).
		Msg("analyzer registered")
	return nil
}

// Resolve returns the analyzer, base cost, and suite catalog for a category.
func (r *Registry) Resolve(category Category) (Analyzer, int, []CheckSuite, error) {
	reg, ok := r.entries[category]
	if !ok {
		return nil, 0, nil, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	suites := make([]CheckSuite, len(reg.Suites))
	copy(suites, reg.Suites)
	return reg.Analyzer, reg.BaseCost, suites, nil
}

// Categories returns the registered categories.
func (r *Registry) Categories() []Category {
	cats := make([]Category, 0, len(r.entries))
	for c := range r.entries {
		cats = append(cats, c)
	}
	return cats
}
