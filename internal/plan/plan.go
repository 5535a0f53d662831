// Package plan decides which check suites run for a submission and what the
// submission costs. Both decisions are pure functions of the registered suite
// catalog, the economy mode, and the centralized cost policy.
package plan

import (
	"fmt"
	"math"
	"strings"

	"testforge/internal/analyzer"
)

// Mode selects how aggressively the execution plan is trimmed.
type Mode string

const (
	ModeStandard     Mode = "standard"
	ModeEconomy      Mode = "economy"
	ModeUltraEconomy Mode = "ultra_economy"
)

// ParseMode validates a raw mode string. Empty input defaults to standard.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeStandard:
		return ModeStandard, nil
	case ModeEconomy:
		return ModeEconomy, nil
	case ModeUltraEconomy:
		return ModeUltraEconomy, nil
	default:
		return "", fmt.Errorf("unknown economy mode %q", s)
	}
}

// Build selects the suites that run under the given mode:
//
//	standard:      every suite in the catalog
//	economy:       economy-eligible suites only (standard-only suites drop)
//	ultra_economy: always-run suites only
//
// Build is deterministic: it preserves catalog order and has no side effects.
func Build(suites []analyzer.CheckSuite, mode Mode) []analyzer.CheckSuite {
	selected := make([]analyzer.CheckSuite, 0, len(suites))
	for _, s := range suites {
		switch mode {
		case ModeEconomy:
			if !s.EconomyEligible {
				continue
			}
		case ModeUltraEconomy:
			if !s.AlwaysRun {
				continue
			}
		}
		selected = append(selected, s)
	}
	return selected
}

// CostPolicy holds the economy-mode credit multipliers. The multipliers live
// here and nowhere else; the orchestrator and any pricing display consume the
// same policy rather than re-deriving the constants.
type CostPolicy struct {
	Standard     float64 `yaml:"standard"`
	Economy      float64 `yaml:"economy"`
	UltraEconomy float64 `yaml:"ultra_economy"`
}

// DefaultCostPolicy returns the stock multipliers: economy runs at 60% of
// base cost, ultra-economy at 40%.
func DefaultCostPolicy() CostPolicy {
	return CostPolicy{Standard: 1.0, Economy: 0.6, UltraEconomy: 0.4}
}

// Validate checks the multipliers are sane.
func (p CostPolicy) Validate() error {
	for _, m := range []struct {
		name  string
		value float64
	}{
		{"standard", p.Standard},
		{"economy", p.Economy},
		{"ultra_economy", p.UltraEconomy},
	} {
		if m.value <= 0 || m.value > 1 {
			return fmt.Errorf("cost multiplier %s must be in (0,1], got %g", m.name, m.value)
		}
	}
	if p.Economy > p.Standard || p.UltraEconomy > p.Economy {
		return fmt.Errorf("cost multipliers must not increase as modes get cheaper")
	}
	return nil
}

// Multiplier returns the credit multiplier for a mode.
func (p CostPolicy) Multiplier(mode Mode) float64 {
	switch mode {
	case ModeEconomy:
		return p.Economy
	case ModeUltraEconomy:
		return p.UltraEconomy
	default:
		return p.Standard
	}
}

// CreditsFor computes the credit cost of a submission: ceil(base * multiplier).
func (p CostPolicy) CreditsFor(baseCost int, mode Mode) int {
	return int(math.Ceil(float64(baseCost) * p.Multiplier(mode)))
}
