package analyzer

// Default base costs per category, in credits. Overridable via config.
var defaultBaseCosts = map[Category]int{
	CategoryWeb:      10,
	CategoryDocument: 8,
	CategoryGame:     15,
	CategoryMobile:   12,
	CategoryAI:       10,
	CategoryAvatar:   8,
	CategoryTool:     6,
	CategoryAPI:      5,
}

// DefaultBaseCost returns the stock credit cost for a category.
func DefaultBaseCost(c Category) int {
	if cost, ok := defaultBaseCosts[c]; ok {
		return cost
	}
	return 10
}

// DefaultSuites returns the stock check-suite catalog for a category.
// Every category carries a "functional" always-run suite; the expensive
// suites (performance, security, compatibility) are standard-only and get
// trimmed under economy modes.
func DefaultSuites(c Category) []CheckSuite {
	functional := CheckSuite{Name: "functional", Cost: 2, EconomyEligible: true, AlwaysRun: true}

	switch c {
	case CategoryWeb:
		return []CheckSuite{
			functional,
			{Name: "seo", Cost: 2, EconomyEligible: true},
			{Name: "accessibility", Cost: 2, EconomyEligible: true},
			{Name: "performance", Cost: 4, StandardOnly: true},
			{Name: "security", Cost: 4, StandardOnly: true},
		}
	case CategoryDocument:
		return []CheckSuite{
			functional,
			{Name: "structure", Cost: 2, EconomyEligible: true},
			{Name: "content_quality", Cost: 3, StandardOnly: true},
		}
	case CategoryGame:
		return []CheckSuite{
			functional,
			{Name: "asset_integrity", Cost: 3, EconomyEligible: true},
			{Name: "performance", Cost: 6, StandardOnly: true},
			{Name: "compatibility", Cost: 4, StandardOnly: true},
		}
	case CategoryMobile:
		return []CheckSuite{
			functional,
			{Name: "manifest", Cost: 2, EconomyEligible: true},
			{Name: "performance", Cost: 4, StandardOnly: true},
			{Name: "battery", Cost: 4, StandardOnly: true},
		}
	case CategoryAI:
		return []CheckSuite{
			functional,
			{Name: "response_quality", Cost: 3, EconomyEligible: true},
			{Name: "safety", Cost: 4, StandardOnly: true},
		}
	case CategoryAvatar:
		return []CheckSuite{
			functional,
			{Name: "rendering", Cost: 3, EconomyEligible: true},
			{Name: "animation", Cost: 3, StandardOnly: true},
		}
	case CategoryTool:
		return []CheckSuite{
			functional,
			{Name: "usability", Cost: 2, EconomyEligible: true},
			{Name: "integration", Cost: 2, StandardOnly: true},
		}
	case CategoryAPI:
		return []CheckSuite{
			functional,
			{Name: "contract", Cost: 1, EconomyEligible: true},
			{Name: "latency", Cost: 1, StandardOnly: true},
			{Name: "security", Cost: 1, StandardOnly: true},
		}
	default:
		return []CheckSuite{functional}
	}
}
