// Package filter implements the Deterministic Filter (C8): rule-based
// penalty multipliers applied to a candidate's fused score based on
// company size, sector (CAE) code, and geographic region.
//
// Grounded directly on matching_service.py's
// _apply_deterministic_filters, including its district alias table for
// Portugal's NUTS-II regions (algarve/faro, centro, norte, lisboa) and
// its "não aplicável"/not-applicable bypass for the size filter.
package filter

import "strings"

// Penalty multipliers, matched exactly to the source service's
// (later-loosened) values.
const (
	SizeMismatchPenalty   = 0.8
	SectorMismatchPenalty = 0.7
	RegionMismatchPenalty = 0.9
)

// Input is everything the filter needs about one incentive/company
// pair to compute penalties.
type Input struct {
	AllowedSizes     []string // empty or containing "not-applicable" bypasses the size filter
	CompanySize      string
	IncentiveSectors []string // CAE-style sector codes required by the incentive
	CompanySectors   []string
	RegionScope      string // free-text geographic scope, e.g. "Algarve", "Portugal"
	CompanyDistrict  string
}

// Result is the outcome of applying all filters.
type Result struct {
	// Multiplier is the product of every applied penalty; 1.0 when
	// nothing mismatched.
	Multiplier float64
	// Applied names each penalty that fired, by filter name.
	Applied map[string]float64
}

// regionAliases maps a lowercase NUTS-II region name to the lowercase
// district names it's considered to cover, grounded line-for-line on
// the source service's elif chain.
var regionAliases = map[string][]string{
	"algarve": {"faro"},
	"centro":  {"coimbra", "leiria", "aveiro"},
	"norte":   {"porto", "braga", "vila real"},
	"lisboa":  {"lisboa", "setúbal"},
}

var nationalTerms = []string{"portugal", "nacional", "todo o país", "todas as regiões"}

// Apply computes the penalty multiplier for one candidate.
func Apply(in Input) Result {
	multiplier := 1.0
	applied := make(map[string]float64)

	if !sizeFilterBypassed(in.AllowedSizes) && in.CompanySize != "" && !containsFold(in.AllowedSizes, in.CompanySize) {
		multiplier *= SizeMismatchPenalty
		applied["size"] = SizeMismatchPenalty
	}

	if len(in.IncentiveSectors) > 0 && len(in.CompanySectors) > 0 && !intersects(in.IncentiveSectors, in.CompanySectors) {
		multiplier *= SectorMismatchPenalty
		applied["sector"] = SectorMismatchPenalty
	}

	if in.RegionScope != "" && in.CompanyDistrict != "" && !regionMatch(in.RegionScope, in.CompanyDistrict) {
		multiplier *= RegionMismatchPenalty
		applied["region"] = RegionMismatchPenalty
	}

	return Result{Multiplier: multiplier, Applied: applied}
}

func sizeFilterBypassed(allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, s := range allowed {
		if strings.EqualFold(s, "não aplicável") || strings.EqualFold(s, "not-applicable") {
			return true
		}
	}
	return false
}

func containsFold(xs []string, v string) bool {
	for _, x := range xs {
		if strings.EqualFold(x, v) {
			return true
		}
	}
	return false
}

func intersects(a, b []string) bool {
	set := make(map[string]struct{}, len(a))
	for _, x := range a {
		set[strings.ToLower(x)] = struct{}{}
	}
	for _, x := range b {
		if _, ok := set[strings.ToLower(x)]; ok {
			return true
		}
	}
	return false
}

func regionMatch(scope, district string) bool {
	scope = strings.ToLower(scope)
	district = strings.ToLower(district)

	if strings.Contains(scope, district) {
		return true
	}
	for _, term := range nationalTerms {
		if strings.Contains(scope, term) {
			return true
		}
	}
	for region, districts := range regionAliases {
		if !strings.Contains(scope, region) {
			continue
		}
		for _, d := range districts {
			if d == district {
				return true
			}
		}
	}
	return false
}
