package filter_test

import (
	"testing"

	"github.com/alfred-dev/incentive-core/filter"
)

func TestApplyNoMismatches(t *testing.T) {
	r := filter.Apply(filter.Input{
		AllowedSizes: []string{"sme"}, CompanySize: "sme",
		IncentiveSectors: []string{"62010"}, CompanySectors: []string{"62010"},
		RegionScope: "Portugal", CompanyDistrict: "Porto",
	})
	if r.Multiplier != 1.0 {
		t.Fatalf("expected no penalty, got %v applied=%v", r.Multiplier, r.Applied)
	}
}

func TestApplySizeMismatch(t *testing.T) {
	r := filter.Apply(filter.Input{AllowedSizes: []string{"large"}, CompanySize: "micro"})
	if r.Multiplier != filter.SizeMismatchPenalty {
		t.Fatalf("expected size penalty, got %v", r.Multiplier)
	}
}

func TestApplySizeBypassOnNotApplicable(t *testing.T) {
	r := filter.Apply(filter.Input{AllowedSizes: []string{"not-applicable"}, CompanySize: "micro"})
	if r.Multiplier != 1.0 {
		t.Fatalf("expected size filter bypassed, got %v", r.Multiplier)
	}
}

func TestApplySectorMismatch(t *testing.T) {
	r := filter.Apply(filter.Input{IncentiveSectors: []string{"01100"}, CompanySectors: []string{"62010"}})
	if r.Multiplier != filter.SectorMismatchPenalty {
		t.Fatalf("expected sector penalty, got %v", r.Multiplier)
	}
}

func TestApplyRegionAliasMatch(t *testing.T) {
	r := filter.Apply(filter.Input{RegionScope: "Algarve", CompanyDistrict: "Faro"})
	if r.Multiplier != 1.0 {
		t.Fatalf("expected algarve/faro alias match, got %v", r.Multiplier)
	}
}

func TestApplyRegionMismatch(t *testing.T) {
	r := filter.Apply(filter.Input{RegionScope: "Algarve", CompanyDistrict: "Porto"})
	if r.Multiplier != filter.RegionMismatchPenalty {
		t.Fatalf("expected region penalty, got %v", r.Multiplier)
	}
}

func TestApplyStackedPenalties(t *testing.T) {
	r := filter.Apply(filter.Input{
		AllowedSizes: []string{"large"}, CompanySize: "micro",
		RegionScope: "Algarve", CompanyDistrict: "Porto",
	})
	// Multiply as float64 values, the way Apply does, rather than as
	// exact untyped constants.
	size, region := filter.SizeMismatchPenalty, filter.RegionMismatchPenalty
	want := size * region
	if r.Multiplier != want {
		t.Fatalf("expected stacked penalty %v, got %v", want, r.Multiplier)
	}
	if len(r.Applied) != 2 {
		t.Fatalf("expected 2 applied penalties, got %v", r.Applied)
	}
}
