package match_test

import (
	"testing"

	"github.com/alfred-dev/incentive-core/match"
)

func candidatesWithScores(scores ...float64) []match.Candidate {
	out := make([]match.Candidate, len(scores))
	for i, s := range scores {
		out[i] = match.Candidate{CompanyID: string(rune('a' + i)), Score: s}
	}
	return out
}

func TestPrecisionAtKCountsAboveThreshold(t *testing.T) {
	cands := candidatesWithScores(0.9, 0.6, 0.4, 0.55, 0.1)
	if p := match.PrecisionAtK(cands, 5); p != 0.6 {
		t.Fatalf("expected 0.6, got %v", p)
	}
}

func TestPrecisionAtKEmpty(t *testing.T) {
	if p := match.PrecisionAtK(nil, 5); p != 0 {
		t.Fatalf("expected 0 for empty input, got %v", p)
	}
}

func TestNDCGAtKPerfectOrderingIsOne(t *testing.T) {
	cands := candidatesWithScores(0.9, 0.8, 0.7, 0.6, 0.5)
	if n := match.NDCGAtK(cands, 5); n < 0.999 {
		t.Fatalf("expected ~1.0 for already-ideal ordering, got %v", n)
	}
}

func TestNDCGAtKPenalizesMisorder(t *testing.T) {
	ideal := candidatesWithScores(0.9, 0.8, 0.7, 0.6, 0.5)
	misordered := candidatesWithScores(0.5, 0.8, 0.7, 0.6, 0.9)

	idealScore := match.NDCGAtK(ideal, 5)
	misorderedScore := match.NDCGAtK(misordered, 5)
	if misorderedScore >= idealScore {
		t.Fatalf("expected misordered nDCG < ideal nDCG, got %v vs %v", misorderedScore, idealScore)
	}
}

func TestNDCGAtKZeroScoresIsZero(t *testing.T) {
	cands := candidatesWithScores(0, 0, 0)
	if n := match.NDCGAtK(cands, 5); n != 0 {
		t.Fatalf("expected 0 when all scores are 0, got %v", n)
	}
}

func TestEvaluateAggregatesAcrossIncentivesSkippingEmpty(t *testing.T) {
	perIncentive := [][]match.Candidate{
		candidatesWithScores(0.9, 0.8, 0.7, 0.6, 0.5),
		{},
		candidatesWithScores(0.2, 0.1),
	}
	summary := match.Evaluate(perIncentive)
	if summary.IncentivesEvaluated != 2 {
		t.Fatalf("expected 2 evaluated incentives, got %d", summary.IncentivesEvaluated)
	}
	if summary.AveragePrecisionAt5 <= 0 {
		t.Fatalf("expected positive average precision, got %v", summary.AveragePrecisionAt5)
	}
}
