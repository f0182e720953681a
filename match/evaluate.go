package match

import "math"

// RelevanceThreshold is the score above which a match is counted as
// relevant for PrecisionAtK, matching the source evaluation script's
// fixed 0.5 cutoff.
const RelevanceThreshold = 0.5

// PrecisionAtK is the fraction of the top-k results whose score
// exceeds RelevanceThreshold. Grounded on evaluate_matching.py's
// calculate_precision_at_k.
func PrecisionAtK(candidates []Candidate, k int) float64 {
	if k <= 0 || len(candidates) == 0 {
		return 0
	}
	if k > len(candidates) {
		k = len(candidates)
	}
	var relevant int
	for _, c := range candidates[:k] {
		if c.Score > RelevanceThreshold {
			relevant++
		}
	}
	return float64(relevant) / float64(k)
}

// dcgAtK computes discounted cumulative gain over the first k scores,
// grounded on evaluate_matching.py's calculate_dcg_at_k: the first
// position is undiscounted, every later position i (0-based) is
// divided by log2(i+1).
func dcgAtK(scores []float64, k int) float64 {
	if k <= 0 {
		return 0
	}
	if k > len(scores) {
		k = len(scores)
	}
	var dcg float64
	for i, s := range scores[:k] {
		if i == 0 {
			dcg += s
			continue
		}
		dcg += s / math.Log2(float64(i+1))
	}
	return dcg
}

// NDCGAtK is the normalized discounted cumulative gain of candidates'
// scores against their own ideal (sorted descending) ordering,
// grounded on evaluate_matching.py's calculate_ndcg_at_k.
func NDCGAtK(candidates []Candidate, k int) float64 {
	if k <= 0 || len(candidates) == 0 {
		return 0
	}
	scores := make([]float64, len(candidates))
	for i, c := range candidates {
		scores[i] = c.Score
	}

	dcg := dcgAtK(scores, k)

	ideal := make([]float64, len(scores))
	copy(ideal, scores)
	sortDescending(ideal)
	idealDCG := dcgAtK(ideal, k)

	if idealDCG == 0 {
		return 0
	}
	return dcg / idealDCG
}

func sortDescending(xs []float64) {
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && xs[j-1] < xs[j]; j-- {
			xs[j-1], xs[j] = xs[j], xs[j-1]
		}
	}
}

// EvaluationSummary aggregates quality metrics across many incentives'
// match results, mirroring evaluate_matching.py's
// evaluate_matching_quality aggregate fields (its DB-sampling loop and
// CLI/JSON-file output are a declared non-goal here; callers supply
// whatever candidate sets they've already computed).
type EvaluationSummary struct {
	IncentivesEvaluated int
	AveragePrecisionAt5 float64
	AverageNDCGAt5      float64
}

// Evaluate aggregates PrecisionAtK/NDCGAtK (both at k=5) across one
// match result set per incentive. Incentives with no candidates are
// skipped, matching the source script's behavior of logging and
// continuing past empty match sets.
func Evaluate(perIncentive [][]Candidate) EvaluationSummary {
	const k = 5

	var summary EvaluationSummary
	var totalP, totalNDCG float64

	for _, candidates := range perIncentive {
		if len(candidates) == 0 {
			continue
		}
		totalP += PrecisionAtK(candidates, k)
		totalNDCG += NDCGAtK(candidates, k)
		summary.IncentivesEvaluated++
	}

	if summary.IncentivesEvaluated > 0 {
		summary.AveragePrecisionAt5 = totalP / float64(summary.IncentivesEvaluated)
		summary.AverageNDCGAt5 = totalNDCG / float64(summary.IncentivesEvaluated)
	}
	return summary
}
