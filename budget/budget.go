// Package budget implements the Budget Planner (C3): given input
// token count and per-token prices, decides how many output tokens a
// call may request without exceeding a EUR cap, and shrinks
// oversized input text to fit.
//
// Grounded directly on budget_guard.py's plan_output_tokens and
// shrink_context.
package budget

import (
	"regexp"
	"strings"

	"github.com/alfred-dev/incentive-core/tokenizer"
)

// DefaultRequestBudgetEUR is the fallback per-request cap (spec §4.3).
const DefaultRequestBudgetEUR = 0.30

// DefaultHardCapOutputTokens bounds planned output regardless of
// remaining budget.
const DefaultHardCapOutputTokens = 800

// headFraction / tailFraction: ShrinkContext keeps this much of the
// budget from the start and the end of text respectively.
const (
	headFraction = 0.7
	tailFraction = 0.3
)

// Plan is the outcome of planning output tokens for a request.
type Plan struct {
	MaxOutputTokens int
	InputCostEUR    float64
	Fits            bool
}

// PlanOutputTokens computes the max output tokens that fit within
// budgetEUR given inputTokens and per-million-token EUR prices for
// input/output. If the input alone exceeds the budget, Fits is false
// and MaxOutputTokens is 0.
func PlanOutputTokens(inputTokens int, priceInPerMillion, priceOutPerMillion, budgetEUR float64, hardCapOut int) Plan {
	costIn := (float64(inputTokens) / 1_000_000) * priceInPerMillion
	remain := budgetEUR - costIn
	if remain <= 0 {
		return Plan{MaxOutputTokens: 0, InputCostEUR: costIn, Fits: false}
	}

	maxOut := int((remain / priceOutPerMillion) * 1_000_000)
	if maxOut > hardCapOut {
		maxOut = hardCapOut
	}
	return Plan{MaxOutputTokens: maxOut, InputCostEUR: costIn, Fits: true}
}

var (
	trailingWhitespaceBeforeNewline = regexp.MustCompile(`[ \t]+\n`)
	repeatedSpacesOrTabs            = regexp.MustCompile(`[ \t]{2,}`)
)

// shrinkMarker separates the kept head and tail when ShrinkContext
// must drop the middle of the text.
const shrinkMarker = "\n\n[...context reduced...]\n\n"

// ShrinkContext reduces text to fit within maxTokens under model's
// counting rules, keeping the first 70% of the token budget from the
// start of the text and the last 30% from the end — the middle is
// dropped, since for retrieved-document context the opening and
// closing tend to carry the identifying and concluding information.
func ShrinkContext(text, model string, maxTokens int) string {
	cleaned := trailingWhitespaceBeforeNewline.ReplaceAllString(text, "\n")
	cleaned = repeatedSpacesOrTabs.ReplaceAllString(cleaned, " ")

	counter := tokenizer.ForModel(model)
	current := counter.Count(cleaned)
	if current <= maxTokens || current == 0 {
		return cleaned
	}

	// Reserve room for the marker (plus one token of rounding slack) so
	// head + marker + tail stays within maxTokens.
	available := maxTokens - counter.Count(shrinkMarker) - 1
	if available < 0 {
		available = 0
	}
	headTokens := int(float64(available) * headFraction)
	tailTokens := available - headTokens

	runes := []rune(cleaned)
	charsPerToken := float64(len(runes)) / float64(current)

	headChars := int(float64(headTokens) * charsPerToken)
	tailChars := int(float64(tailTokens) * charsPerToken)
	if headChars > len(runes) {
		headChars = len(runes)
	}
	if tailChars > len(runes) {
		tailChars = len(runes)
	}

	head := string(runes[:headChars])
	tail := string(runes[len(runes)-tailChars:])

	return strings.TrimRight(head, " \t") + shrinkMarker + strings.TrimLeft(tail, " \t")
}
