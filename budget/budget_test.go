package budget_test

import (
	"strings"
	"testing"

	"github.com/alfred-dev/incentive-core/budget"
)

func TestPlanOutputTokensFits(t *testing.T) {
	plan := budget.PlanOutputTokens(1000, 0.15, 0.60, 0.30, 800)
	if !plan.Fits {
		t.Fatal("expected plan to fit")
	}
	if plan.MaxOutputTokens <= 0 {
		t.Fatalf("expected positive max output tokens, got %d", plan.MaxOutputTokens)
	}
	if plan.MaxOutputTokens > 800 {
		t.Fatalf("expected hard cap respected, got %d", plan.MaxOutputTokens)
	}
}

func TestPlanOutputTokensInputExceedsBudget(t *testing.T) {
	// Extremely large input with a costly input price blows through
	// the whole budget on input alone.
	plan := budget.PlanOutputTokens(10_000_000, 30.0, 60.0, 0.30, 800)
	if plan.Fits {
		t.Fatal("expected plan not to fit")
	}
	if plan.MaxOutputTokens != 0 {
		t.Fatalf("expected 0 output tokens, got %d", plan.MaxOutputTokens)
	}
}

func TestPlanOutputTokensHardCap(t *testing.T) {
	// Cheap prices and ample budget: the hard cap should bind, not the
	// budget.
	plan := budget.PlanOutputTokens(10, 0.001, 0.001, 10.0, 800)
	if plan.MaxOutputTokens != 800 {
		t.Fatalf("expected hard cap of 800, got %d", plan.MaxOutputTokens)
	}
}

func TestShrinkContextNoopUnderLimit(t *testing.T) {
	text := "short text"
	got := budget.ShrinkContext(text, "gpt-4o-mini", 1000)
	if got != text {
		t.Fatalf("expected unchanged text, got %q", got)
	}
}

func TestShrinkContextKeepsHeadAndTail(t *testing.T) {
	text := strings.Repeat("alpha beta gamma delta epsilon ", 200)
	got := budget.ShrinkContext(text, "gpt-4o-mini", 20)

	if !strings.Contains(got, "[...context reduced...]") {
		t.Fatalf("expected reduction marker in output: %q", got)
	}
	if !strings.HasPrefix(got, "alpha") {
		t.Fatalf("expected output to start with original head, got %q", got[:min(20, len(got))])
	}
}
