// Package tokenizer implements the Tokenizer Adapter (C2): per-model
// token counting used to plan budgets before a call is made.
//
// Grounded on the Alfred gateway's provider.TokenCounter (per-provider
// counting strategy, strings.Contains dispatch on model name), adapted
// here to per-model chars-per-token ratios since the core has no
// access to a real BPE tokenizer for every model family it might be
// pointed at.
package tokenizer

import "strings"

// Counter counts tokens for a given piece of text under a model's
// counting rules.
type Counter interface {
	Count(text string) int
}

type charRatio struct {
	charsPerToken float64
}

func (c charRatio) Count(text string) int {
	if text == "" {
		return 0
	}
	n := int(float64(len([]rune(text))) / c.charsPerToken)
	if n < 1 {
		return 1
	}
	return n
}

// ForModel returns the Counter appropriate for model, dispatching on
// substring match the way the gateway resolves per-provider counting
// strategies.
func ForModel(model string) Counter {
	normalized := strings.ToLower(model)
	switch {
	case strings.Contains(normalized, "claude"), strings.Contains(normalized, "anthropic"):
		return charRatio{charsPerToken: 3.5}
	case strings.Contains(normalized, "gpt"), strings.Contains(normalized, "openai"):
		return charRatio{charsPerToken: 4.0}
	case strings.Contains(normalized, "gemini"), strings.Contains(normalized, "google"):
		return charRatio{charsPerToken: 4.0}
	case strings.Contains(normalized, "mistral"):
		return charRatio{charsPerToken: 3.8}
	default:
		return charRatio{charsPerToken: 4.0}
	}
}

// Count is a convenience for the common case of counting once.
func Count(model, text string) int {
	return ForModel(model).Count(text)
}
