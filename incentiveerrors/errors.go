// Package incentiveerrors defines the closed error-kind taxonomy
// observable at the core's boundary (spec §7). Every failure that can
// escape a public operation in modelclient, match, or rag carries one
// of these kinds, the model name attempted, and the token counts
// involved, rather than an ad-hoc error string — mirroring how the
// Python original used distinct exception classes per failure mode
// (budget_guard.py, openai_client.py) but expressed as an explicit
// Go result kind per spec §9 ("exception-for-control-flow ... becomes
// explicit result-kinds").
package incentiveerrors

import (
	"errors"
	"fmt"
)

// Kind is the closed set of error kinds the core can surface.
type Kind string

const (
	// NotFound: entity or its embedding missing. No retry.
	NotFound Kind = "not_found"
	// BudgetExceeded: request cannot fit under the per-request cap
	// even after shrinking.
	BudgetExceeded Kind = "budget_exceeded"
	// DocumentBudgetExceeded: the per-document tag cap is reached.
	DocumentBudgetExceeded Kind = "document_budget_exceeded"
	// UpstreamFailure: transport or provider error.
	UpstreamFailure Kind = "upstream_failure"
	// ParseFailure: structured response malformed after one repair
	// attempt.
	ParseFailure Kind = "parse_failure"
	// StoreUnavailable: the retrieval backend failed.
	StoreUnavailable Kind = "store_unavailable"
)

// Error is the concrete error type returned across the core's public
// boundary.
type Error struct {
	Kind         Kind
	Model        string
	InputTokens  int
	OutputTokens int
	Message      string
	Cause        error
}

func (e *Error) Error() string {
	base := fmt.Sprintf("%s: %s (model=%s in_tok=%d out_tok=%d)",
		e.Kind, e.Message, e.Model, e.InputTokens, e.OutputTokens)
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", base, e.Cause)
	}
	return base
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an Error.
func New(kind Kind, model string, inputTokens, outputTokens int, message string, cause error) *Error {
	return &Error{
		Kind:         kind,
		Model:        model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		Message:      message,
		Cause:        cause,
	}
}

// KindOf is a convenience for call sites that only care about the
// kind, unwrapping through any wrapper chain via errors.As.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
