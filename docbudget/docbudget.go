// Package docbudget implements the Document Budget Tracker (C5): a
// cumulative per-document-tag EUR cap, independent of the
// per-request budget, so a single source document can't be charged
// against repeatedly across many requests without limit.
//
// Grounded directly on document_cost_tracker.py's DocumentCostTracker,
// with the per-key map+mutex shape following the Alfred gateway's
// middleware.RateLimiter (adapted from sliding-window rate counting
// to cumulative EUR counting, since spec §4.5 tracks total spend per
// tag rather than request rate).
package docbudget

import "sync"

// Tracker enforces a cumulative EUR budget per document tag.
type Tracker struct {
	mu       sync.Mutex
	spent    map[string]float64
	maxPerID float64
}

// New creates a Tracker capping cumulative spend per tag at
// maxPerDocumentEUR.
func New(maxPerDocumentEUR float64) *Tracker {
	return &Tracker{spent: make(map[string]float64), maxPerID: maxPerDocumentEUR}
}

// CanSpend reports whether estimatedCost can be charged against tag
// without exceeding its cap.
func (t *Tracker) CanSpend(tag string, estimatedCost float64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.spent[tag]+estimatedCost <= t.maxPerID
}

// RecordCost charges actualCost against tag's cumulative spend.
func (t *Tracker) RecordCost(tag string, actualCost float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.spent[tag] += actualCost
}

// RemainingBudget returns the EUR still available for tag.
func (t *Tracker) RemainingBudget(tag string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.maxPerID - t.spent[tag]
}

// SpentSoFar returns the cumulative EUR already charged to tag.
func (t *Tracker) SpentSoFar(tag string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.spent[tag]
}

// Reset clears tracking for tag.
func (t *Tracker) Reset(tag string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.spent, tag)
}
