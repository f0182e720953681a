// Package modelclient implements the Managed Model Client (C6): the
// single choke point through which every call to an upstream LLM or
// embedding endpoint passes, wrapping it with budget planning,
// response caching, and the error taxonomy.
//
// ModelEndpoint is trimmed from the Alfred gateway's provider.Provider
// interface (streaming, tool-calling, health checks, and model
// listing are all declared non-goals by spec §10 — this core makes
// single-shot chat and embedding calls only).
package modelclient

import (
	"context"
	"fmt"
	"time"

	"github.com/alfred-dev/incentive-core/budget"
	"github.com/alfred-dev/incentive-core/cache"
	"github.com/alfred-dev/incentive-core/docbudget"
	"github.com/alfred-dev/incentive-core/incentiveerrors"
	"github.com/alfred-dev/incentive-core/pricing"
	"github.com/alfred-dev/incentive-core/tokenizer"
	"github.com/rs/zerolog"
)

// ChatRequest is a single-shot, non-streaming chat request.
type ChatRequest struct {
	Model       string
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// ChatResponse is the result of a chat call.
type ChatResponse struct {
	Text         string
	InputTokens  int
	OutputTokens int
	// EURCost is the actual spend for this call: 0 on a cache hit,
	// the computed cost on a fresh upstream call (spec §4.6).
	EURCost float64
	// FromCache reports whether Text was served from the response
	// cache rather than a fresh upstream call.
	FromCache bool
}

// EmbedResponse is the result of an embedding call.
type EmbedResponse struct {
	Vector []float32
	Tokens int
	// Dimension is len(Vector), surfaced explicitly per spec §4.6's
	// result contract.
	Dimension int
	EURCost   float64
	FromCache bool
}

// ModelEndpoint is the minimal surface a concrete provider adapter
// must implement.
type ModelEndpoint interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
	Embed(ctx context.Context, model, text string) (EmbedResponse, error)
}

// Client is the Managed Model Client: it plans a budget before
// calling out, serves from cache when possible, and records spend
// against both the per-request budget (via the caller-supplied
// requestBudgetEUR) and the optional document tag tracker.
type Client struct {
	endpoint ModelEndpoint
	prices   *pricing.Oracle
	cache    *cache.Store
	docs     *docbudget.Tracker
	logger   zerolog.Logger

	hardCapOutputTokens int
}

// New constructs a Client. docs may be nil when no document-tag cap
// applies to a given call (e.g. company-side calls in the Match
// Engine, which are not scoped to a source document).
func New(endpoint ModelEndpoint, prices *pricing.Oracle, responseCache *cache.Store, docs *docbudget.Tracker, logger zerolog.Logger, hardCapOutputTokens int) *Client {
	return &Client{
		endpoint:            endpoint,
		prices:              prices,
		cache:               responseCache,
		docs:                docs,
		logger:              logger,
		hardCapOutputTokens: hardCapOutputTokens,
	}
}

// CallOptions parameterizes one Chat call's budget and caching
// behavior.
type CallOptions struct {
	RequestBudgetEUR float64
	// DocumentTag scopes this call against the document budget
	// tracker. Empty means no document-level cap is enforced.
	DocumentTag string
}

// EmbedOptions parameterizes one Embed call's budget and document-tag
// accounting, mirroring CallOptions.
type EmbedOptions struct {
	RequestBudgetEUR float64
	DocumentTag      string
}

// shrinkTargetTokens is the size ShrinkContext aims for when a chat
// request's input alone doesn't fit the request budget, matching
// openai_client.py's chat_completion shrink-and-retry step.
const shrinkTargetTokens = 1000

// Chat performs a budget-guarded, cache-checked chat call. If the
// input alone doesn't fit the request budget, the prompt is shrunk
// once via budget.ShrinkContext and the plan is retried before giving
// up with BudgetExceeded (spec §4.6 step 4).
func (c *Client) Chat(ctx context.Context, req ChatRequest, opts CallOptions) (ChatResponse, error) {
	inputTokens := tokenizer.Count(req.Model, req.System+"\n"+req.Prompt)

	price, ok := c.prices.Price(ctx, req.Model)
	if !ok {
		return ChatResponse{}, incentiveerrors.New(incentiveerrors.UpstreamFailure, req.Model, inputTokens, 0, "no pricing known for model", nil)
	}

	budgetEUR := opts.RequestBudgetEUR
	if budgetEUR <= 0 {
		budgetEUR = budget.DefaultRequestBudgetEUR
	}

	if !price.Free {
		plan := budget.PlanOutputTokens(inputTokens, price.InputPerMillion, price.OutputPerMillion, budgetEUR, c.hardCapOutputTokens)
		if !plan.Fits {
			if shrunk := budget.ShrinkContext(req.Prompt, req.Model, shrinkTargetTokens); shrunk != req.Prompt {
				req.Prompt = shrunk
				inputTokens = tokenizer.Count(req.Model, req.System+"\n"+req.Prompt)
				plan = budget.PlanOutputTokens(inputTokens, price.InputPerMillion, price.OutputPerMillion, budgetEUR, c.hardCapOutputTokens)
				c.logger.Warn().Str("model", req.Model).Msg("context too large, shrank and retried plan")
			}
		}
		if !plan.Fits {
			return ChatResponse{}, incentiveerrors.New(incentiveerrors.BudgetExceeded, req.Model, inputTokens, 0, "input alone exceeds request budget even after context shrinking", nil)
		}
		if req.MaxTokens <= 0 || req.MaxTokens > plan.MaxOutputTokens {
			req.MaxTokens = plan.MaxOutputTokens
		}

		if opts.DocumentTag != "" && c.docs != nil {
			estimatedCost := plan.InputCostEUR + (float64(req.MaxTokens)/1_000_000)*price.OutputPerMillion
			if !c.docs.CanSpend(opts.DocumentTag, estimatedCost) {
				return ChatResponse{}, incentiveerrors.New(incentiveerrors.DocumentBudgetExceeded, req.Model, inputTokens, 0, "document budget exhausted", nil)
			}
		}
	}

	key := cache.Key(req.Model, []byte(req.System+"\x00"+req.Prompt+"\x00"+fmt.Sprint(req.MaxTokens)))

	if c.cache != nil {
		if entry, err := c.cache.Get(ctx, key); err == nil {
			if lerr := c.cache.RecordLedger(ctx, cache.LedgerRow{
				Model: req.Model, Operation: "chat",
				InputTokens: entry.InputTokens, OutputTokens: entry.OutputTokens,
				CostEUR: 0, FromCache: true, CreatedAt: time.Now().UTC(),
			}); lerr != nil {
				c.logger.Warn().Err(lerr).Msg("failed to record cache-hit ledger row")
			}
			c.logger.Debug().Str("model", req.Model).Msg("cache hit")
			return ChatResponse{
				Text: string(entry.Response), InputTokens: entry.InputTokens, OutputTokens: entry.OutputTokens,
				EURCost: 0, FromCache: true,
			}, nil
		}
	}

	resp, err := c.endpoint.Chat(ctx, req)
	if err != nil {
		return ChatResponse{}, incentiveerrors.New(incentiveerrors.UpstreamFailure, req.Model, inputTokens, 0, "chat call failed", err)
	}

	costEUR := costFor(price, resp.InputTokens, resp.OutputTokens)
	c.logPct(req.Model, resp.InputTokens, resp.OutputTokens, costEUR, budgetEUR)

	if opts.DocumentTag != "" && c.docs != nil {
		c.docs.RecordCost(opts.DocumentTag, costEUR)
	}

	if c.cache != nil {
		now := time.Now().UTC()
		_ = c.cache.Put(ctx, cache.Entry{
			Key: key, Model: req.Model, Response: []byte(resp.Text),
			InputTokens: resp.InputTokens, OutputTokens: resp.OutputTokens, CostEUR: costEUR,
			CreatedAt: now,
		})
		if lerr := c.cache.RecordLedger(ctx, cache.LedgerRow{
			Model: req.Model, Operation: "chat",
			InputTokens: resp.InputTokens, OutputTokens: resp.OutputTokens,
			CostEUR: costEUR, FromCache: false, CreatedAt: now,
		}); lerr != nil {
			c.logger.Warn().Err(lerr).Msg("failed to record ledger row")
		}
	}

	resp.EURCost = costEUR
	resp.FromCache = false
	return resp, nil
}

// Embed performs a budget-guarded embedding call. Unlike Chat it is
// never served from the response cache (queries change per entity, so
// exact-match caching would rarely hit), but it is still priced,
// capped against the request budget, and recorded into the ledger and
// — when tagged — the Document Budget Tracker, mirroring
// create_embedding's guard in openai_client.py.
func (c *Client) Embed(ctx context.Context, model, text string, opts EmbedOptions) (EmbedResponse, error) {
	inputTokens := tokenizer.Count(model, text)

	price, ok := c.prices.Price(ctx, model)
	if !ok {
		return EmbedResponse{}, incentiveerrors.New(incentiveerrors.UpstreamFailure, model, inputTokens, 0, "no pricing known for model", nil)
	}

	budgetEUR := opts.RequestBudgetEUR
	if budgetEUR <= 0 {
		budgetEUR = budget.DefaultRequestBudgetEUR
	}

	estimatedCost := (float64(inputTokens) / 1_000_000) * price.InputPerMillion
	if !price.Free && estimatedCost > budgetEUR {
		return EmbedResponse{}, incentiveerrors.New(incentiveerrors.BudgetExceeded, model, inputTokens, 0, "embedding would exceed request budget", nil)
	}

	if opts.DocumentTag != "" && c.docs != nil {
		if !c.docs.CanSpend(opts.DocumentTag, estimatedCost) {
			return EmbedResponse{}, incentiveerrors.New(incentiveerrors.DocumentBudgetExceeded, model, inputTokens, 0, "document budget exhausted", nil)
		}
	}

	resp, err := c.endpoint.Embed(ctx, model, text)
	if err != nil {
		return EmbedResponse{}, incentiveerrors.New(incentiveerrors.UpstreamFailure, model, inputTokens, 0, "embedding call failed", err)
	}

	costEUR := (float64(resp.Tokens) / 1_000_000) * price.InputPerMillion
	if price.Free {
		costEUR = 0
	}

	if opts.DocumentTag != "" && c.docs != nil {
		c.docs.RecordCost(opts.DocumentTag, costEUR)
	}

	if c.cache != nil {
		if lerr := c.cache.RecordLedger(ctx, cache.LedgerRow{
			Model: model, Operation: "embed",
			InputTokens: resp.Tokens, OutputTokens: 0,
			CostEUR: costEUR, FromCache: false, CreatedAt: time.Now().UTC(),
		}); lerr != nil {
			c.logger.Warn().Err(lerr).Msg("failed to record ledger row")
		}
	}

	resp.Dimension = len(resp.Vector)
	resp.EURCost = costEUR
	resp.FromCache = false
	return resp, nil
}

func costFor(p pricing.ModelPrice, inputTokens, outputTokens int) float64 {
	if p.Free {
		return 0
	}
	return (float64(inputTokens)/1_000_000)*p.InputPerMillion + (float64(outputTokens)/1_000_000)*p.OutputPerMillion
}

// logPct logs cost as a fraction of budget, grounded on
// budget_guard.py's format_cost_info percentage-of-budget framing,
// expressed as a structured log field rather than ANSI-colored text.
func (c *Client) logPct(model string, inputTokens, outputTokens int, costEUR, budgetEUR float64) {
	pct := 0.0
	if budgetEUR > 0 {
		pct = (costEUR / budgetEUR) * 100
	}
	c.logger.Info().
		Str("model", model).
		Int("input_tokens", inputTokens).
		Int("output_tokens", outputTokens).
		Float64("cost_eur", costEUR).
		Float64("pct_of_budget", pct).
		Msg("model call completed")
}
