// Package pricing implements the Price Oracle (C1): per-model EUR
// pricing with a time-to-live cache, a persisted exchange rate, and a
// hardcoded fallback rate when both the live exchange rate and the
// cache are unavailable. USD prices come from a static table.
//
// The static per-model USD table is grounded on the Alfred gateway's
// provider.DefaultPricing; the TTL/refresh/fallback behavior mirrors
// budget_guard.py's get_gpt4o_mini_prices_cached and
// get_exchange_rate_cached, including its fallback EUR-per-USD rate
// of 0.93 and its "fall back to stale cache before fallback to
// hardcoded" preference order. Persistence of the price and
// exchange-rate records mirrors budget_guard.py's on-disk JSON cache
// files (one per model, plus one for the rate) — here backed by
// cache.Store's key-value prices table (PriceStore) instead of loose
// files, so the Oracle survives restarts without its own file format.
package pricing

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// FallbackEURPerUSD is used when no live or cached exchange rate is
// available.
const FallbackEURPerUSD = 0.93

const rateRecordKey = "rate:eur_usd"

func priceRecordKey(model string) string { return "price:" + model }

// ModelPrice is EUR per 1M tokens for a model.
type ModelPrice struct {
	InputPerMillion  float64
	OutputPerMillion float64
	Free             bool
}

type cachedRate struct {
	rate     float64
	cachedAt time.Time
}

type cachedPrice struct {
	price    ModelPrice
	cachedAt time.Time
}

// RateFetcher fetches the current EUR-per-USD exchange rate from a
// live source. A production deployment wires in an HTTP client
// against a currency API; Oracle works without one, falling straight
// to FallbackEURPerUSD.
type RateFetcher func(ctx context.Context) (float64, error)

// PriceStore persists price and exchange-rate records so they survive
// process restarts (spec §4.1: "the record is kept in a small
// key-value file on disk"). cache.Store implements this via its
// prices table.
type PriceStore interface {
	GetPriceRecord(ctx context.Context, key string) (data []byte, cachedAt time.Time, err error)
	PutPriceRecord(ctx context.Context, key string, data []byte, cachedAt time.Time) error
}

// Oracle is the Price Oracle: resolves model prices in EUR, caching
// both the base USD table's EUR conversion and the exchange rate
// itself for their respective TTLs, and persisting both through store
// when one is configured.
type Oracle struct {
	mu    sync.Mutex
	usd   map[string]usdPrice
	rate  *cachedRate
	price map[string]*cachedPrice
	store PriceStore

	rateTTL  time.Duration
	priceTTL time.Duration
	fetch    RateFetcher
}

type usdPrice struct {
	inputPerMillion  float64
	outputPerMillion float64
	free             bool
}

type persistedRate struct {
	Rate     float64   `json:"rate"`
	CachedAt time.Time `json:"cached_at"`
}

type persistedPrice struct {
	InputPerMillion  float64   `json:"input_per_million"`
	OutputPerMillion float64   `json:"output_per_million"`
	CachedAt         time.Time `json:"cached_at"`
}

// New constructs an Oracle over the built-in USD pricing table. fetch
// may be nil, in which case the oracle always uses FallbackEURPerUSD.
// store may be nil, in which case prices and the exchange rate live
// only in memory for the lifetime of the process.
func New(rateTTL, priceTTL time.Duration, fetch RateFetcher, store PriceStore) *Oracle {
	return &Oracle{
		usd:      defaultUSDPricing(),
		price:    make(map[string]*cachedPrice),
		rateTTL:  rateTTL,
		priceTTL: priceTTL,
		fetch:    fetch,
		store:    store,
	}
}

// defaultUSDPricing is a small representative table; a production
// deployment overlays or replaces it per deployment.
func defaultUSDPricing() map[string]usdPrice {
	return map[string]usdPrice{
		"gpt-4o-mini":                {inputPerMillion: 0.15, outputPerMillion: 0.60},
		"gpt-4o":                     {inputPerMillion: 2.50, outputPerMillion: 10.00},
		"text-embedding-3-small":     {inputPerMillion: 0.02, outputPerMillion: 0.0},
		"claude-3-5-haiku-20241022":  {inputPerMillion: 0.80, outputPerMillion: 4.00},
		"claude-3-5-sonnet-20241022": {inputPerMillion: 3.00, outputPerMillion: 15.00},
		"gemini-2.0-flash-lite":      {inputPerMillion: 0.0, outputPerMillion: 0.0, free: true},
	}
}

// SetUSDPrice overrides or adds a model's USD pricing, invalidating
// any cached EUR conversion for it.
func (o *Oracle) SetUSDPrice(model string, inputPerMillion, outputPerMillion float64, free bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.usd[model] = usdPrice{inputPerMillion: inputPerMillion, outputPerMillion: outputPerMillion, free: free}
	delete(o.price, model)
}

// IsFreeModel reports whether model is marked free-tier in the USD
// table (spec §9 supplemented feature).
func (o *Oracle) IsFreeModel(model string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	p, ok := o.usd[model]
	return ok && p.free
}

// Price returns model's EUR pricing, refreshing the cached conversion
// if its TTL has elapsed. Unknown models return ok=false.
func (o *Oracle) Price(ctx context.Context, model string) (ModelPrice, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	usd, ok := o.usd[model]
	if !ok {
		return ModelPrice{}, false
	}
	if usd.free {
		return ModelPrice{Free: true}, true
	}

	if cp, ok := o.price[model]; ok && time.Since(cp.cachedAt) < o.priceTTL {
		return cp.price, true
	}

	if o.store != nil {
		if cp, ok := o.loadPersistedPriceLocked(ctx, model); ok {
			o.price[model] = cp
			if time.Since(cp.cachedAt) < o.priceTTL {
				return cp.price, true
			}
		}
	}

	rate := o.exchangeRateLocked(ctx)
	cp := &cachedPrice{
		price: ModelPrice{
			InputPerMillion:  round6(usd.inputPerMillion * rate),
			OutputPerMillion: round6(usd.outputPerMillion * rate),
		},
		cachedAt: time.Now(),
	}
	o.price[model] = cp
	if o.store != nil {
		o.persistPriceLocked(ctx, model, cp)
	}
	return cp.price, true
}

// exchangeRateLocked resolves the EUR-per-USD rate, assuming o.mu is
// already held. Preference order: fresh cache, fresh persisted
// record, live fetch, stale cache/persisted record, hardcoded
// fallback — matching budget_guard.py's cascade. Every path that
// resolves a rate (including the hardcoded fallback) writes it back to
// store so a subsequent cold start does not storm the network.
func (o *Oracle) exchangeRateLocked(ctx context.Context) float64 {
	if o.rate != nil && time.Since(o.rate.cachedAt) < o.rateTTL {
		return o.rate.rate
	}

	if o.store != nil {
		if cr, ok := o.loadPersistedRateLocked(ctx); ok {
			if o.rate == nil || cr.cachedAt.After(o.rate.cachedAt) {
				o.rate = cr
			}
			if time.Since(cr.cachedAt) < o.rateTTL {
				return cr.rate
			}
		}
	}

	if o.fetch != nil {
		if rate, err := o.fetch(ctx); err == nil {
			o.rate = &cachedRate{rate: rate, cachedAt: time.Now()}
			if o.store != nil {
				o.persistRateLocked(ctx, o.rate)
			}
			return rate
		}
	}

	if o.rate != nil {
		stale := &cachedRate{rate: o.rate.rate, cachedAt: time.Now()}
		o.rate = stale
		if o.store != nil {
			o.persistRateLocked(ctx, stale)
		}
		return stale.rate
	}

	fallback := &cachedRate{rate: FallbackEURPerUSD, cachedAt: time.Now()}
	o.rate = fallback
	if o.store != nil {
		o.persistRateLocked(ctx, fallback)
	}
	return FallbackEURPerUSD
}

// loadPersistedRateLocked reads the exchange-rate record from store,
// if present and well-formed. Errors (miss, corrupt JSON) are treated
// as "no persisted record" rather than surfaced, since the caller
// always has the hardcoded fallback to fall through to.
func (o *Oracle) loadPersistedRateLocked(ctx context.Context) (*cachedRate, bool) {
	data, _, err := o.store.GetPriceRecord(ctx, rateRecordKey)
	if err != nil {
		return nil, false
	}
	var pr persistedRate
	if err := json.Unmarshal(data, &pr); err != nil {
		return nil, false
	}
	return &cachedRate{rate: pr.Rate, cachedAt: pr.CachedAt}, true
}

func (o *Oracle) persistRateLocked(ctx context.Context, cr *cachedRate) {
	data, err := json.Marshal(persistedRate{Rate: cr.rate, CachedAt: cr.cachedAt})
	if err != nil {
		return
	}
	_ = o.store.PutPriceRecord(ctx, rateRecordKey, data, cr.cachedAt)
}

func (o *Oracle) loadPersistedPriceLocked(ctx context.Context, model string) (*cachedPrice, bool) {
	data, _, err := o.store.GetPriceRecord(ctx, priceRecordKey(model))
	if err != nil {
		return nil, false
	}
	var pp persistedPrice
	if err := json.Unmarshal(data, &pp); err != nil {
		return nil, false
	}
	return &cachedPrice{
		price:    ModelPrice{InputPerMillion: pp.InputPerMillion, OutputPerMillion: pp.OutputPerMillion},
		cachedAt: pp.CachedAt,
	}, true
}

func (o *Oracle) persistPriceLocked(ctx context.Context, model string, cp *cachedPrice) {
	data, err := json.Marshal(persistedPrice{
		InputPerMillion:  cp.price.InputPerMillion,
		OutputPerMillion: cp.price.OutputPerMillion,
		CachedAt:         cp.cachedAt,
	})
	if err != nil {
		return
	}
	_ = o.store.PutPriceRecord(ctx, priceRecordKey(model), data, cp.cachedAt)
}

func round6(v float64) float64 {
	const scale = 1e6
	return float64(int64(v*scale+0.5)) / scale
}
