// Package match implements the Match Engine (C11): orchestrates the
// Vector Retriever, Deterministic Filter, Lexical Scorer, and
// Re-Ranker into a single ranked result list with weighted fusion.
//
// Grounded directly on matching_service.py's find_matches for the
// pipeline shape and weights; the parallel fan-out over the candidate
// pool is grounded on the Alfred gateway's concurrent-probing pattern
// in routing/sla_balancer.go, implemented here with
// golang.org/x/sync/errgroup: the scoring itself is pure CPU work, and
// the only error a worker returns is a failed company load from the
// store, which errgroup propagates as the first error.
package match

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/alfred-dev/incentive-core/filter"
	"github.com/alfred-dev/incentive-core/incentiveerrors"
	"github.com/alfred-dev/incentive-core/lexical"
	"github.com/alfred-dev/incentive-core/modelclient"
	"github.com/alfred-dev/incentive-core/rerank"
	"github.com/alfred-dev/incentive-core/store"
)

// Weights controls the fusion of component scores. Construction-time
// configurable; defaults below match spec exactly.
type Weights struct {
	Vector float64
	Lexical float64
	LLM     float64
}

// DefaultWeights are the weights used when none are supplied.
var DefaultWeights = Weights{Vector: 0.50, Lexical: 0.20, LLM: 0.30}

// Options parameterizes one match run.
type Options struct {
	TopK          int
	CandidatePool int
	UseLLM        bool
	RerankModel   string
	Weights       Weights
	WorkerPool    int // <= 0 falls back to DefaultOptions' pool size (8)
}

// DefaultOptions mirror the source service's defaults.
func DefaultOptions() Options {
	return Options{TopK: 5, CandidatePool: 100, UseLLM: true, RerankModel: "gpt-4o-mini", Weights: DefaultWeights, WorkerPool: 8}
}

// Candidate is one scored company for an incentive.
type Candidate struct {
	CompanyID       string
	CompanyName     string
	Score           float64
	ComponentScores map[string]float64
	PenaltiesApplied map[string]float64
	Explanation     string
}

// Engine runs match operations against a Store and Managed Model
// Client.
type Engine struct {
	store  store.Store
	client *modelclient.Client
}

// New constructs a match Engine.
func New(s store.Store, client *modelclient.Client) *Engine {
	return &Engine{store: s, client: client}
}

type scored struct {
	company *store.Company
	vector  float64
	lexical float64
	penalty float64
	applied map[string]float64
	llm     float64
	reason  string
	hasLLM  bool
}

// Match finds the top_k companies for incentiveID.
func (e *Engine) Match(ctx context.Context, incentiveID string, opts Options) ([]Candidate, error) {
	opts = mergeDefaults(opts)

	incentive, err := e.store.GetIncentive(ctx, incentiveID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, incentiveerrors.New(incentiveerrors.NotFound, "", 0, 0, "incentive not found", err)
		}
		return nil, incentiveerrors.New(incentiveerrors.StoreUnavailable, "", 0, 0, "store read failed", err)
	}
	if incentive.Embedding == nil {
		return nil, incentiveerrors.New(incentiveerrors.NotFound, "", 0, 0, "incentive has no embedding", nil)
	}

	neighbors, err := e.store.Nearest(ctx, store.EntityCompany, incentive.Embedding, opts.CandidatePool)
	if err != nil {
		return nil, incentiveerrors.New(incentiveerrors.StoreUnavailable, "", 0, 0, "nearest-neighbor search failed", err)
	}

	scoredCandidates, err := e.scoreCandidates(ctx, incentive, neighbors, opts)
	if err != nil {
		return nil, err
	}

	sortByPreliminary(scoredCandidates, opts.Weights)

	if opts.UseLLM && len(scoredCandidates) > 0 {
		e.applyRerank(ctx, incentive, scoredCandidates, opts)
	}

	results := finalize(scoredCandidates, opts.Weights, opts.UseLLM)
	sortByFinal(results)

	if len(results) > opts.TopK {
		results = results[:opts.TopK]
	}
	return results, nil
}

func mergeDefaults(opts Options) Options {
	def := DefaultOptions()
	if opts.TopK <= 0 {
		opts.TopK = def.TopK
	}
	if opts.CandidatePool <= 0 {
		opts.CandidatePool = def.CandidatePool
	}
	if opts.Weights == (Weights{}) {
		opts.Weights = def.Weights
	}
	if opts.RerankModel == "" {
		opts.RerankModel = def.RerankModel
	}
	if opts.WorkerPool <= 0 {
		opts.WorkerPool = def.WorkerPool
	}
	return opts
}

func (e *Engine) scoreCandidates(ctx context.Context, incentive *store.Incentive, neighbors []store.Neighbor, opts Options) ([]*scored, error) {
	results := make([]*scored, len(neighbors))

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, opts.WorkerPool)

	for i, n := range neighbors {
		i, n := i, n
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			company, err := e.store.GetCompany(gctx, n.EntityID)
			if err != nil {
				return fmt.Errorf("match: load company %s: %w", n.EntityID, err)
			}

			var allowedSizes []string
			var sectors []string
			var region string
			if incentive.Attributes != nil {
				for _, s := range incentive.Attributes.AllowedSizes {
					allowedSizes = append(allowedSizes, string(s))
				}
				sectors = incentive.Attributes.SectorCodes
				region = incentive.Attributes.GeographicScope
			}

			penaltyResult := filter.Apply(filter.Input{
				AllowedSizes:     allowedSizes,
				CompanySize:      string(company.Size),
				IncentiveSectors: sectors,
				CompanySectors:   company.SectorCodes,
				RegionScope:      region,
				CompanyDistrict:  company.District,
			})

			lexScore := lexical.Score(lexicalQueryText(incentive), lexicalDocText(company))

			results[i] = &scored{
				company: company,
				vector:  n.Similarity,
				lexical: lexScore,
				penalty: penaltyResult.Multiplier,
				applied: penaltyResult.Applied,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, incentiveerrors.New(incentiveerrors.StoreUnavailable, "", 0, 0, "candidate scoring failed", err)
	}
	return results, nil
}

// lexicalQueryText builds the BM25 query bag for an incentive: title,
// description, investment objectives, specific purposes, sector codes
// (CAEs), and the top 3 eligibility criteria — grounded verbatim on
// matching_service.py's _calculate_bm25_score query_parts assembly.
// Dropping sector-code overlap would discard a central matching
// signal, so it is included alongside the free-text fields.
func lexicalQueryText(incentive *store.Incentive) string {
	parts := []string{incentive.Title}
	if incentive.Description != "" {
		parts = append(parts, incentive.Description)
	}
	if incentive.Attributes != nil {
		parts = append(parts, incentive.Attributes.InvestmentObjectives...)
		parts = append(parts, incentive.Attributes.SpecificPurposes...)
		parts = append(parts, incentive.Attributes.SectorCodes...)
		criteria := incentive.Attributes.EligibilityCriteria
		if len(criteria) > 3 {
			criteria = criteria[:3]
		}
		parts = append(parts, criteria...)
	}
	return strings.Join(parts, " ")
}

// lexicalDocText builds the BM25 document bag for a company: name,
// sector codes (CAEs), raw description, and district — mirroring
// matching_service.py's doc_parts assembly.
func lexicalDocText(company *store.Company) string {
	parts := []string{company.Name}
	parts = append(parts, company.SectorCodes...)
	if desc, ok := company.Raw["description"].(string); ok && desc != "" {
		parts = append(parts, desc)
	}
	if company.District != "" {
		parts = append(parts, company.District)
	}
	return strings.Join(parts, " ")
}

func sortByPreliminary(candidates []*scored, w Weights) {
	sort.Slice(candidates, func(i, j int) bool {
		si := (w.Vector*candidates[i].vector + w.Lexical*candidates[i].lexical) * candidates[i].penalty
		sj := (w.Vector*candidates[j].vector + w.Lexical*candidates[j].lexical) * candidates[j].penalty
		if si != sj {
			return si > sj
		}
		return candidates[i].company.ID < candidates[j].company.ID
	})
}

const rerankPoolSize = 20

func (e *Engine) applyRerank(ctx context.Context, incentive *store.Incentive, candidates []*scored, opts Options) {
	top := candidates
	if len(top) > rerankPoolSize {
		top = top[:rerankPoolSize]
	}

	rerankCandidates := make([]rerank.Candidate, len(top))
	for i, c := range top {
		rerankCandidates[i] = rerank.Candidate{
			Index: i + 1, ID: c.company.ID, Name: c.company.Name,
			Sectors: c.company.SectorCodes, District: c.company.District,
		}
	}

	docTag := "rerank_" + incentive.ID
	results := rerank.Rerank(ctx, e.client, opts.RerankModel, incentive.Title, incentive.Description, rerankCandidates, docTag)

	for _, c := range top {
		if r, ok := results[c.company.ID]; ok {
			c.llm = r.Score
			c.reason = r.Reason
			c.hasLLM = true
		}
	}
}

func finalize(candidates []*scored, w Weights, useLLM bool) []Candidate {
	out := make([]Candidate, len(candidates))
	for i, c := range candidates {
		activeWeights := w
		hasLLM := useLLM && c.hasLLM
		if !hasLLM {
			// No re-rank score for this candidate (UseLLM off, outside
			// top 20, or the re-rank call degraded entirely):
			// renormalize over vector+lexical only, per spec §4.11 step 5.
			total := w.Vector + w.Lexical
			if total > 0 {
				activeWeights = Weights{Vector: w.Vector / total, Lexical: w.Lexical / total, LLM: 0}
			}
		}

		score := activeWeights.Vector*c.vector + activeWeights.Lexical*c.lexical
		if hasLLM {
			score += activeWeights.LLM * c.llm
		}
		score *= c.penalty

		componentScores := map[string]float64{"vector": c.vector, "lexical": c.lexical, "penalty": c.penalty}
		if hasLLM {
			componentScores["llm"] = c.llm
		}

		out[i] = Candidate{
			CompanyID:        c.company.ID,
			CompanyName:      c.company.Name,
			Score:            score,
			ComponentScores:  componentScores,
			PenaltiesApplied: c.applied,
			Explanation:      explain(c),
		}
	}
	return out
}

func explain(c *scored) string {
	var parts []string
	if c.hasLLM && c.reason != "" {
		parts = append(parts, c.reason)
	}
	if len(c.applied) > 0 {
		parts = append(parts, penaltySummary(c.applied))
	}
	if len(parts) == 0 {
		return "Match based on similarity"
	}
	out := parts[0]
	for _, p := range parts[1:] {
		out += ". " + p
	}
	return out
}

func penaltySummary(applied map[string]float64) string {
	keys := make([]string, 0, len(applied))
	for k := range applied {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := "Penalties applied: "
	for i, k := range keys {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%s: %.0f%%", k, applied[k]*100)
	}
	return out
}

func sortByFinal(candidates []Candidate) {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].CompanyID < candidates[j].CompanyID
	})
}
