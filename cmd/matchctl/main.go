// Command matchctl is a small demonstration entrypoint: it seeds an
// in-memory store, wires a Managed Model Client against a concrete
// Anthropic endpoint (or a deterministic stub when no API key is
// configured), and runs one match and one RAG query end to end.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alfred-dev/incentive-core/cache"
	"github.com/alfred-dev/incentive-core/config"
	"github.com/alfred-dev/incentive-core/docbudget"
	"github.com/alfred-dev/incentive-core/logger"
	"github.com/alfred-dev/incentive-core/match"
	"github.com/alfred-dev/incentive-core/modelclient"
	"github.com/alfred-dev/incentive-core/pricing"
	"github.com/alfred-dev/incentive-core/rag"
	"github.com/alfred-dev/incentive-core/store"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg)

	cacheStore, err := cache.Open(cfg.CacheDBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open response cache")
	}
	defer cacheStore.Close()

	prices := pricing.New(cfg.ExchangeRateCacheTTL, cfg.PriceCacheTTL, nil, cacheStore)
	docs := docbudget.New(cfg.DocumentBudgetEUR)

	var endpoint modelclient.ModelEndpoint
	if cfg.ModelAPIKey != "" {
		var opts []modelclient.AnthropicOption
		if cfg.ModelAPIBase != "" {
			opts = append(opts, modelclient.WithAnthropicBaseURL(cfg.ModelAPIBase))
		}
		endpoint = modelclient.NewAnthropicEndpoint(cfg.ModelAPIKey, opts...)
	} else {
		log.Warn().Msg("MODEL_API_KEY not set — using a stub endpoint that returns canned responses")
		endpoint = stubEndpoint{}
	}

	client := modelclient.New(endpoint, prices, cacheStore, docs, log, cfg.HardCapOutputTokens)

	s := seedStore()

	matchEngine := match.New(s, client)
	opts := match.DefaultOptions()
	opts.WorkerPool = cfg.MatchWorkerPoolSize
	results, err := matchEngine.Match(context.Background(), "inc-1", opts)
	if err != nil {
		log.Error().Err(err).Msg("match failed")
	} else {
		fmt.Println("Matches for inc-1:")
		for _, r := range results {
			fmt.Printf("  %-8s score=%.3f  %s\n", r.CompanyID, r.Score, r.Explanation)
		}
	}

	ragEngine := rag.New(s, client)
	answer, err := ragEngine.Query(context.Background(), "Which incentives support renewable energy?", rag.DefaultMaxDocuments)
	if err != nil {
		log.Error().Err(err).Msg("rag query failed")
		os.Exit(1)
	}
	fmt.Printf("\nRAG answer (confidence=%.2f): %s\n", answer.Confidence, answer.Answer)
}

func seedStore() *store.Memory {
	m := store.NewMemory()
	m.PutIncentive(store.Incentive{
		ID: "inc-1", Title: "Renewable Energy Grant",
		Description: "Funding for industrial renewable energy and energy-efficiency projects",
		Attributes: &store.IncentiveAttributes{
			SectorCodes:     []string{"35"},
			AllowedSizes:    []store.CompanySize{store.SizeSME, store.SizeLarge},
			GeographicScope: "Norte",
		},
		SourceLink: "https://example.test/inc-1",
		Embedding:  store.Embedding{1, 0, 0},
	})
	m.PutCompany(store.Company{
		ID: "c1", Name: "SolarTech", SectorCodes: []string{"35"},
		Size: store.SizeSME, District: "Porto", Embedding: store.Embedding{1, 0, 0},
	})
	m.PutCompany(store.Company{
		ID: "c2", Name: "Hotelaria Lda", SectorCodes: []string{"55"},
		Size: store.SizeMicro, District: "Faro", Embedding: store.Embedding{0.9, 0.1, 0},
	})
	return m
}

// stubEndpoint is used when no API key is configured, so the demo
// still runs end to end without network access.
type stubEndpoint struct{}

func (stubEndpoint) Chat(_ context.Context, req modelclient.ChatRequest) (modelclient.ChatResponse, error) {
	return modelclient.ChatResponse{
		Text:         `{"rankings": [{"company_index": 1, "score": 9, "reason": "sector and region fit"}]}`,
		InputTokens:  40,
		OutputTokens: 20,
	}, nil
}

func (stubEndpoint) Embed(_ context.Context, _, _ string) (modelclient.EmbedResponse, error) {
	return modelclient.EmbedResponse{Vector: []float32{1, 0, 0}, Tokens: 5}, nil
}
