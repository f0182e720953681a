package match_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/alfred-dev/incentive-core/cache"
	"github.com/alfred-dev/incentive-core/incentiveerrors"
	"github.com/alfred-dev/incentive-core/match"
	"github.com/alfred-dev/incentive-core/modelclient"
	"github.com/alfred-dev/incentive-core/pricing"
	"github.com/alfred-dev/incentive-core/store"
	"github.com/rs/zerolog"
)

type fakeEndpoint struct {
	response string
}

func (f *fakeEndpoint) Chat(ctx context.Context, req modelclient.ChatRequest) (modelclient.ChatResponse, error) {
	return modelclient.ChatResponse{Text: f.response, InputTokens: 20, OutputTokens: 20}, nil
}

func (f *fakeEndpoint) Embed(ctx context.Context, model, text string) (modelclient.EmbedResponse, error) {
	return modelclient.EmbedResponse{}, nil
}

func newTestClient(t *testing.T, response string) *modelclient.Client {
	t.Helper()
	cacheStore, err := cache.Open(":memory:")
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() { cacheStore.Close() })
	prices := pricing.New(time.Hour, time.Hour, nil, nil)
	return modelclient.New(&fakeEndpoint{response: response}, prices, cacheStore, nil, zerolog.Nop(), 800)
}

func seededStore() *store.Memory {
	m := store.NewMemory()
	m.PutIncentive(store.Incentive{
		ID:          "inc-1",
		Title:       "Renewable Energy Grant",
		Description: "Funding for industrial renewable energy projects",
		Attributes: &store.IncentiveAttributes{
			SectorCodes:     []string{"35"},
			AllowedSizes:    []store.CompanySize{store.SizeSME, store.SizeLarge},
			GeographicScope: "Norte",
		},
		Embedding: store.Embedding{1, 0, 0},
	})
	m.PutCompany(store.Company{
		ID: "c1", Name: "SolarTech", SectorCodes: []string{"35"},
		Size: store.SizeSME, District: "Porto", Embedding: store.Embedding{1, 0, 0},
	})
	m.PutCompany(store.Company{
		ID: "c2", Name: "Hotelaria Lda", SectorCodes: []string{"55"},
		Size: store.SizeMicro, District: "Faro", Embedding: store.Embedding{0.9, 0.1, 0},
	})
	m.PutCompany(store.Company{
		ID: "c3", Name: "GridWorks", SectorCodes: []string{"35"},
		Size: store.SizeLarge, District: "Braga", Embedding: store.Embedding{0.8, 0.2, 0},
	})
	return m
}

func TestMatchReturnsTopKSortedDescending(t *testing.T) {
	s := seededStore()
	client := newTestClient(t, `{"rankings": [{"company_index": 1, "score": 9, "reason": "sector fit"}, {"company_index": 2, "score": 2, "reason": "off sector"}, {"company_index": 3, "score": 8, "reason": "good fit"}]}`)
	engine := match.New(s, client)

	opts := match.DefaultOptions()
	opts.TopK = 3
	results, err := engine.Match(context.Background(), "inc-1", opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i := 1; i < len(results); i++ {
		if results[i-1].Score < results[i].Score {
			t.Fatalf("results not sorted descending: %+v", results)
		}
	}
	if results[0].CompanyID != "c1" {
		t.Fatalf("expected c1 to rank first, got %s", results[0].CompanyID)
	}
}

func TestMatchAppliesSectorPenalty(t *testing.T) {
	s := seededStore()
	client := newTestClient(t, `{"rankings": []}`)
	engine := match.New(s, client)

	opts := match.DefaultOptions()
	opts.UseLLM = false
	results, err := engine.Match(context.Background(), "inc-1", opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var hotelaria match.Candidate
	found := false
	for _, r := range results {
		if r.CompanyID == "c2" {
			hotelaria = r
			found = true
		}
	}
	if !found {
		t.Fatalf("expected c2 in results: %+v", results)
	}
	if _, ok := hotelaria.PenaltiesApplied["sector"]; !ok {
		t.Fatalf("expected sector penalty applied to c2, got %+v", hotelaria.PenaltiesApplied)
	}
}

func TestMatchNotFoundForMissingIncentive(t *testing.T) {
	s := seededStore()
	client := newTestClient(t, `{"rankings": []}`)
	engine := match.New(s, client)

	_, err := engine.Match(context.Background(), "missing", match.DefaultOptions())
	if err == nil {
		t.Fatalf("expected error for missing incentive")
	}
	if kind, ok := incentiveerrors.KindOf(err); !ok || kind != incentiveerrors.NotFound {
		t.Fatalf("expected NotFound, got %v ok=%v", kind, ok)
	}
}

func TestMatchWithoutLLMRenormalizesWeights(t *testing.T) {
	s := seededStore()
	client := newTestClient(t, `{"rankings": []}`)
	engine := match.New(s, client)

	opts := match.DefaultOptions()
	opts.UseLLM = false
	results, err := engine.Match(context.Background(), "inc-1", opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	w := match.DefaultWeights
	total := w.Vector + w.Lexical
	for _, r := range results {
		if _, ok := r.ComponentScores["llm"]; ok {
			t.Fatalf("expected no llm component score when UseLLM is false, got %+v", r.ComponentScores)
		}
		want := (w.Vector/total*r.ComponentScores["vector"] + w.Lexical/total*r.ComponentScores["lexical"]) * r.ComponentScores["penalty"]
		if math.Abs(r.Score-want) > 1e-9 {
			t.Fatalf("expected score %v from renormalized vector+lexical weights, got %v", want, r.Score)
		}
	}
}

func TestMatchTopKLimitsResults(t *testing.T) {
	s := seededStore()
	client := newTestClient(t, `{"rankings": []}`)
	engine := match.New(s, client)

	opts := match.DefaultOptions()
	opts.TopK = 1
	opts.UseLLM = false
	results, err := engine.Match(context.Background(), "inc-1", opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
}
