package modelclient_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alfred-dev/incentive-core/cache"
	"github.com/alfred-dev/incentive-core/docbudget"
	"github.com/alfred-dev/incentive-core/incentiveerrors"
	"github.com/alfred-dev/incentive-core/modelclient"
	"github.com/alfred-dev/incentive-core/pricing"
	"github.com/rs/zerolog"
)

type fakeEndpoint struct {
	calls int
	err   error
}

func (f *fakeEndpoint) Chat(ctx context.Context, req modelclient.ChatRequest) (modelclient.ChatResponse, error) {
	f.calls++
	if f.err != nil {
		return modelclient.ChatResponse{}, f.err
	}
	return modelclient.ChatResponse{Text: "hello", InputTokens: 10, OutputTokens: 5}, nil
}

func (f *fakeEndpoint) Embed(ctx context.Context, model, text string) (modelclient.EmbedResponse, error) {
	return modelclient.EmbedResponse{Vector: []float32{1, 2, 3}, Tokens: 3}, nil
}

func newTestClient(t *testing.T, endpoint *fakeEndpoint, docs *docbudget.Tracker) *modelclient.Client {
	t.Helper()
	store, err := cache.Open(":memory:")
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	prices := pricing.New(time.Hour, time.Hour, nil, nil)
	return modelclient.New(endpoint, prices, store, docs, zerolog.Nop(), 800)
}

func TestChatCachesSecondCall(t *testing.T) {
	endpoint := &fakeEndpoint{}
	client := newTestClient(t, endpoint, nil)

	req := modelclient.ChatRequest{Model: "gpt-4o-mini", Prompt: "hi"}
	opts := modelclient.CallOptions{RequestBudgetEUR: 0.30}

	first, err := client.Chat(context.Background(), req, opts)
	if err != nil {
		t.Fatalf("first chat: %v", err)
	}
	if first.FromCache {
		t.Fatal("expected first call to not be served from cache")
	}
	if first.EURCost <= 0 {
		t.Fatalf("expected positive cost on a fresh call, got %v", first.EURCost)
	}

	second, err := client.Chat(context.Background(), req, opts)
	if err != nil {
		t.Fatalf("second chat: %v", err)
	}
	if !second.FromCache {
		t.Fatal("expected second call to be served from cache")
	}
	if second.EURCost != 0 {
		t.Fatalf("expected zero cost on a cache hit, got %v", second.EURCost)
	}
	if endpoint.calls != 1 {
		t.Fatalf("expected 1 upstream call (second served from cache), got %d", endpoint.calls)
	}
}

func TestChatWrapsUpstreamFailure(t *testing.T) {
	endpoint := &fakeEndpoint{err: errors.New("timeout")}
	client := newTestClient(t, endpoint, nil)

	_, err := client.Chat(context.Background(), modelclient.ChatRequest{Model: "gpt-4o-mini", Prompt: "hi"}, modelclient.CallOptions{RequestBudgetEUR: 0.30})
	kind, ok := incentiveerrors.KindOf(err)
	if !ok || kind != incentiveerrors.UpstreamFailure {
		t.Fatalf("expected UpstreamFailure, got %v ok=%v", kind, ok)
	}
}

func TestChatRejectsWhenDocumentBudgetExhausted(t *testing.T) {
	endpoint := &fakeEndpoint{}
	docs := docbudget.New(0.30)
	docs.RecordCost("doc-1", 0.30)
	client := newTestClient(t, endpoint, docs)

	_, err := client.Chat(context.Background(), modelclient.ChatRequest{Model: "gpt-4o-mini", Prompt: "hi"},
		modelclient.CallOptions{RequestBudgetEUR: 0.30, DocumentTag: "doc-1"})

	kind, ok := incentiveerrors.KindOf(err)
	if !ok || kind != incentiveerrors.DocumentBudgetExceeded {
		t.Fatalf("expected DocumentBudgetExceeded, got %v ok=%v", kind, ok)
	}
}

func TestChatUnknownModelReturnsUpstreamFailure(t *testing.T) {
	endpoint := &fakeEndpoint{}
	client := newTestClient(t, endpoint, nil)

	_, err := client.Chat(context.Background(), modelclient.ChatRequest{Model: "nonexistent-model", Prompt: "hi"}, modelclient.CallOptions{RequestBudgetEUR: 0.30})
	kind, ok := incentiveerrors.KindOf(err)
	if !ok {
		t.Fatal("expected a typed incentiveerrors.Error")
	}
	if kind != incentiveerrors.UpstreamFailure {
		t.Fatalf("expected UpstreamFailure, got %v", kind)
	}
}

func TestChatShrinksOversizedPromptAndRetries(t *testing.T) {
	endpoint := &fakeEndpoint{}
	client := newTestClient(t, endpoint, nil)

	// ~20,000 chars / 4 chars-per-token (gpt family) ~= 5,000 tokens:
	// alone it blows a 0.0003 EUR budget, which covers at most ~2,150
	// input tokens at the fallback EUR price, but fits once shrunk to
	// ~1,000 tokens.
	prompt := strings.Repeat("word ", 4000)
	req := modelclient.ChatRequest{Model: "gpt-4o-mini", Prompt: prompt}
	opts := modelclient.CallOptions{RequestBudgetEUR: 0.0003}

	resp, err := client.Chat(context.Background(), req, opts)
	if err != nil {
		t.Fatalf("expected shrink-and-retry to succeed, got error: %v", err)
	}
	if resp.Text != "hello" {
		t.Fatalf("expected a generated response, got %+v", resp)
	}
	if endpoint.calls != 1 {
		t.Fatalf("expected exactly 1 upstream call after shrinking, got %d", endpoint.calls)
	}
}

func TestChatReturnsBudgetExceededWhenShrinkStillDoesNotFit(t *testing.T) {
	endpoint := &fakeEndpoint{}
	client := newTestClient(t, endpoint, nil)

	prompt := strings.Repeat("word ", 4000)
	req := modelclient.ChatRequest{Model: "gpt-4o-mini", Prompt: prompt}
	opts := modelclient.CallOptions{RequestBudgetEUR: 0.00000001}

	_, err := client.Chat(context.Background(), req, opts)
	kind, ok := incentiveerrors.KindOf(err)
	if !ok || kind != incentiveerrors.BudgetExceeded {
		t.Fatalf("expected BudgetExceeded, got %v ok=%v", kind, ok)
	}
	if endpoint.calls != 0 {
		t.Fatalf("expected no upstream call when budget cannot be met even after shrinking, got %d", endpoint.calls)
	}
}

func TestEmbedRecordsCostAndDimension(t *testing.T) {
	endpoint := &fakeEndpoint{}
	client := newTestClient(t, endpoint, nil)

	resp, err := client.Embed(context.Background(), "text-embedding-3-small", "hello world", modelclient.EmbedOptions{RequestBudgetEUR: 0.30})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if resp.Dimension != len(resp.Vector) {
		t.Fatalf("expected dimension %d, got %d", len(resp.Vector), resp.Dimension)
	}
	if resp.FromCache {
		t.Fatal("expected FromCache false for a fresh embed call")
	}
	if resp.EURCost <= 0 {
		t.Fatalf("expected positive cost for a non-free embedding model, got %v", resp.EURCost)
	}
}

func TestEmbedRejectsWhenOverBudget(t *testing.T) {
	endpoint := &fakeEndpoint{}
	client := newTestClient(t, endpoint, nil)

	text := strings.Repeat("word ", 100000)
	_, err := client.Embed(context.Background(), "text-embedding-3-small", text, modelclient.EmbedOptions{RequestBudgetEUR: 0.0000001})
	kind, ok := incentiveerrors.KindOf(err)
	if !ok || kind != incentiveerrors.BudgetExceeded {
		t.Fatalf("expected BudgetExceeded, got %v ok=%v", kind, ok)
	}
	if endpoint.calls != 0 {
		t.Fatalf("expected no upstream chat calls from an embed test, got %d", endpoint.calls)
	}
}

func TestEmbedRejectsWhenDocumentBudgetExhausted(t *testing.T) {
	endpoint := &fakeEndpoint{}
	docs := docbudget.New(0.30)
	docs.RecordCost("doc-1", 0.30)
	client := newTestClient(t, endpoint, docs)

	_, err := client.Embed(context.Background(), "text-embedding-3-small", "hello", modelclient.EmbedOptions{RequestBudgetEUR: 0.30, DocumentTag: "doc-1"})
	kind, ok := incentiveerrors.KindOf(err)
	if !ok || kind != incentiveerrors.DocumentBudgetExceeded {
		t.Fatalf("expected DocumentBudgetExceeded, got %v ok=%v", kind, ok)
	}
}
