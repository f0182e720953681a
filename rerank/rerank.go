// Package rerank implements the Re-Ranker (C10): sends up to 20
// candidates plus the incentive to the Managed Model Client and parses
// a structured score+reason object back.
//
// Grounded directly on matching_service.py's _llm_rerank: same prompt
// shape (numbered candidate list, 0-10 score, short reason, JSON
// response), same 1-based "company_index" field, same default of 0.5
// with an empty reason for any index the model omits.
package rerank

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/alfred-dev/incentive-core/incentiveerrors"
	"github.com/alfred-dev/incentive-core/modelclient"
)

// MaxCandidates bounds how many candidates are ever sent to the
// model in one re-rank call.
const MaxCandidates = 20

// Candidate is one company considered for re-ranking. Index is the
// 1-based position in the prompt's numbered list.
type Candidate struct {
	Index    int
	ID       string
	Name     string
	Sectors  []string
	District string
}

// Result is one candidate's re-rank outcome.
type Result struct {
	Score  float64 // in [0,1]
	Reason string
}

type rankingResponse struct {
	Rankings []rankingEntry `json:"rankings"`
}

type rankingEntry struct {
	CompanyIndex int     `json:"company_index"`
	Score        float64 `json:"score"`
	Reason       string  `json:"reason"`
}

// Rerank asks the model to score each candidate against the
// incentive, returning a result per candidate ID. Missing indices in
// the model's response default to Score 0.5 and an empty reason, per
// the output contract. On ParseFailure after one repair attempt, or
// on UpstreamFailure, Rerank returns an empty map and no error so the
// caller can degrade gracefully and proceed without the LLM
// component.
func Rerank(ctx context.Context, client *modelclient.Client, model, incentiveTitle, incentiveDescription string, candidates []Candidate, docTag string) map[string]Result {
	if len(candidates) == 0 {
		return map[string]Result{}
	}
	if len(candidates) > MaxCandidates {
		candidates = candidates[:MaxCandidates]
	}

	prompt := buildPrompt(incentiveTitle, incentiveDescription, candidates)
	req := modelclient.ChatRequest{
		Model:       model,
		System:      "You are an expert at matching public funding incentives to companies.",
		Prompt:      prompt,
		Temperature: 0,
	}
	opts := modelclient.CallOptions{DocumentTag: docTag}

	resp, err := client.Chat(ctx, req, opts)
	if err != nil {
		return map[string]Result{}
	}

	parsed, err := parseRankings(resp.Text)
	if err != nil {
		repairResp, repairErr := client.Chat(ctx, modelclient.ChatRequest{
			Model:       model,
			System:      "You only output valid JSON, nothing else.",
			Prompt:      "The following was supposed to be valid JSON matching {\"rankings\": [{\"company_index\": int, \"score\": number, \"reason\": string}]} but failed to parse. Return corrected, valid JSON only:\n\n" + resp.Text,
			Temperature: 0,
		}, opts)
		if repairErr != nil {
			return map[string]Result{}
		}
		parsed, err = parseRankings(repairResp.Text)
		if err != nil {
			return map[string]Result{}
		}
	}

	out := make(map[string]Result, len(candidates))
	for _, ranking := range parsed.Rankings {
		idx := ranking.CompanyIndex - 1
		if idx < 0 || idx >= len(candidates) {
			continue
		}
		out[candidates[idx].ID] = Result{Score: ranking.Score / 10.0, Reason: ranking.Reason}
	}

	for _, c := range candidates {
		if _, ok := out[c.ID]; !ok {
			out[c.ID] = Result{Score: 0.5, Reason: ""}
		}
	}
	return out
}

func buildPrompt(title, description string, candidates []Candidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Incentive: %s\nDescription: %s\n\nCompanies:\n", title, description)
	for _, c := range candidates {
		fmt.Fprintf(&b, "%d. %s", c.Index, c.Name)
		if len(c.Sectors) > 0 {
			fmt.Fprintf(&b, " (sectors: %s)", strings.Join(c.Sectors, ", "))
		}
		if c.District != "" {
			fmt.Fprintf(&b, " - %s", c.District)
		}
		b.WriteString("\n")
	}
	b.WriteString(`
For each company assign:
1. A score from 0-10 (0=unsuitable, 10=perfect fit)
2. A brief reason (a few words)

Respond in JSON: {"rankings": [{"company_index": 1, "score": 8, "reason": "relevant sector, good location"}, ...]}
`)
	return b.String()
}

func parseRankings(text string) (rankingResponse, error) {
	trimmed := strings.TrimSpace(text)
	start := strings.IndexByte(trimmed, '{')
	end := strings.LastIndexByte(trimmed, '}')
	if start < 0 || end < start {
		return rankingResponse{}, incentiveerrors.New(incentiveerrors.ParseFailure, "", 0, 0, "no JSON object found in response", nil)
	}

	var parsed rankingResponse
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), &parsed); err != nil {
		return rankingResponse{}, incentiveerrors.New(incentiveerrors.ParseFailure, "", 0, 0, "invalid JSON in re-rank response", err)
	}
	return parsed, nil
}
