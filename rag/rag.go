// Package rag implements the RAG Engine (C12): embeds a user question,
// retrieves the most similar incentives and companies, and asks the
// Managed Model Client to answer strictly from that retrieved context.
//
// Grounded verbatim on rag_service.py's RAGService: document assembly
// (500-char content truncation, JSON-serialized metadata block per
// document), the refusal behavior when nothing is retrieved, and the
// confidence formula (mean similarity of the sources, boosted 1.2x,
// capped at 1.0).
package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/alfred-dev/incentive-core/incentiveerrors"
	"github.com/alfred-dev/incentive-core/modelclient"
	"github.com/alfred-dev/incentive-core/store"
)

// RefusalPhrase is returned verbatim when no documents are retrieved,
// or when the generated answer is empty. A failed generation call is
// returned as an error instead.
const RefusalPhrase = "I don't have enough information in the retrieved sources to answer this question."

// DefaultMaxDocuments mirrors the source service's max_documents
// default.
const DefaultMaxDocuments = 5

// maxContentChars is the per-document content truncation length.
const maxContentChars = 500

// EmbeddingModel is the model used to embed incoming questions.
const EmbeddingModel = "text-embedding-3-small"

// AnswerModel is the model used to generate answers from context.
const AnswerModel = "gpt-4o-mini"

// maxAnswerTokens bounds the generated answer's length.
const maxAnswerTokens = 800

// Source describes one retrieved document surfaced alongside an
// answer. It never carries the document's full content or text.
type Source struct {
	Type       store.EntityKind
	ID         string
	Title      string
	Similarity float64
	Metadata   map[string]any
}

// Result is the outcome of one RAG query.
type Result struct {
	Answer     string
	Sources    []Source
	Confidence float64
	// EURCost is the total spend for this query: the question
	// embedding's cost plus, when documents were retrieved, the
	// answer-generation chat call's cost. Always > 0 once retrieval
	// has run, even on the refusal path (spec §4.12).
	EURCost float64
}

// document is the internal working shape carrying full content before
// it's trimmed down to a Source for the caller.
type document struct {
	kind       store.EntityKind
	id         string
	title      string
	content    string
	metadata   map[string]any
	similarity float64
}

// Engine answers questions by retrieving from a Store and generating
// with a Managed Model Client.
type Engine struct {
	store  store.Store
	client *modelclient.Client
}

// New constructs a RAG Engine.
func New(s store.Store, client *modelclient.Client) *Engine {
	return &Engine{store: s, client: client}
}

// Query answers question using documents retrieved from the store.
// maxDocuments <= 0 uses DefaultMaxDocuments.
func (e *Engine) Query(ctx context.Context, question string, maxDocuments int) (Result, error) {
	if maxDocuments <= 0 {
		maxDocuments = DefaultMaxDocuments
	}

	docs, embedCost, err := e.retrieveDocuments(ctx, question, maxDocuments)
	if err != nil {
		return Result{}, err
	}

	if len(docs) == 0 {
		return Result{Answer: RefusalPhrase, Confidence: 0, Sources: nil, EURCost: embedCost}, nil
	}

	answer, confidence, chatCost, err := e.generateAnswer(ctx, question, docs)
	if err != nil {
		return Result{}, err
	}

	sources := make([]Source, len(docs))
	for i, d := range docs {
		sources[i] = Source{Type: d.kind, ID: d.id, Title: d.title, Similarity: d.similarity, Metadata: d.metadata}
	}

	return Result{Answer: answer, Sources: sources, Confidence: confidence, EURCost: embedCost + chatCost}, nil
}

func (e *Engine) retrieveDocuments(ctx context.Context, question string, maxDocuments int) ([]document, float64, error) {
	embedded, err := e.client.Embed(ctx, EmbeddingModel, question, modelclient.EmbedOptions{})
	if err != nil {
		return nil, 0, err
	}
	queryVector := store.Embedding(embedded.Vector)

	incentiveNeighbors, err := e.store.Nearest(ctx, store.EntityIncentive, queryVector, maxDocuments)
	if err != nil {
		return nil, embedded.EURCost, incentiveerrors.New(incentiveerrors.StoreUnavailable, "", 0, 0, "nearest-neighbor search failed", err)
	}
	companyNeighbors, err := e.store.Nearest(ctx, store.EntityCompany, queryVector, maxDocuments)
	if err != nil {
		return nil, embedded.EURCost, incentiveerrors.New(incentiveerrors.StoreUnavailable, "", 0, 0, "nearest-neighbor search failed", err)
	}

	var docs []document
	for _, n := range incentiveNeighbors {
		inc, err := e.store.GetIncentive(ctx, n.EntityID)
		if err != nil {
			continue
		}
		docs = append(docs, document{
			kind:       store.EntityIncentive,
			id:         inc.ID,
			title:      inc.Title,
			content:    inc.Title + "\n" + inc.Description,
			metadata:   incentiveMetadata(inc),
			similarity: n.Similarity,
		})
	}
	for _, n := range companyNeighbors {
		c, err := e.store.GetCompany(ctx, n.EntityID)
		if err != nil {
			continue
		}
		description, _ := c.Raw["description"].(string)
		docs = append(docs, document{
			kind:       store.EntityCompany,
			id:         c.ID,
			title:      c.Name,
			content:    c.Name + "\n" + description,
			metadata:   companyMetadata(c),
			similarity: n.Similarity,
		})
	}

	sort.SliceStable(docs, func(i, j int) bool { return docs[i].similarity > docs[j].similarity })
	if len(docs) > maxDocuments {
		docs = docs[:maxDocuments]
	}
	return docs, embedded.EURCost, nil
}

func incentiveMetadata(inc *store.Incentive) map[string]any {
	m := map[string]any{"source_link": inc.SourceLink}
	if inc.Attributes != nil {
		if inc.Attributes.PublicationDate != nil {
			m["publication_date"] = inc.Attributes.PublicationDate.Format("2006-01-02")
		}
		if inc.Attributes.StartDate != nil {
			m["start_date"] = inc.Attributes.StartDate.Format("2006-01-02")
		}
		if inc.Attributes.EndDate != nil {
			m["end_date"] = inc.Attributes.EndDate.Format("2006-01-02")
		}
		if inc.Attributes.TotalBudget != nil {
			m["total_budget"] = *inc.Attributes.TotalBudget
		}
	}
	return m
}

func companyMetadata(c *store.Company) map[string]any {
	return map[string]any{
		"cae_codes": c.SectorCodes,
		"size":      string(c.Size),
		"district":  c.District,
	}
}

func (e *Engine) generateAnswer(ctx context.Context, question string, docs []document) (string, float64, float64, error) {
	prompt := buildPrompt(question, docs)
	docTag := fmt.Sprintf("rag_answer_%s", questionTag(question))

	resp, err := e.client.Chat(ctx, modelclient.ChatRequest{
		Model:       AnswerModel,
		System:      "You are an assistant specialized in Portuguese public funding incentives and companies. Answer strictly from the provided context; if the context is insufficient, say so plainly. Cite the specific documents you relied on.",
		Prompt:      prompt,
		MaxTokens:   maxAnswerTokens,
		Temperature: 0,
	}, modelclient.CallOptions{DocumentTag: docTag})
	if err != nil {
		return "", 0, 0, err
	}

	answer := strings.TrimSpace(resp.Text)
	if answer == "" {
		answer = RefusalPhrase
	}

	var total float64
	for _, d := range docs {
		total += d.similarity
	}
	avgSimilarity := total / float64(len(docs))
	confidence := avgSimilarity * 1.2
	if confidence > 1.0 {
		confidence = 1.0
	}

	return answer, confidence, resp.EURCost, nil
}

func buildPrompt(question string, docs []document) string {
	var b strings.Builder
	b.WriteString("RETRIEVED CONTEXT:\n\n")
	for i, d := range docs {
		fmt.Fprintf(&b, "DOCUMENT %d (%s):\n", i+1, strings.ToUpper(string(d.kind)))
		fmt.Fprintf(&b, "Title: %s\n", d.title)
		fmt.Fprintf(&b, "Content: %s\n", truncate(d.content, maxContentChars))
		if len(d.metadata) > 0 {
			if encoded, err := json.MarshalIndent(d.metadata, "", "  "); err == nil {
				fmt.Fprintf(&b, "Metadata: %s\n", string(encoded))
			}
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "QUESTION:\n%s\n\nAnswer using only the context above.", question)
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func questionTag(question string) string {
	sum := 0
	for _, r := range question {
		sum = sum*31 + int(r)
	}
	if sum < 0 {
		sum = -sum
	}
	return fmt.Sprintf("%d", sum%1_000_000)
}
