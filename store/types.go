// Package store defines the data model and the read-only retrieval
// contract the core consumes. Schema/DDL and the concrete database
// driver are a declared non-goal; this package only describes the
// shape the core needs and ships an in-memory fake for tests.
package store

import "time"

// EmbeddingDim is the fixed vector width used across incentives and
// companies in the reference corpus.
const EmbeddingDim = 1536

// Embedding is a fixed-dimension dense vector. A nil Embedding means
// "not yet computed" for the parent entity.
type Embedding []float32

// CompanySize is the closed set of company-size buckets.
type CompanySize string

const (
	SizeMicro CompanySize = "micro"
	SizeSME   CompanySize = "sme"
	SizeLarge CompanySize = "large"
	// SizeUnknown is used for companies whose size was never recorded.
	SizeUnknown CompanySize = "unknown"
	// SizeNotApplicable only ever appears in an incentive's AllowedSizes,
	// never as a company's own size.
	SizeNotApplicable CompanySize = "not-applicable"
)

// IncentiveAttributes is the optional structured-attributes record
// extracted from an incentive's free text by the (out-of-scope)
// ingestion pipeline.
type IncentiveAttributes struct {
	SectorCodes          []string
	AllowedSizes         []CompanySize
	GeographicScope      string
	InvestmentObjectives []string
	SpecificPurposes     []string
	EligibilityCriteria  []string
	PublicationDate      *time.Time
	StartDate            *time.Time
	EndDate              *time.Time
	TotalBudget          *float64
}

// Incentive is a public-funding incentive.
type Incentive struct {
	ID            string
	Title         string
	Description   string
	Attributes    *IncentiveAttributes
	DocumentURLs  []string
	SourceLink    string
	Embedding     Embedding
	AttrsVersion  int64 // version of Attributes as set by the store implementation; Memory stores it as given and the core does not read it
}

// Company is a candidate company.
type Company struct {
	ID          string
	Name        string
	SectorCodes []string
	Size        CompanySize
	District    string
	County      string
	Parish      string
	Website     string
	Raw         map[string]any
	Embedding   Embedding
}

// CompanyWithEmbedding is the enriched shape returned by
// Store.JoinCompanyWithEmbedding.
type CompanyWithEmbedding struct {
	Company   Company
	Embedding Embedding
}

// EntityKind discriminates which embedding table Nearest searches.
type EntityKind string

const (
	EntityIncentive EntityKind = "incentive"
	EntityCompany   EntityKind = "company"
)

// Neighbor is one row of a nearest-neighbor result: an entity id and
// its similarity to the query vector, in [0,1].
type Neighbor struct {
	EntityID   string
	Similarity float64
}
