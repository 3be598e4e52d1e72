package model

// SizeClass buckets a partner organization by headcount/structure.
type SizeClass string

const (
	SizeSmall      SizeClass = "small"
	SizeNonprofit  SizeClass = "nonprofit"
	SizeMidMarket  SizeClass = "mid_market"
	SizeEnterprise SizeClass = "enterprise"
)

// CandidateSource identifies which sourcing stage produced a candidate.
type CandidateSource string

const (
	SourceEnrichedBatch CandidateSource = "enriched_batch"
	SourceDiscovery     CandidateSource = "discovery"
	SourceLocalStore    CandidateSource = "local_store"
	SourceGenerative    CandidateSource = "generative"
)

// MarketIntel holds best-effort market-intelligence attributes for a
// candidate. Absent fields are zero values, never an error.
type MarketIntel struct {
	OpenPositions int      `json:"open_positions"`
	JobSignals    []string `json:"job_signals,omitempty"`
	Technologies  []string `json:"technologies,omitempty"`
	FundingStage  string   `json:"funding_stage,omitempty"`
}

// CandidateEntity is a partner organization considered for pairing with a
// course. ID is empty for candidates that have never been persisted.
type CandidateEntity struct {
	ID            string          `json:"id,omitempty"`
	Name          string          `json:"name"`
	Sector        string          `json:"sector"`
	SizeClass     SizeClass       `json:"size_class"`
	Location      string          `json:"location,omitempty"`
	Website       string          `json:"website,omitempty"`
	InferredNeeds []string        `json:"inferred_needs"`
	Intel         *MarketIntel    `json:"intel,omitempty"`
	Source        CandidateSource `json:"source"`
	Completeness  float64         `json:"completeness"` // 0.0-1.0 data completeness
}

// RankedCandidate pairs a candidate with its intelligence-filter relevance
// score (0-100).
type RankedCandidate struct {
	Candidate CandidateEntity `json:"candidate"`
	Relevance int             `json:"relevance"`
}
