package model

// DifficultyTier is the pricing/effort tier of a proposal. Two tiers only.
type DifficultyTier string

const (
	TierStandard DifficultyTier = "standard"
	TierAdvanced DifficultyTier = "advanced"
)

// Proposal is the generative-service output for one candidate. Transient
// until persisted.
type Proposal struct {
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	Tasks          []string       `json:"tasks"`
	Deliverables   []string       `json:"deliverables"`
	RequiredSkills []string       `json:"required_skills"`
	Difficulty     DifficultyTier `json:"difficulty"`
	AlignmentNote  string         `json:"alignment_note"`
	ContactName    string         `json:"contact_name"`
	ContactEmail   string         `json:"contact_email"`
	ContactPhone   string         `json:"contact_phone"`
	WorkMode       string         `json:"work_mode"` // "onsite", "remote", "hybrid"
	NeedsReview    bool           `json:"needs_review"`
	Attempts       int            `json:"attempts"`
}

// Score is the immutable scoring triple plus weighted composite for a
// proposal. Regeneration produces a new Score, never an in-place update.
type Score struct {
	Alignment     float64 `json:"alignment"`
	Feasibility   float64 `json:"feasibility"`
	MutualBenefit float64 `json:"mutual_benefit"`
	Final         float64 `json:"final"`
}

// PriceAdjustment is one named multiplicative adjustment in a pricing
// breakdown. The list is append-only and order-preserving so the final price
// can be reconstructed by replaying multipliers against the base.
type PriceAdjustment struct {
	Name       string  `json:"name"`
	Multiplier float64 `json:"multiplier"`
	Rationale  string  `json:"rationale"`
}

// PricingBreakdown is the deterministic pricing output for a proposal.
type PricingBreakdown struct {
	BaseSubtotal float64           `json:"base_subtotal"`
	Adjustments  []PriceAdjustment `json:"adjustments"`
	FinalPrice   float64           `json:"final_price"`
}

// OutcomeCoverage maps one learning outcome to the proposal tasks and
// deliverables that address it.
type OutcomeCoverage struct {
	Outcome         string `json:"outcome"`
	TaskIndexes     []int  `json:"task_indexes"`
	DeliverableIdxs []int  `json:"deliverable_indexes"`
	CoveragePct     int    `json:"coverage_pct"`
}

// AlignmentDetail is the advisory outcome-to-work mapping produced by the
// alignment mapper. A nil AlignmentDetail is a valid, persisted outcome.
type AlignmentDetail struct {
	Outcomes   []OutcomeCoverage `json:"outcomes"`
	Gaps       []string          `json:"gaps,omitempty"`
	OverallPct int               `json:"overall_pct"`
}
