package model

import "time"

// RunStatus represents the current state of a generation run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// GenerationRun is one invocation of the pipeline for a course. Created at
// start, updated exactly once on completion. Partial success is still
// completed.
type GenerationRun struct {
	ID                string    `json:"id"`
	CourseID          string    `json:"course_id"`
	Status            RunStatus `json:"status"`
	RequestedCount    int       `json:"requested_count"`
	ProjectsGenerated int       `json:"projects_generated"`
	UsingRealData     bool      `json:"using_real_data"`
	Error             string    `json:"error,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// RunRequest is the conceptual input to a generation run.
type RunRequest struct {
	CourseID          string   `json:"course_id"`
	PrincipalID       string   `json:"principal_id"`
	Industries        []string `json:"industries"`
	CandidateCount    int      `json:"candidate_count"`
	EnrichmentBatchID string   `json:"enrichment_batch_id,omitempty"`
}

// CandidateError records a per-candidate failure that did not abort the run.
type CandidateError struct {
	Candidate string `json:"candidate"`
	Reason    string `json:"reason"`
}

// RunResult is the outcome of one orchestrator invocation.
type RunResult struct {
	Success         bool             `json:"success"`
	GenerationRunID string           `json:"generation_run_id"`
	ProjectIDs      []string         `json:"project_ids"`
	UsingRealData   bool             `json:"using_real_data"`
	Errors          []CandidateError `json:"errors,omitempty"`
}

// ProjectRecord is the parent row of the atomic persistence unit.
type ProjectRecord struct {
	ID          string    `json:"id"`
	RunID       string    `json:"run_id"`
	CourseID    string    `json:"course_id"`
	PartnerName string    `json:"partner_name"`
	PartnerID   string    `json:"partner_id,omitempty"`
	Title       string    `json:"title"`
	Status      string    `json:"status"`
	FinalScore  float64   `json:"final_score"`
	FinalPrice  float64   `json:"final_price"`
	NeedsReview bool      `json:"needs_review"`
	CreatedAt   time.Time `json:"created_at"`
}

// ProjectDetail is the detail-form dependent row: the full proposal body.
type ProjectDetail struct {
	ProjectID string           `json:"project_id"`
	Proposal  Proposal         `json:"proposal"`
	Pricing   PricingBreakdown `json:"pricing"`
}

// ProjectMetadata is the generation-metadata dependent row: how the proposal
// was produced.
type ProjectMetadata struct {
	ProjectID       string           `json:"project_id"`
	CandidateSource CandidateSource  `json:"candidate_source"`
	Score           Score            `json:"score"`
	Alignment       *AlignmentDetail `json:"alignment,omitempty"`
	Attempts        int              `json:"attempts"`
	ModelID         string           `json:"model_id,omitempty"`
	TotalTokens     int64            `json:"total_tokens"`
}
