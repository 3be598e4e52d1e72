package model

// CourseLevel indicates the academic level of a course, used when ranking
// candidate relevance.
type CourseLevel string

const (
	CourseLevelUndergraduate CourseLevel = "undergraduate"
	CourseLevelGraduate      CourseLevel = "graduate"
)

// Course is the immutable input to a generation run. Owned by a faculty user;
// the orchestrator verifies ownership before sourcing begins.
type Course struct {
	ID               string      `json:"id"`
	OwnerID          string      `json:"owner_id"`
	Title            string      `json:"title"`
	Level            CourseLevel `json:"level"`
	LearningOutcomes []string    `json:"learning_outcomes"`
	ArtifactTypes    []string    `json:"artifact_types"`
	DurationWeeks    int         `json:"duration_weeks"`
	HoursPerWeek     int         `json:"hours_per_week"`
	TeamSize         int         `json:"team_size"`
	Location         string      `json:"location"`
}

// Keywords returns lowercase searchable terms derived from the course title
// and learning outcomes, for deterministic market alignment scoring.
func (c Course) Keywords() []string {
	terms := make([]string, 0, len(c.LearningOutcomes)+1)
	if c.Title != "" {
		terms = append(terms, c.Title)
	}
	terms = append(terms, c.LearningOutcomes...)
	return terms
}
