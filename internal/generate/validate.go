package generate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/coursebridge/proposal-cli/internal/model"
)

// QualityIssue is one validation finding on a generated proposal.
type QualityIssue struct {
	Field  string
	Reason string
}

func (q QualityIssue) String() string {
	return fmt.Sprintf("%s: %s", q.Field, q.Reason)
}

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

var phoneDigits = regexp.MustCompile(`\d`)

// placeholderMarkers flag template text the service failed to fill in.
var placeholderMarkers = []string{
	"lorem ipsum", "[insert", "[company", "[partner", "[name",
	"tbd", "placeholder", "xxx", "<insert", "example.com",
}

// genericSkills are terms too vague to brief a student team with. A skills
// list made entirely of these is rejected.
var genericSkills = map[string]bool{
	"communication":       true,
	"teamwork":            true,
	"problem solving":     true,
	"problem-solving":     true,
	"critical thinking":   true,
	"time management":     true,
	"organization":        true,
	"leadership":          true,
	"collaboration":       true,
	"creativity":          true,
	"adaptability":        true,
	"work ethic":          true,
	"attention to detail": true,
}

type validator struct {
	minDescriptionLen int
	minTasks          int
	minDeliverables   int
}

// validate returns all quality issues found in a cleaned proposal. An empty
// slice means the proposal is acceptable as-is.
func (v validator) validate(p model.Proposal) []QualityIssue {
	var issues []QualityIssue

	if strings.TrimSpace(p.Title) == "" {
		issues = append(issues, QualityIssue{"title", "empty"})
	}

	desc := strings.TrimSpace(p.Description)
	if len(desc) < v.minDescriptionLen {
		issues = append(issues, QualityIssue{"description",
			fmt.Sprintf("too short (%d chars, need %d)", len(desc), v.minDescriptionLen)})
	}
	if marker := findPlaceholder(desc); marker != "" {
		issues = append(issues, QualityIssue{"description", "placeholder text: " + marker})
	}

	if len(p.Tasks) < v.minTasks {
		issues = append(issues, QualityIssue{"tasks",
			fmt.Sprintf("need at least %d, got %d", v.minTasks, len(p.Tasks))})
	}
	if len(p.Deliverables) < v.minDeliverables {
		issues = append(issues, QualityIssue{"deliverables",
			fmt.Sprintf("need at least %d, got %d", v.minDeliverables, len(p.Deliverables))})
	}

	if len(p.RequiredSkills) == 0 {
		issues = append(issues, QualityIssue{"required_skills", "empty"})
	} else if allGeneric(p.RequiredSkills) {
		issues = append(issues, QualityIssue{"required_skills", "entirely generic terms"})
	}

	if p.ContactEmail != "" && !emailPattern.MatchString(p.ContactEmail) {
		issues = append(issues, QualityIssue{"contact_email", "invalid format"})
	}
	if p.ContactPhone != "" {
		if n := len(phoneDigits.FindAllString(p.ContactPhone, -1)); n < 7 || n > 15 {
			issues = append(issues, QualityIssue{"contact_phone",
				fmt.Sprintf("implausible digit count %d", n)})
		}
	}

	switch p.Difficulty {
	case model.TierStandard, model.TierAdvanced:
	default:
		issues = append(issues, QualityIssue{"difficulty", "unknown tier " + string(p.Difficulty)})
	}

	return issues
}

func findPlaceholder(text string) string {
	lower := strings.ToLower(text)
	for _, m := range placeholderMarkers {
		if strings.Contains(lower, m) {
			return m
		}
	}
	return ""
}

func allGeneric(skills []string) bool {
	for _, s := range skills {
		if !genericSkills[strings.ToLower(strings.TrimSpace(s))] {
			return false
		}
	}
	return true
}
