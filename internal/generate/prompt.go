package generate

import (
	"fmt"
	"strings"

	"github.com/coursebridge/proposal-cli/internal/model"
)

const systemPrompt = `You write project proposals pairing academic courses with partner organizations. Respond with a single valid JSON object and nothing else. Do not include markdown fences or commentary.`

const proposalTemplate = `Write a project proposal for a student team from the course below to deliver for the partner organization below.

Course: %s (%s level)
Duration: %d weeks at %d hours/week, team of %d
Learning outcomes:
%s
Required artifact types: %s

Partner organization: %s
Sector: %s
Size: %s
Known needs:
%s%s

The proposal must give the team real work addressing the partner's needs while exercising the learning outcomes. Be specific to this organization; never use placeholder text. Do not include week numbers, dates, or timeline phases; the course schedule is fixed separately.

Return a JSON object with exactly these keys:
{
  "title": "<concise project title>",
  "description": "<2-3 paragraph project description>",
  "tasks": ["<task>", ...],
  "deliverables": ["<deliverable>", ...],
  "required_skills": ["<specific skill>", ...],
  "difficulty": "standard" | "advanced",
  "alignment_note": "<one paragraph on how the work serves the learning outcomes>",
  "contact_name": "<plausible contact role holder name>",
  "contact_email": "<contact email>",
  "contact_phone": "<contact phone>",
  "work_mode": "onsite" | "remote" | "hybrid"
}`

func buildPrompt(candidate model.CandidateEntity, course model.Course) string {
	needs := "- (none recorded)"
	if len(candidate.InferredNeeds) > 0 {
		needs = "- " + strings.Join(candidate.InferredNeeds, "\n- ")
	}

	var intel string
	if candidate.Intel != nil {
		var parts []string
		if candidate.Intel.OpenPositions > 0 {
			parts = append(parts, fmt.Sprintf("open positions: %d", candidate.Intel.OpenPositions))
		}
		if len(candidate.Intel.JobSignals) > 0 {
			parts = append(parts, "hiring for: "+strings.Join(candidate.Intel.JobSignals, ", "))
		}
		if len(candidate.Intel.Technologies) > 0 {
			parts = append(parts, "technologies: "+strings.Join(candidate.Intel.Technologies, ", "))
		}
		if len(parts) > 0 {
			intel = "\nMarket signals: " + strings.Join(parts, "; ")
		}
	}

	return fmt.Sprintf(proposalTemplate,
		course.Title, course.Level,
		course.DurationWeeks, course.HoursPerWeek, course.TeamSize,
		"- "+strings.Join(course.LearningOutcomes, "\n- "),
		strings.Join(course.ArtifactTypes, ", "),
		candidate.Name, candidate.Sector, candidate.SizeClass,
		needs, intel,
	)
}
