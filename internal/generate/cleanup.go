package generate

import (
	"regexp"
	"strings"

	"github.com/coursebridge/proposal-cli/internal/model"
)

// timelinePattern matches scheduling references the service sometimes embeds
// despite instructions. The course calendar owns the timeline, not the
// proposal.
var timelinePattern = regexp.MustCompile(`(?i)\(?\b(?:in\s+)?weeks?\s+\d+(?:\s*[-–]\s*\d+)?\b:?\)?|\bby\s+week\s+\d+\b|\bphase\s+\d+\s*\(weeks?[^)]*\)`)

var bulletPrefix = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s*`)

var multiSpace = regexp.MustCompile(`[ \t]{2,}`)

// cleanProposal strips formatting artifacts and embedded timeline references
// in place. Deterministic; safe to run repeatedly.
func cleanProposal(p *model.Proposal) {
	p.Title = cleanLine(p.Title)
	p.Description = cleanText(p.Description)
	p.AlignmentNote = cleanText(p.AlignmentNote)
	p.Tasks = cleanList(p.Tasks)
	p.Deliverables = cleanList(p.Deliverables)
	p.RequiredSkills = cleanList(p.RequiredSkills)
	p.ContactName = cleanLine(p.ContactName)
	p.ContactEmail = strings.TrimSpace(p.ContactEmail)
	p.ContactPhone = strings.TrimSpace(p.ContactPhone)
	p.WorkMode = strings.ToLower(strings.TrimSpace(p.WorkMode))
}

func cleanLine(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"“”`)
	s = strings.ReplaceAll(s, "**", "")
	return strings.TrimSpace(s)
}

func cleanText(s string) string {
	s = strings.ReplaceAll(s, "**", "")
	s = timelinePattern.ReplaceAllString(s, "")
	s = multiSpace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		it = bulletPrefix.ReplaceAllString(it, "")
		it = cleanText(cleanLine(it))
		if it != "" {
			out = append(out, it)
		}
	}
	return out
}
