package scoring

import "strings"

// Component caps for MarketAlignment. The three components are independently
// capped so no single signal dominates the 0-100 scale.
const (
	needsCap = 40
	jobsCap  = 30
	techCap  = 30

	needsPerMatch = 8
	jobsPerMatch  = 10
	techPerMatch  = 6
)

// synonyms maps a term to equivalent phrasings used during overlap checks.
// Keys and values are lowercase.
var synonyms = map[string][]string{
	"machine learning": {"ml", "predictive modeling", "model training"},
	"data analysis":    {"analytics", "data analytics", "statistical analysis"},
	"web development":  {"frontend", "front-end", "backend", "back-end", "full-stack"},
	"marketing":        {"branding", "outreach", "social media", "seo"},
	"automation":       {"workflow automation", "process automation", "scripting"},
	"cloud":            {"aws", "azure", "gcp", "kubernetes", "devops"},
	"design":           {"ux", "ui", "user experience", "prototyping"},
	"research":         {"user research", "market research", "literature review"},
	"database":         {"sql", "postgres", "data modeling", "data warehouse"},
	"security":         {"cybersecurity", "penetration testing", "compliance"},
}

// MarketAlignment scores how well a proposal's work matches a candidate's
// market signals, 0-100. It is a weighted sum of three independently capped
// components: inferred-needs match (≤40), job-signal match (≤30), and
// technology match (≤30). Deterministic; no external calls.
func MarketAlignment(tasks, needs, jobSignals, techStack, courseKeywords []string) int {
	taskText := normalizeJoin(tasks)
	keywordText := normalizeJoin(courseKeywords)
	combined := taskText + " " + keywordText

	score := 0

	needsScore := 0
	for _, need := range needs {
		if termMatches(need, combined) {
			needsScore += needsPerMatch
		}
	}
	score += minInt(needsScore, needsCap)

	jobsScore := 0
	for _, sig := range jobSignals {
		if termMatches(sig, combined) {
			jobsScore += jobsPerMatch
		}
	}
	score += minInt(jobsScore, jobsCap)

	techScore := 0
	for _, tech := range techStack {
		if termMatches(tech, combined) {
			techScore += techPerMatch
		}
	}
	score += minInt(techScore, techCap)

	return score
}

// termMatches reports whether term (or any of its synonyms) appears in text.
// Both sides are lowercased; term phrases match as substrings.
func termMatches(term, text string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return false
	}
	if strings.Contains(text, term) {
		return true
	}
	for _, alt := range synonyms[term] {
		if strings.Contains(text, alt) {
			return true
		}
	}
	// Reverse direction: the term may be a synonym of a canonical key.
	for key, alts := range synonyms {
		for _, alt := range alts {
			if alt == term && strings.Contains(text, key) {
				return true
			}
		}
	}
	return false
}

func normalizeJoin(items []string) string {
	return strings.ToLower(strings.Join(items, " "))
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
