package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMarketAlignment_Empty(t *testing.T) {
	assert.Equal(t, 0, MarketAlignment(nil, nil, nil, nil, nil))
}

func TestMarketAlignment_NeedsMatch(t *testing.T) {
	tasks := []string{"build a marketing campaign", "design outreach materials"}
	needs := []string{"marketing", "more customers"}

	score := MarketAlignment(tasks, needs, nil, nil, nil)
	// Only "marketing" matches; "more customers" appears nowhere in the tasks.
	assert.Equal(t, needsPerMatch, score)
}

func TestMarketAlignment_NeedsCapped(t *testing.T) {
	tasks := []string{"data analysis marketing automation cloud design research database security web development machine learning"}
	needs := []string{
		"data analysis", "marketing", "automation", "cloud", "design",
		"research", "database", "security", "web development", "machine learning",
	}

	score := MarketAlignment(tasks, needs, nil, nil, nil)
	assert.Equal(t, needsCap, score)
}

func TestMarketAlignment_SynonymOverlap(t *testing.T) {
	// Task mentions "analytics", a synonym of the need "data analysis".
	tasks := []string{"set up an analytics pipeline"}
	needs := []string{"data analysis"}
	assert.Equal(t, needsPerMatch, MarketAlignment(tasks, needs, nil, nil, nil))

	// Reverse direction: the signal is the synonym, the text has the key.
	tasks = []string{"machine learning for churn prediction"}
	jobs := []string{"ml"}
	assert.Equal(t, jobsPerMatch, MarketAlignment(tasks, nil, jobs, nil, nil))
}

func TestMarketAlignment_AllComponentsCapped(t *testing.T) {
	everything := []string{
		"data analysis", "marketing", "automation", "cloud", "design",
		"research", "database", "security", "web development", "machine learning",
	}
	tasks := []string{"data analysis marketing automation cloud design research database security web development machine learning"}

	score := MarketAlignment(tasks, everything, everything, everything, nil)
	assert.Equal(t, needsCap+jobsCap+techCap, score)
	assert.Equal(t, 100, score)
}

func TestMarketAlignment_CourseKeywordsCount(t *testing.T) {
	// The match text includes course keywords, not just tasks.
	keywords := []string{"cybersecurity fundamentals"}
	needs := []string{"security"}
	assert.Equal(t, needsPerMatch, MarketAlignment(nil, needs, nil, nil, keywords))
}

func TestMarketAlignment_Deterministic(t *testing.T) {
	tasks := []string{"build dashboards", "run user research sessions"}
	needs := []string{"research", "design"}
	jobs := []string{"data analyst"}
	tech := []string{"sql"}
	keywords := []string{"database systems"}

	first := MarketAlignment(tasks, needs, jobs, tech, keywords)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, MarketAlignment(tasks, needs, jobs, tech, keywords))
	}
}

func TestTermMatches(t *testing.T) {
	assert.True(t, termMatches("Marketing", "digital marketing plan"))
	assert.True(t, termMatches("cloud", "migrate workloads to aws"))
	assert.False(t, termMatches("", "anything"))
	assert.False(t, termMatches("blockchain", "build a website"))
}
