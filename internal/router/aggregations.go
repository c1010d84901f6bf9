package router

import (
	"regexp"
	"sync"
	"time"

	"neoquery/internal/domain"
)

const aggregationTTL = 5 * time.Minute

// aggregation pairs a popular group-by question with canned SQL. Results are
// cached for a few minutes so repeat questions skip the upstream entirely.
type aggregation struct {
	name        string
	trigger     *regexp.Regexp
	source      domain.Source
	query       string
	description string
}

var cannedAggregations = []aggregation{
	{
		name:        "trials_by_status",
		trigger:     regexp.MustCompile(`trials? by status`),
		source:      domain.SourceMarketData,
		query:       "SELECT status, COUNT(*) as count FROM clinical_trials GROUP BY status ORDER BY count DESC",
		description: "Clinical trials count by status",
	},
	{
		name:        "trials_by_phase",
		trigger:     regexp.MustCompile(`trials? by phase`),
		source:      domain.SourceMarketData,
		query:       "SELECT phase, COUNT(*) as count FROM clinical_trials GROUP BY phase ORDER BY count DESC",
		description: "Clinical trials count by phase",
	},
	{
		name:        "trials_by_sponsor",
		trigger:     regexp.MustCompile(`top sponsors?`),
		source:      domain.SourceMarketData,
		query:       "SELECT sponsor, COUNT(*) as count FROM clinical_trials GROUP BY sponsor ORDER BY count DESC LIMIT 20",
		description: "Top 20 sponsors by trial count",
	},
	{
		name:        "grants_by_institute",
		trigger:     regexp.MustCompile(`grants? by institute`),
		source:      domain.SourceGrants,
		query:       "SELECT institute, COUNT(*) as count, SUM(total_cost) as total_funding FROM grants GROUP BY institute ORDER BY total_funding DESC LIMIT 20",
		description: "Top 20 institutes by grant funding",
	},
	{
		name:        "researchers_by_category",
		trigger:     regexp.MustCompile(`researchers? by category`),
		source:      domain.SourceResearchers,
		query:       "SELECT primary_category, COUNT(*) as count, AVG(h_index) as avg_h_index FROM researchers GROUP BY primary_category ORDER BY count DESC LIMIT 20",
		description: "Top 20 research categories",
	},
}

type aggregationEntry struct {
	answer    string
	rows      []map[string]any
	timestamp time.Time
}

type aggregationCache struct {
	mu      sync.Mutex
	entries map[string]aggregationEntry
	ttl     time.Duration
}

func newAggregationCache(ttl time.Duration) *aggregationCache {
	return &aggregationCache{entries: make(map[string]aggregationEntry), ttl: ttl}
}

func (c *aggregationCache) get(name string) (aggregationEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[name]
	if !ok || time.Since(entry.timestamp) >= c.ttl {
		return aggregationEntry{}, false
	}
	return entry, true
}

func (c *aggregationCache) set(name, answer string, rows []map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[name] = aggregationEntry{answer: answer, rows: rows, timestamp: time.Now()}
}
