package router

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"neoquery/internal/domain"
)

// tierOnePattern answers a simple counting or listing question with one
// canned query. An empty SQL string means list the source's tables instead.
type tierOnePattern struct {
	re     *regexp.Regexp
	source domain.Source
	sql    string
}

var tierOnePatterns = []tierOnePattern{
	// Database stats
	{regexp.MustCompile(`how many (researchers?|scientists?)`), domain.SourceResearchers, "SELECT COUNT(*) as count FROM researchers"},
	{regexp.MustCompile(`how many patents?`), domain.SourcePatents, "SELECT COUNT(*) as count FROM patents"},
	{regexp.MustCompile(`how many grants?`), domain.SourceGrants, "SELECT COUNT(*) as count FROM grants"},
	{regexp.MustCompile(`how many (companies|portfolio)`), domain.SourcePortfolio, "SELECT COUNT(*) as count FROM companies"},
	{regexp.MustCompile(`how many (bills?|policies?)`), domain.SourcePolicies, "SELECT COUNT(*) as count FROM bills"},

	// Total funding
	{regexp.MustCompile(`total (grant )?funding`), domain.SourceGrants, "SELECT SUM(total_cost) as total_funding FROM grants WHERE total_cost > 0"},

	// Hidden gems count
	{regexp.MustCompile(`how many hidden gems?`), domain.SourceResearchers, "SELECT COUNT(*) as count FROM researchers WHERE slope > 3 AND h_index BETWEEN 20 AND 60"},

	// Clinical trials stats
	{regexp.MustCompile(`how many (clinical )?trials?`), domain.SourceMarketData, "SELECT COUNT(*) as count FROM clinical_trials"},
	{regexp.MustCompile(`how many recruiting trials?`), domain.SourceMarketData, "SELECT COUNT(*) as count FROM clinical_trials WHERE status = 'RECRUITING'"},
	{regexp.MustCompile(`how many phase ?3 trials?`), domain.SourceMarketData, "SELECT COUNT(*) as count FROM clinical_trials WHERE phase LIKE '%PHASE3%'"},
	{regexp.MustCompile(`how many completed trials?`), domain.SourceMarketData, "SELECT COUNT(*) as count FROM clinical_trials WHERE status = 'COMPLETED'"},
	{regexp.MustCompile(`trials? by status`), domain.SourceMarketData, "SELECT status, COUNT(*) as count FROM clinical_trials GROUP BY status ORDER BY count DESC"},
	{regexp.MustCompile(`trials? by phase`), domain.SourceMarketData, "SELECT phase, COUNT(*) as count FROM clinical_trials GROUP BY phase ORDER BY count DESC"},
	{regexp.MustCompile(`top sponsors?`), domain.SourceMarketData, "SELECT sponsor, COUNT(*) as count FROM clinical_trials GROUP BY sponsor ORDER BY count DESC LIMIT 20"},

	// Table listings
	{regexp.MustCompile(`what tables.*(researchers?|talent)`), domain.SourceResearchers, ""},
	{regexp.MustCompile(`what tables.*(patents?)`), domain.SourcePatents, ""},
	{regexp.MustCompile(`what tables.*(grants?)`), domain.SourceGrants, ""},
	{regexp.MustCompile(`what tables.*(portfolio)`), domain.SourcePortfolio, ""},
	{regexp.MustCompile(`what tables.*(policies?|bills?)`), domain.SourcePolicies, ""},
	{regexp.MustCompile(`what tables.*(trials?|market|clinical)`), domain.SourceMarketData, ""},
}

// tierTwoPattern builds a parameterized query from named capture groups.
// Every select list includes id so results can be turned into entity links.
type tierTwoPattern struct {
	re     *regexp.Regexp
	source domain.Source
	build  func(g groups) string
}

var tierTwoPatterns = []tierTwoPattern{
	// Rising stars / hidden gems in a field
	{
		re:     regexp.MustCompile(`(rising stars?|hidden gems?|fast[- ]?growing).*(?:in|for|about) (?P<field>[a-zA-Z]+)`),
		source: domain.SourceResearchers,
		build: func(g groups) string {
			field := sqlString(g.text("field"))
			return fmt.Sprintf("SELECT id, name, h_index, slope, primary_category, affiliations FROM researchers WHERE slope > 3 AND h_index BETWEEN 20 AND 60 AND (topics LIKE '%%%s%%' OR primary_category LIKE '%%%s%%') ORDER BY slope DESC LIMIT 10", field, field)
		},
	},
	// Top researchers by h-index in a field
	{
		re:     regexp.MustCompile(`top (?P<n>\d+)? ?researchers?.*(?:in|for|about) (?P<field>[a-zA-Z]+)`),
		source: domain.SourceResearchers,
		build: func(g groups) string {
			field := sqlString(g.text("field"))
			return fmt.Sprintf("SELECT id, name, h_index, slope, primary_category, affiliations FROM researchers WHERE topics LIKE '%%%s%%' OR primary_category LIKE '%%%s%%' ORDER BY h_index DESC LIMIT %d", field, field, g.number("n", 10))
		},
	},
	// Recent patents for a company
	{
		re:     regexp.MustCompile(`patents?.*(for |from |by )?(?P<company>\w+)`),
		source: domain.SourcePatents,
		build: func(g groups) string {
			company := sqlString(g.text("company"))
			return fmt.Sprintf("SELECT id, title, patent_number, filing_date, assignee FROM patents WHERE assignee LIKE '%%%s%%' OR title LIKE '%%%s%%' ORDER BY filing_date DESC LIMIT 10", company, company)
		},
	},
	// Grants in a field
	{
		re:     regexp.MustCompile(`grants?.*(in |for |about )?(?P<field>\w+)`),
		source: domain.SourceGrants,
		build: func(g groups) string {
			field := sqlString(g.text("field"))
			return fmt.Sprintf("SELECT id, title, total_cost, institute, fiscal_year FROM grants WHERE title LIKE '%%%s%%' OR abstract LIKE '%%%s%%' ORDER BY total_cost DESC LIMIT 10", field, field)
		},
	},
	// Portfolio company info
	{
		re:     regexp.MustCompile(`(what is|tell me about|info on) (?P<company>\w+)`),
		source: domain.SourcePortfolio,
		build: func(g groups) string {
			return fmt.Sprintf("SELECT id, name, modality, competitive_advantage, indications FROM companies WHERE name LIKE '%%%s%%' LIMIT 1", sqlString(g.text("company")))
		},
	},
	// Trials for a condition
	{
		re:     regexp.MustCompile(`(?:clinical )?trials? (?:for|treating|in) (?P<condition>[a-zA-Z\s]+?)(?:\?|$|,| and)`),
		source: domain.SourceMarketData,
		build: func(g groups) string {
			condition := sqlString(strings.TrimSpace(g.text("condition")))
			return fmt.Sprintf("SELECT id, nct_id, title, status, phase, sponsor, start_date FROM clinical_trials WHERE (title LIKE '%%%s%%' OR conditions LIKE '%%%s%%') ORDER BY start_date DESC LIMIT 15", condition, condition)
		},
	},
	// Trials by a sponsor
	{
		re:     regexp.MustCompile(`(?P<sponsor>\w+(?:\s+\w+)?)'?s? (?:clinical )?trials?`),
		source: domain.SourceMarketData,
		build: func(g groups) string {
			sponsor := sqlString(strings.TrimSpace(g.text("sponsor")))
			return fmt.Sprintf("SELECT id, nct_id, title, status, phase, conditions, start_date FROM clinical_trials WHERE sponsor LIKE '%%%s%%' ORDER BY start_date DESC LIMIT 15", sponsor)
		},
	},
	// Recruiting trials in a field
	{
		re:     regexp.MustCompile(`recruiting (?:clinical )?trials? (?:for|in|treating) (?P<field>[a-zA-Z\s]+)`),
		source: domain.SourceMarketData,
		build: func(g groups) string {
			field := sqlString(strings.TrimSpace(g.text("field")))
			return fmt.Sprintf("SELECT id, nct_id, title, phase, sponsor, enrollment, start_date FROM clinical_trials WHERE status = 'RECRUITING' AND (title LIKE '%%%s%%' OR conditions LIKE '%%%s%%') ORDER BY enrollment DESC LIMIT 15", field, field)
		},
	},
	// Phase N trials for a condition
	{
		re:     regexp.MustCompile(`phase ?(?P<phase>\d) (?:clinical )?trials? (?:for|in|treating) (?P<condition>[a-zA-Z\s]+)`),
		source: domain.SourceMarketData,
		build: func(g groups) string {
			condition := sqlString(strings.TrimSpace(g.text("condition")))
			return fmt.Sprintf("SELECT id, nct_id, title, status, sponsor, enrollment, start_date FROM clinical_trials WHERE phase LIKE '%%PHASE%s%%' AND (title LIKE '%%%s%%' OR conditions LIKE '%%%s%%') ORDER BY start_date DESC LIMIT 15", g.text("phase"), condition, condition)
		},
	},
	// Top sponsors by trial count
	{
		re:     regexp.MustCompile(`top (?P<n>\d+)? ?sponsors? (?:by|with) (?:most )?trials?`),
		source: domain.SourceMarketData,
		build: func(g groups) string {
			return fmt.Sprintf("SELECT sponsor, COUNT(*) as trial_count, SUM(CASE WHEN status = 'RECRUITING' THEN 1 ELSE 0 END) as recruiting FROM clinical_trials GROUP BY sponsor ORDER BY trial_count DESC LIMIT %d", g.number("n", 10))
		},
	},
	// Trials starting in a year
	{
		re:     regexp.MustCompile(`(?:clinical )?trials? (?:started|posted|from|in) (?P<year>20\d{2})`),
		source: domain.SourceMarketData,
		build: func(g groups) string {
			return fmt.Sprintf("SELECT id, nct_id, title, status, phase, sponsor FROM clinical_trials WHERE start_date LIKE '%s%%' ORDER BY start_date DESC LIMIT 20", g.text("year"))
		},
	},
}

// crossSourcePattern recognizes questions that need results from more than
// one source joined together. The router does not join; it hands the agent
// the queries it would start from.
type crossSourcePattern struct {
	re      *regexp.Regexp
	queries []domain.HintQuery
}

var crossSourcePatterns = []crossSourcePattern{
	// Match researcher affiliations with patent assignees
	{
		re: regexp.MustCompile(`researchers? (?:with|who have) patents?`),
		queries: []domain.HintQuery{
			{Source: domain.SourceResearchers, SQL: "SELECT id, name, h_index, affiliations FROM researchers ORDER BY h_index DESC LIMIT 50"},
			{Source: domain.SourcePatents, SQL: "SELECT assignee, COUNT(*) as patent_count FROM patents GROUP BY assignee"},
		},
	},
	// Match portfolio company names with trial sponsors
	{
		re: regexp.MustCompile(`(?:clinical )?trials? (?:by|from|for) (?:our )?portfolio (?:companies)?`),
		queries: []domain.HintQuery{
			{Source: domain.SourcePortfolio, SQL: "SELECT id, name FROM companies"},
			{Source: domain.SourceMarketData, SQL: "SELECT sponsor, COUNT(*) as trial_count, SUM(CASE WHEN status='RECRUITING' THEN 1 ELSE 0 END) as recruiting FROM clinical_trials GROUP BY sponsor"},
		},
	},
	// Match trial conditions with grant research areas
	{
		re: regexp.MustCompile(`grants? (?:related to|for|in) (?:active|recruiting) (?:clinical )?trials?`),
		queries: []domain.HintQuery{
			{Source: domain.SourceMarketData, SQL: "SELECT DISTINCT conditions FROM clinical_trials WHERE status = 'RECRUITING' LIMIT 100"},
			{Source: domain.SourceGrants, SQL: "SELECT id, title, total_cost, institute FROM grants ORDER BY total_cost DESC LIMIT 100"},
		},
	},
}

// groups gives template builders access to named capture groups.
type groups struct {
	re      *regexp.Regexp
	matched []string
}

func (g groups) text(name string) string {
	i := g.re.SubexpIndex(name)
	if i < 0 || i >= len(g.matched) {
		return ""
	}
	return g.matched[i]
}

func (g groups) number(name string, fallback int) int {
	n, err := strconv.Atoi(g.text(name))
	if err != nil {
		return fallback
	}
	return n
}

// sqlString escapes single quotes before a value is placed inside a LIKE
// literal. Capture classes already exclude quotes; this keeps the templates
// safe if they are ever loosened.
func sqlString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
