package router

import (
	"regexp"
	"strings"

	"neoquery/internal/domain"
)

// Vocabulary that ties a question to a data source. Matching is lowercase
// substring containment, first hit per source, detection order fixed.
var sourceKeywords = []struct {
	source   domain.Source
	keywords []string
}{
	{domain.SourceResearchers, []string{
		"researcher", "researchers", "scientist", "scientists", "professor",
		"h-index", "h_index", "hindex", "citations", "publications", "slope",
		"rising star", "hidden gem", "talent", "academic", "author", "kol",
	}},
	{domain.SourcePatents, []string{
		"patent", "patents", "invention", "inventions", "assignee", "claims",
		"intellectual property", "ip", "patent number", "cpc",
	}},
	{domain.SourceGrants, []string{
		"grant", "grants", "funding", "nih", "nsf", "r01", "award",
		"pi", "principal investigator", "fiscal year", "institute",
	}},
	{domain.SourceSECSentinel, []string{
		"sec", "filing", "filings", "8-k", "10-k", "10-q", "s-1", "s-3",
		"form 4", "insider", "insider trading", "insider sell", "insider buy",
		"runway", "cash runway", "burn rate", "distress", "shelf registration",
		"ipo", "proxy", "13d", "13g", "activist",
	}},
	{domain.SourceMarketData, []string{
		"trial", "trials", "clinical trial", "clinical trials", "phase",
		"recruiting", "sponsor", "fda", "drug", "intervention", "nct",
		"enrollment", "completed", "terminated", "suspended",
	}},
	{domain.SourcePortfolio, []string{
		"portfolio", "company", "companies", "startup", "modality",
		"indication", "competitive advantage", "investment",
	}},
	{domain.SourcePolicies, []string{
		"bill", "bills", "policy", "policies", "legislation", "congress",
		"senate", "house", "law", "regulation",
	}},
}

// DetectSources returns the data sources a question likely refers to.
func DetectSources(question string) []domain.Source {
	q := strings.ToLower(question)
	var detected []domain.Source
	for _, entry := range sourceKeywords {
		for _, keyword := range entry.keywords {
			if strings.Contains(q, keyword) {
				detected = append(detected, entry.source)
				break
			}
		}
	}
	return detected
}

const (
	intentGeneral = "general"
	intentCrossDB = "cross_db"
)

// Intent buckets, each matched by any of its regexes. A question can carry
// several intents; bucket order is fixed.
var intentPatterns = []struct {
	intent   string
	patterns []*regexp.Regexp
}{
	{"count", compileAll(
		`how many`, `count of`, `number of`, `total (?:number|count)`,
	)},
	{"list", compileAll(
		`list (?:all|the)?`, `show (?:me )?(?:all|the)?`, `what are`,
		`who are`, `find (?:all|the)?`, `get (?:all|the)?`,
	)},
	{"top_n", compileAll(
		`top \d+`, `best \d+`, `highest \d+`, `largest \d+`,
		`most \w+`, `biggest`,
	)},
	{"compare", compileAll(
		`compare`, `versus`, ` vs\.?[ $]`, `difference between`,
		`how does .+ compare`,
	)},
	{"lookup", compileAll(
		`what is`, `tell me about`, `info on`, `details (?:on|about|for)`,
		`who is`, `describe`,
	)},
	{"aggregate", compileAll(
		`total`, `sum of`, `average`, `mean`, `median`,
		`by (?:status|phase|year|sponsor|category|field)`,
	)},
	{"filter", compileAll(
		`where`, `with`, `that have`, `greater than`, `less than`,
		`more than`, `over \$?\d+`, `under \$?\d+`, `between`,
	)},
	{intentCrossDB, compileAll(
		`and (?:also|their|any)`, `who .+ and .+ have`,
		`researchers .+ patents`, `researchers .+ trials`,
		`companies .+ patents`, `grants .+ trials`,
		`for each`, `across`, `both .+ and`,
	)},
}

// DetectIntents returns the intents of a question, or ["general"] when none
// of the buckets match.
func DetectIntents(question string) []string {
	q := strings.ToLower(question)
	var intents []string
	for _, entry := range intentPatterns {
		for _, re := range entry.patterns {
			if re.MatchString(q) {
				intents = append(intents, entry.intent)
				break
			}
		}
	}
	if len(intents) == 0 {
		return []string{intentGeneral}
	}
	return intents
}

func compileAll(patterns ...string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		compiled[i] = regexp.MustCompile(p)
	}
	return compiled
}

func hasIntent(intents []string, intent string) bool {
	for _, i := range intents {
		if i == intent {
			return true
		}
	}
	return false
}

func sourceNames(sources []domain.Source) []string {
	names := make([]string, len(sources))
	for i, s := range sources {
		names[i] = string(s)
	}
	return names
}
