package agent

import "neoquery/internal/domain"

// Event types emitted during a streaming run.
const (
	EventStatus     = "status"
	EventTool       = "tool"
	EventToolResult = "tool_result"
	EventComplete   = "complete"
)

// streamBuffer sizes the event channel so a slow reader does not stall tool
// execution between events.
const streamBuffer = 16

// Event is one progress update from a streaming run. The terminal complete
// event carries the full result.
type Event struct {
	Type    string           `json:"type"`
	Message string           `json:"message,omitempty"`
	Tool    string           `json:"tool,omitempty"`
	Rows    *int             `json:"rows,omitempty"`
	Data    *domain.AgentRun `json:"data,omitempty"`
}

// toolStatus maps tool names to the progress line shown while the tool
// runs.
var toolStatus = map[string]string{
	"get_researchers":          "Finding researchers...",
	"get_researcher_profile":   "Getting researcher profile...",
	"get_rising_stars":         "Finding rising star researchers...",
	"get_researchers_by_topic": "Finding researchers by topic...",
	"get_patents":              "Searching patents...",
	"get_patent_portfolio":     "Analyzing patent portfolio...",
	"get_inventors_by_company": "Finding key inventors...",
	"search_patents_by_topic":  "Searching patent landscape...",
	"get_grants":               "Searching grants...",
	"get_funding_summary":      "Analyzing funding...",
	"get_pis_by_organization":  "Finding principal investigators...",
	"get_grants_by_topic":      "Searching grant landscape...",
	"search_entity":            "Searching across all databases...",
	"get_company_profile":      "Building company profile...",
	"get_sec_filings":          "Searching SEC filings...",
	"get_companies_by_runway":  "Checking company runway data...",
	"get_insider_transactions": "Searching insider transactions...",
	"get_runway_alerts":        "Checking runway alerts...",
	"query_researchers":        "Querying researchers database...",
	"query_patents":            "Querying patents database...",
	"query_grants":             "Querying grants database...",
	"query_policies":           "Querying policies database...",
	"query_portfolio":          "Querying portfolio database...",
	"query_market_data":        "Querying clinical trials database...",
	"list_tables":              "Exploring database schema...",
	"describe_table":           "Examining table structure...",
	"append_insight":           "Recording insight...",
}

// statusMessage returns the progress line for a tool call.
func statusMessage(tool string) string {
	if msg, ok := toolStatus[tool]; ok {
		return msg
	}
	return "Running " + tool + "..."
}
