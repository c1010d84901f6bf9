package agent

import (
	"context"
	"encoding/json"

	"neoquery/internal/domain"
	"neoquery/internal/provider"
	"neoquery/internal/semantic"
	"neoquery/internal/sqlclient"
	"neoquery/internal/telemetry"
)

// Store is the slice of the SQL client the tool handlers consume.
type Store interface {
	Execute(ctx context.Context, source domain.Source, query string) (*domain.QueryResult, error)
	ListTables(ctx context.Context, source domain.Source) ([]domain.TableInfo, error)
	DescribeTable(ctx context.Context, source domain.Source, table string) ([]map[string]any, error)
	SECFilings(ctx context.Context, p sqlclient.FilingsParams) map[string]any
	RunwayCompanies(ctx context.Context, p sqlclient.RunwayParams) map[string]any
	InsiderTransactions(ctx context.Context, p sqlclient.InsiderParams) map[string]any
	RunwayAlerts(ctx context.Context) map[string]any
}

// sqlQuerySchema is shared by the six raw SQL tools.
const sqlQuerySchema = `{
    "type": "object",
    "properties": {
        "query": {
            "type": "string",
            "description": "SQL SELECT query to execute"
        }
    },
    "required": ["query"]
}`

// NewRegistry builds the full tool catalog: the semantic functions over the
// six sources, the raw SQL passthroughs, schema introspection and the
// insight recorder.
func NewRegistry(sem *semantic.Service, db Store, metrics *telemetry.Metrics, logger telemetry.Logger) *Registry {
	reg := newRegistry(metrics, logger)

	// Researchers.
	reg.add(Tool{
		Definition: provider.ToolDef{
			Name: "get_researchers",
			Description: `Find researchers with optional filters. Returns top researchers matching criteria.

Use this instead of raw SQL for researcher lookups. Handles JSON topic parsing automatically.

Returns: id, name, h_index, slope, affiliations, topics, primary_category`,
			InputSchema: json.RawMessage(`{
    "type": "object",
    "properties": {
        "min_h_index": {
            "type": "integer",
            "description": "Minimum h-index (default: no minimum)"
        },
        "topic": {
            "type": "string",
            "description": "Research topic to search for (searches topics JSON field)"
        },
        "affiliation": {
            "type": "string",
            "description": "Institution/affiliation to filter by"
        },
        "limit": {
            "type": "integer",
            "description": "Max results (default: 20)"
        }
    },
    "required": []
}`),
		},
		Kind: KindResearchers,
		Handler: func(ctx context.Context, input map[string]any, _ *RunState) (any, error) {
			return sem.Researchers(ctx, semantic.ResearcherFilter{
				MinHIndex:   intArg(input, "min_h_index"),
				Topic:       strArg(input, "topic"),
				Affiliation: strArg(input, "affiliation"),
				Limit:       intArg(input, "limit"),
			})
		},
	})

	reg.add(Tool{
		Definition: provider.ToolDef{
			Name: "get_researcher_profile",
			Description: `Get detailed profile for a specific researcher by name.

Returns full profile including h-index history, topics, affiliations, and publication metrics.
Includes trajectory analysis (rising star vs established vs declining).`,
			InputSchema: json.RawMessage(`{
    "type": "object",
    "properties": {
        "name": {
            "type": "string",
            "description": "Researcher name (partial match supported)"
        }
    },
    "required": ["name"]
}`),
		},
		Kind: KindResearchers,
		Handler: func(ctx context.Context, input map[string]any, _ *RunState) (any, error) {
			return sem.ResearcherProfile(ctx, strArg(input, "name"))
		},
	})

	reg.add(Tool{
		Definition: provider.ToolDef{
			Name: "get_rising_stars",
			Description: `Find researchers with fast-growing h-index (rising stars).

These are researchers whose h-index is growing faster than peers - potential talent for hiring or collaboration.
Slope > 3 indicates very fast growth.`,
			InputSchema: json.RawMessage(`{
    "type": "object",
    "properties": {
        "min_slope": {
            "type": "number",
            "description": "Minimum h-index growth rate (default: 2.0)"
        },
        "min_h_index": {
            "type": "integer",
            "description": "Minimum current h-index (default: 15)"
        },
        "max_h_index": {
            "type": "integer",
            "description": "Maximum h-index to exclude established researchers (default: 80)"
        },
        "topic": {
            "type": "string",
            "description": "Filter by research topic"
        },
        "limit": {
            "type": "integer",
            "description": "Max results (default: 20)"
        }
    },
    "required": []
}`),
		},
		Kind: KindResearchers,
		Handler: func(ctx context.Context, input map[string]any, _ *RunState) (any, error) {
			return sem.RisingStars(ctx, semantic.RisingStarsFilter{
				MinSlope:  floatArg(input, "min_slope"),
				MinHIndex: intArg(input, "min_h_index"),
				MaxHIndex: intArg(input, "max_h_index"),
				Topic:     strArg(input, "topic"),
				Limit:     intArg(input, "limit"),
			})
		},
	})

	reg.add(Tool{
		Definition: provider.ToolDef{
			Name: "get_researchers_by_topic",
			Description: `Find top researchers in a specific research area.

Returns researchers ranked by h-index who work in the specified topic area.`,
			InputSchema: json.RawMessage(`{
    "type": "object",
    "properties": {
        "topic": {
            "type": "string",
            "description": "Research topic (e.g., 'CRISPR', 'mRNA', 'immunotherapy', 'gene therapy')"
        },
        "limit": {
            "type": "integer",
            "description": "Max results (default: 20)"
        }
    },
    "required": ["topic"]
}`),
		},
		Kind: KindResearchers,
		Handler: func(ctx context.Context, input map[string]any, _ *RunState) (any, error) {
			return sem.ResearchersByTopic(ctx, strArg(input, "topic"), intArg(input, "limit"))
		},
	})

	// Patents.
	reg.add(Tool{
		Definition: provider.ToolDef{
			Name: "get_patents",
			Description: `Search patents with filters. Returns matching patents with key metadata.

Use this instead of raw SQL for patent lookups.`,
			InputSchema: json.RawMessage(`{
    "type": "object",
    "properties": {
        "assignee": {
            "type": "string",
            "description": "Company/organization that owns the patent"
        },
        "inventor": {
            "type": "string",
            "description": "Inventor name"
        },
        "cpc_code": {
            "type": "string",
            "description": "CPC classification code (e.g., 'A61K' for pharma, 'C12N' for biotech)"
        },
        "days": {
            "type": "integer",
            "description": "Only patents granted in last N days"
        },
        "keyword": {
            "type": "string",
            "description": "Search in title and abstract"
        },
        "limit": {
            "type": "integer",
            "description": "Max results (default: 20)"
        }
    },
    "required": []
}`),
		},
		Kind: KindPatents,
		Handler: func(ctx context.Context, input map[string]any, _ *RunState) (any, error) {
			return sem.Patents(ctx, semantic.PatentFilter{
				Assignee: strArg(input, "assignee"),
				Inventor: strArg(input, "inventor"),
				CPCCode:  strArg(input, "cpc_code"),
				Days:     intArg(input, "days"),
				Keyword:  strArg(input, "keyword"),
				Limit:    intArg(input, "limit"),
			})
		},
	})

	reg.add(Tool{
		Definition: provider.ToolDef{
			Name: "get_patent_portfolio",
			Description: `Get complete patent portfolio for a company/assignee.

Returns summary statistics and list of patents owned by the assignee.
Includes: total patents, filing trends, top CPC codes, recent filings.`,
			InputSchema: json.RawMessage(`{
    "type": "object",
    "properties": {
        "assignee": {
            "type": "string",
            "description": "Company/organization name"
        }
    },
    "required": ["assignee"]
}`),
		},
		Kind: KindPatentPortfolio,
		Handler: func(ctx context.Context, input map[string]any, _ *RunState) (any, error) {
			return sem.PatentPortfolio(ctx, strArg(input, "assignee"))
		},
	})

	reg.add(Tool{
		Definition: provider.ToolDef{
			Name: "get_inventors_by_company",
			Description: `Get top inventors at a company based on patent count.

Returns inventors who have filed patents assigned to the specified company.`,
			InputSchema: json.RawMessage(`{
    "type": "object",
    "properties": {
        "assignee": {
            "type": "string",
            "description": "Company/organization name"
        },
        "limit": {
            "type": "integer",
            "description": "Max results (default: 20)"
        }
    },
    "required": ["assignee"]
}`),
		},
		Kind: KindRaw,
		Handler: func(ctx context.Context, input map[string]any, _ *RunState) (any, error) {
			return sem.InventorsByCompany(ctx, strArg(input, "assignee"), intArg(input, "limit"))
		},
	})

	reg.add(Tool{
		Definition: provider.ToolDef{
			Name: "search_patents_by_topic",
			Description: `Search patents by technology topic using keywords.

Searches title and abstract for relevant patents. Good for landscape analysis.`,
			InputSchema: json.RawMessage(`{
    "type": "object",
    "properties": {
        "keywords": {
            "type": "string",
            "description": "Keywords to search (e.g., 'mRNA delivery', 'CAR-T', 'gene editing')"
        },
        "limit": {
            "type": "integer",
            "description": "Max results (default: 20)"
        }
    },
    "required": ["keywords"]
}`),
		},
		Kind: KindPatents,
		Handler: func(ctx context.Context, input map[string]any, _ *RunState) (any, error) {
			return sem.PatentsByTopic(ctx, strArg(input, "keywords"), intArg(input, "limit"))
		},
	})

	// Grants.
	reg.add(Tool{
		Definition: provider.ToolDef{
			Name: "get_grants",
			Description: `Search grants with filters. Returns matching grants with funding details.

Use this instead of raw SQL for grant lookups.`,
			InputSchema: json.RawMessage(`{
    "type": "object",
    "properties": {
        "organization": {
            "type": "string",
            "description": "Institution receiving the grant"
        },
        "pi_name": {
            "type": "string",
            "description": "Principal investigator name"
        },
        "mechanism": {
            "type": "string",
            "description": "Grant type: R01, R21, SBIR, STTR, K, U, etc."
        },
        "min_amount": {
            "type": "integer",
            "description": "Minimum total funding amount"
        },
        "institute": {
            "type": "string",
            "description": "NIH institute (e.g., 'NCI', 'NIAID', 'NIGMS')"
        },
        "keyword": {
            "type": "string",
            "description": "Search in title and abstract"
        },
        "limit": {
            "type": "integer",
            "description": "Max results (default: 20)"
        }
    },
    "required": []
}`),
		},
		Kind: KindGrants,
		Handler: func(ctx context.Context, input map[string]any, _ *RunState) (any, error) {
			return sem.Grants(ctx, semantic.GrantFilter{
				Organization: strArg(input, "organization"),
				PIName:       strArg(input, "pi_name"),
				Mechanism:    strArg(input, "mechanism"),
				MinAmount:    intArg(input, "min_amount"),
				Institute:    strArg(input, "institute"),
				Keyword:      strArg(input, "keyword"),
				Limit:        intArg(input, "limit"),
			})
		},
	})

	reg.add(Tool{
		Definition: provider.ToolDef{
			Name: "get_funding_summary",
			Description: `Get funding summary for an organization.

Returns total funding, grant count by mechanism, top-funded projects, and recent awards.`,
			InputSchema: json.RawMessage(`{
    "type": "object",
    "properties": {
        "organization": {
            "type": "string",
            "description": "Institution name"
        }
    },
    "required": ["organization"]
}`),
		},
		Kind: KindFundingSummary,
		Handler: func(ctx context.Context, input map[string]any, _ *RunState) (any, error) {
			return sem.FundingSummary(ctx, strArg(input, "organization"))
		},
	})

	reg.add(Tool{
		Definition: provider.ToolDef{
			Name: "get_pis_by_organization",
			Description: `Get principal investigators at an organization ranked by funding.

Returns PIs with their total funding, grant count, and top projects.`,
			InputSchema: json.RawMessage(`{
    "type": "object",
    "properties": {
        "organization": {
            "type": "string",
            "description": "Institution name"
        },
        "limit": {
            "type": "integer",
            "description": "Max results (default: 20)"
        }
    },
    "required": ["organization"]
}`),
		},
		Kind: KindRaw,
		Handler: func(ctx context.Context, input map[string]any, _ *RunState) (any, error) {
			return sem.PIsByOrganization(ctx, strArg(input, "organization"), intArg(input, "limit"))
		},
	})

	reg.add(Tool{
		Definition: provider.ToolDef{
			Name: "get_grants_by_topic",
			Description: `Search grants by research topic using keywords.

Searches title and abstract for relevant grants. Good for funding landscape analysis.`,
			InputSchema: json.RawMessage(`{
    "type": "object",
    "properties": {
        "keywords": {
            "type": "string",
            "description": "Keywords to search (e.g., 'CRISPR', 'mRNA vaccine', 'CAR-T therapy')"
        },
        "limit": {
            "type": "integer",
            "description": "Max results (default: 20)"
        }
    },
    "required": ["keywords"]
}`),
		},
		Kind: KindGrants,
		Handler: func(ctx context.Context, input map[string]any, _ *RunState) (any, error) {
			return sem.GrantsByTopic(ctx, strArg(input, "keywords"), intArg(input, "limit"))
		},
	})

	// Cross-database.
	reg.add(Tool{
		Definition: provider.ToolDef{
			Name: "search_entity",
			Description: `Search for an entity (company, university, person) across all databases.

Finds the entity and shows what data exists about it in each database (patents, grants, researchers).
Uses the entity_links table to resolve name variations.`,
			InputSchema: json.RawMessage(`{
    "type": "object",
    "properties": {
        "name": {
            "type": "string",
            "description": "Entity name to search for"
        }
    },
    "required": ["name"]
}`),
		},
		Kind: KindCrossSearch,
		Handler: func(ctx context.Context, input map[string]any, _ *RunState) (any, error) {
			return sem.SearchEntity(ctx, strArg(input, "name")), nil
		},
	})

	reg.add(Tool{
		Definition: provider.ToolDef{
			Name: "get_company_profile",
			Description: `Get unified profile of a company from all databases.

Aggregates: patents owned, grants received, researchers affiliated, SEC filings (if available).
Provides a 360-degree view of the company's research and IP footprint.`,
			InputSchema: json.RawMessage(`{
    "type": "object",
    "properties": {
        "name": {
            "type": "string",
            "description": "Company name"
        }
    },
    "required": ["name"]
}`),
		},
		Kind: KindCompanyProfile,
		Handler: func(ctx context.Context, input map[string]any, _ *RunState) (any, error) {
			return sem.CompanyProfile(ctx, strArg(input, "name")), nil
		},
	})

	// SEC sentinel.
	reg.add(Tool{
		Definition: provider.ToolDef{
			Name: "get_sec_filings",
			Description: `Search SEC filings (8-K, 10-K, 10-Q, S-1, S-3, Form 4) with optional runway status.

Returns filings with linked runway data. Can filter by runway status to find filings from distressed companies.
Form types: 8-K (material events), 10-K (annual), 10-Q (quarterly), S-1 (IPO), S-3 (shelf/fundraising), 4 (insider), SC 13D/G (ownership).`,
			InputSchema: json.RawMessage(`{
    "type": "object",
    "properties": {
        "ticker": {
            "type": "string",
            "description": "Stock ticker symbol"
        },
        "form_type": {
            "type": "string",
            "description": "Filing type: 8-K, 10-K, 10-Q, S-1, S-3, 4, SC 13D"
        },
        "days": {
            "type": "integer",
            "description": "Look back N days (default: 30)"
        },
        "runway_status": {
            "type": "string",
            "enum": ["critical", "low", "moderate", "healthy"],
            "description": "Filter by runway status: critical (<6mo), low (6-12mo), moderate (12-24mo), healthy (>24mo)"
        }
    },
    "required": []
}`),
		},
		Kind: KindRaw,
		Handler: func(ctx context.Context, input map[string]any, _ *RunState) (any, error) {
			return db.SECFilings(ctx, sqlclient.FilingsParams{
				Ticker:       strArg(input, "ticker"),
				FormType:     strArg(input, "form_type"),
				Days:         intArg(input, "days"),
				RunwayStatus: strArg(input, "runway_status"),
			}), nil
		},
	})

	reg.add(Tool{
		Definition: provider.ToolDef{
			Name: "get_companies_by_runway",
			Description: `Find companies by cash runway status.

Returns companies sorted by runway (lowest first). Critical runway (<6 months) often precedes fundraising or acquisition.
Includes runway status classification: critical, low, moderate, healthy.`,
			InputSchema: json.RawMessage(`{
    "type": "object",
    "properties": {
        "max_months": {
            "type": "number",
            "description": "Maximum runway in months (e.g., 6 for critical only)"
        },
        "min_months": {
            "type": "number",
            "description": "Minimum runway in months (default: 0)"
        },
        "limit": {
            "type": "integer",
            "description": "Max results (default: 50)"
        }
    },
    "required": []
}`),
		},
		Kind: KindRaw,
		Handler: func(ctx context.Context, input map[string]any, _ *RunState) (any, error) {
			return db.RunwayCompanies(ctx, sqlclient.RunwayParams{
				MaxMonths: floatArg(input, "max_months"),
				MinMonths: floatArg(input, "min_months"),
				Limit:     intArg(input, "limit"),
			}), nil
		},
	})

	reg.add(Tool{
		Definition: provider.ToolDef{
			Name: "get_insider_transactions",
			Description: `Search insider trading transactions (Form 4 data).

Returns insider buys and sells with linked runway data. Insider buys at distressed companies can be bullish; sells at low-runway companies are bearish.
Flags transactions at companies with low runway automatically.`,
			InputSchema: json.RawMessage(`{
    "type": "object",
    "properties": {
        "ticker": {
            "type": "string",
            "description": "Stock ticker symbol"
        },
        "insider_role": {
            "type": "string",
            "description": "Filter by role: CEO, CFO, Director, etc."
        },
        "transaction_type": {
            "type": "string",
            "enum": ["buy", "sell"],
            "description": "Filter by buy or sell"
        },
        "days": {
            "type": "integer",
            "description": "Look back N days (default: 90)"
        },
        "min_value": {
            "type": "number",
            "description": "Minimum transaction value in dollars"
        }
    },
    "required": []
}`),
		},
		Kind: KindRaw,
		Handler: func(ctx context.Context, input map[string]any, _ *RunState) (any, error) {
			return db.InsiderTransactions(ctx, sqlclient.InsiderParams{
				Ticker:          strArg(input, "ticker"),
				InsiderRole:     strArg(input, "insider_role"),
				TransactionType: strArg(input, "transaction_type"),
				Days:            intArg(input, "days"),
				MinValue:        floatArg(input, "min_value"),
			}), nil
		},
	})

	reg.add(Tool{
		Definition: provider.ToolDef{
			Name: "get_runway_alerts",
			Description: `Get distress signal alerts: companies with critical runway, recent S-3 filings (fundraising), and insider sells at risk companies.

This is the key watchlist function - combines runway, filings, and insider data to identify highest-risk situations.
Pattern: critical runway + S-3 filing + insider sells = maximum distress signal.`,
			InputSchema: json.RawMessage(`{
    "type": "object",
    "properties": {},
    "required": []
}`),
		},
		Kind: KindRaw,
		Handler: func(ctx context.Context, _ map[string]any, _ *RunState) (any, error) {
			return db.RunwayAlerts(ctx), nil
		},
	})

	// Raw SQL passthroughs.
	reg.add(Tool{
		Definition: provider.ToolDef{
			Name: "query_researchers",
			Description: `Execute a SQL SELECT query against the researchers database.

Contains data on scientific researchers including:
- researchers: id, name, h_index, i10_index, works_count, cited_by_count, two_yr_citedness, topics (JSON), affiliations (JSON), slope (h-index growth rate), primary_category
- h_index_history: researcher_id, year, h_index (historical h-index by year)
- topic_categories: topic_name, category

Use this for finding researchers by expertise, tracking rising stars (high slope), analyzing research trends, and identifying talent for specific therapeutic areas.`,
			InputSchema: json.RawMessage(sqlQuerySchema),
		},
		Kind:    KindResearchers,
		Handler: sqlHandler(db, domain.SourceResearchers),
	})

	reg.add(Tool{
		Definition: provider.ToolDef{
			Name: "query_patents",
			Description: `Execute a SQL SELECT query against the patents database.

Contains patent data including:
- patents: id, patent_number, title, abstract, grant_date, filing_date, application_number, patent_type, assignee_type, primary_assignee, cpc_codes, claims_count
- inventors: patent_id, name, sequence
- assignees: patent_id, name, type
- cpc_classifications: patent_id, section, class_code, subclass, group_code, full_code, is_primary
- portfolio_companies: id, name, modality, competitive_advantage, keywords, indications, cpc_codes
- patent_company_relevance: patent_id, company_id, relevance_score, match_reasons
- patent_summaries: patent_id, summary, key_claims

Use this for patent landscape analysis, competitive intelligence, finding patents relevant to portfolio companies, and tracking technology trends.`,
			InputSchema: json.RawMessage(sqlQuerySchema),
		},
		Kind:    KindPatents,
		Handler: sqlHandler(db, domain.SourcePatents),
	})

	reg.add(Tool{
		Definition: provider.ToolDef{
			Name: "query_grants",
			Description: `Execute a SQL SELECT query against the grants database.

Contains NIH/SBIR grant data including:
- grants: id, project_number, title, abstract, agency, mechanism, total_cost, award_notice_date, project_start_date, project_end_date, organization_name, pi_name
- grant_summaries: grant_id, summary, relevance_notes
- principal_investigators: grant_id, name, title, organization
- portfolio_companies: id, name, modality, keywords, indications
- grant_company_relevance: grant_id, company_id, relevance_score, match_reasons

Use this for tracking research funding, finding grants relevant to therapeutic areas, identifying funded researchers, and competitive intelligence.`,
			InputSchema: json.RawMessage(sqlQuerySchema),
		},
		Kind:    KindGrants,
		Handler: sqlHandler(db, domain.SourceGrants),
	})

	reg.add(Tool{
		Definition: provider.ToolDef{
			Name: "query_policies",
			Description: `Execute a SQL SELECT query against the policies database.

Contains policy/regulatory tracking data including:
- policies: id, title, summary, status, relevance_score, passage_likelihood, impact_summary, source_url, published_date
- policy_tags: policy_id, tag
- policy_updates: policy_id, update_date, update_text

Use this for tracking regulatory changes, legislation that may impact biotech, and policy developments relevant to the portfolio.`,
			InputSchema: json.RawMessage(sqlQuerySchema),
		},
		Kind:    KindPolicies,
		Handler: sqlHandler(db, domain.SourcePolicies),
	})

	reg.add(Tool{
		Definition: provider.ToolDef{
			Name: "query_portfolio",
			Description: `Execute a SQL SELECT query against the portfolio database.

Contains portfolio company updates and news including:
- updates: id, company_name, ticker, title, content, source_type, source_url, published_at, impact_score, position_status
- companies: id, name, ticker, modality, stage, therapeutic_area

Use this for tracking portfolio company news, competitive updates, and market developments.`,
			InputSchema: json.RawMessage(sqlQuerySchema),
		},
		Kind:    KindPortfolio,
		Handler: sqlHandler(db, domain.SourcePortfolio),
	})

	reg.add(Tool{
		Definition: provider.ToolDef{
			Name: "query_market_data",
			Description: `Execute a SQL SELECT query against the market_data database.

Contains clinical trials and FDA calendar data (89,000+ trials):
- clinical_trials: id, nct_id, brief_title, official_title, status, phase, study_type, conditions (JSON), interventions (JSON), sponsor, collaborators (JSON), enrollment, start_date, completion_date, primary_completion_date, study_first_posted, last_update_posted, locations_count, has_results, url
- fda_events: id, event_type, ticker, company, drug, indication, event_date, url

Status values: RECRUITING, ACTIVE_NOT_RECRUITING, COMPLETED, NOT_YET_RECRUITING, TERMINATED, WITHDRAWN, SUSPENDED, ENROLLING_BY_INVITATION
Phase values: PHASE1, PHASE2, PHASE3, PHASE4, EARLY_PHASE1, NA (or NULL)

Use this for clinical trial landscape analysis, tracking company pipelines, finding trials by condition/phase/sponsor, and FDA calendar events.`,
			InputSchema: json.RawMessage(sqlQuerySchema),
		},
		Kind:    KindClinicalTrials,
		Handler: sqlHandler(db, domain.SourceMarketData),
	})

	// Schema introspection.
	reg.add(Tool{
		Definition: provider.ToolDef{
			Name: "list_tables",
			Description: `List all tables in a specified database.

Available databases: researchers, patents, grants, policies, portfolio, market_data

Use this to discover what tables are available before writing queries.`,
			InputSchema: json.RawMessage(`{
    "type": "object",
    "properties": {
        "database": {
            "type": "string",
            "enum": ["researchers", "patents", "grants", "policies", "portfolio", "market_data"],
            "description": "Which database to list tables from"
        }
    },
    "required": ["database"]
}`),
		},
		Kind: KindRaw,
		Handler: func(ctx context.Context, input map[string]any, _ *RunState) (any, error) {
			source, err := domain.ParseSource(strArg(input, "database"))
			if err != nil {
				return nil, err
			}
			return db.ListTables(ctx, source)
		},
	})

	reg.add(Tool{
		Definition: provider.ToolDef{
			Name: "describe_table",
			Description: `Get the schema (columns, types) for a specific table.

Use this to understand table structure before writing queries.`,
			InputSchema: json.RawMessage(`{
    "type": "object",
    "properties": {
        "database": {
            "type": "string",
            "enum": ["researchers", "patents", "grants", "policies", "portfolio", "market_data"],
            "description": "Which database the table is in"
        },
        "table_name": {
            "type": "string",
            "description": "Name of the table to describe"
        }
    },
    "required": ["database", "table_name"]
}`),
		},
		Kind: KindRaw,
		Handler: func(ctx context.Context, input map[string]any, _ *RunState) (any, error) {
			source, err := domain.ParseSource(strArg(input, "database"))
			if err != nil {
				return nil, err
			}
			return db.DescribeTable(ctx, source, strArg(input, "table_name"))
		},
	})

	// Utility.
	reg.add(Tool{
		Definition: provider.ToolDef{
			Name: "append_insight",
			Description: `Record a business insight discovered during analysis.

Use this to capture key findings, recommendations, or observations that should be highlighted in the final response.`,
			InputSchema: json.RawMessage(`{
    "type": "object",
    "properties": {
        "insight": {
            "type": "string",
            "description": "The business insight to record"
        }
    },
    "required": ["insight"]
}`),
		},
		Kind: KindRaw,
		Handler: func(_ context.Context, input map[string]any, run *RunState) (any, error) {
			run.Insights = append(run.Insights, strArg(input, "insight"))
			return map[string]any{"status": "insight recorded", "total_insights": len(run.Insights)}, nil
		},
	})

	return reg
}

// sqlHandler builds a raw SQL passthrough handler for one source.
func sqlHandler(db Store, source domain.Source) Handler {
	return func(ctx context.Context, input map[string]any, _ *RunState) (any, error) {
		result, err := db.Execute(ctx, source, strArg(input, "query"))
		if err != nil {
			return nil, err
		}
		return rowset(result), nil
	}
}

// rowset shapes a query result the way the model expects rowsets: columns,
// rows and a count, never null.
func rowset(r *domain.QueryResult) map[string]any {
	columns := r.Columns
	if columns == nil {
		columns = []string{}
	}
	rows := r.Rows
	if rows == nil {
		rows = []map[string]any{}
	}
	return map[string]any{
		"columns":   columns,
		"rows":      rows,
		"row_count": r.RowCount,
	}
}

// Tool inputs arrive as decoded JSON, so numbers are float64. The schemas
// have already validated types; these helpers just coerce.

func strArg(input map[string]any, key string) string {
	s, _ := input[key].(string)
	return s
}

func intArg(input map[string]any, key string) int {
	switch n := input[key].(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return 0
}

func floatArg(input map[string]any, key string) float64 {
	switch n := input[key].(type) {
	case float64:
		return n
	case int:
		return float64(n)
	}
	return 0
}
