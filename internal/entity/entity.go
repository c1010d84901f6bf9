// Package entity turns heterogeneous query result rows into uniform,
// linkable entity records for the UI.
package entity

import (
	"fmt"
	"math"
	"strconv"

	"github.com/dustin/go-humanize"

	"neoquery/internal/domain"
)

// Detail page bases per source. Trials link out to ClinicalTrials.gov since
// they have no local detail page.
const (
	researchersBase = "https://kdttalentscout.up.railway.app/researcher"
	patentsBase     = "https://patentwarrior.up.railway.app/patent"
	grantsBase      = "https://grants-tracker-production.up.railway.app/grant"
	policiesBase    = "https://policywatch.up.railway.app/bill"
	portfolioBase   = "https://web-production-a9d068.up.railway.app/company"
	trialsBase      = "https://clinicaltrials.gov/study"
)

// maxRows bounds extraction per result set; links beyond the first ten rows
// add noise without adding recall.
const maxRows = 10

// FromRows extracts entity records from the first rows of a result set.
// Sources without detail pages return nil.
func FromRows(source domain.Source, rows []map[string]any) []domain.Entity {
	var entities []domain.Entity

	for i, row := range rows {
		if i >= maxRows {
			break
		}

		var e *domain.Entity
		switch source {
		case domain.SourceResearchers:
			e = researcherEntity(row)
		case domain.SourcePatents:
			e = titledEntity(row, domain.EntityPatent, patentsBase, "patent_id", "Untitled Patent", metaString(row["patent_number"]))
		case domain.SourceGrants:
			e = titledEntity(row, domain.EntityGrant, grantsBase, "grant_id", "Untitled Grant", grantMeta(row))
		case domain.SourcePolicies:
			e = titledEntity(row, domain.EntityPolicy, policiesBase, "bill_id", "Untitled Bill", metaString(row["status"]))
		case domain.SourcePortfolio:
			e = companyEntity(row)
		case domain.SourceMarketData:
			e = trialEntity(row)
		}
		if e != nil {
			entities = append(entities, *e)
		}
	}

	return entities
}

// DetailURL builds the detail page URL for an id in the given source.
// Sources without detail pages return "".
func DetailURL(source domain.Source, id string) string {
	switch source {
	case domain.SourceResearchers:
		return researchersBase + "/" + id
	case domain.SourcePatents:
		return patentsBase + "/" + id
	case domain.SourceGrants:
		return grantsBase + "/" + id
	case domain.SourcePolicies:
		return policiesBase + "/" + id
	case domain.SourcePortfolio:
		return portfolioBase + "/" + id
	case domain.SourceMarketData:
		return trialsBase + "/" + id
	}
	return ""
}

// Dedupe keeps the first occurrence of each (type, id) pair, preserving
// order.
func Dedupe(entities []domain.Entity) []domain.Entity {
	type key struct{ entityType, id string }
	seen := make(map[key]bool, len(entities))
	unique := make([]domain.Entity, 0, len(entities))

	for _, e := range entities {
		k := key{e.Type, e.ID}
		if seen[k] {
			continue
		}
		seen[k] = true
		unique = append(unique, e)
	}
	return unique
}

func researcherEntity(row map[string]any) *domain.Entity {
	id := idString(row["id"])
	name := metaString(row["name"])
	if id == "" || name == "" {
		return nil
	}

	hIndex := "?"
	if row["h_index"] != nil {
		hIndex = fmt.Sprintf("%v", row["h_index"])
	}
	return &domain.Entity{
		Type:        domain.EntityResearcher,
		ID:          id,
		DisplayName: name,
		URL:         researchersBase + "/" + id,
		Meta:        "h-index: " + hIndex,
	}
}

func titledEntity(row map[string]any, entityType, base, idFallback, untitled, meta string) *domain.Entity {
	id := idString(row["id"])
	if id == "" {
		id = idString(row[idFallback])
	}
	if id == "" {
		return nil
	}

	title := metaString(row["title"])
	if title == "" {
		title = untitled
	}
	return &domain.Entity{
		Type:        entityType,
		ID:          id,
		DisplayName: ellipsize(title, 60),
		URL:         base + "/" + id,
		Meta:        meta,
	}
}

func companyEntity(row map[string]any) *domain.Entity {
	id := idString(row["id"])
	if id == "" {
		id = idString(row["company_id"])
	}
	if id == "" {
		return nil
	}

	name := metaString(row["name"])
	if name == "" {
		name = "Unknown Company"
	}
	return &domain.Entity{
		Type:        domain.EntityCompany,
		ID:          id,
		DisplayName: name,
		URL:         portfolioBase + "/" + id,
		Meta:        metaString(row["modality"]),
	}
}

func trialEntity(row map[string]any) *domain.Entity {
	nctID := idString(row["nct_id"])
	if nctID == "" {
		return nil
	}

	title := metaString(row["title"])
	if title == "" {
		title = "Untitled Trial"
	}
	return &domain.Entity{
		Type:        domain.EntityClinicalTrial,
		ID:          nctID,
		DisplayName: ellipsize(title, 50),
		URL:         trialsBase + "/" + nctID,
		Meta:        fmt.Sprintf("%s | %s", metaString(row["status"]), metaString(row["phase"])),
	}
}

func grantMeta(row map[string]any) string {
	switch cost := row["total_cost"].(type) {
	case float64:
		if cost != 0 {
			return "$" + humanize.Comma(int64(math.Round(cost)))
		}
	case int:
		if cost != 0 {
			return "$" + humanize.Comma(int64(cost))
		}
	}
	return ""
}

func ellipsize(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

// idString renders an id column value; upstream ids arrive as strings or
// JSON numbers depending on the source schema.
func idString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		if id == math.Trunc(id) {
			return strconv.FormatInt(int64(id), 10)
		}
		return strconv.FormatFloat(id, 'f', -1, 64)
	case int:
		return strconv.Itoa(id)
	case int64:
		return strconv.FormatInt(id, 10)
	}
	return ""
}

func metaString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
