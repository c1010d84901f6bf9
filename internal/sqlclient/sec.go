package sqlclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"neoquery/internal/domain"
)

const (
	secTimeout       = 30 * time.Second
	secRecentTimeout = 15 * time.Second
)

// FilingsParams filters an SEC filings lookup. Zero Days means the default
// 30-day window.
type FilingsParams struct {
	Ticker       string
	FormType     string
	Days         int
	RunwayStatus string
}

// RunwayParams filters a cash runway lookup.
type RunwayParams struct {
	MaxMonths float64
	MinMonths float64
	Limit     int
}

// InsiderParams filters an insider transaction lookup. Zero Days means the
// default 90-day window.
type InsiderParams struct {
	Ticker          string
	InsiderRole     string
	TransactionType string
	Days            int
	MinValue        float64
}

// SECFilings fetches recent filings from the SEC service. Failures come back
// inside the result rather than as an error so tool output keeps its shape.
func (c *Client) SECFilings(ctx context.Context, p FilingsParams) map[string]any {
	if p.Days == 0 {
		p.Days = 30
	}
	params := map[string]any{"days": p.Days}
	if p.Ticker != "" {
		params["ticker"] = p.Ticker
	}
	if p.FormType != "" {
		params["form_type"] = p.FormType
	}
	if p.RunwayStatus != "" {
		params["runway_status"] = p.RunwayStatus
	}

	return c.secSemantic(ctx, "filings", params, map[string]any{"filings": []any{}, "count": 0})
}

// RunwayCompanies lists companies by months of cash runway remaining.
func (c *Client) RunwayCompanies(ctx context.Context, p RunwayParams) map[string]any {
	if p.Limit == 0 {
		p.Limit = 50
	}
	params := map[string]any{"min_months": p.MinMonths, "limit": p.Limit}
	if p.MaxMonths > 0 {
		params["max_months"] = p.MaxMonths
	}

	return c.secSemantic(ctx, "runway", params, map[string]any{"companies": []any{}, "count": 0})
}

// InsiderTransactions fetches insider buy/sell activity.
func (c *Client) InsiderTransactions(ctx context.Context, p InsiderParams) map[string]any {
	if p.Days == 0 {
		p.Days = 90
	}
	params := map[string]any{"days": p.Days}
	if p.Ticker != "" {
		params["ticker"] = p.Ticker
	}
	if p.InsiderRole != "" {
		params["insider_role"] = p.InsiderRole
	}
	if p.TransactionType != "" {
		params["transaction_type"] = p.TransactionType
	}
	if p.MinValue > 0 {
		params["min_value"] = p.MinValue
	}

	return c.secSemantic(ctx, "insider", params, map[string]any{"transactions": []any{}, "count": 0})
}

// RunwayAlerts fetches the pre-computed distress alert summary.
func (c *Client) RunwayAlerts(ctx context.Context) map[string]any {
	key := cacheKey("sec", "runway_alerts")
	if cached, ok := c.cache.get(key); ok {
		c.recordCacheLookup(true)
		if result, ok := cached.(map[string]any); ok {
			return result
		}
	}
	c.recordCacheLookup(false)

	result, err := c.secGet(ctx, "/api/semantic/alerts", nil, secTimeout)
	if err != nil {
		return map[string]any{
			"error":                 err.Error(),
			"critical_runway":       []any{},
			"recent_s3_filings":     []any{},
			"insider_sells_at_risk": []any{},
		}
	}
	c.cache.set(key, result)
	return result
}

func (c *Client) secSemantic(ctx context.Context, endpoint string, params map[string]any, empty map[string]any) map[string]any {
	sorted, _ := json.Marshal(params)
	key := cacheKey("sec", fmt.Sprintf("%s:%s", endpoint, sorted))
	if cached, ok := c.cache.get(key); ok {
		c.recordCacheLookup(true)
		if result, ok := cached.(map[string]any); ok {
			return result
		}
	}
	c.recordCacheLookup(false)

	result, err := c.secGet(ctx, "/api/semantic/"+endpoint, params, secTimeout)
	if err != nil {
		failure := map[string]any{"error": err.Error()}
		for k, v := range empty {
			failure[k] = v
		}
		return failure
	}
	c.cache.set(key, result)
	return result
}

func (c *Client) secGet(ctx context.Context, path string, params map[string]any, timeout time.Duration) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	target := c.sources.SECSentinelURL + path
	if len(params) > 0 {
		values := url.Values{}
		for k, v := range params {
			values.Set(k, paramString(v))
		}
		target += "?" + values.Encode()
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.recordUpstream(domain.SourceSECSentinel, upstreamStatus(err), time.Since(start))
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		c.recordUpstream(domain.SourceSECSentinel, "error", time.Since(start))
		return nil, fmt.Errorf("SEC service returned %s", resp.Status)
	}

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		c.recordUpstream(domain.SourceSECSentinel, "error", time.Since(start))
		return nil, err
	}
	c.recordUpstream(domain.SourceSECSentinel, "ok", time.Since(start))
	return result, nil
}

// RecentFilings lists raw filings from the SEC service filing feed. Used by
// the cross-database recent changes summary.
func (c *Client) RecentFilings(ctx context.Context, days, limit int) ([]map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, secRecentTimeout)
	defer cancel()

	values := url.Values{}
	values.Set("days", strconv.Itoa(days))
	values.Set("limit", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.sources.SECSentinelURL+"/api/filings?"+values.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("SEC service returned %s", resp.Status)
	}

	var filings []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&filings); err != nil {
		return nil, err
	}
	return filings, nil
}

// FilingStats fetches aggregate filing counts. Missing stats are not fatal
// to callers, so errors surface as an empty map plus the error.
func (c *Client) FilingStats(ctx context.Context) (map[string]any, error) {
	var stats map[string]any
	if err := c.getJSON(ctx, c.sources.SECSentinelURL+"/api/stats", secRecentTimeout, &stats); err != nil {
		return map[string]any{}, err
	}
	return stats, nil
}

// ExecuteSECSQL runs a read-only statement against the SEC service's own SQL
// endpoint. The SEC service is not part of the standard source set, so this
// bypasses the per-source routing in Execute.
func (c *Client) ExecuteSECSQL(ctx context.Context, query string) (*domain.QueryResult, error) {
	ctx, cancel := context.WithTimeout(ctx, introspectTimeout)
	defer cancel()

	var result domain.QueryResult
	if err := c.postSQL(ctx, c.sources.SECSentinelURL+"/api/sql", query, "", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func paramString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", val)
	}
}
