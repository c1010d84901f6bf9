// Package sqlclient proxies raw SQL to the upstream data services.
package sqlclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"neoquery/internal/config"
	"neoquery/internal/domain"
	"neoquery/internal/resilience"
	"neoquery/internal/telemetry"
)

const (
	introspectTimeout = 10 * time.Second
	maxInjectedLimit  = 500
	queryAttempts     = 2
)

var defaultAttemptTimeouts = []time.Duration{90 * time.Second, 120 * time.Second}

// Client executes SELECT statements against the upstream /api/sql endpoints.
// Results are cached briefly so repeated tool calls within a run stay cheap.
type Client struct {
	sources *config.SourcesConfig
	http    *http.Client
	cache   *queryCache
	metrics *telemetry.Metrics
	logger  telemetry.Logger
	limit   int

	attemptTimeouts []time.Duration
}

// New builds a Client. httpClient may be shared with other components; nil
// falls back to http.DefaultClient. metrics and logger may be nil.
func New(sources *config.SourcesConfig, httpClient *http.Client, metrics *telemetry.Metrics, logger telemetry.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	limit := sources.QueryLimit
	if limit <= 0 || limit > maxInjectedLimit {
		limit = maxInjectedLimit
	}
	return &Client{
		sources:         sources,
		http:            httpClient,
		cache:           newQueryCache(queryCacheTTL, queryCacheMax),
		metrics:         metrics,
		logger:          logger,
		limit:           limit,
		attemptTimeouts: defaultAttemptTimeouts,
	}
}

// QueryError carries the user-facing message for a failed upstream query.
// Error() is surfaced verbatim in tool results and HTTP responses.
type QueryError struct {
	Source  domain.Source
	Kind    error
	Message string
}

func (e *QueryError) Error() string { return e.Message }
func (e *QueryError) Unwrap() error { return e.Kind }

// Execute runs a SELECT against one source. Statements without a LIMIT get
// one injected before the cache key is computed, so the key always matches
// the SQL actually sent upstream.
func (c *Client) Execute(ctx context.Context, source domain.Source, query string) (*domain.QueryResult, error) {
	src, err := domain.ParseSource(string(source))
	if err != nil {
		return nil, err
	}
	base := c.sources.BaseURL(src)
	if base == "" {
		return nil, &domain.UnknownSourceError{Name: string(source)}
	}

	query = strings.TrimSpace(query)
	if !isSelect(query) {
		return nil, &QueryError{
			Source:  src,
			Kind:    domain.ErrQueryRejected,
			Message: "Only SELECT queries are allowed",
		}
	}

	if !strings.Contains(strings.ToUpper(query), "LIMIT") {
		query = fmt.Sprintf("%s LIMIT %d", strings.TrimRight(query, ";"), c.limit)
	}

	key := cacheKey(string(src), query)
	if cached, ok := c.cache.get(key); ok {
		c.recordCacheLookup(true)
		if result, ok := cached.(*domain.QueryResult); ok {
			return result, nil
		}
	}
	c.recordCacheLookup(false)

	var result domain.QueryResult
	start := time.Now()
	err = resilience.Retry(ctx, resilience.RetryConfig{
		MaxRetries:      queryAttempts - 1,
		AttemptTimeouts: c.attemptTimeouts,
		RetryOnTimeout:  true,
	}, func(attemptCtx context.Context) error {
		return c.postSQL(attemptCtx, base+"/api/sql", query, c.sources.SQLSecret, &result)
	})

	if err != nil {
		c.recordUpstream(src, upstreamStatus(err), time.Since(start))
		return nil, c.classifyQueryError(src, err)
	}

	c.recordUpstream(src, "ok", time.Since(start))
	c.cache.set(key, &result)
	return &result, nil
}

// statusError marks a non-2xx upstream response; never retried.
type statusError struct {
	code   int
	detail string
}

func (e *statusError) Error() string { return e.detail }

func (c *Client) postSQL(ctx context.Context, url, query, secret string, out *domain.QueryResult) error {
	payload := struct {
		Query  string `json:"query"`
		Secret string `json:"secret,omitempty"`
	}{Query: query, Secret: secret}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		return &statusError{code: resp.StatusCode, detail: extractDetail(raw, resp.Status)}
	}

	return json.Unmarshal(raw, out)
}

func (c *Client) classifyQueryError(src domain.Source, err error) error {
	var se *statusError
	if errors.As(err, &se) {
		return &QueryError{
			Source:  src,
			Kind:    domain.ErrQueryRejected,
			Message: fmt.Sprintf("Query error: %s", se.detail),
		}
	}
	if resilience.IsTimeout(err) {
		return &QueryError{
			Source:  src,
			Kind:    domain.ErrQueryTimeout,
			Message: fmt.Sprintf("Query timed out after %d attempts. Try a simpler query with more restrictive WHERE clauses.", queryAttempts),
		}
	}
	return &QueryError{
		Source:  src,
		Kind:    err,
		Message: fmt.Sprintf("Failed to query %s: %v", src, err),
	}
}

// ListTables lists the tables of one source via /api/sql/tables.
func (c *Client) ListTables(ctx context.Context, source domain.Source) ([]domain.TableInfo, error) {
	src, err := domain.ParseSource(string(source))
	if err != nil {
		return nil, err
	}

	var payload struct {
		Tables []string `json:"tables"`
	}
	if err := c.getJSON(ctx, c.sources.BaseURL(src)+"/api/sql/tables", introspectTimeout, &payload); err != nil {
		return nil, fmt.Errorf("Failed to list tables for %s: %v", src, err)
	}

	tables := make([]domain.TableInfo, 0, len(payload.Tables))
	for _, t := range payload.Tables {
		tables = append(tables, domain.TableInfo{Name: t})
	}
	return tables, nil
}

// DescribeTable fetches column metadata for one table via /api/sql/schema.
func (c *Client) DescribeTable(ctx context.Context, source domain.Source, table string) ([]map[string]any, error) {
	src, err := domain.ParseSource(string(source))
	if err != nil {
		return nil, err
	}

	var payload struct {
		Columns []map[string]any `json:"columns"`
	}
	if err := c.getJSON(ctx, c.sources.BaseURL(src)+"/api/sql/schema/"+table, introspectTimeout, &payload); err != nil {
		return nil, fmt.Errorf("Failed to describe %s in %s: %v", table, src, err)
	}
	return payload.Columns, nil
}

// SourceStats describes one upstream database in a stats report.
type SourceStats struct {
	Available bool           `json:"available"`
	URL       string         `json:"url,omitempty"`
	Tables    map[string]any `json:"tables,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// DatabaseStats reports availability and per-table row counts for every SQL
// source. Sources are probed concurrently; a source that cannot list its
// tables reports available=false instead of failing the whole call.
func (c *Client) DatabaseStats(ctx context.Context) map[string]SourceStats {
	stats := make(map[string]SourceStats, len(domain.SQLSources()))

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, src := range domain.SQLSources() {
		wg.Add(1)
		go func(src domain.Source) {
			defer wg.Done()

			tables, err := c.ListTables(ctx, src)
			if err != nil {
				mu.Lock()
				stats[string(src)] = SourceStats{Available: false, Error: err.Error()}
				mu.Unlock()
				return
			}

			counts := make(map[string]any, len(tables))
			for _, t := range tables {
				result, err := c.Execute(ctx, src, fmt.Sprintf("SELECT COUNT(*) as cnt FROM %s", t.Name))
				if err != nil || len(result.Rows) == 0 {
					counts[t.Name] = "error"
					continue
				}
				counts[t.Name] = result.Rows[0]["cnt"]
			}

			mu.Lock()
			stats[string(src)] = SourceStats{
				Available: true,
				URL:       c.sources.BaseURL(src),
				Tables:    counts,
			}
			mu.Unlock()
		}(src)
	}
	wg.Wait()

	return stats
}

// ClearCache drops every cached query result.
func (c *Client) ClearCache() { c.cache.clear() }

// CacheStats reports query cache occupancy and limits.
func (c *Client) CacheStats() map[string]any { return c.cache.stats() }

func (c *Client) getJSON(ctx context.Context, url string, timeout time.Duration, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		return &statusError{code: resp.StatusCode, detail: extractDetail(raw, resp.Status)}
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) recordUpstream(src domain.Source, status string, d time.Duration) {
	if c.metrics != nil {
		c.metrics.RecordUpstream(string(src), status, d)
	}
}

func (c *Client) recordCacheLookup(hit bool) {
	if c.metrics != nil {
		c.metrics.RecordCacheLookup("query", hit)
	}
}

func isSelect(query string) bool {
	fields := strings.Fields(query)
	return len(fields) > 0 && strings.EqualFold(fields[0], "SELECT")
}

func upstreamStatus(err error) string {
	if resilience.IsTimeout(err) {
		return "timeout"
	}
	return "error"
}

func extractDetail(body []byte, fallback string) string {
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Detail != "" {
		return payload.Detail
	}
	if len(body) > 0 {
		return strings.TrimSpace(string(body))
	}
	return fallback
}

