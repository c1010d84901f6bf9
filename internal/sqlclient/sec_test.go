package sqlclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestSECFilings(t *testing.T) {
	t.Run("applies default window", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/semantic/filings" {
				t.Errorf("path = %s", r.URL.Path)
			}
			if got := r.URL.Query().Get("days"); got != "30" {
				t.Errorf("days = %q, want 30", got)
			}
			json.NewEncoder(w).Encode(map[string]any{"filings": []any{}, "count": 0})
		}))
		defer srv.Close()

		client := New(testSources(srv.URL), srv.Client(), nil, nil)
		result := client.SECFilings(context.Background(), FilingsParams{})
		if _, hasErr := result["error"]; hasErr {
			t.Errorf("unexpected error: %v", result["error"])
		}
	})

	t.Run("forwards filters", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			if q.Get("ticker") != "SAVA" || q.Get("form_type") != "S-3" || q.Get("runway_status") != "critical" {
				t.Errorf("query = %v", q)
			}
			json.NewEncoder(w).Encode(map[string]any{"filings": []any{}, "count": 0})
		}))
		defer srv.Close()

		client := New(testSources(srv.URL), srv.Client(), nil, nil)
		client.SECFilings(context.Background(), FilingsParams{Ticker: "SAVA", FormType: "S-3", RunwayStatus: "critical"})
	})

	t.Run("failure keeps result shape", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "down", http.StatusBadGateway)
		}))
		defer srv.Close()

		client := New(testSources(srv.URL), srv.Client(), nil, nil)
		result := client.SECFilings(context.Background(), FilingsParams{})

		if msg, ok := result["error"].(string); !ok || msg == "" {
			t.Errorf("error = %v", result["error"])
		}
		if filings, ok := result["filings"].([]any); !ok || len(filings) != 0 {
			t.Errorf("filings = %v", result["filings"])
		}
		if result["count"] != 0 {
			t.Errorf("count = %v", result["count"])
		}
	})

	t.Run("caches by parameter set", func(t *testing.T) {
		var hits int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&hits, 1)
			json.NewEncoder(w).Encode(map[string]any{"filings": []any{}, "count": 0})
		}))
		defer srv.Close()

		client := New(testSources(srv.URL), srv.Client(), nil, nil)
		client.SECFilings(context.Background(), FilingsParams{Ticker: "VRTX"})
		client.SECFilings(context.Background(), FilingsParams{Ticker: "VRTX"})
		client.SECFilings(context.Background(), FilingsParams{Ticker: "SAVA"})

		if atomic.LoadInt32(&hits) != 2 {
			t.Errorf("upstream hits = %d, want 2", hits)
		}
	})
}

func TestRunwayCompaniesDefaults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("min_months") != "0" || q.Get("limit") != "50" {
			t.Errorf("query = %v", q)
		}
		if q.Has("max_months") {
			t.Error("max_months sent without a value")
		}
		json.NewEncoder(w).Encode(map[string]any{"companies": []any{}, "count": 0})
	}))
	defer srv.Close()

	client := New(testSources(srv.URL), srv.Client(), nil, nil)
	result := client.RunwayCompanies(context.Background(), RunwayParams{})
	if _, hasErr := result["error"]; hasErr {
		t.Errorf("unexpected error: %v", result["error"])
	}
}

func TestInsiderTransactionsDefaults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("days"); got != "90" {
			t.Errorf("days = %q, want 90", got)
		}
		json.NewEncoder(w).Encode(map[string]any{"transactions": []any{}, "count": 0})
	}))
	defer srv.Close()

	client := New(testSources(srv.URL), srv.Client(), nil, nil)
	result := client.InsiderTransactions(context.Background(), InsiderParams{})
	if _, hasErr := result["error"]; hasErr {
		t.Errorf("unexpected error: %v", result["error"])
	}
}

func TestRunwayAlertsFailureShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := New(testSources(srv.URL), srv.Client(), nil, nil)
	result := client.RunwayAlerts(context.Background())

	for _, key := range []string{"critical_runway", "recent_s3_filings", "insider_sells_at_risk"} {
		if list, ok := result[key].([]any); !ok || len(list) != 0 {
			t.Errorf("%s = %v", key, result[key])
		}
	}
	if msg, ok := result["error"].(string); !ok || msg == "" {
		t.Errorf("error = %v", result["error"])
	}
}

func TestRecentFilings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/filings" {
			t.Errorf("path = %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("days") != "7" || q.Get("limit") != "5" {
			t.Errorf("query = %v", q)
		}
		json.NewEncoder(w).Encode([]map[string]any{
			{"ticker": "SAVA", "form_type": "10-K"},
		})
	}))
	defer srv.Close()

	client := New(testSources(srv.URL), srv.Client(), nil, nil)
	filings, err := client.RecentFilings(context.Background(), 7, 5)
	if err != nil {
		t.Fatalf("RecentFilings: %v", err)
	}
	if len(filings) != 1 || filings[0]["ticker"] != "SAVA" {
		t.Errorf("filings = %v", filings)
	}
}

func TestExecuteSECSQL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/sql" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if _, hasSecret := body["secret"]; hasSecret {
			t.Error("secret sent to SEC sql endpoint")
		}
		json.NewEncoder(w).Encode(queryResult(map[string]any{"table_name": "filings"}))
	}))
	defer srv.Close()

	client := New(testSources(srv.URL), srv.Client(), nil, nil)
	result, err := client.ExecuteSECSQL(context.Background(), "SELECT table_name FROM _schema_docs")
	if err != nil {
		t.Fatalf("ExecuteSECSQL: %v", err)
	}
	if result.Rows[0]["table_name"] != "filings" {
		t.Errorf("rows = %v", result.Rows)
	}
}
