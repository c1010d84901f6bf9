package embedding

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"neoquery/internal/config"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"collapses whitespace", "  How   Many\tPatents? ", "how many patents?"},
		{"folds fullwidth characters", "Ｐｆｉｚｅｒ patents", "pfizer patents"},
		{"expands ligatures", "recent ﬁlings", "recent filings"},
		{"empty input", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestQuestionID(t *testing.T) {
	t.Run("matches the md5 of the lowercased question", func(t *testing.T) {
		got := QuestionID("How many patents does Pfizer have?")
		if got != "e074529a00857549e8aa96463d658d92" {
			t.Errorf("QuestionID = %q, want e074529a00857549e8aa96463d658d92", got)
		}
	})

	t.Run("ignores case and surrounding whitespace", func(t *testing.T) {
		a := QuestionID("  How many patents?  ")
		b := QuestionID("how many patents?")
		if a != b {
			t.Errorf("IDs differ: %q vs %q", a, b)
		}
	})

	t.Run("differs for different questions", func(t *testing.T) {
		if QuestionID("how many patents?") == QuestionID("how many grants?") {
			t.Error("distinct questions produced the same ID")
		}
	})
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical vectors", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"opposite vectors", []float32{1, 0}, []float32{-1, 0}, -1},
		{"orthogonal vectors", []float32{1, 0}, []float32{0, 1}, 0},
		{"mismatched widths", []float32{1, 2}, []float32{1, 2, 3}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 2}, 0},
		{"empty vectors", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Cosine(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("Cosine = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLocalEmbedder(t *testing.T) {
	ctx := context.Background()
	emb := NewLocalEmbedder()

	t.Run("produces unit vectors of the declared width", func(t *testing.T) {
		vec, err := emb.Embed(ctx, "how many patents does pfizer have")
		if err != nil {
			t.Fatalf("Embed: %v", err)
		}
		if len(vec) != emb.Dimensions() || len(vec) != LocalDimensions {
			t.Fatalf("got %d dimensions, want %d", len(vec), LocalDimensions)
		}
		var sum float64
		for _, v := range vec {
			sum += float64(v) * float64(v)
		}
		if math.Abs(sum-1) > 1e-3 {
			t.Errorf("squared norm = %v, want 1", sum)
		}
	})

	t.Run("is deterministic across calls", func(t *testing.T) {
		a, _ := emb.Embed(ctx, "top researchers in oncology")
		b, _ := emb.Embed(ctx, "top researchers in oncology")
		for i := range a {
			if a[i] != b[i] {
				t.Fatalf("vectors differ at index %d: %v vs %v", i, a[i], b[i])
			}
		}
		if sim := Cosine(a, b); sim < 0.9999 {
			t.Errorf("self similarity = %v, want 1", sim)
		}
	})

	t.Run("normalization does not change the vector", func(t *testing.T) {
		a, _ := emb.Embed(ctx, "How many PATENTS does Pfizer have?")
		b, _ := emb.Embed(ctx, "  how many patents  does pfizer have? ")
		if sim := Cosine(a, b); sim < 0.9999 {
			t.Errorf("similarity across spacing and case = %v, want 1", sim)
		}
	})

	t.Run("ranks rephrasings above unrelated questions", func(t *testing.T) {
		base, _ := emb.Embed(ctx, "how many patents does pfizer have")
		near, _ := emb.Embed(ctx, "how many patents does pfizer have today")
		far, _ := emb.Embed(ctx, "list recruiting clinical trials in oncology")

		simClose := Cosine(base, near)
		simFar := Cosine(base, far)
		if simClose <= simFar {
			t.Errorf("rephrasing scored %v, unrelated scored %v", simClose, simFar)
		}
		if simClose < 0.5 {
			t.Errorf("rephrasing similarity = %v, want well above 0.5", simClose)
		}
	})

	t.Run("rephrased questions clear the calibrated default threshold", func(t *testing.T) {
		a, _ := emb.Embed(ctx, Normalize("For Epana, which researchers should we talk to?"))
		b, _ := emb.Embed(ctx, Normalize("For Epana, who are the key researchers to contact?"))

		sim := Cosine(a, b)
		if want := emb.CalibrateThreshold(0.80); sim < want {
			t.Errorf("paraphrase similarity = %v, below calibrated threshold %v", sim, want)
		}
	})

	t.Run("stopword-only differences embed identically", func(t *testing.T) {
		a, _ := emb.Embed(ctx, "patents held by pfizer")
		b, _ := emb.Embed(ctx, "the patents held by pfizer")
		if sim := Cosine(a, b); sim < 0.9999 {
			t.Errorf("similarity = %v, want 1", sim)
		}
	})

	t.Run("empty text embeds to a zero vector", func(t *testing.T) {
		vec, err := emb.Embed(ctx, "   ")
		if err != nil {
			t.Fatalf("Embed: %v", err)
		}
		if sim := Cosine(vec, vec); sim != 0 {
			t.Errorf("zero vector self similarity = %v, want 0", sim)
		}
	})
}

func TestCalibrateThreshold(t *testing.T) {
	emb := NewLocalEmbedder()

	t.Run("stretches the miss margin below a perfect match", func(t *testing.T) {
		if got := emb.CalibrateThreshold(0.80); math.Abs(got-0.60) > 1e-9 {
			t.Errorf("CalibrateThreshold(0.80) = %v, want 0.6", got)
		}
		if got := emb.CalibrateThreshold(1); got != 1 {
			t.Errorf("CalibrateThreshold(1) = %v, want 1", got)
		}
	})

	t.Run("never drops below the floor", func(t *testing.T) {
		if got := emb.CalibrateThreshold(0.2); got != lexicalFloor {
			t.Errorf("CalibrateThreshold(0.2) = %v, want %v", got, lexicalFloor)
		}
	})

	t.Run("lazy wrapper forwards calibration", func(t *testing.T) {
		lazy := NewLazy(config.EmbedderConfig{Type: "local"})
		if got := lazy.CalibrateThreshold(0.80); math.Abs(got-0.60) > 1e-9 {
			t.Errorf("lazy CalibrateThreshold(0.80) = %v, want 0.6", got)
		}
	})

	t.Run("http embedders keep the configured threshold", func(t *testing.T) {
		lazy := NewLazy(config.EmbedderConfig{Type: "openai", APIKey: "k"})
		if got := lazy.CalibrateThreshold(0.80); got != 0.80 {
			t.Errorf("CalibrateThreshold(0.80) = %v, want 0.80", got)
		}
	})
}

func TestOpenAIEmbedder(t *testing.T) {
	ctx := context.Background()

	t.Run("sends model, input and bearer auth", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost || r.URL.Path != "/embeddings" {
				t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			}
			if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
				t.Errorf("Authorization = %q", auth)
			}
			var req map[string]any
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Fatalf("decode request: %v", err)
			}
			if req["model"] != "text-embedding-3-small" || req["input"] != "hello world" {
				t.Errorf("request body = %v", req)
			}
			json.NewEncoder(w).Encode(map[string]any{
				"data": []map[string]any{{"embedding": []float32{0.1, 0.2, 0.3}}},
			})
		}))
		defer srv.Close()

		emb := NewOpenAIEmbedder("test-key", srv.URL, "")
		vec, err := emb.Embed(ctx, "hello world")
		if err != nil {
			t.Fatalf("Embed: %v", err)
		}
		if len(vec) != 3 || vec[1] != 0.2 {
			t.Errorf("vec = %v", vec)
		}
	})

	t.Run("missing API key fails before any request", func(t *testing.T) {
		emb := NewOpenAIEmbedder("", "http://127.0.0.1:1", "")
		if _, err := emb.Embed(ctx, "hello"); err == nil || !strings.Contains(err.Error(), "not configured") {
			t.Errorf("err = %v, want not configured", err)
		}
	})

	t.Run("non-200 response surfaces the API error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error": "rate limited"}`, http.StatusTooManyRequests)
		}))
		defer srv.Close()

		emb := NewOpenAIEmbedder("test-key", srv.URL, "")
		if _, err := emb.Embed(ctx, "hello"); err == nil || !strings.Contains(err.Error(), "API error") {
			t.Errorf("err = %v, want API error", err)
		}
	})

	t.Run("empty data is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
		}))
		defer srv.Close()

		emb := NewOpenAIEmbedder("test-key", srv.URL, "")
		if _, err := emb.Embed(ctx, "hello"); err == nil || !strings.Contains(err.Error(), "empty embedding") {
			t.Errorf("err = %v, want empty embedding", err)
		}
	})
}

func TestOllamaEmbedder(t *testing.T) {
	ctx := context.Background()

	t.Run("sends model and prompt", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/embeddings" {
				t.Errorf("path = %s", r.URL.Path)
			}
			var req map[string]any
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Fatalf("decode request: %v", err)
			}
			if req["model"] != "all-minilm" || req["prompt"] != "hello" {
				t.Errorf("request body = %v", req)
			}
			json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{1, 2, 3}})
		}))
		defer srv.Close()

		emb := NewOllamaEmbedder(srv.URL, "all-minilm")
		vec, err := emb.Embed(ctx, "hello")
		if err != nil {
			t.Fatalf("Embed: %v", err)
		}
		if len(vec) != 3 || vec[0] != 1 {
			t.Errorf("vec = %v", vec)
		}
	})

	t.Run("non-200 response surfaces the API error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not found", http.StatusNotFound)
		}))
		defer srv.Close()

		emb := NewOllamaEmbedder(srv.URL, "all-minilm")
		if _, err := emb.Embed(ctx, "hello"); err == nil || !strings.Contains(err.Error(), "API error") {
			t.Errorf("err = %v, want API error", err)
		}
	})
}

func TestNew(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.EmbedderConfig
		want string
	}{
		{"defaults to local", config.EmbedderConfig{}, "*embedding.LocalEmbedder"},
		{"local", config.EmbedderConfig{Type: "local"}, "*embedding.LocalEmbedder"},
		{"openai", config.EmbedderConfig{Type: "openai", APIKey: "k"}, "*embedding.OpenAIEmbedder"},
		{"ollama", config.EmbedderConfig{Type: "ollama"}, "*embedding.OllamaEmbedder"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emb, err := New(tt.cfg)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			switch tt.want {
			case "*embedding.LocalEmbedder":
				if _, ok := emb.(*LocalEmbedder); !ok {
					t.Errorf("got %T", emb)
				}
			case "*embedding.OpenAIEmbedder":
				if _, ok := emb.(*OpenAIEmbedder); !ok {
					t.Errorf("got %T", emb)
				}
			case "*embedding.OllamaEmbedder":
				if _, ok := emb.(*OllamaEmbedder); !ok {
					t.Errorf("got %T", emb)
				}
			}
		})
	}

	t.Run("unknown type is an error", func(t *testing.T) {
		if _, err := New(config.EmbedderConfig{Type: "chroma"}); err == nil {
			t.Error("expected error for unknown embedder type")
		}
	})
}

func TestLazy(t *testing.T) {
	ctx := context.Background()

	t.Run("builds once and embeds", func(t *testing.T) {
		lazy := NewLazy(config.EmbedderConfig{Type: "local"})
		if got := lazy.Dimensions(); got != LocalDimensions {
			t.Errorf("Dimensions = %d, want %d", got, LocalDimensions)
		}
		a, err := lazy.Embed(ctx, "hidden gems in immunology")
		if err != nil {
			t.Fatalf("Embed: %v", err)
		}
		b, _ := lazy.Embed(ctx, "hidden gems in immunology")
		if Cosine(a, b) < 0.9999 {
			t.Error("lazy embedder not stable across calls")
		}
	})

	t.Run("construction failure surfaces on use", func(t *testing.T) {
		lazy := NewLazy(config.EmbedderConfig{Type: "bogus"})
		if _, err := lazy.Embed(ctx, "anything"); err == nil {
			t.Error("expected construction error")
		}
		if got := lazy.Dimensions(); got != 0 {
			t.Errorf("Dimensions after failure = %d, want 0", got)
		}
	})
}
