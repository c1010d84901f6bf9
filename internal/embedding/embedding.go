// Package embedding turns question text into fixed-width vectors for
// semantic similarity matching. Three embedders are available: a
// deterministic local hasher that needs no network, an OpenAI-compatible
// HTTP client, and an Ollama HTTP client. The response cache and the
// document index both consume the Embedder interface.
package embedding

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"

	"neoquery/internal/config"
)

// Embedder produces a vector representation of a piece of text.
type Embedder interface {
	// Embed returns the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// Dimensions reports the vector width this embedder produces.
	Dimensions() int
}

// ThresholdCalibrator is implemented by embedders whose similarity scale
// differs from dense sentence-embedding models. The response cache hands
// it the configured threshold and matches against the returned one.
type ThresholdCalibrator interface {
	CalibrateThreshold(threshold float64) float64
}

// New builds an embedder from configuration.
func New(cfg config.EmbedderConfig) (Embedder, error) {
	switch cfg.Type {
	case "", "local":
		return NewLocalEmbedder(), nil
	case "openai":
		return NewOpenAIEmbedder(cfg.APIKey, cfg.BaseURL, cfg.Model), nil
	case "ollama":
		return NewOllamaEmbedder(cfg.BaseURL, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unknown embedder type %q", cfg.Type)
	}
}

// Lazy defers embedder construction to first use. Most requests are
// answered by the router or the agent without ever touching an embedder,
// so the HTTP client behind it is only built when a cache lookup or a
// document search actually needs one.
type Lazy struct {
	once  sync.Once
	build func() (Embedder, error)
	emb   Embedder
	err   error
}

// NewLazy wraps a config-driven embedder so it is constructed on first use.
func NewLazy(cfg config.EmbedderConfig) *Lazy {
	return &Lazy{build: func() (Embedder, error) { return New(cfg) }}
}

func (l *Lazy) init() {
	l.once.Do(func() { l.emb, l.err = l.build() })
}

// Embed builds the underlying embedder if needed and delegates to it.
func (l *Lazy) Embed(ctx context.Context, text string) ([]float32, error) {
	l.init()
	if l.err != nil {
		return nil, l.err
	}
	return l.emb.Embed(ctx, text)
}

// Dimensions reports the underlying embedder's vector width, or 0 when
// construction failed.
func (l *Lazy) Dimensions() int {
	l.init()
	if l.err != nil {
		return 0
	}
	return l.emb.Dimensions()
}

// CalibrateThreshold defers to the underlying embedder; embedders without
// a scale of their own keep the configured threshold.
func (l *Lazy) CalibrateThreshold(threshold float64) float64 {
	l.init()
	if l.err != nil {
		return threshold
	}
	if c, ok := l.emb.(ThresholdCalibrator); ok {
		return c.CalibrateThreshold(threshold)
	}
	return threshold
}

// Normalize canonicalizes text before embedding: NFKC fold, lowercase,
// and runs of whitespace collapsed to single spaces. Two questions that
// differ only in casing or spacing embed identically.
func Normalize(text string) string {
	folded := norm.NFKC.String(text)
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// QuestionID derives the stable cache identity for a question. Leading
// and trailing whitespace and letter case do not change the ID.
func QuestionID(question string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(question))))
	return hex.EncodeToString(sum[:])
}

// Cosine returns the cosine similarity of two vectors. Mismatched widths
// and zero vectors score 0, so entries embedded by a different model
// never match.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
