package response

import (
	"context"
	"math"
	"time"

	"neoquery/internal/config"
	"neoquery/internal/domain"
	"neoquery/internal/embedding"
	"neoquery/internal/telemetry"
)

const (
	maxAnswerBytes = 10000
	maxToolCalls   = 20
	maxInsights    = 10

	// lookupCandidates bounds how many recent entries an in-process scan
	// compares against the query vector.
	lookupCandidates = 100
)

// Hit is a cached answer for a question close to one answered before.
type Hit struct {
	Answer           string
	ToolCalls        []domain.ToolCall
	Insights         []string
	Entities         []domain.Entity
	Similarity       float64
	OriginalQuestion string
}

// Service answers questions from previously stored analyses when the new
// question embeds close enough to an old one. Every failure inside the
// cache is logged and surfaces as a miss; the cache must never break the
// main request flow.
type Service struct {
	repo          Repository
	embedder      embedding.Embedder
	enabled       bool
	ttl           time.Duration
	threshold     float64 // configured value, reported by Stats
	minSimilarity float64 // threshold on the embedder's own similarity scale
	maxEntries    int
	metrics       *telemetry.Metrics
	logger        telemetry.Logger
}

// NewService wires the response cache around a repository and an embedder.
// Embedders that score on a different scale than dense models translate
// the configured threshold through their ThresholdCalibrator.
func NewService(cfg config.CacheConfig, repo Repository, embedder embedding.Embedder, metrics *telemetry.Metrics, logger telemetry.Logger) *Service {
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	minSimilarity := cfg.Threshold
	if c, ok := embedder.(embedding.ThresholdCalibrator); ok {
		minSimilarity = c.CalibrateThreshold(cfg.Threshold)
	}
	return &Service{
		repo:          repo,
		embedder:      embedder,
		enabled:       cfg.Enabled,
		ttl:           cfg.CacheTTL(),
		threshold:     cfg.Threshold,
		minSimilarity: minSimilarity,
		maxEntries:    cfg.MaxEntries,
		metrics:       metrics,
		logger:        logger,
	}
}

// Lookup returns a cached answer for a question similar to one answered
// before, or nil on a miss. Exact repeats are served without touching the
// embedder. An expired match is deleted and reported as a miss.
func (s *Service) Lookup(ctx context.Context, question string) *Hit {
	if s == nil || !s.enabled {
		return nil
	}

	if entry, err := s.repo.GetByID(ctx, embedding.QuestionID(question)); err != nil {
		s.logger.Warn("cache id lookup failed", "error", err)
	} else if entry != nil {
		if s.expired(entry.CachedAt) {
			s.evict(ctx, entry.ID)
			return s.miss()
		}
		return s.hit(entry, 1.0)
	}

	vec, err := s.embedder.Embed(ctx, embedding.Normalize(question))
	if err != nil {
		s.logger.Warn("question embedding failed", "error", err)
		return s.miss()
	}

	entry, similarity, err := s.repo.BestMatch(ctx, vec, lookupCandidates)
	if err != nil {
		s.logger.Warn("cache similarity search failed", "error", err)
		return s.miss()
	}
	if entry == nil || similarity < s.minSimilarity {
		return s.miss()
	}
	if s.expired(entry.CachedAt) {
		s.evict(ctx, entry.ID)
		return s.miss()
	}
	return s.hit(entry, similarity)
}

// Store saves a completed analysis keyed by the question. Oversized
// payloads are trimmed and the oldest half of the cache is dropped once
// it reaches capacity. Failures are logged and swallowed.
func (s *Service) Store(ctx context.Context, question, answer string, toolCalls []domain.ToolCall, insights []string, entities []domain.Entity) {
	if s == nil || !s.enabled {
		return
	}

	vec, err := s.embedder.Embed(ctx, embedding.Normalize(question))
	if err != nil {
		s.logger.Warn("question embedding failed", "error", err)
		return
	}

	if count, err := s.repo.Count(ctx); err != nil {
		s.logger.Warn("cache count failed", "error", err)
	} else if s.maxEntries > 0 && count >= s.maxEntries {
		if err := s.repo.DeleteOldest(ctx, count/2); err != nil {
			s.logger.Warn("cache eviction failed", "error", err)
		}
	}

	if len(answer) > maxAnswerBytes {
		answer = answer[:maxAnswerBytes]
	}
	if len(toolCalls) > maxToolCalls {
		toolCalls = toolCalls[:maxToolCalls]
	}
	if len(insights) > maxInsights {
		insights = insights[:maxInsights]
	}

	entry := &Entry{
		ID:        embedding.QuestionID(question),
		Question:  question,
		Embedding: vec,
		Answer:    answer,
		ToolCalls: toolCalls,
		Insights:  insights,
		Entities:  entities,
		CachedAt:  unixNow(),
	}
	if err := s.repo.Upsert(ctx, entry); err != nil {
		s.logger.Warn("cache write failed", "error", err)
	}
}

// Stats reports cache size and tuning parameters.
func (s *Service) Stats(ctx context.Context) map[string]any {
	if s == nil || !s.enabled {
		return map[string]any{"enabled": false}
	}
	count, err := s.repo.Count(ctx)
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	return map[string]any{
		"entries":              count,
		"max_entries":          s.maxEntries,
		"ttl_seconds":          int(s.ttl.Seconds()),
		"similarity_threshold": s.threshold,
	}
}

// Clear removes every cached answer.
func (s *Service) Clear(ctx context.Context) error {
	if s == nil || !s.enabled {
		return nil
	}
	return s.repo.Clear(ctx)
}

func (s *Service) hit(entry *Entry, similarity float64) *Hit {
	if s.metrics != nil {
		s.metrics.RecordCacheLookup("response", true)
	}
	return &Hit{
		Answer:           entry.Answer,
		ToolCalls:        entry.ToolCalls,
		Insights:         entry.Insights,
		Entities:         entry.Entities,
		Similarity:       math.Round(similarity*1000) / 1000,
		OriginalQuestion: entry.Question,
	}
}

func (s *Service) miss() *Hit {
	if s.metrics != nil {
		s.metrics.RecordCacheLookup("response", false)
	}
	return nil
}

func (s *Service) evict(ctx context.Context, id string) {
	if err := s.repo.Delete(ctx, id); err != nil {
		s.logger.Warn("failed to delete expired cache entry", "id", id, "error", err)
	}
}

func (s *Service) expired(cachedAt float64) bool {
	if s.ttl <= 0 {
		return false
	}
	return unixNow()-cachedAt > s.ttl.Seconds()
}

func unixNow() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
