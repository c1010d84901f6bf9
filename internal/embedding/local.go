package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// LocalDimensions is the vector width of the hash embedder. It matches
// the width of the small sentence-transformer models typically used for
// this workload, so a SQLite cache built locally stays compatible when
// an HTTP embedder with the same width takes over.
const LocalDimensions = 384

// Word-overlap cosine runs lower than dense-model cosine for paraphrases,
// so the miss margin below a perfect match is doubled when translating a
// configured threshold onto the lexical scale. The floor keeps questions
// sharing no content words from ever matching.
const (
	lexicalStretch = 2.0
	lexicalFloor   = 0.10
)

// LocalEmbedder is a deterministic, dependency-free embedder. It hashes
// the content words of the normalized text into fixed buckets and
// L2-normalizes the result, after dropping stopwords and filler
// qualifiers, so two phrasings of a question score by the content words
// they share. Vectors are stable across process restarts, which keeps
// cache entries valid between runs.
type LocalEmbedder struct{}

// NewLocalEmbedder returns the hash-based embedder. It is the default
// when no embedder is configured.
func NewLocalEmbedder() *LocalEmbedder {
	return &LocalEmbedder{}
}

// Dimensions reports the fixed vector width.
func (e *LocalEmbedder) Dimensions() int {
	return LocalDimensions
}

// Embed hashes the content words into a unit-length vector. It never
// fails and ignores the context; both exist to satisfy Embedder.
func (e *LocalEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, LocalDimensions)
	for _, w := range contentWords(text) {
		bump(vec, w)
	}
	return l2Normalize(vec), nil
}

// CalibrateThreshold translates a dense-model cosine threshold onto the
// word-overlap scale, so rephrased questions can clear a threshold tuned
// for sentence-transformer similarities.
func (e *LocalEmbedder) CalibrateThreshold(threshold float64) float64 {
	return math.Max(1-(1-threshold)*lexicalStretch, lexicalFloor)
}

// contentWords tokenizes normalized text, trims surrounding punctuation
// and drops stopwords.
func contentWords(text string) []string {
	var words []string
	for _, w := range strings.Fields(Normalize(text)) {
		w = strings.TrimFunc(w, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if w == "" {
			continue
		}
		if _, ok := stopwords[w]; ok {
			continue
		}
		words = append(words, w)
	}
	return words
}

// stopwords are dropped before hashing: grammatical function words plus
// generic qualifiers ("key researchers", "top companies") that pad
// analyst questions without narrowing them.
var stopwords = func() map[string]struct{} {
	m := make(map[string]struct{})
	for _, w := range strings.Fields(`
		a an and or but nor not no the this that these those there here
		it its is are am was were be been being
		do does did done have has had having
		will would can could should shall may might must
		i you he she we they me him her us them
		my your his our their mine yours theirs
		who whom whose what which when where why how
		many much more most some any all each every few several other another same such
		of in on at by for with from into onto over under between through during about against
		to too as so if then than because while
		up down out off again further once
		please show list give tell find get make let
		key main top major best important primary biggest latest overall general`) {
		m[w] = struct{}{}
	}
	return m
}()

// bump adds one feature to its hash bucket. The low bits of the hash pick
// the bucket and the high bit picks the sign, so unrelated features tend
// to cancel instead of piling up in popular buckets.
func bump(vec []float32, feature string) {
	h := fnv.New64a()
	h.Write([]byte(feature))
	sum := h.Sum64()
	bucket := int(sum % uint64(len(vec)))
	if sum&(1<<63) != 0 {
		vec[bucket]--
	} else {
		vec[bucket]++
	}
}

func l2Normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	inv := 1 / math.Sqrt(sum)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) * inv)
	}
	return vec
}
