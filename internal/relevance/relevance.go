// Package relevance implements the S2 relevance filter: keyword scoring
// against a curated AI vocabulary, an optional semantic score against
// positive/negative exemplar sets, and the dynamic-threshold acceptance
// policy of spec.md §4.2. Grounded on the teacher's
// internal/relevance/keyword_scorer.go weighted-hit scoring shape,
// narrowed from a generic query-relevance scorer to the AI-domain
// vocabulary and early-reject patterns spec.md names.
package relevance

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"digestline/internal/core"
	"digestline/internal/fetch"
)

// ScoredItem is a RawItem plus S2's relevance verdict.
type ScoredItem struct {
	fetch.RawItem
	Score           float64
	MatchedKeywords []string
	Reason          string
}

// Embedder provides the optional semantic score: cosine similarity of an
// item embedding against reference exemplar sets.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Policy carries S2's tunable thresholds (spec.md §4.2).
type Policy struct {
	BaseThreshold    float64
	MinThreshold     float64
	ThresholdStep    float64
	MinTargetCount   int
	MaxPoolSize      int
}

func DefaultPolicy() Policy {
	return Policy{BaseThreshold: 0.2, MinThreshold: 0.1, ThresholdStep: 0.02, MinTargetCount: 5, MaxPoolSize: 30}
}

// keywordWeight is one entry of the curated AI vocabulary lookup table;
// higher weight for high-value proper nouns/acronyms than generic terms.
type keywordWeight struct {
	term   string
	weight float64
}

var aiVocabulary = []keywordWeight{
	{"openai", 1.0}, {"anthropic", 1.0}, {"claude", 1.0}, {"chatgpt", 1.0}, {"gemini", 1.0},
	{"deepmind", 1.0}, {"llm", 0.9}, {"large language model", 0.9}, {"gpt-4", 0.95}, {"gpt-5", 0.95},
	{"transformer", 0.8}, {"neural network", 0.7}, {"machine learning", 0.7}, {"deep learning", 0.75},
	{"artificial intelligence", 0.85}, {"generative ai", 0.9}, {"foundation model", 0.8},
	{"agentic", 0.75}, {"multimodal", 0.7}, {"reinforcement learning", 0.7}, {"diffusion model", 0.7},
	{"text-to-image", 0.65}, {"fine-tuning", 0.6}, {"inference", 0.4}, {"training run", 0.5},
	{"chatbot", 0.6}, {"copilot", 0.6}, {"nvidia", 0.45}, {"gpu cluster", 0.55}, {"tpu", 0.6},
	{"alignment", 0.5}, {"hallucination", 0.55}, {"benchmark", 0.35}, {"dataset", 0.3}, {"token", 0.25},
	{"embedding", 0.55}, {"prompt engineering", 0.6}, {"rag", 0.55}, {"vector database", 0.5},
	{"autonomous agent", 0.65}, {"robotics", 0.3}, {"computer vision", 0.6}, {"nlp", 0.55},
	{"mistral", 0.85}, {"meta ai", 0.7}, {"llama", 0.8}, {"hugging face", 0.7}, {"stability ai", 0.7},
}

// earlyRejectPatterns force a near-zero score for domains that share
// surface vocabulary with AI coverage but aren't substantively about it
// (spec.md §4.2: consumer EV, cryptocurrency trading, mobile-OS config).
var earlyRejectPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(electric vehicle|ev charging|tesla model [3syx]|battery range)\b`),
	regexp.MustCompile(`(?i)\b(cryptocurrency|crypto trading|bitcoin price|nft market|blockchain wallet)\b`),
	regexp.MustCompile(`(?i)\b(ios update|android settings|phone firmware|operating system update)\b`),
}

var positiveExemplars = []string{
	"a new foundation model was trained on a large cluster of GPUs for general reasoning tasks",
	"researchers published a paper describing a novel transformer architecture for language understanding",
	"the company released an API for developers to build generative AI applications",
}

var negativeExemplars = []string{
	"the stock market closed higher today as investors reacted to interest rate news",
	"a new smartphone was announced with an updated camera and battery life",
	"the sports team won its match in overtime after a late rally",
}

// Scorer scores RawItems against the AI vocabulary, optionally combining
// an embedding-based semantic score when embedder is non-nil.
type Scorer struct {
	embedder Embedder
	alpha    float64
}

func NewScorer(embedder Embedder) *Scorer {
	return &Scorer{embedder: embedder, alpha: 0.5}
}

// ScoreItem computes the combined relevance score for one RawItem per
// spec.md §4.2: 0.7*keyword + 0.3*semantic when an embedder is
// available, else 0.7*keyword alone, normalized to [0,1].
func (s *Scorer) ScoreItem(ctx context.Context, item fetch.RawItem) ScoredItem {
	text := strings.ToLower(item.Title + " " + item.CleanedText)

	for _, re := range earlyRejectPatterns {
		if re.MatchString(text) {
			return ScoredItem{RawItem: item, Score: 0.04, Reason: "early-reject: non-AI domain pattern matched"}
		}
	}

	kwScore, matched := keywordScore(text)

	combined := 0.7 * kwScore
	reason := "keyword-only score"
	if s.embedder != nil {
		if semScore, err := s.semanticScore(ctx, item.Title+" "+item.CleanedText); err == nil {
			combined = 0.7*kwScore + 0.3*semScore
			reason = "keyword+semantic score"
		}
	}
	if combined > 1 {
		combined = 1
	}
	if combined < 0 {
		combined = 0
	}
	return ScoredItem{RawItem: item, Score: combined, MatchedKeywords: matched, Reason: reason}
}

func keywordScore(text string) (float64, []string) {
	var total float64
	var matched []string
	for _, kw := range aiVocabulary {
		if strings.Contains(text, kw.term) {
			total += kw.weight
			matched = append(matched, kw.term)
		}
	}
	// Normalize against a handful of hits being a "strong" signal rather
	// than requiring every vocabulary term to ever fire at once.
	normalized := total / 3.0
	if normalized > 1 {
		normalized = 1
	}
	return normalized, matched
}

func (s *Scorer) semanticScore(ctx context.Context, text string) (float64, error) {
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return 0, err
	}
	posSim := topKAvg(vec, positiveExemplars, s, ctx, 3)
	negSim := topKAvg(vec, negativeExemplars, s, ctx, 3)
	score := posSim - s.alpha*negSim
	if score < 0 {
		score = 0
	}
	return score, nil
}

func topKAvg(vec []float32, exemplars []string, s *Scorer, ctx context.Context, k int) float64 {
	sims := make([]float64, 0, len(exemplars))
	for _, ex := range exemplars {
		exVec, err := s.embedder.Embed(ctx, ex)
		if err != nil {
			continue
		}
		sims = append(sims, core.CosineSimilarity(core.Embedding(vec), core.Embedding(exVec)))
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(sims)))
	if len(sims) > k {
		sims = sims[:k]
	}
	if len(sims) == 0 {
		return 0
	}
	var sum float64
	for _, v := range sims {
		sum += v
	}
	return sum / float64(len(sims))
}

// Filter applies spec.md §4.2's dynamic-threshold acceptance policy:
// accept items scoring >= t0; if fewer than MinTargetCount are accepted,
// lower the threshold in ThresholdStep increments until either enough
// are accepted or the threshold drops below MinThreshold, at which point
// accept the top-scoring items down to MinTargetCount. Trims to
// MaxPoolSize by score, descending.
func Filter(items []ScoredItem, p Policy) []ScoredItem {
	sorted := make([]ScoredItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	threshold := p.BaseThreshold
	accepted := acceptAt(sorted, threshold)
	for len(accepted) < p.MinTargetCount && threshold-p.ThresholdStep >= p.MinThreshold {
		threshold -= p.ThresholdStep
		accepted = acceptAt(sorted, threshold)
	}
	if len(accepted) < p.MinTargetCount {
		n := p.MinTargetCount
		if n > len(sorted) {
			n = len(sorted)
		}
		accepted = append([]ScoredItem{}, sorted[:n]...)
	}
	if len(accepted) > p.MaxPoolSize {
		accepted = accepted[:p.MaxPoolSize]
	}
	return accepted
}

func acceptAt(sorted []ScoredItem, threshold float64) []ScoredItem {
	var out []ScoredItem
	for _, it := range sorted {
		if it.Score >= threshold {
			out = append(out, it)
		}
	}
	return out
}
