// Package context implements S4 Phase B: embedding each consolidated
// item, querying the historical vector index for nearest prior items,
// asking the LLM router to adjudicate KEEP/UPDATE/RELATED/UNRELATED for
// each candidate, and on UPDATE producing a contextual re-summary that
// grounds the reader in what changed (spec.md §4.4 Phase B, §4.4.1).
// Named "context" for the analyzer it implements (spec.md's "Context
// analysis"); aliased as contextpkg where the stdlib context package is
// also needed in the same file. Grounded on the teacher's
// internal/services/ai_router.go fallback-classification control flow,
// generalized from a 2-way routing decision to the 3-way UPDATE/
// RELATED/UNRELATED adjudication spec.md names, run per-item behind an
// adaptive semaphore (spec.md §4.4's concurrency model).
package context

import (
	stdctx "context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"digestline/internal/core"
	"digestline/internal/llm"
	"digestline/internal/quality"
	"digestline/internal/vectorstore"
)

// Config carries S4 Phase B's tunables (spec.md §4.4).
type Config struct {
	SimilarityThreshold float64 // default 0.65-0.80, spec picks 0.70 as the configured point
	TopK                int     // default 3
	MaxConcurrentLLM    int     // upper bound of the adaptive semaphore, default 8
}

func DefaultConfig() Config {
	return Config{SimilarityThreshold: 0.70, TopK: 3, MaxConcurrentLLM: 8}
}

// Embedder produces a title+summary embedding for an article.
type Embedder interface {
	Embed(ctx stdctx.Context, text string) ([]float32, error)
}

// Analyzer runs S4 Phase B over a pool of consolidated ProcessedArticles.
type Analyzer struct {
	cfg    Config
	index  vectorstore.Index
	embed  Embedder
	router *llm.Router

	appendMu sync.Mutex // serializes index appends across AnalyzeAll's goroutines
}

func NewAnalyzer(index vectorstore.Index, embed Embedder, router *llm.Router, cfg Config) *Analyzer {
	return &Analyzer{cfg: cfg, index: index, embed: embed, router: router}
}

// RelationshipSink receives the relationship records S4 Phase B writes
// for UPDATE/RELATED verdicts (spec.md §4.4: "write a relationship
// record"). Persistence failures here are logged and swallowed per
// spec.md §7 (persistent-store failure is never fatal).
type RelationshipSink interface {
	WriteRelationship(ctx stdctx.Context, rec core.RelationshipRecord) error
}

// AnalyzeAll runs Phase B concurrently behind an adaptive semaphore
// sized min(cap, max(2, ceil(N/4))) (spec.md §4.4's concurrency model). Within
// each item the embedding+historical-search (CPU/IO bound duplicate
// check analog) completes before the context-analyze LLM call.
func (a *Analyzer) AnalyzeAll(ctx stdctx.Context, articles []core.ProcessedArticle, sink RelationshipSink) []core.ProcessedArticle {
	n := len(articles)
	capSize := a.cfg.MaxConcurrentLLM
	if capSize <= 0 {
		capSize = 8
	}
	adaptive := (n + 3) / 4
	if adaptive < 2 {
		adaptive = 2
	}
	if adaptive > capSize {
		adaptive = capSize
	}

	sem := semaphore.NewWeighted(int64(adaptive))
	out := make([]core.ProcessedArticle, n)
	done := make(chan int, n)
	for i, article := range articles {
		i, article := i, article
		go func() {
			if err := sem.Acquire(ctx, 1); err != nil {
				out[i] = article
				done <- i
				return
			}
			defer sem.Release(1)
			out[i] = a.Analyze(ctx, article, sink)
			done <- i
		}()
	}
	for range articles {
		<-done
	}
	return out
}

// Analyze implements spec.md §4.4 Phase B for a single article: embed,
// search the historical index, adjudicate each candidate, apply the
// UPDATE/RELATED/UNRELATED decision, persist the new item, and write a
// relationship record for UPDATE/RELATED. Embedding/search failures
// leave the item as KEEP (spec.md §4.4 "Failure").
func (a *Analyzer) Analyze(ctx stdctx.Context, article core.ProcessedArticle, sink RelationshipSink) core.ProcessedArticle {
	text := article.Title + "\n" + strings.Join(article.Bullets, "\n")

	embedding := article.Embedding
	if len(embedding) == 0 && a.embed != nil {
		if vec, err := a.embed.Embed(ctx, text); err == nil {
			embedding = core.Embedding(vec)
			article.Embedding = embedding
		}
	}

	verdict := &core.ContextVerdict{Decision: core.ContextKeep}
	article.Context = verdict

	if a.index == nil || len(embedding) == 0 {
		return article
	}

	matches, err := a.index.Search(ctx, embedding, a.cfg.TopK)
	if err != nil {
		return article
	}

	for _, m := range matches {
		if m.Similarity < a.cfg.SimilarityThreshold {
			continue
		}
		decision, reasoning := a.adjudicate(ctx, article, m)
		switch decision {
		case core.ContextUpdate:
			verdict.Decision = core.ContextUpdate
			verdict.References = append(verdict.References, m.Record.ItemID)
			verdict.Similarity = m.Similarity
			verdict.Reasoning = reasoning
			article.IsUpdate = true
			article.Bullets = a.contextualResummary(ctx, article, m, reasoning)
			a.writeRelationship(ctx, sink, article.ID, m.Record.ItemID, core.RelationshipUpdate, m.Similarity, reasoning)
		case core.ContextRelated:
			if verdict.Decision != core.ContextUpdate {
				verdict.Decision = core.ContextRelated
			}
			verdict.References = append(verdict.References, m.Record.ItemID)
			a.writeRelationship(ctx, sink, article.ID, m.Record.ItemID, core.RelationshipRelated, m.Similarity, reasoning)
		}
	}

	a.persist(ctx, article)
	return article
}

func (a *Analyzer) writeRelationship(ctx stdctx.Context, sink RelationshipSink, childID, parentID string, kind core.RelationshipKind, sim float64, reasoning string) {
	if sink == nil {
		return
	}
	_ = sink.WriteRelationship(ctx, core.RelationshipRecord{
		ParentItemID: parentID,
		ChildItemID:  childID,
		Kind:         kind,
		Similarity:   sim,
		Reasoning:    reasoning,
	}) // persistent-store failures are logged and swallowed by the sink implementation (spec.md §7)
}

// adjudicate asks the router to classify a pair into
// UPDATE/RELATED/UNRELATED using a fixed one-word-answer prompt
// (spec.md §4.4 Phase B).
func (a *Analyzer) adjudicate(ctx stdctx.Context, article core.ProcessedArticle, m vectorstore.Match) (core.ContextDecision, string) {
	if a.router == nil {
		return core.ContextKeep, ""
	}
	system := "Classify the relationship between a new article and a prior article. " +
		"Respond with exactly one word: UPDATE, RELATED, or UNRELATED. " +
		"UPDATE means the new article is a follow-up reporting new developments on the same story. " +
		"RELATED means they share a topic but the new article is not a follow-up. " +
		"UNRELATED means they are not meaningfully connected."
	prompt := fmt.Sprintf("Prior article (%s): %s\n\nNew article: %s\n%s",
		m.Record.PublishedAt.Format("2006-01-02"), m.Record.Title, article.Title, strings.Join(article.Bullets, " "))

	text, _, err := a.router.GenerateText(ctx, system, prompt, 16, 0.0)
	if err != nil {
		return core.ContextKeep, ""
	}
	word := strings.ToUpper(strings.TrimSpace(quality.StripMetaArtifacts(text)))
	switch {
	case strings.Contains(word, "UPDATE"):
		return core.ContextUpdate, text
	case strings.Contains(word, "UNRELATED"):
		return core.ContextKeep, text
	case strings.Contains(word, "RELATED"):
		return core.ContextRelated, text
	default:
		return core.ContextKeep, text
	}
}

// contextualResummary implements spec.md §4.4.1: a second summarization
// grounding the reader in the prior state, what changed, a contrast, and
// forward implications. The result replaces the prior summary only when
// it parses into 3-4 bullets of 100-250 chars; otherwise the original
// bullets are kept.
func (a *Analyzer) contextualResummary(ctx stdctx.Context, article core.ProcessedArticle, m vectorstore.Match, reasoning string) []string {
	if a.router == nil {
		return article.Bullets
	}
	system := "Rewrite this summary as 3-4 bullets, each 100-250 characters, that (1) ground the reader in the prior state, " +
		"(2) state what changed, (3) contrast against the past, and (4) note forward implications. Respond with JSON: {\"bullets\": [...]}."
	user := fmt.Sprintf("Current bullets:\n%s\n\nPrior summary:\n%s\n\nContext reasoning: %s",
		strings.Join(article.Bullets, "\n"), m.Record.SummaryText, reasoning)

	bullets, _, err := a.router.Summarize(ctx, system, user, 500, 0.3)
	if err != nil {
		return article.Bullets
	}
	if len(bullets) < 3 || len(bullets) > 4 {
		return article.Bullets
	}
	for _, b := range bullets {
		n := len([]rune(b))
		if n < 100 || n > 250 {
			return article.Bullets
		}
	}
	return bullets
}

func (a *Analyzer) persist(ctx stdctx.Context, article core.ProcessedArticle) {
	if a.index == nil {
		return
	}
	rec := vectorstore.HistoricalRecord{
		ItemID:         article.ID,
		Title:          article.Title,
		SummaryText:    strings.Join(article.Bullets, " "),
		PublishedAt:    article.PublishedAt,
		SourceID:       article.SourceID,
		RelevanceScore: article.AIRelevanceScore,
		Embedding:      article.Embedding,
		IsUpdate:       article.IsUpdate,
		TopicCluster:   article.ClusterID,
	}
	a.appendMu.Lock()
	defer a.appendMu.Unlock()
	_ = a.index.Append(ctx, rec) // spec.md §7: persistent-store failures are logged and swallowed
}
