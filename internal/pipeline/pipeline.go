// Package pipeline wires S1 through S7 into the single linear run
// spec.md §2/§5 describes: fetch, filter, summarize, consolidate +
// context-analyze, cluster, attach citations, assemble. Grounded on the
// teacher's internal/pipeline/pipeline.go stage-sequencing and
// RunState/StageStats bookkeeping idiom, generalized from the teacher's
// bespoke per-stage interfaces to the concrete stage packages this
// module builds (fetch, relevance, summarize, dedup, context,
// clustering, citations, editorial).
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"digestline/internal/citations"
	"digestline/internal/clustering"
	"digestline/internal/config"
	contextpkg "digestline/internal/context"
	"digestline/internal/core"
	"digestline/internal/dedup"
	"digestline/internal/editorial"
	"digestline/internal/fetch"
	"digestline/internal/llm"
	"digestline/internal/logger"
	"digestline/internal/persistence"
	"digestline/internal/relevance"
	"digestline/internal/summarize"
	"digestline/internal/vectorstore"
)

// Options carries the per-invocation overrides spec.md §6's CLI surface
// exposes (--max-items, --edition, --output-dir, --dry-run, ...).
type Options struct {
	MaxItems  int
	Edition   string
	OutputDir string
	DryRun    bool
}

// Result is the run's terminal artifact set.
type Result struct {
	RunState    core.RunState
	Newsletter  editorial.Newsletter
	ClustersOut []core.TopicCluster
}

// Pipeline holds the constructed stage components for one run.
type Pipeline struct {
	cfg    *config.Config
	router *llm.Router
	index  vectorstore.Index
	store  *persistence.Store

	relevanceScorer *relevance.Scorer
	summarizer      *summarize.Summarizer
	contextAnalyzer *contextpkg.Analyzer
	clusterer       *clustering.Clusterer
	citer           *citations.Assembler
	editor          *editorial.Assembler
}

// New builds a Pipeline from configuration and the shared collaborators
// (LLM router, historical vector index, relational store). index/store
// may be nil in --dry-run mode: S4 Phase B degrades to KEEP for every
// item and persistence steps are skipped.
func New(cfg *config.Config, router *llm.Router, index vectorstore.Index, store *persistence.Store) *Pipeline {
	return &Pipeline{
		cfg:             cfg,
		router:          router,
		index:           index,
		store:           store,
		relevanceScorer: relevance.NewScorer(embedderAdapter{router}),
		summarizer:      summarize.NewSummarizer(router, int64(cfg.LLM.MaxConcurrency)),
		contextAnalyzer: contextpkg.NewAnalyzer(index, embedderAdapter{router}, router, contextpkg.Config{
			SimilarityThreshold: cfg.Context.SimilarityThreshold,
			TopK:                cfg.Context.TopK,
			MaxConcurrentLLM:    cfg.Context.MaxConcurrentLLM,
		}),
		clusterer: clustering.NewClusterer(router, clustering.Config{
			CoherenceThreshold:  cfg.Clustering.SemanticCoherenceThreshold,
			MinClusterSize:      cfg.Clustering.MinClusterSize,
			MaxClusters:         cfg.Clustering.KMeansThreshold,
			SimilarityThreshold: cfg.Clustering.SemanticCoherenceThreshold,
		}),
		citer: citations.NewAssembler(router, citations.Config{MaxPerArticle: cfg.Citations.MaxPerArticle}),
		editor: editorial.NewAssembler(router, editorial.Config{
			QualityThreshold: cfg.Editorial.QualityThreshold,
			MinArticles:      cfg.Editorial.MinArticles,
			MaxArticles:      cfg.Editorial.MaxArticles,
			UpgradeMarker:    cfg.Editorial.UpgradeMarker,
		}),
	}
}

// embedderAdapter lets the *llm.Router satisfy the narrow Embedder
// interfaces relevance and context each declare independently, so those
// packages don't need to import the llm package directly.
type embedderAdapter struct{ router *llm.Router }

func (e embedderAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.router == nil {
		return nil, fmt.Errorf("pipeline: no router configured for embeddings")
	}
	return e.router.Embed(ctx, text)
}

// Run executes S1 through S7 sequentially, bounding the whole run at
// cfg.Run.StageTimeout (spec.md §5's stage-level timeout). A run that
// exceeds it is marked failed and its partial outputs discarded.
func (p *Pipeline) Run(ctx context.Context, opts Options) (Result, error) {
	runID := uuid.NewString()
	state := core.RunState{RunID: runID, StartedAt: time.Now(), Status: core.RunStatusSuccess}
	log := logger.ForStage(runID, "pipeline")

	timeout := p.cfg.Run.StageTimeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := p.run(runCtx, &state, opts)
	if runCtx.Err() != nil {
		state.Status = core.RunStatusFailed
		state.Append("pipeline", "error", "stage timeout exceeded, partial outputs discarded")
		log.Error("run exceeded stage timeout", "error", runCtx.Err())
		return Result{RunState: state}, fmt.Errorf("pipeline: stage timeout: %w", runCtx.Err())
	}
	if err != nil {
		state.Status = core.RunStatusFailed
		return Result{RunState: state}, err
	}
	return result, nil
}

func (p *Pipeline) run(ctx context.Context, state *core.RunState, opts Options) (Result, error) {
	log := logger.ForStage(state.RunID, "pipeline")
	anyStageFailed := false

	// S1: fetch.
	s1Start := time.Now()
	sources := make([]fetch.Source, 0, len(p.cfg.Sources))
	for _, sc := range p.cfg.Sources {
		sources = append(sources, fetch.Source{Name: sc.Name, Kind: sc.Kind, URL: sc.URL})
	}
	collectOpts := fetch.DefaultCollectOptions()
	if opts.MaxItems > 0 {
		collectOpts.MaxItems = opts.MaxItems
	}
	rawItems, warnings := fetch.CollectAll(ctx, sources, collectOpts, log)
	for _, w := range warnings {
		state.Append("fetch", "warn", fmt.Sprintf("source %s: %v", w.Source, w.Err))
	}
	state.Stats = append(state.Stats, core.StageStats{Stage: "fetch", InputCount: len(sources), OutputCount: len(rawItems), DurationMS: time.Since(s1Start).Milliseconds()})

	// S2: relevance filter.
	s2Start := time.Now()
	scored := make([]relevance.ScoredItem, 0, len(rawItems))
	for _, item := range rawItems {
		scored = append(scored, p.relevanceScorer.ScoreItem(ctx, item))
	}
	policy := relevance.DefaultPolicy()
	if opts.MaxItems > 0 {
		policy.MaxPoolSize = opts.MaxItems
	}
	accepted := relevance.Filter(scored, policy)
	state.Stats = append(state.Stats, core.StageStats{Stage: "relevance", InputCount: len(rawItems), OutputCount: len(accepted), DurationMS: time.Since(s2Start).Milliseconds()})

	// S3: summarize.
	s3Start := time.Now()
	summarized, summarizeErrs := p.summarizer.SummarizeAll(ctx, accepted)
	summarizeFailed := 0
	for _, e := range summarizeErrs {
		if e == nil {
			continue
		}
		summarizeFailed++
		state.Append("summarize", "warn", e.Error())
	}
	state.Stats = append(state.Stats, core.StageStats{Stage: "summarize", InputCount: len(accepted), OutputCount: len(summarized), DurationMS: time.Since(s3Start).Milliseconds(), FailedItems: summarizeFailed})

	// S4 Phase A: consolidate near-duplicates.
	s4aStart := time.Now()
	consolidated := dedup.Consolidate(summarized, dedup.Config{ConsolidationThreshold: p.cfg.Dedup.ConsolidationThreshold})
	state.Stats = append(state.Stats, core.StageStats{Stage: "dedup", InputCount: len(summarized), OutputCount: len(consolidated), DurationMS: time.Since(s4aStart).Milliseconds()})

	// S4 Phase B: context analysis against the historical index.
	s4bStart := time.Now()
	var sink contextpkg.RelationshipSink
	if p.store != nil && !opts.DryRun {
		sink = p.store
	}
	contextualized := p.contextAnalyzer.AnalyzeAll(ctx, consolidated, sink)
	state.Stats = append(state.Stats, core.StageStats{Stage: "context", InputCount: len(consolidated), OutputCount: len(contextualized), DurationMS: time.Since(s4bStart).Milliseconds()})

	// S5: topic clustering.
	s5Start := time.Now()
	clusters := p.clusterer.Cluster(ctx, contextualized)
	clusters = clustering.PrioritizeMultiSource(clusters)
	state.Stats = append(state.Stats, core.StageStats{Stage: "clustering", InputCount: len(contextualized), OutputCount: len(clusters), DurationMS: time.Since(s5Start).Milliseconds()})

	// S6: citation assembly.
	s6Start := time.Now()
	cited := p.citer.AssembleAll(ctx, clusters)
	state.Stats = append(state.Stats, core.StageStats{Stage: "citations", InputCount: len(clusters), OutputCount: len(cited), DurationMS: time.Since(s6Start).Milliseconds()})

	// S7: editorial assembly.
	s7Start := time.Now()
	scores := make(map[string]float64, len(cited))
	for _, cl := range cited {
		scores[cl.Representative.ID] = cl.Confidence*0.5 + cl.Representative.AIRelevanceScore*0.5
	}
	newsletter := p.editor.Assemble(ctx, cited, scores)
	state.Stats = append(state.Stats, core.StageStats{Stage: "editorial", InputCount: len(cited), OutputCount: len(newsletter.Articles), DurationMS: time.Since(s7Start).Milliseconds()})

	if newsletter.GateReport != nil && newsletter.GateReport.Level == "FAILED" {
		anyStageFailed = true
		state.Append("editorial", "warn", fmt.Sprintf("output quality gate scored %.2f (%s)", newsletter.GateReport.Score, newsletter.GateReport.Level))
	}
	if newsletter.PublishReport != nil && !newsletter.PublishReport.Passed {
		anyStageFailed = true
		for _, issue := range newsletter.PublishReport.Issues {
			state.Append("editorial", "warn", "publish gate: "+issue)
		}
	}

	if !opts.DryRun && p.store != nil {
		if err := p.persist(ctx, state, newsletter, opts); err != nil {
			state.Append("persistence", "error", err.Error())
			anyStageFailed = true
		}
	}

	if anyStageFailed {
		state.Status = core.RunStatusPartial
	}

	return Result{RunState: *state, Newsletter: newsletter, ClustersOut: cited}, nil
}

// persist implements spec.md §6's write-back: the rendered newsletter,
// the run's processing log, and each published article's historical
// metadata. Persistent-store failures are logged and swallowed per
// spec.md §7, never failing the run.
func (p *Pipeline) persist(ctx context.Context, state *core.RunState, nl editorial.Newsletter, opts Options) error {
	edition := opts.Edition
	if edition == "" {
		edition = p.cfg.Run.Edition
	}
	today := time.Now().UTC().Truncate(24 * time.Hour)

	if err := p.store.UpsertProcessedContent(ctx, persistence.ProcessedContent{
		ProcessingDate:    today,
		Edition:           edition,
		ContentType:       "newsletter",
		Title:             nl.Title,
		LeadParagraph:     firstOrEmpty(nl.LeadParagraphs),
		ArticlesCount:     len(nl.Articles),
		MultiSourceTopics: nl.MultiSourceTopics,
		ContentMD:         nl.Markdown,
	}); err != nil {
		return fmt.Errorf("pipeline: persisting processed content: %w", err)
	}

	var llmCalls, totalTokens int
	for _, s := range state.Stats {
		llmCalls += s.LLMCalls
		totalTokens += s.TotalTokens
	}
	if err := p.store.UpsertProcessingLog(ctx, persistence.ProcessingLog{
		ProcessingDate:        today,
		Edition:               edition,
		Status:                state.Status,
		ArticlesProcessed:     len(nl.Articles),
		LLMCalls:              llmCalls,
		TotalTokens:           totalTokens,
		ProcessingTimeSeconds: time.Since(state.StartedAt).Seconds(),
	}); err != nil {
		return fmt.Errorf("pipeline: persisting processing log: %w", err)
	}

	for _, a := range nl.Articles {
		if err := p.store.UpsertContextualArticle(ctx, a); err != nil {
			state.Append("persistence", "warn", fmt.Sprintf("article %s: %v", a.ID, err))
		}
	}
	return nil
}

func firstOrEmpty(ss []string) string {
	if len(ss) == 0 {
		return ""
	}
	return ss[0]
}
