package context

import (
	"context"
	"testing"
	"time"

	"digestline/internal/core"
	"digestline/internal/vectorstore"
)

type fakeIndex struct {
	matches []vectorstore.Match
	appends []vectorstore.HistoricalRecord
}

func (f *fakeIndex) Append(ctx context.Context, rec vectorstore.HistoricalRecord) error {
	f.appends = append(f.appends, rec)
	return nil
}
func (f *fakeIndex) Search(ctx context.Context, query core.Embedding, k int) ([]vectorstore.Match, error) {
	return f.matches, nil
}
func (f *fakeIndex) Persist(ctx context.Context) error { return nil }
func (f *fakeIndex) Dimension() int                    { return 3 }

type fakeSink struct {
	recs []core.RelationshipRecord
}

func (s *fakeSink) WriteRelationship(ctx context.Context, rec core.RelationshipRecord) error {
	s.recs = append(s.recs, rec)
	return nil
}

func TestAnalyze_NoCandidates_KeepsKeep(t *testing.T) {
	idx := &fakeIndex{}
	a := NewAnalyzer(idx, nil, nil, DefaultConfig())
	article := core.ProcessedArticle{ID: "x1", Title: "Some story", Bullets: []string{"b1"}, Embedding: core.Embedding{0.1, 0.2, 0.3}}

	out := a.Analyze(context.Background(), article, nil)
	if out.Context == nil || out.Context.Decision != core.ContextKeep {
		t.Fatalf("expected KEEP with no candidates, got %+v", out.Context)
	}
	if len(idx.appends) != 1 {
		t.Errorf("expected item to be persisted into historical index, got %d appends", len(idx.appends))
	}
}

func TestAnalyze_BelowThreshold_Ignored(t *testing.T) {
	idx := &fakeIndex{matches: []vectorstore.Match{
		{Record: vectorstore.HistoricalRecord{ItemID: "old1", Title: "Old story", PublishedAt: time.Now().Add(-48 * time.Hour)}, Similarity: 0.3},
	}}
	a := NewAnalyzer(idx, nil, nil, DefaultConfig())
	article := core.ProcessedArticle{ID: "x2", Title: "New story", Bullets: []string{"b1"}, Embedding: core.Embedding{0.1, 0.2, 0.3}}

	out := a.Analyze(context.Background(), article, nil)
	if out.Context.Decision != core.ContextKeep {
		t.Fatalf("expected KEEP when similarity below threshold, got %v", out.Context.Decision)
	}
}

func TestAnalyzeAll_AdaptiveConcurrency(t *testing.T) {
	idx := &fakeIndex{}
	a := NewAnalyzer(idx, nil, nil, DefaultConfig())
	articles := make([]core.ProcessedArticle, 6)
	for i := range articles {
		articles[i] = core.ProcessedArticle{ID: string(rune('a' + i)), Embedding: core.Embedding{0.1, 0.2, 0.3}}
	}
	out := a.AnalyzeAll(context.Background(), articles, nil)
	if len(out) != len(articles) {
		t.Fatalf("expected %d results, got %d", len(articles), len(out))
	}
}
