package editorial

import (
	"context"
	"strings"
	"testing"

	"digestline/internal/core"
)

func article(id, title string, bullets []string, score float64) core.ProcessedArticle {
	return core.ProcessedArticle{ID: id, Title: title, DisplayTitle: title, Bullets: bullets, AIRelevanceScore: score, Confidence: score}
}

func TestQualityFilter_RelaxesThresholdUntilMinArticles(t *testing.T) {
	a := NewAssembler(nil, DefaultConfig())
	var clusters []core.TopicCluster
	for i := 0; i < 8; i++ {
		clusters = append(clusters, core.TopicCluster{Representative: article(string(rune('a'+i)), "Title", []string{"b"}, 0.2)})
	}
	out := a.qualityFilter(clusters, nil)
	if len(out) < a.cfg.MinArticles {
		t.Fatalf("expected relaxed threshold to admit at least %d articles, got %d", a.cfg.MinArticles, len(out))
	}
}

func TestApplyUpdateMarker_Idempotent(t *testing.T) {
	once := applyUpdateMarker("OpenAI ships new model", true, "[Update] ")
	twice := applyUpdateMarker(once, true, "[Update] ")
	if once != twice {
		t.Errorf("expected idempotent marker application, got %q then %q", once, twice)
	}
	if !strings.HasPrefix(once, "[Update] ") {
		t.Errorf("expected marker prefix, got %q", once)
	}
}

func TestTruncateGrammatically_PreservesQuotedSubstring(t *testing.T) {
	title := "Company announces 「new flagship product line for developers」 today in keynote"
	got := truncateGrammatically(title, 60)
	if !strings.Contains(got, "「new flagship product line for developers」") {
		t.Errorf("expected quoted substring preserved, got %q", got)
	}
}

func TestAcceptTitle_RejectsTrailingParticle(t *testing.T) {
	if acceptTitle("OpenAI releases GPT-5 model update report が") {
		t.Error("expected title with trailing particle to be rejected")
	}
}

func TestAssemble_ProducesMarkdown(t *testing.T) {
	a := NewAssembler(nil, DefaultConfig())
	var clusters []core.TopicCluster
	for i := 0; i < 7; i++ {
		clusters = append(clusters, core.TopicCluster{
			Representative: article(string(rune('a'+i)), "OpenAI launches GPT-5 for developers", []string{"OpenAI today announced a major model update with new capabilities."}, 0.9),
		})
	}
	nl := a.Assemble(context.Background(), clusters, nil)
	if nl.Markdown == "" {
		t.Fatal("expected non-empty markdown")
	}
	if len(nl.Articles) < a.cfg.MinArticles {
		t.Errorf("expected at least %d articles, got %d", a.cfg.MinArticles, len(nl.Articles))
	}
}
