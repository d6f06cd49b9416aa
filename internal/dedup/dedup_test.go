package dedup

import (
	"testing"
	"time"

	"digestline/internal/fetch"
	"digestline/internal/relevance"
	"digestline/internal/summarize"
)

func item(id, source, title, body string) summarize.SummarizedItem {
	return summarize.SummarizedItem{
		ScoredItem: relevance.ScoredItem{
			RawItem: fetch.RawItem{ID: id, SourceName: source, Title: title, CleanedText: body, PublishedAt: time.Now()},
			Score:   0.8,
		},
		Summary: summarize.Summary{Bullets: []string{"Bullet one about AI.", "Bullet two about AI.", "Bullet three about AI."}, Confidence: 0.7},
	}
}

func TestConsolidate_MergesNearDuplicates(t *testing.T) {
	items := []summarize.SummarizedItem{
		item("a1", "Reuters", "OpenAI releases new model for developers", "OpenAI today announced a new foundation model aimed at developers building generative AI applications across the industry."),
		item("a2", "Bloomberg", "OpenAI releases new model for developers today", "OpenAI today announced a new foundation model aimed at developers building generative AI applications across the industry."),
		item("a3", "TechCrunch", "Completely unrelated sports result", "The home team won the championship game in a thrilling overtime finish."),
	}

	out := Consolidate(items, DefaultConfig())
	if len(out) != 2 {
		t.Fatalf("expected 2 groups (1 merged duplicate pair + 1 singleton), got %d", len(out))
	}

	var merged *struct{ found bool }
	for _, a := range out {
		if len(a.ConsolidatedSources) > 0 {
			merged = &struct{ found bool }{true}
			if a.Title == "" {
				t.Error("expected representative title to be set")
			}
		}
	}
	if merged == nil {
		t.Error("expected one group to have consolidated sibling sources")
	}
}

func TestComparisonText_StripsStopwordsAndPunctuation(t *testing.T) {
	got := comparisonText("The Model, released by the company!")
	want := "model released company"
	if got != want {
		t.Errorf("comparisonText() = %q, want %q", got, want)
	}
}
