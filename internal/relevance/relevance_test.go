package relevance

import (
	"context"
	"testing"

	"digestline/internal/fetch"
)

func TestScoreItemEarlyReject(t *testing.T) {
	s := NewScorer(nil)
	item := fetch.RawItem{Title: "New EV charging stations open nationwide", CleanedText: "electric vehicle charging network expands"}
	scored := s.ScoreItem(context.Background(), item)
	if scored.Score > 0.1 {
		t.Fatalf("expected near-zero score for early-reject domain, got %v", scored.Score)
	}
}

func TestScoreItemKeywordHit(t *testing.T) {
	s := NewScorer(nil)
	item := fetch.RawItem{Title: "OpenAI ships new foundation model", CleanedText: "The transformer-based large language model improves reasoning."}
	scored := s.ScoreItem(context.Background(), item)
	if scored.Score <= 0.2 {
		t.Fatalf("expected meaningful keyword score, got %v", scored.Score)
	}
	if len(scored.MatchedKeywords) == 0 {
		t.Fatal("expected matched keywords")
	}
}

func TestFilterDynamicThreshold(t *testing.T) {
	items := []ScoredItem{
		{Score: 0.5}, {Score: 0.05}, {Score: 0.04}, {Score: 0.03}, {Score: 0.02}, {Score: 0.01},
	}
	p := DefaultPolicy()
	p.MinTargetCount = 3
	out := Filter(items, p)
	if len(out) < 3 {
		t.Fatalf("expected threshold relaxation to reach min target count, got %d", len(out))
	}
}

func TestFilterCapsToMaxPool(t *testing.T) {
	items := make([]ScoredItem, 0, 40)
	for i := 0; i < 40; i++ {
		items = append(items, ScoredItem{Score: 0.9})
	}
	p := DefaultPolicy()
	out := Filter(items, p)
	if len(out) != p.MaxPoolSize {
		t.Fatalf("expected pool capped to %d, got %d", p.MaxPoolSize, len(out))
	}
}
