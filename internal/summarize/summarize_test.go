package summarize

import (
	"digestline/internal/core"
	"digestline/internal/fetch"
	"digestline/internal/relevance"
	"testing"
)

func TestDegenerateSummaryHasThreeBullets(t *testing.T) {
	item := relevance.ScoredItem{
		RawItem: fetch.RawItem{Title: "A company ships something", CleanedText: "Body text describing the event in detail."},
	}
	s := degenerate(item)
	if len(s.Bullets) != 3 {
		t.Fatalf("expected 3 bullets, got %d", len(s.Bullets))
	}
	if s.Confidence != 0 || s.SourceReliability != core.ReliabilityLow {
		t.Fatalf("expected confidence 0 and low reliability, got %v/%v", s.Confidence, s.SourceReliability)
	}
	if !s.FallbackUsed {
		t.Fatal("expected FallbackUsed to be true")
	}
}

func TestGateScoreEmptyBullets(t *testing.T) {
	if gateScore(Summary{}) != 0 {
		t.Fatal("expected zero gate score for empty summary")
	}
}
