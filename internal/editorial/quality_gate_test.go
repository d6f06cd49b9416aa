package editorial

import (
	"testing"

	"digestline/internal/core"
)

func TestPublishGate_FlagsDuplicateHeadlines(t *testing.T) {
	nl := Newsletter{
		LeadParagraphs: []string{"OpenAI and Anthropic both shipped major model updates this week, continuing a pattern of rapid iteration across the industry as labs race to ship larger context windows and cheaper inference."},
		Articles: []core.ProcessedArticle{
			article("a", "OpenAI ships new model", []string{"OpenAI released a new flagship model with improved reasoning and coding performance across benchmarks."}, 0.9),
			article("b", "OpenAI ships new model", []string{"A second report also describes the same OpenAI launch from a different angle and source."}, 0.8),
		},
	}
	g := NewPublishGate(DefaultPublishThresholds())
	report := g.Evaluate(nl)
	if len(report.DuplicateHeadlines) != 1 {
		t.Fatalf("expected one duplicate headline, got %v", report.DuplicateHeadlines)
	}
	if report.Passed {
		t.Error("expected gate to fail on duplicate headlines")
	}
}

func TestPublishGate_FlagsLowWordCount(t *testing.T) {
	nl := Newsletter{
		Articles: []core.ProcessedArticle{
			article("a", "Short update", []string{"Too short."}, 0.9),
		},
	}
	g := NewPublishGate(DefaultPublishThresholds())
	report := g.Evaluate(nl)
	if report.Passed {
		t.Error("expected gate to fail on low total word count")
	}
	if report.TotalWords >= 300 {
		t.Errorf("expected low word count, got %d", report.TotalWords)
	}
}

func TestBulletLengthVariance_UniformLengthsIsZero(t *testing.T) {
	articles := []core.ProcessedArticle{
		article("a", "Title", []string{"exactly ten.", "exactly ten."}, 0.9),
	}
	if v := bulletLengthVariance(articles); v != 0 {
		t.Errorf("expected zero variance for identical bullet lengths, got %f", v)
	}
}
