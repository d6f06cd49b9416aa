package editorial

import (
	"fmt"
	"strings"

	"digestline/internal/core"
)

// PublishThresholds carries the pre-publish gate's soft-signal cutoffs.
// Grounded on original_source/'s newsletter_quality_checker.py, in the
// teacher's internal/quality threshold-struct shape
// (QualityThresholds + Issues []string + Passed bool).
type PublishThresholds struct {
	MinTotalWords     int
	MaxLengthVariance float64
}

func DefaultPublishThresholds() PublishThresholds {
	return PublishThresholds{MinTotalWords: 300, MaxLengthVariance: 4000}
}

// PublishGate is the final pass over an assembled Newsletter: the
// editorial invariants (spec.md §8) are already enforced by qualityFilter
// and outputGate, so this checks the remaining soft signals
// newsletter_quality_checker.py flags before a human would publish --
// duplicate headlines across articles, total word count, and bullet
// length variance -- as a pass/fail plus a list of warnings.
type PublishGate struct {
	thresholds PublishThresholds
}

func NewPublishGate(thresholds PublishThresholds) *PublishGate {
	if thresholds.MinTotalWords <= 0 {
		thresholds.MinTotalWords = 300
	}
	if thresholds.MaxLengthVariance <= 0 {
		thresholds.MaxLengthVariance = 4000
	}
	return &PublishGate{thresholds: thresholds}
}

// PublishReport is the gate's outcome, attached to Newsletter for the
// pipeline to log and for persistence to record alongside the render.
type PublishReport struct {
	Passed             bool
	Issues             []string
	TotalWords         int
	LengthVariance     float64
	DuplicateHeadlines []string
}

// Evaluate runs the cross-article checks over the assembled newsletter.
func (g *PublishGate) Evaluate(nl Newsletter) *PublishReport {
	report := &PublishReport{Issues: []string{}}

	report.DuplicateHeadlines = duplicateHeadlines(nl.Articles)
	for _, d := range report.DuplicateHeadlines {
		report.Issues = append(report.Issues, fmt.Sprintf("duplicate headline across articles: %q", d))
	}

	report.TotalWords = totalWordCount(nl)
	if report.TotalWords < g.thresholds.MinTotalWords {
		report.Issues = append(report.Issues, fmt.Sprintf("total word count %d below minimum %d", report.TotalWords, g.thresholds.MinTotalWords))
	}

	report.LengthVariance = bulletLengthVariance(nl.Articles)
	if report.LengthVariance > g.thresholds.MaxLengthVariance {
		report.Issues = append(report.Issues, fmt.Sprintf("bullet length variance %.0f exceeds %.0f", report.LengthVariance, g.thresholds.MaxLengthVariance))
	}

	report.Passed = len(report.DuplicateHeadlines) == 0 && report.TotalWords >= g.thresholds.MinTotalWords
	return report
}

// duplicateHeadlines flags display titles that normalize to the same
// string across more than one article -- distinct from dedup's S4
// Phase A near-duplicate grouping, which runs on raw content before
// titles are generated and never sees the final display titles.
func duplicateHeadlines(articles []core.ProcessedArticle) []string {
	seen := make(map[string]bool, len(articles))
	var dups []string
	for _, a := range articles {
		key := normalizeHeadline(a.DisplayTitle)
		if key == "" {
			continue
		}
		if seen[key] {
			dups = append(dups, a.DisplayTitle)
			continue
		}
		seen[key] = true
	}
	return dups
}

func normalizeHeadline(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func totalWordCount(nl Newsletter) int {
	count := 0
	for _, p := range nl.LeadParagraphs {
		count += len(strings.Fields(p))
	}
	for _, a := range nl.Articles {
		for _, b := range a.Bullets {
			count += len(strings.Fields(b))
		}
	}
	return count
}

// bulletLengthVariance returns the population variance of bullet rune
// lengths across every published article, a soft signal that some
// articles' bullets are wildly shorter or longer than the rest.
func bulletLengthVariance(articles []core.ProcessedArticle) float64 {
	var lengths []float64
	for _, a := range articles {
		for _, b := range a.Bullets {
			lengths = append(lengths, float64(len([]rune(b))))
		}
	}
	if len(lengths) < 2 {
		return 0
	}
	var mean float64
	for _, l := range lengths {
		mean += l
	}
	mean /= float64(len(lengths))

	var sumSq float64
	for _, l := range lengths {
		d := l - mean
		sumSq += d * d
	}
	return sumSq / float64(len(lengths))
}
