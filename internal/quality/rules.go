// Package quality implements the content validation rules shared across
// stages (spec.md §4.8): bullet count/length, forbidden tokens, terminal
// sentence forms, specificity, politeness consistency, repetition, and
// meta-artifact stripping. Grounded on the teacher's
// internal/quality/cluster_coherence.go scoring idiom (thresholds plus
// an Issues/Passed shape), generalized from cluster-only coherence
// scoring to the full per-text validation rule set spec.md names.
package quality

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Level is the coarse quality bucket a Score maps to.
type Level string

const (
	LevelFailed     Level = "FAILED"
	LevelExcellent  Level = "EXCELLENT"
	LevelGood       Level = "GOOD"
	LevelAcceptable Level = "ACCEPTABLE"
	LevelPoor       Level = "POOR"
)

// Report is the outcome of validating one piece of generated prose.
type Report struct {
	Score    float64
	Level    Level
	Errors   []string
	Warnings []string
	Infos    []string
}

func (r *Report) addError(msg string)   { r.Errors = append(r.Errors, msg) }
func (r *Report) addWarning(msg string) { r.Warnings = append(r.Warnings, msg) }
func (r *Report) addInfo(msg string)    { r.Infos = append(r.Infos, msg) }

func (r *Report) finalize() *Report {
	score := 1.0 - 0.3*float64(len(r.Errors)) - 0.1*float64(len(r.Warnings)) - 0.05*float64(len(r.Infos))
	if score < 0 {
		score = 0
	}
	r.Score = score
	switch {
	case len(r.Errors) > 0:
		r.Level = LevelFailed
	case score >= 0.9:
		r.Level = LevelExcellent
	case score >= 0.8:
		r.Level = LevelGood
	case score >= 0.6:
		r.Level = LevelAcceptable
	default:
		r.Level = LevelPoor
	}
	return r
}

// demonstrativePronouns is the reference-language closed class spec.md
// §4.8 forbids in bullets ("この", "その", "あの", "どの") plus the
// English equivalents used when the output language is English.
var demonstrativePronouns = []string{"この", "その", "あの", "どの", "this one", "that one"}

// terminalRe recognizes a sentence-terminal ending: the reference
// language's polite/plain verb endings and punctuation, or an ASCII
// sentence terminator for English output.
var terminalRe = regexp.MustCompile(`(です|ます|した|きます|だ|である|。)$|[.!?]$`)

var sentenceTerminators = map[rune]bool{'。': true, '.': true, '!': true, '?': true}

// EvaluateBullets applies spec.md §4.8's bullet rules: 3-4 bullets,
// length window, forbidden demonstratives, terminal form, specificity
// (number or proper noun), politeness-consistency, and cross-bullet
// repetition. minLen/maxLen let callers pass the summary window (20-150)
// or the citation-summary window (60-120).
func EvaluateBullets(bullets []string, minLen, maxLen int) *Report {
	r := &Report{}
	if len(bullets) < 3 || len(bullets) > 4 {
		r.addError("bullet count outside 3-4 window")
	}

	tokenCounts := map[string]int{}
	politeCount, plainCount := 0, 0

	for i, b := range bullets {
		n := utf8.RuneCountInString(b)
		if n < minLen || n > maxLen {
			r.addError("bullet length outside window")
		}
		for _, d := range demonstrativePronouns {
			if strings.Contains(b, d) {
				r.addError("forbidden demonstrative pronoun in bullet")
				break
			}
		}
		if !terminalRe.MatchString(strings.TrimSpace(b)) {
			r.addWarning("bullet missing recognized sentence terminator")
		}
		if !hasNumberOrProperNoun(b) {
			r.addWarning("bullet lacks a number or proper noun")
		}
		if strings.Contains(b, "です") || strings.Contains(b, "ます") {
			politeCount++
		} else if strings.HasSuffix(strings.TrimSpace(b), "だ") || strings.HasSuffix(strings.TrimSpace(b), "である") {
			plainCount++
		}
		for _, tok := range contentTokens(b) {
			tokenCounts[tok]++
		}
		_ = i
	}

	total := politeCount + plainCount
	if total > 0 {
		minority := plainCount
		if politeCount < plainCount {
			minority = politeCount
		}
		if float64(minority)/float64(total) > 0.30 {
			r.addWarning("politeness form mixed beyond 30% ratio")
		}
	}

	for tok, c := range tokenCounts {
		if c > 2 && len(tok) > 2 {
			r.addWarning("content token '" + tok + "' repeats more than twice across bullets")
			break
		}
	}

	return r.finalize()
}

var properNounRe = regexp.MustCompile(`[A-Z][a-zA-Z0-9]+`)
var numberRe = regexp.MustCompile(`[0-9]`)
var katakanaRe = regexp.MustCompile(`[\p{Katakana}]{2,}`)

func hasNumberOrProperNoun(s string) bool {
	return numberRe.MatchString(s) || properNounRe.MatchString(s) || katakanaRe.MatchString(s)
}

var wordRe = regexp.MustCompile(`[A-Za-z]{4,}`)

func contentTokens(s string) []string {
	return wordRe.FindAllString(strings.ToLower(s), -1)
}

// EnsureTerminator appends a sentence-ending punctuation mark to s when
// it doesn't already end with one recognized by terminalRe, per spec.md
// §4.8's auto-append remediation.
func EnsureTerminator(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	if r, _ := utf8.DecodeLastRuneInString(s); sentenceTerminators[r] {
		return s
	}
	if terminalRe.MatchString(s) {
		return s
	}
	return s + "。"
}

// metaPreambleRe matches acknowledgment/preamble phrases a model
// sometimes prepends before its actual answer, in English and the
// reference language.
var metaPreambleRe = regexp.MustCompile(`(?i)^(understood[,:]?\s*|here (is|are)[^:]*:\s*|as you asked[,:]?\s*|translation:\s*|summary:\s*|承知しました[。、]?\s*|以下(の|が)(要約|内容)です[。:]?\s*)+`)
var numberedPrefixRe = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+`)
var quotedWrapRe = regexp.MustCompile(`^["“](.*)["”]$`)

// StripMetaArtifacts implements spec.md §4.8's meta-artifact removal:
// strip leading acknowledgment phrases, markdown fences, numbered
// prefixes, and collapse a quote wrap that encloses the whole content.
// If the cleaned result is empty, the caller should treat it as empty
// rather than fabricate content.
func StripMetaArtifacts(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "`")
	s = metaPreambleRe.ReplaceAllString(s, "")
	s = numberedPrefixRe.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	if m := quotedWrapRe.FindStringSubmatch(s); m != nil {
		s = strings.TrimSpace(m[1])
	}
	return s
}

// EvaluateText validates a single piece of prose (a title, a lead
// paragraph, a citation summary) against the length window and the
// shared forbidden-token/terminal rules, without the bullet-count or
// cross-bullet checks that only apply to summaries.
func EvaluateText(s string, minLen, maxLen int) *Report {
	r := &Report{}
	n := utf8.RuneCountInString(s)
	if n < minLen || n > maxLen {
		r.addError("text length outside window")
	}
	for _, d := range demonstrativePronouns {
		if strings.Contains(s, d) {
			r.addError("forbidden demonstrative pronoun")
			break
		}
	}
	if !hasNumberOrProperNoun(s) {
		r.addInfo("text lacks a number or proper noun")
	}
	return r.finalize()
}

// ProductionModeExtra applies the S7 output-gate's additional production
// checks (spec.md §4.8): bullets shorter than 50 chars are errors, and a
// title shorter than 20 chars needs at least one AI/tech-domain token.
func ProductionModeExtra(r *Report, text string, isBullet bool, hasDomainToken bool) {
	n := utf8.RuneCountInString(text)
	if isBullet && n < 50 {
		r.addError("production mode: bullet shorter than 50 chars")
	}
	if !isBullet && n < 20 && !hasDomainToken {
		r.addError("production mode: short title lacks an AI/tech-domain token")
	}
}
