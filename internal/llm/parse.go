package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"digestline/internal/quality"
)

// summaryPayload is the schema a provider's structured-output JSON is
// validated against (spec.md §4.3).
type summaryPayload struct {
	Bullets []string `json:"bullets"`
}

var fencedJSONRe = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

var numberedPrefixRe = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+`)

// ParseBullets implements spec.md §4.3's tolerant output parsing chain:
// (a) direct JSON, (b) JSON in a fenced block, (c) an unfenced JSON
// object located by brace-matching, (d) a bullet/sentence fallback.
// Returns an error only when none of the four shapes yield 3-4 usable
// bullets, so callers can trigger the one-retry-then-degrade policy.
func ParseBullets(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)

	if bullets, ok := tryJSON(raw); ok {
		return bullets, nil
	}
	if m := fencedJSONRe.FindStringSubmatch(raw); m != nil {
		if bullets, ok := tryJSON(m[1]); ok {
			return bullets, nil
		}
	}
	if obj, ok := findBraceMatchedJSON(raw); ok {
		if bullets, ok := tryJSON(obj); ok {
			return bullets, nil
		}
	}

	bullets := bulletFallback(raw)
	if len(bullets) < 3 {
		return nil, fmt.Errorf("llm: could not parse a 3-4 bullet summary from response")
	}
	if len(bullets) > 4 {
		bullets = bullets[:4]
	}
	return bullets, nil
}

func tryJSON(s string) ([]string, bool) {
	var payload summaryPayload
	if err := json.Unmarshal([]byte(s), &payload); err != nil {
		return nil, false
	}
	bullets := cleanBullets(payload.Bullets)
	if len(bullets) < 3 || len(bullets) > 4 {
		return nil, false
	}
	return bullets, true
}

// findBraceMatchedJSON scans for the first balanced {...} span, tolerant
// of surrounding prose a provider sometimes wraps its JSON in.
func findBraceMatchedJSON(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// bulletFallback splits free-text into sentence-like bullets when no
// JSON shape was recoverable: split on bullet markers or sentence
// terminators, strip meta-preambles, and keep sentences >=30 chars.
func bulletFallback(raw string) []string {
	raw = quality.StripMetaArtifacts(raw)

	lines := strings.Split(raw, "\n")
	var candidates []string
	hasMarkers := false
	for _, l := range lines {
		trimmed := strings.TrimSpace(l)
		l = numberedPrefixRe.ReplaceAllString(trimmed, "")
		if l == "" {
			continue
		}
		if numberedPrefixRe.MatchString(trimmed) {
			hasMarkers = true
		}
		candidates = append(candidates, l)
	}
	if !hasMarkers || len(candidates) < 3 {
		// No reliable line structure: split the whole blob into sentences.
		candidates = splitSentences(raw)
	}

	var bullets []string
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if len([]rune(c)) >= 30 {
			bullets = append(bullets, c)
		}
	}
	return bullets
}

var sentenceSplitRe = regexp.MustCompile(`(?:[.!?]|。|！|？)\s+`)

func splitSentences(s string) []string {
	parts := sentenceSplitRe.Split(s, -1)
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func cleanBullets(bullets []string) []string {
	var out []string
	for _, b := range bullets {
		b = strings.TrimSpace(b)
		if b != "" {
			out = append(out, b)
		}
	}
	return out
}

// StripMetaArtifacts re-exports quality.StripMetaArtifacts for callers
// that only import the llm package.
func StripMetaArtifacts(s string) string {
	return quality.StripMetaArtifacts(s)
}
