package clustering

import (
	"strings"

	"digestline/internal/core"
)

// domainKeywords is the curated keyword map spec.md §4.5 step 4 uses to
// classify each cluster member into coarse domain tags.
var domainKeywords = map[string][]string{
	"hr_recruitment":      {"hiring", "recruiter", "job posting", "layoff", "headcount", "talent acquisition"},
	"research_technical":  {"paper", "arxiv", "benchmark", "architecture", "training run", "model weights"},
	"economic_policy":     {"regulation", "senate", "policy", "antitrust", "legislation", "export control"},
	"business_finance":    {"funding round", "valuation", "ipo", "acquisition", "revenue", "earnings"},
	"product_tools":       {"launches", "feature", "app update", "release notes", "integration", "plugin"},
	"local_infrastructure": {"data center", "power grid", "zoning", "permit", "utility", "cooling"},
}

// exclusivePairs lists domain-tag pairs that must never co-occur within
// one cluster (spec.md §4.5 step 4).
var exclusivePairs = [][2]string{
	{"hr_recruitment", "research_technical"},
	{"hr_recruitment", "economic_policy"},
	{"local_infrastructure", "research_technical"},
}

// domainTags classifies an article's title+bullets text into zero or
// more coarse domain tags via keyword matching.
func domainTags(a core.ProcessedArticle) map[string]bool {
	text := strings.ToLower(a.Title + " " + strings.Join(a.Bullets, " "))
	tags := make(map[string]bool)
	for tag, keywords := range domainKeywords {
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				tags[tag] = true
				break
			}
		}
	}
	return tags
}

func pairConflicts(a, b map[string]bool) bool {
	for _, pair := range exclusivePairs {
		if (a[pair[0]] && b[pair[1]]) || (a[pair[1]] && b[pair[0]]) {
			return true
		}
	}
	return false
}

// rejectDomainConflicts implements spec.md §4.5 step 4: if any two
// members belong to a mutually-exclusive domain-tag pair, the whole
// cluster is rejected. Rather than discard the entire group outright,
// this drops the minority-tagged members so the remaining majority can
// still form a coherent cluster — the caller re-checks size/coherence
// afterward, matching "rejected and reconstituted as two smaller
// clusters or singletons" from spec.md §8 scenario 4.
func rejectDomainConflicts(members []core.ProcessedArticle) []core.ProcessedArticle {
	if len(members) < 2 {
		return members
	}
	tags := make([]map[string]bool, len(members))
	for i, m := range members {
		tags[i] = domainTags(m)
	}

	conflictCount := make([]int, len(members))
	hasConflict := false
	for i := range members {
		for j := range members {
			if i == j {
				continue
			}
			if pairConflicts(tags[i], tags[j]) {
				conflictCount[i]++
				hasConflict = true
			}
		}
	}
	if !hasConflict {
		return members
	}

	// Drop the members most entangled in conflicts until none remain.
	kept := make([]bool, len(members))
	for i := range kept {
		kept[i] = true
	}
	for {
		worst, worstCount := -1, 0
		for i, c := range conflictCount {
			if kept[i] && c > worstCount {
				worst, worstCount = i, c
			}
		}
		if worst == -1 {
			break
		}
		kept[worst] = false
		still := false
		for i := range members {
			if !kept[i] {
				continue
			}
			for j := range members {
				if i == j || !kept[j] {
					continue
				}
				if pairConflicts(tags[i], tags[j]) {
					still = true
				}
			}
		}
		if !still {
			break
		}
	}

	var out []core.ProcessedArticle
	for i, m := range members {
		if kept[i] {
			out = append(out, m)
		}
	}
	return out
}
