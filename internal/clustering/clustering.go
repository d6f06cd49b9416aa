// Package clustering implements the S5 topic clusterer: density-based
// grouping of ProcessedArticles by embedding similarity, a domain- and
// semantic-coherence guard that rejects cross-domain mixing, and
// representative selection and labeling (spec.md §4.5). Grounded on the
// teacher's internal/clustering/clustering.go (KMeans centroid shape,
// AutoDetectOptimalClusters) and internal/quality/cluster_coherence.go
// (intra-cluster cosine-similarity scoring idiom), generalized from a
// single-algorithm clusterer to the density-first/KMeans-fallback
// pipeline spec.md names. The teacher's humilityai/hdbscan dependency is
// not carried forward (it appears nowhere else in the example pack and
// SPEC_FULL.md's DOMAIN STACK doesn't list it); the density pass below
// is a direct single-linkage connected-components construction over the
// cosine-similarity graph, which is what spec.md's "distance = 1 -
// cosine similarity, selection epsilon ≈ 1 - similarity-threshold"
// description actually specifies, without requiring a separate library.
package clustering

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"digestline/internal/core"
	"digestline/internal/llm"
)

// Config carries S5's tunables (spec.md §4.5, defaults from config.ClusteringConfig).
type Config struct {
	CoherenceThreshold float64 // overall coherence threshold, default 0.75
	MinClusterSize     int     // default 2
	MaxClusters        int     // KMeans fallback cap
	SimilarityThreshold float64 // density-pass edge threshold, default 0.75 (1 - epsilon)
}

func DefaultConfig() Config {
	return Config{CoherenceThreshold: 0.75, MinClusterSize: 2, MaxClusters: 10, SimilarityThreshold: 0.75}
}

// Clusterer runs S5 over a pool of context-processed articles.
type Clusterer struct {
	cfg    Config
	router *llm.Router
}

func NewClusterer(router *llm.Router, cfg Config) *Clusterer {
	return &Clusterer{cfg: cfg, router: router}
}

// Cluster runs the full S5 algorithm: density-based grouping with a
// KMeans fallback, the domain-coherence guard, the semantic-coherence
// guard, representative selection, and labeling.
func (c *Clusterer) Cluster(ctx context.Context, articles []core.ProcessedArticle) []core.TopicCluster {
	if len(articles) == 0 {
		return nil
	}

	groups := densityGroups(articles, c.cfg.SimilarityThreshold)
	if len(groups) == 0 {
		k := kmeansK(len(articles), c.cfg.MaxClusters, c.cfg.MinClusterSize)
		groups = kmeansGroups(articles, k)
	}

	var clusters []core.TopicCluster
	for _, idxs := range groups {
		if len(idxs) < c.cfg.MinClusterSize {
			continue
		}
		members := indexMembers(articles, idxs)
		members = rejectDomainConflicts(members)
		members = c.applySemanticGuard(members)
		if len(members) < c.cfg.MinClusterSize {
			continue
		}
		members = rejectDomainConflicts(members) // re-run after the semantic guard dropped members
		if len(members) < c.cfg.MinClusterSize {
			continue
		}
		if meanCoherence(members) < c.cfg.CoherenceThreshold {
			continue
		}

		rep, siblings := selectRepresentative(members)
		cluster := core.TopicCluster{
			ID:             fmt.Sprintf("cluster-%s", rep.ID),
			Representative: rep,
			Siblings:       siblings,
			Confidence:     meanCoherence(members),
		}
		cluster.TopicName = c.name(ctx, cluster)
		clusters = append(clusters, cluster)
	}
	return clusters
}

// PrioritizeMultiSource orders clusters by spec.md §4.5's multi-source
// priority mode: importance = 0.4*source_diversity + 0.2*article_count
// + 0.2*coherence + 0.2*avg_relevance + a 0.05 premium-source bonus,
// descending.
func PrioritizeMultiSource(clusters []core.TopicCluster) []core.TopicCluster {
	type scored struct {
		cluster    core.TopicCluster
		importance float64
	}
	scoredClusters := make([]scored, 0, len(clusters))
	for _, cl := range clusters {
		members := cl.AllMembers()
		diversity := normalizedDiversity(cl.DistinctSourceCount())
		countScore := normalizedCount(len(members))
		avgRelevance := avgRelevance(members)
		premium := premiumBonus(members)
		importance := 0.4*diversity + 0.2*countScore + 0.2*cl.Confidence + 0.2*avgRelevance + premium
		scoredClusters = append(scoredClusters, scored{cluster: cl, importance: importance})
	}
	sort.SliceStable(scoredClusters, func(i, j int) bool {
		return scoredClusters[i].importance > scoredClusters[j].importance
	})
	out := make([]core.TopicCluster, len(scoredClusters))
	for i, s := range scoredClusters {
		out[i] = s.cluster
	}
	return out
}

func normalizedDiversity(n int) float64 {
	if n <= 1 {
		return 0
	}
	if n >= 3 {
		return 1
	}
	return 0.6
}

func normalizedCount(n int) float64 {
	switch {
	case n >= 5:
		return 1
	case n <= 1:
		return 0.2
	default:
		return float64(n) / 5.0
	}
}

func avgRelevance(members []core.ProcessedArticle) float64 {
	if len(members) == 0 {
		return 0
	}
	var sum float64
	for _, m := range members {
		sum += m.AIRelevanceScore
	}
	return sum / float64(len(members))
}

var premiumSources = map[string]bool{
	"reuters": true, "bloomberg": true, "the verge": true, "techcrunch": true,
	"mit technology review": true, "wired": true, "ars technica": true, "axios": true,
}

func premiumBonus(members []core.ProcessedArticle) float64 {
	for _, m := range members {
		if premiumSources[strings.ToLower(m.SourceName)] {
			return 0.05
		}
	}
	return 0
}

// selectRepresentative scores each member per spec.md §4.4's
// representative scoring and returns (representative, remaining members
// as siblings). The score has no source-diversity term; cluster-level
// source diversity is weighted in PrioritizeMultiSource.
func selectRepresentative(members []core.ProcessedArticle) (core.ProcessedArticle, []core.ProcessedArticle) {
	best := 0
	bestScore := -1.0
	for i, m := range members {
		score := representativeScore(m)
		if score > bestScore {
			bestScore = score
			best = i
		}
	}
	rep := members[best]
	siblings := make([]core.ProcessedArticle, 0, len(members)-1)
	for i, m := range members {
		if i != best {
			siblings = append(siblings, m)
		}
	}
	return rep, siblings
}

func representativeScore(m core.ProcessedArticle) float64 {
	score := m.AIRelevanceScore + m.Confidence
	if premiumSources[strings.ToLower(m.SourceName)] {
		score += 0.1
	}
	contentLen := 0
	for _, b := range m.Bullets {
		contentLen += len(b)
	}
	lengthBonus := float64(contentLen) / 2000.0
	if lengthBonus > 0.1 {
		lengthBonus = 0.1
	}
	score += lengthBonus
	daysOld := 10.0
	if !m.PublishedAt.IsZero() {
		daysOld = float64(daysSince(m.PublishedAt))
	}
	recencyBonus := 0.1 * (1.0 - clamp01(daysOld/10.0))
	score += recencyBonus
	return score
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// genericLabelRe rejects labels too generic to be useful (spec.md §4.5
// step 7's "reject generic labels (regex denylist)").
var genericLabelRe = regexp.MustCompile(`(?i)^(ai news|technology update|various topics|ai developments|news summary)$`)

func (c *Clusterer) name(ctx context.Context, cluster core.TopicCluster) string {
	if c.router != nil {
		members := cluster.AllMembers()
		var sb strings.Builder
		for _, m := range members {
			sb.WriteString("- " + m.Title + "\n")
			for _, b := range m.Bullets {
				sb.WriteString("  " + b + "\n")
			}
		}
		system := "Produce a concise 3-6 word topic label for this group of related news items. Respond with only the label, no punctuation wrapper."
		label, _, err := c.router.GenerateTitle(ctx, system, sb.String())
		label = strings.TrimSpace(label)
		if err == nil && label != "" && !genericLabelRe.MatchString(label) {
			return label
		}
	}
	return keywordLabel(cluster.AllMembers())
}

// keywordLabel is spec.md §4.5 step 7's fallback: most common proper
// noun + most common technical term across member titles/bullets.
func keywordLabel(members []core.ProcessedArticle) string {
	properCounts := map[string]int{}
	termCounts := map[string]int{}
	properRe := regexp.MustCompile(`\b[A-Z][a-zA-Z0-9]{2,}\b`)
	for _, m := range members {
		text := m.Title + " " + strings.Join(m.Bullets, " ")
		for _, p := range properRe.FindAllString(text, -1) {
			properCounts[p]++
		}
		lower := strings.ToLower(text)
		for term := range domainKeywords {
			if strings.Contains(lower, term) {
				termCounts[term]++
			}
		}
	}
	proper := topKey(properCounts)
	term := topKey(termCounts)
	switch {
	case proper != "" && term != "":
		return proper + " " + term
	case proper != "":
		return proper
	case term != "":
		return term
	default:
		return "AI industry update"
	}
}

func topKey(counts map[string]int) string {
	best := ""
	bestN := 0
	for k, n := range counts {
		if n > bestN {
			bestN = n
			best = k
		}
	}
	return best
}

func daysSince(t time.Time) int {
	d := time.Since(t)
	if d < 0 {
		return 0
	}
	return int(d.Hours() / 24)
}
