package clustering

import (
	"context"
	"testing"

	"digestline/internal/core"
)

func embeddingFor(vals ...float32) core.Embedding { return core.Embedding(vals) }

func TestCluster_GroupsBySimilarity(t *testing.T) {
	articles := []core.ProcessedArticle{
		{ID: "a1", SourceID: "src-a", SourceName: "Techy", Title: "New model released", Bullets: []string{"b1", "b2", "b3"}, Embedding: embeddingFor(1, 0, 0)},
		{ID: "a2", SourceID: "src-b", SourceName: "Other", Title: "Model release details", Bullets: []string{"b1", "b2", "b3"}, Embedding: embeddingFor(0.95, 0.05, 0)},
		{ID: "a3", SourceID: "src-c", SourceName: "Unrelated", Title: "Sports result", Bullets: []string{"b1", "b2", "b3"}, Embedding: embeddingFor(0, 0, 1)},
	}

	c := NewClusterer(nil, Config{CoherenceThreshold: 0.5, MinClusterSize: 2, MaxClusters: 5, SimilarityThreshold: 0.8})
	clusters := c.Cluster(context.Background(), articles)

	if len(clusters) != 1 {
		t.Fatalf("expected 1 cluster, got %d", len(clusters))
	}
	if clusters[0].DistinctSourceCount() != 2 {
		t.Errorf("expected 2 distinct sources in cluster, got %d", clusters[0].DistinctSourceCount())
	}
}

func TestRejectDomainConflicts_DropsMinority(t *testing.T) {
	members := []core.ProcessedArticle{
		{ID: "a1", Title: "Startup hiring spree for recruiter roles", Bullets: []string{"hiring", "recruiter", "headcount"}},
		{ID: "a2", Title: "Another hiring announcement", Bullets: []string{"hiring", "job posting"}},
		{ID: "a3", Title: "New arxiv paper on model architecture", Bullets: []string{"paper", "benchmark", "training run"}},
	}
	out := rejectDomainConflicts(members)
	if len(out) != 2 {
		t.Fatalf("expected the minority (research) member dropped, got %d members", len(out))
	}
	for _, m := range out {
		if m.ID == "a3" {
			t.Errorf("expected a3 (research_technical) dropped from the hr_recruitment majority, got %+v", out)
		}
	}
}

func TestSelectRepresentative_PrefersHigherScore(t *testing.T) {
	members := []core.ProcessedArticle{
		{ID: "low", AIRelevanceScore: 0.2, Confidence: 0.2},
		{ID: "high", AIRelevanceScore: 0.8, Confidence: 0.8},
	}
	rep, siblings := selectRepresentative(members)
	if rep.ID != "high" {
		t.Errorf("expected high-scoring article as representative, got %s", rep.ID)
	}
	if len(siblings) != 1 || siblings[0].ID != "low" {
		t.Errorf("expected remaining member as sibling, got %+v", siblings)
	}
}
