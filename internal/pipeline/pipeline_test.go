package pipeline

import (
	"context"
	"testing"
	"time"

	"digestline/internal/config"
)

func TestNew_BuildsPipelineWithoutPanicking(t *testing.T) {
	cfg := &config.Config{
		Run: config.RunConfig{StageTimeout: 10 * time.Minute, Edition: "daily"},
		LLM: config.LLMConfig{MaxConcurrency: 5},
	}
	p := New(cfg, nil, nil, nil)
	if p == nil {
		t.Fatal("expected non-nil pipeline")
	}
}

func TestRun_EmptySourcesProducesZeroArticles(t *testing.T) {
	cfg := &config.Config{
		Run:       config.RunConfig{StageTimeout: 10 * time.Minute, Edition: "daily"},
		LLM:       config.LLMConfig{MaxConcurrency: 5},
		Editorial: config.EditorialConfig{MinArticles: 7, MaxArticles: 10, QualityThreshold: 0.35, UpgradeMarker: "[Update] "},
	}
	p := New(cfg, nil, nil, nil)
	result, err := p.Run(context.Background(), Options{DryRun: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Newsletter.Articles) != 0 {
		t.Errorf("expected zero articles with no sources, got %d", len(result.Newsletter.Articles))
	}
}
