// Package config loads digestline's configuration from a YAML file plus
// environment overrides, following the same viper+godotenv+mapstructure
// layering the rest of this codebase's ancestry uses.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the root configuration object, assembled from a config file,
// environment variables (prefixed DIGESTLINE_), and .env overrides.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Sources    []SourceConfig   `mapstructure:"sources"`
	Relevance  RelevanceConfig  `mapstructure:"relevance"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Dedup      DedupConfig      `mapstructure:"dedup"`
	Context    ContextConfig    `mapstructure:"context"`
	Clustering ClusteringConfig `mapstructure:"clustering"`
	Citations  CitationsConfig  `mapstructure:"citations"`
	Editorial  EditorialConfig  `mapstructure:"editorial"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding"`
	Run        RunConfig        `mapstructure:"run"`
}

// DedupConfig carries S4 Phase A's two distinct similarity knobs
// (spec.md DESIGN NOTES: detection vs. grouping are different knobs,
// not the same variable as in some reference code paths).
type DedupConfig struct {
	DetectionThreshold     float64 `mapstructure:"detection_threshold"`     // default 0.85
	ConsolidationThreshold float64 `mapstructure:"consolidation_threshold"` // default 0.55
}

// ContextConfig carries S4 Phase B's follow-up detection tunables.
type ContextConfig struct {
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"` // default 0.70
	TopK                int     `mapstructure:"top_k"`                // default 3
	MaxConcurrentLLM    int     `mapstructure:"max_concurrent_llm"`    // default 8
}

// EmbeddingConfig configures the embedding model/dimension used across
// S2/S4/S5 (spec.md §6 CLI surface: --embedding-model, --embedding-dimensions).
type EmbeddingConfig struct {
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
}

// RunConfig carries the spec.md §6 CLI surface defaults.
type RunConfig struct {
	MaxItems     int    `mapstructure:"max_items"`
	Edition      string `mapstructure:"edition"`
	OutputDir    string `mapstructure:"output_dir"`
	StageTimeout time.Duration `mapstructure:"stage_timeout"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// SourceConfig describes one S1 fetch source.
type SourceConfig struct {
	Name string `mapstructure:"name"`
	Kind string `mapstructure:"kind"` // "rss", "html", "video"
	URL  string `mapstructure:"url"`
}

type RelevanceConfig struct {
	Keywords       []string `mapstructure:"keywords"`
	MinScore       float64  `mapstructure:"min_score"`
	TargetPoolSize int      `mapstructure:"target_pool_size"`
	MaxPoolSize    int      `mapstructure:"max_pool_size"`
}

type LLMProviderConfig struct {
	Name        string  `mapstructure:"name"` // "gemini", "openai"
	Model       string  `mapstructure:"model"`
	APIKey      string  `mapstructure:"api_key"`
	Temperature float32 `mapstructure:"temperature"`
	TimeoutSec  int     `mapstructure:"timeout_sec"`
}

type LLMConfig struct {
	Providers      []LLMProviderConfig `mapstructure:"providers"`
	MaxRetries     int                 `mapstructure:"max_retries"`
	BaseBackoff    time.Duration       `mapstructure:"base_backoff"`
	MaxConcurrency int                 `mapstructure:"max_concurrency"`
}

type ClusteringConfig struct {
	SemanticCoherenceThreshold float64 `mapstructure:"semantic_coherence_threshold"`
	MinClusterSize             int     `mapstructure:"min_cluster_size"`
	KMeansThreshold             int    `mapstructure:"kmeans_threshold"`
}

type CitationsConfig struct {
	MinPerArticle int `mapstructure:"min_per_article"`
	MaxPerArticle int `mapstructure:"max_per_article"`
}

type EditorialConfig struct {
	MinArticles        int     `mapstructure:"min_articles"`
	MaxArticles        int     `mapstructure:"max_articles"`
	MinBullets         int     `mapstructure:"min_bullets"`
	MaxBullets         int     `mapstructure:"max_bullets"`
	QualityThreshold   float64 `mapstructure:"quality_threshold"`
	UpgradeMarker      string  `mapstructure:"upgrade_marker"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from path (if non-empty), merges .env and
// DIGESTLINE_-prefixed environment variables, and returns the validated
// Config.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // optional .env, missing file is not an error

	v := viper.New()
	v.SetEnvPrefix("DIGESTLINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: invalid: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("relevance.min_score", 0.45)
	v.SetDefault("relevance.target_pool_size", 9)
	v.SetDefault("relevance.max_pool_size", 40)
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.base_backoff", 500*time.Millisecond)
	v.SetDefault("llm.max_concurrency", 5)
	v.SetDefault("clustering.semantic_coherence_threshold", 0.75)
	v.SetDefault("clustering.min_cluster_size", 2)
	v.SetDefault("clustering.kmeans_threshold", 8)
	v.SetDefault("citations.min_per_article", 1)
	v.SetDefault("citations.max_per_article", 3)
	v.SetDefault("editorial.min_articles", 7)
	v.SetDefault("editorial.max_articles", 10)
	v.SetDefault("editorial.min_bullets", 3)
	v.SetDefault("editorial.max_bullets", 4)
	v.SetDefault("editorial.quality_threshold", 0.35)
	v.SetDefault("editorial.upgrade_marker", "[Update] ")
	v.SetDefault("dedup.detection_threshold", 0.85)
	v.SetDefault("dedup.consolidation_threshold", 0.55)
	v.SetDefault("context.similarity_threshold", 0.70)
	v.SetDefault("context.top_k", 3)
	v.SetDefault("context.max_concurrent_llm", 8)
	v.SetDefault("embedding.model", "text-embedding-004")
	v.SetDefault("embedding.dimensions", 768)
	v.SetDefault("run.max_items", 30)
	v.SetDefault("run.edition", "daily")
	v.SetDefault("run.output_dir", "drafts")
	v.SetDefault("run.stage_timeout", 10*time.Minute)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

func (c *Config) validate() error {
	if len(c.LLM.Providers) == 0 {
		return fmt.Errorf("llm.providers must list at least one provider")
	}
	if c.Editorial.MinArticles <= 0 || c.Editorial.MaxArticles < c.Editorial.MinArticles {
		return fmt.Errorf("editorial article window invalid: min=%d max=%d", c.Editorial.MinArticles, c.Editorial.MaxArticles)
	}
	if c.Citations.MinPerArticle <= 0 || c.Citations.MaxPerArticle < c.Citations.MinPerArticle {
		return fmt.Errorf("citations window invalid: min=%d max=%d", c.Citations.MinPerArticle, c.Citations.MaxPerArticle)
	}
	return nil
}
