package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"digestline/internal/config"
	"digestline/internal/llm"
	"digestline/internal/logger"
	"digestline/internal/persistence"
	"digestline/internal/pipeline"
	"digestline/internal/vectorstore"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "digestline",
	Short: "digestline assembles a daily AI-news newsletter from configured sources.",
	Long: `digestline runs the fetch -> relevance -> summarize -> dedup/context ->
cluster -> citation -> editorial pipeline over a set of configured news
sources and renders a Markdown newsletter.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. Called once by main.main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(backfillCmd)
	rootCmd.AddCommand(validateConfigCmd)
}

func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

// buildRouter constructs the LLM router from the configured providers,
// skipping any provider missing its API key per spec.md §6 (a provider
// with no credentials is simply absent from the router, never
// included-but-disabled).
func buildRouter(cfg *config.Config) (*llm.Router, error) {
	var providers []llm.Provider
	for _, p := range cfg.LLM.Providers {
		if p.APIKey == "" {
			continue
		}
		switch p.Name {
		case "gemini":
			prov, err := llm.NewGeminiProvider(p.Name, p.APIKey, p.Model, cfg.Embedding.Model)
			if err != nil {
				return nil, fmt.Errorf("cmd: gemini provider: %w", err)
			}
			providers = append(providers, prov)
		case "openai":
			prov, err := llm.NewOpenAIProvider(p.Name, p.APIKey, p.Model)
			if err != nil {
				return nil, fmt.Errorf("cmd: openai provider: %w", err)
			}
			providers = append(providers, prov)
		default:
			return nil, fmt.Errorf("cmd: unknown llm provider %q", p.Name)
		}
	}
	retry := llm.DefaultRetryPolicy()
	if cfg.LLM.MaxRetries > 0 {
		retry.PrimaryAttempts = cfg.LLM.MaxRetries
	}
	if cfg.LLM.BaseBackoff > 0 {
		retry.BaseBackoff = cfg.LLM.BaseBackoff
	}
	return llm.NewRouter(providers, retry)
}

// buildStore opens the relational store and the pgvector historical
// index over the same Postgres connection, when a DSN is configured.
// A missing DSN degrades gracefully: context analysis and persistence
// are skipped rather than aborting the run, matching spec.md §7's
// persistent-store failure taxonomy (logged, never fatal).
func buildStore(ctx context.Context, cfg *config.Config) (*persistence.Store, vectorstore.Index, error) {
	if cfg.Database.DSN == "" {
		return nil, nil, nil
	}
	store, err := persistence.Open(cfg.Database.DSN)
	if err != nil {
		return nil, nil, err
	}
	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("cmd: vector index connection: %w", err)
	}
	index, err := vectorstore.NewPostgresIndex(ctx, db, cfg.Embedding.Dimensions)
	if err != nil {
		return nil, nil, fmt.Errorf("cmd: vector index setup: %w", err)
	}
	return store, index, nil
}

func runOnce(log *cobraLogger, cfg *config.Config, opts pipeline.Options) error {
	ctx := context.Background()

	router, err := buildRouter(cfg)
	if err != nil {
		return err
	}
	// A dry run opens no store, so S4 Phase B neither searches nor
	// appends to the historical index.
	var store *persistence.Store
	var index vectorstore.Index
	if !opts.DryRun {
		store, index, err = buildStore(ctx, cfg)
		if err != nil {
			return err
		}
	}
	if store != nil {
		defer store.Close()
	}

	p := pipeline.New(cfg, router, index, store)
	result, err := p.Run(ctx, opts)
	if err != nil {
		return fmt.Errorf("cmd: pipeline run: %w", err)
	}

	log.summarize(result, opts)

	if opts.DryRun || result.Newsletter.Markdown == "" {
		return nil
	}
	outPath := fmt.Sprintf("%s/%s-%s.md", opts.OutputDir, time.Now().UTC().Format("2006-01-02"), opts.Edition)
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return fmt.Errorf("cmd: creating output dir: %w", err)
	}
	if err := os.WriteFile(outPath, []byte(result.Newsletter.Markdown), 0o644); err != nil {
		return fmt.Errorf("cmd: writing newsletter: %w", err)
	}
	fmt.Fprintf(os.Stdout, "wrote %s\n", outPath)
	return nil
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline once (or on a schedule) and render a newsletter.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		applyRunFlags(cmd, cfg)

		opts := pipeline.Options{
			MaxItems:  cfg.Run.MaxItems,
			Edition:   cfg.Run.Edition,
			OutputDir: cfg.Run.OutputDir,
			DryRun:    dryRun,
		}

		log := newCobraLogger()

		if schedule == "" {
			return runOnce(log, cfg, opts)
		}

		sched := cron.New()
		_, err = sched.AddFunc(schedule, func() {
			if err := runOnce(log, cfg, opts); err != nil {
				logger.Get().Error("scheduled run failed", "error", err)
			}
		})
		if err != nil {
			return fmt.Errorf("cmd: invalid --schedule expression: %w", err)
		}
		sched.Start()
		fmt.Fprintf(os.Stdout, "scheduled with cron expression %q, press Ctrl+C to stop\n", schedule)
		select {}
	},
}

var (
	maxItems    int
	edition     string
	outputDir   string
	dryRun      bool
	embedModel  string
	embedDims   int
	schedule    string
	backfillN   int
)

func init() {
	runCmd.Flags().IntVar(&maxItems, "max-items", 0, "cap the number of items entering relevance scoring (0 = config default)")
	runCmd.Flags().StringVar(&edition, "edition", "", "newsletter edition label (default from config)")
	runCmd.Flags().StringVar(&outputDir, "output-dir", "", "directory to write the rendered newsletter into")
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "run the pipeline without persisting or writing output")
	runCmd.Flags().StringVar(&embedModel, "embedding-model", "", "override the configured embedding model")
	runCmd.Flags().IntVar(&embedDims, "embedding-dimensions", 0, "override the configured embedding dimensionality")
	runCmd.Flags().StringVar(&schedule, "schedule", "", "cron expression; when set, run repeats on this schedule instead of once")

	backfillCmd.Flags().IntVar(&backfillN, "limit", 20, "number of past processing_logs rows to display")
}

func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("max-items") {
		cfg.Run.MaxItems = maxItems
	}
	if cmd.Flags().Changed("edition") {
		cfg.Run.Edition = edition
	}
	if cmd.Flags().Changed("output-dir") {
		cfg.Run.OutputDir = outputDir
	}
	if cmd.Flags().Changed("embedding-model") {
		cfg.Embedding.Model = embedModel
	}
	if cmd.Flags().Changed("embedding-dimensions") {
		cfg.Embedding.Dimensions = embedDims
	}
}

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "List recent runs recorded in the processing_logs table.",
	Long: `backfill inspects the relational store's processing_logs table and
reports past runs. It does not replay runs into the vector index; the
historical_items rows that each run's S4 context analysis appended are
what the next run's analyzer searches.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Database.DSN == "" {
			return fmt.Errorf("cmd: backfill requires database.dsn to be configured")
		}
		store, err := persistence.Open(cfg.Database.DSN)
		if err != nil {
			return err
		}
		defer store.Close()

		runs, err := store.RecentRuns(context.Background(), backfillN)
		if err != nil {
			return err
		}
		for _, r := range runs {
			fmt.Fprintf(os.Stdout, "%s %-10s %-8s articles=%d failed=%d tokens=%d\n",
				r.ProcessingDate.Format("2006-01-02"), r.Edition, r.Status, r.ArticlesProcessed, r.ArticlesFailed, r.TotalTokens)
		}
		return nil
	},
}

var validateConfigCmd = &cobra.Command{
	Use:   "validate-config",
	Short: "Load and validate the configuration file without running the pipeline.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "config OK: %d source(s), %d llm provider(s), edition=%q\n",
			len(cfg.Sources), len(cfg.LLM.Providers), cfg.Run.Edition)
		return nil
	},
}
