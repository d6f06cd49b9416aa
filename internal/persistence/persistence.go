// Package persistence implements spec.md §6's relational record store:
// the newsletter upsert keyed on (processing_date, edition, content_type),
// the processing-log upsert keyed on (processing_date, edition), the
// contextual-article upsert keyed on article_id, and
// the insert-only article-relationship log. Grounded on the teacher's
// internal/persistence/postgres.go connection-pool setup (SetMaxOpenConns,
// PingContext on open) and upsert idiom, generalized from the teacher's
// per-entity-repository shape (ArticleRepository, SummaryRepository, ...)
// to the four spec.md §6 tables, since this store's entities no longer
// match the teacher's article/summary/feed/digest model.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"digestline/internal/core"
)

// Store is the spec.md §6 relational record store.
type Store struct {
	db *sql.DB
}

// Open connects to Postgres and verifies connectivity, following the
// teacher's pool-settings convention.
func Open(connectionString string) (*Store, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("persistence: open: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("persistence: ping: %w", err)
	}

	s := &Store{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS processed_content (
			processing_date DATE NOT NULL,
			edition TEXT NOT NULL,
			content_type TEXT NOT NULL,
			title TEXT NOT NULL,
			lead_paragraph TEXT NOT NULL,
			articles_count INT NOT NULL,
			multi_source_topics INT NOT NULL,
			content_md TEXT NOT NULL,
			metadata JSONB,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (processing_date, edition, content_type)
		)`,
		`CREATE TABLE IF NOT EXISTS processing_logs (
			processing_date DATE NOT NULL,
			edition TEXT NOT NULL,
			status TEXT NOT NULL,
			articles_processed INT NOT NULL,
			articles_failed INT NOT NULL,
			llm_calls INT NOT NULL,
			total_tokens INT NOT NULL,
			processing_time_seconds DOUBLE PRECISION NOT NULL,
			data JSONB,
			error_details TEXT,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (processing_date, edition)
		)`,
		`CREATE TABLE IF NOT EXISTS contextual_articles (
			id TEXT NOT NULL,
			article_id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			content_summary TEXT NOT NULL,
			published_date TIMESTAMPTZ,
			source_url TEXT NOT NULL,
			source_id TEXT NOT NULL,
			topic_cluster TEXT,
			ai_relevance_score DOUBLE PRECISION NOT NULL,
			summary_points JSONB,
			japanese_title TEXT,
			is_update BOOLEAN NOT NULL DEFAULT false,
			embedding JSONB
		)`,
		`CREATE TABLE IF NOT EXISTS article_relationships (
			id BIGSERIAL PRIMARY KEY,
			parent_article_id TEXT NOT NULL,
			child_article_id TEXT NOT NULL,
			relationship_type TEXT NOT NULL,
			similarity_score DOUBLE PRECISION NOT NULL,
			reasoning TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("persistence: schema setup: %w", err)
		}
	}
	return nil
}

// ProcessedContent is one upserted newsletter record (spec.md §6).
type ProcessedContent struct {
	ProcessingDate    time.Time
	Edition           string
	ContentType       string
	Title             string
	LeadParagraph     string
	ArticlesCount     int
	MultiSourceTopics int
	ContentMD         string
	Metadata          map[string]any
}

// UpsertProcessedContent writes the rendered newsletter, keyed on
// (processing_date, edition, content_type). Failures here are treated
// by the caller per spec.md §7's persistent-store taxonomy: logged and
// swallowed, never fatal.
func (s *Store) UpsertProcessedContent(ctx context.Context, rec ProcessedContent) error {
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("persistence: marshal metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO processed_content
			(processing_date, edition, content_type, title, lead_paragraph, articles_count, multi_source_topics, content_md, metadata, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9, now())
		ON CONFLICT (processing_date, edition, content_type) DO UPDATE SET
			title = EXCLUDED.title, lead_paragraph = EXCLUDED.lead_paragraph,
			articles_count = EXCLUDED.articles_count, multi_source_topics = EXCLUDED.multi_source_topics,
			content_md = EXCLUDED.content_md, metadata = EXCLUDED.metadata, updated_at = now()`,
		rec.ProcessingDate, rec.Edition, rec.ContentType, rec.Title, rec.LeadParagraph,
		rec.ArticlesCount, rec.MultiSourceTopics, rec.ContentMD, meta,
	)
	if err != nil {
		return fmt.Errorf("persistence: upsert processed_content: %w", err)
	}
	return nil
}

// ProcessingLog is one upserted run-outcome record (spec.md §6).
type ProcessingLog struct {
	ProcessingDate         time.Time
	Edition                string
	Status                 core.RunStatus
	ArticlesProcessed      int
	ArticlesFailed         int
	LLMCalls               int
	TotalTokens            int
	ProcessingTimeSeconds  float64
	Data                   map[string]any
	ErrorDetails           string
}

// UpsertProcessingLog writes the run's final statistics, keyed on
// (processing_date, edition).
func (s *Store) UpsertProcessingLog(ctx context.Context, rec ProcessingLog) error {
	data, err := json.Marshal(rec.Data)
	if err != nil {
		return fmt.Errorf("persistence: marshal log data: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO processing_logs
			(processing_date, edition, status, articles_processed, articles_failed, llm_calls, total_tokens, processing_time_seconds, data, error_details, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10, now())
		ON CONFLICT (processing_date, edition) DO UPDATE SET
			status = EXCLUDED.status, articles_processed = EXCLUDED.articles_processed,
			articles_failed = EXCLUDED.articles_failed, llm_calls = EXCLUDED.llm_calls,
			total_tokens = EXCLUDED.total_tokens, processing_time_seconds = EXCLUDED.processing_time_seconds,
			data = EXCLUDED.data, error_details = EXCLUDED.error_details, updated_at = now()`,
		rec.ProcessingDate, rec.Edition, string(rec.Status), rec.ArticlesProcessed, rec.ArticlesFailed,
		rec.LLMCalls, rec.TotalTokens, rec.ProcessingTimeSeconds, data, rec.ErrorDetails,
	)
	if err != nil {
		return fmt.Errorf("persistence: upsert processing_log: %w", err)
	}
	return nil
}

// UpsertContextualArticle writes one published article's historical
// metadata, keyed on article_id (spec.md §6).
func (s *Store) UpsertContextualArticle(ctx context.Context, article core.ProcessedArticle) error {
	points, err := json.Marshal(article.Bullets)
	if err != nil {
		return fmt.Errorf("persistence: marshal summary points: %w", err)
	}
	embedding, err := json.Marshal(article.Embedding)
	if err != nil {
		return fmt.Errorf("persistence: marshal embedding: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO contextual_articles
			(id, article_id, title, content_summary, published_date, source_url, source_id, topic_cluster, ai_relevance_score, summary_points, japanese_title, is_update, embedding)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (article_id) DO UPDATE SET
			title = EXCLUDED.title, content_summary = EXCLUDED.content_summary,
			topic_cluster = EXCLUDED.topic_cluster, ai_relevance_score = EXCLUDED.ai_relevance_score,
			summary_points = EXCLUDED.summary_points, is_update = EXCLUDED.is_update, embedding = EXCLUDED.embedding`,
		article.ID, article.ID, article.Title, joinSummary(article.Bullets), article.PublishedAt,
		article.URL, article.SourceID, article.ClusterID, article.AIRelevanceScore, points,
		article.DisplayTitle, article.IsUpdate, embedding,
	)
	if err != nil {
		return fmt.Errorf("persistence: upsert contextual_article: %w", err)
	}
	return nil
}

func joinSummary(bullets []string) string {
	out := ""
	for i, b := range bullets {
		if i > 0 {
			out += " "
		}
		out += b
	}
	return out
}

// WriteRelationship inserts one article-relationship row; the table is
// insert-only per spec.md §6. This method satisfies the
// internal/context.RelationshipSink interface.
func (s *Store) WriteRelationship(ctx context.Context, rec core.RelationshipRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO article_relationships
			(parent_article_id, child_article_id, relationship_type, similarity_score, reasoning)
		VALUES ($1,$2,$3,$4,$5)`,
		rec.ParentItemID, rec.ChildItemID, string(rec.Kind), rec.Similarity, rec.Reasoning,
	)
	if err != nil {
		return fmt.Errorf("persistence: insert article_relationship: %w", err)
	}
	return nil
}

// RecentRuns lists processing logs for backfill/inspection (spec.md's
// backfill CLI command, SPEC_FULL.md's supplemented feature).
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]ProcessingLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT processing_date, edition, status, articles_processed, articles_failed, llm_calls, total_tokens, processing_time_seconds, error_details
		FROM processing_logs ORDER BY processing_date DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("persistence: recent runs: %w", err)
	}
	defer rows.Close()

	var out []ProcessingLog
	for rows.Next() {
		var rec ProcessingLog
		var status string
		var errDetails sql.NullString
		if err := rows.Scan(&rec.ProcessingDate, &rec.Edition, &status, &rec.ArticlesProcessed,
			&rec.ArticlesFailed, &rec.LLMCalls, &rec.TotalTokens, &rec.ProcessingTimeSeconds, &errDetails); err != nil {
			return nil, fmt.Errorf("persistence: scanning run row: %w", err)
		}
		rec.Status = core.RunStatus(status)
		rec.ErrorDetails = errDetails.String
		out = append(out, rec)
	}
	return out, rows.Err()
}
