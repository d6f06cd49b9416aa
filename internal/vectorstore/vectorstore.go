// Package vectorstore is the historical vector index S4 Phase B queries
// for follow-up detection (spec.md §6): append(id, vector, metadata),
// search(query_vector, k), persist(). Grounded on the teacher's
// internal/vectorstore/pgvector.go (cosine `<=>` queries, idempotent
// HNSW index creation), with manual []float64-to-pgvector-literal string
// building replaced by github.com/pgvector/pgvector-go's typed Vector,
// per SPEC_FULL.md's DOMAIN STACK (seen in
// Tsuchiya2-catchup-feed-backend's article_embedding_repo.go).
package vectorstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	"digestline/internal/core"
)

// HistoricalRecord is the persisted shape of a previously published item
// (spec.md §3), stored in the historical_items table and used to detect
// follow-ups. Records are not cached in memory.
type HistoricalRecord struct {
	ItemID         string
	Title          string
	SummaryText    string
	PublishedAt    time.Time
	SourceID       string
	RelevanceScore float64
	Embedding      core.Embedding
	LocalizedTitle string
	IsUpdate       bool
	TopicCluster   string
}

// Match is one nearest-neighbor hit from Search.
type Match struct {
	Record     HistoricalRecord
	Similarity float64
}

// Index is the historical vector store's operations (spec.md §6).
// Appends must be serialized by a single writer even while reads run
// concurrently (spec.md §5); S4 Phase B's Analyzer holds a mutex around
// its Append calls while its searches run in parallel.
type Index interface {
	Append(ctx context.Context, rec HistoricalRecord) error
	Search(ctx context.Context, query core.Embedding, k int) ([]Match, error)
	Persist(ctx context.Context) error
	Dimension() int
}

// PostgresIndex implements Index over a pgvector-enabled Postgres table.
type PostgresIndex struct {
	db  *sql.DB
	dim int
}

// NewPostgresIndex opens the historical index, creating the backing
// table and HNSW index idempotently if they don't already exist.
// dimension must match the configured embedding model's output size and
// is fixed for the life of the index (spec.md §3 invariant 7); a
// mismatch against an existing table aborts construction.
func NewPostgresIndex(ctx context.Context, db *sql.DB, dimension int) (*PostgresIndex, error) {
	idx := &PostgresIndex{db: db, dim: dimension}
	if err := idx.ensureSchema(ctx); err != nil {
		return nil, err
	}
	if err := idx.checkDimension(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

func (idx *PostgresIndex) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS historical_items (
			item_id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			summary_text TEXT NOT NULL,
			published_at TIMESTAMPTZ NOT NULL,
			source_id TEXT NOT NULL,
			ai_relevance_score DOUBLE PRECISION NOT NULL,
			embedding vector(%d) NOT NULL,
			localized_title TEXT,
			is_update BOOLEAN NOT NULL DEFAULT false,
			topic_cluster TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, idx.dim),
		`CREATE INDEX IF NOT EXISTS historical_items_embedding_hnsw
			ON historical_items USING hnsw (embedding vector_cosine_ops)`,
	}
	for _, stmt := range stmts {
		if _, err := idx.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("vectorstore: schema setup: %w", err)
		}
	}
	return nil
}

func (idx *PostgresIndex) checkDimension(ctx context.Context) error {
	var existing int
	err := idx.db.QueryRowContext(ctx, `
		SELECT atttypmod FROM pg_attribute
		WHERE attrelid = 'historical_items'::regclass AND attname = 'embedding'`,
	).Scan(&existing)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("vectorstore: checking embedding dimension: %w", err)
	}
	if existing > 0 && existing != idx.dim {
		return fmt.Errorf("vectorstore: embedding dimension mismatch: index has %d, run configured %d", existing, idx.dim)
	}
	return nil
}

func (idx *PostgresIndex) Dimension() int { return idx.dim }

// Append upserts one historical record. Append-only within a run per
// spec.md §4/§5; an upsert still guards against accidental re-ingestion
// of the same item id within a single run.
func (idx *PostgresIndex) Append(ctx context.Context, rec HistoricalRecord) error {
	if len(rec.Embedding) != idx.dim {
		return fmt.Errorf("vectorstore: embedding has %d dimensions, index expects %d", len(rec.Embedding), idx.dim)
	}
	vec := pgvector.NewVector(toFloat32(rec.Embedding))
	_, err := idx.db.ExecContext(ctx, `
		INSERT INTO historical_items
			(item_id, title, summary_text, published_at, source_id, ai_relevance_score, embedding, localized_title, is_update, topic_cluster)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (item_id) DO UPDATE SET
			title = EXCLUDED.title, summary_text = EXCLUDED.summary_text, is_update = EXCLUDED.is_update,
			topic_cluster = EXCLUDED.topic_cluster`,
		rec.ItemID, rec.Title, rec.SummaryText, rec.PublishedAt, rec.SourceID, rec.RelevanceScore,
		vec, rec.LocalizedTitle, rec.IsUpdate, rec.TopicCluster,
	)
	if err != nil {
		return fmt.Errorf("vectorstore: append: %w", err)
	}
	return nil
}

// Search returns the k nearest historical records by cosine similarity.
func (idx *PostgresIndex) Search(ctx context.Context, query core.Embedding, k int) ([]Match, error) {
	if len(query) != idx.dim {
		return nil, fmt.Errorf("vectorstore: query embedding has %d dimensions, index expects %d", len(query), idx.dim)
	}
	vec := pgvector.NewVector(toFloat32(query))
	rows, err := idx.db.QueryContext(ctx, `
		SELECT item_id, title, summary_text, published_at, source_id, ai_relevance_score,
			embedding, localized_title, is_update, topic_cluster,
			1 - (embedding <=> $1) AS similarity
		FROM historical_items
		ORDER BY embedding <=> $1
		LIMIT $2`, vec, k)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: search: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var rec HistoricalRecord
		var emb pgvector.Vector
		var localized sql.NullString
		var topic sql.NullString
		var sim float64
		if err := rows.Scan(&rec.ItemID, &rec.Title, &rec.SummaryText, &rec.PublishedAt, &rec.SourceID,
			&rec.RelevanceScore, &emb, &localized, &rec.IsUpdate, &topic, &sim); err != nil {
			return nil, fmt.Errorf("vectorstore: scanning search row: %w", err)
		}
		rec.Embedding = toEmbedding(emb.Slice())
		rec.LocalizedTitle = localized.String
		rec.TopicCluster = topic.String
		matches = append(matches, Match{Record: rec, Similarity: sim})
	}
	return matches, rows.Err()
}

// Persist is a no-op for the Postgres-backed index: every Append already
// commits synchronously. It exists to satisfy spec.md §6's operation
// contract; the pipeline does not call it.
func (idx *PostgresIndex) Persist(ctx context.Context) error { return nil }

func toFloat32(e core.Embedding) []float32 { return []float32(e) }

func toEmbedding(f []float32) core.Embedding { return core.Embedding(f) }
