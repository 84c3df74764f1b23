package knowledge

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/deskpilot/deskpilot-cli/api/schemas"
)

// candidateLimit bounds how many rows a similarity query pulls back for
// in-process ranking. Ranking happens here rather than in SQL so the store
// works without the pgvector extension.
const candidateLimit = 512

// DBPool abstracts pgxpool.Pool for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// PostgresStore persists knowledge entries in PostgreSQL.
type PostgresStore struct {
	pool     DBPool
	embedder schemas.Embedder
	logger   *zap.Logger
}

// NewPostgresStore verifies the connection and ensures the schema exists.
func NewPostgresStore(ctx context.Context, pool DBPool, embedder schemas.Embedder, logger *zap.Logger) (*PostgresStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("cannot initialize postgres store with a nil embedder")
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &PostgresStore{
		pool:     pool,
		embedder: embedder,
		logger:   logger.Named("knowledge.postgres"),
	}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS knowledge_entries (
			id UUID PRIMARY KEY,
			abstract_prompt TEXT NOT NULL,
			original_prompt TEXT NOT NULL,
			code TEXT NOT NULL,
			embedding FLOAT8[] NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure knowledge schema: %w", err)
	}
	return nil
}

// Insert embeds the abstract prompt and writes the entry.
func (s *PostgresStore) Insert(ctx context.Context, entry schemas.KnowledgeEntry) error {
	vector, err := s.embedder.Embed(ctx, entry.AbstractPrompt)
	if err != nil {
		return fmt.Errorf("failed to embed abstract prompt: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO knowledge_entries (id, abstract_prompt, original_prompt, code, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6);
	`, entry.ID, entry.AbstractPrompt, entry.OriginalPrompt, entry.Code, toFloat64(vector), entry.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert knowledge entry: %w", err)
	}

	s.logger.Info("Knowledge entry stored",
		zap.String("id", entry.ID),
		zap.String("abstract_prompt", entry.AbstractPrompt),
	)
	return nil
}

// Query fetches recent candidates and ranks them by cosine similarity.
func (s *PostgresStore) Query(ctx context.Context, key string, topK int) ([]schemas.RetrievedExample, error) {
	if topK <= 0 {
		return nil, nil
	}

	keyVector, err := s.embedder.Embed(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query key: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT original_prompt, code, embedding
		FROM knowledge_entries
		ORDER BY created_at DESC
		LIMIT $1;
	`, candidateLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to query knowledge entries: %w", err)
	}
	defer rows.Close()

	type scored struct {
		example schemas.RetrievedExample
		score   float64
	}
	var ranked []scored
	for rows.Next() {
		var originalPrompt, code string
		var embedding []float64
		if err := rows.Scan(&originalPrompt, &code, &embedding); err != nil {
			return nil, fmt.Errorf("failed to scan knowledge row: %w", err)
		}
		ranked = append(ranked, scored{
			example: schemas.RetrievedExample{OriginalPrompt: originalPrompt, Code: code},
			score:   cosineSimilarity(keyVector, toFloat32(embedding)),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during knowledge row iteration: %w", err)
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if topK > len(ranked) {
		topK = len(ranked)
	}
	examples := make([]schemas.RetrievedExample, 0, topK)
	for _, r := range ranked[:topK] {
		examples = append(examples, r.example)
	}
	return examples, nil
}

// List returns every entry, oldest first.
func (s *PostgresStore) List(ctx context.Context) ([]schemas.KnowledgeEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, abstract_prompt, original_prompt, code, created_at
		FROM knowledge_entries
		ORDER BY created_at ASC;
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list knowledge entries: %w", err)
	}
	defer rows.Close()

	var entries []schemas.KnowledgeEntry
	for rows.Next() {
		var e schemas.KnowledgeEntry
		if err := rows.Scan(&e.ID, &e.AbstractPrompt, &e.OriginalPrompt, &e.Code, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan knowledge row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}
