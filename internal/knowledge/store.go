package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

// ErrDimensionMismatch indicates the embedder produced a vector whose
// dimension disagrees with the configured store dimension. This is a fatal
// configuration error, never retried: the stored vectors and the embedding
// model no longer agree.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// DB is the database surface the Store needs; *pgxpool.Pool satisfies it.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store performs vector similarity search over the documents table.
// Safe for concurrent use.
type Store struct {
	db        DB
	embedder  Embedder
	dimension int
	logger    *slog.Logger
}

// New creates a Store. dimension is the vector column width fixed at
// deployment time.
func New(db DB, embedder Embedder, dimension int, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, embedder: embedder, dimension: dimension, logger: logger}
}

// Search embeds the query and returns the top-k nearest documents by cosine
// similarity, highest first. Ties are broken by lower document id, so
// repeated calls over a fixed document set return the same ordering.
func (s *Store) Search(ctx context.Context, query string, opts ...SearchOption) ([]Result, error) {
	cfg := buildSearchConfig(opts)

	embedding, err := s.embed(ctx, query)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx,
		`SELECT id, content, metadata, created_at, 1 - (embedding <=> $1) AS similarity
		 FROM documents
		 WHERE embedding IS NOT NULL
		 ORDER BY embedding <=> $1, id
		 LIMIT $2`,
		pgvector.NewVector(embedding), cfg.topK,
	)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var (
			r            Result
			metadataJSON []byte
		)
		if err := rows.Scan(&r.Document.ID, &r.Document.Content, &metadataJSON,
			&r.Document.CreatedAt, &r.Similarity); err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &r.Document.Metadata); err != nil {
				s.logger.Warn("failed to parse document metadata",
					"document_id", r.Document.ID, "error", err)
				r.Document.Metadata = map[string]string{}
			}
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search results: %w", err)
	}

	s.logger.Debug("vector search completed", "query_len", len(query), "hits", len(results))
	return results, nil
}

// EmbedMissing backfills embeddings for documents ingested without one.
// Called at startup so stored vectors always come from the configured model.
func (s *Store) EmbedMissing(ctx context.Context) (int, error) {
	rows, err := s.db.Query(ctx, `SELECT id, content FROM documents WHERE embedding IS NULL`)
	if err != nil {
		return 0, fmt.Errorf("finding unembedded documents: %w", err)
	}

	type pending struct {
		id      int64
		content string
	}
	var docs []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.id, &p.content); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scanning unembedded document: %w", err)
		}
		docs = append(docs, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterating unembedded documents: %w", err)
	}

	for _, doc := range docs {
		embedding, err := s.embed(ctx, doc.content)
		if err != nil {
			return 0, fmt.Errorf("embedding document %d: %w", doc.id, err)
		}
		_, err = s.db.Exec(ctx,
			`UPDATE documents SET embedding = $1 WHERE id = $2`,
			pgvector.NewVector(embedding), doc.id,
		)
		if err != nil {
			return 0, fmt.Errorf("storing embedding for document %d: %w", doc.id, err)
		}
	}

	if len(docs) > 0 {
		s.logger.Info("generated embeddings", "count", len(docs))
	}
	return len(docs), nil
}

// embed calls the embedder and enforces the dimension contract.
func (s *Store) embed(ctx context.Context, text string) ([]float32, error) {
	embedding, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("generating embedding: %w", err)
	}
	if len(embedding) != s.dimension {
		return nil, fmt.Errorf("%w: embedder produced %d dimensions, store configured for %d",
			ErrDimensionMismatch, len(embedding), s.dimension)
	}
	return embedding, nil
}
