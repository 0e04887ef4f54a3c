package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// EmbeddingRepository caches reference embeddings in a pgvector column
type EmbeddingRepository struct {
	pool *Pool
}

// NewEmbeddingRepository creates a new PostgreSQL embedding repository
func NewEmbeddingRepository(pool *Pool) *EmbeddingRepository {
	return &EmbeddingRepository{pool: pool}
}

// GetEmbedding returns the cached embedding of an employee image, or nil if not cached
func (r *EmbeddingRepository) GetEmbedding(ctx context.Context, employeeID, imageHash, model string) ([]float32, error) {
	query := `
		SELECT embedding
		FROM employee_embeddings
		WHERE employee_id = $1 AND image_hash = $2 AND model = $3
	`

	var vec pgvector.Vector
	err := r.pool.QueryRow(ctx, query, employeeID, imageHash, model).Scan(&vec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query embedding: %w", err)
	}
	return vec.Slice(), nil
}

// SaveEmbedding inserts or replaces a cached embedding
func (r *EmbeddingRepository) SaveEmbedding(ctx context.Context, emb database.StoredEmbedding) error {
	query := `
		INSERT INTO employee_embeddings (employee_id, image_hash, model, embedding)
		VALUES ($1, $2, $3, $4::vector)
		ON CONFLICT (employee_id, image_hash, model) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			created_at = NOW()
	`

	_, err := r.pool.Exec(ctx, query, emb.EmployeeID, emb.ImageHash, emb.Model, pgvector.NewVector(emb.Embedding))
	if err != nil {
		return fmt.Errorf("save embedding: %w", err)
	}
	return nil
}

// CountEmbeddings returns the number of cached embeddings
func (r *EmbeddingRepository) CountEmbeddings(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM employee_embeddings").Scan(&count); err != nil {
		return 0, fmt.Errorf("count embeddings: %w", err)
	}
	return count, nil
}

// PruneEmbeddings deletes cached embeddings whose image hash is not in keep,
// i.e. embeddings of replaced or removed reference photos
func (r *EmbeddingRepository) PruneEmbeddings(ctx context.Context, keep []string) (int64, error) {
	result, err := r.pool.Exec(ctx, "DELETE FROM employee_embeddings WHERE NOT (image_hash = ANY($1))", pq.Array(keep))
	if err != nil {
		return 0, fmt.Errorf("prune embeddings: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune embeddings: %w", err)
	}
	return n, nil
}
