package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"docuchat/internal/model"
	"docuchat/internal/vector"
)

var ErrChunkNotFound = errors.New("chunk not found")

// ChunkRepository persists chunks and runs the pgvector similarity queries.
// Everything interpolated into raw SQL here comes from the sealed builders in
// internal/vector; no other code path assembles query fragments.
type ChunkRepository struct {
	db *gorm.DB
}

func NewChunkRepository(db *gorm.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

// CreateBatch inserts chunks without embeddings; the embedding column stays
// NULL until UpsertEmbedding runs for each chunk.
func (r *ChunkRepository) CreateBatch(chunks []model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := r.db.Create(&chunks).Error; err != nil {
		return fmt.Errorf("create chunks batch failed: %w", err)
	}
	return nil
}

// UpsertEmbedding attaches an embedding to an existing chunk. The vector is
// encoded through the codec and the chunk id is escaped before either is
// interpolated. The chunk must already exist.
func (r *ChunkRepository) UpsertEmbedding(chunkID string, vec []float64) error {
	literal, err := vector.Encode(vec)
	if err != nil {
		return err
	}
	tx := r.db.Exec(vector.BuildEmbeddingUpdate(literal, chunkID))
	if tx.Error != nil {
		return fmt.Errorf("update chunk embedding failed: %w", tx.Error)
	}
	if tx.RowsAffected == 0 {
		return ErrChunkNotFound
	}
	return nil
}

// Search returns up to topK chunks owned by ownerID ordered nearest-first by
// Euclidean distance to the query vector. Chunks with a NULL or
// zero-dimension embedding are filtered out before ranking. topK is clamped
// to a safe range.
func (r *ChunkRepository) Search(ownerID string, queryVec []float64, topK int) ([]model.Chunk, error) {
	literal, err := vector.Encode(queryVec)
	if err != nil {
		return nil, err
	}
	var chunks []model.Chunk
	if err := r.db.Raw(vector.BuildSearchQuery(literal, ownerID, topK)).Scan(&chunks).Error; err != nil {
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}
	return chunks, nil
}

// CleanupInvalid deletes chunks whose embedding is NULL or has zero
// dimensions and reports how many rows were removed. An empty ownerID
// cleans up globally. Maintenance path, not part of the query path.
func (r *ChunkRepository) CleanupInvalid(ownerID string) (int64, error) {
	tx := r.db.Exec(vector.BuildCleanupDelete(ownerID))
	if tx.Error != nil {
		return 0, fmt.Errorf("cleanup invalid chunks failed: %w", tx.Error)
	}
	return tx.RowsAffected, nil
}

// CountValid returns the number of retrieval-eligible chunks for an owner.
func (r *ChunkRepository) CountValid(ownerID string) (int64, error) {
	var count int64
	if err := r.db.Raw(vector.BuildValidCount(ownerID)).Scan(&count).Error; err != nil {
		return 0, fmt.Errorf("count valid chunks failed: %w", err)
	}
	return count, nil
}

// ListByDocumentID returns a document's chunks, owner-scoped. The embedding
// column is not selected; only ids and text are needed by the embedding step.
func (r *ChunkRepository) ListByDocumentID(documentID, userID string) ([]model.Chunk, error) {
	var chunks []model.Chunk
	err := r.db.
		Select("id", "user_id", "document_id", "text", "created_at").
		Where("document_id = ? AND user_id = ?", documentID, userID).
		Order("created_at ASC").
		Find(&chunks).Error
	if err != nil {
		return nil, fmt.Errorf("list chunks by document failed: %w", err)
	}
	return chunks, nil
}

func (r *ChunkRepository) DeleteByDocumentID(documentID, userID string) error {
	if err := r.db.Where("document_id = ? AND user_id = ?", documentID, userID).Delete(&model.Chunk{}).Error; err != nil {
		return fmt.Errorf("delete chunks by document failed: %w", err)
	}
	return nil
}
