package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Chunk is a bounded-length fragment of a document's text, the unit of
// retrieval. Embedding is a pgvector column and stays NULL until the
// embedding step runs; a chunk with a NULL or zero-dimension embedding is
// never returned by similarity search.
type Chunk struct {
	ID         string    `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     string    `gorm:"type:uuid;not null;index" json:"user_id"`
	DocumentID string    `gorm:"type:uuid;not null;index" json:"document_id"`
	Text       string    `gorm:"type:text;not null" json:"text"`
	Embedding  *string   `gorm:"type:vector(384)" json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

func (c *Chunk) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// HasEmbedding reports whether an embedding value is attached. It does not
// validate dimensionality; search filters that on the database side.
func (c *Chunk) HasEmbedding() bool {
	return c.Embedding != nil && *c.Embedding != "" && *c.Embedding != "[]"
}
