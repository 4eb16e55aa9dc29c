package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Document is a source document owned by one user. Text holds the extracted
// plain text the chunks were cut from.
type Document struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    string    `gorm:"type:uuid;not null;index" json:"user_id"`
	Name      string    `gorm:"size:256;not null" json:"name"`
	Text      string    `gorm:"type:text" json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}
