package models

import (
	"time"

	"gorm.io/gorm"
)

// BaseModel contains the creation timestamp shared by all tables
type BaseModel struct {
	CreatedAt time.Time `gorm:"column:created_at;not null;index" json:"created_at"`
}

// BeforeCreate GORM hook for BaseModel. A caller-supplied timestamp is kept.
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	return nil
}

// StringPtr returns nil for an empty string
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// StringValue dereferences a possibly nil string
func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
