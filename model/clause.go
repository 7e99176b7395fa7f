package model

import (
	"time"
)

// ClauseType is a named category of contract clause the scanner looks for,
// e.g. "termination" or "limitation of liability". It owns its patterns.
type ClauseType struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	Name      string          `gorm:"size:200;not null;uniqueIndex:uq_clause_types_name" json:"name"`
	Patterns  []ClausePattern `gorm:"constraint:OnDelete:CASCADE" json:"patterns"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ClausePattern is a single keyword or regular expression belonging to a
// clause type. A clause type matches a document if any of its patterns does.
type ClausePattern struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	ClauseTypeID uint      `gorm:"not null;index" json:"-"`
	Pattern      string    `gorm:"size:500;not null" json:"pattern"`
	IsRegex      bool      `gorm:"not null;default:false" json:"is_regex"`
	CreatedAt    time.Time `json:"-"`
	UpdatedAt    time.Time `json:"-"`
}
