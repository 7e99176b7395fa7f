package model

import (
	"time"
)

// Contract represents an uploaded contract document and its processing state.
type Contract struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	OriginalFilename string     `gorm:"size:255;not null" json:"original_filename"`
	StorageBackend   string     `gorm:"size:32;not null" json:"-"`
	StorageKey       string     `gorm:"size:64;not null;uniqueIndex:uq_contracts_storage_key" json:"-"`
	SizeBytes        int64      `gorm:"not null" json:"-"`
	SHA256Hex        string     `gorm:"size:64;not null" json:"-"`
	ProcessingStatus string     `gorm:"size:16;not null" json:"processing_status"`
	ProcessedAt      *time.Time `json:"processed_at,omitempty"`
	ErrorMessage     string     `gorm:"size:2000" json:"error_message,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Processing status constants. A contract moves from processing to exactly
// one terminal state; nothing leaves a terminal state. "uploaded" is the
// legacy initial state from before processing became synchronous.
const (
	StatusUploaded   = "uploaded"
	StatusProcessing = "processing"
	StatusProcessed  = "processed"
	StatusFailed     = "failed"
)

// MaxErrorMessageLen bounds the error detail persisted on a failed contract.
const MaxErrorMessageLen = 2000

// ContractClause is one cell of the per-contract detection matrix: whether a
// clause type was detected at ingestion time, plus an optional human verdict.
// The matrix is a snapshot against the catalog as it existed when the
// contract was ingested; rows are never re-scanned.
type ContractClause struct {
	ContractID   uint  `gorm:"primaryKey;autoIncrement:false" json:"contract_id"`
	ClauseTypeID uint  `gorm:"primaryKey;autoIncrement:false" json:"clause_type_id"`
	Detected     bool  `gorm:"not null" json:"detected"`
	Confirmed    *bool `json:"confirmed"`
}

// Effective returns the human judgment when one exists, otherwise the
// detection result. Computed on read so it can never drift from its inputs.
func (cc *ContractClause) Effective() bool {
	if cc.Confirmed != nil {
		return *cc.Confirmed
	}
	return cc.Detected
}
