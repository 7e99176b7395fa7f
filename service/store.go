package service

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/amramadan/legartis-coding-challenge/model"
	"gorm.io/gorm"
)

// Store is the relational persistence layer for the clause-type catalog,
// contracts and the detection matrix.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// ListClauseTypes returns the full catalog with patterns preloaded, ordered
// by catalog identity (stable insertion order). This is the snapshot the
// ingestion pipeline scans against.
func (s *Store) ListClauseTypes(ctx context.Context) ([]model.ClauseType, error) {
	var items []model.ClauseType
	err := s.db.WithContext(ctx).
		Preload("Patterns", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Order("id").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load clause types: %w", err)
	}
	return items, nil
}

// CreateClauseType creates a clause type together with its patterns.
// Duplicate names violate the unique index and surface as
// ErrClauseTypeNameExists.
func (s *Store) CreateClauseType(ctx context.Context, ct *model.ClauseType) error {
	var existing int64
	err := s.db.WithContext(ctx).Model(&model.ClauseType{}).
		Where("name = ?", ct.Name).Count(&existing).Error
	if err != nil {
		return fmt.Errorf("failed to check clause type name: %w", err)
	}
	if existing > 0 {
		return ErrClauseTypeNameExists
	}

	if err := s.db.WithContext(ctx).Create(ct).Error; err != nil {
		// Lost a race against a concurrent create with the same name.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrClauseTypeNameExists
		}
		return fmt.Errorf("failed to create clause type: %w", err)
	}
	return nil
}

// GetClauseType returns a clause type by id.
func (s *Store) GetClauseType(ctx context.Context, id uint) (*model.ClauseType, error) {
	var ct model.ClauseType
	err := s.db.WithContext(ctx).
		Preload("Patterns", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		First(&ct, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrClauseTypeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load clause type: %w", err)
	}
	return &ct, nil
}

// DeleteClauseType deletes a clause type and its patterns. Deletion is
// refused once the clause type appears in any contract's detection matrix,
// so historical matrix rows are never orphaned.
func (s *Store) DeleteClauseType(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ct model.ClauseType
		if err := tx.First(&ct, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrClauseTypeNotFound
			}
			return err
		}

		var refs int64
		if err := tx.Model(&model.ContractClause{}).Where("clause_type_id = ?", id).Count(&refs).Error; err != nil {
			return err
		}
		if refs > 0 {
			return ErrClauseTypeInUse
		}

		if err := tx.Where("clause_type_id = ?", id).Delete(&model.ClausePattern{}).Error; err != nil {
			return err
		}
		return tx.Delete(&ct).Error
	})
}

// CreateContract inserts a new contract row. The row is durably visible
// before detection starts.
func (s *Store) CreateContract(ctx context.Context, c *model.Contract) error {
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return fmt.Errorf("failed to create contract: %w", err)
	}
	return nil
}

// GetContract returns a contract by id.
func (s *Store) GetContract(ctx context.Context, id uint) (*model.Contract, error) {
	var c model.Contract
	err := s.db.WithContext(ctx).First(&c, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrContractNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load contract: %w", err)
	}
	return &c, nil
}

// ListContracts returns all contracts, newest first.
func (s *Store) ListContracts(ctx context.Context) ([]model.Contract, error) {
	var items []model.Contract
	if err := s.db.WithContext(ctx).Order("id DESC").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to list contracts: %w", err)
	}
	return items, nil
}

// CompleteProcessing writes the full detection matrix and flips the contract
// to processed in a single transaction: all rows and the status change
// commit together or not at all.
func (s *Store) CompleteProcessing(ctx context.Context, contractID uint, rows []model.ContractClause) error {
	now := time.Now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(rows) > 0 {
			if err := tx.Create(&rows).Error; err != nil {
				return fmt.Errorf("failed to write detection matrix: %w", err)
			}
		}
		return tx.Model(&model.Contract{}).Where("id = ?", contractID).
			Updates(map[string]any{
				"processing_status": model.StatusProcessed,
				"processed_at":      now,
				"error_message":     "",
			}).Error
	})
}

// MarkFailed records a terminal processing failure with a truncated error
// message. No matrix rows survive for a failed contract; the failed
// detect-and-record transaction already rolled them back.
func (s *Store) MarkFailed(ctx context.Context, contractID uint, msg string) error {
	now := time.Now()
	return s.db.WithContext(ctx).Model(&model.Contract{}).Where("id = ?", contractID).
		Updates(map[string]any{
			"processing_status": model.StatusFailed,
			"processed_at":      now,
			"error_message":     truncateError(msg),
		}).Error
}

// truncateError bounds an error message without splitting a rune at the cut.
func truncateError(msg string) string {
	if len(msg) <= model.MaxErrorMessageLen {
		return msg
	}
	cut := msg[:model.MaxErrorMessageLen]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}

// MatrixEntry is one row of a contract's detection matrix joined with its
// clause type, as served to clients.
type MatrixEntry struct {
	ClauseType model.ClauseType
	Detected   bool
	Confirmed  *bool
}

// Effective returns the human judgment when one exists, otherwise the
// detection result.
func (e *MatrixEntry) Effective() bool {
	if e.Confirmed != nil {
		return *e.Confirmed
	}
	return e.Detected
}

// MatrixForContract returns the detection matrix in catalog order. Clause
// types added to the catalog after the contract was ingested have no stored
// row and show up as not detected with no judgment; the snapshot taken at
// ingestion time is never re-scanned.
func (s *Store) MatrixForContract(ctx context.Context, contractID uint) ([]MatrixEntry, error) {
	if _, err := s.GetContract(ctx, contractID); err != nil {
		return nil, err
	}

	var types []model.ClauseType
	if err := s.db.WithContext(ctx).Order("id").Find(&types).Error; err != nil {
		return nil, fmt.Errorf("failed to load clause types: %w", err)
	}

	var rows []model.ContractClause
	if err := s.db.WithContext(ctx).Where("contract_id = ?", contractID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load detection matrix: %w", err)
	}

	byType := make(map[uint]*model.ContractClause, len(rows))
	for i := range rows {
		byType[rows[i].ClauseTypeID] = &rows[i]
	}

	entries := make([]MatrixEntry, 0, len(types))
	for _, ct := range types {
		entry := MatrixEntry{ClauseType: ct}
		if row, ok := byType[ct.ID]; ok {
			entry.Detected = row.Detected
			entry.Confirmed = row.Confirmed
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// SetOverride records or clears a human judgment for one matrix cell. When
// no row exists yet for the pair (clause type added after ingestion), one is
// created with detected=false before the override is applied, so the ledger
// stays usable outside the ingestion snapshot. A nil confirmed clears the
// judgment, reverting the effective verdict to the stored detection result.
func (s *Store) SetOverride(ctx context.Context, contractID, clauseTypeID uint, confirmed *bool) (*model.ContractClause, error) {
	if _, err := s.GetContract(ctx, contractID); err != nil {
		return nil, err
	}
	var ct model.ClauseType
	if err := s.db.WithContext(ctx).First(&ct, clauseTypeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrClauseTypeNotFound
		}
		return nil, fmt.Errorf("failed to load clause type: %w", err)
	}

	row := model.ContractClause{ContractID: contractID, ClauseTypeID: clauseTypeID}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("contract_id = ? AND clause_type_id = ?", contractID, clauseTypeID).
			First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			row = model.ContractClause{ContractID: contractID, ClauseTypeID: clauseTypeID, Detected: false}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("failed to create matrix row: %w", err)
			}
		} else if err != nil {
			return fmt.Errorf("failed to load matrix row: %w", err)
		}

		row.Confirmed = confirmed
		return tx.Model(&model.ContractClause{}).
			Where("contract_id = ? AND clause_type_id = ?", contractID, clauseTypeID).
			Update("confirmed", confirmed).Error
	})
	if err != nil {
		return nil, err
	}
	return &row, nil
}
