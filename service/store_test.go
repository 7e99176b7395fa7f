package service

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/amramadan/legartis-coding-challenge/config"
	"github.com/amramadan/legartis-coding-challenge/database"
	"github.com/amramadan/legartis-coding-challenge/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.Connect(&config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("Failed to connect test database: %v", err)
	}
	t.Cleanup(func() { database.Close(db) })

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	return NewStore(db)
}

func boolPtr(b bool) *bool { return &b }

func mustCreateClauseType(t *testing.T, store *Store, name string, patterns ...model.ClausePattern) *model.ClauseType {
	t.Helper()
	ct := &model.ClauseType{Name: name, Patterns: patterns}
	if err := store.CreateClauseType(context.Background(), ct); err != nil {
		t.Fatalf("Failed to create clause type %s: %v", name, err)
	}
	return ct
}

func mustCreateContract(t *testing.T, store *Store) *model.Contract {
	t.Helper()
	c := &model.Contract{
		OriginalFilename: "test.txt",
		StorageBackend:   LocalBackend,
		StorageKey:       newObjectKey("test.txt"),
		SizeBytes:        42,
		SHA256Hex:        strings.Repeat("ab", 32),
		ProcessingStatus: model.StatusProcessing,
	}
	if err := store.CreateContract(context.Background(), c); err != nil {
		t.Fatalf("Failed to create contract: %v", err)
	}
	return c
}

func TestStoreClauseTypeCatalog(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mustCreateClauseType(t, store, "termination", model.ClausePattern{Pattern: "terminate", IsRegex: false})
	mustCreateClauseType(t, store, "liability",
		model.ClausePattern{Pattern: "liability", IsRegex: false},
		model.ClausePattern{Pattern: `indemnif\w+`, IsRegex: true},
	)
	mustCreateClauseType(t, store, "confidentiality")

	items, err := store.ListClauseTypes(ctx)
	if err != nil {
		t.Fatalf("Failed to list clause types: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("Expected 3 clause types, got %d", len(items))
	}

	// Catalog identity order, not name order.
	if items[0].Name != "termination" || items[1].Name != "liability" || items[2].Name != "confidentiality" {
		t.Errorf("Expected insertion order, got %s, %s, %s", items[0].Name, items[1].Name, items[2].Name)
	}
	if len(items[1].Patterns) != 2 {
		t.Errorf("Expected 2 patterns preloaded, got %d", len(items[1].Patterns))
	}
	if len(items[2].Patterns) != 0 {
		t.Errorf("Expected no patterns, got %d", len(items[2].Patterns))
	}
}

func TestStoreClauseTypeDuplicateName(t *testing.T) {
	store := newTestStore(t)

	mustCreateClauseType(t, store, "termination")

	err := store.CreateClauseType(context.Background(), &model.ClauseType{Name: "termination"})
	if !errors.Is(err, ErrClauseTypeNameExists) {
		t.Errorf("Expected ErrClauseTypeNameExists, got %v", err)
	}
}

func TestStoreDeleteClauseType(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ct := mustCreateClauseType(t, store, "termination", model.ClausePattern{Pattern: "terminate"})

	if err := store.DeleteClauseType(ctx, ct.ID); err != nil {
		t.Fatalf("Failed to delete clause type: %v", err)
	}
	if _, err := store.GetClauseType(ctx, ct.ID); !errors.Is(err, ErrClauseTypeNotFound) {
		t.Errorf("Expected clause type gone, got %v", err)
	}

	if err := store.DeleteClauseType(ctx, 9999); !errors.Is(err, ErrClauseTypeNotFound) {
		t.Errorf("Expected ErrClauseTypeNotFound, got %v", err)
	}
}

func TestStoreDeleteClauseTypeWithHistory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ct := mustCreateClauseType(t, store, "termination")
	contract := mustCreateContract(t, store)

	err := store.CompleteProcessing(ctx, contract.ID, []model.ContractClause{
		{ContractID: contract.ID, ClauseTypeID: ct.ID, Detected: true},
	})
	if err != nil {
		t.Fatalf("Failed to complete processing: %v", err)
	}

	// Matrix history pins the clause type.
	if err := store.DeleteClauseType(ctx, ct.ID); !errors.Is(err, ErrClauseTypeInUse) {
		t.Errorf("Expected ErrClauseTypeInUse, got %v", err)
	}
}

func TestStoreCompleteProcessing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ct1 := mustCreateClauseType(t, store, "termination")
	ct2 := mustCreateClauseType(t, store, "liability")
	contract := mustCreateContract(t, store)

	rows := []model.ContractClause{
		{ContractID: contract.ID, ClauseTypeID: ct1.ID, Detected: true},
		{ContractID: contract.ID, ClauseTypeID: ct2.ID, Detected: false},
	}
	if err := store.CompleteProcessing(ctx, contract.ID, rows); err != nil {
		t.Fatalf("Failed to complete processing: %v", err)
	}

	got, err := store.GetContract(ctx, contract.ID)
	if err != nil {
		t.Fatalf("Failed to reload contract: %v", err)
	}
	if got.ProcessingStatus != model.StatusProcessed {
		t.Errorf("Expected status processed, got %s", got.ProcessingStatus)
	}
	if got.ProcessedAt == nil {
		t.Error("Expected processed_at to be set")
	}
	if got.ErrorMessage != "" {
		t.Errorf("Expected empty error message, got %q", got.ErrorMessage)
	}

	entries, err := store.MatrixForContract(ctx, contract.ID)
	if err != nil {
		t.Fatalf("Failed to load matrix: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 matrix entries, got %d", len(entries))
	}
	if !entries[0].Detected || entries[1].Detected {
		t.Errorf("Unexpected detection values: %+v", entries)
	}
}

func TestStoreCompleteProcessingAtomic(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ct1 := mustCreateClauseType(t, store, "termination")
	ct2 := mustCreateClauseType(t, store, "liability")
	contract := mustCreateContract(t, store)

	// A pre-existing row for ct2 makes the bulk insert violate the composite
	// primary key, so the whole transaction must roll back.
	if _, err := store.SetOverride(ctx, contract.ID, ct2.ID, nil); err != nil {
		t.Fatalf("Failed to seed conflicting row: %v", err)
	}

	rows := []model.ContractClause{
		{ContractID: contract.ID, ClauseTypeID: ct1.ID, Detected: true},
		{ContractID: contract.ID, ClauseTypeID: ct2.ID, Detected: true},
	}
	if err := store.CompleteProcessing(ctx, contract.ID, rows); err == nil {
		t.Fatal("Expected constraint violation")
	}

	got, err := store.GetContract(ctx, contract.ID)
	if err != nil {
		t.Fatalf("Failed to reload contract: %v", err)
	}
	if got.ProcessingStatus != model.StatusProcessing {
		t.Errorf("Expected status unchanged after rollback, got %s", got.ProcessingStatus)
	}

	entries, err := store.MatrixForContract(ctx, contract.ID)
	if err != nil {
		t.Fatalf("Failed to load matrix: %v", err)
	}
	// Only the seeded row survives; the ct1 insert rolled back with it.
	for _, e := range entries {
		if e.ClauseType.ID == ct1.ID && e.Detected {
			t.Error("Expected ct1 row to be rolled back")
		}
	}
}

func TestStoreMarkFailedTruncatesMessage(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	contract := mustCreateContract(t, store)

	long := strings.Repeat("x", 5000)
	if err := store.MarkFailed(ctx, contract.ID, long); err != nil {
		t.Fatalf("Failed to mark failed: %v", err)
	}

	got, err := store.GetContract(ctx, contract.ID)
	if err != nil {
		t.Fatalf("Failed to reload contract: %v", err)
	}
	if got.ProcessingStatus != model.StatusFailed {
		t.Errorf("Expected status failed, got %s", got.ProcessingStatus)
	}
	if got.ProcessedAt == nil {
		t.Error("Expected processed_at to be set on failure")
	}
	if len(got.ErrorMessage) != model.MaxErrorMessageLen {
		t.Errorf("Expected error message truncated to %d, got %d", model.MaxErrorMessageLen, len(got.ErrorMessage))
	}
}

func TestTruncateErrorRuneBoundary(t *testing.T) {
	msg := strings.Repeat("x", model.MaxErrorMessageLen-1) + "é" // 2-byte rune straddles the cut
	cut := truncateError(msg)
	if len(cut) > model.MaxErrorMessageLen {
		t.Errorf("Expected at most %d bytes, got %d", model.MaxErrorMessageLen, len(cut))
	}
	if !strings.HasSuffix(cut, "x") {
		t.Errorf("Expected the split rune dropped, got %q", cut[len(cut)-4:])
	}
}

func TestStoreSetOverride(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ct := mustCreateClauseType(t, store, "termination")
	contract := mustCreateContract(t, store)

	if err := store.CompleteProcessing(ctx, contract.ID, []model.ContractClause{
		{ContractID: contract.ID, ClauseTypeID: ct.ID, Detected: false},
	}); err != nil {
		t.Fatalf("Failed to complete processing: %v", err)
	}

	// Confirm overrides detected=false.
	row, err := store.SetOverride(ctx, contract.ID, ct.ID, boolPtr(true))
	if err != nil {
		t.Fatalf("Failed to set override: %v", err)
	}
	if !row.Effective() {
		t.Error("Expected effective=true with confirmed=true over detected=false")
	}

	// Clearing reverts to the stored detection result.
	row, err = store.SetOverride(ctx, contract.ID, ct.ID, nil)
	if err != nil {
		t.Fatalf("Failed to clear override: %v", err)
	}
	if row.Confirmed != nil {
		t.Errorf("Expected confirmed cleared, got %v", *row.Confirmed)
	}
	if row.Effective() {
		t.Error("Expected effective=false after clearing")
	}
}

func TestStoreSetOverrideCreatesMissingRow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	contract := mustCreateContract(t, store)
	// Clause type added after the contract was ingested: no matrix row yet.
	late := mustCreateClauseType(t, store, "late-addition")

	row, err := store.SetOverride(ctx, contract.ID, late.ID, boolPtr(true))
	if err != nil {
		t.Fatalf("Failed to set override on missing row: %v", err)
	}
	if row.Detected {
		t.Error("Expected on-the-fly row to record detected=false")
	}
	if row.Confirmed == nil || !*row.Confirmed {
		t.Error("Expected confirmed=true")
	}
}

func TestStoreSetOverrideNotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ct := mustCreateClauseType(t, store, "termination")
	contract := mustCreateContract(t, store)

	if _, err := store.SetOverride(ctx, 9999, ct.ID, boolPtr(true)); !errors.Is(err, ErrContractNotFound) {
		t.Errorf("Expected ErrContractNotFound, got %v", err)
	}
	if _, err := store.SetOverride(ctx, contract.ID, 9999, boolPtr(true)); !errors.Is(err, ErrClauseTypeNotFound) {
		t.Errorf("Expected ErrClauseTypeNotFound, got %v", err)
	}
}

func TestStoreMatrixIncludesLaterClauseTypes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ct := mustCreateClauseType(t, store, "termination")
	contract := mustCreateContract(t, store)

	if err := store.CompleteProcessing(ctx, contract.ID, []model.ContractClause{
		{ContractID: contract.ID, ClauseTypeID: ct.ID, Detected: true},
	}); err != nil {
		t.Fatalf("Failed to complete processing: %v", err)
	}

	// The catalog grows afterwards; the stored snapshot is not re-scanned.
	mustCreateClauseType(t, store, "liability")

	entries, err := store.MatrixForContract(ctx, contract.ID)
	if err != nil {
		t.Fatalf("Failed to load matrix: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if !entries[0].Detected {
		t.Error("Expected original snapshot row detected=true")
	}
	if entries[1].Detected || entries[1].Confirmed != nil {
		t.Error("Expected later clause type to show detected=false with no judgment")
	}
}

func TestStoreGetContractNotFound(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.GetContract(context.Background(), 12345); !errors.Is(err, ErrContractNotFound) {
		t.Errorf("Expected ErrContractNotFound, got %v", err)
	}
}
