package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/amramadan/legartis-coding-challenge/model"
	"github.com/amramadan/legartis-coding-challenge/pkg/logger"
)

// allowedExtensions is the upload allow-list, matched on the lower-cased
// filename suffix only.
var allowedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
}

// AllowedExtensions returns the sorted upload allow-list for error payloads.
func AllowedExtensions() []string {
	return []string{".md", ".markdown", ".txt"}
}

// sniffLen is how much of the stream is read up front to decide whether the
// upload looks like UTF-8 text. The sniffed prefix is handed to the storage
// backend so the stream is not read twice.
const sniffLen = 64 * 1024

// IngestionService runs the synchronous upload pipeline: validate, sniff,
// persist the blob, create the contract row, then scan and record the
// detection matrix.
type IngestionService struct {
	store    *Store
	storage  BlobStorage
	maxBytes int64
}

func NewIngestionService(store *Store, storage BlobStorage, maxUploadBytes int64) *IngestionService {
	return &IngestionService{store: store, storage: storage, maxBytes: maxUploadBytes}
}

// Ingest processes one uploaded file and returns the resulting contract.
// Validation faults reject the request with nothing persisted. Once the blob
// is stored and the contract row exists, any later fault is converted into a
// durable failed record instead of bubbling up: the returned contract then
// carries status failed and a truncated error message. Only a failure to
// commit the failure state itself is returned as an error.
func (s *IngestionService) Ingest(ctx context.Context, originalFilename string, declaredSize int64, r io.Reader) (*model.Contract, error) {
	originalFilename = strings.TrimSpace(originalFilename)
	if originalFilename == "" {
		return nil, ErrMissingFilename
	}

	ext := strings.ToLower(filepath.Ext(originalFilename))
	if !allowedExtensions[ext] {
		return nil, ErrUnsupportedFileType
	}

	if s.maxBytes > 0 && declaredSize > s.maxBytes {
		return nil, ErrFileTooLarge
	}

	prefix, err := sniff(r)
	if err != nil {
		return nil, err
	}

	stored, err := s.storage.Save(ctx, r, originalFilename, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	contract := &model.Contract{
		OriginalFilename: originalFilename,
		StorageBackend:   stored.Backend,
		StorageKey:       stored.Key,
		SizeBytes:        stored.SizeBytes,
		SHA256Hex:        stored.SHA256Hex,
		ProcessingStatus: model.StatusProcessing,
	}
	if err := s.store.CreateContract(ctx, contract); err != nil {
		return nil, err
	}

	if err := s.detectAndRecord(ctx, contract); err != nil {
		logger.Warn(ctx, "contract processing failed",
			"contract_id", contract.ID,
			"error", err,
		)
		if ferr := s.store.MarkFailed(ctx, contract.ID, err.Error()); ferr != nil {
			// Could not even commit the failure state; the contract stays
			// stuck in processing. This is the one unrecovered case.
			return nil, fmt.Errorf("failed to record processing failure: %w", ferr)
		}
		return s.store.GetContract(ctx, contract.ID)
	}

	return s.store.GetContract(ctx, contract.ID)
}

// detectAndRecord loads the current catalog snapshot, re-reads the stored
// blob (the matcher must see the exact bytes that were persisted, not the
// in-memory sniff prefix), scans it and commits the full matrix plus the
// processed status atomically.
func (s *IngestionService) detectAndRecord(ctx context.Context, contract *model.Contract) error {
	clauseTypes, err := s.store.ListClauseTypes(ctx)
	if err != nil {
		return err
	}

	rc, err := s.storage.Open(ctx, contract.StorageKey)
	if err != nil {
		return err
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return fmt.Errorf("failed to read stored blob %s: %w", contract.StorageKey, err)
	}

	results, err := ScanText(string(data), clauseTypes)
	if err != nil {
		return err
	}

	rows := make([]model.ContractClause, 0, len(results))
	for _, res := range results {
		rows = append(rows, model.ContractClause{
			ContractID:   contract.ID,
			ClauseTypeID: res.ClauseTypeID,
			Detected:     res.Detected,
		})
	}

	return s.store.CompleteProcessing(ctx, contract.ID, rows)
}

// sniff reads up to sniffLen bytes and rejects uploads that contain a NUL
// byte or are not valid UTF-8 text. The consumed prefix is returned so the
// storage backend can count it without re-reading the source.
func sniff(r io.Reader) ([]byte, error) {
	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(r, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("failed to read upload stream: %w", err)
	}
	prefix := buf[:n]

	if bytes.IndexByte(prefix, 0) >= 0 {
		return nil, ErrBinaryFileRejected
	}
	if !validTextPrefix(prefix, n == sniffLen) {
		return nil, ErrInvalidEncoding
	}
	return prefix, nil
}

// validTextPrefix checks UTF-8 validity, tolerating a multi-byte rune that
// the sniff boundary happened to cut in half. Anything else invalid is
// rejected, including bytes that could never start a rune.
func validTextPrefix(b []byte, truncated bool) bool {
	if utf8.Valid(b) {
		return true
	}
	if !truncated {
		return false
	}

	// Find the start of the final (possibly cut) rune.
	i := len(b) - 1
	for i >= 0 && len(b)-i < utf8.UTFMax && b[i]&0xC0 == 0x80 {
		i--
	}
	if i < 0 {
		return false
	}

	var want int
	switch lead := b[i]; {
	case lead >= 0xC2 && lead <= 0xDF:
		want = 2
	case lead >= 0xE0 && lead <= 0xEF:
		want = 3
	case lead >= 0xF0 && lead <= 0xF4:
		want = 4
	default:
		return false
	}
	if len(b)-i >= want {
		// The rune is complete and still invalid.
		return false
	}
	return utf8.Valid(b[:i])
}
