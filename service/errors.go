package service

import "errors"

// Validation faults. These reject an upload before anything is persisted.
var (
	ErrMissingFilename     = errors.New("missing_filename")
	ErrUnsupportedFileType = errors.New("unsupported_file_type")
	ErrFileTooLarge        = errors.New("file_too_large")
	ErrBinaryFileRejected  = errors.New("binary_file_rejected")
	ErrInvalidEncoding     = errors.New("invalid_encoding")
)

// Reference and integrity faults surfaced by the store.
var (
	ErrContractNotFound     = errors.New("contract_not_found")
	ErrClauseTypeNotFound   = errors.New("clause_type_not_found")
	ErrClauseTypeNameExists = errors.New("clause_type_name_exists")
	ErrClauseTypeInUse      = errors.New("clause_type_in_use")
)
