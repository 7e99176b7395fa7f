package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/amramadan/legartis-coding-challenge/config"
	"github.com/amramadan/legartis-coding-challenge/model"
	"github.com/amramadan/legartis-coding-challenge/service"
	"github.com/gin-gonic/gin"
)

type ContractHandler struct {
	ingestion *service.IngestionService
	store     *service.Store
}

func NewContractHandler(ingestion *service.IngestionService, store *service.Store) *ContractHandler {
	return &ContractHandler{ingestion: ingestion, store: store}
}

// contractView shapes a contract for API responses.
func contractView(c *model.Contract) gin.H {
	return gin.H{
		"id":                c.ID,
		"original_filename": c.OriginalFilename,
		"processing_status": c.ProcessingStatus,
		"storage": gin.H{
			"backend":    c.StorageBackend,
			"key":        c.StorageKey,
			"size_bytes": c.SizeBytes,
			"sha256":     c.SHA256Hex,
		},
	}
}

// Upload handles contract file upload and synchronous clause scanning.
func (h *ContractHandler) Upload(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_file"})
		return
	}
	defer file.Close()

	contract, err := h.ingestion.Ingest(c.Request.Context(), header.Filename, header.Size, file)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMissingFilename):
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing_filename"})
		case errors.Is(err, service.ErrUnsupportedFileType):
			c.JSON(http.StatusUnsupportedMediaType, gin.H{
				"error":   "unsupported_file_type",
				"allowed": service.AllowedExtensions(),
			})
		case errors.Is(err, service.ErrFileTooLarge):
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error":     "file_too_large",
				"max_bytes": config.GlobalConfig.Upload.MaxBytes,
			})
		case errors.Is(err, service.ErrBinaryFileRejected):
			c.JSON(http.StatusBadRequest, gin.H{"error": "binary_file_rejected"})
		case errors.Is(err, service.ErrInvalidEncoding):
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "invalid_encoding",
				"hint":  "upload UTF-8 text/markdown",
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "upload_failed"})
		}
		return
	}

	c.JSON(http.StatusCreated, contractView(contract))
}

// List returns all contracts, newest first.
func (h *ContractHandler) List(c *gin.Context) {
	contracts, err := h.store.ListContracts(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	items := make([]gin.H, len(contracts))
	for i := range contracts {
		items[i] = contractView(&contracts[i])
	}
	c.JSON(http.StatusOK, gin.H{"contracts": items})
}

// Get returns a single contract.
func (h *ContractHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	contract, err := h.store.GetContract(c.Request.Context(), id)
	if err != nil {
		notFoundOrInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, contract)
}

// GetStatus returns the processing status of a contract.
func (h *ContractHandler) GetStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	contract, err := h.store.GetContract(c.Request.Context(), id)
	if err != nil {
		notFoundOrInternal(c, err)
		return
	}

	resp := gin.H{
		"id":                contract.ID,
		"processing_status": contract.ProcessingStatus,
	}
	if contract.ProcessedAt != nil {
		resp["processed_at"] = contract.ProcessedAt
	}
	if contract.ErrorMessage != "" {
		resp["error_message"] = contract.ErrorMessage
	}
	c.JSON(http.StatusOK, resp)
}

// GetClauses returns the detection matrix for a contract in catalog order,
// each row carrying the effective verdict.
func (h *ContractHandler) GetClauses(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	entries, err := h.store.MatrixForContract(c.Request.Context(), id)
	if err != nil {
		notFoundOrInternal(c, err)
		return
	}

	items := make([]gin.H, len(entries))
	for i := range entries {
		e := &entries[i]
		items[i] = gin.H{
			"clause_type": gin.H{"id": e.ClauseType.ID, "name": e.ClauseType.Name},
			"detected":    e.Detected,
			"confirmed":   e.Confirmed,
			"effective":   e.Effective(),
		}
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

type overrideRequest struct {
	Confirmed *bool `json:"confirmed"`
}

// SetOverride records or clears a human judgment for one matrix cell.
func (h *ContractHandler) SetOverride(c *gin.Context) {
	contractID, ok := pathID(c, "id")
	if !ok {
		return
	}
	clauseTypeID, ok := pathID(c, "clauseTypeID")
	if !ok {
		return
	}

	var req overrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error"})
		return
	}

	row, err := h.store.SetOverride(c.Request.Context(), contractID, clauseTypeID, req.Confirmed)
	if err != nil {
		notFoundOrInternal(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"contract_id":    row.ContractID,
		"clause_type_id": row.ClauseTypeID,
		"detected":       row.Detected,
		"confirmed":      row.Confirmed,
		"effective":      row.Effective(),
	})
}

// pathID parses a positive integer path parameter, answering 404 itself on
// garbage input (an unparseable id can never reference anything).
func pathID(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return 0, false
	}
	return uint(v), true
}

func notFoundOrInternal(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrContractNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "contract_not_found"})
	case errors.Is(err, service.ErrClauseTypeNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "clause_type_not_found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}
