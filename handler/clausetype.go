package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/amramadan/legartis-coding-challenge/model"
	"github.com/amramadan/legartis-coding-challenge/service"
	"github.com/gin-gonic/gin"
)

type ClauseTypeHandler struct {
	store *service.Store
}

func NewClauseTypeHandler(store *service.Store) *ClauseTypeHandler {
	return &ClauseTypeHandler{store: store}
}

type clausePatternIn struct {
	Pattern string `json:"pattern" binding:"required,min=1,max=500"`
	IsRegex bool   `json:"is_regex"`
}

type clauseTypeIn struct {
	Name     string            `json:"name" binding:"required,min=1,max=200"`
	Patterns []clausePatternIn `json:"patterns" binding:"omitempty,dive"`
}

func clauseTypeView(ct *model.ClauseType) gin.H {
	patterns := make([]gin.H, len(ct.Patterns))
	for i, p := range ct.Patterns {
		patterns[i] = gin.H{"pattern": p.Pattern, "is_regex": p.IsRegex}
	}
	return gin.H{
		"id":       ct.ID,
		"name":     ct.Name,
		"patterns": patterns,
	}
}

// List returns the full clause-type catalog with patterns.
func (h *ClauseTypeHandler) List(c *gin.Context) {
	items, err := h.store.ListClauseTypes(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	views := make([]gin.H, len(items))
	for i := range items {
		views[i] = clauseTypeView(&items[i])
	}
	c.JSON(http.StatusOK, gin.H{"items": views})
}

// Create creates a clause type together with its patterns. Names are unique.
func (h *ClauseTypeHandler) Create(c *gin.Context) {
	var req clauseTypeIn
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error"})
		return
	}

	ct := &model.ClauseType{Name: strings.TrimSpace(req.Name)}
	for _, p := range req.Patterns {
		ct.Patterns = append(ct.Patterns, model.ClausePattern{
			Pattern: strings.TrimSpace(p.Pattern),
			IsRegex: p.IsRegex,
		})
	}

	if err := h.store.CreateClauseType(c.Request.Context(), ct); err != nil {
		if errors.Is(err, service.ErrClauseTypeNameExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "clause_type_name_exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	c.JSON(http.StatusCreated, clauseTypeView(ct))
}

// Delete removes a clause type and its patterns. Deletion is refused once
// the clause type has detection-matrix history.
func (h *ClauseTypeHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	err := h.store.DeleteClauseType(c.Request.Context(), id)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"message": "clause type deleted"})
	case errors.Is(err, service.ErrClauseTypeNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "clause_type_not_found"})
	case errors.Is(err, service.ErrClauseTypeInUse):
		c.JSON(http.StatusConflict, gin.H{"error": "clause_type_in_use"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}
