package delivery

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"mailsweep-backend/internal/criteria/repository"
)

// CriteriaHandler exposes CRUD over the user-defined classification
// criteria.
type CriteriaHandler struct {
	repo repository.Repository
}

func NewCriteriaHandler(repo repository.Repository) *CriteriaHandler {
	return &CriteriaHandler{repo: repo}
}

// List returns all criteria in creation order.
// GET /api/criteria
func (h *CriteriaHandler) List(c *gin.Context) {
	items, err := h.repo.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"criteria": items})
}

// Create appends a new enabled criterion.
// POST /api/criteria
func (h *CriteriaHandler) Create(c *gin.Context) {
	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := h.repo.Append(c.Request.Context(), req.Text)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, created)
}

// Update changes a criterion's text and/or enabled flag.
// PATCH /api/criteria/:id
func (h *CriteriaHandler) Update(c *gin.Context) {
	var req struct {
		Text    *string `json:"text"`
		Enabled *bool   `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Text == nil && req.Enabled == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nothing to update"})
		return
	}

	updated, err := h.repo.Update(c.Request.Context(), c.Param("id"), req.Text, req.Enabled)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, updated)
}

// Delete removes a criterion.
// DELETE /api/criteria/:id
func (h *CriteriaHandler) Delete(c *gin.Context) {
	if err := h.repo.Delete(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}
