package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mkadenge/shulelink/internal/middleware"
	"github.com/mkadenge/shulelink/internal/repository"
)

// ChildrenHandler exposes the household directory to parents: the list
// backing the "which child is this about" selector.
type ChildrenHandler struct {
	directory repository.ChildrenDirectory
	logger    *zap.Logger
}

func NewChildrenHandler(directory repository.ChildrenDirectory, logger *zap.Logger) *ChildrenHandler {
	return &ChildrenHandler{directory: directory, logger: logger}
}

// List handles GET /v1/children — always scoped to the caller; there is
// no way to read another household's children.
func (h *ChildrenHandler) List(c *gin.Context) {
	viewer := middleware.GetViewer(c)

	children, err := h.directory.ListByParent(c.Request.Context(), viewer.ID)
	if err != nil {
		h.logger.Error("failed to list children", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list children"})
		return
	}
	c.JSON(http.StatusOK, children)
}
