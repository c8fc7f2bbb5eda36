package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mkadenge/shulelink/internal/concern"
	"github.com/mkadenge/shulelink/internal/middleware"
	"github.com/mkadenge/shulelink/internal/models"
	"github.com/mkadenge/shulelink/internal/realtime"
	"github.com/mkadenge/shulelink/internal/repository"
)

// ConcernHandler is the one-shot REST surface over concern threads.
// Live feeds go over the WebSocket endpoint; these routes serve the
// non-reactive call sites (initial page data, retries, integrations).
type ConcernHandler struct {
	repo     repository.ThreadRepository
	children repository.ChildrenDirectory
	bus      realtime.Bus
	logger   *zap.Logger
}

func NewConcernHandler(
	repo repository.ThreadRepository,
	children repository.ChildrenDirectory,
	bus realtime.Bus,
	logger *zap.Logger,
) *ConcernHandler {
	return &ConcernHandler{repo: repo, children: children, bus: bus, logger: logger}
}

type createConcernRequest struct {
	ChildID uuid.UUID `json:"childId" binding:"required"`
	Subject string    `json:"subject"`
	Text    string    `json:"text" binding:"required"`
}

// Create handles POST /v1/concerns — parents only.
func (h *ConcernHandler) Create(c *gin.Context) {
	var req createConcernRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	viewer := middleware.GetViewer(c)

	// The child must belong to the caller's household; the denormalized
	// name comes from the directory, never from the request.
	child, err := h.children.GetByID(c.Request.Context(), req.ChildID)
	if err != nil {
		h.logger.Error("failed to look up child", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create concern"})
		return
	}
	if child == nil || child.ParentID != viewer.ID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown child"})
		return
	}

	th, err := h.repo.CreateThread(c.Request.Context(), viewer, *child, req.Subject, req.Text)
	if err != nil {
		h.writeError(c, "failed to create concern", err)
		return
	}

	h.bus.Publish(realtime.Event{
		Kind:     realtime.EventThreadCreated,
		ThreadID: th.ID,
		ParentID: th.CreatedByUserID,
	})
	c.JSON(http.StatusCreated, th)
}

// List handles GET /v1/concerns
//
// Parents see their own threads; admins see the global feed, optionally
// narrowed with ?status= and ?parent=. Both orderings come from the
// store (lastUpdated descending).
func (h *ConcernHandler) List(c *gin.Context) {
	viewer := middleware.GetViewer(c)

	if viewer.Role != models.RoleAdmin {
		threads, err := h.repo.ListByParent(c.Request.Context(), viewer.ID)
		if err != nil {
			h.logger.Error("failed to list concerns", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list concerns"})
			return
		}
		c.JSON(http.StatusOK, threads)
		return
	}

	var status models.Status
	if s := c.Query("status"); s != "" {
		parsed, err := concern.ParseStatus(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'status' parameter"})
			return
		}
		status = parsed
	}
	var parentID uuid.UUID
	if p := c.Query("parent"); p != "" {
		id, err := uuid.Parse(p)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'parent' parameter"})
			return
		}
		parentID = id
	}

	threads, err := h.repo.ListAll(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list concerns", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list concerns"})
		return
	}

	filtered := make([]models.Thread, 0, len(threads))
	for _, th := range threads {
		if status != "" && th.Status != status {
			continue
		}
		if parentID != uuid.Nil && th.CreatedByUserID != parentID {
			continue
		}
		filtered = append(filtered, th)
	}
	c.JSON(http.StatusOK, filtered)
}

// GetByID handles GET /v1/concerns/:id
func (h *ConcernHandler) GetByID(c *gin.Context) {
	th, ok := h.loadThread(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, th)
}

// ListMessages handles GET /v1/concerns/:id/messages
func (h *ConcernHandler) ListMessages(c *gin.Context) {
	th, ok := h.loadThread(c)
	if !ok {
		return
	}

	messages, err := h.repo.ListMessages(c.Request.Context(), th.ID)
	if err != nil {
		h.logger.Error("failed to list messages", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
		return
	}
	c.JSON(http.StatusOK, messages)
}

type replyRequest struct {
	Text string `json:"text" binding:"required"`
}

// Reply handles POST /v1/concerns/:id/messages
func (h *ConcernHandler) Reply(c *gin.Context) {
	var req replyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	th, ok := h.loadThread(c)
	if !ok {
		return
	}

	// Solved threads are closed for normal replies. Reopening is an
	// explicit status change, not a side effect of replying.
	if th.Status == models.StatusSolved {
		c.JSON(http.StatusConflict, gin.H{"error": concern.ErrThreadSolved.Error()})
		return
	}

	viewer := middleware.GetViewer(c)
	msg, err := h.repo.AppendMessage(c.Request.Context(), th.ID, viewer, req.Text)
	if err != nil {
		h.writeError(c, "failed to send reply", err)
		return
	}

	h.bus.Publish(realtime.Event{
		Kind:     realtime.EventMessageAdded,
		ThreadID: th.ID,
		ParentID: th.CreatedByUserID,
	})
	c.JSON(http.StatusCreated, msg)
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateStatus handles PATCH /v1/concerns/:id/status — admins only.
func (h *ConcernHandler) UpdateStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	status, err := concern.ParseStatus(req.Status)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	th, ok := h.loadThread(c)
	if !ok {
		return
	}

	viewer := middleware.GetViewer(c)
	if err := h.repo.SetStatus(c.Request.Context(), th.ID, status, viewer); err != nil {
		h.writeError(c, "failed to update status", err)
		return
	}

	h.bus.Publish(realtime.Event{
		Kind:     realtime.EventThreadUpdated,
		ThreadID: th.ID,
		ParentID: th.CreatedByUserID,
	})
	c.Status(http.StatusNoContent)
}

// MarkRead handles POST /v1/concerns/:id/read
//
// Best-effort by contract: a storage failure is logged and the client
// still gets a 204. The unread badge self-corrects on the next
// successful open.
func (h *ConcernHandler) MarkRead(c *gin.Context) {
	th, ok := h.loadThread(c)
	if !ok {
		return
	}

	viewer := middleware.GetViewer(c)
	if err := h.repo.MarkRead(c.Request.Context(), th.ID, viewer.ID); err != nil {
		h.logger.Warn("mark read failed",
			zap.String("thread_id", th.ID.String()),
			zap.Error(err),
		)
	}
	c.Status(http.StatusNoContent)
}

// loadThread resolves :id and enforces that parents only reach their
// own threads. On failure it writes the response and returns ok=false.
func (h *ConcernHandler) loadThread(c *gin.Context) (*models.Thread, bool) {
	threadID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid concern id"})
		return nil, false
	}

	th, err := h.repo.GetByID(c.Request.Context(), threadID)
	if err != nil {
		h.logger.Error("failed to get concern", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get concern"})
		return nil, false
	}
	if th == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "concern not found"})
		return nil, false
	}

	viewer := middleware.GetViewer(c)
	if viewer.Role != models.RoleAdmin && th.CreatedByUserID != viewer.ID {
		// Indistinguishable from a missing thread on purpose.
		c.JSON(http.StatusNotFound, gin.H{"error": "concern not found"})
		return nil, false
	}
	return th, true
}

// writeError maps validation errors to 400s and everything else to a
// logged 500 with a generic message.
func (h *ConcernHandler) writeError(c *gin.Context, fallback string, err error) {
	switch {
	case errors.Is(err, concern.ErrEmptyMessage),
		errors.Is(err, concern.ErrNoChild),
		errors.Is(err, concern.ErrUnknownStatus):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, concern.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "concern not found"})
	default:
		h.logger.Error(fallback, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
