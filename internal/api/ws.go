package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mkadenge/shulelink/internal/concern"
	"github.com/mkadenge/shulelink/internal/middleware"
	"github.com/mkadenge/shulelink/internal/models"
	"github.com/mkadenge/shulelink/internal/notify"
	"github.com/mkadenge/shulelink/internal/realtime"
	"github.com/mkadenge/shulelink/internal/repository"
)

// WSHandler serves the live concerns feed. Each connection hosts one
// role-appropriate controller whose lifetime is the connection's: the
// subscription, the unread tracker, and the admin's new-concern seen
// set all die with the socket.
type WSHandler struct {
	repo     repository.ThreadRepository
	children repository.ChildrenDirectory
	bus      realtime.Bus
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(
	repo repository.ThreadRepository,
	children repository.ChildrenDirectory,
	bus realtime.Bus,
	logger *zap.Logger,
) *WSHandler {
	return &WSHandler{
		repo:     repo,
		children: children,
		bus:      bus,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The session token already authenticates the caller.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// frame is one server→client message: a fresh view snapshot, a toast,
// or a command error.
type frame struct {
	Type         string               `json:"type"`
	View         *concern.View        `json:"view,omitempty"`
	Notification *notify.Notification `json:"notification,omitempty"`
	Error        string               `json:"error,omitempty"`
}

// command is one client→server message.
type command struct {
	Action   string    `json:"action"`
	ThreadID uuid.UUID `json:"threadId,omitempty"`
	ChildID  uuid.UUID `json:"childId,omitempty"`
	Subject  string    `json:"subject,omitempty"`
	Text     string    `json:"text,omitempty"`
	Status   string    `json:"status,omitempty"`
	ParentID uuid.UUID `json:"parentId,omitempty"`
}

const commandTimeout = 15 * time.Second

// Serve handles GET /v1/ws
func (h *WSHandler) Serve(c *gin.Context) {
	viewer := middleware.GetViewer(c)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written its own error response.
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	// All writes funnel through one channel: gorilla allows a single
	// concurrent writer.
	outbound := make(chan frame, 32)
	notifier := notify.Func(func(n notify.Notification) {
		select {
		case outbound <- frame{Type: "toast", Notification: &n}:
		default:
		}
	})

	ctrl, parentCtrl, adminCtrl, err := h.buildController(c.Request.Context(), viewer, notifier)
	if err != nil {
		h.logger.Error("failed to start concerns controller", zap.Error(err))
		conn.WriteJSON(frame{Type: "error", Error: "failed to load concerns"})
		return
	}
	defer ctrl.Close()

	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			select {
			case <-done:
				return
			case v, ok := <-ctrl.Updates():
				if !ok {
					return
				}
				select {
				case outbound <- frame{Type: "view", View: &v}:
				case <-done:
					return
				}
			}
		}
	}()

	writeErr := make(chan struct{})
	go func() {
		defer close(writeErr)
		for {
			select {
			case <-done:
				return
			case f := <-outbound:
				if err := conn.WriteJSON(f); err != nil {
					return
				}
			}
		}
	}()

	// Initial snapshot so the client renders before any change arrives.
	v := ctrl.Snapshot()
	outbound <- frame{Type: "view", View: &v}

	for {
		var cmd command
		if err := conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}
		select {
		case <-writeErr:
			return
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		if err := h.dispatch(ctx, cmd, ctrl, parentCtrl, adminCtrl); err != nil {
			select {
			case outbound <- frame{Type: "error", Error: err.Error()}:
			default:
			}
		}
		cancel()
	}
}

func (h *WSHandler) buildController(
	ctx context.Context,
	viewer models.Viewer,
	notifier notify.Notifier,
) (concern.Controller, *concern.ParentController, *concern.AdminController, error) {
	if viewer.Role == models.RoleAdmin {
		admin := concern.NewAdminController(ctx, h.repo, h.bus, notifier, h.logger, viewer)
		return admin, nil, admin, nil
	}
	parent, err := concern.NewParentController(ctx, h.repo, h.children, h.bus, notifier, h.logger, viewer)
	if err != nil {
		return nil, nil, nil, err
	}
	return parent, parent, nil, nil
}

func (h *WSHandler) dispatch(
	ctx context.Context,
	cmd command,
	ctrl concern.Controller,
	parentCtrl *concern.ParentController,
	adminCtrl *concern.AdminController,
) error {
	switch cmd.Action {
	case "select":
		return ctrl.SelectThread(ctx, cmd.ThreadID)
	case "clear":
		ctrl.ClearSelection()
		return nil
	case "reply":
		return ctrl.SendReply(ctx, cmd.Text)
	case "create":
		if parentCtrl == nil {
			return concern.ErrRoleNotAllowed
		}
		_, err := parentCtrl.CreateThread(ctx, cmd.ChildID, cmd.Subject, cmd.Text)
		return err
	case "status":
		if adminCtrl == nil {
			return concern.ErrRoleNotAllowed
		}
		status, err := concern.ParseStatus(cmd.Status)
		if err != nil {
			return err
		}
		return adminCtrl.UpdateStatus(ctx, status)
	case "filter":
		if adminCtrl == nil {
			return concern.ErrRoleNotAllowed
		}
		var status models.Status
		if cmd.Status != "" {
			parsed, err := concern.ParseStatus(cmd.Status)
			if err != nil {
				return err
			}
			status = parsed
		}
		adminCtrl.SetFilter(status, cmd.ParentID)
		return nil
	default:
		return concern.ErrUnknownAction
	}
}
