package concern

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mkadenge/shulelink/internal/models"
	"github.com/mkadenge/shulelink/internal/notify"
	"github.com/mkadenge/shulelink/internal/realtime"
	"github.com/mkadenge/shulelink/internal/repository"
)

// ParentController drives the concerns screen for one parent: their own
// threads only, thread creation, replies. Parents never change a
// thread's status directly — only their replies drive the lifecycle.
type ParentController struct {
	*session
	directory repository.ChildrenDirectory
	children  []models.Child
}

func NewParentController(
	ctx context.Context,
	repo repository.ThreadRepository,
	directory repository.ChildrenDirectory,
	bus realtime.Bus,
	notifier notify.Notifier,
	logger *zap.Logger,
	viewer models.Viewer,
) (*ParentController, error) {
	c := &ParentController{
		session:   newSession(repo, bus, notifier, logger, viewer),
		directory: directory,
	}
	c.listThreads = func(ctx context.Context) ([]models.Thread, error) {
		return repo.ListByParent(ctx, viewer.ID)
	}
	c.accept = func(ev realtime.Event) bool {
		return ev.ParentID == viewer.ID
	}

	children, err := directory.ListByParent(ctx, viewer.ID)
	if err != nil {
		return nil, fmt.Errorf("load children: %w", err)
	}
	c.children = children

	c.start(ctx)
	return c, nil
}

// Children populates the "which child is this about" selector.
func (c *ParentController) Children() []models.Child {
	return c.children
}

// CreateThread opens a new concern about one of the parent's own
// children. The subject may be blank; it is then derived from the
// message text.
func (c *ParentController) CreateThread(ctx context.Context, childID uuid.UUID, subject, text string) (*models.Thread, error) {
	if strings.TrimSpace(text) == "" {
		c.notifier.Notify(notify.Notification{Level: notify.LevelError, Text: "Please enter a message."})
		return nil, ErrEmptyMessage
	}

	var child *models.Child
	for i := range c.children {
		if c.children[i].ID == childID {
			child = &c.children[i]
			break
		}
	}
	if child == nil {
		c.notifier.Notify(notify.Notification{Level: notify.LevelError, Text: "Please select a child."})
		return nil, ErrNoChild
	}

	c.setSending(true)
	defer c.setSending(false)

	th, err := c.repo.CreateThread(ctx, c.viewer, *child, subject, text)
	if err != nil {
		c.logger.Error("create thread", zap.Error(err))
		c.notifier.Notify(notify.Notification{Level: notify.LevelError, Text: "Failed to submit your concern. Please try again."})
		return nil, err
	}

	c.bus.Publish(realtime.Event{
		Kind:     realtime.EventThreadCreated,
		ThreadID: th.ID,
		ParentID: th.CreatedByUserID,
	})
	c.notifier.Notify(notify.Notification{Level: notify.LevelSuccess, Text: "Your concern has been submitted."})
	c.refresh(ctx)
	return th, nil
}
