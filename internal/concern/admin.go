package concern

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mkadenge/shulelink/internal/models"
	"github.com/mkadenge/shulelink/internal/notify"
	"github.com/mkadenge/shulelink/internal/realtime"
	"github.com/mkadenge/shulelink/internal/repository"
)

// AdminController drives the staff concerns screen: the global thread
// feed, status overrides, and new-concern alerts. Admins never create
// threads — concerns always originate with a parent.
type AdminController struct {
	*session
	watcher *ThreadWatcher
}

func NewAdminController(
	ctx context.Context,
	repo repository.ThreadRepository,
	bus realtime.Bus,
	notifier notify.Notifier,
	logger *zap.Logger,
	viewer models.Viewer,
) *AdminController {
	c := &AdminController{
		session: newSession(repo, bus, notifier, logger, viewer),
		watcher: NewThreadWatcher(),
	}
	c.listThreads = repo.ListAll
	// The global feed cares about every thread.
	c.accept = func(realtime.Event) bool { return true }
	c.observe = c.announceNew

	c.start(ctx)
	return c
}

// announceNew raises a toast for threads arriving after the initial
// snapshot. When several arrive in one batch, only the most recent is
// surfaced; the list itself shows the rest.
func (c *AdminController) announceNew(threads []models.Thread) {
	fresh := c.watcher.Observe(threads)
	if len(fresh) == 0 {
		return
	}
	newest := fresh[0]
	c.notifier.Notify(notify.Notification{
		Level: notify.LevelInfo,
		Text:  fmt.Sprintf("New concern from %s about %s", newest.CreatedByUserName, newest.ChildName),
	})
}

// SetFilter narrows the visible thread list by status and/or
// originating parent. Zero values clear the corresponding filter.
func (c *AdminController) SetFilter(status models.Status, parentID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if status == "" && parentID == uuid.Nil {
		c.filter = nil
	} else {
		c.filter = func(th models.Thread) bool {
			if status != "" && th.Status != status {
				return false
			}
			if parentID != uuid.Nil && th.CreatedByUserID != parentID {
				return false
			}
			return true
		}
	}
	c.pushUpdateLocked()
}

// UpdateStatus overrides the selected thread's status, optimistically:
// the local view changes first, and rolls back if the write fails. The
// confirmation step for "mark solved" belongs to the presentation
// layer; by the time this runs the decision is made.
func (c *AdminController) UpdateStatus(ctx context.Context, status models.Status) error {
	if _, err := ParseStatus(string(status)); err != nil {
		return err
	}

	c.mu.Lock()
	selectedID := c.selectedID
	var previous models.Status
	var creatorID uuid.UUID
	var idx = -1
	for i := range c.threads {
		if c.threads[i].ID == selectedID {
			previous = c.threads[i].Status
			creatorID = c.threads[i].CreatedByUserID
			idx = i
			break
		}
	}
	if selectedID == uuid.Nil || idx < 0 {
		c.mu.Unlock()
		return ErrNoSelection
	}
	c.threads[idx].Status = status
	c.pushUpdateLocked()
	c.mu.Unlock()

	if err := c.repo.SetStatus(ctx, selectedID, status, c.viewer); err != nil {
		c.logger.Error("update status", zap.Error(err))
		c.mu.Lock()
		if idx < len(c.threads) && c.threads[idx].ID == selectedID {
			c.threads[idx].Status = previous
		}
		c.pushUpdateLocked()
		c.mu.Unlock()
		c.notifier.Notify(notify.Notification{Level: notify.LevelError, Text: "Failed to update status. Please try again."})
		return err
	}

	c.bus.Publish(realtime.Event{
		Kind:     realtime.EventThreadUpdated,
		ThreadID: selectedID,
		ParentID: creatorID,
	})
	c.notifier.Notify(notify.Notification{
		Level: notify.LevelSuccess,
		Text:  fmt.Sprintf("Concern marked as %s.", StatusLabels[status]),
	})
	c.refresh(ctx)
	return nil
}
