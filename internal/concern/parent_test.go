package concern_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mkadenge/shulelink/internal/concern"
	"github.com/mkadenge/shulelink/internal/models"
	"github.com/mkadenge/shulelink/internal/notify"
	"github.com/mkadenge/shulelink/internal/realtime"
	"github.com/mkadenge/shulelink/internal/repository/memory"
)

// toastRecorder captures what the controllers would surface to the
// user-facing notification area.
type toastRecorder struct {
	mu    sync.Mutex
	notes []notify.Notification
}

func (r *toastRecorder) Notify(n notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
}

func (r *toastRecorder) byLevel(level notify.Level) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var texts []string
	for _, n := range r.notes {
		if n.Level == level {
			texts = append(texts, n.Text)
		}
	}
	return texts
}

type parentFixture struct {
	store   *memory.ThreadStore
	ctrl    *concern.ParentController
	viewer  models.Viewer
	child   models.Child
	toasts  *toastRecorder
}

func newParentFixture(t *testing.T) *parentFixture {
	t.Helper()

	viewer := models.Viewer{ID: uuid.New(), Name: "Grace Wanjiru", Role: models.RoleParent}
	child := models.Child{ID: uuid.New(), ParentID: viewer.ID, Name: "Amani"}

	store := memory.NewThreadStore()
	directory := memory.NewChildStore()
	directory.Add(child)

	toasts := &toastRecorder{}
	ctrl, err := concern.NewParentController(
		context.Background(),
		store,
		directory,
		realtime.NewBroker(zap.NewNop()),
		toasts,
		zap.NewNop(),
		viewer,
	)
	require.NoError(t, err)
	t.Cleanup(ctrl.Close)

	return &parentFixture{store: store, ctrl: ctrl, viewer: viewer, child: child, toasts: toasts}
}

func TestParentControllerInitialState(t *testing.T) {
	f := newParentFixture(t)

	v := f.ctrl.Snapshot()
	assert.False(t, v.Loading)
	assert.Empty(t, v.Threads)
	assert.Nil(t, v.SelectedThread)

	require.Len(t, f.ctrl.Children(), 1)
	assert.Equal(t, "Amani", f.ctrl.Children()[0].Name)
}

func TestParentControllerCreateThread(t *testing.T) {
	f := newParentFixture(t)
	ctx := context.Background()

	th, err := f.ctrl.CreateThread(ctx, f.child.ID, "", "Amani has been very quiet after lunch lately")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, th.Status)
	assert.Equal(t, f.viewer.ID, th.CreatedByUserID)
	assert.Equal(t, "Amani", th.ChildName)

	v := f.ctrl.Snapshot()
	require.Len(t, v.Threads, 1)
	assert.Equal(t, th.ID, v.Threads[0].ID)

	assert.NotEmpty(t, f.toasts.byLevel(notify.LevelSuccess))
}

func TestParentControllerCreateThreadValidation(t *testing.T) {
	f := newParentFixture(t)
	ctx := context.Background()

	_, err := f.ctrl.CreateThread(ctx, f.child.ID, "", "  ")
	assert.ErrorIs(t, err, concern.ErrEmptyMessage)

	_, err = f.ctrl.CreateThread(ctx, uuid.New(), "", "not my child")
	assert.ErrorIs(t, err, concern.ErrNoChild)

	assert.Empty(t, f.ctrl.Snapshot().Threads)
	assert.Len(t, f.toasts.byLevel(notify.LevelError), 2)
}

func TestParentControllerSelectAndReply(t *testing.T) {
	f := newParentFixture(t)
	ctx := context.Background()

	th, err := f.ctrl.CreateThread(ctx, f.child.ID, "Quiet at lunch", "Amani has been very quiet after lunch")
	require.NoError(t, err)

	require.NoError(t, f.ctrl.SelectThread(ctx, th.ID))
	v := f.ctrl.Snapshot()
	require.NotNil(t, v.SelectedThread)
	assert.Equal(t, th.ID, v.SelectedThread.ID)
	require.Len(t, v.Messages, 1)

	// Opening the thread recorded the read; nothing is unread now.
	assert.Contains(t, v.SelectedThread.LastReadBy, f.viewer.ID)
	assert.Zero(t, v.UnreadCount)

	require.NoError(t, f.ctrl.SendReply(ctx, "She says everything is fine but I am not sure"))
	v = f.ctrl.Snapshot()
	require.Len(t, v.Messages, 2)
	assert.Equal(t, models.StatusOngoing, v.SelectedThread.Status)

	f.ctrl.ClearSelection()
	v = f.ctrl.Snapshot()
	assert.Nil(t, v.SelectedThread)
	assert.Empty(t, v.Messages)
}

func TestParentControllerReplyRequiresSelection(t *testing.T) {
	f := newParentFixture(t)

	err := f.ctrl.SendReply(context.Background(), "hello?")
	assert.ErrorIs(t, err, concern.ErrNoSelection)
}

func TestParentControllerReplyBlockedWhenSolved(t *testing.T) {
	f := newParentFixture(t)
	ctx := context.Background()
	staff := models.Viewer{ID: uuid.New(), Name: "Mr. Otieno", Role: models.RoleAdmin}

	th, err := f.ctrl.CreateThread(ctx, f.child.ID, "", "Fee balance question")
	require.NoError(t, err)
	require.NoError(t, f.ctrl.SelectThread(ctx, th.ID))

	require.NoError(t, f.store.SetStatus(ctx, th.ID, models.StatusSolved, staff))
	f.ctrl.Refresh(ctx)

	err = f.ctrl.SendReply(ctx, "one more question")
	assert.ErrorIs(t, err, concern.ErrThreadSolved)

	messages, err := f.store.ListMessages(ctx, th.ID)
	require.NoError(t, err)
	assert.Len(t, messages, 1, "the blocked reply must not reach the store")
}

func TestParentControllerSeesOnlyOwnThreads(t *testing.T) {
	f := newParentFixture(t)
	ctx := context.Background()

	other := models.Viewer{ID: uuid.New(), Name: "Peter Kamau", Role: models.RoleParent}
	_, err := f.store.CreateThread(ctx, other, models.Child{ID: uuid.New(), ParentID: other.ID, Name: "Baraka"}, "", "not yours")
	require.NoError(t, err)

	_, err = f.ctrl.CreateThread(ctx, f.child.ID, "", "mine")
	require.NoError(t, err)

	v := f.ctrl.Snapshot()
	require.Len(t, v.Threads, 1)
	assert.Equal(t, f.viewer.ID, v.Threads[0].CreatedByUserID)
}

func TestParentControllerUnreadCount(t *testing.T) {
	f := newParentFixture(t)
	ctx := context.Background()
	staff := models.Viewer{ID: uuid.New(), Name: "Mr. Otieno", Role: models.RoleAdmin}

	th, err := f.ctrl.CreateThread(ctx, f.child.ID, "", "Homework load")
	require.NoError(t, err)
	require.NoError(t, f.ctrl.SelectThread(ctx, th.ID))
	assert.Zero(t, f.ctrl.Snapshot().UnreadCount)

	// A staff reply lands while the parent is elsewhere.
	_, err = f.store.AppendMessage(ctx, th.ID, staff, "We reviewed the homework policy")
	require.NoError(t, err)
	f.ctrl.Refresh(ctx)
	assert.Equal(t, 1, f.ctrl.Snapshot().UnreadCount)

	// Opening the thread again clears it.
	require.NoError(t, f.ctrl.SelectThread(ctx, th.ID))
	assert.Zero(t, f.ctrl.Snapshot().UnreadCount)
}
