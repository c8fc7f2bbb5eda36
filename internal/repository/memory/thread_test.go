package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkadenge/shulelink/internal/concern"
	"github.com/mkadenge/shulelink/internal/models"
)

var (
	parent = models.Viewer{ID: uuid.New(), Name: "Grace Wanjiru", Role: models.RoleParent}
	staff  = models.Viewer{ID: uuid.New(), Name: "Mr. Otieno", Role: models.RoleAdmin}
)

func newChild(parentID uuid.UUID) models.Child {
	return models.Child{ID: uuid.New(), ParentID: parentID, Name: "Amani"}
}

func TestCreateThreadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewThreadStore()

	th, err := store.CreateThread(ctx, parent, newChild(parent.ID), "", "Amani lost her sweater on Tuesday")
	require.NoError(t, err)

	threads, err := store.ListByParent(ctx, parent.ID)
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Equal(t, th.ID, threads[0].ID)
	assert.Equal(t, models.StatusPending, threads[0].Status)
	assert.Equal(t, "Amani lost her sweater on Tuesday", threads[0].Subject)

	messages, err := store.ListMessages(ctx, th.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "Amani lost her sweater on Tuesday", messages[0].Text)
	assert.Equal(t, parent.ID, messages[0].SenderID)
	assert.Equal(t, models.RoleParent, messages[0].Role)
}

func TestCreateThreadValidation(t *testing.T) {
	ctx := context.Background()
	store := NewThreadStore()

	_, err := store.CreateThread(ctx, parent, newChild(parent.ID), "subject", "   ")
	assert.ErrorIs(t, err, concern.ErrEmptyMessage)

	_, err = store.CreateThread(ctx, parent, models.Child{}, "subject", "text")
	assert.ErrorIs(t, err, concern.ErrNoChild)

	// Nothing was persisted by the failed attempts.
	threads, err := store.ListByParent(ctx, parent.ID)
	require.NoError(t, err)
	assert.Empty(t, threads)
}

func TestAppendMessageDrivesStatus(t *testing.T) {
	ctx := context.Background()
	store := NewThreadStore()

	th, err := store.CreateThread(ctx, parent, newChild(parent.ID), "Bus route", "The bus was late twice this week")
	require.NoError(t, err)

	_, err = store.AppendMessage(ctx, th.ID, staff, "We are looking into it")
	require.NoError(t, err)
	got, err := store.GetByID(ctx, th.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaitingForParent, got.Status)
	assert.Equal(t, "We are looking into it", got.LastMessage.Text)
	assert.Equal(t, staff.Name, got.LastMessage.SenderName)

	_, err = store.AppendMessage(ctx, th.ID, parent, "Thank you, it happened again today")
	require.NoError(t, err)
	got, err = store.GetByID(ctx, th.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOngoing, got.Status)
}

func TestAppendMessageOnSolvedThread(t *testing.T) {
	ctx := context.Background()
	store := NewThreadStore()

	th, err := store.CreateThread(ctx, parent, newChild(parent.ID), "", "Question about fees")
	require.NoError(t, err)
	require.NoError(t, store.SetStatus(ctx, th.ID, models.StatusSolved, staff))

	// The repository does not reject the append; it just refuses to
	// silently reopen. Callers gate replies on solved threads.
	_, err = store.AppendMessage(ctx, th.ID, parent, "One more thing")
	require.NoError(t, err)

	got, err := store.GetByID(ctx, th.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSolved, got.Status)

	messages, err := store.ListMessages(ctx, th.ID)
	require.NoError(t, err)
	assert.Len(t, messages, 2)
}

func TestSetStatusClosedFields(t *testing.T) {
	ctx := context.Background()
	store := NewThreadStore()

	th, err := store.CreateThread(ctx, parent, newChild(parent.ID), "", "Lunch menu question")
	require.NoError(t, err)

	require.NoError(t, store.SetStatus(ctx, th.ID, models.StatusSolved, staff))
	got, err := store.GetByID(ctx, th.ID)
	require.NoError(t, err)
	assert.Equal(t, staff.ID, got.ClosedBy)
	require.NotNil(t, got.ClosedAt)

	// Explicit reopen clears the closed markers.
	require.NoError(t, store.SetStatus(ctx, th.ID, models.StatusOngoing, staff))
	got, err = store.GetByID(ctx, th.ID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, got.ClosedBy)
	assert.Nil(t, got.ClosedAt)

	err = store.SetStatus(ctx, th.ID, "archived", staff)
	assert.ErrorIs(t, err, concern.ErrUnknownStatus)
}

func TestMarkReadIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewThreadStore()

	th, err := store.CreateThread(ctx, parent, newChild(parent.ID), "", "Pickup time change")
	require.NoError(t, err)

	isUnread := func() bool {
		got, err := store.GetByID(ctx, th.ID)
		require.NoError(t, err)
		lastRead, ok := got.LastReadBy[staff.ID]
		return !ok || got.LastUpdated.After(lastRead)
	}

	require.True(t, isUnread())

	require.NoError(t, store.MarkRead(ctx, th.ID, staff.ID))
	assert.False(t, isUnread())

	// A second mark with nothing new in between changes nothing.
	require.NoError(t, store.MarkRead(ctx, th.ID, staff.ID))
	assert.False(t, isUnread())

	// A new message after the mark flips it back.
	_, err = store.AppendMessage(ctx, th.ID, parent, "Is 4pm okay?")
	require.NoError(t, err)
	assert.True(t, isUnread())
}

func TestMessageOrderingUnderInterleavedAppends(t *testing.T) {
	ctx := context.Background()
	store := NewThreadStore()

	th, err := store.CreateThread(ctx, parent, newChild(parent.ID), "", "first")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			_, err := store.AppendMessage(ctx, th.ID, parent, fmt.Sprintf("parent %d", n))
			assert.NoError(t, err)
		}(i)
		go func(n int) {
			defer wg.Done()
			_, err := store.AppendMessage(ctx, th.ID, staff, fmt.Sprintf("staff %d", n))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	messages, err := store.ListMessages(ctx, th.ID)
	require.NoError(t, err)
	require.Len(t, messages, 21)

	for i := 1; i < len(messages); i++ {
		assert.Greater(t, messages[i].ID, messages[i-1].ID, "ids must be strictly increasing")
		assert.False(t, messages[i].CreatedAt.Before(messages[i-1].CreatedAt),
			"creation times must be non-decreasing")
	}
}

func TestListAllOrderedByLastUpdated(t *testing.T) {
	ctx := context.Background()
	store := NewThreadStore()

	first, err := store.CreateThread(ctx, parent, newChild(parent.ID), "", "oldest")
	require.NoError(t, err)
	second, err := store.CreateThread(ctx, parent, newChild(parent.ID), "", "newest")
	require.NoError(t, err)

	threads, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, threads, 2)
	assert.Equal(t, second.ID, threads[0].ID)

	// A reply bumps the older thread back to the top.
	_, err = store.AppendMessage(ctx, first.ID, staff, "following up")
	require.NoError(t, err)

	threads, err = store.ListAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, threads[0].ID)
}

func TestListByParentScoping(t *testing.T) {
	ctx := context.Background()
	store := NewThreadStore()
	other := models.Viewer{ID: uuid.New(), Name: "Peter Kamau", Role: models.RoleParent}

	_, err := store.CreateThread(ctx, parent, newChild(parent.ID), "", "mine")
	require.NoError(t, err)
	_, err = store.CreateThread(ctx, other, newChild(other.ID), "", "theirs")
	require.NoError(t, err)

	threads, err := store.ListByParent(ctx, parent.ID)
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Equal(t, "mine", threads[0].Subject)
}

func TestGetByIDMissing(t *testing.T) {
	store := NewThreadStore()

	th, err := store.GetByID(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, th)

	err = store.MarkRead(context.Background(), uuid.New(), staff.ID)
	assert.ErrorIs(t, err, concern.ErrNotFound)
}

func TestThreadSnapshotsAreIsolated(t *testing.T) {
	ctx := context.Background()
	store := NewThreadStore()

	th, err := store.CreateThread(ctx, parent, newChild(parent.ID), "", "isolation")
	require.NoError(t, err)

	got, err := store.GetByID(ctx, th.ID)
	require.NoError(t, err)
	got.LastReadBy[staff.ID] = got.LastUpdated

	// Mutating a returned snapshot must not leak into the store.
	again, err := store.GetByID(ctx, th.ID)
	require.NoError(t, err)
	assert.Empty(t, again.LastReadBy)
}
