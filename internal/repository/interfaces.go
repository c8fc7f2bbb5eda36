package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/mkadenge/shulelink/internal/models"
)

// ThreadRepository is the storage contract for concern threads and
// their message logs. Two implementations exist: postgres (production)
// and memory (tests, local development).
//
// Point reads return nil, nil when nothing matches; list methods return
// empty slices, never nil. Every write that changes a thread also bumps
// its lastUpdated, so feeds ordered by lastUpdated stay correct without
// the caller doing anything.
type ThreadRepository interface {
	// CreateThread inserts a new thread (status pending) together with
	// its first message in a single transaction. An empty subject is
	// auto-derived from the message text.
	CreateThread(ctx context.Context, initiator models.Viewer, child models.Child, subject, firstMessage string) (*models.Thread, error)

	// AppendMessage adds a message after all existing messages in the
	// thread, refreshes the thread's lastMessage preview and
	// lastUpdated, and advances the status per the reply lifecycle.
	AppendMessage(ctx context.Context, threadID uuid.UUID, sender models.Viewer, text string) (*models.Message, error)

	// SetStatus overrides the thread status directly. The repository
	// checks only that the status is a known value; whether the change
	// is appropriate is the caller's decision.
	SetStatus(ctx context.Context, threadID uuid.UUID, status models.Status, by models.Viewer) error

	// MarkRead stamps the viewer's last-read time with the server
	// clock. Callers treat failures as best-effort: log and move on.
	MarkRead(ctx context.Context, threadID, viewerID uuid.UUID) error

	// GetByID returns one thread with its lastReadBy map populated.
	GetByID(ctx context.Context, threadID uuid.UUID) (*models.Thread, error)

	// ListAll returns every thread, most recently updated first. The
	// admin feed: one global list, no per-admin filtering here.
	ListAll(ctx context.Context) ([]models.Thread, error)

	// ListByParent returns the threads created by one parent, most
	// recently updated first.
	ListByParent(ctx context.Context, parentID uuid.UUID) ([]models.Thread, error)

	// ListMessages returns a thread's messages oldest first.
	ListMessages(ctx context.Context, threadID uuid.UUID) ([]models.Message, error)
}

// ChildrenDirectory is the household lookup: which children belong to a
// parent. Populates the "which child is this about" selector and
// validates the child denormalized onto a new thread.
type ChildrenDirectory interface {
	ListByParent(ctx context.Context, parentID uuid.UUID) ([]models.Child, error)
	GetByID(ctx context.Context, childID uuid.UUID) (*models.Child, error)
}

// UserDirectory resolves login accounts for the session layer.
type UserDirectory interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}
