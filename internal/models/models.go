package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is the acting party's category for a message or session.
type Role string

const (
	RoleParent Role = "parent"
	RoleAdmin  Role = "admin"
)

// Status is a concern thread's lifecycle state.
//
// A thread starts as pending. Replies move it between ongoing (parent
// spoke last) and waiting_for_parent (staff spoke last). Solved is set
// explicitly by staff and is terminal for the normal reply flow.
type Status string

const (
	StatusPending          Status = "pending"
	StatusOngoing          Status = "ongoing"
	StatusWaitingForParent Status = "waiting_for_parent"
	StatusSolved           Status = "solved"
)

// Viewer identifies whoever is acting on or looking at a thread.
// It is supplied by the session layer; nothing in the concern packages
// authenticates anything itself.
type Viewer struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Role Role      `json:"role"`
}

// Child is an entry from the household directory. Threads denormalize
// the child's id and name at creation time.
type Child struct {
	ID       uuid.UUID `json:"id"`
	ParentID uuid.UUID `json:"parentId"`
	Name     string    `json:"name"`
}

// LastMessage is the denormalized preview stored on a thread so summary
// lists render without a second read. Text is capped at 80 characters
// with an ellipsis.
type LastMessage struct {
	Text       string `json:"text"`
	SenderName string `json:"senderName"`
	Role       Role   `json:"role"`
}

// Thread is a parent-initiated concern about one child, tracked through
// the status lifecycle.
//
// The JSON field names are the persisted wire format shared with the
// rest of the application; renaming them breaks interop with stored data.
type Thread struct {
	ID                uuid.UUID   `json:"id"`
	CreatedByUserID   uuid.UUID   `json:"createdByUserId"`
	CreatedByUserName string      `json:"createdByUserName"`
	ChildID           uuid.UUID   `json:"childId"`
	ChildName         string      `json:"childName"`
	Subject           string      `json:"subject"`
	Status            Status      `json:"status"`
	CreatedAt         time.Time   `json:"createdAt"`
	LastUpdated       time.Time   `json:"lastUpdated"`
	LastMessage       LastMessage `json:"lastMessage"`

	// LastReadBy maps a viewer id to the server timestamp at which that
	// viewer last opened the thread. Entries are only ever written by
	// that viewer opening the thread, and never removed.
	LastReadBy map[uuid.UUID]time.Time `json:"lastReadBy"`

	// ClosedBy and ClosedAt are set only on the transition to solved.
	ClosedBy uuid.UUID  `json:"closedBy,omitempty"`
	ClosedAt *time.Time `json:"closedAt,omitempty"`
}

// Message is one entry in a thread's append-only log. Messages are
// immutable once written; there is no edit or delete.
//
// IDs are bigserial, not UUID — messages are the highest-volume table
// and the sequence gives a natural append order within a thread.
type Message struct {
	ID         int64     `json:"id"`
	ThreadID   uuid.UUID `json:"threadId"`
	SenderID   uuid.UUID `json:"senderId"`
	SenderName string    `json:"senderName"`
	Role       Role      `json:"role"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"createdAt"`
}

// User is a login account: a parent or a staff member. Consumed only by
// the session layer; concern operations see a Viewer.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Role         Role      `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// DisplayName is the name denormalized onto threads and messages.
func (u User) DisplayName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// Viewer converts a user record into the identity shape the concern
// packages operate on.
func (u User) Viewer() Viewer {
	return Viewer{ID: u.ID, Name: u.DisplayName(), Role: u.Role}
}
