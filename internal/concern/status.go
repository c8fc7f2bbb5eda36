package concern

import (
	"fmt"

	"github.com/mkadenge/shulelink/internal/models"
)

// The status lifecycle:
//
//	pending → ongoing ⇄ waiting_for_parent → solved
//
// pending is only ever the initial state. Replies flip the thread
// between ongoing (parent spoke last) and waiting_for_parent (staff
// spoke last), so each side's list can highlight "needs your reply"
// without any extra computation at read time. solved is reached only
// through an explicit status change, never as a side effect of a reply.

// NextStatus returns the status a thread moves to when a message with
// the given role is appended.
//
// A solved thread keeps its status: replying does not silently reopen
// a closed conversation. Reopening, if wanted, is an explicit
// SetStatus call.
func NextStatus(current models.Status, role models.Role) models.Status {
	if current == models.StatusSolved {
		return models.StatusSolved
	}
	if role == models.RoleAdmin {
		return models.StatusWaitingForParent
	}
	return models.StatusOngoing
}

// ParseStatus validates a status string from an untrusted caller.
func ParseStatus(s string) (models.Status, error) {
	switch models.Status(s) {
	case models.StatusPending, models.StatusOngoing, models.StatusWaitingForParent, models.StatusSolved:
		return models.Status(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}

// StatusLabels are the user-facing names for each status, used by the
// notification copy and the admin filter dropdown.
var StatusLabels = map[models.Status]string{
	models.StatusPending:          "Pending",
	models.StatusOngoing:          "Ongoing",
	models.StatusWaitingForParent: "Waiting for parent",
	models.StatusSolved:           "Solved",
}
