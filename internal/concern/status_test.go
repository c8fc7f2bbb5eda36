package concern

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mkadenge/shulelink/internal/models"
)

func TestNextStatus(t *testing.T) {
	tests := []struct {
		name    string
		current models.Status
		role    models.Role
		want    models.Status
	}{
		{"parent reply on pending", models.StatusPending, models.RoleParent, models.StatusOngoing},
		{"admin reply on pending", models.StatusPending, models.RoleAdmin, models.StatusWaitingForParent},
		{"parent reply on waiting", models.StatusWaitingForParent, models.RoleParent, models.StatusOngoing},
		{"admin reply on ongoing", models.StatusOngoing, models.RoleAdmin, models.StatusWaitingForParent},
		{"admin reply on waiting stays waiting", models.StatusWaitingForParent, models.RoleAdmin, models.StatusWaitingForParent},
		{"parent reply on ongoing stays ongoing", models.StatusOngoing, models.RoleParent, models.StatusOngoing},
		// Replying never reopens a closed conversation.
		{"parent reply on solved stays solved", models.StatusSolved, models.RoleParent, models.StatusSolved},
		{"admin reply on solved stays solved", models.StatusSolved, models.RoleAdmin, models.StatusSolved},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextStatus(tt.current, tt.role))
		})
	}
}

func TestNextStatusDependsOnlyOnLastSender(t *testing.T) {
	// Whatever the reply history, the status after a sequence is
	// decided by the last role alone (outside solved).
	status := models.StatusPending
	for _, role := range []models.Role{
		models.RoleParent, models.RoleParent, models.RoleAdmin,
		models.RoleParent, models.RoleAdmin, models.RoleAdmin,
	} {
		status = NextStatus(status, role)
	}
	assert.Equal(t, models.StatusWaitingForParent, status)
}

func TestParseStatus(t *testing.T) {
	for _, valid := range []string{"pending", "ongoing", "waiting_for_parent", "solved"} {
		status, err := ParseStatus(valid)
		assert.NoError(t, err)
		assert.Equal(t, models.Status(valid), status)
	}

	for _, invalid := range []string{"", "closed", "PENDING", "waiting"} {
		_, err := ParseStatus(invalid)
		assert.ErrorIs(t, err, ErrUnknownStatus, "input %q", invalid)
	}
}
