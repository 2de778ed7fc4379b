// Package permission decides what a member may do in a group. It is pure: the
// caller loads the group and the actor's effective role, the gate only reads them.
package permission

import (
	"github.com/Gopher0727/GroupChat/internal/model"
	"github.com/Gopher0727/GroupChat/internal/pkg/errs"
)

type Action string

const (
	ActionSendMessage    Action = "send_message"
	ActionEditInfo       Action = "edit_info"
	ActionManageMembers  Action = "manage_members"
	ActionManageSettings Action = "manage_settings"
	ActionDeleteGroup    Action = "delete_group"
)

// Actions lists every gated action.
var Actions = []Action{
	ActionSendMessage,
	ActionEditInfo,
	ActionManageMembers,
	ActionManageSettings,
	ActionDeleteGroup,
}

// Allowed reports whether role may perform action in group. RoleNone (not a
// member, or still pending) is never allowed anything.
func Allowed(group *model.Group, role model.Role, action Action) bool {
	if group == nil || role == model.RoleNone {
		return false
	}

	switch action {
	case ActionSendMessage:
		return group.IsOpen || role.IsManager()
	case ActionEditInfo:
		if role.IsManager() {
			return true
		}
		return role == model.RoleMember && !group.AdminOnlyEdit
	case ActionManageMembers, ActionManageSettings:
		return role.IsManager()
	case ActionDeleteGroup:
		return role == model.RoleOwner
	default:
		return false
	}
}

// Check is Allowed with an explicit denial error naming the action and group.
func Check(group *model.Group, role model.Role, action Action) error {
	if Allowed(group, role, action) {
		return nil
	}
	groupID := ""
	if group != nil {
		groupID = group.ID
	}
	return errs.PermissionDenied(string(action), "group", groupID)
}
