package service

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/Gopher0727/GroupChat/config"
	"github.com/Gopher0727/GroupChat/internal/pkg/errs"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// CreateGroupRequest represents a request to create a group
type CreateGroupRequest struct {
	Name            string `json:"name" validate:"required"`
	Description     string `json:"description"`
	IsOpen          *bool  `json:"is_open"`
	RequireApproval bool   `json:"require_approval"`
	AdminOnlyEdit   bool   `json:"admin_only_edit"`
}

// UpdateGroupInfoRequest replaces the group's name and description.
type UpdateGroupInfoRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

// UpdateGroupSettingsRequest changes only the fields that are set.
type UpdateGroupSettingsRequest struct {
	IsOpen          *bool `json:"is_open"`
	RequireApproval *bool `json:"require_approval"`
	AdminOnlyEdit   *bool `json:"admin_only_edit"`
}

// SendMessageRequest represents a request to send a message
type SendMessageRequest struct {
	Content  string `json:"content" validate:"required"`
	ReplyTo  string `json:"reply_to" validate:"omitempty,max=64"`
	ViewOnce bool   `json:"view_once"`
}

// ListMessagesRequest pages backwards through history. Before is an exclusive
// seq cursor; zero starts at the newest message.
type ListMessagesRequest struct {
	Limit  int   `form:"limit" validate:"gte=0"`
	Before int64 `form:"before" validate:"gte=0"`
}

// RemoveMemberRequest carries the optional ban of a removal.
type RemoveMemberRequest struct {
	Ban    bool   `json:"ban"`
	Reason string `json:"reason" validate:"max=255"`
}

// SearchCandidatesRequest matches usernames containing Query.
type SearchCandidatesRequest struct {
	Query string `form:"q" validate:"required,max=64"`
}

// candidateLimit caps one page of SearchCandidates.
const candidateLimit = 10

// validateStruct runs the struct tags and turns the first failure into a
// validation error.
func validateStruct(op string, req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return errs.Validation(op, fmt.Sprintf("%s failed on %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return errs.Validation(op, err.Error())
}

// checkLength counts characters, not bytes.
func checkLength(op, field, value string, max int) error {
	if max > 0 && utf8.RuneCountInString(value) > max {
		return errs.Validation(op, fmt.Sprintf("%s must be at most %d characters", field, max))
	}
	return nil
}

func normalizeGroupInfo(op string, limits config.ChatConfig, name, description string) (string, string, error) {
	name = strings.TrimSpace(name)
	description = strings.TrimSpace(description)
	if name == "" {
		return "", "", errs.Validation(op, "name is required")
	}
	if err := checkLength(op, "name", name, limits.MaxNameLength); err != nil {
		return "", "", err
	}
	if err := checkLength(op, "description", description, limits.MaxDescriptionLength); err != nil {
		return "", "", err
	}
	return name, description, nil
}

func normalizeContent(op string, limits config.ChatConfig, content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", errs.Validation(op, "content is required")
	}
	if err := checkLength(op, "content", content, limits.MaxContentLength); err != nil {
		return "", err
	}
	return content, nil
}

// pageSize clamps a requested limit into [1, max], defaulting when unset.
func pageSize(limits config.ChatConfig, requested int) int {
	switch {
	case requested <= 0:
		return limits.DefaultPageSize
	case requested > limits.MaxPageSize:
		return limits.MaxPageSize
	default:
		return requested
	}
}
