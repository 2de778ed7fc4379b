package handler

import (
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/GroupChat/internal/pkg/errs"
	"github.com/Gopher0727/GroupChat/internal/service"
)

const maxAvatarBytes = 5 << 20

var avatarExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true}

type GroupHandler struct {
	membershipService service.IMembershipService
}

func NewGroupHandler(membershipService service.IMembershipService) *GroupHandler {
	return &GroupHandler{
		membershipService: membershipService,
	}
}

// CreateGroup handles group creation
func (h *GroupHandler) CreateGroup(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	var req service.CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "group.create", err)
		return
	}

	group, err := h.membershipService.CreateGroup(c.Request.Context(), userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, group)
}

// ListGroups returns the caller's inbox
func (h *GroupHandler) ListGroups(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	groups, err := h.membershipService.ListUserGroups(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

func (h *GroupHandler) GetGroup(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	group, err := h.membershipService.GetGroup(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, group)
}

func (h *GroupHandler) UpdateInfo(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	var req service.UpdateGroupInfoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "group.update_info", err)
		return
	}
	group, err := h.membershipService.UpdateInfo(c.Request.Context(), c.Param("id"), userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, group)
}

func (h *GroupHandler) UpdateSettings(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	var req service.UpdateGroupSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "group.update_settings", err)
		return
	}
	group, err := h.membershipService.UpdateSettings(c.Request.Context(), c.Param("id"), userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, group)
}

// SetAvatar takes a multipart upload in the "file" field.
func (h *GroupHandler) SetAvatar(c *gin.Context) {
	const op = "group.set_avatar"

	userID, ok := actor(c)
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxAvatarBytes)
	header, err := c.FormFile("file")
	if err != nil {
		badRequest(c, op, err)
		return
	}
	if !avatarExts[strings.ToLower(path.Ext(header.Filename))] {
		respondError(c, errs.Validation(op, "avatar must be a png, jpeg, gif or webp image"))
		return
	}
	file, err := header.Open()
	if err != nil {
		badRequest(c, op, err)
		return
	}
	defer file.Close()

	group, err := h.membershipService.SetAvatar(c.Request.Context(), c.Param("id"), userID, header.Filename, file)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, group)
}

func (h *GroupHandler) DeleteGroup(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	if err := h.membershipService.DeleteGroup(c.Request.Context(), c.Param("id"), userID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
