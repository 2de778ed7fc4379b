package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/GroupChat/internal/model"
	"github.com/Gopher0727/GroupChat/internal/service"
)

type InviteHandler struct {
	inviteService service.IInviteService
}

func NewInviteHandler(inviteService service.IInviteService) *InviteHandler {
	return &InviteHandler{
		inviteService: inviteService,
	}
}

// Generate rotates the group's invite code
func (h *InviteHandler) Generate(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	code, err := h.inviteService.Generate(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"invite_code": code})
}

func (h *InviteHandler) Revoke(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	if err := h.inviteService.Revoke(c.Request.Context(), c.Param("id"), userID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Resolve previews the group behind a code
func (h *InviteHandler) Resolve(c *gin.Context) {
	if _, ok := actor(c); !ok {
		return
	}
	preview, err := h.inviteService.Resolve(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, preview)
}

// Join answers 201 for an admitted member and 202 for a pending request.
func (h *InviteHandler) Join(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	member, err := h.inviteService.Join(c.Request.Context(), c.Param("code"), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	status := http.StatusCreated
	if member.Status == model.MemberStatusPending {
		status = http.StatusAccepted
	}
	c.JSON(status, member)
}
