package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/GroupChat/internal/service"
)

type MemberHandler struct {
	membershipService service.IMembershipService
}

func NewMemberHandler(membershipService service.IMembershipService) *MemberHandler {
	return &MemberHandler{
		membershipService: membershipService,
	}
}

type addMemberBody struct {
	UserID string `json:"user_id" binding:"required"`
}

func (h *MemberHandler) ListMembers(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	members, err := h.membershipService.ListMembers(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

func (h *MemberHandler) ListPending(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	pending, err := h.membershipService.ListPending(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": pending})
}

func (h *MemberHandler) ListBans(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	bans, err := h.membershipService.ListBans(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bans": bans})
}

// SearchCandidates finds users to add with ?q=<username fragment>
func (h *MemberHandler) SearchCandidates(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	var req service.SearchCandidatesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, "member.search_candidates", err)
		return
	}
	profiles, err := h.membershipService.SearchCandidates(c.Request.Context(), c.Param("id"), userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"candidates": profiles})
}

func (h *MemberHandler) AddMember(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	var body addMemberBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "member.add", err)
		return
	}
	if err := h.membershipService.AddMember(c.Request.Context(), c.Param("id"), userID, body.UserID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type targetFunc func(ctx context.Context, groupID, actorID, targetID string) error

// run serves the routes shaped /groups/:id/.../:user_id.
func (h *MemberHandler) run(c *gin.Context, call targetFunc) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	if err := call(c.Request.Context(), c.Param("id"), userID, c.Param("user_id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *MemberHandler) Promote(c *gin.Context) {
	h.run(c, h.membershipService.Promote)
}

func (h *MemberHandler) Demote(c *gin.Context) {
	h.run(c, h.membershipService.Demote)
}

func (h *MemberHandler) Approve(c *gin.Context) {
	h.run(c, h.membershipService.Approve)
}

func (h *MemberHandler) Reject(c *gin.Context) {
	h.run(c, h.membershipService.Reject)
}

func (h *MemberHandler) Unban(c *gin.Context) {
	h.run(c, h.membershipService.Unban)
}

// Remove takes an optional body; an empty one removes without a ban.
func (h *MemberHandler) Remove(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	var req service.RemoveMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "member.remove", err)
		return
	}
	if err := h.membershipService.Remove(c.Request.Context(), c.Param("id"), userID, c.Param("user_id"), &req); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *MemberHandler) Leave(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	if err := h.membershipService.Leave(c.Request.Context(), c.Param("id"), userID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
