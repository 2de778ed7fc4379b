package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/GroupChat/internal/model"
	"github.com/Gopher0727/GroupChat/internal/service"
)

type MessageHandler struct {
	messageService service.IMessageService
}

func NewMessageHandler(messageService service.IMessageService) *MessageHandler {
	return &MessageHandler{
		messageService: messageService,
	}
}

// conversation resolves the route to a conversation: /groups/:id/... or
// /direct/:peer_id/...
func conversation(c *gin.Context, userID string) model.Conversation {
	if peer := c.Param("peer_id"); peer != "" {
		return model.DirectConversation(userID, peer)
	}
	return model.GroupConversation(c.Param("id"))
}

// SendMessage handles sending a message
func (h *MessageHandler) SendMessage(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	var req service.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "message.send", err)
		return
	}

	msg, err := h.messageService.Send(c.Request.Context(), conversation(c, userID), userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// GetMessages pages backwards with ?before=<seq>&limit=<n>
func (h *MessageHandler) GetMessages(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	var req service.ListMessagesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, "message.list", err)
		return
	}

	page, err := h.messageService.List(c.Request.Context(), conversation(c, userID), userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	err := h.messageService.SoftDelete(c.Request.Context(), conversation(c, userID), userID, c.Param("message_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *MessageHandler) MarkRead(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	msg, err := h.messageService.MarkRead(c.Request.Context(), userID, c.Param("message_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (h *MessageHandler) MarkViewed(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	msg, err := h.messageService.MarkViewed(c.Request.Context(), userID, c.Param("message_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (h *MessageHandler) UnreadCount(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	count, err := h.messageService.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": count})
}

// ListDirectThreads is the direct-message inbox.
func (h *MessageHandler) ListDirectThreads(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	threads, err := h.messageService.ListDirectThreads(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"threads": threads})
}
