package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/GroupChat/internal/pkg/errs"
	"github.com/Gopher0727/GroupChat/middleware/auth"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Op    string `json:"op,omitempty"`
	ID    string `json:"id,omitempty"`
}

func statusOf(kind errs.Kind) int {
	switch kind {
	case errs.KindPermissionDenied, errs.KindBanned:
		return http.StatusForbidden
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindInvalidTarget, errs.KindInvalidReply:
		return http.StatusUnprocessableEntity
	case errs.KindAlreadyMember, errs.KindAlreadyBanned, errs.KindNotPending:
		return http.StatusConflict
	case errs.KindValidation:
		return http.StatusBadRequest
	case errs.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err using its kind. The error is attached to the gin
// context so the access log records it.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)

	e, ok := errs.As(err)
	if !ok {
		c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
			Error: "internal error",
			Code:  errs.KindUnknown.String(),
		})
		return
	}

	body := ErrorResponse{
		Error: e.Error(),
		Code:  e.Kind.String(),
		Op:    e.Op,
		ID:    e.ID,
	}
	// 基础设施错误不把内部细节返回给客户端
	if e.Kind == errs.KindUnavailable {
		body.Error = "service temporarily unavailable"
	}
	c.AbortWithStatusJSON(statusOf(e.Kind), body)
}

// badRequest reports a body or query that could not be bound.
func badRequest(c *gin.Context, op string, err error) {
	respondError(c, errs.Validation(op, err.Error()))
}

// actor returns the authenticated user, answering 401 when there is none.
func actor(c *gin.Context) (string, bool) {
	userID := auth.UserID(c)
	if userID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
			Error: "unauthorized",
			Code:  "unauthenticated",
		})
		return "", false
	}
	return userID, true
}
