package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gopher0727/GroupChat/internal/pkg/errs"
)

func TestStatusOf(t *testing.T) {
	tests := map[errs.Kind]int{
		errs.KindPermissionDenied: http.StatusForbidden,
		errs.KindBanned:           http.StatusForbidden,
		errs.KindNotFound:         http.StatusNotFound,
		errs.KindInvalidTarget:    http.StatusUnprocessableEntity,
		errs.KindInvalidReply:     http.StatusUnprocessableEntity,
		errs.KindAlreadyMember:    http.StatusConflict,
		errs.KindAlreadyBanned:    http.StatusConflict,
		errs.KindNotPending:       http.StatusConflict,
		errs.KindValidation:       http.StatusBadRequest,
		errs.KindUnavailable:      http.StatusServiceUnavailable,
		errs.KindUnknown:          http.StatusInternalServerError,
	}
	for kind, want := range tests {
		assert.Equal(t, want, statusOf(kind), kind.String())
	}
}

func respond(t *testing.T, err error) (*httptest.ResponseRecorder, ErrorResponse) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	respondError(c, err)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestRespondError(t *testing.T) {
	w, body := respond(t, errs.PermissionDenied("send_message", "group", "g1"))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "permission_denied", body.Code)
	assert.Equal(t, "send_message", body.Op)
	assert.Equal(t, "g1", body.ID)
	assert.NotEmpty(t, body.Error)

	w, body = respond(t, errs.Unavailable("message.send", errors.New("dial tcp 10.0.0.3:5432: connection refused")))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "unavailable", body.Code)
	assert.NotContains(t, body.Error, "10.0.0.3")

	w, body = respond(t, errors.New("something odd"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "unknown", body.Code)
	assert.Equal(t, "internal error", body.Error)
}

func TestActorRequiresUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	_, ok := actor(c)
	assert.False(t, ok)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Set("user_id", "alice")
	userID, ok := actor(c)
	assert.True(t, ok)
	assert.Equal(t, "alice", userID)
}
