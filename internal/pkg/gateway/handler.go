package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Gopher0727/GroupChat/config"
	"github.com/Gopher0727/GroupChat/internal/model"
	"github.com/Gopher0727/GroupChat/internal/pkg/errs"
	"github.com/Gopher0727/GroupChat/internal/realtime"
	"github.com/Gopher0727/GroupChat/middleware/auth"
)

const (
	maxFrameBytes = 4096
	writeTimeout  = 10 * time.Second
)

// Client operations.
const (
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
	OpPing        = "ping"
)

// Server frame types.
const (
	FrameEvent        = "event"
	FrameSubscribed   = "subscribed"
	FrameUnsubscribed = "unsubscribed"
	FrameDropped      = "dropped"
	FrameRevoked      = "revoked"
	FramePong         = "pong"
	FrameError        = "error"
)

// Subscriber opens a live feed of one conversation for a user. The message
// service implements it and performs the read-access check.
type Subscriber interface {
	Subscribe(ctx context.Context, conv model.Conversation, actorID string) (realtime.Subscription, error)
}

// ClientFrame is what clients send. Exactly one of GroupID and PeerID names
// the conversation of subscribe and unsubscribe.
type ClientFrame struct {
	Op      string `json:"op"`
	GroupID string `json:"group_id,omitempty"`
	PeerID  string `json:"peer_id,omitempty"`
}

// ServerFrame is what the gateway pushes.
type ServerFrame struct {
	Type         string          `json:"type"`
	Conversation string          `json:"conversation,omitempty"`
	Event        *realtime.Event `json:"event,omitempty"`
	Error        string          `json:"error,omitempty"`
	Code         string          `json:"code,omitempty"`
}

// Handler upgrades authenticated requests and runs the frame protocol.
type Handler struct {
	manager     *ConnectionManager
	subscriber  Subscriber
	upgrader    websocket.Upgrader
	readTimeout time.Duration
	logger      *zap.Logger
}

func NewHandler(manager *ConnectionManager, subscriber Subscriber, cfg *config.WebsocketConfig, allowOrigins []string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	readTimeout := time.Duration(cfg.ConnectionTimeout) * time.Second
	if readTimeout <= 0 {
		readTimeout = 3 * manager.interval
	}
	return &Handler{
		manager:    manager,
		subscriber: subscriber,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     originChecker(allowOrigins),
		},
		readTimeout: readTimeout,
		logger:      logger,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, "*") || slices.Contains(allowed, origin)
	}
}

// ServeWS must run behind the auth middleware.
func (h *Handler) ServeWS(c *gin.Context) {
	userID := auth.UserID(c)
	if userID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "code": "unauthenticated"})
		return
	}
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 已经写好了错误响应
		h.logger.Debug("websocket upgrade failed", zap.String("user_id", userID), zap.Error(err))
		return
	}

	conn := h.manager.Add(userID, ws)
	h.logger.Info("websocket connected", zap.String("user_id", userID), zap.String("conn_id", conn.ID))

	go h.writePump(conn)
	h.readPump(conn)
}

// readPump owns the socket's read side. When it returns the connection is
// torn down.
func (h *Handler) readPump(conn *Connection) {
	defer func() {
		h.manager.Remove(conn)
		h.logger.Info("websocket disconnected", zap.String("user_id", conn.UserID), zap.String("conn_id", conn.ID))
	}()

	conn.conn.SetReadLimit(maxFrameBytes)
	_ = conn.conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	conn.conn.SetPongHandler(func(string) error {
		conn.UpdateHeartbeat()
		return conn.conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	})

	for {
		_, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", zap.String("conn_id", conn.ID), zap.Error(err))
			}
			return
		}
		conn.UpdateHeartbeat()
		_ = conn.conn.SetReadDeadline(time.Now().Add(h.readTimeout))
		h.handleFrame(conn, data)
	}
}

func (h *Handler) writePump(conn *Connection) {
	ticker := time.NewTicker(h.manager.interval)
	defer ticker.Stop()

	for {
		select {
		case <-conn.Context().Done():
			_ = conn.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Second)
			return
		case frame := <-conn.send:
			if err := conn.write(websocket.TextMessage, frame, writeTimeout); err != nil {
				h.manager.Remove(conn)
				return
			}
		case <-ticker.C:
			if err := conn.write(websocket.PingMessage, nil, writeTimeout); err != nil {
				h.manager.Remove(conn)
				return
			}
		}
	}
}

func (h *Handler) handleFrame(conn *Connection, data []byte) {
	var frame ClientFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		h.reply(conn, ServerFrame{Type: FrameError, Code: errs.KindValidation.String(), Error: "malformed frame"})
		return
	}

	switch frame.Op {
	case OpPing:
		h.reply(conn, ServerFrame{Type: FramePong})
	case OpSubscribe:
		h.subscribe(conn, frame)
	case OpUnsubscribe:
		conv, ok := h.conversation(conn, frame)
		if !ok {
			return
		}
		conn.removeSubscription(conv.Key())
		h.reply(conn, ServerFrame{Type: FrameUnsubscribed, Conversation: conv.Key()})
	default:
		h.reply(conn, ServerFrame{Type: FrameError, Code: errs.KindValidation.String(), Error: "unknown op " + frame.Op})
	}
}

func (h *Handler) conversation(conn *Connection, frame ClientFrame) (model.Conversation, bool) {
	switch {
	case frame.GroupID != "" && frame.PeerID == "":
		return model.GroupConversation(frame.GroupID), true
	case frame.PeerID != "" && frame.GroupID == "":
		return model.DirectConversation(conn.UserID, frame.PeerID), true
	default:
		h.reply(conn, ServerFrame{Type: FrameError, Code: errs.KindValidation.String(), Error: "exactly one of group_id and peer_id is required"})
		return model.Conversation{}, false
	}
}

func (h *Handler) subscribe(conn *Connection, frame ClientFrame) {
	conv, ok := h.conversation(conn, frame)
	if !ok {
		return
	}
	key := conv.Key()

	sub, err := h.subscriber.Subscribe(conn.Context(), conv, conn.UserID)
	if err != nil {
		h.reply(conn, ServerFrame{Type: FrameError, Conversation: key, Code: errs.KindOf(err).String(), Error: err.Error()})
		return
	}
	if !conn.addSubscription(key, sub) {
		// 已订阅，保持幂等
		sub.Close()
		h.reply(conn, ServerFrame{Type: FrameSubscribed, Conversation: key})
		return
	}
	// subscribed 必须先于该会话的第一条事件入队
	h.reply(conn, ServerFrame{Type: FrameSubscribed, Conversation: key})
	go h.forward(conn, key, sub)
}

// forward copies one subscription into the connection. A subscription the bus
// dropped is reported so the client can re-list history and subscribe again.
// revocable is implemented by subscriptions that end when the reader loses
// access to the conversation.
type revocable interface {
	Revoked() bool
}

func (h *Handler) forward(conn *Connection, key string, sub realtime.Subscription) {
	for ev := range sub.Events() {
		if ev.Type == realtime.EventRevoke {
			if ev.Revokes(conn.UserID) && conn.subscribed(key, sub) {
				conn.removeSubscription(key)
				h.reply(conn, ServerFrame{Type: FrameRevoked, Conversation: key})
				return
			}
			continue
		}
		data, err := json.Marshal(ServerFrame{Type: FrameEvent, Conversation: key, Event: &ev})
		if err != nil {
			h.logger.Error("failed to encode event", zap.String("conversation", key), zap.Error(err))
			continue
		}
		if !conn.Enqueue(data) {
			if conn.Context().Err() == nil {
				h.logger.Warn("closing slow websocket client", zap.String("user_id", conn.UserID), zap.String("conn_id", conn.ID))
				h.manager.Remove(conn)
			}
			return
		}
	}
	if conn.Context().Err() == nil && conn.subscribed(key, sub) {
		conn.removeSubscription(key)
		typ := FrameDropped
		if r, ok := sub.(revocable); ok && r.Revoked() {
			typ = FrameRevoked
		}
		h.reply(conn, ServerFrame{Type: typ, Conversation: key})
	}
}

func (h *Handler) reply(conn *Connection, frame ServerFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	if !conn.Enqueue(data) {
		h.logger.Debug("dropping reply to full connection", zap.String("conn_id", conn.ID), zap.String("type", frame.Type))
	}
}
