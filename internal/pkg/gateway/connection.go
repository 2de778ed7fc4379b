package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Gopher0727/GroupChat/internal/realtime"
)

// wsConn is the part of *websocket.Conn the gateway uses.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Connection is one client socket. A user may hold several, one per tab or
// device, each with its own conversation subscriptions.
type Connection struct {
	ID     string
	UserID string

	conn wsConn
	send chan []byte

	// writeMu serialises writes: gorilla allows one concurrent writer
	writeMu sync.Mutex

	heartbeatMu   sync.RWMutex
	lastHeartbeat time.Time

	subsMu sync.Mutex
	subs   map[string]realtime.Subscription

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func newConnection(ctx context.Context, userID string, conn wsConn, sendBuffer int) *Connection {
	connCtx, cancel := context.WithCancel(ctx)
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	return &Connection{
		ID:            uuid.NewString(),
		UserID:        userID,
		conn:          conn,
		send:          make(chan []byte, sendBuffer),
		lastHeartbeat: time.Now(),
		subs:          make(map[string]realtime.Subscription),
		ctx:           connCtx,
		cancel:        cancel,
	}
}

// Enqueue hands a frame to the writer without blocking. It reports false when
// the connection is closed or its buffer is full.
func (c *Connection) Enqueue(frame []byte) bool {
	select {
	case <-c.ctx.Done():
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *Connection) write(messageType int, data []byte, timeout time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
	return c.conn.WriteMessage(messageType, data)
}

// addSubscription registers sub under key. A second subscription to the same
// conversation is refused and closed by the caller.
func (c *Connection) addSubscription(key string, sub realtime.Subscription) bool {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	if c.ctx.Err() != nil {
		return false
	}
	if _, exists := c.subs[key]; exists {
		return false
	}
	c.subs[key] = sub
	return true
}

func (c *Connection) removeSubscription(key string) bool {
	c.subsMu.Lock()
	sub, ok := c.subs[key]
	delete(c.subs, key)
	c.subsMu.Unlock()

	if ok {
		sub.Close()
	}
	return ok
}

// subscribed reports whether sub is still the live subscription for key.
func (c *Connection) subscribed(key string, sub realtime.Subscription) bool {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	return c.subs[key] == sub
}

// Subscriptions returns the conversation keys this connection follows.
func (c *Connection) Subscriptions() []string {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	keys := make([]string, 0, len(c.subs))
	for k := range c.subs {
		keys = append(keys, k)
	}
	return keys
}

// Close is idempotent. It ends every subscription and the socket.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.subsMu.Lock()
		c.cancel()
		subs := c.subs
		c.subs = make(map[string]realtime.Subscription)
		c.subsMu.Unlock()

		for _, sub := range subs {
			sub.Close()
		}
		err = c.conn.Close()
	})
	return err
}

func (c *Connection) UpdateHeartbeat() {
	c.heartbeatMu.Lock()
	defer c.heartbeatMu.Unlock()
	c.lastHeartbeat = time.Now()
}

// IsAlive reports whether a heartbeat arrived within timeout.
func (c *Connection) IsAlive(timeout time.Duration) bool {
	c.heartbeatMu.RLock()
	defer c.heartbeatMu.RUnlock()
	return time.Since(c.lastHeartbeat) < timeout
}

func (c *Connection) Context() context.Context {
	return c.ctx
}
