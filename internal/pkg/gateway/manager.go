package gateway

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Gopher0727/GroupChat/config"
)

// Presence records which users hold at least one socket. It is satisfied by
// the Redis client.
type Presence interface {
	SetUserOnline(ctx context.Context, userID, nodeID string, ttl time.Duration) error
	RemoveUserOnline(ctx context.Context, userID string) error
}

// ConnectionManager tracks the sockets of this node and keeps presence fresh.
type ConnectionManager struct {
	mu    sync.RWMutex
	users map[string]map[string]*Connection

	presence  Presence
	nodeID    string
	interval  time.Duration
	sendBuf   int
	logger    *zap.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewConnectionManager starts the heartbeat monitor. Presence entries live
// for two heartbeat intervals and are refreshed every interval.
func NewConnectionManager(ctx context.Context, cfg *config.WebsocketConfig, presence Presence, logger *zap.Logger) *ConnectionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := time.Duration(cfg.HeartbeatInterval) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	managerCtx, cancel := context.WithCancel(ctx)

	cm := &ConnectionManager{
		users:    make(map[string]map[string]*Connection),
		presence: presence,
		nodeID:   cfg.NodeID,
		interval: interval,
		sendBuf:  cfg.SendBufferSize,
		logger:   logger,
		ctx:      managerCtx,
		cancel:   cancel,
	}
	cm.wg.Go(cm.monitorHeartbeats)
	return cm
}

func (cm *ConnectionManager) presenceTTL() time.Duration {
	return 2 * cm.interval
}

// Add registers a socket for userID.
func (cm *ConnectionManager) Add(userID string, ws wsConn) *Connection {
	conn := newConnection(cm.ctx, userID, ws, cm.sendBuf)

	cm.mu.Lock()
	conns, ok := cm.users[userID]
	if !ok {
		conns = make(map[string]*Connection)
		cm.users[userID] = conns
	}
	conns[conn.ID] = conn
	cm.mu.Unlock()

	if err := cm.presence.SetUserOnline(cm.ctx, userID, cm.nodeID, cm.presenceTTL()); err != nil {
		// 在线状态只是提示信息，写失败不影响连接
		cm.logger.Warn("failed to set user online", zap.String("user_id", userID), zap.Error(err))
	}
	return conn
}

// Remove closes conn and forgets it. Presence is cleared when it was the
// user's last socket on this node.
func (cm *ConnectionManager) Remove(conn *Connection) {
	_ = conn.Close()

	cm.mu.Lock()
	conns := cm.users[conn.UserID]
	_, known := conns[conn.ID]
	delete(conns, conn.ID)
	last := known && len(conns) == 0
	if last {
		delete(cm.users, conn.UserID)
	}
	cm.mu.Unlock()

	if !last {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(cm.ctx), 2*time.Second)
	defer cancel()
	if err := cm.presence.RemoveUserOnline(ctx, conn.UserID); err != nil {
		cm.logger.Warn("failed to clear user presence", zap.String("user_id", conn.UserID), zap.Error(err))
	}
}

// Connections returns the user's sockets on this node.
func (cm *ConnectionManager) Connections(userID string) []*Connection {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	out := make([]*Connection, 0, len(cm.users[userID]))
	for _, c := range cm.users[userID] {
		out = append(out, c)
	}
	return out
}

func (cm *ConnectionManager) ConnectionCount() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	n := 0
	for _, conns := range cm.users {
		n += len(conns)
	}
	return n
}

func (cm *ConnectionManager) snapshot() []*Connection {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	var out []*Connection
	for _, conns := range cm.users {
		for _, c := range conns {
			out = append(out, c)
		}
	}
	return out
}

func (cm *ConnectionManager) monitorHeartbeats() {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-cm.ctx.Done():
			return
		case <-ticker.C:
			cm.checkHeartbeats()
		}
	}
}

// checkHeartbeats drops silent sockets and refreshes presence for the rest.
func (cm *ConnectionManager) checkHeartbeats() {
	refreshed := make(map[string]bool)
	for _, conn := range cm.snapshot() {
		if !conn.IsAlive(cm.presenceTTL()) {
			cm.logger.Info("closing connection after heartbeat timeout",
				zap.String("user_id", conn.UserID),
				zap.String("conn_id", conn.ID),
			)
			cm.Remove(conn)
			continue
		}
		if refreshed[conn.UserID] {
			continue
		}
		refreshed[conn.UserID] = true
		if err := cm.presence.SetUserOnline(cm.ctx, conn.UserID, cm.nodeID, cm.presenceTTL()); err != nil {
			cm.logger.Warn("failed to refresh presence", zap.String("user_id", conn.UserID), zap.Error(err))
		}
	}
}

// Shutdown closes every socket and stops the monitor.
func (cm *ConnectionManager) Shutdown() {
	cm.closeOnce.Do(func() {
		for _, conn := range cm.snapshot() {
			cm.Remove(conn)
		}
		cm.cancel()
		cm.wg.Wait()
	})
}
