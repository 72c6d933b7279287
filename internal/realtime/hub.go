package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/audioscribe/backend/internal/lifecycle"
)

const (
	// PingInterval and PongWait are used for heartbeat, in seconds.
	PingInterval = 30
	PongWait     = 60
)

// RedisPublisher publishes encoded events for other instances.
type RedisPublisher interface {
	PublishUserEvent(ctx context.Context, userID uuid.UUID, payload []byte) error
}

// RedisSubscriber subscribes to a user's event channel.
type RedisSubscriber interface {
	SubscribeUser(userID uuid.UUID, handler func(payload []byte)) (cancel func(), err error)
}

// Hub maintains user_id -> set of connections and delivers lifecycle events to them.
// With Redis configured, events go through Redis so every instance delivers them once.
type Hub struct {
	users    map[uuid.UUID]map[string]*Client
	subs     map[uuid.UUID]func() // cancel Redis subscription per user
	mu       sync.RWMutex
	logger   *zap.Logger
	redis    RedisPublisher
	redisSub RedisSubscriber
}

// NewHub creates a hub delivering events to local connections only.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		users:  make(map[uuid.UUID]map[string]*Client),
		subs:   make(map[uuid.UUID]func()),
		logger: logger,
	}
}

// UseRedis routes events through Redis.
func (h *Hub) UseRedis(pub RedisPublisher, sub RedisSubscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.redis = pub
	h.redisSub = sub
}

// Register adds a client. The first client of a user starts the Redis subscription.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.users[c.UserID] == nil {
		h.users[c.UserID] = make(map[string]*Client)
		if h.redisSub != nil {
			userID := c.UserID
			cancel, err := h.redisSub.SubscribeUser(userID, func(payload []byte) {
				h.deliver(userID, payload)
			})
			if err != nil {
				h.logger.Warn("redis subscribe failed", zap.String("user_id", userID.String()), zap.Error(err))
			} else {
				h.subs[userID] = cancel
			}
		}
	}
	h.users[c.UserID][c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("event stream opened", zap.String("client_id", c.ID), zap.String("user_id", c.UserID.String()))
}

// Unregister removes a client. The last client of a user cancels the Redis subscription.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if m, ok := h.users[c.UserID]; ok {
		if _, ok := m[c.ID]; ok {
			delete(m, c.ID)
			close(c.send)
		}
		if len(m) == 0 {
			delete(h.users, c.UserID)
			if cancel, ok := h.subs[c.UserID]; ok {
				cancel()
				delete(h.subs, c.UserID)
			}
		}
	}
	h.mu.Unlock()
	h.logger.Debug("event stream closed", zap.String("client_id", c.ID), zap.String("user_id", c.UserID.String()))
}

// Publish implements lifecycle.Publisher.
func (h *Hub) Publish(ctx context.Context, ev lifecycle.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	msg, err := json.Marshal(WSMessage{Event: string(ev.Type), Data: data})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	h.mu.RLock()
	pub := h.redis
	h.mu.RUnlock()
	if pub != nil {
		return pub.PublishUserEvent(ctx, ev.UserID, msg)
	}
	h.deliver(ev.UserID, msg)
	return nil
}

// deliver sends an encoded message to the user's local connections. Slow clients miss messages.
func (h *Hub) deliver(userID uuid.UUID, msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.users[userID] {
		select {
		case c.send <- msg:
		default:
			h.logger.Debug("client send buffer full, dropping event", zap.String("client_id", c.ID))
		}
	}
}

// ClientCount returns the number of open streams of a user.
func (h *Hub) ClientCount(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}
