package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	pkgredis "github.com/Gopher0727/GroupChat/internal/pkg/redis"
)

const channelPrefix = "chat:"

// RedisBus carries events between nodes over Redis Pub/Sub, one channel per
// conversation. Redis delivers a channel's messages to each connection in
// publish order.
type RedisBus struct {
	client pkgredis.RedisClient
	buffer int
	logger *zap.Logger
}

func NewRedisBus(client pkgredis.RedisClient, buffer int, logger *zap.Logger) *RedisBus {
	if buffer <= 0 {
		buffer = DefaultBufferSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBus{client: client, buffer: buffer, logger: logger}
}

func Channel(topic string) string {
	return channelPrefix + topic
}

func (b *RedisBus) Publish(ctx context.Context, topic string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return b.client.Publish(ctx, Channel(topic), payload)
}

func (b *RedisBus) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	pubsub, err := b.client.Subscribe(ctx, Channel(topic))
	if err != nil {
		return nil, err
	}

	sub := &redisSub{
		pubsub: pubsub,
		out:    make(chan Event, b.buffer),
		done:   make(chan struct{}),
		logger: b.logger.With(zap.String("topic", topic)),
	}
	go sub.run(ctx)
	return sub, nil
}

// Close is a no-op: the underlying client is owned by the caller.
func (b *RedisBus) Close() error {
	return nil
}

type redisSub struct {
	pubsub *redis.PubSub
	out    chan Event
	done   chan struct{}
	once   sync.Once
	logger *zap.Logger
}

func (s *redisSub) run(ctx context.Context) {
	defer close(s.out)
	defer s.shutdown()

	ch := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				s.logger.Warn("discarding malformed event", zap.Error(err))
				continue
			}
			select {
			case s.out <- event:
			default:
				s.logger.Warn("dropping slow subscriber")
				return
			}
		}
	}
}

func (s *redisSub) shutdown() {
	s.once.Do(func() {
		close(s.done)
		_ = s.pubsub.Close()
	})
}

func (s *redisSub) Events() <-chan Event {
	return s.out
}

func (s *redisSub) Close() error {
	s.shutdown()
	return nil
}
