package redis

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/Gopher0727/GroupChat/config"
)

// SeqFloor returns the highest sequence number already persisted for a
// conversation. It is consulted only when the Redis counter is missing.
type SeqFloor func(ctx context.Context) (int64, error)

type RedisClient interface {
	Close() error
	GetClient() *redis.Client
	Ping(ctx context.Context) error
	NextSeq(ctx context.Context, conversation string, floor SeqFloor) (int64, error)
	SetUserOnline(ctx context.Context, userID, nodeID string, ttl time.Duration) error
	IsUserOnline(ctx context.Context, userID string) (bool, error)
	RemoveUserOnline(ctx context.Context, userID string) error
	Publish(ctx context.Context, channel string, message any) error
	Subscribe(ctx context.Context, channels ...string) (*redis.PubSub, error)
}

type Client struct {
	client *redis.Client
}

func NewClient(cfg *config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{client: rdb}, nil
}

// Wrap adapts an already configured go-redis client.
func Wrap(rdb *redis.Client) *Client {
	return &Client{client: rdb}
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) GetClient() *redis.Client {
	return c.client
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func seqKey(conversation string) string {
	return "seq:" + conversation
}

func onlineKey(userID string) string {
	return fmt.Sprintf("user:%s:online", userID)
}

// NextSeq allocates the next sequence number of a conversation with INCR.
//
// When the counter does not exist (first message, or Redis lost its data) and
// floor is non-nil, the counter is first created at floor with SETNX so that
// numbering resumes above what the database already holds. Every node takes
// the same path, so a concurrent INCR can never create the key below floor.
func (c *Client) NextSeq(ctx context.Context, conversation string, floor SeqFloor) (int64, error) {
	key := seqKey(conversation)

	if floor != nil {
		n, err := c.client.Exists(ctx, key).Result()
		if err != nil {
			return 0, fmt.Errorf("failed to check seq counter %s: %w", conversation, err)
		}
		if n == 0 {
			base, err := floor(ctx)
			if err != nil {
				return 0, fmt.Errorf("failed to load seq floor for %s: %w", conversation, err)
			}
			if err := c.client.SetNX(ctx, key, base, 0).Err(); err != nil {
				return 0, fmt.Errorf("failed to seed seq counter %s: %w", conversation, err)
			}
		}
	}

	result, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to generate seq id for %s: %w", conversation, err)
	}
	return result, nil
}

// SetUserOnline records which gateway node holds the user's connection.
func (c *Client) SetUserOnline(ctx context.Context, userID, nodeID string, ttl time.Duration) error {
	err := c.client.Set(ctx, onlineKey(userID), nodeID, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set user %s online: %w", userID, err)
	}
	return nil
}

func (c *Client) IsUserOnline(ctx context.Context, userID string) (bool, error) {
	result, err := c.client.Exists(ctx, onlineKey(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check if user %s is online: %w", userID, err)
	}
	return result > 0, nil
}

func (c *Client) RemoveUserOnline(ctx context.Context, userID string) error {
	err := c.client.Del(ctx, onlineKey(userID)).Err()
	if err != nil {
		return fmt.Errorf("failed to remove user %s online status: %w", userID, err)
	}
	return nil
}

func (c *Client) Publish(ctx context.Context, channel string, message any) error {
	err := c.client.Publish(ctx, channel, message).Err()
	if err != nil {
		return fmt.Errorf("failed to publish to channel %s: %w", channel, err)
	}
	return nil
}

func (c *Client) Subscribe(ctx context.Context, channels ...string) (*redis.PubSub, error) {
	pubsub := c.client.Subscribe(ctx, channels...)
	// 等待订阅确认，保证返回后发布的消息不会丢
	_, err := pubsub.Receive(ctx)
	if err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to channels: %w", err)
	}
	return pubsub, nil
}
