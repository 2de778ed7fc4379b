package event

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/Gopher0727/GroupChat/config"
	"github.com/Gopher0727/GroupChat/internal/pkg/kafka"
	"github.com/Gopher0727/GroupChat/internal/pkg/workerpool"
)

const produceTimeout = 10 * time.Second

// KafkaPublisher hands events to the worker pool, which writes them to the
// topic of their category.
type KafkaPublisher struct {
	producer *kafka.Producer
	pool     *workerpool.Pool
	topics   config.KafkaTopicsConfig
	retries  int
	logger   *zap.Logger
}

func NewKafkaPublisher(producer *kafka.Producer, pool *workerpool.Pool, cfg *config.KafkaConfig, logger *zap.Logger) *KafkaPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaPublisher{
		producer: producer,
		pool:     pool,
		topics:   cfg.Topics,
		retries:  cfg.Producer.MaxRetries,
		logger:   logger,
	}
}

func (p *KafkaPublisher) topic(c Category) string {
	if c == CategoryMessage {
		return p.topics.Message
	}
	return p.topics.Membership
}

// Publish never blocks: when the pool queue is full the event is dropped and logged.
func (p *KafkaPublisher) Publish(_ context.Context, event DomainEvent) {
	if event.At.IsZero() {
		event.At = time.Now()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("failed to encode domain event", zap.String("type", event.Type), zap.Error(err))
		return
	}

	topic := p.topic(event.Category)
	err = p.pool.TrySubmit(func() {
		// 请求的 ctx 可能已结束，异步发送使用独立超时
		ctx, cancel := context.WithTimeout(context.Background(), produceTimeout)
		defer cancel()

		_, _, err := p.producer.ProduceWithRetry(ctx, topic, []byte(event.Key()), payload,
			map[string]string{"event": event.Type}, p.retries)
		if err != nil {
			p.logger.Error("failed to produce domain event",
				zap.String("topic", topic),
				zap.String("type", event.Type),
				zap.Error(err),
			)
		}
	})
	if err != nil {
		p.logger.Warn("dropping domain event", zap.String("type", event.Type), zap.Error(err))
	}
}
