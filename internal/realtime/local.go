package realtime

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

var ErrBusClosed = errors.New("realtime: bus closed")

// LocalBus is an in-process Bus for a single node. Each topic dispatches under
// its own lock, so every subscriber of a topic observes the same order.
type LocalBus struct {
	mu     sync.Mutex
	topics map[string]*localTopic
	buffer int
	closed bool
	logger *zap.Logger
}

type localTopic struct {
	mu   sync.Mutex
	subs map[*localSub]struct{}
}

type localSub struct {
	bus   *LocalBus
	topic string
	ch    chan Event

	stopMu sync.Mutex
	stop   func() bool
	// closed is guarded by the topic lock
	closed bool
}

func NewLocalBus(buffer int, logger *zap.Logger) *LocalBus {
	if buffer <= 0 {
		buffer = DefaultBufferSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalBus{
		topics: make(map[string]*localTopic),
		buffer: buffer,
		logger: logger,
	}
}

func (b *LocalBus) lookup(name string) (*localTopic, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBusClosed
	}
	return b.topics[name], nil
}

func (b *LocalBus) Publish(_ context.Context, topic string, event Event) error {
	t, err := b.lookup(topic)
	if err != nil {
		return err
	}
	if t == nil {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for sub := range t.subs {
		select {
		case sub.ch <- event:
		default:
			// 订阅者积压超过缓冲区，直接断开，由客户端重新拉取历史
			b.logger.Warn("dropping slow subscriber", zap.String("topic", topic))
			t.removeLocked(sub)
		}
	}
	return nil
}

func (b *LocalBus) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	sub := &localSub{bus: b, topic: topic, ch: make(chan Event, b.buffer)}

	// 在总锁内完成注册，避免与最后一个订阅者退出时删除 topic 竞争
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBusClosed
	}
	t, ok := b.topics[topic]
	if !ok {
		t = &localTopic{subs: make(map[*localSub]struct{})}
		b.topics[topic] = t
	}
	t.mu.Lock()
	t.subs[sub] = struct{}{}
	t.mu.Unlock()
	b.mu.Unlock()

	sub.stopMu.Lock()
	sub.stop = context.AfterFunc(ctx, func() { sub.Close() })
	sub.stopMu.Unlock()
	return sub, nil
}

// Close drops every subscriber. Later Publish and Subscribe calls fail.
func (b *LocalBus) Close() error {
	b.mu.Lock()
	b.closed = true
	topics := b.topics
	b.topics = make(map[string]*localTopic)
	b.mu.Unlock()

	for _, t := range topics {
		t.mu.Lock()
		for sub := range t.subs {
			t.removeLocked(sub)
		}
		t.mu.Unlock()
	}
	return nil
}

func (t *localTopic) removeLocked(sub *localSub) {
	if sub.closed {
		return
	}
	sub.closed = true
	delete(t.subs, sub)
	close(sub.ch)
}

func (s *localSub) Events() <-chan Event {
	return s.ch
}

func (s *localSub) Close() error {
	s.stopMu.Lock()
	if s.stop != nil {
		s.stop()
	}
	s.stopMu.Unlock()

	s.bus.mu.Lock()
	t := s.bus.topics[s.topic]
	s.bus.mu.Unlock()

	if t == nil {
		// bus already closed; the channel was closed with it
		return nil
	}
	t.mu.Lock()
	t.removeLocked(s)
	empty := len(t.subs) == 0
	t.mu.Unlock()

	if empty {
		s.bus.mu.Lock()
		t.mu.Lock()
		if len(t.subs) == 0 && s.bus.topics[s.topic] == t {
			delete(s.bus.topics, s.topic)
		}
		t.mu.Unlock()
		s.bus.mu.Unlock()
	}
	return nil
}
