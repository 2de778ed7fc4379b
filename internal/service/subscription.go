package service

import (
	"sync"
	"sync/atomic"

	"github.com/Gopher0727/GroupChat/internal/realtime"
)

// memberSubscription is a group subscription that ends when its reader's
// membership does. Revoke events are consumed here and never reach the
// reader; one addressed to the reader closes the stream before any later
// event of the conversation is delivered.
type memberSubscription struct {
	inner  realtime.Subscription
	userID string
	out    chan realtime.Event
	done   chan struct{}
	once   sync.Once

	revoked atomic.Bool
}

func newMemberSubscription(inner realtime.Subscription, userID string) *memberSubscription {
	s := &memberSubscription{
		inner:  inner,
		userID: userID,
		out:    make(chan realtime.Event),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *memberSubscription) run() {
	defer close(s.out)

	events := s.inner.Events()
	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Type == realtime.EventRevoke {
				if ev.Revokes(s.userID) {
					s.revoked.Store(true)
					_ = s.inner.Close()
					return
				}
				continue
			}
			select {
			case s.out <- ev:
			case <-s.done:
				return
			}
		}
	}
}

func (s *memberSubscription) Events() <-chan realtime.Event {
	return s.out
}

func (s *memberSubscription) Close() error {
	s.once.Do(func() { close(s.done) })
	return s.inner.Close()
}

// Revoked reports whether the stream ended because the reader lost access.
func (s *memberSubscription) Revoked() bool {
	return s.revoked.Load()
}
