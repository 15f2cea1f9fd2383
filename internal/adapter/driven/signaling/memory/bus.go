package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/rs/zerolog/log"
)

const subscriberBuffer = 256

// Bus is an in-process signaling transport. Messages to a user without
// subscribers are dropped, like a relay would drop them for an offline user.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[domain.UserID]map[chan domain.SignalingMessage]struct{}
	closed      bool

	dropMu sync.Mutex
	drop   func(domain.SignalingMessage) bool
}

func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[domain.UserID]map[chan domain.SignalingMessage]struct{}),
	}
}

// SetDropFilter installs a predicate; matching messages are silently lost.
func (b *Bus) SetDropFilter(fn func(domain.SignalingMessage) bool) {
	b.dropMu.Lock()
	b.drop = fn
	b.dropMu.Unlock()
}

func (b *Bus) Send(ctx context.Context, msg domain.SignalingMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := msg.Validate(); err != nil {
		return err
	}

	b.dropMu.Lock()
	drop := b.drop
	b.dropMu.Unlock()
	if drop != nil && drop(msg) {
		return nil
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return errors.New("bus closed")
	}
	for ch := range b.subscribers[msg.TargetID] {
		select {
		case ch <- msg:
		default:
			log.Warn().Str("target_id", msg.TargetID.String()).Str("type", string(msg.Type)).Msg("Subscriber full, dropping signal")
		}
	}
	return nil
}

func (b *Bus) Subscribe(userID domain.UserID) (<-chan domain.SignalingMessage, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, nil, errors.New("bus closed")
	}

	ch := make(chan domain.SignalingMessage, subscriberBuffer)
	if b.subscribers[userID] == nil {
		b.subscribers[userID] = make(map[chan domain.SignalingMessage]struct{})
	}
	b.subscribers[userID][ch] = struct{}{}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subscribers[userID][ch]; !ok {
				return
			}
			delete(b.subscribers[userID], ch)
			if len(b.subscribers[userID]) == 0 {
				delete(b.subscribers, userID)
			}
			close(ch)
		})
	}
	return ch, cancel, nil
}

func (b *Bus) Subscribers(userID domain.UserID) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[userID])
}

func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, set := range b.subscribers {
		for ch := range set {
			close(ch)
		}
	}
	b.subscribers = make(map[domain.UserID]map[chan domain.SignalingMessage]struct{})
}
