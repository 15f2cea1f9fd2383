package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type SignalHandler func(msg domain.SignalingMessage)

// SignalingChannel is the call-control pub/sub between the local user and a
// declared set of correspondents. Sends are fire-and-forget: there is no
// acknowledgement and nothing is retried.
type SignalingChannel struct {
	transport port.SignalingTransport
	local     domain.UserID
	log       zerolog.Logger

	mu        sync.RWMutex
	receivers map[domain.UserID]struct{}
	acceptAll map[domain.SignalType]struct{}
	handlers  map[domain.SignalType][]*handlerEntry
	cancel    func()
	done      chan struct{}
}

type handlerEntry struct {
	fn SignalHandler
}

func NewSignalingChannel(transport port.SignalingTransport, local domain.UserID) *SignalingChannel {
	return &SignalingChannel{
		transport: transport,
		local:     local,
		log:       log.With().Str("component", "signaling").Str("user_id", local.String()).Logger(),
		receivers: make(map[domain.UserID]struct{}),
		acceptAll: make(map[domain.SignalType]struct{}),
		handlers:  make(map[domain.SignalType][]*handlerEntry),
	}
}

func (c *SignalingChannel) LocalUserID() domain.UserID {
	return c.local
}

// Init subscribes to the transport. Calling it again while connected is a no-op.
func (c *SignalingChannel) Init() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return nil
	}

	ch, cancel, err := c.transport.Subscribe(c.local)
	if err != nil {
		return fmt.Errorf("%w: subscribe: %v", domain.ErrSignalingDelivery, err)
	}
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.dispatchLoop(ch, c.done)

	c.log.Debug().Msg("Signaling channel initialized")
	return nil
}

// AddReceiverID declares a correspondent whose messages are accepted.
func (c *SignalingChannel) AddReceiverID(id domain.UserID) {
	c.mu.Lock()
	c.receivers[id] = struct{}{}
	c.mu.Unlock()
}

// AcceptFromAnyone lets messages of type t through regardless of sender.
// Used for call-request, which by nature comes from an unknown party.
func (c *SignalingChannel) AcceptFromAnyone(t domain.SignalType) {
	c.mu.Lock()
	c.acceptAll[t] = struct{}{}
	c.mu.Unlock()
}

// On registers fn for event t and returns the matching unsubscribe handle.
func (c *SignalingChannel) On(t domain.SignalType, fn SignalHandler) func() {
	entry := &handlerEntry{fn: fn}
	c.mu.Lock()
	c.handlers[t] = append(c.handlers[t], entry)
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		list := c.handlers[t]
		for i, e := range list {
			if e == entry {
				c.handlers[t] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

func (c *SignalingChannel) SendOffer(ctx context.Context, target domain.UserID, desc domain.SessionDescription) error {
	return c.send(ctx, domain.SignalOffer, target, desc)
}

func (c *SignalingChannel) SendAnswer(ctx context.Context, target domain.UserID, desc domain.SessionDescription) error {
	return c.send(ctx, domain.SignalAnswer, target, desc)
}

func (c *SignalingChannel) SendIceCandidate(ctx context.Context, target domain.UserID, candidate domain.ICECandidate) error {
	return c.send(ctx, domain.SignalICECandidate, target, candidate)
}

func (c *SignalingChannel) SendEndCall(ctx context.Context, target domain.UserID) error {
	return c.send(ctx, domain.SignalEndCall, target, nil)
}

func (c *SignalingChannel) SendCallRequest(ctx context.Context, target domain.UserID, req domain.CallRequest) error {
	return c.send(ctx, domain.SignalCallRequest, target, req)
}

func (c *SignalingChannel) SendCallAccept(ctx context.Context, target domain.UserID) error {
	return c.send(ctx, domain.SignalCallAccept, target, nil)
}

func (c *SignalingChannel) SendCallReject(ctx context.Context, target domain.UserID, reason string) error {
	return c.send(ctx, domain.SignalCallReject, target, domain.CallReply{Reason: reason})
}

func (c *SignalingChannel) SendBusy(ctx context.Context, target domain.UserID) error {
	return c.send(ctx, domain.SignalBusy, target, domain.CallReply{Reason: "busy"})
}

func (c *SignalingChannel) send(ctx context.Context, t domain.SignalType, target domain.UserID, payload any) error {
	c.mu.RLock()
	connected := c.cancel != nil
	c.mu.RUnlock()
	if !connected {
		return fmt.Errorf("%w: channel not initialized", domain.ErrSignalingDelivery)
	}

	msg, err := domain.NewSignalingMessage(t, c.local, target, payload)
	if err != nil {
		return err
	}
	if err := c.transport.Send(ctx, *msg); err != nil {
		c.log.Warn().Err(err).Str("type", string(t)).Str("target_id", target.String()).Msg("Signal not sent")
		return fmt.Errorf("%w: %s to %s: %v", domain.ErrSignalingDelivery, t, target, err)
	}
	c.log.Debug().Str("type", string(t)).Str("target_id", target.String()).Msg("Signal sent")
	return nil
}

// Disconnect drops every handler and receiver and ends the subscription.
// Safe to call on a channel that is not connected.
func (c *SignalingChannel) Disconnect() {
	c.mu.Lock()
	cancel := c.cancel
	done := c.done
	c.cancel = nil
	c.done = nil
	c.handlers = make(map[domain.SignalType][]*handlerEntry)
	c.receivers = make(map[domain.UserID]struct{})
	c.acceptAll = make(map[domain.SignalType]struct{})
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	close(done)
	c.log.Debug().Msg("Signaling channel disconnected")
}

func (c *SignalingChannel) dispatchLoop(ch <-chan domain.SignalingMessage, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			c.dispatch(msg)
		}
	}
}

func (c *SignalingChannel) dispatch(msg domain.SignalingMessage) {
	c.mu.RLock()
	_, known := c.receivers[msg.SenderID]
	_, open := c.acceptAll[msg.Type]
	handlers := make([]*handlerEntry, len(c.handlers[msg.Type]))
	copy(handlers, c.handlers[msg.Type])
	c.mu.RUnlock()

	if msg.TargetID != c.local {
		return
	}
	if !known && !open {
		c.log.Debug().Str("type", string(msg.Type)).Str("sender_id", msg.SenderID.String()).Msg("Ignoring signal from undeclared sender")
		return
	}
	for _, h := range handlers {
		h.fn(msg)
	}
}
