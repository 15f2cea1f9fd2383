package ws

import (
	"context"
	"fmt"
	"sync"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/rs/zerolog/log"
)

type registration struct {
	client Client
	// done reports whether the hub state changed.
	done chan bool
}

// Hub tracks the connection of every online user and implements
// port.SignalingGateway. A user has at most one connection; a newer one
// replaces the older.
type Hub struct {
	mu         sync.RWMutex
	clients    map[domain.UserID]Client
	register   chan registration
	unregister chan registration
	quit       chan struct{}
	stopOnce   sync.Once
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[domain.UserID]Client),
		register:   make(chan registration),
		unregister: make(chan registration),
		quit:       make(chan struct{}),
	}
}

func (h *Hub) SendSignal(ctx context.Context, userID domain.UserID, msg domain.SignalingMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.RLock()
	client, ok := h.clients[userID]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("user %s is not connected", userID)
	}
	return client.SendSignal(msg)
}

func (h *Hub) IsOnline(userID domain.UserID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

func (h *Hub) Online() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Run() {
	for {
		select {
		case <-h.quit:
			h.mu.Lock()
			for id, client := range h.clients {
				if err := client.Close(); err != nil {
					log.Error().Err(err).Str("user_id", id.String()).Msg("Error closing client connection")
				}
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return

		case reg := <-h.register:
			id := reg.client.UserID()
			h.mu.Lock()
			previous, replaced := h.clients[id]
			h.clients[id] = reg.client
			count := len(h.clients)
			h.mu.Unlock()
			if replaced && previous != reg.client {
				previous.Close()
				log.Info().Str("user_id", id.String()).Msg("Client replaced by a newer connection")
			}
			log.Info().Int("count", count).Str("user_id", id.String()).Msg("Client registered")
			reg.done <- true

		case reg := <-h.unregister:
			id := reg.client.UserID()
			h.mu.Lock()
			current, ok := h.clients[id]
			removed := ok && current == reg.client
			if removed {
				delete(h.clients, id)
			}
			count := len(h.clients)
			h.mu.Unlock()
			if removed {
				reg.client.Close()
				log.Info().Int("count", count).Str("user_id", id.String()).Msg("Client unregistered")
			}
			reg.done <- removed
		}
	}
}

// Register adds c once the hub has processed it.
func (h *Hub) Register(c Client) {
	h.send(h.register, c)
}

// Unregister removes c and reports whether c was still the user's live
// connection.
func (h *Hub) Unregister(c Client) bool {
	return h.send(h.unregister, c)
}

func (h *Hub) send(ch chan registration, c Client) bool {
	reg := registration{client: c, done: make(chan bool, 1)}
	select {
	case ch <- reg:
	case <-h.quit:
		return false
	}
	select {
	case changed := <-reg.done:
		return changed
	case <-h.quit:
		return false
	}
}

func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.quit) })
}
