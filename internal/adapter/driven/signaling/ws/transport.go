package ws

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	maxMessageSize  = 64 * 1024
	subscriberQueue = 256
)

var ErrTransportClosed = errors.New("signaling transport closed")

// Transport is the client side of the relay: one WebSocket connection for
// one local user, fanned out to any number of subscribers.
type Transport struct {
	conn *websocket.Conn
	user domain.UserID
	log  zerolog.Logger

	writeMu sync.Mutex

	mu     sync.RWMutex
	subs   map[chan domain.SignalingMessage]struct{}
	closed bool

	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to the relay at baseURL (ws:// or wss://) as user.
func Dial(ctx context.Context, baseURL string, user domain.UserID) (*Transport, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/ws")
	if err != nil {
		return nil, fmt.Errorf("parse signaling url: %w", err)
	}
	q := u.Query()
	q.Set("user_id", user.String())
	u.RawQuery = q.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", u.Redacted(), resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}
	return newTransport(conn, user), nil
}

func newTransport(conn *websocket.Conn, user domain.UserID) *Transport {
	t := &Transport{
		conn: conn,
		user: user,
		log:  log.With().Str("component", "ws-transport").Str("user_id", user.String()).Logger(),
		subs: make(map[chan domain.SignalingMessage]struct{}),
		done: make(chan struct{}),
	}
	go t.readLoop()
	return t
}

func (t *Transport) Send(ctx context.Context, msg domain.SignalingMessage) error {
	if msg.SenderID != t.user {
		return fmt.Errorf("%w: sender %s does not own this connection", domain.ErrInvalidMessage, msg.SenderID)
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	select {
	case <-t.done:
		return ErrTransportClosed
	default:
	}

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return t.conn.WriteJSON(msg)
}

// Subscribe only serves the user the connection was opened for.
func (t *Transport) Subscribe(userID domain.UserID) (<-chan domain.SignalingMessage, func(), error) {
	if userID != t.user {
		return nil, nil, fmt.Errorf("transport belongs to %s, not %s", t.user, userID)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, nil, ErrTransportClosed
	}
	ch := make(chan domain.SignalingMessage, subscriberQueue)
	t.subs[ch] = struct{}{}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			if _, ok := t.subs[ch]; ok {
				delete(t.subs, ch)
				close(ch)
			}
		})
	}
	return ch, cancel, nil
}

// Done is closed once the connection is gone.
func (t *Transport) Done() <-chan struct{} {
	return t.done
}

func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.writeMu.Lock()
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		t.writeMu.Unlock()
		err = t.conn.Close()
	})
	return err
}

func (t *Transport) readLoop() {
	defer t.shutdown()

	t.conn.SetReadLimit(maxMessageSize)
	_ = t.conn.SetReadDeadline(time.Now().Add(pongWait))
	t.conn.SetPingHandler(func(data string) error {
		_ = t.conn.SetReadDeadline(time.Now().Add(pongWait))
		err := t.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		var msg domain.SignalingMessage
		if err := t.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				t.log.Error().Err(err).Msg("Unexpected close error")
			}
			return
		}
		_ = t.conn.SetReadDeadline(time.Now().Add(pongWait))
		if err := msg.Validate(); err != nil {
			t.log.Warn().Err(err).Msg("Dropping invalid signal from relay")
			continue
		}
		t.fanOut(msg)
	}
}

func (t *Transport) fanOut(msg domain.SignalingMessage) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for ch := range t.subs {
		select {
		case ch <- msg:
		default:
			t.log.Warn().Str("type", string(msg.Type)).Msg("Subscriber full, dropping signal")
		}
	}
}

func (t *Transport) shutdown() {
	t.mu.Lock()
	t.closed = true
	for ch := range t.subs {
		close(ch)
	}
	t.subs = make(map[chan domain.SignalingMessage]struct{})
	t.mu.Unlock()

	close(t.done)
	_ = t.Close()
	t.log.Info().Msg("Signaling connection closed")
}
