package ws

import "github.com/Wyydra/yacall/internal/core/domain"

// Client is one live connection of a user.
type Client interface {
	UserID() domain.UserID
	SendSignal(msg domain.SignalingMessage) error
	Close() error
}
