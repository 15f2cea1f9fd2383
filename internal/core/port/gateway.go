package port

import (
	"context"

	"github.com/Wyydra/yacall/internal/core/domain"
)

// SignalingGateway delivers relayed messages to connected users.
type SignalingGateway interface {
	SendSignal(ctx context.Context, userID domain.UserID, msg domain.SignalingMessage) error
	IsOnline(userID domain.UserID) bool
}
