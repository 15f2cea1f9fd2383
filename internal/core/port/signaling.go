package port

import (
	"context"

	"github.com/Wyydra/yacall/internal/core/domain"
)

// SignalingTransport moves signaling messages between users. Delivery is
// best effort: Send returning nil does not mean the peer received anything.
type SignalingTransport interface {
	Send(ctx context.Context, msg domain.SignalingMessage) error
	// Subscribe returns the stream of messages addressed to userID and a
	// function that ends the subscription and closes the stream.
	Subscribe(userID domain.UserID) (<-chan domain.SignalingMessage, func(), error)
}
