package port

import (
	"context"

	"github.com/Wyydra/yacall/internal/core/domain"
)

type ICEConfig struct {
	URLs              []string
	CandidatePoolSize uint8
}

type MediaConstraints struct {
	Video bool
	Audio bool
}

// LocalTrack is a captured audio or video source.
type LocalTrack interface {
	ID() string
	Kind() domain.TrackKind
	// SetEnabled gates transmission without detaching the track.
	SetEnabled(enabled bool)
	Enabled() bool
	// Stop releases the underlying device. OnEnded handlers fire at most once.
	Stop()
	OnEnded(fn func())
}

type RemoteTrack interface {
	ID() string
	StreamID() string
	Kind() domain.TrackKind
}

type RTPSender interface {
	Track() LocalTrack
	// ReplaceTrack swaps the outgoing track without renegotiation.
	ReplaceTrack(track LocalTrack) error
}

type PeerConnection interface {
	AddTrack(track LocalTrack) (RTPSender, error)
	CreateOffer() (domain.SessionDescription, error)
	CreateAnswer() (domain.SessionDescription, error)
	SetLocalDescription(desc domain.SessionDescription) error
	SetRemoteDescription(desc domain.SessionDescription) error
	AddICECandidate(candidate domain.ICECandidate) error
	OnICECandidate(fn func(candidate domain.ICECandidate))
	OnTrack(fn func(track RemoteTrack))
	OnConnectionStateChange(fn func(state domain.ConnectionState))
	ConnectionState() domain.ConnectionState
	Close() error
}

type PeerConnectionFactory interface {
	NewPeerConnection(cfg ICEConfig) (PeerConnection, error)
}

type MediaDevices interface {
	GetUserMedia(ctx context.Context, c MediaConstraints) ([]LocalTrack, error)
	// GetDisplayMedia captures the screen. It returns an error wrapping
	// domain.ErrScreenShareCancelled when the user dismisses the picker.
	GetDisplayMedia(ctx context.Context) (LocalTrack, error)
}
