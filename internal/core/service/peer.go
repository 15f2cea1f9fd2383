package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var errShareSuperseded = errors.New("share request superseded")

// PeerManager owns the single peer connection of one call attempt together
// with the local capture tracks feeding it.
type PeerManager struct {
	factory port.PeerConnectionFactory
	devices port.MediaDevices
	ice     port.ICEConfig
	log     zerolog.Logger

	mu          sync.Mutex
	pc          port.PeerConnection
	tracks      []port.LocalTrack
	camera      port.LocalTrack
	microphone  port.LocalTrack
	videoSender port.RTPSender
	screen      port.LocalTrack
	closed      bool

	// screenGen advances on every share request and stop. A capture that
	// finishes under a stale generation is released instead of sent.
	screenGen uint64

	onICE   func(domain.ICECandidate)
	onTrack func(port.RemoteTrack)
	onState func(domain.ConnectionState)

	// iceMu serializes remote description commit against candidate
	// application so buffered candidates keep their receipt order.
	iceMu     sync.Mutex
	remoteSet bool
	pending   []domain.ICECandidate
}

func NewPeerManager(factory port.PeerConnectionFactory, devices port.MediaDevices, ice port.ICEConfig) *PeerManager {
	return &PeerManager{
		factory: factory,
		devices: devices,
		ice:     ice,
		log:     log.With().Str("component", "peer").Logger(),
	}
}

// Initialize builds the peer connection. It must be called once per call attempt.
func (m *PeerManager) Initialize(onICE func(domain.ICECandidate), onTrack func(port.RemoteTrack), onState func(domain.ConnectionState)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return domain.NewCallError(domain.ErrClosed, "initialize", nil)
	}
	if m.pc != nil {
		return errors.New("peer connection already initialized")
	}

	pc, err := m.factory.NewPeerConnection(m.ice)
	if err != nil {
		return domain.NewCallError(domain.ErrNegotiation, "initialize", err)
	}
	m.pc = pc
	m.onICE = onICE
	m.onTrack = onTrack
	m.onState = onState

	pc.OnICECandidate(func(c domain.ICECandidate) {
		if fn := m.callbacks().ice; fn != nil {
			fn(c)
		}
	})
	pc.OnTrack(func(t port.RemoteTrack) {
		m.log.Debug().Str("kind", string(t.Kind())).Str("track_id", t.ID()).Msg("Remote track")
		if fn := m.callbacks().track; fn != nil {
			fn(t)
		}
	})
	pc.OnConnectionStateChange(func(s domain.ConnectionState) {
		m.log.Debug().Str("state", string(s)).Msg("Connection state changed")
		if fn := m.callbacks().state; fn != nil {
			fn(s)
		}
	})

	m.log.Debug().Strs("ice_servers", m.ice.URLs).Uint8("pool_size", m.ice.CandidatePoolSize).Msg("Peer connection initialized")
	return nil
}

type peerCallbacks struct {
	ice   func(domain.ICECandidate)
	track func(port.RemoteTrack)
	state func(domain.ConnectionState)
}

func (m *PeerManager) callbacks() peerCallbacks {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return peerCallbacks{}
	}
	return peerCallbacks{ice: m.onICE, track: m.onTrack, state: m.onState}
}

func (m *PeerManager) conn(op string) (port.PeerConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, domain.NewCallError(domain.ErrClosed, op, nil)
	}
	if m.pc == nil {
		return nil, domain.NewCallError(domain.ErrNotInitialized, op, nil)
	}
	return m.pc, nil
}

// GetUserMedia acquires the capture devices. Every requested kind must be
// delivered; there is no fallback to a reduced stream.
func (m *PeerManager) GetUserMedia(ctx context.Context, video, audio bool) error {
	if _, err := m.conn("getUserMedia"); err != nil {
		return err
	}

	tracks, err := m.devices.GetUserMedia(ctx, port.MediaConstraints{Video: video, Audio: audio})
	if err != nil {
		return domain.NewCallError(domain.ErrDeviceAcquisition, "getUserMedia", err)
	}

	var camera, microphone port.LocalTrack
	for _, t := range tracks {
		switch t.Kind() {
		case domain.TrackVideo:
			camera = t
		case domain.TrackAudio:
			microphone = t
		}
	}
	if (video && camera == nil) || (audio && microphone == nil) {
		stopAll(tracks)
		return domain.NewCallError(domain.ErrDeviceAcquisition, "getUserMedia",
			fmt.Errorf("requested video=%t audio=%t, got %d tracks", video, audio, len(tracks)))
	}

	m.mu.Lock()
	if m.closed || ctx.Err() != nil {
		m.mu.Unlock()
		stopAll(tracks)
		if err := ctx.Err(); err != nil {
			return err
		}
		return domain.NewCallError(domain.ErrClosed, "getUserMedia", nil)
	}
	previous := m.tracks
	m.tracks = tracks
	m.camera = camera
	m.microphone = microphone
	m.mu.Unlock()

	stopAll(previous)
	m.log.Debug().Int("tracks", len(tracks)).Msg("Local media acquired")
	return nil
}

// AddLocalStreamTracks attaches the acquired tracks for sending.
func (m *PeerManager) AddLocalStreamTracks() error {
	pc, err := m.conn("addLocalStreamTracks")
	if err != nil {
		return err
	}
	m.mu.Lock()
	tracks := append([]port.LocalTrack(nil), m.tracks...)
	m.mu.Unlock()
	if len(tracks) == 0 {
		return domain.NewCallError(domain.ErrNotInitialized, "addLocalStreamTracks", errors.New("no local media"))
	}

	for _, t := range tracks {
		sender, err := pc.AddTrack(t)
		if err != nil {
			return domain.NewCallError(domain.ErrNegotiation, "addLocalStreamTracks", err)
		}
		if t.Kind() == domain.TrackVideo {
			m.mu.Lock()
			m.videoSender = sender
			m.mu.Unlock()
		}
	}
	return nil
}

// CreateOffer generates and commits the caller's local description.
func (m *PeerManager) CreateOffer(ctx context.Context) (domain.SessionDescription, error) {
	return m.createLocal(ctx, "createOffer", port.PeerConnection.CreateOffer)
}

// CreateAnswer generates and commits the callee's local description. The
// remote offer must already be set.
func (m *PeerManager) CreateAnswer(ctx context.Context) (domain.SessionDescription, error) {
	m.iceMu.Lock()
	ready := m.remoteSet
	m.iceMu.Unlock()
	if !ready {
		return domain.SessionDescription{}, domain.NewCallError(domain.ErrNegotiation, "createAnswer", errors.New("no remote offer"))
	}
	return m.createLocal(ctx, "createAnswer", port.PeerConnection.CreateAnswer)
}

func (m *PeerManager) createLocal(ctx context.Context, op string, create func(port.PeerConnection) (domain.SessionDescription, error)) (domain.SessionDescription, error) {
	pc, err := m.conn(op)
	if err != nil {
		return domain.SessionDescription{}, err
	}
	desc, err := create(pc)
	if err != nil {
		return domain.SessionDescription{}, domain.NewCallError(domain.ErrNegotiation, op, err)
	}
	if err := ctx.Err(); err != nil {
		return domain.SessionDescription{}, err
	}
	if _, err := m.conn(op); err != nil {
		return domain.SessionDescription{}, err
	}
	if err := pc.SetLocalDescription(desc); err != nil {
		return domain.SessionDescription{}, domain.NewCallError(domain.ErrNegotiation, op, err)
	}
	return desc, nil
}

// SetRemoteDescription commits the peer's description and then applies every
// buffered candidate in receipt order.
func (m *PeerManager) SetRemoteDescription(desc domain.SessionDescription) error {
	pc, err := m.conn("setRemoteDescription")
	if err != nil {
		return err
	}

	m.iceMu.Lock()
	defer m.iceMu.Unlock()
	if err := pc.SetRemoteDescription(desc); err != nil {
		return domain.NewCallError(domain.ErrNegotiation, "setRemoteDescription", err)
	}
	m.remoteSet = true

	pending := m.pending
	m.pending = nil
	for _, c := range pending {
		if err := pc.AddICECandidate(c); err != nil {
			m.log.Warn().Err(err).Str("candidate", c.Candidate).Msg("Buffered candidate rejected")
		}
	}
	if len(pending) > 0 {
		m.log.Debug().Int("count", len(pending)).Msg("Flushed buffered ICE candidates")
	}
	return nil
}

// AddIceCandidate applies c, or buffers it until a remote description exists.
func (m *PeerManager) AddIceCandidate(c domain.ICECandidate) error {
	pc, err := m.conn("addIceCandidate")
	if err != nil {
		return err
	}

	m.iceMu.Lock()
	defer m.iceMu.Unlock()
	if !m.remoteSet {
		m.pending = append(m.pending, c)
		return nil
	}
	if err := pc.AddICECandidate(c); err != nil {
		return domain.NewCallError(domain.ErrNegotiation, "addIceCandidate", err)
	}
	return nil
}

// PendingCandidates reports how many candidates wait for a remote description.
func (m *PeerManager) PendingCandidates() int {
	m.iceMu.Lock()
	defer m.iceMu.Unlock()
	return len(m.pending)
}

func (m *PeerManager) ToggleAudio(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.microphone != nil {
		m.microphone.SetEnabled(enabled)
	}
}

func (m *PeerManager) ToggleVideo(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.camera != nil {
		m.camera.SetEnabled(enabled)
	}
}

// ReplaceVideoTrackWithScreenShare sends a screen capture in place of the
// camera on the existing video sender. When the capture is ended from outside
// (the OS "stop sharing" control) the camera is restored and onStopped runs
// once.
func (m *PeerManager) ReplaceVideoTrackWithScreenShare(ctx context.Context, onStopped func()) error {
	m.mu.Lock()
	switch {
	case m.closed:
		m.mu.Unlock()
		return domain.NewCallError(domain.ErrClosed, "screenShare", nil)
	case m.videoSender == nil:
		m.mu.Unlock()
		return domain.NewCallError(domain.ErrNotInitialized, "screenShare", errors.New("no video sender"))
	case m.screen != nil:
		m.mu.Unlock()
		return nil
	}
	m.screenGen++
	gen := m.screenGen
	m.mu.Unlock()

	screen, err := m.devices.GetDisplayMedia(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrScreenShareCancelled) {
			return domain.NewCallError(domain.ErrScreenShareCancelled, "screenShare", err)
		}
		return domain.NewCallError(domain.ErrDeviceAcquisition, "screenShare", err)
	}

	m.mu.Lock()
	if m.closed || ctx.Err() != nil || m.screen != nil || m.screenGen != gen {
		stale := !m.closed && m.screenGen != gen
		m.mu.Unlock()
		screen.Stop()
		if err := ctx.Err(); err != nil {
			return err
		}
		if stale {
			return domain.NewCallError(domain.ErrScreenShareCancelled, "screenShare", errShareSuperseded)
		}
		return domain.NewCallError(domain.ErrClosed, "screenShare", nil)
	}
	m.screen = screen
	sender := m.videoSender
	m.mu.Unlock()

	if err := sender.ReplaceTrack(screen); err != nil {
		m.mu.Lock()
		m.screen = nil
		m.mu.Unlock()
		screen.Stop()
		return domain.NewCallError(domain.ErrNegotiation, "screenShare", err)
	}

	var once sync.Once
	screen.OnEnded(func() {
		if m.restoreCamera(screen) && onStopped != nil {
			once.Do(onStopped)
		}
	})
	m.log.Debug().Str("track_id", screen.ID()).Msg("Screen share started")
	return nil
}

// restoreCamera puts the camera back if screen is still the active share.
func (m *PeerManager) restoreCamera(screen port.LocalTrack) bool {
	m.mu.Lock()
	if m.closed || m.screen != screen {
		m.mu.Unlock()
		return false
	}
	m.screen = nil
	sender, camera := m.videoSender, m.camera
	m.mu.Unlock()

	if err := sender.ReplaceTrack(camera); err != nil {
		m.log.Error().Err(err).Msg("Failed to restore camera track")
	}
	m.log.Debug().Msg("Screen share ended, camera restored")
	return true
}

// StopScreenShare reverts to the camera at the caller's request.
func (m *PeerManager) StopScreenShare() error {
	m.mu.Lock()
	m.screenGen++
	screen := m.screen
	if screen == nil || m.closed {
		m.mu.Unlock()
		return nil
	}
	m.screen = nil
	sender, camera := m.videoSender, m.camera
	m.mu.Unlock()

	err := sender.ReplaceTrack(camera)
	screen.Stop()
	if err != nil {
		return domain.NewCallError(domain.ErrNegotiation, "stopScreenShare", err)
	}
	return nil
}

func (m *PeerManager) ScreenSharing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.screen != nil
}

// Close stops every local track and closes the connection. Repeated calls
// do nothing.
func (m *PeerManager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	pc := m.pc
	tracks := m.tracks
	screen := m.screen
	m.pc = nil
	m.tracks = nil
	m.camera = nil
	m.microphone = nil
	m.videoSender = nil
	m.screen = nil
	m.onICE = nil
	m.onTrack = nil
	m.onState = nil
	m.mu.Unlock()

	m.iceMu.Lock()
	m.pending = nil
	m.iceMu.Unlock()

	if screen != nil {
		screen.Stop()
	}
	stopAll(tracks)

	if pc == nil {
		return nil
	}
	if err := pc.Close(); err != nil {
		m.log.Warn().Err(err).Msg("Peer connection close error")
		return err
	}
	m.log.Debug().Msg("Peer connection closed")
	return nil
}

func stopAll(tracks []port.LocalTrack) {
	for _, t := range tracks {
		t.Stop()
	}
}
