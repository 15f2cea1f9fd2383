package pion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const pliInterval = 3 * time.Second

// RTPSource is implemented by local tracks that can feed a pion sender.
type RTPSource interface {
	TrackLocal() webrtc.TrackLocal
}

var errForeignTrack = errors.New("track cannot be sent by pion")

// PeerConnection adapts *webrtc.PeerConnection to port.PeerConnection.
type PeerConnection struct {
	pc  *webrtc.PeerConnection
	log zerolog.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func newPeerConnection(pc *webrtc.PeerConnection) *PeerConnection {
	ctx, cancel := context.WithCancel(context.Background())
	return &PeerConnection{
		pc:     pc,
		log:    log.With().Str("component", "pion").Logger(),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (p *PeerConnection) AddTrack(track port.LocalTrack) (port.RTPSender, error) {
	src, ok := track.(RTPSource)
	if !ok {
		return nil, fmt.Errorf("%w: %T", errForeignTrack, track)
	}
	sender, err := p.pc.AddTrack(src.TrackLocal())
	if err != nil {
		return nil, err
	}
	// Interceptors only see incoming RTCP when someone reads it.
	go drainRTCP(sender)
	return &rtpSender{sender: sender, track: track}, nil
}

func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func (p *PeerConnection) CreateOffer() (domain.SessionDescription, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return domain.SessionDescription{}, err
	}
	return fromPion(offer), nil
}

func (p *PeerConnection) CreateAnswer() (domain.SessionDescription, error) {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return domain.SessionDescription{}, err
	}
	return fromPion(answer), nil
}

func (p *PeerConnection) SetLocalDescription(desc domain.SessionDescription) error {
	sd, err := toPion(desc)
	if err != nil {
		return err
	}
	return p.pc.SetLocalDescription(sd)
}

func (p *PeerConnection) SetRemoteDescription(desc domain.SessionDescription) error {
	sd, err := toPion(desc)
	if err != nil {
		return err
	}
	return p.pc.SetRemoteDescription(sd)
}

func (p *PeerConnection) AddICECandidate(c domain.ICECandidate) error {
	return p.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	})
}

func (p *PeerConnection) OnICECandidate(fn func(domain.ICECandidate)) {
	p.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		// nil marks the end of gathering.
		if c == nil {
			return
		}
		ci := c.ToJSON()
		fn(domain.ICECandidate{
			Candidate:        ci.Candidate,
			SDPMid:           ci.SDPMid,
			SDPMLineIndex:    ci.SDPMLineIndex,
			UsernameFragment: ci.UsernameFragment,
		})
	})
}

func (p *PeerConnection) OnTrack(fn func(port.RemoteTrack)) {
	p.pc.OnTrack(func(remote *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		t := &remoteTrack{track: remote}
		p.log.Debug().Str("kind", remote.Kind().String()).Str("track_id", remote.ID()).Msg("Received remote track")
		if remote.Kind() == webrtc.RTPCodecTypeVideo {
			go p.requestKeyframes(remote)
		}
		go p.consume(t)
		fn(t)
	})
}

// requestKeyframes sends a PLI right away and then periodically so the
// remote encoder recovers quickly from loss.
func (p *PeerConnection) requestKeyframes(remote *webrtc.TrackRemote) {
	sendPLI := func() error {
		return p.pc.WriteRTCP([]rtcp.Packet{
			&rtcp.PictureLossIndication{MediaSSRC: uint32(remote.SSRC())},
		})
	}
	if err := sendPLI(); err != nil {
		p.log.Debug().Err(err).Msg("PLI not sent")
	}

	ticker := time.NewTicker(pliInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			if err := sendPLI(); err != nil {
				if errors.Is(err, io.ErrClosedPipe) {
					return
				}
				p.log.Debug().Err(err).Msg("PLI not sent")
			}
		}
	}
}

// consume reads the remote track until it ends. Playback is outside this
// adapter; reading keeps the jitter buffers and interceptors moving.
func (p *PeerConnection) consume(t *remoteTrack) {
	buf := make([]byte, 1500)
	for {
		n, _, err := t.track.Read(buf)
		if err != nil {
			p.log.Debug().Str("track_id", t.ID()).Uint64("packets", t.Packets()).Msg("Remote track ended")
			return
		}
		if n > 0 {
			t.count()
		}
	}
}

func (p *PeerConnection) OnConnectionStateChange(fn func(domain.ConnectionState)) {
	p.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		fn(connectionState(s))
	})
}

func (p *PeerConnection) ConnectionState() domain.ConnectionState {
	return connectionState(p.pc.ConnectionState())
}

func (p *PeerConnection) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.cancel()
		err = p.pc.Close()
	})
	return err
}

func connectionState(s webrtc.PeerConnectionState) domain.ConnectionState {
	switch s {
	case webrtc.PeerConnectionStateConnecting:
		return domain.ConnectionConnecting
	case webrtc.PeerConnectionStateConnected:
		return domain.ConnectionConnected
	case webrtc.PeerConnectionStateDisconnected:
		return domain.ConnectionDisconnected
	case webrtc.PeerConnectionStateFailed:
		return domain.ConnectionFailed
	case webrtc.PeerConnectionStateClosed:
		return domain.ConnectionClosed
	default:
		return domain.ConnectionNew
	}
}

func fromPion(sd webrtc.SessionDescription) domain.SessionDescription {
	return domain.SessionDescription{Type: domain.SDPType(sd.Type.String()), SDP: sd.SDP}
}

func toPion(desc domain.SessionDescription) (webrtc.SessionDescription, error) {
	switch desc.Type {
	case domain.SDPOffer:
		return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: desc.SDP}, nil
	case domain.SDPAnswer:
		return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: desc.SDP}, nil
	}
	return webrtc.SessionDescription{}, fmt.Errorf("unsupported description type %q", desc.Type)
}

type rtpSender struct {
	sender *webrtc.RTPSender

	mu    sync.Mutex
	track port.LocalTrack
}

func (s *rtpSender) Track() port.LocalTrack {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.track
}

func (s *rtpSender) ReplaceTrack(track port.LocalTrack) error {
	src, ok := track.(RTPSource)
	if !ok {
		return fmt.Errorf("%w: %T", errForeignTrack, track)
	}
	if err := s.sender.ReplaceTrack(src.TrackLocal()); err != nil {
		return err
	}
	s.mu.Lock()
	s.track = track
	s.mu.Unlock()
	return nil
}

type remoteTrack struct {
	track *webrtc.TrackRemote

	mu      sync.Mutex
	packets uint64
}

func (t *remoteTrack) ID() string       { return t.track.ID() }
func (t *remoteTrack) StreamID() string { return t.track.StreamID() }

func (t *remoteTrack) Kind() domain.TrackKind {
	if t.track.Kind() == webrtc.RTPCodecTypeAudio {
		return domain.TrackAudio
	}
	return domain.TrackVideo
}

func (t *remoteTrack) count() {
	t.mu.Lock()
	t.packets++
	t.mu.Unlock()
}

func (t *remoteTrack) Packets() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.packets
}
