package pion

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

const frameInterval = 20 * time.Millisecond

// opusSilence is a single 20ms Opus frame of silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// SampleTrack is a generated local track. Audio tracks emit Opus silence
// while enabled; video tracks carry no frames. Used where no capture
// hardware exists.
type SampleTrack struct {
	track *webrtc.TrackLocalStaticSample
	kind  domain.TrackKind

	enabled atomic.Bool

	mu      sync.Mutex
	onEnded []func()
	ended   bool
	stop    chan struct{}
}

func NewSampleTrack(kind domain.TrackKind, streamID string) (*SampleTrack, error) {
	capability := webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
	if kind == domain.TrackAudio {
		capability = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
	}
	track, err := webrtc.NewTrackLocalStaticSample(capability, string(kind)+"-"+uuid.NewString(), streamID)
	if err != nil {
		return nil, err
	}
	t := &SampleTrack{track: track, kind: kind, stop: make(chan struct{})}
	t.enabled.Store(true)
	if kind == domain.TrackAudio {
		go t.pump()
	}
	return t, nil
}

func (t *SampleTrack) pump() {
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			if !t.enabled.Load() {
				continue
			}
			_ = t.track.WriteSample(media.Sample{Data: opusSilence, Duration: frameInterval})
		}
	}
}

func (t *SampleTrack) TrackLocal() webrtc.TrackLocal { return t.track }
func (t *SampleTrack) ID() string                    { return t.track.ID() }
func (t *SampleTrack) Kind() domain.TrackKind        { return t.kind }
func (t *SampleTrack) SetEnabled(enabled bool)       { t.enabled.Store(enabled) }
func (t *SampleTrack) Enabled() bool                 { return t.enabled.Load() }

func (t *SampleTrack) Stop() {
	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		return
	}
	t.ended = true
	close(t.stop)
	handlers := t.onEnded
	t.onEnded = nil
	t.mu.Unlock()

	for _, fn := range handlers {
		fn()
	}
}

func (t *SampleTrack) OnEnded(fn func()) {
	t.mu.Lock()
	if !t.ended {
		t.onEnded = append(t.onEnded, fn)
	}
	t.mu.Unlock()
}

// SyntheticDevices hands out SampleTracks in place of real capture.
type SyntheticDevices struct {
	streamID string
}

func NewSyntheticDevices() *SyntheticDevices {
	return &SyntheticDevices{streamID: "synthetic-" + uuid.NewString()}
}

func (d *SyntheticDevices) GetUserMedia(ctx context.Context, c port.MediaConstraints) ([]port.LocalTrack, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var tracks []port.LocalTrack
	if c.Audio {
		t, err := NewSampleTrack(domain.TrackAudio, d.streamID)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, t)
	}
	if c.Video {
		t, err := NewSampleTrack(domain.TrackVideo, d.streamID)
		if err != nil {
			for _, prev := range tracks {
				prev.Stop()
			}
			return nil, err
		}
		tracks = append(tracks, t)
	}
	if len(tracks) == 0 {
		return nil, errors.New("no media kind requested")
	}
	return tracks, nil
}

func (d *SyntheticDevices) GetDisplayMedia(ctx context.Context) (port.LocalTrack, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Join(domain.ErrScreenShareCancelled, err)
	}
	return NewSampleTrack(domain.TrackVideo, d.streamID)
}
