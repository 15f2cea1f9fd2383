package devices

import (
	"sync"
	"sync/atomic"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/pion/mediadevices"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Track wraps a captured mediadevices track. Disabling it drops outgoing
// packets at the RTP writer, so the sender, its SSRC and the negotiated
// session stay untouched.
type Track struct {
	source mediadevices.Track
	kind   domain.TrackKind

	enabled *atomic.Bool

	mu       sync.Mutex
	bindings map[string]*gatedContext
	onEnded  []func()
	ended    bool
}

func newTrack(source mediadevices.Track) *Track {
	kind := domain.TrackVideo
	if source.Kind() == webrtc.RTPCodecTypeAudio {
		kind = domain.TrackAudio
	}
	t := &Track{
		source:   source,
		kind:     kind,
		enabled:  &atomic.Bool{},
		bindings: make(map[string]*gatedContext),
	}
	t.enabled.Store(true)
	source.OnEnded(func(err error) {
		if err != nil {
			log.Debug().Err(err).Str("track_id", source.ID()).Msg("Capture ended")
		}
		t.end()
	})
	return t
}

func (t *Track) ID() string              { return t.source.ID() }
func (t *Track) Kind() domain.TrackKind  { return t.kind }
func (t *Track) SetEnabled(enabled bool) { t.enabled.Store(enabled) }
func (t *Track) Enabled() bool           { return t.enabled.Load() }

// TrackLocal exposes the track to a pion sender.
func (t *Track) TrackLocal() webrtc.TrackLocal { return (*gatedTrack)(t) }

func (t *Track) Stop() {
	if err := t.source.Close(); err != nil {
		log.Debug().Err(err).Str("track_id", t.source.ID()).Msg("Capture close error")
	}
	t.end()
}

func (t *Track) OnEnded(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ended {
		return
	}
	t.onEnded = append(t.onEnded, fn)
}

func (t *Track) end() {
	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		return
	}
	t.ended = true
	handlers := t.onEnded
	t.onEnded = nil
	t.mu.Unlock()

	for _, fn := range handlers {
		fn()
	}
}

// gatedTrack is the webrtc.TrackLocal face of Track.
type gatedTrack Track

func (g *gatedTrack) ID() string                { return g.source.ID() }
func (g *gatedTrack) RID() string               { return g.source.RID() }
func (g *gatedTrack) StreamID() string          { return g.source.StreamID() }
func (g *gatedTrack) Kind() webrtc.RTPCodecType { return g.source.Kind() }

func (g *gatedTrack) Bind(ctx webrtc.TrackLocalContext) (webrtc.RTPCodecParameters, error) {
	gc := &gatedContext{TrackLocalContext: ctx, enabled: g.enabled}
	g.mu.Lock()
	g.bindings[ctx.ID()] = gc
	g.mu.Unlock()
	return g.source.Bind(gc)
}

func (g *gatedTrack) Unbind(ctx webrtc.TrackLocalContext) error {
	g.mu.Lock()
	gc, ok := g.bindings[ctx.ID()]
	delete(g.bindings, ctx.ID())
	g.mu.Unlock()
	if !ok {
		return g.source.Unbind(ctx)
	}
	return g.source.Unbind(gc)
}

type gatedContext struct {
	webrtc.TrackLocalContext
	enabled *atomic.Bool
}

func (c *gatedContext) WriteStream() webrtc.TrackLocalWriter {
	return &gatedWriter{inner: c.TrackLocalContext.WriteStream(), enabled: c.enabled}
}

type gatedWriter struct {
	inner   webrtc.TrackLocalWriter
	enabled *atomic.Bool
}

func (w *gatedWriter) WriteRTP(header *rtp.Header, payload []byte) (int, error) {
	if !w.enabled.Load() {
		return len(payload), nil
	}
	return w.inner.WriteRTP(header, payload)
}

func (w *gatedWriter) Write(b []byte) (int, error) {
	if !w.enabled.Load() {
		return len(b), nil
	}
	return w.inner.Write(b)
}
