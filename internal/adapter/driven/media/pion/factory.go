package pion

import (
	"fmt"
	"time"

	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// CodecSetup registers the codecs a capture pipeline can produce.
type CodecSetup func(m *webrtc.MediaEngine) error

// DefaultCodecs registers pion's built-in codec list.
func DefaultCodecs(m *webrtc.MediaEngine) error {
	return m.RegisterDefaultCodecs()
}

// Factory builds peer connections that share one configured webrtc.API.
type Factory struct {
	api *webrtc.API
}

// NewFactory prepares the media engine, the default interceptors (NACK,
// RTCP reports, TWCC) and ICE timeouts tolerant of short network outages.
func NewFactory(setup CodecSetup) (*Factory, error) {
	if setup == nil {
		setup = DefaultCodecs
	}
	mediaEngine := &webrtc.MediaEngine{}
	if err := setup(mediaEngine); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	se := webrtc.SettingEngine{}
	se.SetICETimeouts(10*time.Second, 30*time.Second, 2*time.Second)

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(registry),
		webrtc.WithSettingEngine(se),
	)
	return &Factory{api: api}, nil
}

func (f *Factory) NewPeerConnection(cfg port.ICEConfig) (port.PeerConnection, error) {
	conf := webrtc.Configuration{
		ICECandidatePoolSize: cfg.CandidatePoolSize,
	}
	if len(cfg.URLs) > 0 {
		conf.ICEServers = []webrtc.ICEServer{{URLs: cfg.URLs}}
	}

	pc, err := f.api.NewPeerConnection(conf)
	if err != nil {
		return nil, err
	}
	log.Debug().Strs("ice_servers", cfg.URLs).Uint8("pool_size", cfg.CandidatePoolSize).Msg("Pion peer connection created")
	return newPeerConnection(pc), nil
}
