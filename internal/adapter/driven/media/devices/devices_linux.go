//go:build linux

package devices

import (
	"context"
	"errors"
	"fmt"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	_ "github.com/pion/mediadevices/pkg/driver/screen"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Devices captures camera, microphone and screen through pion/mediadevices
// and encodes them with VP8 and Opus.
type Devices struct {
	codecs *mediadevices.CodecSelector
}

func New() (*Devices, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, fmt.Errorf("vp8 params: %w", err)
	}
	vpxParams.BitRate = 1_000_000

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, fmt.Errorf("opus params: %w", err)
	}

	for _, d := range mediadevices.EnumerateDevices() {
		log.Debug().Str("kind", fmt.Sprint(d.Kind)).Str("label", d.Label).Msg("Media device")
	}

	return &Devices{
		codecs: mediadevices.NewCodecSelector(
			mediadevices.WithVideoEncoders(&vpxParams),
			mediadevices.WithAudioEncoders(&opusParams),
		),
	}, nil
}

// RegisterCodecs makes the encoders known to a pion media engine.
func (d *Devices) RegisterCodecs(m *webrtc.MediaEngine) error {
	d.codecs.Populate(m)
	return nil
}

func (d *Devices) GetUserMedia(ctx context.Context, c port.MediaConstraints) ([]port.LocalTrack, error) {
	constraints := mediadevices.MediaStreamConstraints{Codec: d.codecs}
	if c.Video {
		constraints.Video = func(mc *mediadevices.MediaTrackConstraints) {
			mc.FrameFormat = prop.FrameFormatOneOf{
				frame.FormatYUYV,
				frame.FormatI420,
				frame.FormatI444,
				frame.FormatRGBA,
			}
			mc.Width = prop.IntRanged{Max: 1280}
			mc.Height = prop.IntRanged{Max: 720}
		}
	}
	if c.Audio {
		constraints.Audio = func(*mediadevices.MediaTrackConstraints) {}
	}

	tracks, err := capture(ctx, func() (mediadevices.MediaStream, error) {
		return mediadevices.GetUserMedia(constraints)
	})
	if err != nil {
		return nil, err
	}
	out := make([]port.LocalTrack, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, newTrack(t))
	}
	return out, nil
}

// GetDisplayMedia captures the primary screen. There is no picker on this
// platform: a cancelled ctx stands in for a dismissed one.
func (d *Devices) GetDisplayMedia(ctx context.Context) (port.LocalTrack, error) {
	tracks, err := capture(ctx, func() (mediadevices.MediaStream, error) {
		return mediadevices.GetDisplayMedia(mediadevices.MediaStreamConstraints{
			Video: func(*mediadevices.MediaTrackConstraints) {},
			Codec: d.codecs,
		})
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, errors.Join(domain.ErrScreenShareCancelled, err)
		}
		return nil, err
	}
	if len(tracks) == 0 {
		return nil, errors.New("display capture returned no track")
	}
	for _, extra := range tracks[1:] {
		extra.Close()
	}
	return newTrack(tracks[0]), nil
}

// capture runs a blocking mediadevices call and gives up when ctx ends,
// releasing whatever the call delivers afterwards.
func capture(ctx context.Context, open func() (mediadevices.MediaStream, error)) ([]mediadevices.Track, error) {
	type result struct {
		stream mediadevices.MediaStream
		err    error
	}
	done := make(chan result, 1)
	go func() {
		stream, err := open()
		done <- result{stream, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		return r.stream.GetTracks(), nil
	case <-ctx.Done():
		go func() {
			if r := <-done; r.err == nil {
				for _, t := range r.stream.GetTracks() {
					t.Close()
				}
			}
		}()
		return nil, ctx.Err()
	}
}
