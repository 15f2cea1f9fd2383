package pion

import (
	"context"
	"strings"
	"testing"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type foreignTrack struct{ port.LocalTrack }

func newTestPair(t *testing.T) (*PeerConnection, *PeerConnection) {
	t.Helper()
	f, err := NewFactory(nil)
	require.NoError(t, err)

	a, err := f.NewPeerConnection(port.ICEConfig{CandidatePoolSize: 2})
	require.NoError(t, err)
	b, err := f.NewPeerConnection(port.ICEConfig{})
	require.NoError(t, err)
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return a.(*PeerConnection), b.(*PeerConnection)
}

func localMedia(t *testing.T) []port.LocalTrack {
	t.Helper()
	tracks, err := NewSyntheticDevices().GetUserMedia(context.Background(), port.MediaConstraints{Video: true, Audio: true})
	require.NoError(t, err)
	t.Cleanup(func() {
		for _, tr := range tracks {
			tr.Stop()
		}
	})
	return tracks
}

func TestPeerConnection_OfferAnswer(t *testing.T) {
	a, b := newTestPair(t)
	for _, tr := range localMedia(t) {
		_, err := a.AddTrack(tr)
		require.NoError(t, err)
	}
	for _, tr := range localMedia(t) {
		_, err := b.AddTrack(tr)
		require.NoError(t, err)
	}

	offer, err := a.CreateOffer()
	require.NoError(t, err)
	assert.Equal(t, domain.SDPOffer, offer.Type)
	assert.True(t, strings.Contains(offer.SDP, "m=audio"))
	assert.True(t, strings.Contains(offer.SDP, "m=video"))
	require.NoError(t, a.SetLocalDescription(offer))

	require.NoError(t, b.SetRemoteDescription(offer))
	answer, err := b.CreateAnswer()
	require.NoError(t, err)
	assert.Equal(t, domain.SDPAnswer, answer.Type)
	require.NoError(t, b.SetLocalDescription(answer))
	require.NoError(t, a.SetRemoteDescription(answer))

	assert.NotEqual(t, domain.ConnectionClosed, a.ConnectionState())
}

func TestPeerConnection_ReplaceTrack(t *testing.T) {
	a, _ := newTestPair(t)
	var camera port.LocalTrack
	for _, tr := range localMedia(t) {
		if tr.Kind() == domain.TrackVideo {
			camera = tr
		}
	}
	sender, err := a.AddTrack(camera)
	require.NoError(t, err)

	screen, err := NewSyntheticDevices().GetDisplayMedia(context.Background())
	require.NoError(t, err)
	defer screen.Stop()

	require.NoError(t, sender.ReplaceTrack(screen))
	assert.Equal(t, screen, sender.Track())
	require.NoError(t, sender.ReplaceTrack(camera))
	assert.Equal(t, camera, sender.Track())

	assert.ErrorIs(t, sender.ReplaceTrack(foreignTrack{}), errForeignTrack)
}

func TestPeerConnection_RejectsForeignTrack(t *testing.T) {
	a, _ := newTestPair(t)

	_, err := a.AddTrack(foreignTrack{})

	assert.ErrorIs(t, err, errForeignTrack)
}

func TestPeerConnection_CloseIsIdempotent(t *testing.T) {
	a, _ := newTestPair(t)

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	assert.Equal(t, domain.ConnectionClosed, a.ConnectionState())
}

func TestDescriptionConversion(t *testing.T) {
	_, err := toPion(domain.SessionDescription{Type: "rollback", SDP: ""})
	assert.Error(t, err)

	sd, err := toPion(domain.SessionDescription{Type: domain.SDPAnswer, SDP: "v=0"})
	require.NoError(t, err)
	assert.Equal(t, webrtc.SDPTypeAnswer, sd.Type)
	assert.Equal(t, domain.SessionDescription{Type: domain.SDPAnswer, SDP: "v=0"}, fromPion(sd))
}

func TestConnectionStateMapping(t *testing.T) {
	cases := map[webrtc.PeerConnectionState]domain.ConnectionState{
		webrtc.PeerConnectionStateNew:          domain.ConnectionNew,
		webrtc.PeerConnectionStateConnecting:   domain.ConnectionConnecting,
		webrtc.PeerConnectionStateConnected:    domain.ConnectionConnected,
		webrtc.PeerConnectionStateDisconnected: domain.ConnectionDisconnected,
		webrtc.PeerConnectionStateFailed:       domain.ConnectionFailed,
		webrtc.PeerConnectionStateClosed:       domain.ConnectionClosed,
	}
	for in, want := range cases {
		assert.Equal(t, want, connectionState(in), in.String())
	}
}

func TestSampleTrack(t *testing.T) {
	tr, err := NewSampleTrack(domain.TrackAudio, "stream")
	require.NoError(t, err)

	ended := 0
	tr.OnEnded(func() { ended++ })
	tr.SetEnabled(false)
	assert.False(t, tr.Enabled())
	assert.Equal(t, webrtc.RTPCodecTypeAudio, tr.TrackLocal().Kind())

	tr.Stop()
	tr.Stop()
	assert.Equal(t, 1, ended)
}

func TestSyntheticDevices_CancelledPicker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewSyntheticDevices().GetDisplayMedia(ctx)

	assert.ErrorIs(t, err, domain.ErrScreenShareCancelled)
}
