package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSignalingMessage(t *testing.T) {
	desc := SessionDescription{Type: SDPOffer, SDP: "v=0"}
	msg, err := NewSignalingMessage(SignalOffer, "alice", "bob", desc)
	require.NoError(t, err)
	assert.Equal(t, SignalOffer, msg.Type)

	var got SessionDescription
	require.NoError(t, msg.Decode(&got))
	assert.Equal(t, desc, got)
}

func TestNewSignalingMessageNilPayload(t *testing.T) {
	msg, err := NewSignalingMessage(SignalEndCall, "alice", "bob", nil)
	require.NoError(t, err)
	assert.JSONEq(t, "null", string(msg.Payload))

	var v map[string]any
	assert.ErrorIs(t, msg.Decode(&v), ErrInvalidMessage)
}

func TestSignalingMessageValidate(t *testing.T) {
	cases := map[string]SignalingMessage{
		"unknown type":   {Type: "hello", SenderID: "a", TargetID: "b"},
		"missing sender": {Type: SignalOffer, TargetID: "b"},
		"missing target": {Type: SignalOffer, SenderID: "a"},
		"self":           {Type: SignalOffer, SenderID: "a", TargetID: "a"},
	}
	for name, msg := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, msg.Validate(), ErrInvalidMessage)
		})
	}
}

func TestCallErrorUnwrap(t *testing.T) {
	cause := errors.New("permission denied")
	err := NewCallError(ErrDeviceAcquisition, "getUserMedia", cause)

	assert.ErrorIs(t, err, ErrDeviceAcquisition)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrNegotiation)

	var ce *CallError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "getUserMedia", ce.Op)
}
