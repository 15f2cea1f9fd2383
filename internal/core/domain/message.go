package domain

import (
	"encoding/json"
	"fmt"
)

type SignalType string

const (
	SignalOffer        SignalType = "offer"
	SignalAnswer       SignalType = "answer"
	SignalICECandidate SignalType = "ice-candidate"
	SignalEndCall      SignalType = "end-call"

	// ringing handshake
	SignalCallRequest SignalType = "call-request"
	SignalCallAccept  SignalType = "call-accept"
	SignalCallReject  SignalType = "call-reject"
	SignalBusy        SignalType = "busy"
)

func (t SignalType) Valid() bool {
	switch t {
	case SignalOffer, SignalAnswer, SignalICECandidate, SignalEndCall,
		SignalCallRequest, SignalCallAccept, SignalCallReject, SignalBusy:
		return true
	}
	return false
}

// SignalingMessage is the wire envelope exchanged through the relay.
type SignalingMessage struct {
	Type     SignalType      `json:"type"`
	SenderID UserID          `json:"senderId"`
	TargetID UserID          `json:"targetId"`
	Payload  json.RawMessage `json:"payload"`
}

func NewSignalingMessage(t SignalType, sender, target UserID, payload any) (*SignalingMessage, error) {
	msg := &SignalingMessage{
		Type:     t,
		SenderID: sender,
		TargetID: target,
		Payload:  json.RawMessage("null"),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: encode %s payload: %v", ErrInvalidMessage, t, err)
		}
		msg.Payload = raw
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return msg, nil
}

func (m SignalingMessage) Validate() error {
	if !m.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, m.Type)
	}
	if m.SenderID.IsZero() {
		return fmt.Errorf("%w: missing sender", ErrInvalidMessage)
	}
	if m.TargetID.IsZero() {
		return fmt.Errorf("%w: missing target", ErrInvalidMessage)
	}
	if m.SenderID == m.TargetID {
		return fmt.Errorf("%w: sender and target are the same user", ErrInvalidMessage)
	}
	return nil
}

// Decode unmarshals the payload into v.
func (m SignalingMessage) Decode(v any) error {
	if len(m.Payload) == 0 || string(m.Payload) == "null" {
		return fmt.Errorf("%w: %s has no payload", ErrInvalidMessage, m.Type)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("%w: decode %s payload: %v", ErrInvalidMessage, m.Type, err)
	}
	return nil
}
