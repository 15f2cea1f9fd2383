package domain

import (
	"encoding/json"
	"time"
)

type Role string

const (
	RoleCaller Role = "caller"
	RoleCallee Role = "callee"
)

type CallPhase int

const (
	PhaseIdle CallPhase = iota
	PhaseOutgoing
	PhaseIncoming
	PhaseConnected
)

func (p CallPhase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseOutgoing:
		return "outgoing"
	case PhaseIncoming:
		return "incoming"
	case PhaseConnected:
		return "connected"
	default:
		return "unknown"
	}
}

type MediaState struct {
	Muted         bool `json:"muted"`
	VideoEnabled  bool `json:"videoEnabled"`
	ScreenSharing bool `json:"screenSharing"`
}

// DefaultMediaState is the privacy-by-default state every accepted call
// starts from: microphone muted, camera off, nothing shared.
func DefaultMediaState() MediaState {
	return MediaState{Muted: true, VideoEnabled: false, ScreenSharing: false}
}

type CallSession struct {
	ID                CallID    `json:"id"`
	LocalUserID       UserID    `json:"localUserId"`
	RemoteUserID      UserID    `json:"remoteUserId"`
	RemoteDisplayName string    `json:"remoteDisplayName"`
	Role              Role      `json:"role"`
	StartedAt         time.Time `json:"startedAt"`
}

// CallState is the serializable snapshot held by the store. Identity fields
// are pointers so that an idle snapshot serializes them as null.
type CallState struct {
	Phase           CallPhase       `json:"phase"`
	OtherPartyLeft  bool            `json:"otherPartyLeft"`
	Media           MediaState      `json:"media"`
	Session         *CallSession    `json:"session"`
	CallerID        *UserID         `json:"callerId"`
	CalleeID        *UserID         `json:"calleeId"`
	CallerName      *string         `json:"callerName"`
	CalleeName      *string         `json:"calleeName"`
	IncomingPayload json.RawMessage `json:"incomingPayload,omitempty"`
}

// IdleCallState is the single snapshot every endCall produces.
func IdleCallState() CallState {
	return CallState{
		Phase: PhaseIdle,
		Media: DefaultMediaState(),
	}
}

func (s CallState) IsInCall() bool {
	return s.Phase == PhaseConnected
}

func (s CallState) IsCalling() bool {
	return s.Phase == PhaseOutgoing
}

func (s CallState) IsReceivingCall() bool {
	return s.Phase == PhaseIncoming
}

// Remote returns the identity of the other party, if any.
func (s CallState) Remote() (UserID, bool) {
	if s.Session == nil {
		return "", false
	}
	return s.Session.RemoteUserID, true
}

// Clone returns a deep copy so that listeners cannot mutate store state.
func (s CallState) Clone() CallState {
	c := s
	if s.Session != nil {
		sess := *s.Session
		c.Session = &sess
	}
	c.CallerID = cloneID(s.CallerID)
	c.CalleeID = cloneID(s.CalleeID)
	c.CallerName = cloneString(s.CallerName)
	c.CalleeName = cloneString(s.CalleeName)
	if s.IncomingPayload != nil {
		c.IncomingPayload = append(json.RawMessage(nil), s.IncomingPayload...)
	}
	return c
}

type ConnectionState string

const (
	ConnectionNew          ConnectionState = "new"
	ConnectionConnecting   ConnectionState = "connecting"
	ConnectionConnected    ConnectionState = "connected"
	ConnectionDisconnected ConnectionState = "disconnected"
	ConnectionFailed       ConnectionState = "failed"
	ConnectionClosed       ConnectionState = "closed"
)

type TrackKind string

const (
	TrackAudio TrackKind = "audio"
	TrackVideo TrackKind = "video"
)

func cloneID(id *UserID) *UserID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
