package store

import (
	"encoding/json"
	"time"

	"github.com/Wyydra/yacall/internal/core/domain"
)

// Action is one entry of the store's action vocabulary.
type Action interface {
	Name() string
}

type OutgoingCall struct {
	CallID     domain.CallID
	CallerID   domain.UserID
	CallerName string
	CalleeID   domain.UserID
	CalleeName string
	At         time.Time
}

type IncomingCall struct {
	CallID     domain.CallID
	CallerID   domain.UserID
	CallerName string
	CalleeID   domain.UserID
	CalleeName string
	Payload    json.RawMessage
	At         time.Time
}

type (
	AcceptCall        struct{}
	RejectCall        struct{}
	EndCall           struct{}
	OtherPartyLeft    struct{}
	ToggleMute        struct{}
	ToggleVideo       struct{}
	ToggleScreenShare struct{}
)

type RequestAppointment struct {
	Appointment domain.Appointment
}

type AcceptAppointment struct {
	ID domain.AppointmentID
	At time.Time
}

type RejectAppointment struct {
	ID domain.AppointmentID
	At time.Time
}

func (OutgoingCall) Name() string       { return "outgoingCall" }
func (IncomingCall) Name() string       { return "incomingCall" }
func (AcceptCall) Name() string         { return "acceptCall" }
func (RejectCall) Name() string         { return "rejectCall" }
func (EndCall) Name() string            { return "endCall" }
func (OtherPartyLeft) Name() string     { return "otherPartyLeft" }
func (ToggleMute) Name() string         { return "toggleMute" }
func (ToggleVideo) Name() string        { return "toggleVideo" }
func (ToggleScreenShare) Name() string  { return "toggleScreenShare" }
func (RequestAppointment) Name() string { return "requestAppointment" }
func (AcceptAppointment) Name() string  { return "acceptAppointment" }
func (RejectAppointment) Name() string  { return "rejectAppointment" }
