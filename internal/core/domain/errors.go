package domain

import (
	"errors"
	"fmt"
)

// Error kinds surfaced to the orchestration layer. Compare with errors.Is.
var (
	ErrDeviceAcquisition    = errors.New("device acquisition failed")
	ErrSignalingDelivery    = errors.New("signaling delivery failed")
	ErrNegotiation          = errors.New("negotiation failed")
	ErrScreenShareCancelled = errors.New("screen share cancelled")

	ErrClosed         = errors.New("peer connection closed")
	ErrNotInitialized = errors.New("peer connection not initialized")
	ErrInvalidMessage = errors.New("invalid signaling message")
	ErrNoActiveCall   = errors.New("no active call")
	ErrBusy           = errors.New("user is busy")
	ErrCallRejected   = errors.New("call rejected")

	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrInvalidAppointment  = errors.New("invalid appointment")
)

// CallError records which operation failed and with which kind.
type CallError struct {
	Kind error
	Op   string
	Err  error
}

func NewCallError(kind error, op string, err error) *CallError {
	return &CallError{Kind: kind, Op: op, Err: err}
}

func (e *CallError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *CallError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
