package domain

import (
	"fmt"
	"strings"
	"time"
)

type AppointmentStatus string

const (
	AppointmentPending   AppointmentStatus = "pending"
	AppointmentConfirmed AppointmentStatus = "confirmed"
	AppointmentRejected  AppointmentStatus = "rejected"
)

type Appointment struct {
	ID                AppointmentID     `json:"id"`
	RequesterID       UserID            `json:"requesterId"`
	RequesterName     string            `json:"requesterName"`
	RequestedUserID   UserID            `json:"requestedUserId"`
	RequestedUserName string            `json:"requestedUserName"`
	Status            AppointmentStatus `json:"status"`
	DateTime          *time.Time        `json:"dateTime,omitempty"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
}

func NewAppointment(id AppointmentID, requester UserID, requesterName string, requested UserID, requestedName string, at *time.Time, now time.Time) (*Appointment, error) {
	if requester.IsZero() || requested.IsZero() {
		return nil, fmt.Errorf("%w: requester and requested user are required", ErrInvalidAppointment)
	}
	if requester == requested {
		return nil, fmt.Errorf("%w: cannot request an appointment with yourself", ErrInvalidAppointment)
	}
	return &Appointment{
		ID:                id,
		RequesterID:       requester,
		RequesterName:     strings.TrimSpace(requesterName),
		RequestedUserID:   requested,
		RequestedUserName: strings.TrimSpace(requestedName),
		Status:            AppointmentPending,
		DateTime:          at,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// CanTransition reports whether status may move from s to next.
// Status only moves forward: pending -> confirmed, pending|confirmed -> rejected.
func (s AppointmentStatus) CanTransition(next AppointmentStatus) bool {
	switch next {
	case AppointmentConfirmed:
		return s == AppointmentPending
	case AppointmentRejected:
		return s == AppointmentPending || s == AppointmentConfirmed
	}
	return false
}

func (a Appointment) Involves(id UserID) bool {
	return a.RequesterID == id || a.RequestedUserID == id
}
