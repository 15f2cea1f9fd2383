package domain

import (
	"github.com/google/uuid"
)

// UserID identifies a portal user. Identities come from the portal's account
// store, so they are opaque strings rather than generated values.
type UserID string

func (id UserID) String() string {
	return string(id)
}

func (id UserID) IsZero() bool {
	return id == ""
}

type CallID uuid.UUID

func NewCallID() CallID {
	return CallID(uuid.New())
}

func (id CallID) String() string {
	return uuid.UUID(id).String()
}

type AppointmentID uuid.UUID

func NewAppointmentID() AppointmentID {
	return AppointmentID(uuid.New())
}

func ParseAppointmentID(s string) (AppointmentID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return AppointmentID{}, err
	}
	return AppointmentID(id), nil
}

func (id AppointmentID) String() string {
	return uuid.UUID(id).String()
}

func (id AppointmentID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *AppointmentID) UnmarshalText(b []byte) error {
	parsed, err := ParseAppointmentID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
