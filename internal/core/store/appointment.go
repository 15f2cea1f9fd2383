package store

import (
	"time"

	"github.com/Wyydra/yacall/internal/core/domain"
)

// Appointments is the appointment slice of the store, keyed by id.
// Entries are never removed.
type Appointments map[domain.AppointmentID]domain.Appointment

func (b Appointments) clone() Appointments {
	c := make(Appointments, len(b))
	for k, v := range b {
		c[k] = v
	}
	return c
}

// ReduceAppointments applies an appointment action. Illegal transitions and
// unknown ids leave the book unchanged.
func ReduceAppointments(b Appointments, a Action) Appointments {
	switch a := a.(type) {
	case RequestAppointment:
		if _, exists := b[a.Appointment.ID]; exists {
			return b
		}
		next := b.clone()
		appt := a.Appointment
		appt.Status = domain.AppointmentPending
		next[appt.ID] = appt
		return next

	case AcceptAppointment:
		return transition(b, a.ID, domain.AppointmentConfirmed, a.At)

	case RejectAppointment:
		return transition(b, a.ID, domain.AppointmentRejected, a.At)
	}
	return b
}

func transition(b Appointments, id domain.AppointmentID, status domain.AppointmentStatus, at time.Time) Appointments {
	appt, ok := b[id]
	if !ok || !appt.Status.CanTransition(status) {
		return b
	}
	next := b.clone()
	appt.Status = status
	appt.UpdatedAt = at
	next[id] = appt
	return next
}
