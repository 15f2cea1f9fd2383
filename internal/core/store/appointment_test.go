package store

import (
	"testing"
	"time"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func request(t *testing.T) RequestAppointment {
	t.Helper()
	appt, err := domain.NewAppointment(domain.NewAppointmentID(), "x", "Xena", "y", "Yusuf", nil, t0)
	require.NoError(t, err)
	return RequestAppointment{Appointment: *appt}
}

func TestAppointmentAcceptFlow(t *testing.T) {
	req := request(t)
	id := req.Appointment.ID
	later := t0.Add(time.Hour)

	b := ReduceAppointments(Appointments{}, req)
	require.Equal(t, domain.AppointmentPending, b[id].Status)

	b = ReduceAppointments(b, AcceptAppointment{ID: id, At: later})
	assert.Equal(t, domain.AppointmentConfirmed, b[id].Status)
	assert.Equal(t, later, b[id].UpdatedAt)

	// second accept is a no-op
	again := ReduceAppointments(b, AcceptAppointment{ID: id, At: later.Add(time.Hour)})
	assert.Equal(t, b, again)

	b = ReduceAppointments(b, RejectAppointment{ID: id, At: later})
	assert.Equal(t, domain.AppointmentRejected, b[id].Status)
}

func TestAppointmentRejectedIsFinal(t *testing.T) {
	req := request(t)
	id := req.Appointment.ID

	b := ReduceAppointments(Appointments{}, req)
	b = ReduceAppointments(b, RejectAppointment{ID: id, At: t0})
	require.Equal(t, domain.AppointmentRejected, b[id].Status)

	assert.Equal(t, b, ReduceAppointments(b, AcceptAppointment{ID: id, At: t0}))
	assert.Equal(t, b, ReduceAppointments(b, RejectAppointment{ID: id, At: t0}))
}

func TestAppointmentUnknownIDAndDuplicates(t *testing.T) {
	req := request(t)
	b := ReduceAppointments(Appointments{}, req)

	assert.Equal(t, b, ReduceAppointments(b, AcceptAppointment{ID: domain.NewAppointmentID()}))

	dup := req
	dup.Appointment.RequesterName = "Other"
	assert.Equal(t, b, ReduceAppointments(b, dup))
}

func TestAppointmentReducerIgnoresCallActions(t *testing.T) {
	b := ReduceAppointments(Appointments{}, request(t))
	assert.Equal(t, b, ReduceAppointments(b, EndCall{}))
}
