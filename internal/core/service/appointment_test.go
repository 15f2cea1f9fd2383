package service

import (
	"context"
	"testing"
	"time"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAppointments(t *testing.T) (*AppointmentService, *store.Store, *fakeAppointmentRepo) {
	t.Helper()
	st := store.New()
	repo := newFakeAppointmentRepo()
	svc := NewAppointmentService(st, repo)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		now = now.Add(time.Minute)
		return now
	}
	return svc, st, repo
}

func request(t *testing.T, svc *AppointmentService) domain.Appointment {
	t.Helper()
	at := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)
	appt, err := svc.Request(context.Background(), AppointmentRequest{
		RequesterID:       alice,
		RequesterName:     " Alice ",
		RequestedUserID:   bob,
		RequestedUserName: "Bob",
		DateTime:          &at,
	})
	require.NoError(t, err)
	return appt
}

func TestAppointmentService_Request(t *testing.T) {
	svc, st, repo := newTestAppointments(t)

	appt := request(t, svc)

	assert.Equal(t, domain.AppointmentPending, appt.Status)
	assert.Equal(t, "Alice", appt.RequesterName)
	stored, ok := st.Appointment(appt.ID)
	require.True(t, ok)
	assert.Equal(t, appt, stored)
	saved, err := repo.Get(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appt, saved)
}

func TestAppointmentService_RequestValidation(t *testing.T) {
	svc, _, _ := newTestAppointments(t)

	_, err := svc.Request(context.Background(), AppointmentRequest{RequesterID: alice, RequestedUserID: alice})
	assert.ErrorIs(t, err, domain.ErrInvalidAppointment)

	_, err = svc.Request(context.Background(), AppointmentRequest{RequesterID: alice})
	assert.ErrorIs(t, err, domain.ErrInvalidAppointment)
}

func TestAppointmentService_AcceptThenReject(t *testing.T) {
	svc, _, repo := newTestAppointments(t)
	appt := request(t, svc)
	ctx := context.Background()

	_, err := svc.Accept(ctx, appt.ID, alice)
	assert.ErrorIs(t, err, domain.ErrInvalidAppointment, "requester cannot accept")

	confirmed, err := svc.Accept(ctx, appt.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, domain.AppointmentConfirmed, confirmed.Status)
	assert.True(t, confirmed.UpdatedAt.After(appt.UpdatedAt))

	_, err = svc.Accept(ctx, appt.ID, bob)
	assert.ErrorIs(t, err, domain.ErrInvalidAppointment)

	rejected, err := svc.Reject(ctx, appt.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, domain.AppointmentRejected, rejected.Status)

	_, err = svc.Accept(ctx, appt.ID, bob)
	assert.ErrorIs(t, err, domain.ErrInvalidAppointment, "rejected is terminal")

	saved, err := repo.Get(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AppointmentRejected, saved.Status)
}

func TestAppointmentService_RejectByOutsider(t *testing.T) {
	svc, _, _ := newTestAppointments(t)
	appt := request(t, svc)

	_, err := svc.Reject(context.Background(), appt.ID, carol)

	assert.ErrorIs(t, err, domain.ErrInvalidAppointment)
}

func TestAppointmentService_UnknownID(t *testing.T) {
	svc, _, _ := newTestAppointments(t)

	_, err := svc.Accept(context.Background(), domain.NewAppointmentID(), bob)

	assert.ErrorIs(t, err, domain.ErrAppointmentNotFound)
}

func TestAppointmentService_HistoryOnlyEntry(t *testing.T) {
	svc, _, repo := newTestAppointments(t)
	ctx := context.Background()
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	old, err := domain.NewAppointment(domain.NewAppointmentID(), alice, "Alice", bob, "Bob", nil, now)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, *old))

	confirmed, err := svc.Accept(ctx, old.ID, bob)

	require.NoError(t, err)
	assert.Equal(t, domain.AppointmentConfirmed, confirmed.Status)
	saved, _ := repo.Get(ctx, old.ID)
	assert.Equal(t, domain.AppointmentConfirmed, saved.Status)
}

func TestAppointmentService_List(t *testing.T) {
	svc, _, _ := newTestAppointments(t)
	request(t, svc)
	request(t, svc)

	list, err := svc.List(context.Background(), bob)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	list, err = svc.List(context.Background(), carol)
	require.NoError(t, err)
	assert.Empty(t, list)
}
