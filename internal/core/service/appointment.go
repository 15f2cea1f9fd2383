package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/Wyydra/yacall/internal/core/store"
	"github.com/rs/zerolog/log"
)

type AppointmentRequest struct {
	RequesterID       domain.UserID
	RequesterName     string
	RequestedUserID   domain.UserID
	RequestedUserName string
	DateTime          *time.Time
}

// AppointmentService runs the appointment board. The store holds the live
// view; the repository keeps the history for listing.
type AppointmentService struct {
	store *store.Store
	repo  port.AppointmentRepository
	now   func() time.Time

	// mu serializes status transitions.
	mu sync.Mutex
}

func NewAppointmentService(st *store.Store, repo port.AppointmentRepository) *AppointmentService {
	return &AppointmentService{
		store: st,
		repo:  repo,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *AppointmentService) Request(ctx context.Context, req AppointmentRequest) (domain.Appointment, error) {
	appt, err := domain.NewAppointment(
		domain.NewAppointmentID(),
		req.RequesterID, req.RequesterName,
		req.RequestedUserID, req.RequestedUserName,
		req.DateTime, s.now(),
	)
	if err != nil {
		return domain.Appointment{}, err
	}

	s.store.Dispatch(store.RequestAppointment{Appointment: *appt})
	stored, _ := s.store.Appointment(appt.ID)
	if err := s.repo.Save(ctx, stored); err != nil {
		return domain.Appointment{}, err
	}

	log.Info().
		Str("appointment_id", appt.ID.String()).
		Str("requester_id", appt.RequesterID.String()).
		Str("requested_id", appt.RequestedUserID.String()).
		Msg("Appointment requested")
	return stored, nil
}

// Accept confirms a pending appointment. Only the requested user may accept.
func (s *AppointmentService) Accept(ctx context.Context, id domain.AppointmentID, by domain.UserID) (domain.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	appt, err := s.get(ctx, id)
	if err != nil {
		return domain.Appointment{}, err
	}
	if appt.RequestedUserID != by {
		return domain.Appointment{}, fmt.Errorf("%w: only %s can accept", domain.ErrInvalidAppointment, appt.RequestedUserID)
	}
	return s.apply(ctx, appt, domain.AppointmentConfirmed, store.AcceptAppointment{ID: id, At: s.now()})
}

// Reject declines or cancels an appointment. Either party may reject.
func (s *AppointmentService) Reject(ctx context.Context, id domain.AppointmentID, by domain.UserID) (domain.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	appt, err := s.get(ctx, id)
	if err != nil {
		return domain.Appointment{}, err
	}
	if !appt.Involves(by) {
		return domain.Appointment{}, fmt.Errorf("%w: %s is not a party", domain.ErrInvalidAppointment, by)
	}
	return s.apply(ctx, appt, domain.AppointmentRejected, store.RejectAppointment{ID: id, At: s.now()})
}

func (s *AppointmentService) List(ctx context.Context, userID domain.UserID) ([]domain.Appointment, error) {
	return s.repo.ListByUser(ctx, userID)
}

// get prefers the live store and falls back to history.
func (s *AppointmentService) get(ctx context.Context, id domain.AppointmentID) (domain.Appointment, error) {
	if appt, ok := s.store.Appointment(id); ok {
		return appt, nil
	}
	appt, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrAppointmentNotFound) {
			return domain.Appointment{}, err
		}
		return domain.Appointment{}, fmt.Errorf("load appointment %s: %w", id, err)
	}
	return appt, nil
}

func (s *AppointmentService) apply(ctx context.Context, appt domain.Appointment, status domain.AppointmentStatus, a store.Action) (domain.Appointment, error) {
	if !appt.Status.CanTransition(status) {
		return domain.Appointment{}, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidAppointment, appt.Status, status)
	}

	if _, ok := s.store.Appointment(appt.ID); !ok {
		// Pending status is forced on request, so history entries are
		// written back directly after the transition.
		appt.Status = status
		appt.UpdatedAt = s.now()
		if err := s.repo.Save(ctx, appt); err != nil {
			return domain.Appointment{}, err
		}
		return appt, nil
	}

	s.store.Dispatch(a)
	updated, _ := s.store.Appointment(appt.ID)
	if err := s.repo.Save(ctx, updated); err != nil {
		return domain.Appointment{}, err
	}
	log.Info().
		Str("appointment_id", appt.ID.String()).
		Str("status", string(updated.Status)).
		Msg("Appointment updated")
	return updated, nil
}
