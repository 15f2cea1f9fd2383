package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/Wyydra/yacall/internal/core/domain"
)

// AppointmentRepository keeps appointment history for the life of the process.
type AppointmentRepository struct {
	mu           sync.Mutex
	appointments map[domain.AppointmentID]domain.Appointment
}

func NewAppointmentRepository() *AppointmentRepository {
	return &AppointmentRepository{
		appointments: make(map[domain.AppointmentID]domain.Appointment),
	}
}

func (r *AppointmentRepository) Save(ctx context.Context, appt domain.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appointments[appt.ID] = appt
	return nil
}

func (r *AppointmentRepository) Get(ctx context.Context, id domain.AppointmentID) (domain.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	appt, ok := r.appointments[id]
	if !ok {
		return domain.Appointment{}, domain.ErrAppointmentNotFound
	}
	return appt, nil
}

// ListByUser returns every appointment the user is a party to, oldest first.
func (r *AppointmentRepository) ListByUser(ctx context.Context, userID domain.UserID) ([]domain.Appointment, error) {
	r.mu.Lock()
	out := make([]domain.Appointment, 0)
	for _, appt := range r.appointments {
		if appt.Involves(userID) {
			out = append(out, appt)
		}
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
