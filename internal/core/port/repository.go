package port

import (
	"context"

	"github.com/Wyydra/yacall/internal/core/domain"
)

type AppointmentRepository interface {
	Save(ctx context.Context, appt domain.Appointment) error
	Get(ctx context.Context, id domain.AppointmentID) (domain.Appointment, error)
	ListByUser(ctx context.Context, userID domain.UserID) ([]domain.Appointment, error)
}
