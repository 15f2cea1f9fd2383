package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/service"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

type appointmentRequestDTO struct {
	RequesterID       string     `json:"requesterId"`
	RequesterName     string     `json:"requesterName"`
	RequestedUserID   string     `json:"requestedUserId"`
	RequestedUserName string     `json:"requestedUserName"`
	DateTime          *time.Time `json:"dateTime,omitempty"`
}

type appointmentActionDTO struct {
	UserID string `json:"userId"`
}

func (h *Handler) RequestAppointment(w http.ResponseWriter, r *http.Request) {
	var req appointmentRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	appt, err := h.AppointmentService.Request(r.Context(), service.AppointmentRequest{
		RequesterID:       domain.UserID(req.RequesterID),
		RequesterName:     req.RequesterName,
		RequestedUserID:   domain.UserID(req.RequestedUserID),
		RequestedUserName: req.RequestedUserName,
		DateTime:          req.DateTime,
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidAppointment) {
			err = fmt.Errorf("%w: %w", errBadRequest, err)
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

func (h *Handler) AcceptAppointment(w http.ResponseWriter, r *http.Request) {
	h.transitionAppointment(w, r, h.AppointmentService.Accept)
}

func (h *Handler) RejectAppointment(w http.ResponseWriter, r *http.Request) {
	h.transitionAppointment(w, r, h.AppointmentService.Reject)
}

type appointmentTransition func(ctx context.Context, id domain.AppointmentID, by domain.UserID) (domain.Appointment, error)

func (h *Handler) transitionAppointment(w http.ResponseWriter, r *http.Request, apply appointmentTransition) {
	id, err := domain.ParseAppointmentID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	var body appointmentActionDTO
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.UserID == "" {
		writeError(w, fmt.Errorf("%w: userId is required", errBadRequest))
		return
	}

	appt, err := apply(r.Context(), id, domain.UserID(body.UserID))
	if err != nil {
		log.Debug().Err(err).Str("appointment_id", id.String()).Msg("Appointment transition refused")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (h *Handler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, fmt.Errorf("%w: user_id is required", errBadRequest))
		return
	}
	list, err := h.AppointmentService.List(r.Context(), domain.UserID(userID))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}
