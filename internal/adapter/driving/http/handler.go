package http

import (
	"net/http"

	"github.com/Wyydra/yacall/internal/adapter/driven/gateway/ws"
	"github.com/Wyydra/yacall/internal/core/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
)

type Handler struct {
	RelayService       *service.RelayService
	AppointmentService *service.AppointmentService
	Hub                *ws.Hub
	AllowedOrigins     []string
}

func NewHandler(relay *service.RelayService, appointments *service.AppointmentService, hub *ws.Hub, allowedOrigins []string) *Handler {
	return &Handler{
		RelayService:       relay,
		AppointmentService: appointments,
		Hub:                hub,
		AllowedOrigins:     allowedOrigins,
	}
}

func (h *Handler) NewRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Health)
	r.Get("/ws", h.ServeWS)

	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", h.RequestAppointment)
		r.Get("/", h.ListAppointments)
		r.Post("/{id}/accept", h.AcceptAppointment)
		r.Post("/{id}/reject", h.RejectAppointment)
	})

	c := cors.New(cors.Options{
		AllowedOrigins: h.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(r)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"online": h.Hub.Online(),
	})
}
