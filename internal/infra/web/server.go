package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"story-scheduler/internal/usecase"
)

type Server struct {
	scheduleUC *usecase.ScheduleUseCase
	jwtSecret  string
	log        *zerolog.Logger
}

func NewServer(scheduleUC *usecase.ScheduleUseCase, jwtSecret string, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "HTTPServer").Logger()
	return &Server{scheduleUC: scheduleUC, jwtSecret: jwtSecret, log: &l}
}

// Router assembles the public surface: the authenticated scheduling API plus
// health and metrics.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Post("/schedule", s.handleSchedule)
		r.Get("/schedule", s.handleList)
		r.Delete("/schedule/{id}", s.handleCancel)
		r.Post("/schedule/{id}/retry", s.handleRetry)
		r.Post("/schedule/{id}/mark-posted", s.handleMarkPosted)
		r.Get("/notifications", s.handleNotifications)
	})
	return r
}
