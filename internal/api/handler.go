package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"dailybot/internal/schedule"
	"dailybot/internal/scheduler"
	"dailybot/pkg/logx"
)

// Handler serves the local admin API: schedule document CRUD plus scheduler
// introspection and manual rescheduling.
type Handler struct {
	store    *schedule.Store
	sched    *scheduler.Service
	validate *validator.Validate
	log      logx.Logger
}

func NewHandler(store *schedule.Store, sched *scheduler.Service, log logx.Logger) *Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Handler{
		store:    store,
		sched:    sched,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      log.With(logx.String("component", "api")),
	}
}

// Routes builds the router. All endpoints live under /api.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.NoCache)

	r.Route("/api", func(r chi.Router) {
		r.Get("/schedule", h.getSchedule)
		r.Put("/schedule", h.updateSchedule)
		r.Post("/schedule/overrides", h.addOverride)
		r.Delete("/schedule/overrides/{date}", h.removeOverride)

		r.Get("/scheduler/next", h.nextRun)
		r.Get("/scheduler/status", h.status)
		r.Post("/scheduler/reschedule", h.reschedule)
	})
	return r
}
