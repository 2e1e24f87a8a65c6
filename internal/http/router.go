package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"school-timetable/internal/http/handlers"
)

type Router struct {
	mux chi.Router
}

func NewRouter(
	timetableHandler *handlers.TimetableHandler,
	authMiddleware func(http.Handler) http.Handler,
	ping func() error,
) *Router {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		if err := ping(); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"degraded"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		timetableHandler.Register(r)
	})

	return &Router{mux: r}
}

func (r *Router) Handler() http.Handler {
	return r.mux
}
