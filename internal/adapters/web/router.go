package web

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lcalzada-xor/ridwatch/internal/adapters/web/middleware"
)

// SetupRoutes builds the API router.
func SetupRoutes(s *Server) *mux.Router {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/sightings", s.handleSightings).Methods(http.MethodGet)
	api.HandleFunc("/sightings/{identity}", s.handleSighting).Methods(http.MethodGet)
	api.HandleFunc("/detections", s.handleDetections).Methods(http.MethodGet)
	api.HandleFunc("/defense", s.handleDefense).Methods(http.MethodGet)
	api.Handle("/defense/reset",
		middleware.RateLimitMiddleware(s.resetLimiter)(http.HandlerFunc(s.handleDefenseReset))).
		Methods(http.MethodPost)
	api.HandleFunc("/reports/incident", s.handleIncidentReport).Methods(http.MethodGet)

	r.HandleFunc("/ws", s.Hub.HandleWebSocket)
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	return r
}
