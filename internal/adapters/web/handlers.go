package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/lcalzada-xor/ridwatch/internal/adapters/reporting"
	"github.com/lcalzada-xor/ridwatch/internal/core/domain"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
	storeTimeout = 5 * time.Second
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("response encode failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// parseLimit reads ?limit=, defaulting to defaultLimit and capping at maxLimit.
func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid limit %q", raw)
	}
	if n > maxLimit {
		n = maxLimit
	}
	return n, nil
}

func (s *Server) fromStore(r *http.Request) bool {
	return s.Store != nil && r.URL.Query().Get("source") == "store"
}

func (s *Server) handleSightings(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if s.fromStore(r) {
		ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
		defer cancel()
		out, err := s.Store.ListSightings(ctx, limit)
		if err != nil {
			slog.Error("list sightings failed", "error", err)
			writeError(w, http.StatusInternalServerError, "storage error")
			return
		}
		writeJSON(w, http.StatusOK, out)
		return
	}

	writeJSON(w, http.StatusOK, s.liveSightings(limit))
}

// liveSightings returns tracked sightings, most recently updated first.
func (s *Server) liveSightings(limit int) []domain.Sighting {
	out := s.Service.Sightings()
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *Server) handleSighting(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["identity"]
	for _, sighting := range s.Service.Sightings() {
		if sighting.Identity == id {
			writeJSON(w, http.StatusOK, sighting)
			return
		}
	}
	writeError(w, http.StatusNotFound, "unknown identity")
}

func (s *Server) handleDetections(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if s.fromStore(r) {
		ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
		defer cancel()
		out, err := s.Store.ListDetections(ctx, limit)
		if err != nil {
			slog.Error("list detections failed", "error", err)
			writeError(w, http.StatusInternalServerError, "storage error")
			return
		}
		writeJSON(w, http.StatusOK, out)
		return
	}

	writeJSON(w, http.StatusOK, s.Service.RecentDetections(limit))
}

func (s *Server) handleDefense(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Service.Defense())
}

func (s *Server) handleDefenseReset(w http.ResponseWriter, r *http.Request) {
	if err := s.Service.ResetDefense(); err != nil {
		slog.Warn("defense reset rejected", "error", err)
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	slog.Info("defense reset via API", "remote", r.RemoteAddr)
	writeJSON(w, http.StatusOK, s.Service.Defense())
}

func (s *Server) handleIncidentReport(w http.ResponseWriter, r *http.Request) {
	report := &reporting.IncidentReport{
		ID:          uuid.NewString(),
		Site:        s.site,
		GeneratedAt: s.clock.Now(),
		Defense:     s.Service.Defense(),
		Detections:  s.Service.RecentDetections(maxLimit),
		Sightings:   s.liveSightings(0),
	}

	if s.Store != nil && len(report.Detections) == 0 {
		ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
		defer cancel()
		if dets, err := s.Store.ListDetections(ctx, maxLimit); err == nil {
			report.Detections = dets
		}
	}

	data, err := s.Exporter.ExportIncident(report)
	if err != nil {
		slog.Error("incident report failed", "error", err)
		writeError(w, http.StatusInternalServerError, "report generation failed")
		return
	}

	name := fmt.Sprintf("incident-%s.pdf", report.GeneratedAt.UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
