package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/navbug/competitive-monitoring-platform-backend/internal/monitor"
)

const (
	defaultUpdateLimit = 50
	maxUpdateLimit     = 500
	defaultTrendLimit  = 25
	maxTrendLimit      = 200
	defaultSinceHours  = 24 * 7
	maxSinceHours      = 24 * 90
)

// triggerScrape handles POST /v1/competitors/{competitor_id}/scrape. It
// enqueues every source of the competitor at top priority and returns 202
// with the number of enqueued jobs, or 404 for unknown competitors.
func (s *Server) triggerScrape(w http.ResponseWriter, r *http.Request) {
	competitorID := chi.URLParam(r, "competitor_id")
	if competitorID == "" {
		writeError(w, http.StatusBadRequest, "competitor_id is required")
		return
	}
	enqueued, err := s.trigger.TriggerCompetitor(r.Context(), competitorID)
	if err != nil {
		if errors.Is(err, monitor.ErrNotFound) {
			writeError(w, http.StatusNotFound, "competitor not found")
			return
		}
		s.logger.Error("trigger scrape failed",
			zap.String("competitor_id", competitorID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to trigger scrape")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"competitor_id": competitorID,
		"enqueued":      enqueued,
	})
}

// listUpdates handles GET /v1/updates?since_hours=&status=&limit=. It returns
// {"updates": [...]} newest first.
func (s *Server) listUpdates(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, defaultUpdateLimit, maxUpdateLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sinceHours, err := parseSinceHours(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	status, err := parseUpdateStatus(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	since := s.clock.Now().Add(-time.Duration(sinceHours) * time.Hour)
	updates, err := s.store.ListRecentUpdates(r.Context(), since, status, limit)
	if err != nil {
		s.logger.Error("list updates failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list updates")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updates": updates})
}

// listTrends handles GET /v1/trends?limit=. It returns {"trends": [...]}
// ordered by last activity.
func (s *Server) listTrends(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, defaultTrendLimit, maxTrendLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	trends, err := s.store.ListTrends(r.Context(), limit)
	if err != nil {
		s.logger.Error("list trends failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list trends")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trends": trends})
}

// listNotifications handles GET /v1/notifications?threshold=&limit=. It
// returns classified updates at or above the impact threshold, defaulting to
// high.
func (s *Server) listNotifications(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, defaultUpdateLimit, maxUpdateLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	threshold := monitor.ImpactHigh
	if raw := strings.TrimSpace(r.URL.Query().Get("threshold")); raw != "" {
		threshold = monitor.ImpactLevel(strings.ToLower(raw))
		if !threshold.Valid() {
			writeError(w, http.StatusBadRequest, "invalid threshold")
			return
		}
	}

	updates, err := s.store.ListUpdatesByImpact(r.Context(), levelsAtOrAbove(threshold), limit)
	if err != nil {
		s.logger.Error("list notifications failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updates": updates})
}

func levelsAtOrAbove(threshold monitor.ImpactLevel) []monitor.ImpactLevel {
	all := []monitor.ImpactLevel{
		monitor.ImpactLow, monitor.ImpactMedium, monitor.ImpactHigh, monitor.ImpactCritical,
	}
	out := make([]monitor.ImpactLevel, 0, len(all))
	for _, level := range all {
		if level.AtLeast(threshold) {
			out = append(out, level)
		}
	}
	return out
}

func parseLimit(r *http.Request, def, maxLimit int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val <= 0 {
		return 0, errors.New("invalid limit")
	}
	if val > maxLimit {
		val = maxLimit
	}
	return val, nil
}

func parseSinceHours(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("since_hours")
	if raw == "" {
		return defaultSinceHours, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val <= 0 {
		return 0, errors.New("invalid since_hours")
	}
	if val > maxSinceHours {
		val = maxSinceHours
	}
	return val, nil
}

func parseUpdateStatus(r *http.Request) (monitor.UpdateStatus, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("status"))
	if raw == "" {
		return "", nil
	}
	switch status := monitor.UpdateStatus(strings.ToLower(raw)); status {
	case monitor.UpdateStatusNew, monitor.UpdateStatusReviewed, monitor.UpdateStatusArchived:
		return status, nil
	default:
		return "", errors.New("invalid status")
	}
}
