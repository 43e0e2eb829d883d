package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200

	errCodeServiceUnavailable = "service_unavailable"
)

// handleGetDeviceHistory returns recorded state changes of a device, newest
// first.
//
// Query parameters:
//   - limit: number of entries (default 50, max 200)
//   - since: RFC3339 timestamp; only later entries are returned
func (s *Server) handleGetDeviceHistory(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "id")

	limit, err := parseHistoryLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	since, err := parseSinceParam(r.URL.Query().Get("since"))
	if err != nil {
		writeBadRequest(w, "invalid since timestamp")
		return
	}

	if !s.exists(deviceID) {
		writeNotFound(w, "device not found")
		return
	}

	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, errCodeServiceUnavailable, "state history disabled")
		return
	}

	entries, err := s.history.GetHistory(r.Context(), deviceID, limit)
	if err != nil {
		s.logger.Error("loading device history failed", "device_id", deviceID, "error", err)
		writeInternalError(w, "failed to load device history")
		return
	}

	if !since.IsZero() {
		filtered := entries[:0]
		for _, entry := range entries {
			if entry.CreatedAt.After(since) {
				filtered = append(filtered, entry)
			}
		}
		entries = filtered
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": deviceID,
		"history":   entries,
		"count":     len(entries),
	})
}

// parseHistoryLimit parses the limit parameter with defaults and bounds.
func parseHistoryLimit(raw string) (int, error) {
	if raw == "" {
		return defaultHistoryLimit, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("invalid limit")
	}
	if limit > maxHistoryLimit {
		return 0, fmt.Errorf("limit exceeds maximum")
	}

	return limit, nil
}

// parseSinceParam parses the since parameter as RFC3339 or RFC3339Nano.
func parseSinceParam(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}
