package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/skysync/internal/journal"
)

// handleGetPanelHistory returns journal entries for a panel, newest first.
func (s *Server) handleGetPanelHistory(w http.ResponseWriter, r *http.Request) {
	p, ok := s.lookupPanel(w, r)
	if !ok {
		return
	}
	s.writeHistory(w, r, journal.Query{PanelID: p.ID()})
}

// handleGetDeviceHistory returns journal entries for one device.
func (s *Server) handleGetDeviceHistory(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookupDevice(w, r)
	if !ok {
		return
	}
	s.writeHistory(w, r, journal.Query{PanelID: d.Panel().ID(), DeviceID: d.ID()})
}

func (s *Server) writeHistory(w http.ResponseWriter, r *http.Request, q journal.Query) {
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

	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "change journal is disabled")
		return
	}

	q.Limit = limit
	q.Since = since
	entries, err := s.history.History(r.Context(), q)
	if err != nil {
		s.logger.Error("history query failed", "panel_id", q.PanelID, "device_id", q.DeviceID, "error", err)
		writeInternalError(w, "failed to read history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

// parseHistoryLimit parses the limit parameter, defaulting when empty.
func parseHistoryLimit(raw string) (int, error) {
	if raw == "" {
		return journal.DefaultLimit, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("invalid limit")
	}
	if limit > journal.MaxLimit {
		return 0, fmt.Errorf("limit exceeds maximum")
	}

	return limit, nil
}

// parseSinceParam parses the since parameter as RFC3339/RFC3339Nano.
func parseSinceParam(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}

	parsed, err := time.Parse(time.RFC3339, raw)
	if err == nil {
		return parsed.UTC(), nil
	}

	parsed, err = time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, err
	}
	return parsed.UTC(), nil
}
