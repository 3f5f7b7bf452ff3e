package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/skysync/internal/device"
)

const (
	// maxQueryParamLen bounds path and query identifiers.
	maxQueryParamLen = 100

	// commandTimeout bounds one upstream command or refresh.
	commandTimeout = 30 * time.Second
)

// armStateRequest is the body of PUT /panels/{panelID}/arm-state.
type armStateRequest struct {
	State string `json:"state"`
}

// handleListPanels returns every mirrored panel in account order.
func (s *Server) handleListPanels(w http.ResponseWriter, _ *http.Request) {
	panels := s.mirror.Panels()
	views := make([]panelView, 0, len(panels))
	for _, p := range panels {
		views = append(views, newPanelView(p, false))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"panels": views,
		"count":  len(views),
	})
}

// handleGetPanel returns one panel with its devices.
func (s *Server) handleGetPanel(w http.ResponseWriter, r *http.Request) {
	p, ok := s.lookupPanel(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newPanelView(p, true))
}

// handleSetArmState submits a new arm state. The panel's reported state
// changes only when the push channel delivers the result.
func (s *Server) handleSetArmState(w http.ResponseWriter, r *http.Request) {
	p, ok := s.lookupPanel(w, r)
	if !ok {
		return
	}

	var req armStateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	state, ok := device.ArmStateByName(strings.ToLower(strings.TrimSpace(req.State)))
	if !ok {
		writeBadRequest(w, "unknown arm state: "+req.State)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()

	if err := p.SetArmState(ctx, state); err != nil {
		s.logger.Warn("arm state command failed", "panel_id", p.ID(), "state", state.String(), "error", err)
		writeDomainError(w, err)
		return
	}

	s.logger.Info("arm state submitted", "panel_id", p.ID(), "state", state.String())
	writeAccepted(w)
}

// handleRefreshPanel re-fetches the panel snapshot and applies it in place.
func (s *Server) handleRefreshPanel(w http.ResponseWriter, r *http.Request) {
	panelID := chi.URLParam(r, "panelID")
	if panelID == "" || len(panelID) > maxQueryParamLen {
		writeBadRequest(w, "invalid panel ID")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()

	if err := s.mirror.RefreshPanel(ctx, panelID); err != nil {
		s.logger.Warn("panel refresh failed", "panel_id", panelID, "error", err)
		writeDomainError(w, err)
		return
	}

	p, err := s.mirror.Panel(panelID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newPanelView(p, true))
}

// lookupPanel resolves the {panelID} path parameter, writing the error
// response itself when it fails.
func (s *Server) lookupPanel(w http.ResponseWriter, r *http.Request) (*device.Panel, bool) {
	panelID := chi.URLParam(r, "panelID")
	if panelID == "" || len(panelID) > maxQueryParamLen {
		writeBadRequest(w, "invalid panel ID")
		return nil, false
	}

	p, err := s.mirror.Panel(panelID)
	if err != nil {
		writeDomainError(w, err)
		return nil, false
	}
	return p, true
}

// writeAccepted acknowledges a submitted command.
func writeAccepted(w http.ResponseWriter) {
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
