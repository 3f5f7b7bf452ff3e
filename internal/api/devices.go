package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/skysync/internal/device"
)

// lockRequest is the body of PUT .../devices/{deviceID}/lock.
type lockRequest struct {
	Locked *bool `json:"locked"`
}

// garageDoorRequest is the body of PUT .../devices/{deviceID}/garage-door.
type garageDoorRequest struct {
	Action string `json:"action"`
}

// handleListDevices returns a panel's devices. The optional "kind" query
// parameter filters by kind name ("lock", "sensor", ...).
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	p, ok := s.lookupPanel(w, r)
	if !ok {
		return
	}

	kind := strings.TrimSpace(r.URL.Query().Get("kind"))
	if len(kind) > maxQueryParamLen {
		writeBadRequest(w, "kind exceeds maximum length")
		return
	}

	devices := p.Devices()
	if kind != "" {
		filtered := devices[:0]
		for _, d := range devices {
			if d.Kind().String() == kind {
				filtered = append(filtered, d)
			}
		}
		devices = filtered
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": newDeviceViews(devices, false),
		"count":   len(devices),
	})
}

// handleGetDevice returns one device with its raw attributes.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookupDevice(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newDeviceView(d, true))
}

// handleSetLock submits a lock or unlock command.
func (s *Server) handleSetLock(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookupDevice(w, r)
	if !ok {
		return
	}

	var req lockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Locked == nil {
		writeBadRequest(w, `body must be {"locked": true|false}`)
		return
	}

	action := device.ActionUnlock
	if *req.Locked {
		action = device.ActionLock
	}
	s.submit(w, r, d, action)
}

// handleSetGarageDoor submits an open or close command.
func (s *Server) handleSetGarageDoor(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookupDevice(w, r)
	if !ok {
		return
	}

	var req garageDoorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	action := strings.ToLower(strings.TrimSpace(req.Action))
	if action != device.ActionOpen && action != device.ActionClose {
		writeBadRequest(w, `action must be "open" or "close"`)
		return
	}
	s.submit(w, r, d, action)
}

// submit runs action against d and answers 202 once the upstream accepted
// it.
func (s *Server) submit(w http.ResponseWriter, r *http.Request, d device.Device, action string) {
	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()

	if err := device.Do(ctx, d, action); err != nil {
		s.logger.Warn("device command failed",
			"panel_id", d.Panel().ID(), "device_id", d.ID(), "action", action, "error", err)
		writeDomainError(w, err)
		return
	}

	s.logger.Info("device command submitted",
		"panel_id", d.Panel().ID(), "device_id", d.ID(), "action", action)
	writeAccepted(w)
}

// lookupDevice resolves {panelID} and {deviceID}, writing the error
// response itself when either fails.
func (s *Server) lookupDevice(w http.ResponseWriter, r *http.Request) (device.Device, bool) {
	p, ok := s.lookupPanel(w, r)
	if !ok {
		return nil, false
	}

	deviceID := chi.URLParam(r, "deviceID")
	if deviceID == "" || len(deviceID) > maxQueryParamLen {
		writeBadRequest(w, "invalid device ID")
		return nil, false
	}

	d, err := p.Device(deviceID)
	if err != nil {
		writeDomainError(w, err)
		return nil, false
	}
	return d, true
}
