package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nk-gears/node-red-contrib-google-smarthome/internal/device"
)

// createDeviceRequest is the body of POST /devices.
type createDeviceRequest struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// execRequest is the body of POST /devices/{id}/exec.
type execRequest struct {
	device.Partial
	Notify bool `json:"notify"`
}

// deviceIDsRequest is the body of POST /devices/ids.
type deviceIDsRequest struct {
	Devices []*device.DeviceRef `json:"devices"`
}

// parseIDs reads the comma separated ids query parameter. It returns nil
// when the parameter is absent and a non-nil, possibly empty, slice when
// it is present.
func parseIDs(r *http.Request) []string {
	q := r.URL.Query()
	if !q.Has("ids") {
		return nil
	}
	ids := []string{}
	for _, raw := range q["ids"] {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// handleGetProperties returns device properties keyed by id.
//
// Without an ids parameter every device is returned; with an empty one the
// result is empty.
func (s *Server) handleGetProperties(w http.ResponseWriter, r *http.Request) {
	props := s.registry.GetProperties(parseIDs(r))
	writeJSON(w, http.StatusOK, map[string]any{"devices": props, "count": len(props)})
}

// handleGetStates returns device states keyed by id. An absent or empty ids
// parameter returns every device.
func (s *Server) handleGetStates(w http.ResponseWriter, r *http.Request) {
	states := s.registry.GetStates(parseIDs(r))
	writeJSON(w, http.StatusOK, map[string]any{"devices": states, "count": len(states)})
}

// handleGetStatus returns full device records keyed by id. At least one id
// is required.
func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	statuses, ok := s.registry.GetStatus(parseIDs(r))
	if !ok {
		writeError(w, http.StatusBadRequest, ErrCodeNoDevices, "ids query parameter is required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": statuses, "count": len(statuses)})
}

// handleCreateDevice builds and registers a device from a built-in category.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var req createDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if req.ID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "id is required")
		return
	}
	if _, ok := device.LookupCategory(req.Category); !ok {
		writeError(w, http.StatusBadRequest, ErrCodeValidation,
			"category must be one of: "+strings.Join(device.CategoryNames(), ", "))
		return
	}

	if !s.registry.NewDevice(req.Category, s.owners(req.ID), req.Name) {
		writeError(w, http.StatusConflict, ErrCodeConflict, "device already registered")
		return
	}

	statuses, _ := s.registry.GetStatus([]string{req.ID}) //nolint:errcheck // ids is non-empty
	s.logger.Info("device created via API", "device_id", req.ID, "category", req.Category)
	writeJSON(w, http.StatusCreated, map[string]any{"id": req.ID, "device": statuses[req.ID]})
}

// handleSetState merges states into a device and notifies its owner.
func (s *Server) handleSetState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var states device.States
	if err := json.NewDecoder(r.Body).Decode(&states); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if !s.registry.Merge(id, device.Partial{States: states}, true) {
		s.writeMergeFailure(w, id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleExec applies a raw partial update and returns the resulting record.
func (s *Server) handleExec(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req execRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if !s.registry.Merge(id, req.Partial, req.Notify) {
		s.writeMergeFailure(w, id)
		return
	}

	statuses, _ := s.registry.GetStatus([]string{id}) //nolint:errcheck // ids is non-empty
	writeJSON(w, http.StatusOK, statuses[id])
}

// handleDeviceIDs extracts the ids of a device reference list.
func (s *Server) handleDeviceIDs(w http.ResponseWriter, r *http.Request) {
	var req deviceIDsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ids": device.GetDeviceIDs(req.Devices)})
}

// writeMergeFailure reports a rejected merge: 404 for an unknown device,
// 409 for a known device whose owner is missing.
func (s *Server) writeMergeFailure(w http.ResponseWriter, id string) {
	if s.exists(id) {
		writeError(w, http.StatusConflict, ErrCodeConflict, "device has no owner to notify")
		return
	}
	writeNotFound(w, "device not found")
}

func (s *Server) exists(id string) bool {
	statuses, _ := s.registry.GetStatus([]string{id}) //nolint:errcheck // ids is non-empty
	_, ok := statuses[id]
	return ok
}
