package api

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
)

// handleListDevices returns the ids of devices with live state.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := []string{}
	if s.state != nil {
		devices = append(devices, s.state.Devices()...)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleGetDeviceState returns the latest entry of every channel of a device.
// Device ids containing "/" must be percent-encoded in the path.
func (s *Server) handleGetDeviceState(w http.ResponseWriter, r *http.Request) {
	id, err := url.PathUnescape(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, "invalid device id")
		return
	}
	if s.state == nil {
		writeNotFound(w, "device not found")
		return
	}

	channels, ok := s.state.GetState(id)
	if !ok {
		writeNotFound(w, "device not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": id,
		"channels":  channels,
	})
}
