package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/fleet-telemetry-core/internal/audit"
	"github.com/nerrad567/fleet-telemetry-core/internal/device"
	"github.com/nerrad567/fleet-telemetry-core/internal/query"
	"github.com/nerrad567/fleet-telemetry-core/internal/transport"
)

// handleListDevices returns the devices matching the optional filters,
// nearest first.
//
// Query parameters:
//   - range: maximum distance in km from the current origin
//   - type: device type (wildlife_tracker, soil_sensor, etc.)
//   - status: device status (active, registered, inactive)
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	maxDistance, ok := floatQuery(w, r, "range")
	if !ok {
		return
	}

	status := device.Status(r.URL.Query().Get("status"))
	if status != "" && !status.IsValid() {
		writeValidationError(w, "unknown status: "+string(status))
		return
	}

	devices := s.engine.ListDevices(device.Filter{
		MaxDistance: maxDistance,
		Type:        device.DeviceType(r.URL.Query().Get("type")),
		Status:      status,
	})
	if devices == nil {
		devices = []device.Device{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleScanDevices runs a range scan. The body is optional:
// {"lat": 18.52, "lng": 73.85, "range": 10}.
func (s *Server) handleScanDevices(w http.ResponseWriter, r *http.Request) {
	var req query.ScanRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}

	result, err := s.engine.Scan(r.Context(), req)
	if err != nil {
		if r.Context().Err() != nil {
			s.logger.Debug("scan abandoned by client", "error", err)
			return
		}
		s.writeDomainError(w, r, err, "failed to scan devices")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleGetDevice returns a device with its synthesised hourly history.
//
// Query parameters:
//   - points: number of hourly samples (default 24)
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	points, ok := intQuery(w, r, "points")
	if !ok {
		return
	}

	detail, err := s.engine.DeviceDetail(chi.URLParam(r, "id"), points)
	if err != nil {
		s.writeDomainError(w, r, err, "failed to get device")
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// handleDeviceReadings returns the stored readings reported by a device.
//
// Query parameters:
//   - stream: restrict to one stream (default all)
//   - limit: readings per stream (default per stream)
func (s *Server) handleDeviceReadings(w http.ResponseWriter, r *http.Request) {
	limit, ok := intQuery(w, r, "limit")
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	readings, err := s.engine.DeviceReadings(id, r.URL.Query().Get("stream"), limit)
	if err != nil {
		s.writeDomainError(w, r, err, "failed to get device readings")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"device_id": id, "readings": readings})
}

// handleRegisterDevice registers a new device.
func (s *Server) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	var req device.RegisterRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	dev, err := s.registry.Register(r.Context(), req)
	if err != nil {
		s.writeDomainError(w, r, err, "failed to register device")
		return
	}

	details := map[string]any{"name": dev.Name, "type": string(dev.Type)}
	if dev.Frequency != nil {
		details["frequency"] = *dev.Frequency
	}
	s.auditLog(audit.ActionRegister, dev.ID, details)

	writeJSON(w, http.StatusCreated, dev)
}

// handleDeviceCommand sends a command to the device named in the path.
// A device_id in the body is ignored.
func (s *Server) handleDeviceCommand(w http.ResponseWriter, r *http.Request) {
	var req transport.CommandRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	req.DeviceID = chi.URLParam(r, "id")
	s.sendCommand(w, r, req)
}

// handleSendCommand sends a command to the device named in the body.
func (s *Server) handleSendCommand(w http.ResponseWriter, r *http.Request) {
	var req transport.CommandRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	s.sendCommand(w, r, req)
}

func (s *Server) sendCommand(w http.ResponseWriter, r *http.Request, req transport.CommandRequest) {
	if req.Source == "" {
		req.Source = transport.DefaultSource
	}

	ack, err := s.transport.SendCommand(r.Context(), req)
	if err != nil {
		if r.Context().Err() != nil {
			s.logger.Debug("command abandoned by client", "device_id", req.DeviceID, "error", err)
			return
		}
		s.writeDomainError(w, r, err, "failed to send command")
		return
	}
	writeJSON(w, http.StatusOK, ack)
}

// handleNetworkStatus returns the gateway topology derived from the registry.
func (s *Server) handleNetworkStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.transport.NetworkStatus())
}

// handleAnalytics returns fleet and stream aggregates.
func (s *Server) handleAnalytics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Analytics())
}
