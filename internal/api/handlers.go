package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/labrig/internal/device"
)

// DeviceInfo is the JSON shape of one device.
type DeviceInfo struct {
	ID       string  `json:"id"`
	Type     string  `json:"type"`
	State    string  `json:"state"`
	Detail   string  `json:"detail,omitempty"`
	Error    string  `json:"error,omitempty"`
	DataRate float64 `json:"data_rate,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"version":        s.version,
		"uptime_seconds": int(time.Since(s.started).Seconds()),
		"session_state":  s.sess.Snapshot().State,
	})
}

func (s *Server) handleSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.sess.Snapshot())
}

func (s *Server) handleSessionStop(w http.ResponseWriter, _ *http.Request) {
	s.logger.Info("stop requested over HTTP")
	s.sess.Stop()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "stopping"})
}

func (s *Server) handleSessionNote(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Note string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if strings.TrimSpace(body.Note) == "" {
		writeBadRequest(w, "note must not be empty")
		return
	}
	s.sess.AddNote(body.Note)
	writeJSON(w, http.StatusCreated, map[string]string{"status": "noted"})
}

func (s *Server) handleDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.rig.All()
	out := make([]DeviceInfo, 0, len(devices))
	for _, dev := range devices {
		out = append(out, deviceInfo(dev))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	dev, ok := s.rig.Device(id)
	if !ok {
		writeNotFound(w, "no such device")
		return
	}
	writeJSON(w, http.StatusOK, deviceInfo(dev))
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, ok := s.data.Latest(id)
	if !ok {
		// Empty until the first record arrives; the live view tolerates this.
		writeNotFound(w, "no data for device")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleLatestByType(w http.ResponseWriter, r *http.Request) {
	deviceType := chi.URLParam(r, "type")
	rec, ok := s.data.LatestByType(deviceType)
	if !ok {
		writeNotFound(w, "no data for type")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.data.Stats())
}

func deviceInfo(dev device.Device) DeviceInfo {
	st := dev.Status()
	info := DeviceInfo{
		ID:     dev.ID(),
		Type:   dev.Type(),
		State:  st.State.String(),
		Detail: st.Detail,
	}
	if st.Err != nil {
		info.Error = st.Err.Error()
	}
	if src, ok := dev.(device.DataSource); ok {
		info.DataRate = src.DataRate()
	}
	return info
}
