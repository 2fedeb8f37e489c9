package api

import (
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/fleet-telemetry-core/internal/telemetry"
)

// StreamInfo describes one configured stream.
type StreamInfo struct {
	Name    string           `json:"name"`
	Primary string           `json:"primary"`
	Fields  []string         `json:"fields"`
	Stats   telemetry.Stats  `json:"stats"`
	Health  telemetry.Health `json:"health"`
}

// handleListStreams returns every configured stream with its counters and
// freshness.
func (s *Server) handleListStreams(w http.ResponseWriter, _ *http.Request) {
	stores := s.streams.All()
	infos := make([]StreamInfo, 0, len(stores))
	for _, store := range stores {
		schema := store.Schema()
		infos = append(infos, StreamInfo{
			Name:    schema.Name,
			Primary: schema.Primary,
			Fields:  schema.Fields,
			Stats:   store.Stats(),
			Health:  store.Health(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"streams": infos, "count": len(infos)})
}

// streamFromRequest resolves the {stream} URL parameter, writing a 404 if
// the stream is not configured.
func (s *Server) streamFromRequest(w http.ResponseWriter, r *http.Request) (*telemetry.Store, bool) {
	store, err := s.streams.Get(chi.URLParam(r, "stream"))
	if err != nil {
		s.writeDomainError(w, r, err, "failed to resolve stream")
		return nil, false
	}
	return store, true
}

// handleIngestReading validates and stores one reading.
//
// The body is a JSON object holding the stream's metrics and an optional
// device_id. Any timestamp in the body is ignored.
func (s *Server) handleIngestReading(w http.ResponseWriter, r *http.Request) {
	store, ok := s.streamFromRequest(w, r)
	if !ok {
		return
	}

	var sample telemetry.Sample
	if !decodeJSON(w, r, &sample, false) {
		return
	}
	if sample == nil {
		writeBadRequest(w, "body must be a JSON object")
		return
	}

	reading, err := store.Ingest(sample)
	if err != nil {
		s.writeDomainError(w, r, err, "failed to ingest reading")
		return
	}

	writeJSON(w, http.StatusCreated, reading)
}

// handleLatestReading returns the latest reading, or the zero-value reading
// if the stream has received nothing.
func (s *Server) handleLatestReading(w http.ResponseWriter, r *http.Request) {
	store, ok := s.streamFromRequest(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, store.Latest())
}

// handleReadingHistory returns recent readings, oldest first.
//
// Query parameters:
//   - limit: number of readings (default per stream, clamped to the stored length)
func (s *Server) handleReadingHistory(w http.ResponseWriter, r *http.Request) {
	store, ok := s.streamFromRequest(w, r)
	if !ok {
		return
	}

	limit, ok := intQuery(w, r, "limit")
	if !ok {
		return
	}

	readings := store.History(limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"stream":   store.Name(),
		"readings": readings,
		"count":    len(readings),
	})
}

// handleClearHistory empties the stream history. The latest value is kept.
func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	store, ok := s.streamFromRequest(w, r)
	if !ok {
		return
	}
	store.Clear()
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "cleared",
		"stream": store.Name(),
	})
}

// handleStreamHealth reports the stream's freshness.
func (s *Server) handleStreamHealth(w http.ResponseWriter, r *http.Request) {
	store, ok := s.streamFromRequest(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, store.Health())
}

// intQuery parses an optional integer query parameter. A missing parameter
// yields 0. On a malformed value a 400 has been written and false is
// returned.
func intQuery(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		writeBadRequest(w, name+" must be an integer")
		return 0, false
	}
	return n, true
}

// floatQuery parses an optional number query parameter. A missing
// parameter yields nil.
func floatQuery(w http.ResponseWriter, r *http.Request, name string) (*float64, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, true
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		writeBadRequest(w, name+" must be a number")
		return nil, false
	}
	return &f, true
}
