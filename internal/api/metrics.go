package api

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/fleet-telemetry-core/internal/device"
	"github.com/nerrad567/fleet-telemetry-core/internal/ingest"
	"github.com/nerrad567/fleet-telemetry-core/internal/telemetry"
)

// healthCheckTimeout bounds the component checks of /health.
const healthCheckTimeout = 2 * time.Second

// Service health statuses.
const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string            `json:"timestamp"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Runtime       RuntimeMetrics    `json:"runtime"`
	WebSocket     WSMetrics         `json:"websocket"`
	MQTT          *MQTTMetrics      `json:"mqtt,omitempty"`
	InfluxDB      *InfluxDBMetrics  `json:"influxdb,omitempty"`
	Devices       device.Stats      `json:"devices"`
	Streams       []telemetry.Stats `json:"streams"`
	Database      *DatabaseMetrics  `json:"database,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// MQTTMetrics contains MQTT client and ingest statistics.
type MQTTMetrics struct {
	Connected bool            `json:"connected"`
	Ingest    *ingest.Metrics `json:"ingest,omitempty"`
}

// InfluxDBMetrics contains InfluxDB client statistics.
type InfluxDBMetrics struct {
	Connected bool `json:"connected"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics returns runtime, connection, registry and stream metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		},
		Devices: s.registry.Stats(),
	}

	for _, store := range s.streams.All() {
		metrics.Streams = append(metrics.Streams, store.Stats())
	}

	if s.mqtt != nil {
		metrics.MQTT = &MQTTMetrics{Connected: s.mqtt.IsConnected()}
		if s.ingest != nil {
			m := s.ingest.Metrics()
			metrics.MQTT.Ingest = &m
		}
	}

	if s.influx != nil {
		metrics.InfluxDB = &InfluxDBMetrics{Connected: s.influx.IsConnected()}
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = &DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}

// healthChecker is implemented by every optional infrastructure client.
type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// handleHealth reports service health. The status is "degraded" with a 503
// if any configured component fails its check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]healthChecker)
	if s.db != nil {
		checks["database"] = s.db
	}
	if s.mqtt != nil {
		checks["mqtt"] = s.mqtt
	}
	if s.influx != nil {
		checks["influxdb"] = s.influx
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	status, code := HealthOK, http.StatusOK
	components := make(map[string]string, len(checks))
	for name, c := range checks {
		if err := c.HealthCheck(ctx); err != nil {
			components[name] = err.Error()
			status, code = HealthDegraded, http.StatusServiceUnavailable
			continue
		}
		components[name] = HealthOK
	}

	writeJSON(w, code, map[string]any{
		"status":     status,
		"version":    s.version,
		"components": components,
	})
}
