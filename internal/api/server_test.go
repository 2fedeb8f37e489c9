package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/fleet-telemetry-core/internal/audit"
	"github.com/nerrad567/fleet-telemetry-core/internal/device"
	"github.com/nerrad567/fleet-telemetry-core/internal/geo"
	"github.com/nerrad567/fleet-telemetry-core/internal/infrastructure/config"
	"github.com/nerrad567/fleet-telemetry-core/internal/infrastructure/database"
	"github.com/nerrad567/fleet-telemetry-core/internal/infrastructure/logging"
	"github.com/nerrad567/fleet-telemetry-core/internal/query"
	"github.com/nerrad567/fleet-telemetry-core/internal/telemetry"
	"github.com/nerrad567/fleet-telemetry-core/internal/transport"
	"github.com/nerrad567/fleet-telemetry-core/migrations"
)

var testOrigin = geo.Point{Lat: 18.5, Lng: 73.8}

func testCatalog() []device.CatalogEntry {
	at := func(lat float64) geo.Point { return geo.Point{Lat: lat, Lng: 73.8} }
	return []device.CatalogEntry{
		{ID: "a1", Name: "Soil Probe", Type: device.DeviceTypeSoilSensor, Location: at(18.5), Battery: 80},
		{ID: "a2", Name: "Deer Collar", Type: device.DeviceTypeWildlifeTracker, Location: at(18.52), Battery: 50},
		{ID: "a3", Name: "Ridge Station", Type: device.DeviceTypeClimateSensor, Location: at(18.6), Battery: 90},
	}
}

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test", "test")
}

// openTestDB opens a migrated database in a temporary directory.
func openTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "fleet.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error: %v", err)
	}
	return db
}

// testServer creates a Server over a loaded registry, the default streams
// and a migrated database. Scan and command delays are disabled.
func testServer(t *testing.T, apiCfg config.APIConfig) (*Server, *database.DB) {
	t.Helper()

	db := openTestDB(t)

	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB), device.Options{
		Origin:  testOrigin,
		Catalog: testCatalog(),
	})
	if err := registry.Load(context.Background()); err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	streams, err := telemetry.NewStreams(telemetry.DefaultSpecs(), telemetry.Options{})
	if err != nil {
		t.Fatalf("NewStreams() error: %v", err)
	}

	auditRepo := audit.NewSQLiteRepository(db.DB)
	tr := transport.New(registry, transport.Options{
		CommandDelay: -1,
		Gateways: []transport.Gateway{
			{ID: "gw-a", Name: "A", Location: testOrigin, RadiusKM: 5, Signal: -60},
		},
	})
	tr.SetRecorder(auditRepo)

	srv, err := New(Deps{
		Config:    apiCfg,
		WS:        config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		Logger:    testLogger(),
		Streams:   streams,
		Registry:  registry,
		Engine:    query.NewEngine(registry, streams, query.Options{ScanDelay: -1, SignalJitter: -1}),
		Transport: tr,
		AuditRepo: auditRepo,
		DB:        db,
		Version:   "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return srv, db
}

// do sends a request through the router and returns the recorder.
func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
	return resp
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, want, w.Body.String())
	}
}

func expectErrorCode(t *testing.T, w *httptest.ResponseRecorder, status int, code string) map[string]any {
	t.Helper()
	expectStatus(t, w, status)
	resp := decodeBody(t, w)
	if resp["code"] != code {
		t.Errorf("code = %v, want %s", resp["code"], code)
	}
	if int(resp["status"].(float64)) != status {
		t.Errorf("body status = %v, want %d", resp["status"], status)
	}
	return resp
}

// ─── Construction ───────────────────────────────────────────────────

func TestNew_RequiresDependencies(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("New() with no dependencies should fail")
	}
	if _, err := New(Deps{Logger: testLogger()}); err == nil {
		t.Error("New() without streams should fail")
	}
}

// ─── Health & Metrics ───────────────────────────────────────────────

func TestHealth(t *testing.T) {
	srv, _ := testServer(t, config.APIConfig{})

	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/health", "")
	expectStatus(t, w, http.StatusOK)

	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	resp := decodeBody(t, w)
	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
	if resp["version"] != "test" {
		t.Errorf("version = %v, want test", resp["version"])
	}
	components := resp["components"].(map[string]any)
	if components["database"] != "ok" {
		t.Errorf("database = %v, want ok", components["database"])
	}
}

func TestHealth_Degraded(t *testing.T) {
	srv, db := testServer(t, config.APIConfig{})
	db.Close()

	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/health", "")
	expectStatus(t, w, http.StatusServiceUnavailable)

	if resp := decodeBody(t, w); resp["status"] != "degraded" {
		t.Errorf("status = %v, want degraded", resp["status"])
	}
}

func TestMetrics(t *testing.T) {
	srv, _ := testServer(t, config.APIConfig{})

	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/metrics", "")
	expectStatus(t, w, http.StatusOK)

	resp := decodeBody(t, w)
	if resp["version"] != "test" {
		t.Errorf("version = %v", resp["version"])
	}
	if total := resp["devices"].(map[string]any)["total"]; total != 3.0 {
		t.Errorf("devices.total = %v, want 3", total)
	}
	if streams := resp["streams"].([]any); len(streams) != 2 {
		t.Errorf("streams = %d, want 2", len(streams))
	}
	if _, ok := resp["database"]; !ok {
		t.Error("database metrics missing")
	}
	if _, ok := resp["mqtt"]; ok {
		t.Error("mqtt metrics reported without a client")
	}
}

// ─── Middleware ─────────────────────────────────────────────────────

func TestRequestID_Generated(t *testing.T) {
	srv, _ := testServer(t, config.APIConfig{})

	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/health", "")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}
}

func TestRequestID_PreservesClient(t *testing.T) {
	srv, _ := testServer(t, config.APIConfig{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want client-123", got)
	}
}

func TestCORS_Preflight(t *testing.T) {
	tests := []struct {
		name    string
		origins []string
		want    string
	}{
		{name: "any origin", origins: nil, want: "*"},
		{name: "listed origin", origins: []string{"http://localhost:3000"}, want: "http://localhost:3000"},
		{name: "unlisted origin", origins: []string{"https://ops.example.com"}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := testServer(t, config.APIConfig{CORS: config.CORSConfig{AllowedOrigins: tt.origins}})

			req := httptest.NewRequest(http.MethodOptions, "/api/v1/devices", nil)
			req.Header.Set("Origin", "http://localhost:3000")
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			w := httptest.NewRecorder()
			srv.buildRouter().ServeHTTP(w, req)

			if w.Code != http.StatusNoContent {
				t.Errorf("preflight status = %d, want 204", w.Code)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRecovery(t *testing.T) {
	srv, _ := testServer(t, config.APIConfig{})
	h := srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := do(t, h, http.MethodGet, "/", "")
	expectErrorCode(t, w, http.StatusInternalServerError, ErrCodeInternal)
}

func TestBodySizeLimit(t *testing.T) {
	srv, _ := testServer(t, config.APIConfig{MaxBodyBytes: 32})

	body := `{"soil_moisture": 41.5, "device_id": "` + strings.Repeat("x", 64) + `"}`
	w := do(t, srv.buildRouter(), http.MethodPost, "/api/v1/streams/soil/readings", body)
	expectErrorCode(t, w, http.StatusRequestEntityTooLarge, ErrCodeTooLarge)
}

func TestNotFound(t *testing.T) {
	srv, _ := testServer(t, config.APIConfig{})

	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/nonexistent", "")
	expectErrorCode(t, w, http.StatusNotFound, ErrCodeNotFound)
}

// ─── Streams ────────────────────────────────────────────────────────

func TestIngestReading(t *testing.T) {
	srv, _ := testServer(t, config.APIConfig{})
	router := srv.buildRouter()

	w := do(t, router, http.MethodPost, "/api/v1/streams/soil/readings",
		`{"soil_moisture": 41.5, "temperature": "22.5", "device_id": "a1", "timestamp": "1999-01-01T00:00:00Z"}`)
	expectStatus(t, w, http.StatusCreated)

	resp := decodeBody(t, w)
	if resp["soil_moisture"] != 41.5 || resp["temperature"] != 22.5 || resp["humidity"] != 0.0 {
		t.Errorf("metrics = %v", resp)
	}
	if resp["device_id"] != "a1" {
		t.Errorf("device_id = %v, want a1", resp["device_id"])
	}
	ts, err := time.Parse(time.RFC3339Nano, resp["timestamp"].(string))
	if err != nil || time.Since(ts) > time.Minute {
		t.Errorf("timestamp = %v, want ingest time", resp["timestamp"])
	}

	latest := decodeBody(t, do(t, router, http.MethodGet, "/api/v1/streams/soil/latest", ""))
	if latest["soil_moisture"] != 41.5 || latest["device_id"] != "a1" {
		t.Errorf("latest = %v", latest)
	}
}

func TestIngestReading_DefaultsDeviceID(t *testing.T) {
	srv, _ := testServer(t, config.APIConfig{})

	w := do(t, srv.buildRouter(), http.MethodPost, "/api/v1/streams/climate/readings", `{"temperature": 19}`)
	expectStatus(t, w, http.StatusCreated)

	if resp := decodeBody(t, w); resp["device_id"] != telemetry.UnknownDevice {
		t.Errorf("device_id = %v, want %s", resp["device_id"], telemetry.UnknownDevice)
	}
}

func TestIngestReading_Rejected(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		body   string
		status int
		code   string
	}{
		{name: "missing primary", path: "/api/v1/streams/soil/readings", body: `{"temperature": 20}`,
			status: http.StatusBadRequest, code: ErrCodeValidation},
		{name: "non-numeric primary", path: "/api/v1/streams/soil/readings", body: `{"soil_moisture": "wet"}`,
			status: http.StatusBadRequest, code: ErrCodeValidation},
		{name: "unknown stream", path: "/api/v1/streams/water/readings", body: `{"level": 1}`,
			status: http.StatusNotFound, code: ErrCodeNotFound},
		{name: "invalid json", path: "/api/v1/streams/soil/readings", body: `{"soil_moisture":`,
			status: http.StatusBadRequest, code: ErrCodeBadRequest},
		{name: "json array", path: "/api/v1/streams/soil/readings", body: `[41]`,
			status: http.StatusBadRequest, code: ErrCodeBadRequest},
		{name: "json null", path: "/api/v1/streams/soil/readings", body: `null`,
			status: http.StatusBadRequest, code: ErrCodeBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := testServer(t, config.APIConfig{})
			router := srv.buildRouter()

			w := do(t, router, http.MethodPost, tt.path, tt.body)
			expectErrorCode(t, w, tt.status, tt.code)

			latest := decodeBody(t, do(t, router, http.MethodGet, "/api/v1/streams/soil/latest", ""))
			if latest["device_id"] != nil || latest["timestamp"] != nil {
				t.Errorf("rejected reading was stored: %v", latest)
			}
		})
	}
}

func TestLatestReading_ZeroValue(t *testing.T) {
	srv, _ := testServer(t, config.APIConfig{})

	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/streams/climate/latest", "")
	expectStatus(t, w, http.StatusOK)

	resp := decodeBody(t, w)
	for _, metric := range []string{"temperature", "humidity", "pressure"} {
		if resp[metric] != 0.0 {
			t.Errorf("%s = %v, want 0", metric, resp[metric])
		}
	}
	if v, ok := resp["device_id"]; !ok || v != nil {
		t.Errorf("device_id = %v, want null", v)
	}
	if v, ok := resp["timestamp"]; !ok || v != nil {
		t.Errorf("timestamp = %v, want null", v)
	}
}

func TestReadingHistory(t *testing.T) {
	srv, _ := testServer(t, config.APIConfig{})
	router := srv.buildRouter()

	for _, v := range []string{"1", "2", "3", "4", "5"} {
		expectStatus(t, do(t, router, http.MethodPost, "/api/v1/streams/soil/readings", `{"soil_moisture": `+v+`}`), http.StatusCreated)
	}

	resp := decodeBody(t, do(t, router, http.MethodGet, "/api/v1/streams/soil/history?limit=3", ""))
	if resp["count"] != 3.0 || resp["stream"] != "soil" {
		t.Fatalf("history = %v", resp)
	}
	readings := resp["readings"].([]any)
	for i, want := range []float64{3, 4, 5} {
		if got := readings[i].(map[string]any)["soil_moisture"]; got != want {
			t.Errorf("readings[%d] = %v, want %v", i, got, want)
		}
	}

	resp = decodeBody(t, do(t, router, http.MethodGet, "/api/v1/streams/soil/history?limit=100", ""))
	if resp["count"] != 5.0 {
		t.Errorf("count = %v, want 5 (clamped)", resp["count"])
	}

	w := do(t, router, http.MethodGet, "/api/v1/streams/soil/history?limit=abc", "")
	expectErrorCode(t, w, http.StatusBadRequest, ErrCodeBadRequest)
}

func TestReadingHistory_Empty(t *testing.T) {
	srv, _ := testServer(t, config.APIConfig{})

	resp := decodeBody(t, do(t, srv.buildRouter(), http.MethodGet, "/api/v1/streams/climate/history", ""))
	readings, ok := resp["readings"].([]any)
	if !ok || len(readings) != 0 {
		t.Errorf("readings = %v, want empty list", resp["readings"])
	}
}

func TestClearHistory(t *testing.T) {
	srv, _ := testServer(t, config.APIConfig{})
	router := srv.buildRouter()

	do(t, router, http.MethodPost, "/api/v1/streams/soil/readings", `{"soil_moisture": 40}`)

	w := do(t, router, http.MethodDelete, "/api/v1/streams/soil/history", "")
	expectStatus(t, w, http.StatusOK)
	if resp := decodeBody(t, w); resp["status"] != "cleared" {
		t.Errorf("status = %v, want cleared", resp["status"])
	}

	history := decodeBody(t, do(t, router, http.MethodGet, "/api/v1/streams/soil/history", ""))
	if history["count"] != 0.0 {
		t.Errorf("count after clear = %v, want 0", history["count"])
	}
	latest := decodeBody(t, do(t, router, http.MethodGet, "/api/v1/streams/soil/latest", ""))
	if latest["soil_moisture"] != 40.0 {
		t.Errorf("latest after clear = %v, want kept", latest)
	}
}

func TestStreamHealth(t *testing.T) {
	srv, _ := testServer(t, config.APIConfig{})
	router := srv.buildRouter()

	resp := decodeBody(t, do(t, router, http.MethodGet, "/api/v1/streams/soil/health", ""))
	if resp["status"] != "stale" || resp["count"] != 0.0 || resp["last_update"] != nil {
		t.Errorf("health before ingest = %v", resp)
	}

	do(t, router, http.MethodPost, "/api/v1/streams/soil/readings", `{"soil_moisture": 40}`)

	resp = decodeBody(t, do(t, router, http.MethodGet, "/api/v1/streams/soil/health", ""))
	if resp["status"] != "healthy" || resp["count"] != 1.0 {
		t.Errorf("health after ingest = %v", resp)
	}
}

func TestListStreams(t *testing.T) {
	srv, _ := testServer(t, config.APIConfig{})

	resp := decodeBody(t, do(t, srv.buildRouter(), http.MethodGet, "/api/v1/streams", ""))
	streams := resp["streams"].([]any)
	if len(streams) != 2 {
		t.Fatalf("streams = %d, want 2", len(streams))
	}
	first := streams[0].(map[string]any)
	if first["name"] != "soil" || first["primary"] != "soil_moisture" {
		t.Errorf("first stream = %v", first)
	}
}

// ─── Devices ────────────────────────────────────────────────────────

func deviceIDs(t *testing.T, resp map[string]any) []string {
	t.Helper()
	var ids []string
	for _, d := range resp["devices"].([]any) {
		ids = append(ids, d.(map[string]any)["id"].(string))
	}
	return ids
}

func TestListDevices(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{name: "all, nearest first", query: "", want: []string{"a1", "a2", "a3"}},
		{name: "range", query: "?range=5", want: []string{"a1", "a2"}},
		{name: "type", query: "?type=climate_sensor", want: []string{"a3"}},
		{name: "status", query: "?status=registered", want: nil},
		{name: "status active", query: "?status=active", want: []string{"a1", "a2", "a3"}},
	}

	srv, _ := testServer(t, config.APIConfig{})
	router := srv.buildRouter()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, http.MethodGet, "/api/v1/devices"+tt.query, "")
			expectStatus(t, w, http.StatusOK)

			resp := decodeBody(t, w)
			got := deviceIDs(t, resp)
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("devices = %v, want %v", got, tt.want)
			}
			if int(resp["count"].(float64)) != len(tt.want) {
				t.Errorf("count = %v, want %d", resp["count"], len(tt.want))
			}
		})
	}
}

func TestListDevices_InvalidRange(t *testing.T) {
	srv, _ := testServer(t, config.APIConfig{})

	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/devices?range=far", "")
	expectErrorCode(t, w, http.StatusBadRequest, ErrCodeBadRequest)
}

func TestListDevices_UnknownStatus(t *testing.T) {
	srv, _ := testServer(t, config.APIConfig{})

	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/devices?status=asleep", "")
	expectErrorCode(t, w, http.StatusBadRequest, ErrCodeValidation)
}

func TestScanDevices(t *testing.T) {
	srv, _ := testServer(t, config.APIConfig{})
	router := srv.buildRouter()

	w := do(t, router, http.MethodPost, "/api/v1/devices/scan", `{"lat": 18.6, "lng": 73.8, "range": 5}`)
	expectStatus(t, w, http.StatusOK)

	resp := decodeBody(t, w)
	if ids := deviceIDs(t, resp); len(ids) != 1 || ids[0] != "a3" {
		t.Fatalf("scan devices = %v, want [a3]", ids)
	}
	found := resp["devices"].([]any)[0].(map[string]any)
	if found["distance"] != 0.0 || found["signal"] != -50.0 {
		t.Errorf("device at scan origin = %v, want distance 0 and signal -50", found)
	}
	if resp["range"] != 5.0 || resp["count"] != 1.0 {
		t.Errorf("scan metadata = %v", resp)
	}
}

func TestScanDevices_EmptyBodyUsesDefaultRange(t *testing.T) {
	srv, _ := testServer(t, config.APIConfig{})

	w := do(t, srv.buildRouter(), http.MethodPost, "/api/v1/devices/scan", "")
	expectStatus(t, w, http.StatusOK)

	resp := decodeBody(t, w)
	if resp["range"] != query.DefaultScanRange || resp["count"] != 3.0 {
		t.Errorf("scan = %v, want default range and all devices", resp)
	}
}

func TestScanDevices_Invalid(t *testing.T) {
	srv, _ := testServer(t, config.APIConfig{})

	w := do(t, srv.buildRouter(), http.MethodPost, "/api/v1/devices/scan", `{"lat": 18.6}`)
	expectErrorCode(t, w, http.StatusBadRequest, ErrCodeValidation)
}

func TestGetDevice(t *testing.T) {
	srv, _ := testServer(t, config.APIConfig{})
	router := srv.buildRouter()

	w := do(t, router, http.MethodGet, "/api/v1/devices/a2?points=5", "")
	expectStatus(t, w, http.StatusOK)

	resp := decodeBody(t, w)
	if resp["device"].(map[string]any)["id"] != "a2" {
		t.Errorf("device = %v", resp["device"])
	}
	history := resp["history"].([]any)
	if len(history) != 5 {
		t.Fatalf("history = %d points, want 5", len(history))
	}
	if last := history[4].(map[string]any); last["battery"] != 50.0 {
		t.Errorf("latest point battery = %v, want current 50", last["battery"])
	}

	w = do(t, router, http.MethodGet, "/api/v1/devices/a2", "")
	if got := len(decodeBody(t, w)["history"].([]any)); got != query.DefaultHistoryPoints {
		t.Errorf("default history = %d, want %d", got, query.DefaultHistoryPoints)
	}
}

func TestGetDevice_Errors(t *testing.T) {
	srv, _ := testServer(t, config.APIConfig{})
	router := srv.buildRouter()

	expectErrorCode(t, do(t, router, http.MethodGet, "/api/v1/devices/nope", ""), http.StatusNotFound, ErrCodeNotFound)
	expectErrorCode(t, do(t, router, http.MethodGet, "/api/v1/devices/a1?points=x", ""), http.StatusBadRequest, ErrCodeBadRequest)
}

func TestDeviceReadings(t *testing.T) {
	srv, _ := testServer(t, config.APIConfig{})
	router := srv.buildRouter()

	do(t, router, http.MethodPost, "/api/v1/streams/soil/readings", `{"soil_moisture": 40, "device_id": "a1"}`)
	do(t, router, http.MethodPost, "/api/v1/streams/soil/readings", `{"soil_moisture": 44, "device_id": "a2"}`)

	w := do(t, router, http.MethodGet, "/api/v1/devices/a1/readings?stream=soil", "")
	expectStatus(t, w, http.StatusOK)

	readings := decodeBody(t, w)["readings"].(map[string]any)
	soil := readings["soil"].([]any)
	if len(soil) != 1 || soil[0].(map[string]any)["soil_moisture"] != 40.0 {
		t.Errorf("soil readings = %v", soil)
	}
	if _, ok := readings["climate"]; ok {
		t.Error("stream filter ignored")
	}

	expectErrorCode(t, do(t, router, http.MethodGet, "/api/v1/devices/a1/readings?stream=water", ""), http.StatusNotFound, ErrCodeNotFound)
	expectErrorCode(t, do(t, router, http.MethodGet, "/api/v1/devices/nope/readings", ""), http.StatusNotFound, ErrCodeNotFound)
}

func TestRegisterDevice(t *testing.T) {
	srv, _ := testServer(t, config.APIConfig{})
	router := srv.buildRouter()

	w := do(t, router, http.MethodPost, "/api/v1/devices", `{"id": "n1", "name": "New Node", "type": "iot_node", "frequency": 868.1}`)
	expectStatus(t, w, http.StatusCreated)

	resp := decodeBody(t, w)
	if resp["status"] != "registered" || resp["battery"] != 100.0 || resp["signal"] != -60.0 {
		t.Errorf("registered device = %v", resp)
	}

	w = do(t, router, http.MethodPost, "/api/v1/devices", `{"id": "n1", "name": "Again", "type": "iot_node"}`)
	expectErrorCode(t, w, http.StatusConflict, ErrCodeConflict)

	expectStatus(t, do(t, router, http.MethodGet, "/api/v1/devices/n1", ""), http.StatusOK)
}

func TestRegisterDevice_Validation(t *testing.T) {
	srv, _ := testServer(t, config.APIConfig{})
	router := srv.buildRouter()

	w := do(t, router, http.MethodPost, "/api/v1/devices", `{"name": "X"}`)
	resp := expectErrorCode(t, w, http.StatusBadRequest, ErrCodeValidation)

	msg := resp["message"].(string)
	if !strings.Contains(msg, "id") || !strings.Contains(msg, "type") {
		t.Errorf("message %q does not name the missing fields", msg)
	}

	list := decodeBody(t, do(t, router, http.MethodGet, "/api/v1/devices", ""))
	if list["count"] != 3.0 {
		t.Errorf("count after rejected registration = %v, want 3", list["count"])
	}
}

// ─── Commands ───────────────────────────────────────────────────────

func TestDeviceCommand(t *testing.T) {
	srv, _ := testServer(t, config.APIConfig{})
	router := srv.buildRouter()

	w := do(t, router, http.MethodPost, "/api/v1/devices/a1/commands", `{"command": "set_interval", "parameters": {"seconds": 30}}`)
	expectStatus(t, w, http.StatusOK)

	ack := decodeBody(t, w)
	if ack["status"] != "received" || ack["device_id"] != "a1" || ack["command"] != "set_interval" {
		t.Errorf("ack = %v", ack)
	}
	if !strings.HasSuffix(ack["response_time"].(string), "ms") {
		t.Errorf("response_time = %v", ack["response_time"])
	}
	if ack["parameters"].(map[string]any)["seconds"] != 30.0 {
		t.Errorf("parameters = %v", ack["parameters"])
	}

	logs := decodeBody(t, do(t, router, http.MethodGet, "/api/v1/audit?action=command&device_id=a1", ""))
	if logs["total"] != 1.0 {
		t.Fatalf("audit total = %v, want 1", logs["total"])
	}
	entry := logs["entries"].([]any)[0].(map[string]any)
	if entry["source"] != "api" || entry["details"].(map[string]any)["command_id"] != ack["command_id"] {
		t.Errorf("audit entry = %v", entry)
	}
}

func TestSendCommand_Validation(t *testing.T) {
	srv, _ := testServer(t, config.APIConfig{})
	router := srv.buildRouter()

	w := do(t, router, http.MethodPost, "/api/v1/commands", `{"device_id": "a1"}`)
	resp := expectErrorCode(t, w, http.StatusBadRequest, ErrCodeValidation)
	if !strings.Contains(resp["message"].(string), "command") {
		t.Errorf("message = %v", resp["message"])
	}

	w = do(t, router, http.MethodPost, "/api/v1/commands", `{"device_id": "a1", "command": "ping"}`)
	expectStatus(t, w, http.StatusOK)
}

// ─── Network, Analytics, Audit ──────────────────────────────────────

func TestNetworkStatus(t *testing.T) {
	srv, _ := testServer(t, config.APIConfig{})
	router := srv.buildRouter()

	w := do(t, router, http.MethodGet, "/api/v1/network/status", "")
	expectStatus(t, w, http.StatusOK)

	resp := decodeBody(t, w)
	gateways := resp["gateways"].([]any)
	if len(gateways) != 1 {
		t.Fatalf("gateways = %d, want 1", len(gateways))
	}
	gw := gateways[0].(map[string]any)
	if gw["id"] != "gw-a" || gw["connected_devices"] != 2.0 || gw["signal_strength"] != -60.0 || gw["status"] != "online" {
		t.Errorf("gateway = %v", gw)
	}
	if resp["total_devices"] != 3.0 || resp["coverage_percent"] != 66.7 {
		t.Errorf("status = %v", resp)
	}

	again := do(t, router, http.MethodGet, "/api/v1/network/status", "")
	if !bytes.Equal(w.Body.Bytes(), again.Body.Bytes()) {
		t.Error("network status not idempotent")
	}
}

func TestAnalytics(t *testing.T) {
	srv, _ := testServer(t, config.APIConfig{})
	router := srv.buildRouter()

	do(t, router, http.MethodPost, "/api/v1/streams/soil/readings", `{"soil_moisture": 40}`)

	resp := decodeBody(t, do(t, router, http.MethodGet, "/api/v1/analytics", ""))
	devices := resp["devices"].(map[string]any)
	if devices["total"] != 3.0 || devices["average_battery"] != 73.3 {
		t.Errorf("devices = %v", devices)
	}
	streams := resp["streams"].([]any)
	if len(streams) != 2 {
		t.Fatalf("streams = %d, want 2", len(streams))
	}
	soil := streams[0].(map[string]any)
	if soil["stream"] != "soil" || soil["ingested"] != 1.0 {
		t.Errorf("soil summary = %v", soil)
	}
}

func TestAuditLog_Registration(t *testing.T) {
	srv, _ := testServer(t, config.APIConfig{})
	router := srv.buildRouter()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.drainAuditLog(ctx)
		close(done)
	}()

	expectStatus(t, do(t, router, http.MethodPost, "/api/v1/devices", `{"id": "n2", "name": "Logged", "type": "iot_node"}`), http.StatusCreated)

	cancel()
	<-done

	logs := decodeBody(t, do(t, router, http.MethodGet, "/api/v1/audit?action=register", ""))
	if logs["total"] != 1.0 {
		t.Fatalf("audit total = %v, want 1", logs["total"])
	}
	entry := logs["entries"].([]any)[0].(map[string]any)
	if entry["device_id"] != "n2" || entry["details"].(map[string]any)["type"] != "iot_node" {
		t.Errorf("audit entry = %v", entry)
	}
}

func TestAuditLog_NotConfigured(t *testing.T) {
	srv, _ := testServer(t, config.APIConfig{})
	srv.auditRepo = nil

	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/audit", "")
	expectErrorCode(t, w, http.StatusServiceUnavailable, ErrCodeUnavailable)
}

func TestAuditLog_InvalidLimit(t *testing.T) {
	srv, _ := testServer(t, config.APIConfig{})

	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/audit?limit=ten", "")
	expectErrorCode(t, w, http.StatusBadRequest, ErrCodeBadRequest)
}

// ─── Lifecycle ──────────────────────────────────────────────────────

func TestServer_StartAndClose(t *testing.T) {
	srv, _ := testServer(t, config.APIConfig{Host: "127.0.0.1", Port: 19081, Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5}})

	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start should fail")
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() after Start: %v", err)
	}
	if err := srv.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
}

func TestServer_CloseWithoutStart(t *testing.T) {
	srv, _ := testServer(t, config.APIConfig{})
	if err := srv.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
}
