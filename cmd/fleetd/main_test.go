package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/fleet-telemetry-core/internal/device"
	"github.com/nerrad567/fleet-telemetry-core/internal/infrastructure/config"
	"github.com/nerrad567/fleet-telemetry-core/internal/telemetry"
	"github.com/nerrad567/fleet-telemetry-core/internal/transport"
)

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv(config.EnvConfigPath, "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_InvalidFleetConfig verifies validation errors stop startup.
func TestRun_InvalidFleetConfig(t *testing.T) {
	configPath := writeConfig(t, `
database:
  enabled: false
fleet:
  scan_range: -1
`)
	t.Setenv(config.EnvConfigPath, configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with a negative scan range")
	}
}

// TestRun_StartsAndStops runs the daemon with SQLite and no brokers, then
// shuts it down through context cancellation.
func TestRun_StartsAndStops(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := writeConfig(t, `
database:
  enabled: true
  path: `+filepath.Join(tmpDir, "fleet.db")+`
mqtt:
  enabled: false
influxdb:
  enabled: false
logging:
  level: error
  format: text
  output: stdout
api:
  host: "127.0.0.1"
  port: 19182
`)
	t.Setenv(config.EnvConfigPath, configPath)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- run(ctx) }()

	time.Sleep(300 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("run() error: %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("run() did not return after cancellation")
	}

	if _, err := os.Stat(filepath.Join(tmpDir, "fleet.db")); err != nil {
		t.Errorf("database file not created: %v", err)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestOptionalDelay(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want time.Duration
	}{
		{0, -1},
		{-5, -1},
		{250 * time.Millisecond, 250 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := optionalDelay(tt.in); got != tt.want {
			t.Errorf("optionalDelay(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if optionalJitter(0) != -1 || optionalJitter(3) != 3 {
		t.Error("optionalJitter mapping wrong")
	}
	if optionalCost(0) != -1 || optionalCost(0.2) != 0.2 {
		t.Error("optionalCost mapping wrong")
	}
}

func TestStreamSpecs(t *testing.T) {
	if got := streamSpecs(nil); len(got) != len(telemetry.DefaultSpecs()) {
		t.Errorf("streamSpecs(nil) = %d specs, want defaults", len(got))
	}

	got := streamSpecs([]config.StreamConfig{
		{Name: "water", Primary: "level", Fields: []string{"turbidity"}, Capacity: 10},
	})
	if len(got) != 1 {
		t.Fatalf("streamSpecs() = %d specs, want 1", len(got))
	}
	if got[0].Schema.Name != "water" || got[0].Schema.Primary != "level" || got[0].Capacity != 10 {
		t.Errorf("spec = %+v", got[0])
	}
	if len(got[0].Schema.Fields) != 1 || got[0].Schema.Fields[0] != "turbidity" {
		t.Errorf("fields = %v", got[0].Schema.Fields)
	}
}

func TestCatalogEntries(t *testing.T) {
	if got := catalogEntries(nil); len(got) != len(device.DefaultCatalog()) {
		t.Errorf("catalogEntries(nil) = %d entries, want defaults", len(got))
	}

	freq := 433.9
	got := catalogEntries([]config.CatalogDeviceConfig{
		{ID: "t1", Name: "Tracker", Type: "wildlife_tracker", Frequency: &freq, Lat: 18.6, Lng: 73.9, Battery: 70},
	})
	if len(got) != 1 {
		t.Fatalf("catalogEntries() = %d entries, want 1", len(got))
	}
	e := got[0]
	if e.ID != "t1" || e.Type != device.DeviceTypeWildlifeTracker || e.Battery != 70 {
		t.Errorf("entry = %+v", e)
	}
	if e.Location.Lat != 18.6 || e.Location.Lng != 73.9 {
		t.Errorf("location = %+v", e.Location)
	}
	if e.Frequency == nil || *e.Frequency != 433.9 {
		t.Errorf("frequency = %v", e.Frequency)
	}
}

func TestGateways(t *testing.T) {
	if got := gateways(nil); len(got) != len(transport.DefaultGateways()) {
		t.Errorf("gateways(nil) = %d, want defaults", len(got))
	}

	got := gateways([]config.GatewayConfig{
		{ID: "gw-x", Name: "Ridge", Lat: 18.7, Lng: 73.7, RadiusKM: 12, Signal: -65},
	})
	if len(got) != 1 {
		t.Fatalf("gateways() = %d, want 1", len(got))
	}
	g := got[0]
	if g.ID != "gw-x" || g.RadiusKM != 12 || g.Signal != -65 || g.Location.Lat != 18.7 {
		t.Errorf("gateway = %+v", g)
	}
}
