//go:build integration

package influxdb

import (
	"context"
	"testing"
	"time"

	"github.com/nerrad567/fleet-telemetry-core/internal/telemetry"
)

// Integration tests against a local InfluxDB 2.x at 127.0.0.1:8086 with
// org "fleet", bucket "telemetry" and token "fleet-dev-token".
//
// Run with:
//   go test -tags=integration ./internal/infrastructure/influxdb/...

func TestIntegration_WriteReading(t *testing.T) {
	client, err := Connect(testConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	var writeErr error
	client.SetOnError(func(err error) { writeErr = err })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.HealthCheck(ctx); err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}

	store, err := telemetry.NewStore(telemetry.Schema{
		Name:    "soil",
		Primary: "soil_moisture",
		Fields:  []string{"temperature"},
	}, telemetry.Options{})
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	store.Subscribe(client)

	if _, err := store.Ingest(telemetry.Sample{"device_id": "sm-int", "soil_moisture": 40.5, "temperature": 22}); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	client.Flush()
	time.Sleep(100 * time.Millisecond)

	if writeErr != nil {
		t.Errorf("async write error = %v", writeErr)
	}
}
