// Fleet Telemetry Core - field device telemetry and fleet state service.
//
// This is the main entry point for the fleetd daemon. It wires:
//   - Telemetry streams with bounded history and freshness health
//   - The device registry, seeded from the configured catalog
//   - Proximity scans, analytics and command transport
//   - Optional MQTT ingest, InfluxDB export and SQLite persistence
//   - The REST and WebSocket API
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/fleet-telemetry-core/internal/api"
	"github.com/nerrad567/fleet-telemetry-core/internal/audit"
	"github.com/nerrad567/fleet-telemetry-core/internal/device"
	"github.com/nerrad567/fleet-telemetry-core/internal/geo"
	"github.com/nerrad567/fleet-telemetry-core/internal/infrastructure/config"
	"github.com/nerrad567/fleet-telemetry-core/internal/infrastructure/database"
	"github.com/nerrad567/fleet-telemetry-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/fleet-telemetry-core/internal/infrastructure/logging"
	"github.com/nerrad567/fleet-telemetry-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/fleet-telemetry-core/internal/ingest"
	"github.com/nerrad567/fleet-telemetry-core/internal/query"
	"github.com/nerrad567/fleet-telemetry-core/internal/telemetry"
	"github.com/nerrad567/fleet-telemetry-core/internal/transport"
	"github.com/nerrad567/fleet-telemetry-core/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo,funlen // linear startup sequence
	log := logging.Default()
	log.Info("starting fleetd",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := config.Path()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, cfg.Service.Name, version)
	defer log.Close() //nolint:errcheck // best-effort flush of the log file
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
		"output", cfg.Logging.Output,
	)

	// Persistence is optional; without it registrations and the audit
	// trail do not survive a restart.
	var (
		db         *database.DB
		deviceRepo device.Repository
		auditRepo  audit.Repository
	)
	if cfg.Database.Enabled {
		db, err = database.Open(cfg.Database)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		log.Info("database connected", "path", cfg.Database.Path)

		if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		log.Info("database migrations complete")

		deviceRepo = device.NewSQLiteRepository(db.DB)
		auditRepo = audit.NewSQLiteRepository(db.DB)
	} else {
		log.Info("database disabled, registrations are in-memory only")
	}

	registry := device.NewRegistry(deviceRepo, device.Options{
		Origin:  geo.Point{Lat: cfg.Fleet.Origin.Lat, Lng: cfg.Fleet.Origin.Lng},
		Catalog: catalogEntries(cfg.Fleet.Catalog),
	})
	registry.SetLogger(log)
	if loadErr := registry.Load(ctx); loadErr != nil {
		return fmt.Errorf("loading device registry: %w", loadErr)
	}
	log.Info("device registry initialised", "devices", registry.Stats().Total)

	streams, err := telemetry.NewStreams(streamSpecs(cfg.Telemetry.Streams), telemetry.Options{
		Capacity:     cfg.Telemetry.Capacity,
		DefaultLimit: cfg.Telemetry.DefaultLimit,
		StaleAfter:   cfg.GetStaleAfter(),
	})
	if err != nil {
		return fmt.Errorf("creating telemetry streams: %w", err)
	}
	streams.SetLogger(log)
	log.Info("telemetry streams initialised", "streams", streams.Names())

	engine := query.NewEngine(registry, streams, query.Options{
		ScanDelay:           optionalDelay(cfg.GetScanDelay()),
		DefaultRange:        cfg.Fleet.ScanRange,
		HistoryPoints:       cfg.Fleet.HistoryPoints,
		BatteryDecayPerHour: cfg.Fleet.BatteryDecayPerHour,
		SignalJitter:        optionalJitter(cfg.Fleet.SignalJitter),
	})

	link := transport.New(registry, transport.Options{
		CommandDelay: optionalDelay(cfg.GetCommandDelay()),
		BatteryCost:  optionalCost(cfg.Fleet.CommandBatteryCost),
		Gateways:     gateways(cfg.Fleet.Gateways),
	})
	link.SetLogger(log)
	if auditRepo != nil {
		link.SetRecorder(auditRepo)
	}

	// Connect to MQTT broker (optional)
	var (
		mqttClient *mqtt.Client
		bridge     *ingest.Bridge
	)
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		link.SetPublisher(mqttClient)

		bridge = ingest.NewBridge(mqttClient, streams, mqttClient.QoS())
		bridge.SetLogger(log)
		bridge.SetDevices(registry)
		if startErr := bridge.Start(); startErr != nil {
			return fmt.Errorf("starting ingest bridge: %w", startErr)
		}
		defer func() {
			if stopErr := bridge.Stop(); stopErr != nil {
				log.Warn("error stopping ingest bridge", "error", stopErr)
			}
		}()
		log.Info("ingest bridge started", "topic", mqtt.Topics{}.AllTelemetry())
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		streams.Subscribe(influxClient)
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	server, err := api.New(api.Deps{
		Config:    cfg.API,
		WS:        cfg.WebSocket,
		Logger:    log,
		Streams:   streams,
		Registry:  registry,
		Engine:    engine,
		Transport: link,
		AuditRepo: auditRepo,
		DB:        db,
		MQTT:      mqttClient,
		Ingest:    bridge,
		InfluxDB:  influxClient,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error stopping API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// healthCheck verifies all enabled infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check (may be nil if disabled)
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

// optionalDelay maps a configured delay onto engine and transport options,
// where zero selects the built-in default. A configured zero means no delay.
func optionalDelay(d time.Duration) time.Duration {
	if d <= 0 {
		return -1
	}
	return d
}

// optionalJitter is optionalDelay for the signal jitter bound.
func optionalJitter(j int) int {
	if j <= 0 {
		return -1
	}
	return j
}

// optionalCost is optionalDelay for the per-command battery cost.
func optionalCost(c float64) float64 {
	if c <= 0 {
		return -1
	}
	return c
}

// streamSpecs converts configured streams. Nil selects the defaults.
func streamSpecs(streams []config.StreamConfig) []telemetry.Spec {
	if len(streams) == 0 {
		return telemetry.DefaultSpecs()
	}
	specs := make([]telemetry.Spec, 0, len(streams))
	for _, sc := range streams {
		specs = append(specs, telemetry.Spec{
			Schema: telemetry.Schema{
				Name:    sc.Name,
				Primary: sc.Primary,
				Fields:  sc.Fields,
			},
			Capacity: sc.Capacity,
		})
	}
	return specs
}

// catalogEntries converts the configured catalog. Nil selects the
// built-in catalog.
func catalogEntries(devices []config.CatalogDeviceConfig) []device.CatalogEntry {
	if len(devices) == 0 {
		return device.DefaultCatalog()
	}
	entries := make([]device.CatalogEntry, 0, len(devices))
	for _, d := range devices {
		entries = append(entries, device.CatalogEntry{
			ID:        d.ID,
			Name:      d.Name,
			Type:      device.DeviceType(d.Type),
			Frequency: d.Frequency,
			Location:  geo.Point{Lat: d.Lat, Lng: d.Lng},
			Battery:   d.Battery,
		})
	}
	return entries
}

// gateways converts the configured topology. Nil selects the defaults.
func gateways(gws []config.GatewayConfig) []transport.Gateway {
	if len(gws) == 0 {
		return transport.DefaultGateways()
	}
	out := make([]transport.Gateway, 0, len(gws))
	for _, g := range gws {
		out = append(out, transport.Gateway{
			ID:       g.ID,
			Name:     g.Name,
			Location: geo.Point{Lat: g.Lat, Lng: g.Lng},
			RadiusKM: g.RadiusKM,
			Signal:   g.Signal,
		})
	}
	return out
}
