// Package device provides the Device Registry for Fleet Telemetry Core.
//
// The Device Registry is the in-memory catalogue of every field device the
// service knows about: radio-network wildlife trackers, IoT relay nodes and
// the soil and climate sensors that feed the telemetry streams. It owns the
// device attributes that change at runtime (distance, signal, battery,
// last-seen) and answers range and attribute filtered queries.
//
// # Architecture
//
//	┌───────────────────────────────────────────────────────────────┐
//	│                        Device Registry                        │
//	│                                                               │
//	│  ┌──────────────────┐   ┌──────────────────┐   ┌───────────┐  │
//	│  │     Registry     │   │    Repository    │   │  Catalog  │  │
//	│  │  (registry.go)   │──▶│ (repository.go)  │   │(catalog.go│  │
//	│  │                  │   │                  │   │           │  │
//	│  │ • List / Get     │   │ • SQLite devices │   │ • seeded  │  │
//	│  │ • Register       │   │ • registered     │   │   devices │  │
//	│  │ • Rescan / Touch │   │   devices only   │   │           │  │
//	│  └──────────────────┘   └──────────────────┘   └───────────┘  │
//	└───────────────────────────────────────────────────────────────┘
//
// # Lifecycle
//
// Devices come from two places. Load seeds the static catalog with status
// "active" and then merges devices registered in earlier runs. Register adds
// a new device with status "registered". Devices are never deleted.
//
// Distance and signal are derived from the registry origin using the
// planar model in package geo. Rescan recomputes them from a new origin.
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db)
//	registry := device.NewRegistry(repo, device.Options{
//	    Origin:  geo.Point{Lat: 18.5204, Lng: 73.8567},
//	    Catalog: device.DefaultCatalog(),
//	})
//	registry.SetLogger(log)
//
//	if err := registry.Load(ctx); err != nil {
//	    return err
//	}
//
//	nearby := registry.List(device.Filter{MaxDistance: ptr(5.0)})
//
// # Thread Safety
//
// The Registry is safe for concurrent use. Register, Rescan and Touch take
// the write lock; List, Get and Stats take the read lock and return copies.
package device
