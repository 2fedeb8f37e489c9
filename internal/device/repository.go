package device

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for device persistence operations.
// Only registered devices are persisted; catalog devices are rebuilt from
// configuration on every start. Distance is not stored because it depends
// on the origin at load time.
type Repository interface {
	// List retrieves all persisted devices.
	List(ctx context.Context) ([]Device, error)

	// Create inserts a new device.
	// Returns ErrDeviceExists if a device with the same ID already exists.
	Create(ctx context.Context, device *Device) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// List retrieves all persisted devices ordered by ID.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	query := `
		SELECT id, name, type, frequency, lat, lng, signal, battery, status, last_seen, created_at
		FROM devices
		ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// Create inserts a new device.
func (r *SQLiteRepository) Create(ctx context.Context, device *Device) error {
	now := time.Now().UTC()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	if device.LastSeen.IsZero() {
		device.LastSeen = now
	}

	query := `
		INSERT INTO devices (
			id, name, type, frequency, lat, lng, signal, battery, status, last_seen, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		device.ID,
		device.Name,
		string(device.Type),
		nullableFloat(device.Frequency),
		device.Location.Lat,
		device.Location.Lng,
		device.Signal,
		device.Battery,
		string(device.Status),
		device.LastSeen.UTC().Format(time.RFC3339Nano),
		device.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("inserting device: %w", err)
	}
	return nil
}

func scanDevice(rows *sql.Rows) (*Device, error) {
	var (
		d         Device
		typ       string
		status    string
		frequency sql.NullFloat64
		lastSeen  string
		createdAt string
	)

	err := rows.Scan(
		&d.ID, &d.Name, &typ, &frequency,
		&d.Location.Lat, &d.Location.Lng,
		&d.Signal, &d.Battery, &status, &lastSeen, &createdAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning device: %w", err)
	}

	d.Type = DeviceType(typ)
	d.Status = Status(status)
	if frequency.Valid {
		f := frequency.Float64
		d.Frequency = &f
	}

	if d.LastSeen, err = time.Parse(time.RFC3339Nano, lastSeen); err != nil {
		return nil, fmt.Errorf("parsing last_seen for %s: %w", d.ID, err)
	}
	if d.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at for %s: %w", d.ID, err)
	}
	return &d, nil
}

// nullableFloat returns a sql.NullFloat64 for optional float pointers.
func nullableFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
