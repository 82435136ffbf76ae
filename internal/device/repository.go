package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for device persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByID retrieves a device by its unique identifier.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// List retrieves all devices.
	List(ctx context.Context) ([]Device, error)

	// ListByProperty retrieves all devices belonging to a property.
	ListByProperty(ctx context.Context, propertyID string) ([]Device, error)

	// ListByManufacturer retrieves all devices from one vendor platform.
	ListByManufacturer(ctx context.Context, manufacturer string) ([]Device, error)

	// Create inserts a new device.
	// Returns ErrDeviceExists if a device with the same ID already exists.
	Create(ctx context.Context, d *Device) error

	// Update modifies an existing device. The capability type is immutable;
	// Returns ErrCapabilityTypeImmutable if the update attempts to change it.
	Update(ctx context.Context, d *Device) error

	// Delete removes a device by ID.
	// Returns ErrDeviceNotFound if the device does not exist.
	Delete(ctx context.Context, id string) error
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

const deviceColumns = `id, name, manufacturer, capability_type, property_id,
	unit_id, room_id, online_status, last_seen, capabilities, attributes,
	payload, created_at, updated_at`

// GetByID retrieves a device by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	row := r.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM devices WHERE id = ?", deviceColumns), id)

	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("getting device %s: %w", id, err)
	}
	return d, nil
}

// List retrieves all devices ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	return r.list(ctx,
		fmt.Sprintf("SELECT %s FROM devices ORDER BY name", deviceColumns))
}

// ListByProperty retrieves all devices belonging to a property.
func (r *SQLiteRepository) ListByProperty(ctx context.Context, propertyID string) ([]Device, error) {
	return r.list(ctx,
		fmt.Sprintf("SELECT %s FROM devices WHERE property_id = ? ORDER BY name", deviceColumns),
		propertyID)
}

// ListByManufacturer retrieves all devices from one vendor platform.
func (r *SQLiteRepository) ListByManufacturer(ctx context.Context, manufacturer string) ([]Device, error) {
	return r.list(ctx,
		fmt.Sprintf("SELECT %s FROM devices WHERE manufacturer = ? ORDER BY name", deviceColumns),
		manufacturer)
}

func (r *SQLiteRepository) list(ctx context.Context, query string, args ...any) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// Create inserts a new device.
func (r *SQLiteRepository) Create(ctx context.Context, d *Device) error {
	capsJSON, attrsJSON, payloadJSON, err := marshalDevice(d)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO devices (id, name, manufacturer, capability_type, property_id,
			unit_id, room_id, online_status, last_seen, capabilities, attributes,
			payload, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Name, d.Manufacturer, string(d.CapabilityType), d.PropertyID,
		d.UnitID, d.RoomID, string(d.Online), formatTimePtr(d.LastSeen),
		capsJSON, attrsJSON, payloadJSON,
		d.CreatedAt.UTC().Format(time.RFC3339), d.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("inserting device %s: %w", d.ID, err)
	}
	return nil
}

// Update modifies an existing device. The capability type is treated as
// immutable: the WHERE clause refuses to match a row whose tag differs.
func (r *SQLiteRepository) Update(ctx context.Context, d *Device) error {
	capsJSON, attrsJSON, payloadJSON, err := marshalDevice(d)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE devices SET name = ?, property_id = ?, unit_id = ?, room_id = ?,
			online_status = ?, last_seen = ?, capabilities = ?, attributes = ?,
			payload = ?, updated_at = ?
		 WHERE id = ? AND capability_type = ?`,
		d.Name, d.PropertyID, d.UnitID, d.RoomID,
		string(d.Online), formatTimePtr(d.LastSeen), capsJSON, attrsJSON,
		payloadJSON, time.Now().UTC().Format(time.RFC3339),
		d.ID, string(d.CapabilityType),
	)
	if err != nil {
		return fmt.Errorf("updating device %s: %w", d.ID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update of device %s: %w", d.ID, err)
	}
	if affected == 0 {
		// Either the device is gone or the caller tried to change its tag.
		if _, getErr := r.GetByID(ctx, d.ID); getErr == nil {
			return ErrCapabilityTypeImmutable
		}
		return ErrDeviceNotFound
	}
	return nil
}

// Delete removes a device by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM devices WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting device %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete of device %s: %w", id, err)
	}
	if affected == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// marshalDevice serialises the JSON columns. The variant payload is one
// generic routine keyed on the capability type tag.
func marshalDevice(d *Device) (caps, attrs, payload *string, err error) {
	if d.Capabilities != nil {
		b, err := json.Marshal(d.Capabilities)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("marshalling capabilities: %w", err)
		}
		s := string(b)
		caps = &s
	}
	if d.Attributes != nil {
		b, err := json.Marshal(d.Attributes)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("marshalling attributes: %w", err)
		}
		s := string(b)
		attrs = &s
	}
	if p := d.Payload(); p != nil {
		b, err := json.Marshal(p)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("marshalling payload: %w", err)
		}
		s := string(b)
		payload = &s
	}
	return caps, attrs, payload, nil
}

// scanner abstracts *sql.Row and *sql.Rows for scanDevice.
type scanner interface {
	Scan(dest ...any) error
}

// scanDevice reads one device row, decoding the JSON columns and routing
// the payload to the variant selected by the capability type tag.
func scanDevice(s scanner) (*Device, error) {
	var d Device
	var capType, online string
	var unitID, roomID, lastSeen, capsJSON, attrsJSON, payloadJSON sql.NullString
	var createdAt, updatedAt string

	if err := s.Scan(&d.ID, &d.Name, &d.Manufacturer, &capType, &d.PropertyID,
		&unitID, &roomID, &online, &lastSeen, &capsJSON, &attrsJSON,
		&payloadJSON, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	d.CapabilityType = CapabilityType(capType)
	d.Online = OnlineStatus(online)
	if unitID.Valid {
		d.UnitID = &unitID.String
	}
	if roomID.Valid {
		d.RoomID = &roomID.String
	}
	if lastSeen.Valid {
		if t, err := time.Parse(time.RFC3339, lastSeen.String); err == nil {
			d.LastSeen = &t
		}
	}

	if capsJSON.Valid && capsJSON.String != "" {
		if err := json.Unmarshal([]byte(capsJSON.String), &d.Capabilities); err != nil {
			return nil, fmt.Errorf("decoding capabilities: %w", err)
		}
	}
	if attrsJSON.Valid && attrsJSON.String != "" {
		if err := json.Unmarshal([]byte(attrsJSON.String), &d.Attributes); err != nil {
			return nil, fmt.Errorf("decoding attributes: %w", err)
		}
	}
	if payloadJSON.Valid && payloadJSON.String != "" {
		if err := unmarshalPayload(&d, []byte(payloadJSON.String)); err != nil {
			return nil, err
		}
	}

	var err error
	if d.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at %q: %w", createdAt, err)
	}
	if d.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at %q: %w", updatedAt, err)
	}

	return &d, nil
}

// unmarshalPayload decodes the payload column into the variant matching
// the device's tag.
func unmarshalPayload(d *Device, raw []byte) error {
	var target any
	switch d.CapabilityType {
	case CapabilityLock:
		d.Lock = &LockInfo{}
		target = d.Lock
	case CapabilityLight:
		d.Light = &LightInfo{}
		target = d.Light
	case CapabilityThermostat:
		d.Thermostat = &ThermostatInfo{}
		target = d.Thermostat
	case CapabilitySwitch:
		d.Switch = &SwitchInfo{}
		target = d.Switch
	default:
		return nil // generic devices carry no payload
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("decoding %s payload: %w", d.CapabilityType, err)
	}
	return nil
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// isUniqueViolation reports whether the error is a SQLite unique
// constraint failure.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY constraint failed")
}
