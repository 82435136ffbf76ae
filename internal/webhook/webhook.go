// Package webhook processes push events from vendor clouds.
//
// Vendors redeliver events, so every event carries an ID and the
// handler drops IDs it has already seen before touching any state.
// Every delivery is audited whether it changed anything or not.
package webhook

import (
	"context"
	"strings"
	"time"

	"github.com/mbegale/dwellio-core/internal/adapter"
	"github.com/mbegale/dwellio-core/internal/audit"
	"github.com/mbegale/dwellio-core/internal/device"
	"github.com/mbegale/dwellio-core/internal/operr"
)

// Event types on the wire.
const (
	TypeDeviceEvent     = "DEVICE_EVENT"
	TypeDeviceHealth    = "DEVICE_HEALTH"
	TypeDeviceLifecycle = "DEVICE_LIFECYCLE"
)

// Lifecycle values carried by DEVICE_LIFECYCLE events.
const (
	LifecycleAdded   = "ADDED"
	LifecycleRemoved = "REMOVED"
)

// Event is a normalised vendor push notification.
type Event struct {
	EventID   string         `json:"eventId"`
	EventType string         `json:"eventType"`
	DeviceID  string         `json:"deviceId"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// Syncer is the state surface the handler drives.
type Syncer interface {
	ApplyAttributes(ctx context.Context, deviceID string, attrs map[string]any) (*device.Device, error)
	SetOnline(ctx context.Context, deviceID string, status device.OnlineStatus) (*device.Device, error)
	Track(deviceID string)
	Untrack(deviceID string)
}

// Devices is the registry surface the handler needs for lifecycle
// events.
type Devices interface {
	CreateDevice(ctx context.Context, d *device.Device) error
	DeleteDevice(ctx context.Context, id string) error
}

// Logger is the minimal logging interface the handler needs.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Handler routes vendor events into state changes.
type Handler struct {
	syncer   Syncer
	devices  Devices
	adapters *adapter.Registry
	audit    *audit.Logger
	seen     *dedupRing
	log      Logger
}

// NewHandler creates a webhook handler. historySize bounds the
// duplicate detection window; zero selects the default.
func NewHandler(syncer Syncer, devices Devices, adapters *adapter.Registry, auditLog *audit.Logger, historySize int) *Handler {
	return &Handler{
		syncer:   syncer,
		devices:  devices,
		adapters: adapters,
		audit:    auditLog,
		seen:     newDedupRing(historySize),
		log:      noopLogger{},
	}
}

// SetLogger replaces the handler's logger.
func (h *Handler) SetLogger(log Logger) {
	if log != nil {
		h.log = log
	}
}

// Handle processes one event from the named vendor. Duplicate events
// return nil without side effects beyond the audit entry.
func (h *Handler) Handle(ctx context.Context, vendor string, ev Event) error {
	if ev.EventID == "" || ev.DeviceID == "" {
		h.auditEvent(ctx, vendor, ev, audit.StatusFailure, "malformed")
		return operr.Vendor(vendor, operr.KindInvalidResponse, "event missing id fields", nil)
	}

	if !h.seen.add(ev.EventID) {
		h.log.Debug("duplicate event dropped", "vendor", vendor, "event_id", ev.EventID)
		h.auditEvent(ctx, vendor, ev, audit.StatusSuccess, "duplicate")
		return nil
	}

	var err error
	switch ev.EventType {
	case TypeDeviceEvent:
		err = h.handleDeviceEvent(ctx, ev)
	case TypeDeviceHealth:
		err = h.handleHealth(ctx, ev)
	case TypeDeviceLifecycle:
		err = h.handleLifecycle(ctx, vendor, ev)
	default:
		h.log.Warn("unknown event type", "vendor", vendor, "event_type", ev.EventType)
		h.auditEvent(ctx, vendor, ev, audit.StatusSuccess, "ignored")
		return nil
	}

	if err != nil {
		h.auditEvent(ctx, vendor, ev, audit.StatusFailure, string(operr.KindOf(err)))
		return err
	}
	h.auditEvent(ctx, vendor, ev, audit.StatusSuccess, "")
	return nil
}

func (h *Handler) handleDeviceEvent(ctx context.Context, ev Event) error {
	_, err := h.syncer.ApplyAttributes(ctx, ev.DeviceID, ev.Data)
	return err
}

func (h *Handler) handleHealth(ctx context.Context, ev Event) error {
	status, _ := ev.Data["status"].(string)
	online := device.OnlineStatus(strings.ToLower(status))
	switch online {
	case device.StatusOnline, device.StatusOffline, device.StatusError:
	default:
		return operr.E(operr.KindInvalidResponse, "unknown health status "+status, nil)
	}
	_, err := h.syncer.SetOnline(ctx, ev.DeviceID, online)
	return err
}

func (h *Handler) handleLifecycle(ctx context.Context, vendor string, ev Event) error {
	lifecycle, _ := ev.Data["lifecycle"].(string)
	switch lifecycle {
	case LifecycleAdded:
		vendorAdapter, err := h.adapters.ForManufacturer(vendor)
		if err != nil {
			return err
		}
		d, err := vendorAdapter.GetState(ctx, ev.DeviceID)
		if err != nil {
			return err
		}
		if err := h.devices.CreateDevice(ctx, d); err != nil {
			return err
		}
		h.syncer.Track(d.ID)
		return nil

	case LifecycleRemoved:
		h.syncer.Untrack(ev.DeviceID)
		return h.devices.DeleteDevice(ctx, ev.DeviceID)

	default:
		// Vendors add lifecycle values over time; unknown ones are
		// acknowledged without action.
		h.log.Debug("unknown lifecycle value", "vendor", vendor, "lifecycle", lifecycle)
		return nil
	}
}

func (h *Handler) auditEvent(ctx context.Context, vendor string, ev Event, status audit.Status, note string) {
	details := map[string]any{
		"vendor":    vendor,
		"eventId":   ev.EventID,
		"eventType": ev.EventType,
		"deviceId":  ev.DeviceID,
	}
	if note != "" {
		details["note"] = note
	}
	h.audit.Log(ctx, audit.CategoryDeviceEvent, audit.ActionWebhookReceived, status, "", details)
}
