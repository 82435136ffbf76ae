// Package statesync keeps device state current and fans updates out to
// subscribers.
//
// All state changes, whether from command execution, webhook events or
// the periodic poll, funnel through Apply. Each tracked device carries
// its own subscriber list; a notification for one device never touches
// another device's subscribers.
package statesync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mbegale/dwellio-core/internal/adapter"
	"github.com/mbegale/dwellio-core/internal/device"
)

const defaultPollInterval = 30 * time.Second

// subscriberBuffer is the per-subscriber channel depth. A subscriber
// that falls this far behind loses updates rather than blocking the
// fan-out.
const subscriberBuffer = 16

// Store is the registry surface the engine needs.
type Store interface {
	GetDevice(ctx context.Context, id string) (*device.Device, error)
	UpdateDevice(ctx context.Context, d *device.Device) error
}

// Telemetry receives every applied state for time-series recording.
type Telemetry interface {
	WriteDeviceState(d *device.Device)
}

// Publisher pushes applied state to external transports.
type Publisher interface {
	PublishState(d *device.Device) error
}

// Logger is the minimal logging interface the engine needs.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Subscription delivers state updates for a single device. Updates is
// closed when the subscription is cancelled or the device untracked.
type Subscription struct {
	Updates <-chan *device.Device

	engine   *Engine
	deviceID string
	id       int
}

// Cancel removes the subscription. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.engine.unsubscribe(s.deviceID, s.id)
}

// entry is the tracked per-device record.
type entry struct {
	subscribers map[int]chan *device.Device
}

// Engine synchronises device state between vendors, the registry and
// subscribers.
type Engine struct {
	store     Store
	adapters  *adapter.Registry
	telemetry Telemetry
	publisher Publisher
	log       Logger

	interval time.Duration

	mu      sync.RWMutex
	entries map[string]*entry
	nextID  int
}

// Option configures an Engine.
type Option func(*Engine)

// WithPollInterval sets the background refresh cadence.
func WithPollInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.interval = d
		}
	}
}

// WithTelemetry attaches a time-series sink.
func WithTelemetry(t Telemetry) Option {
	return func(e *Engine) { e.telemetry = t }
}

// WithPublisher attaches a state transport.
func WithPublisher(p Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithLogger sets the engine's logger.
func WithLogger(log Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// NewEngine creates an engine over the given registry store and vendor
// adapters.
func NewEngine(store Store, adapters *adapter.Registry, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		adapters: adapters,
		log:      noopLogger{},
		interval: defaultPollInterval,
		entries:  map[string]*entry{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Track registers a device for polling and subscriptions. Tracking an
// already tracked device is a no-op.
func (e *Engine) Track(deviceID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.entries[deviceID]; !ok {
		e.entries[deviceID] = &entry{subscribers: map[int]chan *device.Device{}}
	}
}

// Untrack removes a device, closing all of its subscriptions.
func (e *Engine) Untrack(deviceID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.entries[deviceID]
	if !ok {
		return
	}
	for _, ch := range ent.subscribers {
		close(ch)
	}
	delete(e.entries, deviceID)
}

// Tracked returns the IDs of all tracked devices.
func (e *Engine) Tracked() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(e.entries))
	for id := range e.entries {
		ids = append(ids, id)
	}
	return ids
}

// Subscribe attaches a listener to one device's updates. The device is
// tracked implicitly if it was not already.
func (e *Engine) Subscribe(deviceID string) *Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()

	ent, ok := e.entries[deviceID]
	if !ok {
		ent = &entry{subscribers: map[int]chan *device.Device{}}
		e.entries[deviceID] = ent
	}

	e.nextID++
	ch := make(chan *device.Device, subscriberBuffer)
	ent.subscribers[e.nextID] = ch

	return &Subscription{
		Updates:  ch,
		engine:   e,
		deviceID: deviceID,
		id:       e.nextID,
	}
}

func (e *Engine) unsubscribe(deviceID string, id int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.entries[deviceID]
	if !ok {
		return
	}
	if ch, ok := ent.subscribers[id]; ok {
		close(ch)
		delete(ent.subscribers, id)
	}
}

// Apply persists a device state and notifies that device's subscribers,
// telemetry and transports. It is the single entry point for state
// changes.
func (e *Engine) Apply(d *device.Device) error {
	if err := e.store.UpdateDevice(context.Background(), d); err != nil {
		return fmt.Errorf("persisting state for %s: %w", d.ID, err)
	}

	e.notify(d)
	return nil
}

func (e *Engine) notify(d *device.Device) {
	e.mu.RLock()
	ent := e.entries[d.ID]
	var channels []chan *device.Device
	if ent != nil {
		channels = make([]chan *device.Device, 0, len(ent.subscribers))
		for _, ch := range ent.subscribers {
			channels = append(channels, ch)
		}
	}
	e.mu.RUnlock()

	for _, ch := range channels {
		select {
		case ch <- d.DeepCopy():
		default:
			e.log.Warn("dropping state update for slow subscriber", "device_id", d.ID)
		}
	}

	if e.telemetry != nil {
		e.telemetry.WriteDeviceState(d)
	}
	if e.publisher != nil {
		if err := e.publisher.PublishState(d); err != nil {
			e.log.Warn("publishing state update", "device_id", d.ID, "error", err)
		}
	}
}

// Run polls tracked devices until the context is cancelled. One
// device's failure never stops the sweep.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.pollAll(ctx)
		}
	}
}

func (e *Engine) pollAll(ctx context.Context) {
	for _, id := range e.Tracked() {
		if ctx.Err() != nil {
			return
		}
		if err := e.pollOne(ctx, id); err != nil {
			e.log.Warn("state poll failed", "device_id", id, "error", err)
		}
	}
}

// pollOne refreshes one device from its vendor. A vendor that cannot be
// reached marks the device offline instead of leaving stale state
// claiming it is live.
func (e *Engine) pollOne(ctx context.Context, deviceID string) error {
	known, err := e.store.GetDevice(ctx, deviceID)
	if err != nil {
		return err
	}

	vendorAdapter, err := e.adapters.ForManufacturer(known.Manufacturer)
	if err != nil {
		return err
	}

	fresh, err := vendorAdapter.GetState(ctx, deviceID)
	if err != nil {
		if known.Online != device.StatusOffline {
			known.Online = device.StatusOffline
			if applyErr := e.Apply(known); applyErr != nil {
				return applyErr
			}
		}
		return err
	}

	e.mergeInto(known, fresh)
	return e.Apply(known)
}

// mergeInto folds vendor state into the registry's view, keeping
// registry-owned fields.
func (e *Engine) mergeInto(known, fresh *device.Device) {
	now := time.Now().UTC()
	known.Online = fresh.Online
	known.LastSeen = &now

	switch known.CapabilityType {
	case device.CapabilityLock:
		if fresh.Lock != nil && known.Lock != nil {
			known.Lock.State = fresh.Lock.State
			known.Lock.BatteryLevel = fresh.Lock.BatteryLevel
		}
	case device.CapabilityLight:
		if fresh.Light != nil {
			light := *fresh.Light
			if fresh.Light.Color != nil {
				color := *fresh.Light.Color
				light.Color = &color
			}
			known.Light = &light
		}
	case device.CapabilityThermostat:
		if fresh.Thermostat != nil {
			info := *fresh.Thermostat
			known.Thermostat = &info
		}
	case device.CapabilitySwitch:
		if fresh.Switch != nil {
			sw := *fresh.Switch
			known.Switch = &sw
		}
	}
}

// ApplyAttributes updates a subset of a device's attributes, used by
// webhook deltas. Unknown devices return the store's not found error.
func (e *Engine) ApplyAttributes(ctx context.Context, deviceID string, attrs map[string]any) (*device.Device, error) {
	known, err := e.store.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	if known.Attributes == nil {
		known.Attributes = map[string]any{}
	}
	for k, v := range attrs {
		known.Attributes[k] = v
	}
	applyPayloadAttributes(known, attrs)

	now := time.Now().UTC()
	known.LastSeen = &now

	if err := e.Apply(known); err != nil {
		return nil, err
	}
	return known, nil
}

// SetOnline records a device's connectivity without touching its
// payload state.
func (e *Engine) SetOnline(ctx context.Context, deviceID string, status device.OnlineStatus) (*device.Device, error) {
	known, err := e.store.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	known.Online = status
	now := time.Now().UTC()
	known.LastSeen = &now

	if err := e.Apply(known); err != nil {
		return nil, err
	}
	return known, nil
}

// applyPayloadAttributes maps well known attribute keys onto the typed
// payload so event deltas and polled state stay consistent.
func applyPayloadAttributes(d *device.Device, attrs map[string]any) {
	switch d.CapabilityType {
	case device.CapabilityLock:
		if d.Lock == nil {
			return
		}
		if v, ok := attrs["lockState"].(string); ok {
			d.Lock.State = device.LockState(v)
		}
		if v, ok := numeric(attrs["batteryLevel"]); ok {
			d.Lock.BatteryLevel = int(v)
		}
	case device.CapabilityLight:
		if d.Light == nil {
			return
		}
		if v, ok := attrs["on"].(bool); ok {
			d.Light.On = v
		}
		if v, ok := numeric(attrs["brightness"]); ok {
			d.Light.Brightness = int(v)
		}
	case device.CapabilityThermostat:
		if d.Thermostat == nil {
			return
		}
		if v, ok := numeric(attrs["currentTemperature"]); ok {
			d.Thermostat.CurrentTemperature = v
		}
		if v, ok := numeric(attrs["targetTemperature"]); ok {
			d.Thermostat.TargetTemperature = v
		}
		if v, ok := attrs["mode"].(string); ok {
			d.Thermostat.Mode = device.ThermostatMode(v)
		}
	case device.CapabilitySwitch:
		if d.Switch == nil {
			return
		}
		if v, ok := attrs["on"].(bool); ok {
			d.Switch.On = v
		}
	}
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
