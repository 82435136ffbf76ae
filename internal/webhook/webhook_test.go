package webhook

import (
	"context"
	"testing"
	"time"

	"github.com/mbegale/dwellio-core/internal/adapter"
	"github.com/mbegale/dwellio-core/internal/audit"
	"github.com/mbegale/dwellio-core/internal/device"
	"github.com/mbegale/dwellio-core/internal/operr"
)

type fakeSyncer struct {
	attrCalls   []map[string]any
	onlineCalls []device.OnlineStatus
	tracked     []string
	untracked   []string
	err         error
}

func (f *fakeSyncer) ApplyAttributes(_ context.Context, _ string, attrs map[string]any) (*device.Device, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.attrCalls = append(f.attrCalls, attrs)
	return &device.Device{}, nil
}

func (f *fakeSyncer) SetOnline(_ context.Context, _ string, status device.OnlineStatus) (*device.Device, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.onlineCalls = append(f.onlineCalls, status)
	return &device.Device{}, nil
}

func (f *fakeSyncer) Track(id string)   { f.tracked = append(f.tracked, id) }
func (f *fakeSyncer) Untrack(id string) { f.untracked = append(f.untracked, id) }

type fakeDevices struct {
	created []*device.Device
	deleted []string
}

func (f *fakeDevices) CreateDevice(_ context.Context, d *device.Device) error {
	f.created = append(f.created, d)
	return nil
}

func (f *fakeDevices) DeleteDevice(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeVendor struct {
	vendor string
	state  *device.Device
}

func (f *fakeVendor) Vendor() string                           { return f.vendor }
func (f *fakeVendor) Initialize(context.Context, string) error { return nil }
func (f *fakeVendor) FetchDevices(context.Context) ([]device.Device, error) {
	return nil, nil
}
func (f *fakeVendor) GetState(context.Context, string) (*device.Device, error) {
	return f.state, nil
}
func (f *fakeVendor) ExecuteCommand(context.Context, string, device.Command) (*device.Device, error) {
	return nil, nil
}

type harness struct {
	handler *Handler
	syncer  *fakeSyncer
	devices *fakeDevices
	store   *audit.MemoryStore
}

func newHarness(t *testing.T, vendors ...adapter.Adapter) *harness {
	t.Helper()
	h := &harness{
		syncer:  &fakeSyncer{},
		devices: &fakeDevices{},
		store:   audit.NewMemoryStore(),
	}
	h.handler = NewHandler(h.syncer, h.devices, adapter.NewRegistry(vendors...), audit.NewLogger(h.store), 8)
	return h
}

func event(id, eventType, deviceID string, data map[string]any) Event {
	return Event{
		EventID:   id,
		EventType: eventType,
		DeviceID:  deviceID,
		Timestamp: time.Now(),
		Data:      data,
	}
}

func TestDeviceEventAppliesAttributes(t *testing.T) {
	h := newHarness(t)

	ev := event("ev-1", TypeDeviceEvent, "light-1", map[string]any{"on": true})
	if err := h.handler.Handle(context.Background(), "hue", ev); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if len(h.syncer.attrCalls) != 1 {
		t.Fatalf("attribute calls = %d, want 1", len(h.syncer.attrCalls))
	}
	if h.syncer.attrCalls[0]["on"] != true {
		t.Errorf("attrs = %v", h.syncer.attrCalls[0])
	}
	if h.store.Len() != 1 {
		t.Errorf("audit entries = %d, want 1", h.store.Len())
	}
}

func TestDuplicateEventIsDroppedButAudited(t *testing.T) {
	h := newHarness(t)

	ev := event("ev-1", TypeDeviceEvent, "light-1", map[string]any{"on": true})
	for i := 0; i < 3; i++ {
		if err := h.handler.Handle(context.Background(), "hue", ev); err != nil {
			t.Fatalf("Handle %d: %v", i, err)
		}
	}

	if len(h.syncer.attrCalls) != 1 {
		t.Errorf("attribute calls = %d, want 1", len(h.syncer.attrCalls))
	}
	if h.store.Len() != 3 {
		t.Errorf("audit entries = %d, want 3", h.store.Len())
	}
}

func TestDedupWindowIsBounded(t *testing.T) {
	h := newHarness(t)

	// Ring size is 8; pushing 8 newer events must evict ev-0.
	for i := 0; i < 9; i++ {
		ev := event("ev-"+string(rune('0'+i)), TypeDeviceEvent, "light-1", map[string]any{"on": true})
		if err := h.handler.Handle(context.Background(), "hue", ev); err != nil {
			t.Fatalf("Handle: %v", err)
		}
	}

	ev := event("ev-0", TypeDeviceEvent, "light-1", map[string]any{"on": false})
	if err := h.handler.Handle(context.Background(), "hue", ev); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(h.syncer.attrCalls) != 10 {
		t.Errorf("attribute calls = %d, want 10 (evicted id reprocessed)", len(h.syncer.attrCalls))
	}
}

func TestHealthEventSetsOnlineStatus(t *testing.T) {
	h := newHarness(t)

	ev := event("ev-1", TypeDeviceHealth, "lock-1", map[string]any{"status": "OFFLINE"})
	if err := h.handler.Handle(context.Background(), "august", ev); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if len(h.syncer.onlineCalls) != 1 || h.syncer.onlineCalls[0] != device.StatusOffline {
		t.Errorf("online calls = %v, want [offline]", h.syncer.onlineCalls)
	}
}

func TestHealthEventRejectsUnknownStatus(t *testing.T) {
	h := newHarness(t)

	ev := event("ev-1", TypeDeviceHealth, "lock-1", map[string]any{"status": "SLEEPY"})
	err := h.handler.Handle(context.Background(), "august", ev)
	if !operr.Is(err, operr.KindInvalidResponse) {
		t.Errorf("error kind = %v, want invalid response", operr.KindOf(err))
	}
	if h.store.Len() != 1 {
		t.Errorf("audit entries = %d, want 1", h.store.Len())
	}
}

func TestLifecycleAddedRegistersDevice(t *testing.T) {
	newDevice := &device.Device{
		ID:             "st-lock-9",
		Name:           "New Lock",
		Manufacturer:   "smartthings",
		CapabilityType: device.CapabilityLock,
		Capabilities:   []string{"lock", "unlock"},
		Lock:           &device.LockInfo{State: device.LockStateLocked},
	}
	h := newHarness(t, &fakeVendor{vendor: "smartthings", state: newDevice})

	ev := event("ev-1", TypeDeviceLifecycle, "st-lock-9", map[string]any{"lifecycle": LifecycleAdded})
	if err := h.handler.Handle(context.Background(), "smartthings", ev); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if len(h.devices.created) != 1 || h.devices.created[0].ID != "st-lock-9" {
		t.Fatalf("created = %v, want st-lock-9", h.devices.created)
	}
	if len(h.syncer.tracked) != 1 || h.syncer.tracked[0] != "st-lock-9" {
		t.Errorf("tracked = %v, want [st-lock-9]", h.syncer.tracked)
	}
}

func TestLifecycleRemovedDeregistersDevice(t *testing.T) {
	h := newHarness(t)

	ev := event("ev-1", TypeDeviceLifecycle, "lock-1", map[string]any{"lifecycle": LifecycleRemoved})
	if err := h.handler.Handle(context.Background(), "august", ev); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if len(h.devices.deleted) != 1 || h.devices.deleted[0] != "lock-1" {
		t.Errorf("deleted = %v, want [lock-1]", h.devices.deleted)
	}
	if len(h.syncer.untracked) != 1 {
		t.Errorf("untracked = %v, want [lock-1]", h.syncer.untracked)
	}
}

func TestLifecycleUnknownValueIsNoOp(t *testing.T) {
	h := newHarness(t)

	ev := event("ev-1", TypeDeviceLifecycle, "lock-1", map[string]any{"lifecycle": "SUSPENDED"})
	if err := h.handler.Handle(context.Background(), "august", ev); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if len(h.devices.created) != 0 || len(h.devices.deleted) != 0 {
		t.Error("unknown lifecycle changed registry state")
	}
	if h.store.Len() != 1 {
		t.Errorf("audit entries = %d, want 1", h.store.Len())
	}
}

func TestMalformedEventRejected(t *testing.T) {
	h := newHarness(t)

	err := h.handler.Handle(context.Background(), "hue", Event{EventType: TypeDeviceEvent})
	if !operr.Is(err, operr.KindInvalidResponse) {
		t.Errorf("error kind = %v, want invalid response", operr.KindOf(err))
	}
	if h.store.Len() != 1 {
		t.Errorf("audit entries = %d, want 1", h.store.Len())
	}
}

func TestUnknownEventTypeIgnored(t *testing.T) {
	h := newHarness(t)

	ev := event("ev-1", "FIRMWARE_UPDATE", "lock-1", nil)
	if err := h.handler.Handle(context.Background(), "august", ev); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if h.store.Len() != 1 {
		t.Errorf("audit entries = %d, want 1", h.store.Len())
	}
}
