// Package smartthings integrates the SmartThings cloud API.
//
// SmartThings models devices as components carrying capability sets; the
// main component's capabilities decide which variant of the device model
// a device normalizes into.
package smartthings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/mbegale/dwellio-core/internal/adapter"
	"github.com/mbegale/dwellio-core/internal/device"
	"github.com/mbegale/dwellio-core/internal/operr"
)

const (
	vendor         = "smartthings"
	defaultBaseURL = "https://api.smartthings.com/v1"
	requestTimeout = 15 * time.Second
)

// Client talks to the SmartThings REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	propertyID string

	mu    sync.RWMutex
	token string
}

// New creates a SmartThings client for devices of one property.
func New(propertyID string) *Client {
	return NewWithURL(propertyID, defaultBaseURL)
}

// NewWithURL creates a client against a specific base URL (used in tests).
func NewWithURL(propertyID, baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		propertyID: propertyID,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

// Vendor returns the manufacturer identifier.
func (c *Client) Vendor() string { return vendor }

// Initialize stores the bearer token after verifying it against the API.
func (c *Client) Initialize(ctx context.Context, authToken string) error {
	c.mu.Lock()
	c.token = authToken
	c.mu.Unlock()

	// A devices list with page size 1 is the cheapest authenticated call.
	req, err := c.newRequest(ctx, http.MethodGet, "/devices?max=1", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return adapter.WrapTransportError(vendor, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return operr.Vendor(vendor, operr.KindInvalidCredentials, "", nil)
	}
	if resp.StatusCode != http.StatusOK {
		return adapter.StatusError(vendor, resp.StatusCode)
	}
	return nil
}

// stDevice is the SmartThings device list item.
type stDevice struct {
	DeviceID   string `json:"deviceId"`
	Label      string `json:"label"`
	Name       string `json:"name"`
	RoomID     string `json:"roomId"`
	Components []struct {
		ID           string `json:"id"`
		Capabilities []struct {
			ID string `json:"id"`
		} `json:"capabilities"`
	} `json:"components"`
}

// stStatus is the SmartThings device status document: component →
// capability → attribute → {value}.
type stStatus struct {
	Components map[string]map[string]map[string]struct {
		Value any `json:"value"`
	} `json:"components"`
}

// FetchDevices lists and normalizes all devices.
func (c *Client) FetchDevices(ctx context.Context) ([]device.Device, error) {
	var page struct {
		Items []stDevice `json:"items"`
	}
	if err := c.get(ctx, "/devices", &page); err != nil {
		return nil, err
	}

	devices := make([]device.Device, 0, len(page.Items))
	for _, item := range page.Items {
		d, err := c.normalize(ctx, item)
		if err != nil {
			return nil, err
		}
		devices = append(devices, *d)
	}
	return devices, nil
}

// GetState returns the current state of one device.
func (c *Client) GetState(ctx context.Context, deviceID string) (*device.Device, error) {
	var item stDevice
	if err := c.get(ctx, "/devices/"+deviceID, &item); err != nil {
		return nil, err
	}
	return c.normalize(ctx, item)
}

// commandMap translates canonical command verbs into SmartThings
// capability commands.
var commandMap = map[string]struct {
	capability string
	command    string
}{
	"turnOn":         {"switch", "on"},
	"turnOff":        {"switch", "off"},
	"setBrightness":  {"switchLevel", "setLevel"},
	"lock":           {"lock", "lock"},
	"unlock":         {"lock", "unlock"},
	"setTemperature": {"thermostatHeatingSetpoint", "setHeatingSetpoint"},
	"setMode":        {"thermostatMode", "setThermostatMode"},
}

// ExecuteCommand performs the command and returns the refreshed device.
func (c *Client) ExecuteCommand(ctx context.Context, deviceID string, cmd device.Command) (*device.Device, error) {
	mapping, ok := commandMap[cmd.Name]
	if !ok {
		return nil, operr.Vendor(vendor, operr.KindUnsupportedCommand, cmd.Name, nil)
	}

	var args []any
	switch cmd.Name {
	case "setBrightness":
		args = append(args, cmd.Parameters["brightness"])
	case "setTemperature":
		args = append(args, cmd.Parameters["target"])
	case "setMode":
		args = append(args, cmd.Parameters["mode"])
	}

	body, err := json.Marshal(map[string]any{
		"commands": []map[string]any{{
			"component":  "main",
			"capability": mapping.capability,
			"command":    mapping.command,
			"arguments":  args,
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("encoding command: %w", err)
	}

	if err := c.post(ctx, "/devices/"+deviceID+"/commands", body); err != nil {
		return nil, err
	}

	return c.GetState(ctx, deviceID)
}

// normalize converts a SmartThings device plus its live status into the
// device model.
func (c *Client) normalize(ctx context.Context, item stDevice) (*device.Device, error) {
	var status stStatus
	if err := c.get(ctx, "/devices/"+item.DeviceID+"/status", &status); err != nil {
		return nil, err
	}

	caps := map[string]bool{}
	for _, comp := range item.Components {
		for _, cc := range comp.Capabilities {
			caps[cc.ID] = true
		}
	}

	name := item.Label
	if name == "" {
		name = item.Name
	}

	d := &device.Device{
		ID:           item.DeviceID,
		Name:         name,
		Manufacturer: vendor,
		PropertyID:   c.propertyID,
		Online:       device.StatusOnline,
	}
	if item.RoomID != "" {
		roomID := item.RoomID
		d.RoomID = &roomID
	}

	main := status.Components["main"]

	switch {
	case caps["lock"]:
		d.CapabilityType = device.CapabilityLock
		d.Capabilities = []string{"lock", "unlock"}
		d.Lock = &device.LockInfo{State: lockStateFrom(attrString(main, "lock", "lock"))}
		if battery, ok := attrFloat(main, "battery", "battery"); ok {
			d.Lock.BatteryLevel = int(battery)
		}

	case caps["switchLevel"]:
		d.CapabilityType = device.CapabilityLight
		d.Capabilities = []string{"turnOn", "turnOff", "setBrightness"}
		level, _ := attrFloat(main, "switchLevel", "level")
		d.Light = &device.LightInfo{
			On:         attrString(main, "switch", "switch") == "on",
			Brightness: int(level),
		}

	case caps["thermostatMode"]:
		d.CapabilityType = device.CapabilityThermostat
		d.Capabilities = []string{"setTemperature", "setMode"}
		current, _ := attrFloat(main, "temperatureMeasurement", "temperature")
		target, _ := attrFloat(main, "thermostatHeatingSetpoint", "heatingSetpoint")
		d.Thermostat = &device.ThermostatInfo{
			CurrentTemperature: current,
			TargetTemperature:  target,
			Mode:               thermostatModeFrom(attrString(main, "thermostatMode", "thermostatMode")),
			IsHeating:          attrString(main, "thermostatOperatingState", "thermostatOperatingState") == "heating",
			IsCooling:          attrString(main, "thermostatOperatingState", "thermostatOperatingState") == "cooling",
		}

	case caps["switch"]:
		d.CapabilityType = device.CapabilitySwitch
		d.Capabilities = []string{"turnOn", "turnOff"}
		d.Switch = &device.SwitchInfo{On: attrString(main, "switch", "switch") == "on"}

	default:
		d.CapabilityType = device.CapabilityGeneric
	}

	return d, nil
}

func attrString(comp map[string]map[string]struct {
	Value any `json:"value"`
}, capability, attribute string) string {
	if v, ok := comp[capability][attribute]; ok {
		if s, ok := v.Value.(string); ok {
			return s
		}
	}
	return ""
}

func attrFloat(comp map[string]map[string]struct {
	Value any `json:"value"`
}, capability, attribute string) (float64, bool) {
	if v, ok := comp[capability][attribute]; ok {
		if f, ok := v.Value.(float64); ok {
			return f, true
		}
	}
	return 0, false
}

func lockStateFrom(s string) device.LockState {
	switch s {
	case "locked":
		return device.LockStateLocked
	case "unlocked":
		return device.LockStateUnlocked
	case "jammed":
		return device.LockStateJammed
	default:
		return device.LockStateUnknown
	}
}

func thermostatModeFrom(s string) device.ThermostatMode {
	switch s {
	case "heat":
		return device.ModeHeat
	case "cool":
		return device.ModeCool
	case "auto":
		return device.ModeAuto
	case "eco":
		return device.ModeEco
	default:
		return device.ModeOff
	}
}

// get performs an authenticated GET and decodes the JSON response.
func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return adapter.WrapTransportError(vendor, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return adapter.StatusError(vendor, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return operr.Vendor(vendor, operr.KindInvalidResponse, "", err)
	}
	return nil
}

// post performs an authenticated POST, discarding the response body.
func (c *Client) post(ctx context.Context, path string, body []byte) error {
	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return adapter.WrapTransportError(vendor, err)
	}
	defer resp.Body.Close()
	//nolint:errcheck // drain for connection reuse
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return adapter.StatusError(vendor, resp.StatusCode)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	req.Header.Set("Authorization", "Bearer "+token)

	return req, nil
}
