// Package nest integrates Nest thermostats through the Google Smart
// Device Management API.
//
// SDM exposes device state as a map of trait documents and accepts
// writes as named commands posted to the device resource. Device IDs on
// the wire are full resource names; only the trailing segment is kept
// as the device ID.
package nest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mbegale/dwellio-core/internal/adapter"
	"github.com/mbegale/dwellio-core/internal/device"
	"github.com/mbegale/dwellio-core/internal/operr"
)

const (
	vendor         = "nest"
	defaultBaseURL = "https://smartdevicemanagement.googleapis.com/v1"
	requestTimeout = 15 * time.Second

	thermostatType = "sdm.devices.types.THERMOSTAT"
)

// Client talks to the SDM REST API for one SDM project.
type Client struct {
	baseURL    string
	httpClient *http.Client
	projectID  string
	propertyID string

	mu    sync.RWMutex
	token string
}

// New creates a Nest client for devices of one property.
func New(propertyID, projectID string) *Client {
	return NewWithURL(propertyID, projectID, defaultBaseURL)
}

// NewWithURL creates a client against a specific base URL (used in tests).
func NewWithURL(propertyID, projectID, baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		projectID:  projectID,
		propertyID: propertyID,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

// Vendor returns the manufacturer identifier.
func (c *Client) Vendor() string { return vendor }

// Initialize stores the OAuth token after verifying it against the API.
func (c *Client) Initialize(ctx context.Context, authToken string) error {
	c.mu.Lock()
	c.token = authToken
	c.mu.Unlock()

	var page sdmDeviceList
	if err := c.get(ctx, c.devicesPath(), &page); err != nil {
		if operr.Is(err, operr.KindTokenExpired) || operr.Is(err, operr.KindInvalidCredentials) {
			return operr.Vendor(vendor, operr.KindInvalidCredentials, "", err)
		}
		return err
	}
	return nil
}

type sdmDevice struct {
	Name   string                     `json:"name"`
	Type   string                     `json:"type"`
	Traits map[string]json.RawMessage `json:"traits"`
}

type sdmDeviceList struct {
	Devices []sdmDevice `json:"devices"`
}

// FetchDevices lists all thermostats in the project.
func (c *Client) FetchDevices(ctx context.Context) ([]device.Device, error) {
	var page sdmDeviceList
	if err := c.get(ctx, c.devicesPath(), &page); err != nil {
		return nil, err
	}

	devices := make([]device.Device, 0, len(page.Devices))
	for _, sd := range page.Devices {
		if sd.Type != thermostatType {
			continue
		}
		devices = append(devices, *c.normalize(sd))
	}
	return devices, nil
}

// GetState returns the current state of one thermostat.
func (c *Client) GetState(ctx context.Context, deviceID string) (*device.Device, error) {
	var sd sdmDevice
	if err := c.get(ctx, c.devicesPath()+"/"+deviceID, &sd); err != nil {
		return nil, err
	}
	return c.normalize(sd), nil
}

// ExecuteCommand performs the command and returns the refreshed device.
func (c *Client) ExecuteCommand(ctx context.Context, deviceID string, cmd device.Command) (*device.Device, error) {
	var command string
	params := map[string]any{}

	switch cmd.Name {
	case "setTemperature":
		command = "sdm.devices.commands.ThermostatTemperatureSetpoint.SetHeat"
		params["heatCelsius"] = cmd.Parameters["target"]
	case "setMode":
		mode, _ := cmd.Parameters["mode"].(string)
		if mode == string(device.ModeEco) {
			command = "sdm.devices.commands.ThermostatEco.SetMode"
			params["mode"] = "MANUAL_ECO"
		} else {
			command = "sdm.devices.commands.ThermostatMode.SetMode"
			params["mode"] = sdmModeFrom(mode)
		}
	default:
		return nil, operr.Vendor(vendor, operr.KindUnsupportedCommand, cmd.Name, nil)
	}

	body, err := json.Marshal(map[string]any{
		"command": command,
		"params":  params,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding command: %w", err)
	}

	if err := c.post(ctx, c.devicesPath()+"/"+deviceID+":executeCommand", body); err != nil {
		return nil, err
	}
	return c.GetState(ctx, deviceID)
}

func (c *Client) normalize(sd sdmDevice) *device.Device {
	id := sd.Name
	if i := strings.LastIndexByte(id, '/'); i >= 0 {
		id = id[i+1:]
	}

	info := &device.ThermostatInfo{Mode: device.ModeOff}

	var temp struct {
		Ambient float64 `json:"ambientTemperatureCelsius"`
	}
	if unmarshalTrait(sd.Traits, "sdm.devices.traits.Temperature", &temp) {
		info.CurrentTemperature = temp.Ambient
	}

	var setpoint struct {
		Heat float64 `json:"heatCelsius"`
		Cool float64 `json:"coolCelsius"`
	}
	if unmarshalTrait(sd.Traits, "sdm.devices.traits.ThermostatTemperatureSetpoint", &setpoint) {
		if setpoint.Heat != 0 {
			info.TargetTemperature = setpoint.Heat
		} else {
			info.TargetTemperature = setpoint.Cool
		}
	}

	var mode struct {
		Mode string `json:"mode"`
	}
	if unmarshalTrait(sd.Traits, "sdm.devices.traits.ThermostatMode", &mode) {
		info.Mode = modeFrom(mode.Mode)
	}

	var eco struct {
		Mode string `json:"mode"`
	}
	if unmarshalTrait(sd.Traits, "sdm.devices.traits.ThermostatEco", &eco) && eco.Mode == "MANUAL_ECO" {
		info.Mode = device.ModeEco
	}

	var hvac struct {
		Status string `json:"status"`
	}
	if unmarshalTrait(sd.Traits, "sdm.devices.traits.ThermostatHvac", &hvac) {
		info.IsHeating = hvac.Status == "HEATING"
		info.IsCooling = hvac.Status == "COOLING"
	}

	var fan struct {
		TimerMode string `json:"timerMode"`
	}
	if unmarshalTrait(sd.Traits, "sdm.devices.traits.Fan", &fan) {
		info.IsFanRunning = fan.TimerMode == "ON"
	}

	online := device.StatusOnline
	var conn struct {
		Status string `json:"status"`
	}
	if unmarshalTrait(sd.Traits, "sdm.devices.traits.Connectivity", &conn) && conn.Status == "OFFLINE" {
		online = device.StatusOffline
	}

	name := id
	var label struct {
		Label string `json:"label"`
	}
	if unmarshalTrait(sd.Traits, "sdm.devices.traits.Info", &label) && label.Label != "" {
		name = label.Label
	}

	return &device.Device{
		ID:             id,
		Name:           name,
		Manufacturer:   vendor,
		CapabilityType: device.CapabilityThermostat,
		PropertyID:     c.propertyID,
		Online:         online,
		Capabilities:   []string{"setTemperature", "setMode"},
		Thermostat:     info,
	}
}

func unmarshalTrait(traits map[string]json.RawMessage, name string, out any) bool {
	raw, ok := traits[name]
	if !ok {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}

func modeFrom(s string) device.ThermostatMode {
	switch s {
	case "HEAT":
		return device.ModeHeat
	case "COOL":
		return device.ModeCool
	case "HEATCOOL":
		return device.ModeAuto
	default:
		return device.ModeOff
	}
}

func sdmModeFrom(mode string) string {
	switch device.ThermostatMode(mode) {
	case device.ModeHeat:
		return "HEAT"
	case device.ModeCool:
		return "COOL"
	case device.ModeAuto:
		return "HEATCOOL"
	default:
		return "OFF"
	}
}

func (c *Client) devicesPath() string {
	return "/enterprises/" + c.projectID + "/devices"
}

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

	if resp.StatusCode != http.StatusOK {
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
