// Package hue integrates a Philips Hue bridge.
//
// The Hue local API addresses lights by numeric bridge ID and scales
// brightness 0-254, hue 0-65535 and saturation 0-254. Normalization
// converts those into the percentage and degree ranges the device model
// uses.
package hue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/mbegale/dwellio-core/internal/adapter"
	"github.com/mbegale/dwellio-core/internal/device"
	"github.com/mbegale/dwellio-core/internal/operr"
)

const (
	vendor         = "hue"
	requestTimeout = 15 * time.Second

	// Bridge value ranges.
	maxBri = 254
	maxSat = 254
	maxHue = 65535
)

// Client talks to the local Hue bridge API. The auth token is the
// application key the bridge issued at pairing time; it forms part of
// every request path.
type Client struct {
	baseURL    string
	httpClient *http.Client
	propertyID string

	mu  sync.RWMutex
	key string
}

// New creates a Hue client for a bridge at the given address, e.g.
// "http://192.168.1.40".
func New(propertyID, bridgeURL string) *Client {
	return &Client{
		baseURL:    bridgeURL,
		propertyID: propertyID,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

// Vendor returns the manufacturer identifier.
func (c *Client) Vendor() string { return vendor }

// Initialize stores the application key and verifies it by listing lights.
func (c *Client) Initialize(ctx context.Context, authToken string) error {
	c.mu.Lock()
	c.key = authToken
	c.mu.Unlock()

	var lights map[string]hueLight
	if err := c.get(ctx, "/lights", &lights); err != nil {
		if operr.Is(err, operr.KindTokenExpired) || operr.Is(err, operr.KindInvalidCredentials) {
			return operr.Vendor(vendor, operr.KindInvalidCredentials, "", err)
		}
		return err
	}
	return nil
}

// hueLight is the bridge's light object.
type hueLight struct {
	Name  string `json:"name"`
	State struct {
		On        bool `json:"on"`
		Bri       int  `json:"bri"`
		Hue       int  `json:"hue"`
		Sat       int  `json:"sat"`
		Reachable bool `json:"reachable"`
	} `json:"state"`
}

// hueError is the bridge's error envelope. Errors arrive as an array of
// objects each wrapping an error description.
type hueError struct {
	Error struct {
		Type        int    `json:"type"`
		Description string `json:"description"`
	} `json:"error"`
}

const hueUnauthorizedType = 1

// FetchDevices lists all lights known to the bridge.
func (c *Client) FetchDevices(ctx context.Context) ([]device.Device, error) {
	var lights map[string]hueLight
	if err := c.get(ctx, "/lights", &lights); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(lights))
	for id := range lights {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	devices := make([]device.Device, 0, len(ids))
	for _, id := range ids {
		devices = append(devices, *c.normalize(id, lights[id]))
	}
	return devices, nil
}

// GetState returns the current state of one light.
func (c *Client) GetState(ctx context.Context, deviceID string) (*device.Device, error) {
	var light hueLight
	if err := c.get(ctx, "/lights/"+deviceID, &light); err != nil {
		return nil, err
	}
	return c.normalize(deviceID, light), nil
}

// ExecuteCommand updates the light state and returns the refreshed device.
func (c *Client) ExecuteCommand(ctx context.Context, deviceID string, cmd device.Command) (*device.Device, error) {
	state := map[string]any{}

	switch cmd.Name {
	case "turnOn":
		state["on"] = true
	case "turnOff":
		state["on"] = false
	case "setBrightness":
		pct, err := numberParam(cmd, "brightness")
		if err != nil {
			return nil, err
		}
		state["on"] = true
		state["bri"] = scaleTo(pct, 100, maxBri)
	case "setColor":
		hue, err := numberParam(cmd, "hue")
		if err != nil {
			return nil, err
		}
		sat, err := numberParam(cmd, "saturation")
		if err != nil {
			return nil, err
		}
		state["on"] = true
		state["hue"] = scaleTo(hue, 360, maxHue)
		state["sat"] = scaleTo(sat, 100, maxSat)
		if bri, err := numberParam(cmd, "brightness"); err == nil {
			state["bri"] = scaleTo(bri, 100, maxBri)
		}
	default:
		return nil, operr.Vendor(vendor, operr.KindUnsupportedCommand, cmd.Name, nil)
	}

	body, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encoding state: %w", err)
	}
	if err := c.put(ctx, "/lights/"+deviceID+"/state", body); err != nil {
		return nil, err
	}

	return c.GetState(ctx, deviceID)
}

func (c *Client) normalize(id string, light hueLight) *device.Device {
	online := device.StatusOnline
	if !light.State.Reachable {
		online = device.StatusOffline
	}

	return &device.Device{
		ID:             id,
		Name:           light.Name,
		Manufacturer:   vendor,
		CapabilityType: device.CapabilityLight,
		PropertyID:     c.propertyID,
		Online:         online,
		Capabilities:   []string{"turnOn", "turnOff", "setBrightness", "setColor"},
		Light: &device.LightInfo{
			On:         light.State.On,
			Brightness: scaleTo(float64(light.State.Bri), maxBri, 100),
			Color: &device.Color{
				Hue:        float64(scaleTo(float64(light.State.Hue), maxHue, 360)),
				Saturation: float64(scaleTo(float64(light.State.Sat), maxSat, 100)),
				Brightness: float64(scaleTo(float64(light.State.Bri), maxBri, 100)),
			},
		},
	}
}

// scaleTo linearly maps v from [0,fromMax] onto [0,toMax], rounding to
// the nearest integer.
func scaleTo(v, fromMax, toMax float64) int {
	if v < 0 {
		v = 0
	}
	if v > fromMax {
		v = fromMax
	}
	return int(math.Round(v / fromMax * toMax))
}

func numberParam(cmd device.Command, key string) (float64, error) {
	v, ok := cmd.Parameters[key]
	if !ok {
		return 0, operr.Vendor(vendor, operr.KindUnsupportedCommand,
			cmd.Name+": missing parameter "+strconv.Quote(key), nil)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	default:
		return 0, operr.Vendor(vendor, operr.KindUnsupportedCommand,
			cmd.Name+": parameter "+strconv.Quote(key)+" is not a number", nil)
	}
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return operr.Vendor(vendor, operr.KindInvalidResponse, "", err)
	}
	return nil
}

func (c *Client) put(ctx context.Context, path string, body []byte) error {
	_, err := c.do(ctx, http.MethodPut, path, body)
	return err
}

// do performs a bridge request. The bridge returns 200 even for
// application errors, so the body is checked for an error envelope.
func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	c.mu.RLock()
	key := c.key
	c.mu.RUnlock()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/api/"+key+path, reader)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, adapter.WrapTransportError(vendor, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, adapter.WrapTransportError(vendor, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, adapter.StatusError(vendor, resp.StatusCode)
	}

	if kindErr := bridgeError(raw); kindErr != nil {
		return nil, kindErr
	}
	return raw, nil
}

// bridgeError detects the bridge's error envelope in a 200 response.
func bridgeError(raw []byte) error {
	var errs []hueError
	if err := json.Unmarshal(raw, &errs); err != nil || len(errs) == 0 {
		return nil
	}
	first := errs[0]
	if first.Error.Description == "" {
		return nil
	}
	if first.Error.Type == hueUnauthorizedType {
		return operr.Vendor(vendor, operr.KindInvalidCredentials, first.Error.Description, nil)
	}
	return operr.Vendor(vendor, operr.KindInvalidResponse, first.Error.Description, nil)
}
