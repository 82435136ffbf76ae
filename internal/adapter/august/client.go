// Package august integrates August smart locks.
//
// The August API reports lock status as kAugLockState_* strings and
// battery charge as a 0-1 fraction; both are converted into the device
// model's representations.
package august

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/mbegale/dwellio-core/internal/adapter"
	"github.com/mbegale/dwellio-core/internal/device"
	"github.com/mbegale/dwellio-core/internal/operr"
)

const (
	vendor         = "august"
	defaultBaseURL = "https://api-production.august.com"
	requestTimeout = 15 * time.Second
)

// Client talks to the August REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	propertyID string

	mu    sync.RWMutex
	token string
}

// New creates an August client for locks of one property.
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

// Initialize stores the access token after verifying it.
func (c *Client) Initialize(ctx context.Context, authToken string) error {
	c.mu.Lock()
	c.token = authToken
	c.mu.Unlock()

	var locks map[string]augLockSummary
	if err := c.get(ctx, "/users/locks/mine", &locks); err != nil {
		if operr.Is(err, operr.KindTokenExpired) || operr.Is(err, operr.KindInvalidCredentials) {
			return operr.Vendor(vendor, operr.KindInvalidCredentials, "", err)
		}
		return err
	}
	return nil
}

type augLockSummary struct {
	LockName string `json:"LockName"`
	HouseID  string `json:"HouseID"`
}

type augLockDetail struct {
	LockName string  `json:"LockName"`
	Battery  float64 `json:"battery"`
	LockInfo struct {
		Status string `json:"status"`
	} `json:"LockStatus"`
}

// FetchDevices lists all locks the account can operate.
func (c *Client) FetchDevices(ctx context.Context) ([]device.Device, error) {
	var locks map[string]augLockSummary
	if err := c.get(ctx, "/users/locks/mine", &locks); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(locks))
	for id := range locks {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	devices := make([]device.Device, 0, len(ids))
	for _, id := range ids {
		d, err := c.GetState(ctx, id)
		if err != nil {
			return nil, err
		}
		devices = append(devices, *d)
	}
	return devices, nil
}

// GetState returns the current state of one lock.
func (c *Client) GetState(ctx context.Context, deviceID string) (*device.Device, error) {
	var detail augLockDetail
	if err := c.get(ctx, "/locks/"+deviceID, &detail); err != nil {
		return nil, err
	}

	return &device.Device{
		ID:             deviceID,
		Name:           detail.LockName,
		Manufacturer:   vendor,
		CapabilityType: device.CapabilityLock,
		PropertyID:     c.propertyID,
		Online:         device.StatusOnline,
		Capabilities:   []string{"lock", "unlock"},
		Lock: &device.LockInfo{
			State:        lockStateFrom(detail.LockInfo.Status),
			BatteryLevel: int(math.Round(detail.Battery * 100)),
		},
	}, nil
}

// ExecuteCommand operates the lock and returns the refreshed device.
func (c *Client) ExecuteCommand(ctx context.Context, deviceID string, cmd device.Command) (*device.Device, error) {
	var op string
	switch cmd.Name {
	case "lock":
		op = "lock"
	case "unlock":
		op = "unlock"
	default:
		return nil, operr.Vendor(vendor, operr.KindUnsupportedCommand, cmd.Name, nil)
	}

	if err := c.put(ctx, "/remoteoperate/"+deviceID+"/"+op); err != nil {
		return nil, err
	}
	return c.GetState(ctx, deviceID)
}

func lockStateFrom(s string) device.LockState {
	switch s {
	case "kAugLockState_Locked", "locked":
		return device.LockStateLocked
	case "kAugLockState_Unlocked", "unlocked":
		return device.LockStateUnlocked
	case "kAugLockState_Jammed", "jammed":
		return device.LockStateJammed
	default:
		return device.LockStateUnknown
	}
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	resp, err := c.do(ctx, http.MethodGet, path)
	if err != nil {
		return err
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

func (c *Client) put(ctx context.Context, path string) error {
	resp, err := c.do(ctx, http.MethodPut, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	//nolint:errcheck // drain for connection reuse
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return adapter.StatusError(vendor, resp.StatusCode)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	req.Header.Set("x-august-access-token", token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, adapter.WrapTransportError(vendor, err)
	}
	return resp, nil
}
