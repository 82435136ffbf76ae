// Package adapter defines the common capability interface every vendor
// platform integration implements, and the manufacturer lookup table the
// pipeline uses to select one.
//
// Adapters normalize heterogeneous vendor wire formats into the device
// model and map vendor failures into the operr taxonomy at this boundary,
// so nothing above it handles vendor-specific errors.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/mbegale/dwellio-core/internal/device"
	"github.com/mbegale/dwellio-core/internal/operr"
)

// Adapter is the common capability interface for one vendor platform.
//
// Implementations perform network I/O against the vendor's cloud API and
// hold no global state beyond their own credentials.
type Adapter interface {
	// Vendor returns the manufacturer identifier this adapter serves
	// (matches device.Manufacturer).
	Vendor() string

	// Initialize validates and stores the bearer token for subsequent
	// calls. Fails with an authentication error kind if the token is
	// rejected.
	Initialize(ctx context.Context, authToken string) error

	// FetchDevices returns the vendor's devices normalized into the
	// device model, in the order the vendor reports them. May be empty.
	FetchDevices(ctx context.Context) ([]device.Device, error)

	// GetState returns the current state of one device.
	// Fails with a device_not_found kind if the vendor has no such device.
	GetState(ctx context.Context, deviceID string) (*device.Device, error)

	// ExecuteCommand performs the command and returns the updated device.
	// Fails with unsupported_command, device_offline, or a vendor failure
	// kind.
	ExecuteCommand(ctx context.Context, deviceID string, cmd device.Command) (*device.Device, error)
}

// ErrUnknownManufacturer is returned when no adapter is registered for a
// device's manufacturer.
var ErrUnknownManufacturer = errors.New("adapter: unknown manufacturer")

// Registry is the manufacturer→adapter lookup table, built once at
// startup by the composition root. It is immutable after construction,
// so lookups need no locking.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds the lookup table from the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	m := make(map[string]Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Vendor()] = a
	}
	return &Registry{adapters: m}
}

// ForManufacturer returns the adapter serving the given manufacturer.
func (r *Registry) ForManufacturer(manufacturer string) (Adapter, error) {
	a, ok := r.adapters[manufacturer]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownManufacturer, manufacturer)
	}
	return a, nil
}

// Vendors returns the registered manufacturer identifiers.
func (r *Registry) Vendors() []string {
	out := make([]string, 0, len(r.adapters))
	for v := range r.adapters {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// StatusError maps an HTTP response status from a vendor API into the
// unified error taxonomy. Adapters call this for any non-2xx response so
// classification is consistent across vendors.
func StatusError(vendor string, status int) error {
	switch {
	case status == http.StatusUnauthorized:
		return operr.Vendor(vendor, operr.KindTokenExpired, "", nil)
	case status == http.StatusForbidden:
		return operr.Vendor(vendor, operr.KindInvalidCredentials, "", nil)
	case status == http.StatusNotFound:
		return operr.Vendor(vendor, operr.KindDeviceNotFound, "", nil)
	case status == http.StatusConflict || status == http.StatusLocked:
		return operr.Vendor(vendor, operr.KindDeviceBusy, "", nil)
	case status == http.StatusTooManyRequests:
		return operr.Vendor(vendor, operr.KindRateLimited, "", nil)
	case status == http.StatusGatewayTimeout:
		return operr.Vendor(vendor, operr.KindTimeout, "", nil)
	case status >= 500:
		return operr.Vendor(vendor, operr.KindNetwork, fmt.Sprintf("status %d", status), nil)
	default:
		return operr.Vendor(vendor, operr.KindInvalidResponse, fmt.Sprintf("unexpected status %d", status), nil)
	}
}

// WrapTransportError maps a Go HTTP client error into the taxonomy.
// Context deadline errors become timeouts; everything else is a network
// failure.
func WrapTransportError(vendor string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return operr.Vendor(vendor, operr.KindTimeout, "", err)
	}
	return operr.Vendor(vendor, operr.KindNetwork, "", err)
}
