package adapter

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/mbegale/dwellio-core/internal/device"
	"github.com/mbegale/dwellio-core/internal/operr"
)

type fakeAdapter struct {
	vendor string
}

func (f *fakeAdapter) Vendor() string                                  { return f.vendor }
func (f *fakeAdapter) Initialize(context.Context, string) error        { return nil }
func (f *fakeAdapter) FetchDevices(context.Context) ([]device.Device, error) {
	return nil, nil
}
func (f *fakeAdapter) GetState(context.Context, string) (*device.Device, error) {
	return nil, nil
}
func (f *fakeAdapter) ExecuteCommand(context.Context, string, device.Command) (*device.Device, error) {
	return nil, nil
}

func TestRegistryLookup(t *testing.T) {
	reg := NewRegistry(&fakeAdapter{vendor: "august"}, &fakeAdapter{vendor: "hue"})

	a, err := reg.ForManufacturer("august")
	if err != nil {
		t.Fatalf("ForManufacturer: %v", err)
	}
	if a.Vendor() != "august" {
		t.Errorf("vendor = %q, want august", a.Vendor())
	}

	if _, err := reg.ForManufacturer("acme"); !errors.Is(err, ErrUnknownManufacturer) {
		t.Errorf("unknown manufacturer error = %v, want ErrUnknownManufacturer", err)
	}
}

func TestRegistryVendorsSorted(t *testing.T) {
	reg := NewRegistry(&fakeAdapter{vendor: "nest"}, &fakeAdapter{vendor: "august"}, &fakeAdapter{vendor: "hue"})

	vendors := reg.Vendors()
	want := []string{"august", "hue", "nest"}
	if len(vendors) != len(want) {
		t.Fatalf("vendors = %v, want %v", vendors, want)
	}
	for i := range want {
		if vendors[i] != want[i] {
			t.Errorf("vendors[%d] = %q, want %q", i, vendors[i], want[i])
		}
	}
}

func TestStatusErrorMapping(t *testing.T) {
	tests := []struct {
		status int
		kind   operr.Kind
	}{
		{http.StatusUnauthorized, operr.KindTokenExpired},
		{http.StatusForbidden, operr.KindInvalidCredentials},
		{http.StatusNotFound, operr.KindDeviceNotFound},
		{http.StatusConflict, operr.KindDeviceBusy},
		{http.StatusLocked, operr.KindDeviceBusy},
		{http.StatusTooManyRequests, operr.KindRateLimited},
		{http.StatusGatewayTimeout, operr.KindTimeout},
		{http.StatusInternalServerError, operr.KindNetwork},
		{http.StatusTeapot, operr.KindInvalidResponse},
	}

	for _, tt := range tests {
		err := StatusError("hue", tt.status)
		if !operr.Is(err, tt.kind) {
			t.Errorf("status %d: kind = %v, want %v", tt.status, operr.KindOf(err), tt.kind)
		}
	}
}

func TestWrapTransportError(t *testing.T) {
	err := WrapTransportError("nest", context.DeadlineExceeded)
	if !operr.Is(err, operr.KindTimeout) {
		t.Errorf("deadline error kind = %v, want timeout", operr.KindOf(err))
	}

	err = WrapTransportError("nest", errors.New("connection refused"))
	if !operr.Is(err, operr.KindNetwork) {
		t.Errorf("transport error kind = %v, want network", operr.KindOf(err))
	}
}
