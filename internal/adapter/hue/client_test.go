package hue

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mbegale/dwellio-core/internal/device"
	"github.com/mbegale/dwellio-core/internal/operr"
)

const lightJSON = `{
	"name": "Hallway",
	"state": {"on": true, "bri": 254, "hue": 32768, "sat": 127, "reachable": true}
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New("prop-1", srv.URL)
	c.key = "app-key"
	return c
}

func TestGetStateScalesBridgeRanges(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/app-key/lights/3" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(lightJSON))
	})

	d, err := client.GetState(context.Background(), "3")
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}

	if d.CapabilityType != device.CapabilityLight {
		t.Errorf("capability type = %q, want light", d.CapabilityType)
	}
	if d.Light == nil || d.Light.Color == nil {
		t.Fatal("light payload missing")
	}
	if d.Light.Brightness != 100 {
		t.Errorf("brightness = %d, want 100", d.Light.Brightness)
	}
	if d.Light.Color.Hue != 180 {
		t.Errorf("hue = %v, want 180", d.Light.Color.Hue)
	}
	if d.Light.Color.Saturation != 50 {
		t.Errorf("saturation = %v, want 50", d.Light.Color.Saturation)
	}
}

func TestSetBrightnessScalesToBridge(t *testing.T) {
	var sent map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/api/app-key/lights/3/state":
			if err := json.NewDecoder(r.Body).Decode(&sent); err != nil {
				t.Errorf("decoding state body: %v", err)
			}
			w.Write([]byte(`[{"success": {}}]`))
		case r.URL.Path == "/api/app-key/lights/3":
			w.Write([]byte(lightJSON))
		default:
			http.NotFound(w, r)
		}
	})

	cmd := device.Command{Name: "setBrightness", Parameters: map[string]any{"brightness": 50.0}}
	if _, err := client.ExecuteCommand(context.Background(), "3", cmd); err != nil {
		t.Fatalf("ExecuteCommand: %v", err)
	}

	if bri, ok := sent["bri"].(float64); !ok || int(bri) != 127 {
		t.Errorf("bri = %v, want 127", sent["bri"])
	}
	if on, ok := sent["on"].(bool); !ok || !on {
		t.Errorf("on = %v, want true", sent["on"])
	}
}

func TestUnreachableLightReportsOffline(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name": "Porch", "state": {"on": false, "reachable": false}}`))
	})

	d, err := client.GetState(context.Background(), "5")
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if d.Online != device.StatusOffline {
		t.Errorf("online = %q, want offline", d.Online)
	}
}

func TestBridgeErrorEnvelope(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"error": {"type": 1, "description": "unauthorized user"}}]`))
	})

	_, err := client.GetState(context.Background(), "3")
	if !operr.Is(err, operr.KindInvalidCredentials) {
		t.Errorf("error kind = %v, want invalid credentials", operr.KindOf(err))
	}
}

func TestScaleTo(t *testing.T) {
	tests := []struct {
		v, fromMax, toMax float64
		want              int
	}{
		{0, 254, 100, 0},
		{254, 254, 100, 100},
		{127, 254, 100, 50},
		{100, 100, 254, 254},
		{300, 254, 100, 100},
		{-5, 254, 100, 0},
	}

	for _, tt := range tests {
		if got := scaleTo(tt.v, tt.fromMax, tt.toMax); got != tt.want {
			t.Errorf("scaleTo(%v, %v, %v) = %d, want %d", tt.v, tt.fromMax, tt.toMax, got, tt.want)
		}
	}
}
