package smartthings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mbegale/dwellio-core/internal/device"
	"github.com/mbegale/dwellio-core/internal/operr"
)

const lockDevice = `{
	"deviceId": "st-lock-1",
	"label": "Front Door",
	"roomId": "room-7",
	"components": [{
		"id": "main",
		"capabilities": [{"id": "lock"}, {"id": "battery"}]
	}]
}`

const lockStatus = `{
	"components": {
		"main": {
			"lock": {"lock": {"value": "locked"}},
			"battery": {"battery": {"value": 87}}
		}
	}
}`

func newTestServer(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewWithURL("prop-1", srv.URL), srv
}

func TestGetStateNormalizesLock(t *testing.T) {
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/devices/st-lock-1":
			w.Write([]byte(lockDevice))
		case "/devices/st-lock-1/status":
			w.Write([]byte(lockStatus))
		default:
			http.NotFound(w, r)
		}
	})

	d, err := client.GetState(context.Background(), "st-lock-1")
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}

	if d.CapabilityType != device.CapabilityLock {
		t.Errorf("capability type = %q, want lock", d.CapabilityType)
	}
	if d.Name != "Front Door" {
		t.Errorf("name = %q, want Front Door", d.Name)
	}
	if d.RoomID == nil || *d.RoomID != "room-7" {
		t.Errorf("room = %v, want room-7", d.RoomID)
	}
	if d.Lock == nil {
		t.Fatal("lock payload missing")
	}
	if d.Lock.State != device.LockStateLocked {
		t.Errorf("lock state = %q, want locked", d.Lock.State)
	}
	if d.Lock.BatteryLevel != 87 {
		t.Errorf("battery = %d, want 87", d.Lock.BatteryLevel)
	}
}

func TestExecuteCommandSendsCapabilityCommand(t *testing.T) {
	var sent map[string]any
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/devices/st-lock-1/commands":
			if err := json.NewDecoder(r.Body).Decode(&sent); err != nil {
				t.Errorf("decoding command body: %v", err)
			}
			w.Write([]byte(`{}`))
		case r.URL.Path == "/devices/st-lock-1":
			w.Write([]byte(lockDevice))
		case r.URL.Path == "/devices/st-lock-1/status":
			w.Write([]byte(lockStatus))
		default:
			http.NotFound(w, r)
		}
	})

	if _, err := client.ExecuteCommand(context.Background(), "st-lock-1", device.Command{Name: "lock"}); err != nil {
		t.Fatalf("ExecuteCommand: %v", err)
	}

	commands, ok := sent["commands"].([]any)
	if !ok || len(commands) != 1 {
		t.Fatalf("commands payload = %v", sent)
	}
	cmd := commands[0].(map[string]any)
	if cmd["capability"] != "lock" || cmd["command"] != "lock" {
		t.Errorf("sent command = %v, want lock/lock", cmd)
	}
}

func TestExecuteCommandRejectsUnknownVerb(t *testing.T) {
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
	})

	_, err := client.ExecuteCommand(context.Background(), "st-lock-1", device.Command{Name: "levitate"})
	if !operr.Is(err, operr.KindUnsupportedCommand) {
		t.Errorf("error kind = %v, want unsupported command", operr.KindOf(err))
	}
}

func TestStatusCodesMapToKinds(t *testing.T) {
	tests := []struct {
		status int
		kind   operr.Kind
	}{
		{http.StatusUnauthorized, operr.KindTokenExpired},
		{http.StatusNotFound, operr.KindDeviceNotFound},
		{http.StatusTooManyRequests, operr.KindRateLimited},
		{http.StatusInternalServerError, operr.KindNetwork},
	}

	for _, tt := range tests {
		client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		})

		_, err := client.GetState(context.Background(), "st-lock-1")
		if !operr.Is(err, tt.kind) {
			t.Errorf("status %d: kind = %v, want %v", tt.status, operr.KindOf(err), tt.kind)
		}
	}
}

func TestInitializeRejectsBadToken(t *testing.T) {
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	err := client.Initialize(context.Background(), "bad-token")
	if !operr.Is(err, operr.KindInvalidCredentials) {
		t.Errorf("error kind = %v, want invalid credentials", operr.KindOf(err))
	}
}

func TestInitializeSendsBearerToken(t *testing.T) {
	var auth string
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.Write([]byte(`{"items": []}`))
	})

	if err := client.Initialize(context.Background(), "token-123"); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if auth != "Bearer token-123" {
		t.Errorf("authorization header = %q", auth)
	}
}
