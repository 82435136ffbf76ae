package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	_ "github.com/mattn/go-sqlite3"

	"github.com/mbegale/dwellio-core/internal/audit"
	"github.com/mbegale/dwellio-core/internal/device"
	"github.com/mbegale/dwellio-core/internal/infrastructure/config"
	"github.com/mbegale/dwellio-core/internal/infrastructure/logging"
	"github.com/mbegale/dwellio-core/internal/operr"
	"github.com/mbegale/dwellio-core/internal/pipeline"
	"github.com/mbegale/dwellio-core/internal/webhook"
)

const testJWTSecret = "test-secret-key-at-least-32-characters-long"

// stubExecutor records the last request and replays a scripted result.
type stubExecutor struct {
	lastReq pipeline.Request
	result  *pipeline.Result
	err     error
}

func (s *stubExecutor) Execute(_ context.Context, req pipeline.Request) (*pipeline.Result, error) {
	s.lastReq = req
	if s.err != nil {
		return &pipeline.Result{Stage: pipeline.StageFailed}, s.err
	}
	return s.result, nil
}

// stubWebhooks records received events.
type stubWebhooks struct {
	vendor string
	event  webhook.Event
	err    error
}

func (s *stubWebhooks) Handle(_ context.Context, vendor string, ev webhook.Event) error {
	s.vendor = vendor
	s.event = ev
	return s.err
}

// setupTestDB creates an in-memory SQLite database with the devices schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
		CREATE TABLE devices (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			manufacturer TEXT NOT NULL,
			capability_type TEXT NOT NULL,
			property_id TEXT NOT NULL,
			unit_id TEXT,
			room_id TEXT,
			online_status TEXT NOT NULL DEFAULT 'offline',
			last_seen TEXT,
			capabilities TEXT NOT NULL DEFAULT '[]',
			attributes TEXT,
			payload TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
	return db
}

// testServer creates a Server with a real device registry backed by
// in-memory SQLite and stubbed pipeline and webhook collaborators.
func testServer(t *testing.T) (*Server, *device.Registry, *stubExecutor, *stubWebhooks, *audit.MemoryStore) {
	t.Helper()

	db := setupTestDB(t)
	registry := device.NewRegistry(device.NewSQLiteRepository(db))
	if err := registry.RefreshCache(context.Background()); err != nil {
		t.Fatalf("RefreshCache: %v", err)
	}

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	exec := &stubExecutor{}
	hooks := &stubWebhooks{}
	auditStore := audit.NewMemoryStore()

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Port:     0,
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Security: config.SecurityConfig{
			JWT: config.JWTConfig{Secret: testJWTSecret, AccessTokenTTL: 15},
		},
		Logger:   log,
		Registry: registry,
		Executor: exec,
		Webhooks: hooks,
		Audit:    audit.NewLogger(auditStore),
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	// Initialise hub for handler tests without Start().
	srv.hub = NewHub(srv.wsCfg, log)

	return srv, registry, exec, hooks, auditStore
}

// signToken creates a JWT for the given user, valid for an hour.
func signToken(t *testing.T, userID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return signed
}

// doRequest runs a request through the full router with auth attached.
func doRequest(t *testing.T, srv *Server, method, path, userID string, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}

	req := httptest.NewRequest(method, path, reader)
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+signToken(t, userID))
	}
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)
	return rec
}

func seedLock(t *testing.T, registry *device.Registry) *device.Device {
	t.Helper()
	d := &device.Device{
		ID:             "lock-1",
		Name:           "Front Door",
		Manufacturer:   "august",
		CapabilityType: device.CapabilityLock,
		PropertyID:     "prop-001",
		Online:         device.StatusOnline,
		Capabilities:   []string{"lock", "unlock"},
		Lock: &device.LockInfo{
			State:        device.LockStateLocked,
			BatteryLevel: 90,
		},
	}
	if err := registry.CreateDevice(context.Background(), d); err != nil {
		t.Fatalf("seeding device: %v", err)
	}
	return d
}

func TestHealthNoAuth(t *testing.T) {
	srv, _, _, _, _ := testServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body["version"] != "test" {
		t.Errorf("version = %v", body["version"])
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	srv, _, _, _, _ := testServer(t)

	paths := []string{"/api/v1/devices", "/api/v1/audit/logs"}
	for _, path := range paths {
		rec := doRequest(t, srv, http.MethodGet, path, "", "")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s without token: status = %d, want 401", path, rec.Code)
		}
	}
}

func TestRejectsBadToken(t *testing.T) {
	srv, _, _, _, _ := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRejectsWrongSigningKey(t *testing.T) {
	srv, _, _, _, _ := testServer(t)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("some-other-secret-entirely-here!"))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestListDevices(t *testing.T) {
	srv, registry, _, _, _ := testServer(t)
	seedLock(t, registry)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/devices", "user-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Devices []device.Device `json:"devices"`
		Count   int             `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Count != 1 || len(body.Devices) != 1 {
		t.Fatalf("count = %d, devices = %d", body.Count, len(body.Devices))
	}
	if body.Devices[0].ID != "lock-1" {
		t.Errorf("device ID = %q", body.Devices[0].ID)
	}
}

func TestListDevicesByManufacturer(t *testing.T) {
	srv, registry, _, _, _ := testServer(t)
	seedLock(t, registry)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/devices?manufacturer=hue", "user-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Count != 0 {
		t.Errorf("count = %d, want 0 for unmatched vendor", body.Count)
	}
}

func TestGetDeviceNotFound(t *testing.T) {
	srv, _, _, _, _ := testServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/devices/ghost", "user-1", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestExecuteCommand(t *testing.T) {
	srv, registry, exec, _, _ := testServer(t)
	d := seedLock(t, registry)
	exec.result = &pipeline.Result{Device: d, Stage: pipeline.StageDone}

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/devices/lock-1/commands", "user-1",
		`{"name":"unlock","biometric_confirmed":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	if exec.lastReq.UserID != "user-1" {
		t.Errorf("executor saw user %q, want user-1", exec.lastReq.UserID)
	}
	if exec.lastReq.DeviceID != "lock-1" {
		t.Errorf("executor saw device %q", exec.lastReq.DeviceID)
	}
	if exec.lastReq.Command.Name != "unlock" {
		t.Errorf("executor saw command %q", exec.lastReq.Command.Name)
	}
	if !exec.lastReq.BiometricConfirmed {
		t.Error("biometric confirmation not propagated")
	}

	var body commandResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Stage != pipeline.StageDone {
		t.Errorf("stage = %q", body.Stage)
	}
}

func TestExecuteCommandMissingName(t *testing.T) {
	srv, _, _, _, _ := testServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/devices/lock-1/commands", "user-1", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestExecuteCommandErrorMapping(t *testing.T) {
	tests := []struct {
		kind operr.Kind
		want int
	}{
		{operr.KindUnauthorized, http.StatusForbidden},
		{operr.KindDeviceNotFound, http.StatusNotFound},
		{operr.KindUnsupportedCommand, http.StatusUnprocessableEntity},
		{operr.KindRateLimited, http.StatusTooManyRequests},
		{operr.KindDeviceBusy, http.StatusConflict},
		{operr.KindDeviceOffline, http.StatusServiceUnavailable},
		{operr.KindTimeout, http.StatusGatewayTimeout},
		{operr.KindNetwork, http.StatusBadGateway},
		{operr.KindTokenExpired, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			srv, _, exec, _, _ := testServer(t)
			exec.err = operr.E(tt.kind, "scripted failure", nil)

			rec := doRequest(t, srv, http.MethodPost, "/api/v1/devices/lock-1/commands", "user-1",
				`{"name":"unlock"}`)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}

			var body Error
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decoding body: %v", err)
			}
			if body.Code != string(tt.kind) {
				t.Errorf("code = %q, want %q", body.Code, tt.kind)
			}
		})
	}
}

func TestDeviceStats(t *testing.T) {
	srv, registry, _, _, _ := testServer(t)
	seedLock(t, registry)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/devices/stats", "user-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Total          int            `json:"total"`
		ByManufacturer map[string]int `json:"by_manufacturer"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Total != 1 || body.ByManufacturer["august"] != 1 {
		t.Errorf("unexpected stats: %+v", body)
	}
}

func TestQueryAudit(t *testing.T) {
	srv, _, _, _, store := testServer(t)

	srv.audit.Log(context.Background(), audit.CategoryDeviceControl, audit.ActionCommandExecuted,
		audit.StatusSuccess, "user-1", map[string]any{"deviceId": "lock-1"})
	if store.Len() != 1 {
		t.Fatalf("expected seeded audit entry")
	}

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/audit/logs?category=deviceControl&limit=10", "user-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Entries []audit.Entry `json:"entries"`
		Count   int           `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Count != 1 {
		t.Fatalf("count = %d, want 1", body.Count)
	}
	if body.Entries[0].UserID != "user-1" {
		t.Errorf("entry user = %q", body.Entries[0].UserID)
	}
}

func TestQueryAuditBadTime(t *testing.T) {
	srv, _, _, _, _ := testServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/audit/logs?start=yesterday", "user-1", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestWebhookIngestion(t *testing.T) {
	srv, _, _, hooks, _ := testServer(t)

	body := `{"eventId":"ev-1","eventType":"DEVICE_EVENT","deviceId":"lock-1","data":{"lockState":"unlocked"}}`
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/webhooks/smartthings", "", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	if hooks.vendor != "smartthings" {
		t.Errorf("vendor = %q", hooks.vendor)
	}
	if hooks.event.EventID != "ev-1" || hooks.event.DeviceID != "lock-1" {
		t.Errorf("unexpected event: %+v", hooks.event)
	}
}

func TestWebhookMalformedJSON(t *testing.T) {
	srv, _, _, _, _ := testServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/webhooks/smartthings", "", "{not json")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestWebhookHandlerError(t *testing.T) {
	srv, _, _, hooks, _ := testServer(t)
	hooks.err = operr.E(operr.KindInvalidResponse, "missing identifiers", nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/webhooks/nest", "", `{"eventId":"ev-2"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestWSTicketFlow(t *testing.T) {
	srv, _, _, _, _ := testServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/auth/ws-ticket", "user-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Ticket string `json:"ticket"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Ticket == "" {
		t.Fatal("expected a ticket")
	}

	userID, ok := srv.tickets.consume(body.Ticket)
	if !ok || userID != "user-1" {
		t.Errorf("consume = (%q, %v), want (user-1, true)", userID, ok)
	}

	// Single use.
	if _, ok := srv.tickets.consume(body.Ticket); ok {
		t.Error("ticket should not be consumable twice")
	}
}

func TestTicketExpiry(t *testing.T) {
	ts := newTicketStore()
	ticket := ts.issue("user-1")

	ts.mu.Lock()
	entry := ts.tickets[ticket]
	entry.expiresAt = time.Now().Add(-time.Second)
	ts.tickets[ticket] = entry
	ts.mu.Unlock()

	if _, ok := ts.consume(ticket); ok {
		t.Error("expired ticket should be rejected")
	}
}

func TestHubBroadcastRouting(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	hub := NewHub(config.WebSocketConfig{}, log)

	all := &WSClient{hub: hub, send: make(chan []byte, 4), subscriptions: map[string]struct{}{
		ChannelDeviceState: {},
	}}
	one := &WSClient{hub: hub, send: make(chan []byte, 4), subscriptions: map[string]struct{}{
		ChannelDeviceState + ":lock-1": {},
	}}
	hub.Register(all)
	hub.Register(one)

	hub.Broadcast(ChannelDeviceState, map[string]any{"id": "lock-2"})
	hub.Broadcast(ChannelDeviceState+":lock-1", map[string]any{"id": "lock-1"})

	if got := len(all.send); got != 1 {
		t.Errorf("broad subscriber received %d messages, want 1", got)
	}
	if got := len(one.send); got != 1 {
		t.Errorf("device subscriber received %d messages, want 1", got)
	}
}

func TestRequestIDHeader(t *testing.T) {
	srv, _, _, _, _ := testServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/health", "", "")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected generated X-Request-ID header")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "req-abc")
	rec2 := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec2, req)
	if got := rec2.Header().Get("X-Request-ID"); got != "req-abc" {
		t.Errorf("X-Request-ID = %q, want req-abc", got)
	}
}
