package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mbegale/dwellio-core/internal/infrastructure/config"
)

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "broker.local",
			Port:     1883,
			ClientID: "dwellio-core-test",
			TLS:      false,
		},
		Auth: config.MQTTAuthConfig{
			Username: "dwellio",
			Password: "secret",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     30,
		},
	}
}

// disconnectedClient returns a client that was never connected.
// All validation paths can be exercised without a broker.
func disconnectedClient() *Client {
	return &Client{
		cfg:           testConfig(),
		subscriptions: make(map[string]subscription),
	}
}

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"device state", topics.DeviceState("lock-front-door"), "dwellio/state/lock-front-door"},
		{"vendor events", topics.VendorEvents("smartthings"), "dwellio/events/smartthings"},
		{"audit trail", topics.AuditTrail(), "dwellio/audit"},
		{"system status", topics.SystemStatus(), "dwellio/system/status"},
		{"system shutdown", topics.SystemShutdown(), "dwellio/system/shutdown"},
		{"all device states", topics.AllDeviceStates(), "dwellio/state/+"},
		{"all vendor events", topics.AllVendorEvents(), "dwellio/events/+"},
		{"all topics", topics.AllTopics(), "dwellio/#"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestClientOptions(t *testing.T) {
	opts := clientOptions(testConfig())

	if len(opts.Servers) != 1 {
		t.Fatalf("expected 1 broker, got %d", len(opts.Servers))
	}
	if got := opts.Servers[0].String(); got != "tcp://broker.local:1883" {
		t.Errorf("broker URL = %q, want tcp://broker.local:1883", got)
	}
	if opts.ClientID != "dwellio-core-test" {
		t.Errorf("client ID = %q", opts.ClientID)
	}
	if opts.Username != "dwellio" || opts.Password != "secret" {
		t.Error("credentials not applied")
	}
	if !opts.CleanSession {
		t.Error("expected clean session")
	}
	if !opts.AutoReconnect {
		t.Error("expected auto-reconnect")
	}
	if opts.TLSConfig != nil {
		t.Error("TLS config should be nil when TLS is disabled")
	}
}

func TestClientOptionsTLS(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	opts := clientOptions(cfg)

	if got := opts.Servers[0].String(); got != "ssl://broker.local:1883" {
		t.Errorf("broker URL = %q, want ssl scheme", got)
	}
	if opts.TLSConfig == nil {
		t.Fatal("expected TLS config when TLS is enabled")
	}
	if opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Errorf("TLS min version = %d, want %d", opts.TLSConfig.MinVersion, tlsMinVersion)
	}
}

func TestClientOptionsNoAuth(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Username = ""
	cfg.Auth.Password = "ignored"
	opts := clientOptions(cfg)

	if opts.Username != "" || opts.Password != "" {
		t.Error("credentials should not be set without a username")
	}
}

func TestLastWill(t *testing.T) {
	opts := clientOptions(testConfig())

	if !opts.WillEnabled {
		t.Fatal("expected the last will to be enabled")
	}
	if opts.WillTopic != "dwellio/system/status" {
		t.Errorf("will topic = %q", opts.WillTopic)
	}
	if opts.WillQos != 1 || !opts.WillRetained {
		t.Error("will should be QoS 1 retained")
	}

	var payload statusPayload
	if err := json.Unmarshal(opts.WillPayload, &payload); err != nil {
		t.Fatalf("will payload is not valid JSON: %v", err)
	}
	if payload.Status != "offline" || payload.Reason != "unexpected_disconnect" {
		t.Errorf("unexpected will payload: %+v", payload)
	}
	if payload.ClientID != "dwellio-core-test" {
		t.Errorf("will client_id = %q", payload.ClientID)
	}
}

func TestStatusJSON(t *testing.T) {
	var online statusPayload
	if err := json.Unmarshal(statusJSON("core-1", "online", ""), &online); err != nil {
		t.Fatalf("online payload is not valid JSON: %v", err)
	}
	if online.Status != "online" || online.ClientID != "core-1" || online.Timestamp == "" {
		t.Errorf("unexpected online payload: %+v", online)
	}
	if online.Reason != "" {
		t.Errorf("online payload should omit reason, got %q", online.Reason)
	}

	var offline statusPayload
	if err := json.Unmarshal(statusJSON("core-1", "offline", "graceful_shutdown"), &offline); err != nil {
		t.Fatalf("offline payload is not valid JSON: %v", err)
	}
	if offline.Status != "offline" || offline.Reason != "graceful_shutdown" {
		t.Errorf("unexpected offline payload: %+v", offline)
	}
}

func TestPublishValidation(t *testing.T) {
	c := disconnectedClient()

	if err := c.Publish("", []byte("x"), 1, false); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic: got %v, want ErrInvalidTopic", err)
	}
	if err := c.Publish("dwellio/state/d1", []byte("x"), 3, false); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("qos 3: got %v, want ErrInvalidQoS", err)
	}
	oversized := make([]byte, maxPayloadSize+1)
	if err := c.Publish("dwellio/state/d1", oversized, 1, false); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("oversized payload: got %v, want ErrPublishFailed", err)
	}
	if err := c.Publish("dwellio/state/d1", []byte("x"), 1, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected: got %v, want ErrNotConnected", err)
	}
}

func TestSubscribeValidation(t *testing.T) {
	c := disconnectedClient()
	handler := func(topic string, payload []byte) error { return nil }

	if err := c.Subscribe("", 1, handler); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic: got %v, want ErrInvalidTopic", err)
	}
	if err := c.Subscribe("dwellio/state/+", 5, handler); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("qos 5: got %v, want ErrInvalidQoS", err)
	}
	if err := c.Subscribe("dwellio/state/+", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler: got %v, want ErrSubscribeFailed", err)
	}
	if err := c.Subscribe("dwellio/state/+", 1, handler); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected: got %v, want ErrNotConnected", err)
	}
	if len(c.subscriptions) != 0 {
		t.Error("failed subscriptions should not be tracked for replay")
	}
}

func TestDropSubscription(t *testing.T) {
	c := disconnectedClient()
	c.subscriptions["dwellio/events/+"] = subscription{qos: 1}
	c.subscriptions["dwellio/state/+"] = subscription{qos: 1}

	c.dropSubscription("dwellio/events/+")

	if _, ok := c.subscriptions["dwellio/events/+"]; ok {
		t.Error("dropped subscription still tracked")
	}
	if _, ok := c.subscriptions["dwellio/state/+"]; !ok {
		t.Error("unrelated subscription removed")
	}
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

type captureLogger struct {
	errors   []string
	warnings []string
}

func (l *captureLogger) Error(msg string, args ...any) { l.errors = append(l.errors, msg) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.warnings = append(l.warnings, msg) }

func TestWrapRecoversPanic(t *testing.T) {
	c := disconnectedClient()
	logger := &captureLogger{}
	c.SetLogger(logger)

	wrapped := c.wrap(func(topic string, payload []byte) error {
		panic("handler exploded")
	})

	// Must not propagate the panic.
	wrapped(nil, &fakeMessage{topic: "dwellio/events/hue", payload: []byte("{}")})

	if len(logger.errors) != 1 {
		t.Fatalf("expected 1 error log, got %d", len(logger.errors))
	}
}

func TestWrapLogsHandlerError(t *testing.T) {
	c := disconnectedClient()
	logger := &captureLogger{}
	c.SetLogger(logger)

	wrapped := c.wrap(func(topic string, payload []byte) error {
		return errors.New("bad payload")
	})
	wrapped(nil, &fakeMessage{topic: "dwellio/events/nest", payload: []byte("{}")})

	if len(logger.warnings) != 1 {
		t.Fatalf("expected 1 warning log, got %d", len(logger.warnings))
	}
	if len(logger.errors) != 0 {
		t.Errorf("unexpected error logs: %v", logger.errors)
	}
}

func TestHealthCheckDisconnected(t *testing.T) {
	c := disconnectedClient()
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("got %v, want ErrNotConnected", err)
	}
}

func TestCloseNeverConnected(t *testing.T) {
	c := disconnectedClient()
	if err := c.Close(); err != nil {
		t.Errorf("Close on never-connected client: %v", err)
	}
}
