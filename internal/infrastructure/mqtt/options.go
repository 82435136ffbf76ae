package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/mbegale/dwellio-core/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second

	// ackTimeout bounds publish and subscribe acknowledgements. Local
	// brokers answer in milliseconds; anything slower than this means
	// the connection is effectively gone.
	ackTimeout = 5 * time.Second

	// disconnectQuiesceMS gives in-flight messages a moment to drain
	// before the TCP connection drops.
	disconnectQuiesceMS = 1000

	keepAlive = 60 * time.Second

	maxQoS = 2

	// maxPayloadSize caps outbound payloads at 1 MiB. Device state
	// documents are a few hundred bytes; anything near this limit is a
	// bug upstream, not a legitimate message.
	maxPayloadSize = 1 << 20

	tlsMinVersion = tls.VersionTLS12
)

// statusPayload is the retained document on dwellio/system/status.
// Consumers watch it to know whether Core is serving commands. The
// broker itself publishes the unexpected_disconnect variant as our
// last will; Core publishes the other two.
type statusPayload struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

func statusJSON(clientID, status, reason string) []byte {
	b, _ := json.Marshal(statusPayload{ //nolint:errcheck // struct of strings cannot fail to marshal
		Status:    status,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	return b
}

// clientOptions translates the mqtt section of config.yaml into paho
// options: broker URL (ssl scheme when TLS is on), credentials, a clean
// session, auto-reconnect with bounded backoff, and the last will.
func clientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port))
	opts.SetClientID(cfg.Broker.ClientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	// Clean session: Core replays its own subscriptions on reconnect,
	// so broker-side session state would only mask bugs in that path.
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second)
	opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetKeepAlive(keepAlive)

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}

	// The will fires when the broker loses us without a DISCONNECT, so
	// dashboards flip the property to offline even if Core crashed.
	opts.SetBinaryWill(
		Topics{}.SystemStatus(),
		statusJSON(cfg.Broker.ClientID, "offline", "unexpected_disconnect"),
		1, true,
	)

	return opts
}
