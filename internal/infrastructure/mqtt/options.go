package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/pillfleet/pillfleet-core/internal/infrastructure/config"
)

const (
	// connectTimeout bounds the initial broker handshake.
	connectTimeout = 10 * time.Second

	// publishTimeout bounds waiting for a publish or subscribe ack.
	publishTimeout = 5 * time.Second

	// disconnectQuiesceMs is how long Close lets in-flight publishes
	// drain, in the milliseconds paho's Disconnect expects.
	disconnectQuiesceMs = 1000

	// keepAliveInterval paces the PINGs that detect a dead link.
	keepAliveInterval = 60 * time.Second

	// maxQoS is the highest QoS level MQTT defines.
	maxQoS = 2
)

// brokerOptions translates the mqtt section of config.yaml into paho
// client options: broker URL, credentials if the broker wants them,
// and auto-reconnect with backoff. Sessions are clean; the replay
// table in Client carries subscriptions across reconnects, not
// broker-side session state.
func brokerOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port))

	opts.SetClientID(cfg.Broker.ClientID)
	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second)
	opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetKeepAlive(keepAliveInterval)

	return opts
}

// systemStatus is the payload shape on pillfleet/system/status.
// Dashboards and carers' apps key off Status and Reason to
// distinguish a crashed Core from a maintenance stop.
type systemStatus struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

// setLastWill arms the broker with the crash notice: retained, QoS 1,
// on the system status topic, published only if this session dies
// without a clean disconnect.
func setLastWill(opts *pahomqtt.ClientOptions, clientID string) {
	opts.SetWill(Topics{}.SystemStatus(),
		statusJSON("offline", clientID, "unexpected_disconnect"), 1, true)
}

// onlinePayload is retained on session establishment, retracting any
// earlier Will the broker may have delivered.
func onlinePayload(clientID string) string {
	return statusJSON("online", clientID, "")
}

// offlinePayload marks a deliberate shutdown.
func offlinePayload(clientID string) string {
	return statusJSON("offline", clientID, "graceful_shutdown")
}

func statusJSON(status, clientID, reason string) string {
	payload, err := json.Marshal(systemStatus{
		Status:    status,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		// Marshalling a struct of strings cannot fail.
		return `{"status":"` + status + `"}`
	}
	return string(payload)
}
