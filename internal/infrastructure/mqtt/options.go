package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/skysync/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	ackTimeout     = 5 * time.Second
	keepAlive      = 60 * time.Second

	// quiesceMillis lets in-flight publishes drain on Close.
	quiesceMillis = 500
)

// Bridge availability values published on {prefix}/status.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Availability is the retained document on the status topic. Consumers
// treat retained panel and device state as stale while it reads offline.
type Availability struct {
	Status   string    `json:"status"`
	ClientID string    `json:"client_id"`
	Version  string    `json:"version,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	At       time.Time `json:"timestamp"`
}

func availability(status, reason string, id identity) []byte {
	b, _ := json.Marshal(Availability{
		Status:   status,
		ClientID: id.clientID,
		Version:  id.version,
		Reason:   reason,
		At:       time.Now().UTC().Truncate(time.Second),
	})
	return b
}

// identity is what the bridge announces about itself.
type identity struct {
	clientID string
	version  string
}

func brokerURL(b config.MQTTBrokerConfig) string {
	scheme := "tcp"
	if b.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, b.Host, b.Port)
}

// newClientOptions maps the mqtt config section onto paho options. The
// last will marks the bridge offline if it drops without calling Close.
func newClientOptions(cfg config.MQTTConfig, topics Topics, id identity) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions().
		AddBroker(brokerURL(cfg.Broker)).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second).
		SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second).
		SetConnectTimeout(connectTimeout).
		SetKeepAlive(keepAlive)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	opts.SetBinaryWill(topics.Status(), availability(StatusOffline, "connection lost", id), 1, true)
	return opts
}
