package mqtt

import (
	"strings"
	"testing"

	"github.com/nerrad567/labrig/internal/infrastructure/config"
)

func TestBuildClientOptions(t *testing.T) {
	cfg := config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "broker.lab",
			Port:     1883,
			ClientID: "labrig-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     60,
		},
	}

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 {
		t.Fatalf("expected 1 broker, got %d", len(opts.Servers))
	}
	if got := opts.Servers[0].String(); got != "tcp://broker.lab:1883" {
		t.Errorf("broker URL = %q, want tcp://broker.lab:1883", got)
	}
	if opts.ClientID != "labrig-test" {
		t.Errorf("ClientID = %q, want labrig-test", opts.ClientID)
	}
	if !opts.AutoReconnect {
		t.Error("expected AutoReconnect to be enabled")
	}
}

func TestBuildClientOptions_TLS(t *testing.T) {
	cfg := config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host: "broker.lab",
			Port: 8883,
			TLS:  true,
		},
	}

	opts := buildClientOptions(cfg)

	if got := opts.Servers[0].Scheme; got != "ssl" {
		t.Errorf("scheme = %q, want ssl", got)
	}
	if opts.TLSConfig == nil {
		t.Error("expected TLS config to be set")
	}
}

func TestOnlineOfflinePayloads(t *testing.T) {
	online := buildOnlinePayload("labrig-core")
	if !strings.Contains(online, `"status":"online"`) {
		t.Errorf("online payload missing status: %s", online)
	}
	if !strings.Contains(online, "labrig-core") {
		t.Errorf("online payload missing client id: %s", online)
	}

	offline := buildOfflinePayload("labrig-core")
	if !strings.Contains(offline, `"reason":"graceful_shutdown"`) {
		t.Errorf("offline payload missing reason: %s", offline)
	}
}
