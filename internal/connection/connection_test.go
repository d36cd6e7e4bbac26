package connection

import (
	"testing"
	"time"
)

func TestNewAppliesDefaultsAndDerivesSubprotocol(t *testing.T) {
	c := New(Config{StationID: "cp-1", ProtocolVersion: "2.0.1"}, nil)
	if c.config.Subprotocol != "ocpp2.0.1" {
		t.Fatalf("Subprotocol = %q, want ocpp2.0.1", c.config.Subprotocol)
	}
	if c.config.ConnectionTimeout != 30*time.Second {
		t.Fatalf("ConnectionTimeout default = %v", c.config.ConnectionTimeout)
	}
	if c.GetState() != StateDisconnected {
		t.Fatalf("initial state = %v, want Disconnected", c.GetState())
	}
}

func TestSendBeforeConnectFails(t *testing.T) {
	c := New(Config{StationID: "cp-1", ProtocolVersion: "1.6"}, nil)
	if err := c.Send([]byte("hello")); err == nil {
		t.Fatal("expected Send to fail before Connect")
	}
}

func TestSubprotocolFor(t *testing.T) {
	if got := subprotocolFor("2.0.1"); got != "ocpp2.0.1" {
		t.Fatalf("subprotocolFor(2.0.1) = %q", got)
	}
	if got := subprotocolFor("1.6"); got != "ocpp1.6" {
		t.Fatalf("subprotocolFor(1.6) = %q", got)
	}
	if got := subprotocolFor(""); got != "ocpp1.6" {
		t.Fatalf("subprotocolFor(\"\") = %q, want default ocpp1.6", got)
	}
}
