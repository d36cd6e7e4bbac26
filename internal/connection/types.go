// Package connection is the charge point's single outbound WebSocket
// connection to a CSMS (spec's transport-is-out-of-scope-but-a-concrete-
// default-adapter-is-in-scope decision, recorded in SPEC_FULL.md).
// Adapted from the teacher's internal/connection, which managed a pool of
// many inbound station connections for a CSMS simulator; a charge point
// only ever dials one URL, so the pool/manager fan-out is gone and
// WebSocketClient becomes the single Connection this package exposes.
package connection

import (
	"time"
)

// State is the lifecycle of the outbound connection.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateError        State = "error"
	StateClosed       State = "closed"
)

// Config holds configuration for the connection to the CSMS.
type Config struct {
	URL               string
	StationID         string
	ProtocolVersion   string // "1.6", "2.0.1"
	Subprotocol       string // derived from ProtocolVersion if empty
	ConnectionTimeout time.Duration
	WriteTimeout      time.Duration
	ReadTimeout       time.Duration
	PingInterval      time.Duration
	PongTimeout       time.Duration

	MaxReconnectAttempts int
	ReconnectBackoff     time.Duration
	ReconnectMaxBackoff  time.Duration

	TLSEnabled    bool
	TLSCACert     string
	TLSClientCert string
	TLSClientKey  string
	TLSSkipVerify bool

	BasicAuthUsername string
	BasicAuthPassword string
	BearerToken       string

	// Callbacks, invoked from the connection's own goroutines -- callers
	// (internal/runtime.Loop) must hand these off to a channel rather
	// than touching engine/journal state directly from inside them.
	OnConnected    func()
	OnDisconnected func(error)
	OnMessage      func([]byte)
	OnError        func(error)
}

// Stats holds statistics about the connection.
type Stats struct {
	State             State
	ConnectedAt       *time.Time
	DisconnectedAt    *time.Time
	LastMessageAt     *time.Time
	ReconnectAttempts int
	MessagesSent      int64
	MessagesReceived  int64
	BytesSent         int64
	BytesReceived     int64
	LastError         string
}

type wireMessageType int

const (
	textMessage  wireMessageType = 1
	closeMessage wireMessageType = 8
	pingMessage  wireMessageType = 9
)

type outboundMessage struct {
	kind wireMessageType
	data []byte
}
