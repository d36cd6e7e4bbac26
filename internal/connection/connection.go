package connection

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Connection is the charge point's one outbound WebSocket session to its
// configured CSMS. Grounded on the teacher's WebSocketClient: same
// read/write/ping pump split and exponential-backoff reconnect, trimmed
// of the multi-station bookkeeping (StationID is kept only to populate
// log fields and the HTTP path, not as a map key).
type Connection struct {
	config Config
	logger *slog.Logger

	conn           *websocket.Conn
	state          State
	stateMu        sync.RWMutex
	reconnectCount int
	connectedAt    *time.Time
	disconnectedAt *time.Time
	lastMessageAt  *time.Time

	messagesSent     int64
	messagesReceived int64
	bytesSent        int64
	bytesReceived    int64
	statsMu          sync.RWMutex

	ctx       context.Context
	cancel    context.CancelFunc
	sendQueue chan outboundMessage
	closeOnce sync.Once

	lastError   string
	lastErrorMu sync.RWMutex
}

// New creates a Connection. Call Connect to dial the CSMS.
func New(cfg Config, logger *slog.Logger) *Connection {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.ConnectionTimeout == 0 {
		cfg.ConnectionTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	if cfg.PingInterval == 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.PongTimeout == 0 {
		cfg.PongTimeout = 10 * time.Second
	}
	if cfg.MaxReconnectAttempts == 0 {
		cfg.MaxReconnectAttempts = 5
	}
	if cfg.ReconnectBackoff == 0 {
		cfg.ReconnectBackoff = 5 * time.Second
	}
	if cfg.ReconnectMaxBackoff == 0 {
		cfg.ReconnectMaxBackoff = 60 * time.Second
	}
	if cfg.Subprotocol == "" {
		cfg.Subprotocol = subprotocolFor(cfg.ProtocolVersion)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		config:    cfg,
		logger:    logger,
		state:     StateDisconnected,
		ctx:       ctx,
		cancel:    cancel,
		sendQueue: make(chan outboundMessage, 100),
	}
}

// Connect dials the CSMS and starts the read/write/ping pumps.
func (c *Connection) Connect() error {
	c.setState(StateConnecting)

	c.logger.Info("connecting to CSMS",
		"station_id", c.config.StationID,
		"url", c.config.URL,
		"protocol", c.config.ProtocolVersion,
	)

	headers := http.Header{}
	if c.config.BasicAuthUsername != "" {
		headers.Set("Authorization", basicAuth(c.config.BasicAuthUsername, c.config.BasicAuthPassword))
	} else if c.config.BearerToken != "" {
		headers.Set("Authorization", "Bearer "+c.config.BearerToken)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: c.config.ConnectionTimeout,
		Subprotocols:     []string{c.config.Subprotocol},
	}

	if c.config.TLSEnabled {
		tlsConfig, err := c.createTLSConfig()
		if err != nil {
			c.setError(fmt.Errorf("connection: tls config: %w", err))
			c.setState(StateError)
			return err
		}
		dialer.TLSClientConfig = tlsConfig
	}

	conn, resp, err := dialer.Dial(c.config.URL, headers)
	if err != nil {
		c.setError(fmt.Errorf("connection: dial: %w", err))
		c.setState(StateError)
		return err
	}
	defer resp.Body.Close()

	c.conn = conn
	now := time.Now()
	c.connectedAt = &now
	c.setState(StateConnected)
	c.reconnectCount = 0

	c.logger.Info("connected to CSMS", "station_id", c.config.StationID, "subprotocol", conn.Subprotocol())

	if c.config.OnConnected != nil {
		c.config.OnConnected()
	}

	go c.readPump()
	go c.writePump()
	go c.pingPump()

	return nil
}

// Disconnect closes the connection and suppresses automatic reconnection.
func (c *Connection) Disconnect() error {
	c.closeOnce.Do(func() {
		c.logger.Info("disconnecting from CSMS", "station_id", c.config.StationID)

		c.cancel()

		if c.conn != nil {
			if err := c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")); err != nil {
				c.logger.Warn("failed to send close message", "error", err)
			}
			if err := c.conn.Close(); err != nil {
				c.logger.Warn("failed to close connection", "error", err)
			}
		}

		now := time.Now()
		c.disconnectedAt = &now
		c.setState(StateClosed)
	})
	return nil
}

// Send queues a text frame for delivery.
func (c *Connection) Send(data []byte) error {
	if c.GetState() != StateConnected {
		return fmt.Errorf("connection: not established")
	}

	select {
	case c.sendQueue <- outboundMessage{kind: textMessage, data: data}:
		return nil
	case <-c.ctx.Done():
		return fmt.Errorf("connection: closed")
	case <-time.After(5 * time.Second):
		return fmt.Errorf("connection: send queue full")
	}
}

func (c *Connection) readPump() {
	defer func() {
		c.handleDisconnect(fmt.Errorf("read pump stopped"))
	}()

	c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		return nil
	})

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Error("websocket read error", "error", err)
			}
			c.handleDisconnect(err)
			return
		}

		c.statsMu.Lock()
		c.messagesReceived++
		c.bytesReceived += int64(len(message))
		now := time.Now()
		c.lastMessageAt = &now
		c.statsMu.Unlock()

		switch messageType {
		case websocket.TextMessage:
			if c.config.OnMessage != nil {
				c.config.OnMessage(message)
			}
		case websocket.BinaryMessage:
			c.logger.Warn("received unexpected binary message", "station_id", c.config.StationID)
		case websocket.CloseMessage:
			c.handleDisconnect(nil)
			return
		}

		c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	}
}

func (c *Connection) writePump() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case msg, ok := <-c.sendQueue:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := c.conn.WriteMessage(int(msg.kind), msg.data); err != nil {
				c.logger.Error("failed to write message", "error", err)
				c.handleDisconnect(err)
				return
			}
			c.statsMu.Lock()
			c.messagesSent++
			c.bytesSent += int64(len(msg.data))
			c.statsMu.Unlock()
		}
	}
}

func (c *Connection) pingPump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Warn("failed to send ping", "error", err)
				c.handleDisconnect(err)
				return
			}
		}
	}
}

func (c *Connection) handleDisconnect(err error) {
	c.stateMu.Lock()
	if c.state == StateClosed {
		c.stateMu.Unlock()
		return
	}
	c.stateMu.Unlock()

	now := time.Now()
	c.disconnectedAt = &now
	c.setState(StateDisconnected)

	if err != nil {
		c.setError(err)
	}

	if c.config.OnDisconnected != nil {
		c.config.OnDisconnected(err)
	}

	select {
	case <-c.ctx.Done():
		c.setState(StateClosed)
		return
	default:
	}

	if c.reconnectCount < c.config.MaxReconnectAttempts {
		go c.reconnect()
	} else {
		c.logger.Error("max reconnect attempts reached", "station_id", c.config.StationID)
		c.setState(StateError)
	}
}

func (c *Connection) reconnect() {
	c.setState(StateReconnecting)
	c.reconnectCount++

	backoff := c.config.ReconnectBackoff * time.Duration(1<<uint(c.reconnectCount-1))
	if backoff > c.config.ReconnectMaxBackoff {
		backoff = c.config.ReconnectMaxBackoff
	}

	c.logger.Info("attempting reconnect", "station_id", c.config.StationID, "attempt", c.reconnectCount, "backoff", backoff)
	time.Sleep(backoff)

	if err := c.Connect(); err != nil {
		c.logger.Error("reconnection failed", "station_id", c.config.StationID, "error", err)
	}
}

// GetState returns the current connection state.
func (c *Connection) GetState() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

func (c *Connection) setState(state State) {
	c.stateMu.Lock()
	c.state = state
	c.stateMu.Unlock()
}

// GetStats returns connection statistics.
func (c *Connection) GetStats() Stats {
	c.statsMu.RLock()
	c.stateMu.RLock()
	c.lastErrorMu.RLock()
	defer c.lastErrorMu.RUnlock()
	defer c.stateMu.RUnlock()
	defer c.statsMu.RUnlock()

	return Stats{
		State:             c.state,
		ConnectedAt:       c.connectedAt,
		DisconnectedAt:    c.disconnectedAt,
		LastMessageAt:     c.lastMessageAt,
		ReconnectAttempts: c.reconnectCount,
		MessagesSent:      c.messagesSent,
		MessagesReceived:  c.messagesReceived,
		BytesSent:         c.bytesSent,
		BytesReceived:     c.bytesReceived,
		LastError:         c.lastError,
	}
}

func (c *Connection) setError(err error) {
	c.lastErrorMu.Lock()
	if err != nil {
		c.lastError = err.Error()
		if c.config.OnError != nil {
			c.config.OnError(err)
		}
	}
	c.lastErrorMu.Unlock()
}

func (c *Connection) createTLSConfig() (*tls.Config, error) {
	tlsConfig := &tls.Config{InsecureSkipVerify: c.config.TLSSkipVerify}

	if c.config.TLSCACert != "" {
		caCert, err := os.ReadFile(c.config.TLSCACert)
		if err != nil {
			return nil, fmt.Errorf("read CA cert: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("append CA cert")
		}
		tlsConfig.RootCAs = pool
	}

	if c.config.TLSClientCert != "" && c.config.TLSClientKey != "" {
		cert, err := tls.LoadX509KeyPair(c.config.TLSClientCert, c.config.TLSClientKey)
		if err != nil {
			return nil, fmt.Errorf("load client cert: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

func subprotocolFor(version string) string {
	switch version {
	case "2.0.1":
		return "ocpp2.0.1"
	default:
		return "ocpp1.6"
	}
}

func basicAuth(username, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}
