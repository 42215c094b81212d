package homeassistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
)

// maxWSMessageSize bounds a single frame. Registry listings on large
// installations run to several megabytes.
const maxWSMessageSize = 16 * 1024 * 1024

// WSClientConfig holds configuration options for WSClient.
type WSClientConfig struct {
	ReconnectConfig ReconnectConfig
	OnReconnect     OnReconnectFunc
	OnDisconnect    OnDisconnectFunc
	AutoReconnect   bool
	// PingInterval of 0 disables health monitoring.
	PingInterval time.Duration
	PingTimeout  time.Duration
}

// DefaultWSClientConfig returns the default WSClient configuration.
func DefaultWSClientConfig() WSClientConfig {
	return WSClientConfig{
		ReconnectConfig: DefaultReconnectConfig(),
		AutoReconnect:   true,
		PingInterval:    30 * time.Second,
		PingTimeout:     10 * time.Second,
	}
}

// WSClient manages an authenticated WebSocket session and correlates
// command results to callers by message id.
type WSClient struct {
	baseURL string
	token   string
	config  WSClientConfig

	connMu sync.RWMutex
	conn   *websocket.Conn

	msgID     atomic.Int64
	pendingMu sync.Mutex
	pending   map[int64]chan *WSResultMessage

	ctx       context.Context
	cancel    context.CancelFunc
	connected atomic.Bool

	reconnectMgr *ReconnectManager

	pingMu     sync.Mutex
	pingCancel context.CancelFunc
	lastPong   atomic.Value // time.Time
}

// NewWSClient creates a client with the default configuration.
func NewWSClient(baseURL, token string) *WSClient {
	return NewWSClientWithConfig(baseURL, token, DefaultWSClientConfig())
}

// NewWSClientWithConfig creates a client with a custom configuration.
func NewWSClientWithConfig(baseURL, token string, config WSClientConfig) *WSClient {
	return &WSClient{
		baseURL:      baseURL,
		token:        token,
		pending:      make(map[int64]chan *WSResultMessage),
		config:       config,
		reconnectMgr: NewReconnectManager(config.ReconnectConfig),
	}
}

// Connect dials, authenticates and starts the read loop.
func (c *WSClient) Connect(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)

	if err := c.dial(); err != nil {
		return err
	}
	c.reconnectMgr.Reset()

	go c.readLoop()

	c.startHealthMonitor()
	return nil
}

// dial opens and authenticates a fresh connection.
func (c *WSClient) dial() error {
	wsURL, err := c.buildWSURL()
	if err != nil {
		return fmt.Errorf("building WebSocket URL: %w", err)
	}

	conn, resp, err := websocket.Dial(c.ctx, wsURL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("dialing WebSocket: %w", err)
	}
	conn.SetReadLimit(maxWSMessageSize)

	if err := c.authenticate(conn); err != nil {
		_ = conn.Close(websocket.StatusProtocolError, "auth failed")
		return fmt.Errorf("authentication: %w", err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	c.connected.Store(true)
	return nil
}

func (c *WSClient) getConn() *websocket.Conn {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.conn
}

// startHealthMonitor pings the current connection until it is replaced or
// the client closes.
func (c *WSClient) startHealthMonitor() {
	if c.config.PingInterval <= 0 {
		return
	}
	conn := c.getConn()
	if conn == nil {
		return
	}

	ctx, cancel := context.WithCancel(c.ctx)
	c.pingMu.Lock()
	if c.pingCancel != nil {
		c.pingCancel()
	}
	c.pingCancel = cancel
	c.pingMu.Unlock()
	c.lastPong.Store(time.Now())

	go c.healthLoop(ctx, conn)
}

func (c *WSClient) stopHealthMonitor() {
	c.pingMu.Lock()
	defer c.pingMu.Unlock()
	if c.pingCancel != nil {
		c.pingCancel()
		c.pingCancel = nil
	}
}

// healthLoop only drops a dead connection. The read loop sees the failed
// Read and runs the reconnect.
func (c *WSClient) healthLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.connected.Load() {
				continue
			}

			if lastPong, ok := c.lastPong.Load().(time.Time); ok &&
				time.Since(lastPong) > c.config.PingInterval+c.config.PingTimeout {
				_ = conn.CloseNow()
				return
			}

			pingCtx, pingCancel := context.WithTimeout(ctx, c.config.PingTimeout)
			err := conn.Ping(pingCtx)
			pingCancel()

			if err != nil {
				if ctx.Err() != nil {
					return
				}
				_ = conn.CloseNow()
				return
			}
			c.lastPong.Store(time.Now())
		}
	}
}

// buildWSURL converts the base URL to the WebSocket API endpoint.
func (c *WSClient) buildWSURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}

	u.Path = "/api/websocket"
	return u.String(), nil
}

// authenticate runs the auth_required / auth / auth_ok handshake.
func (c *WSClient) authenticate(conn *websocket.Conn) error {
	_, data, err := conn.Read(c.ctx)
	if err != nil {
		return fmt.Errorf("reading auth_required: %w", err)
	}
	msgType, err := ParseMessageType(data)
	if err != nil {
		return fmt.Errorf("parsing auth_required type: %w", err)
	}
	if msgType != msgAuthRequired {
		return fmt.Errorf("expected %s, got %s", msgAuthRequired, msgType)
	}

	authData, err := json.Marshal(WSAuthMessage{Type: msgAuth, AccessToken: c.token})
	if err != nil {
		return fmt.Errorf("marshaling auth message: %w", err)
	}
	if err := conn.Write(c.ctx, websocket.MessageText, authData); err != nil {
		return fmt.Errorf("sending auth message: %w", err)
	}

	_, data, err = conn.Read(c.ctx)
	if err != nil {
		return fmt.Errorf("reading auth response: %w", err)
	}
	msgType, err = ParseMessageType(data)
	if err != nil {
		return fmt.Errorf("parsing auth response type: %w", err)
	}

	switch msgType {
	case msgAuthOK:
		return nil
	case msgAuthInvalid:
		var invalid WSAuthInvalid
		if err := json.Unmarshal(data, &invalid); err != nil || invalid.Message == "" {
			return errors.New("authentication failed: invalid credentials")
		}
		return fmt.Errorf("authentication failed: %s", invalid.Message)
	default:
		return fmt.Errorf("unexpected auth response type: %s", msgType)
	}
}

func (c *WSClient) readLoop() {
	defer func() {
		c.connected.Store(false)
		c.closePendingChannels()
	}()

	for {
		conn := c.getConn()
		if conn == nil || c.ctx.Err() != nil {
			return
		}

		_, data, err := conn.Read(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.connected.Store(false)
			c.stopHealthMonitor()
			c.closePendingChannels()
			if c.config.OnDisconnect != nil {
				c.config.OnDisconnect(err)
			}
			if !c.config.AutoReconnect {
				return
			}
			if err := c.reconnect(); err != nil {
				return
			}
			continue
		}

		if msgType, err := ParseMessageType(data); err == nil && msgType == msgResult {
			c.handleResultMessage(data)
		}
	}
}

// reconnect re-dials with backoff. Only the read loop calls it, so at most
// one reconnect runs at a time. Commands in flight fail; callers retry.
func (c *WSClient) reconnect() error {
	c.connMu.Lock()
	if c.conn != nil {
		_ = c.conn.CloseNow()
	}
	c.connMu.Unlock()

	for c.reconnectMgr.ShouldReconnect() {
		if err := c.reconnectMgr.WaitForReconnect(c.ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
				errors.Is(err, ErrMaxReconnectAttempts) {
				return err
			}
			continue
		}

		if err := c.dial(); err != nil {
			continue
		}

		attempts := c.reconnectMgr.Attempts()
		c.reconnectMgr.Reset()

		c.startHealthMonitor()
		if c.config.OnReconnect != nil {
			go c.config.OnReconnect(attempts)
		}
		return nil
	}

	return ErrMaxReconnectAttempts
}

func (c *WSClient) handleResultMessage(data []byte) {
	var result WSResultMessage
	if err := json.Unmarshal(data, &result); err != nil {
		return
	}

	c.pendingMu.Lock()
	ch, ok := c.pending[result.ID]
	c.pendingMu.Unlock()

	if ok {
		select {
		case ch <- &result:
		default:
		}
	}
}

func (c *WSClient) closePendingChannels() {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()

	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

// SendCommand sends a command and waits for its result. A failed result is
// returned as *APIError.
func (c *WSClient) SendCommand(ctx context.Context, msgType string, payload map[string]any) (*WSResultMessage, error) {
	conn := c.getConn()
	if !c.connected.Load() || conn == nil {
		return nil, ErrNotConnected
	}

	id := c.msgID.Add(1)
	responseChan := make(chan *WSResultMessage, 1)

	c.pendingMu.Lock()
	c.pending[id] = responseChan
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	data, err := json.Marshal(&WSCommandWithPayload{ID: id, Type: msgType, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("marshaling command: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return nil, fmt.Errorf("sending command: %w", err)
	}

	select {
	case result, ok := <-responseChan:
		if !ok {
			return nil, errors.New("connection closed while waiting for response")
		}
		if !result.Success {
			apiErr := &APIError{Command: msgType, Code: "unknown_error"}
			if result.Error != nil {
				apiErr.Code, apiErr.Message = result.Error.Code, result.Error.Message
			}
			return nil, apiErr
		}
		return result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close ends the session and stops reconnection attempts.
func (c *WSClient) Close() error {
	c.stopHealthMonitor()
	c.reconnectMgr.Stop()
	if c.cancel != nil {
		c.cancel()
	}

	c.connected.Store(false)
	if conn := c.getConn(); conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "client closing")
	}
	return nil
}

// IsConnected reports whether the session is authenticated.
func (c *WSClient) IsConnected() bool {
	return c.connected.Load()
}

// IsHealthy reports whether the session is up and answered a recent ping.
func (c *WSClient) IsHealthy() bool {
	if !c.connected.Load() {
		return false
	}
	if c.config.PingInterval == 0 {
		return true
	}
	lastPong, ok := c.lastPong.Load().(time.Time)
	if !ok {
		return true
	}
	return time.Since(lastPong) <= c.config.PingInterval+c.config.PingTimeout
}
