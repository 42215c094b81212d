package homeassistant

import (
	"context"
	"fmt"
)

// ClientCloser is implemented by clients holding a connection.
type ClientCloser interface {
	Close() error
}

// ConnectedClient is a Client bound to a live WSClient.
type ConnectedClient struct {
	*wsClientImpl
	ws *WSClient
}

var (
	_ Client       = (*ConnectedClient)(nil)
	_ ClientCloser = (*ConnectedClient)(nil)
)

// Close closes the underlying WebSocket connection.
func (c *ConnectedClient) Close() error {
	return c.ws.Close()
}

// WS exposes the session for health checks and reconnect hooks.
func (c *ConnectedClient) WS() *WSClient {
	return c.ws
}

// NewConnectedWSClient creates a WebSocket client and connects it. A nil
// config selects DefaultWSClientConfig.
func NewConnectedWSClient(ctx context.Context, baseURL, token string, config *WSClientConfig) (*ConnectedClient, error) {
	cfg := DefaultWSClientConfig()
	if config != nil {
		cfg = *config
	}
	ws := NewWSClientWithConfig(baseURL, token, cfg)

	if err := ws.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connecting to Home Assistant WebSocket API: %w", err)
	}
	return &ConnectedClient{wsClientImpl: &wsClientImpl{ws: ws}, ws: ws}, nil
}

// CloseClient closes c if it holds a connection.
func CloseClient(c Client) error {
	if closer, ok := c.(ClientCloser); ok {
		return closer.Close()
	}
	return nil
}
