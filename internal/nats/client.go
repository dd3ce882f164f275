package nats

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// ErrNotConnected is returned when publishing without a connection.
var ErrNotConnected = errors.New("nats: not connected")

// Client is a NATS connection shared by the publisher, the command server
// and the event bridge.
type Client struct {
	url       string
	name      string
	conn      *nats.Conn
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool
}

// NewClient creates a client for url. Name identifies the connection on
// the server.
func NewClient(url, name string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if name == "" {
		name = "kvsnode"
	}

	return &Client{
		url:    url,
		name:   name,
		logger: logger.With("component", "nats-client"),
	}
}

// Connect establishes a connection to the NATS server. Once connected the
// client reconnects forever.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	opts := []nats.Option{
		nats.Name(c.name),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(-1), // Infinite reconnects
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			c.setConnected(false)
			if err != nil {
				c.logger.Warn("NATS disconnected", "error", err)
			} else {
				c.logger.Debug("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			c.setConnected(true)
			c.logger.Info("NATS reconnected")
		}),
		nats.ConnectHandler(func(_ *nats.Conn) {
			c.logger.Debug("NATS connected")
		}),
	}

	conn, err := nats.Connect(c.url, opts...)
	if err != nil {
		c.logger.Warn("Failed to connect to NATS", "url", c.url, "error", err)
		return err
	}

	c.conn = conn
	c.connected = true
	c.logger.Info("Connected to NATS", "url", c.url)
	return nil
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

// Conn returns the underlying connection, or nil before Connect.
func (c *Client) Conn() *nats.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

// IsConnected returns true if connected to NATS.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && c.conn != nil
}

// Close drains pending messages and closes the connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		if err := c.conn.Drain(); err != nil {
			c.conn.Close()
		}
		c.conn = nil
	}

	c.connected = false
	c.logger.Debug("NATS client closed")
}
