package nats

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// RandomPort asks the embedded server to pick a free port.
const RandomPort = server.RANDOM_PORT

const readyTimeout = 5 * time.Second

// ServerOptions configures the embedded NATS server.
type ServerOptions struct {
	Port   int
	Host   string
	Name   string
	Logger *slog.Logger
}

// DefaultServerOptions returns defaults for the embedded server.
func DefaultServerOptions() ServerOptions {
	return ServerOptions{
		Port: 4222,
		Host: "127.0.0.1",
		Name: "kvsnode",
	}
}

// Server is an embedded NATS broker for devices without one.
type Server struct {
	ns     *server.Server
	opts   ServerOptions
	logger *slog.Logger
}

// NewServer creates a new embedded NATS server.
func NewServer(opts ServerOptions) *Server {
	defaults := DefaultServerOptions()
	if opts.Port == 0 {
		opts.Port = defaults.Port
	}
	if opts.Host == "" {
		opts.Host = defaults.Host
	}
	if opts.Name == "" {
		opts.Name = defaults.Name
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		opts:   opts,
		logger: logger.With("component", "nats-server"),
	}
}

// Start starts the embedded NATS server and waits for it to be ready.
func (s *Server) Start() error {
	nsOpts := &server.Options{
		Host:           s.opts.Host,
		Port:           s.opts.Port,
		ServerName:     s.opts.Name,
		NoLog:          true, // We handle logging ourselves
		NoSigs:         true, // Don't handle signals (main process does this)
		MaxControlLine: 4096,
		MaxPayload:     64 * 1024,
	}

	ns, err := server.NewServer(nsOpts)
	if err != nil {
		return fmt.Errorf("failed to create NATS server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(readyTimeout) {
		ns.Shutdown()
		return fmt.Errorf("NATS server failed to start within %s", readyTimeout)
	}

	s.ns = ns
	s.logger.Info("NATS server started", "url", s.ClientURL())

	return nil
}

// Stop gracefully shuts down the NATS server.
func (s *Server) Stop() {
	if s.ns != nil {
		s.logger.Info("Stopping NATS server")
		s.ns.Shutdown()
		s.ns.WaitForShutdown()
		s.ns = nil
	}
}

// ClientURL returns the URL clients should use to connect.
func (s *Server) ClientURL() string {
	if s.ns == nil {
		return fmt.Sprintf("nats://%s:%d", s.opts.Host, s.opts.Port)
	}
	return s.ns.ClientURL()
}

// IsRunning returns true if the server is running and accepting connections.
func (s *Server) IsRunning() bool {
	return s.ns != nil && s.ns.Running()
}

// NumClients returns the number of connected clients.
func (s *Server) NumClients() int {
	if s.ns == nil {
		return 0
	}
	return s.ns.NumClients()
}
