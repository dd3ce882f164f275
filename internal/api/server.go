package api

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/smazurov/kvsnode/internal/logging"
	"github.com/smazurov/kvsnode/internal/streams"
)

const authRealm = `Basic realm="kvsnode API"`

// Invoker runs one invocation request through the controller and publishes
// the response.
type Invoker interface {
	InvokeResponse(ctx context.Context, request map[string]any) (streams.Response, error)
}

// Options configures the API server.
type Options struct {
	AuthUsername      string
	AuthPassword      string
	CORSOrigins       []string
	Invoker           Invoker
	PrometheusHandler http.Handler // Optional Prometheus metrics handler
}

// Server is the HTTP invocation surface.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	invoker    Invoker
	options    *Options
	logger     *slog.Logger
}

// NewServer creates the API server on a Go 1.22+ ServeMux.
func NewServer(opts *Options) *Server {
	mux := http.NewServeMux()

	corsConfig := DefaultCORSConfig()
	if len(opts.CORSOrigins) > 0 {
		corsConfig.AllowOrigins = opts.CORSOrigins
	}
	AddCORSHandler(mux, corsConfig)

	config := huma.DefaultConfig("kvsnode API", "1.0.0")
	config.Info.Description = "Control surface for the Kinesis Video Streams node"
	config.Servers = []*huma.Server{}
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"basicAuth": {
			Type:   "http",
			Scheme: "basic",
		},
	}

	api := humago.New(mux, config)

	server := &Server{
		api:     api,
		mux:     mux,
		invoker: opts.Invoker,
		options: opts,
		logger:  logging.GetLogger("api"),
	}

	api.UseMiddleware(NewCORSMiddleware(corsConfig))
	api.UseMiddleware(HTTPLoggingMiddleware)
	if opts.AuthUsername != "" && opts.AuthPassword != "" {
		api.UseMiddleware(server.basicAuthMiddleware(opts.AuthUsername, opts.AuthPassword))
	}

	// Registered on the mux directly so scrapes skip auth.
	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}

	server.registerRoutes()
	return server
}

// GetMux returns the underlying ServeMux.
func (s *Server) GetMux() *http.ServeMux {
	return s.mux
}

// GetAPI returns the Huma API instance.
func (s *Server) GetAPI() huma.API {
	return s.api
}

// Start serves on addr until Stop is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting API server", "addr", addr)
	s.logger.Info("OpenAPI documentation available", "url", "http://"+addr+"/docs")

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop shuts the server down, waiting for in-flight invocations until ctx
// is done.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server")
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return s.httpServer.Close()
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.registerHealthRoutes()
	s.registerInvokeRoutes()
	s.registerLogRoutes()
}

func (s *Server) basicAuthMiddleware(username, password string) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		op := ctx.Operation()
		if op != nil && len(op.Security) == 0 {
			next(ctx)
			return
		}

		user, pass, err := parseBasicAuth(ctx.Header("Authorization"))
		if err != nil {
			ctx.SetHeader("WWW-Authenticate", authRealm)
			huma.WriteErr(s.api, ctx, http.StatusUnauthorized, err.Error())
			return
		}
		if user != username || pass != password {
			ctx.SetHeader("WWW-Authenticate", authRealm)
			huma.WriteErr(s.api, ctx, http.StatusUnauthorized, "invalid credentials")
			return
		}

		next(ctx)
	}
}

func parseBasicAuth(header string) (string, string, error) {
	if header == "" {
		return "", "", errors.New("authentication required")
	}
	const prefix = "Basic "
	if !strings.HasPrefix(header, prefix) {
		return "", "", errors.New("invalid authentication type")
	}
	decoded, err := base64.StdEncoding.DecodeString(header[len(prefix):])
	if err != nil {
		return "", "", errors.New("invalid credentials format")
	}
	user, pass, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return "", "", errors.New("invalid credentials format")
	}
	return user, pass, nil
}

// withAuth returns the security requirement for basic auth.
func withAuth() []map[string][]string {
	return []map[string][]string{
		{"basicAuth": {}},
	}
}
