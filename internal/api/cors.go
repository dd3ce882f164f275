package api

import (
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

// CORSConfig holds CORS configuration. AllowOrigins lists exact origins;
// "*" admits any origin.
type CORSConfig struct {
	AllowOrigins []string
	AllowMethods []string
	AllowHeaders []string
	MaxAge       int
}

// DefaultCORSConfig allows any origin to drive the invocation API.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Content-Type", "Authorization", "Accept"},
		MaxAge:       86400,
	}
}

type corsHeaders struct {
	config       CORSConfig
	allowMethods string
	allowHeaders string
	maxAge       string
}

func newCORSHeaders(config CORSConfig) *corsHeaders {
	return &corsHeaders{
		config:       config,
		allowMethods: strings.Join(config.AllowMethods, ", "),
		allowHeaders: strings.Join(config.AllowHeaders, ", "),
		maxAge:       strconv.Itoa(config.MaxAge),
	}
}

// allowOrigin returns the Access-Control-Allow-Origin value for origin, or
// "" when the origin is not admitted.
func (c *corsHeaders) allowOrigin(origin string) string {
	if slices.Contains(c.config.AllowOrigins, "*") {
		return "*"
	}
	if origin != "" && slices.Contains(c.config.AllowOrigins, origin) {
		return origin
	}
	return ""
}

// apply writes the CORS headers for origin through set. Echoed origins
// also get Vary: Origin so caches keep responses apart.
func (c *corsHeaders) apply(origin string, set func(name, value string)) bool {
	allowed := c.allowOrigin(origin)
	if allowed == "" {
		return false
	}
	set("Access-Control-Allow-Origin", allowed)
	if allowed != "*" {
		set("Vary", "Origin")
	}
	set("Access-Control-Allow-Methods", c.allowMethods)
	set("Access-Control-Allow-Headers", c.allowHeaders)
	set("Access-Control-Max-Age", c.maxAge)
	return true
}

// NewCORSMiddleware creates CORS middleware with the given configuration
func NewCORSMiddleware(config CORSConfig) func(huma.Context, func(huma.Context)) {
	headers := newCORSHeaders(config)

	return func(ctx huma.Context, next func(huma.Context)) {
		headers.apply(ctx.Header("Origin"), ctx.SetHeader)

		if ctx.Method() == http.MethodOptions {
			ctx.SetStatus(http.StatusNoContent)
			return
		}
		next(ctx)
	}
}

// AddCORSHandler answers preflight requests on the mux. Huma middleware
// never sees OPTIONS for paths without an OPTIONS operation. Preflights
// from origins that are not admitted get 403.
func AddCORSHandler(mux *http.ServeMux, config CORSConfig) {
	headers := newCORSHeaders(config)

	mux.HandleFunc("OPTIONS /", func(w http.ResponseWriter, r *http.Request) {
		if !headers.apply(r.Header.Get("Origin"), w.Header().Set) {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}
