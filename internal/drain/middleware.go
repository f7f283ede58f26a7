package drain

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/flywheel-gateway/control-plane/internal/httperror"
)

var mutatingMethods = map[string]bool{
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// MiddlewareConfig names the allow-listed path prefixes that bypass the
// gate regardless of mode (spec §4.4 "An allow-list of paths (default:
// health, maintenance control) bypasses the gate").
type MiddlewareConfig struct {
	AllowPaths []string
}

// DefaultMiddlewareConfig allow-lists the health and maintenance-control
// endpoints defined in internal/transport/httpapi.
func DefaultMiddlewareConfig() MiddlewareConfig {
	return MiddlewareConfig{AllowPaths: []string{"/health", "/healthz", "/internal/maintenance"}}
}

func (cfg MiddlewareConfig) allowed(path string) bool {
	for _, prefix := range cfg.AllowPaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Middleware gates mutating HTTP methods while in maintenance or
// draining mode, and tracks in-flight requests for every non-allow-
// listed request so the shutdown sequence can observe drain completion
// (spec §4.4).
func Middleware(c *Controller, cfg MiddlewareConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.allowed(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			mode := c.Mode()
			if mutatingMethods[r.Method] && mode != ModeRunning {
				code := "MAINTENANCE_MODE"
				if mode == ModeDraining {
					code = "DRAINING"
				}
				if retryAfter := c.RetryAfterSeconds(); retryAfter > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				}
				httperror.Write(w, http.StatusServiceUnavailable, code, "server is "+string(mode), "retry")
				return
			}

			c.TrackRequestStart()
			defer c.TrackRequestEnd()
			next.ServeHTTP(w, r)
		})
	}
}

// AllowWebSocketUpgrade reports whether a WS upgrade should proceed
// (spec §4.4 "New WS upgrades are refused with 503" while draining).
func (c *Controller) AllowWebSocketUpgrade() bool {
	return c.Mode() != ModeDraining
}
