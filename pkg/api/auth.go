package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/psaab/iproute2/pkg/config"
)

// Credential methods, as reported in the rejection counters.
const (
	methodNone   = "none"
	methodBasic  = "basic"
	methodBearer = "bearer"
	methodAPIKey = "api_key"
)

// openRoutes are served without credentials: liveness, scraping and the
// parser status carry no route data.
var openRoutes = map[string]bool{
	"GET /health":        true,
	"GET /metrics":       true,
	"GET /api/v1/status": true,
}

// Auth checks API credentials: HTTP basic users, and API keys sent as a
// bearer token or in X-API-Key.
type Auth struct {
	users map[string]string
	keys  map[string]bool

	mu       sync.Mutex
	rejected map[string]uint64
}

// NewAuth builds the checker from the api section of the configuration.
// It returns nil when no users or keys are configured.
func NewAuth(c config.APIConfig) *Auth {
	if !c.AuthEnabled() {
		return nil
	}
	a := &Auth{
		users:    make(map[string]string, len(c.Users)),
		keys:     make(map[string]bool, len(c.APIKeys)),
		rejected: make(map[string]uint64),
	}
	for u, p := range c.Users {
		a.users[u] = p
	}
	for _, k := range c.APIKeys {
		a.keys[k] = true
	}
	return a
}

// Rejected returns the number of refused requests per credential method.
func (a *Auth) Rejected() map[string]uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]uint64, len(a.rejected))
	for m, n := range a.rejected {
		out[m] = n
	}
	return out
}

// protect wraps h unless pattern is one of the open routes.
func (a *Auth) protect(pattern string, h http.Handler) http.Handler {
	if a == nil || openRoutes[pattern] {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, ok := a.check(r)
		if ok {
			h.ServeHTTP(w, r)
			return
		}
		a.mu.Lock()
		a.rejected[method]++
		a.mu.Unlock()
		slog.Warn("API request rejected", "route", pattern, "method", method, "remote", r.RemoteAddr)

		w.Header().Set("WWW-Authenticate", `Basic realm="routegrammar API"`)
		writeJSON(w, http.StatusUnauthorized, Response{
			Success: false,
			Error:   "authentication required",
		})
	})
}

// check reports which credential the request carried and whether it was
// accepted. Authorization takes precedence over X-API-Key.
func (a *Auth) check(r *http.Request) (string, bool) {
	if user, pass, ok := r.BasicAuth(); ok {
		want, exists := a.users[user]
		return methodBasic, exists && subtle.ConstantTimeCompare([]byte(pass), []byte(want)) == 1
	}
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return methodBearer, a.keys[token]
		}
		return methodBasic, false
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return methodAPIKey, a.keys[key]
	}
	return methodNone, false
}
