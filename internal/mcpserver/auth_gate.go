package mcpserver

import (
	"crypto/subtle"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ca-srg/hybridgate/internal/metrics"
)

const unauthorizedBody = `{"error":"Unauthorized"}`

// AuthGate rejects every request whose shared-secret header does not match
// the configured secret. Paths in exemptPaths pass through unchecked.
type AuthGate struct {
	header      string
	secret      []byte
	exemptPaths map[string]struct{}
	logger      *log.Logger
}

// NewAuthGate builds a gate for the given header name and secret. An empty
// secret is a startup error.
func NewAuthGate(header, secret string, exemptPaths ...string) (*AuthGate, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, fmt.Errorf("auth header name cannot be empty")
	}
	if secret == "" {
		return nil, fmt.Errorf("shared secret is not configured")
	}

	exempt := make(map[string]struct{}, len(exemptPaths))
	for _, p := range exemptPaths {
		exempt[p] = struct{}{}
	}

	return &AuthGate{
		header:      header,
		secret:      []byte(secret),
		exemptPaths: exempt,
		logger:      log.New(os.Stdout, "[AuthGate] ", log.LstdFlags),
	}, nil
}

// SetLogger replaces the gate logger.
func (g *AuthGate) SetLogger(logger *log.Logger) {
	if logger != nil {
		g.logger = logger
	}
}

// Authorized reports whether r carries the shared secret.
func (g *AuthGate) Authorized(r *http.Request) bool {
	presented := r.Header.Get(g.header)
	if presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), g.secret) == 1
}

// Middleware wraps next with the shared-secret check.
func (g *AuthGate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := g.exemptPaths[r.URL.Path]; ok {
			next.ServeHTTP(w, r)
			return
		}

		if !g.Authorized(r) {
			reason := "invalid"
			if r.Header.Get(g.header) == "" {
				reason = "missing"
			}
			g.logger.Printf("Rejected %s %s: %s %s header client_ip=%s request_id=%s",
				r.Method, r.URL.Path, reason, g.header, clientIP(r), requestIDFromHeader(r.Header))

			metrics.RecordInvocation(metrics.OutcomeRejected)
			recordMCPMetrics(r.Context(), []attribute.KeyValue{
				attribute.String("mcp.path", r.URL.Path),
				attribute.String("mcp.outcome", string(metrics.OutcomeRejected)),
			}, 0, "unauthorized")

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			if _, err := w.Write([]byte(unauthorizedBody)); err != nil {
				g.logger.Printf("Failed to write error response: %v", err)
			}
			return
		}

		next.ServeHTTP(w, r)
	})
}
