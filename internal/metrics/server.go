// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is a standalone HTTP listener serving /metrics, independent of the
// gateway's main listener, optionally protected by HTTP basic auth.
type Server struct {
	manager        *Manager
	basicAuthUsers map[string]string
	server         *http.Server
}

// NewMetricsServer builds a metrics server bound to host:port. basicAuthUsers
// is a comma-separated "user:pass" list split at the first colon; entries
// without a colon, or with an empty user or password, are skipped. An empty
// string disables authentication.
func NewMetricsServer(manager *Manager, host string, port int, basicAuthUsers string) *Server {
	users := parseBasicAuthUsers(basicAuthUsers)

	mux := http.NewServeMux()
	handler := promhttp.HandlerFor(manager.GetRegistry(), promhttp.HandlerOpts{})
	if len(users) > 0 {
		handler = BasicAuth("quackgate-metrics", users)(handler)
	}
	mux.Handle("/metrics", handler)

	return &Server{
		manager:        manager,
		basicAuthUsers: users,
		server: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", host, port),
			Handler: mux,
		},
	}
}

func parseBasicAuthUsers(raw string) map[string]string {
	users := make(map[string]string)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			continue
		}
		users[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return users
}

// BasicAuth wraps handler with HTTP basic auth checked against users.
func BasicAuth(realm string, users map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username, password, ok := r.BasicAuth()
			if !ok || !validCredentials(users, username, password) {
				w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Basic realm=%q`, realm))
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func validCredentials(users map[string]string, username, password string) bool {
	want, ok := users[username]
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(password)) == 1
}

// ListenAndServe starts the metrics server; it blocks until the server stops.
func (s *Server) ListenAndServe() error {
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop closes the listener immediately.
func (s *Server) Stop() error {
	return s.server.Close()
}

// Shutdown gracefully drains in-flight requests before closing the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
