// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package middleware

import (
	"net/http"

	"github.com/rs/cors"
)

// PermissiveCORS allows any origin, matching the Network Facade's "CORS is
// permissive (*)" contract; there is no session cookie here to protect, so
// credentials are not allowed.
func PermissiveCORS() func(http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		// rs/cors answers preflights with 204 unless told otherwise.
		OptionsSuccessStatus: http.StatusOK,
	})
	return c.Handler
}
