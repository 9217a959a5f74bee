// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package auth

import (
	"encoding/json"
	"net/http"

	"github.com/mcp-go-core/sdk/oauthex"
)

// ProtectedResourceMetadataHandler serves metadata at the well-known
// protected-resource URI (RFC 9728 §3), letting clients discover which
// authorization server(s) can issue tokens this resource server accepts.
// Mount it at "/.well-known/oauth-protected-resource".
func ProtectedResourceMetadataHandler(metadata *oauthex.ProtectedResourceMetadata) http.Handler {
	body, err := json.Marshal(metadata)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// CORS preflight: browser-based MCP clients fetch this document via
		// fetch(), which requires a permissive preflight response.
		w.Header().Set("Access-Control-Allow-Origin", "*")
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if err != nil {
			http.Error(w, "invalid protected resource metadata", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	})
}
