// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// This file implements Authorization Server Metadata as described in
// RFC 8414, https://www.rfc-editor.org/rfc/rfc8414.html, restricted to the
// fields MCP clients and the fallback-endpoint logic in authorization_code.go
// actually consult.

package oauthex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const defaultAuthServerMetadataURI = "/.well-known/oauth-authorization-server"

// AuthServerMeta is an OAuth 2.0 Authorization Server Metadata document
// (RFC 8414), as published at an authorization server's well-known URI.
type AuthServerMeta struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	RegistrationEndpoint              string   `json:"registration_endpoint,omitempty"`
	ScopesSupported                   []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported            []string `json:"response_types_supported,omitempty"`
	GrantTypesSupported               []string `json:"grant_types_supported,omitempty"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported,omitempty"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported,omitempty"`
	// ClientIDMetadataDocumentSupported is a non-standard extension (SEP-991)
	// some MCP authorization servers advertise to opt into resolving a
	// client ID as a URL to a client metadata document, in lieu of dynamic
	// registration.
	ClientIDMetadataDocumentSupported bool `json:"client_id_metadata_document_supported,omitempty"`
}

// RequiresPKCE reports whether the authorization server's metadata
// advertises support for PKCE's S256 code challenge method, which the MCP
// authorization spec requires of every compliant server.
func (m *AuthServerMeta) RequiresPKCE() bool {
	for _, method := range m.CodeChallengeMethodsSupported {
		if method == "S256" {
			return true
		}
	}
	return false
}

// GetAuthServerMeta fetches and parses the authorization server metadata
// document for the server at issuer, using c (or http.DefaultClient if c is
// nil). It returns (nil, nil) if the well-known document is not found,
// signaling callers to fall back to the 2025-03-26 spec's predefined
// endpoints.
func GetAuthServerMeta(ctx context.Context, issuer string, c *http.Client) (*AuthServerMeta, error) {
	if c == nil {
		c = http.DefaultClient
	}
	metaURL := strings.TrimRight(issuer, "/") + defaultAuthServerMetadataURI
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metaURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: unexpected status %s", metaURL, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("GET %s: reading body: %w", metaURL, err)
	}
	var meta AuthServerMeta
	if err := json.Unmarshal(body, &meta); err != nil {
		return nil, fmt.Errorf("GET %s: decoding body: %w", metaURL, err)
	}
	return &meta, nil
}
