// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// This file implements OAuth 2.0 Dynamic Client Registration as described in
// RFC 7591, https://www.rfc-editor.org/rfc/rfc7591.html, restricted to the
// fields authorization_code.go's dynamic-registration path consults.

package oauthex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// ClientRegistrationMetadata describes a client for dynamic registration
// (RFC 7591 §2).
type ClientRegistrationMetadata struct {
	RedirectURIs            []string `json:"redirect_uris,omitempty"`
	TokenEndpointAuthMethod  string   `json:"token_endpoint_auth_method,omitempty"`
	GrantTypes               []string `json:"grant_types,omitempty"`
	ResponseTypes             []string `json:"response_types,omitempty"`
	ClientName               string   `json:"client_name,omitempty"`
	ClientURI                string   `json:"client_uri,omitempty"`
	Scope                    string   `json:"scope,omitempty"`
}

// RegisterClientResponse is the authorization server's reply to a
// successful dynamic client registration request (RFC 7591 §3.2.1).
type RegisterClientResponse struct {
	ClientID                string `json:"client_id"`
	ClientSecret             string `json:"client_secret,omitempty"`
	ClientIDIssuedAt         int64  `json:"client_id_issued_at,omitempty"`
	ClientSecretExpiresAt    int64  `json:"client_secret_expires_at,omitempty"`
	TokenEndpointAuthMethod  string `json:"token_endpoint_auth_method,omitempty"`
}

// RegisterClient registers a new OAuth client at the authorization server's
// registrationEndpoint, using c (or http.DefaultClient if c is nil).
func RegisterClient(ctx context.Context, registrationEndpoint string, metadata *ClientRegistrationMetadata, c *http.Client) (*RegisterClientResponse, error) {
	if c == nil {
		c = http.DefaultClient
	}
	body, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("oauthex: marshaling registration metadata: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, registrationEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		dump, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		return nil, fmt.Errorf("oauthex: client registration failed with status %s: %s", resp.Status, dump)
	}
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("oauthex: reading registration response: %w", err)
	}
	var out RegisterClientResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("oauthex: decoding registration response: %w", err)
	}
	return &out, nil
}
