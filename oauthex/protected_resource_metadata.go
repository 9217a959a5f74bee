// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// This file defines Protected Resource Metadata, RFC 9728
// (https://www.rfc-editor.org/rfc/rfc9728.html), restricted to the fields
// an MCP resource server publishes and an MCP client consults.

package oauthex

// ProtectedResourceMetadata is the document a resource server publishes at
// /.well-known/oauth-protected-resource (RFC 9728 §3), pointing clients at
// the authorization server(s) that can issue tokens for it.
type ProtectedResourceMetadata struct {
	// Resource is this resource server's canonical identifier, normally the
	// MCP endpoint URL.
	Resource string `json:"resource"`
	// AuthorizationServers lists the issuer URLs of authorization servers
	// that can issue tokens accepted by this resource.
	AuthorizationServers []string `json:"authorization_servers,omitempty"`
	// ScopesSupported lists the scopes this resource server understands.
	ScopesSupported []string `json:"scopes_supported,omitempty"`
	// BearerMethodsSupported lists how a client may present a bearer token
	// ("header", "body", "query"); MCP servers only ever accept "header".
	BearerMethodsSupported []string `json:"bearer_methods_supported,omitempty"`
	// ResourceDocumentation is a human-readable link describing the resource.
	ResourceDocumentation string `json:"resource_documentation,omitempty"`
}
