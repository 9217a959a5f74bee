// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// This file implements resource-server-side bearer token verification: a
// middleware that enforces an MCP server's authorization requirements
// (RFC 9728 §5, RFC 6750) by calling a pluggable TokenVerifier, plus a JWKS-
// based TokenVerifier implementation for servers that verify tokens locally
// rather than via introspection.

package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenInfo is what a successful token verification yields: the claims an
// MCP server's tool/resource handlers need to authorize a request.
type TokenInfo struct {
	// Scopes are the OAuth scopes granted to this token.
	Scopes []string
	// Expiration is when the token stops being valid.
	Expiration time.Time
	// UserID identifies the resource owner (the JWT "sub" claim, or the
	// introspection response's "sub" field).
	UserID string
}

// HasScope reports whether info grants scope.
func (info *TokenInfo) HasScope(scope string) bool {
	for _, s := range info.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Sentinel errors a TokenVerifier function may return; RequireBearerToken
// maps them to the RFC 6750 error codes "invalid_token" and
// "insufficient_scope" respectively. Any other error is also treated as an
// invalid token and reported with the "invalid_token" code.
var (
	ErrInvalidToken      = errors.New("auth: invalid token")
	ErrInsufficientScope = errors.New("auth: insufficient scope")
)

// TokenVerifier validates the bearer token extracted from an incoming
// request's Authorization header and returns the claims it carries. req is
// provided so a verifier can factor in request context (e.g. the resource
// URL being accessed), though most verifiers ignore it.
type TokenVerifier func(ctx context.Context, token string, req *http.Request) (*TokenInfo, error)

// RequireBearerTokenOptions configures [RequireBearerToken].
type RequireBearerTokenOptions struct {
	// Scopes lists the scopes every request must carry. A request whose
	// token lacks any of these is rejected with ErrInsufficientScope.
	Scopes []string
	// ResourceMetadataURL is advertised in the WWW-Authenticate challenge's
	// resource_metadata parameter (RFC 9728 §5.1) on 401 and 403 responses, so
	// clients can discover how to obtain a token.
	ResourceMetadataURL string
}

// contextKey is unexported so other packages cannot collide with it.
type contextKey int

const tokenInfoKey contextKey = 0

// TokenInfoFromContext returns the TokenInfo that RequireBearerToken's
// middleware attached to ctx, or nil if none is present (requests that
// reached a handler without passing through the middleware).
func TokenInfoFromContext(ctx context.Context) *TokenInfo {
	info, _ := ctx.Value(tokenInfoKey).(*TokenInfo)
	return info
}

// RequireBearerToken returns middleware that extracts a bearer token from
// each request's Authorization header, verifies it with verify, checks that
// every scope in opts.Scopes is present, and on success attaches the
// resulting TokenInfo to the request context before calling next. On
// failure it responds with 401 (missing/invalid token) or 403 (insufficient
// scope) and a WWW-Authenticate challenge per RFC 6750 §3.
func RequireBearerToken(verify TokenVerifier, opts *RequireBearerTokenOptions) func(http.Handler) http.Handler {
	if opts == nil {
		opts = &RequireBearerTokenOptions{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r)
			if err != nil {
				challenge(w, opts.ResourceMetadataURL, "invalid_request", err.Error())
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}

			info, err := verify(r.Context(), token, r)
			if err != nil {
				switch {
				case errors.Is(err, ErrInsufficientScope):
					challenge(w, opts.ResourceMetadataURL, "insufficient_scope", err.Error())
					http.Error(w, err.Error(), http.StatusForbidden)
				default:
					challenge(w, opts.ResourceMetadataURL, "invalid_token", err.Error())
					http.Error(w, err.Error(), http.StatusUnauthorized)
				}
				return
			}

			for _, want := range opts.Scopes {
				if !info.HasScope(want) {
					challenge(w, opts.ResourceMetadataURL, "insufficient_scope", fmt.Sprintf("missing scope %q", want))
					http.Error(w, "insufficient scope", http.StatusForbidden)
					return
				}
			}

			ctx := context.WithValue(r.Context(), tokenInfoKey, info)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", fmt.Errorf("missing Authorization header")
	}
	prefix := "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return "", fmt.Errorf("Authorization header is not a bearer token")
	}
	token := strings.TrimSpace(h[len(prefix):])
	if token == "" {
		return "", fmt.Errorf("empty bearer token")
	}
	return token, nil
}

func challenge(w http.ResponseWriter, resourceMetadataURL, code, description string) {
	var b strings.Builder
	b.WriteString(`Bearer`)
	if code != "" {
		fmt.Fprintf(&b, ` error=%q`, code)
	}
	if description != "" {
		fmt.Fprintf(&b, `, error_description=%q`, description)
	}
	if resourceMetadataURL != "" {
		fmt.Fprintf(&b, `, resource_metadata=%q`, resourceMetadataURL)
	}
	w.Header().Set("WWW-Authenticate", b.String())
}

// JWKSVerifier verifies JWTs against a set of public keys fetched from a
// JWKS endpoint, caching the key set for CacheTTL before refetching. It
// implements the TokenVerifier function signature via its Verify method.
//
// Only RSA keys (kty "RSA") are supported, matching the key types that MCP
// authorization servers in the wild publish; an EC or symmetric key in the
// JWKS is skipped rather than rejected, so a server can rotate key types
// without this verifier erroring on the entries it doesn't understand.
type JWKSVerifier struct {
	// JWKSURL is the endpoint to fetch the authorization server's JSON Web
	// Key Set from.
	JWKSURL string
	// Issuer, if non-empty, is required to match the token's "iss" claim.
	Issuer string
	// Audience, if non-empty, is required to appear in the token's "aud"
	// claim.
	Audience string
	// CacheTTL bounds how long a fetched key set is reused before being
	// refetched. Defaults to 10 minutes.
	CacheTTL time.Duration
	// HTTPClient is used to fetch the JWKS document. Defaults to
	// http.DefaultClient.
	HTTPClient *http.Client

	mu        sync.Mutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

type jwkSet struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (v *JWKSVerifier) cacheTTL() time.Duration {
	if v.CacheTTL <= 0 {
		return 10 * time.Minute
	}
	return v.CacheTTL
}

func (v *JWKSVerifier) httpClient() *http.Client {
	if v.HTTPClient == nil {
		return http.DefaultClient
	}
	return v.HTTPClient
}

// keyForKID returns the RSA public key for kid, fetching (or refetching,
// once the cache has expired) the JWKS document as needed.
func (v *JWKSVerifier) keyForKID(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.keys != nil && time.Since(v.fetchedAt) < v.cacheTTL() {
		if key, ok := v.keys[kid]; ok {
			return key, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.JWKSURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := v.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching JWKS: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching JWKS: unexpected status %s", resp.Status)
	}

	var set jwkSet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, fmt.Errorf("decoding JWKS: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		pub, err := rsaPublicKeyFromJWK(k)
		if err != nil {
			continue
		}
		keys[k.Kid] = pub
	}
	v.keys = keys
	v.fetchedAt = time.Now()

	key, ok := keys[kid]
	if !ok {
		return nil, fmt.Errorf("no JWKS key found for kid %q", kid)
	}
	return key, nil
}

func rsaPublicKeyFromJWK(k jwk) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("decoding modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("decoding exponent: %w", err)
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(new(big.Int).SetBytes(eBytes).Int64()),
	}, nil
}

// Verify parses and validates tokenString as a JWT, resolving its signing
// key from the JWKS endpoint, and reports its claims as TokenInfo. It
// satisfies the TokenVerifier signature.
func (v *JWKSVerifier) Verify(ctx context.Context, tokenString string, _ *http.Request) (*TokenInfo, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"}))
	_, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("token has no kid header")
		}
		return v.keyForKID(ctx, kid)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if v.Issuer != "" {
		iss, _ := claims.GetIssuer()
		if iss != v.Issuer {
			return nil, fmt.Errorf("%w: unexpected issuer %q", ErrInvalidToken, iss)
		}
	}
	if v.Audience != "" {
		aud, _ := claims.GetAudience()
		if !containsString(aud, v.Audience) {
			return nil, fmt.Errorf("%w: audience does not include %q", ErrInvalidToken, v.Audience)
		}
	}

	exp, _ := claims.GetExpirationTime()
	var expTime time.Time
	if exp != nil {
		expTime = exp.Time
	}

	sub, _ := claims.GetSubject()

	var scopes []string
	if s, ok := claims["scope"].(string); ok {
		scopes = strings.Fields(s)
	}

	return &TokenInfo{Scopes: scopes, Expiration: expTime, UserID: sub}, nil
}

func containsString(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}
