// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// This file parses WWW-Authenticate challenges as described in RFC 7235 §4.1,
// enough to extract the "bearer" challenge's resource_metadata and scope
// parameters that MCP resource servers attach per RFC 9728 §5.1.

package oauthex

import (
	"fmt"
	"strings"
)

// challenge is one parsed WWW-Authenticate challenge: a scheme name
// (lowercased) and its auth-param set.
type challenge struct {
	Scheme string
	Params map[string]string
}

// ParseWWWAuthenticate parses the WWW-Authenticate header values of a 401
// response into a list of challenges. Multiple header lines and multiple
// comma-separated challenges within one line are both supported.
func ParseWWWAuthenticate(values []string) ([]challenge, error) {
	var out []challenge
	for _, v := range values {
		cs, err := parseChallenges(v)
		if err != nil {
			return nil, fmt.Errorf("oauthex: parsing WWW-Authenticate: %w", err)
		}
		out = append(out, cs...)
	}
	return out, nil
}

// parseChallenges splits one header value into challenges. It handles the
// common case (a scheme token followed by comma-separated key=value or
// key="value" params) without attempting a fully general RFC 7235 parser,
// since MCP resource servers only ever emit "Bearer" challenges.
func parseChallenges(v string) ([]challenge, error) {
	var out []challenge
	rest := strings.TrimSpace(v)
	for rest != "" {
		// Find the scheme token.
		sp := strings.IndexAny(rest, " \t")
		var scheme string
		if sp < 0 {
			scheme = rest
			rest = ""
		} else {
			scheme = rest[:sp]
			rest = strings.TrimSpace(rest[sp+1:])
		}
		c := challenge{Scheme: strings.ToLower(scheme), Params: map[string]string{}}

		// Consume comma-separated auth-params until we hit the next scheme
		// token (a bare word followed by a space with no '=') or run out.
		for rest != "" {
			eq := strings.IndexByte(rest, '=')
			if eq < 0 {
				break
			}
			comma := strings.IndexByte(rest, ',')
			if comma >= 0 && comma < eq {
				// A bare token before the next '=' with an intervening comma
				// means this auth-param belongs to the next challenge.
				break
			}
			key := strings.TrimSpace(rest[:eq])
			if strings.ContainsAny(key, " \t") {
				// key has embedded whitespace: likely the start of a new
				// challenge ("Basic realm=..."), not a continuation.
				break
			}
			rest = rest[eq+1:]
			var value string
			if strings.HasPrefix(rest, `"`) {
				end := strings.IndexByte(rest[1:], '"')
				if end < 0 {
					return nil, fmt.Errorf("unterminated quoted value for %q", key)
				}
				value = rest[1 : 1+end]
				rest = strings.TrimSpace(strings.TrimPrefix(rest[1+end+1:], ","))
			} else {
				end := strings.IndexByte(rest, ',')
				if end < 0 {
					value = strings.TrimSpace(rest)
					rest = ""
				} else {
					value = strings.TrimSpace(rest[:end])
					rest = strings.TrimSpace(rest[end+1:])
				}
			}
			c.Params[key] = value
		}
		out = append(out, c)
	}
	return out, nil
}
