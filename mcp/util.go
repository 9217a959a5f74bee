// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"encoding/json"

	"github.com/mcp-go-core/sdk/internal/idgen"
)

func assert(cond bool, msg string) {
	if !cond {
		panic(msg)
	}
}

// sessionToken generators produce the crypto-random handles used for
// Mcp-Session-Id and similar public, unguessable tokens (as opposed to
// sessionIDGen's Snowflake ids, which are internal bookkeeping keys).
var sessionTokens idgen.Generator[string] = idgen.Base62Generator{Length: 32}

// randText returns a fresh, unguessable session token.
func randText() string {
	// Base62Generator draws from crypto/rand and never errors.
	s, _ := sessionTokens.Next()
	return s
}

// remarshal marshals from to JSON, and then unmarshals into to, which must be
// a pointer type.
func remarshal(from, to any) error {
	data, err := json.Marshal(from)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, to); err != nil {
		return err
	}
	return nil
}
