// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package idgen provides the identifier generators used across the module:
// task IDs and session IDs come from a Generator rather than ad hoc
// crypto/rand calls, so that callers can choose a layout (time-sortable
// Snowflake, random UUID, or compact NanoID-style base62) without threading a
// new signature through every call site.
package idgen

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Generator produces unique identifiers of type T. Implementations must be
// safe for concurrent use.
type Generator[T any] interface {
	Next() (T, error)
}

// epoch is the custom epoch used by SnowflakeGenerator, chosen as the date
// the MCP task-augmented-request extension was ratified; it only affects how
// much of the 41-bit timestamp field is "used up" before rollover.
var epoch = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

const (
	timestampBits = 41
	machineBits   = 10
	sequenceBits  = 12

	maxMachineID = 1<<machineBits - 1 // 1023
	maxSequence  = 1<<sequenceBits - 1

	machineShift   = sequenceBits
	timestampShift = sequenceBits + machineBits
)

// SnowflakeGenerator produces 64-bit time-sortable IDs laid out as
// <41-bit ms-since-epoch><10-bit machine id><12-bit sequence>, in the style
// of Twitter's snowflake. The machine id is fixed at construction and must
// fit in 10 bits (0-1023); NewSnowflakeGenerator hard-fails otherwise, since
// a silently-truncated machine id would collide with other machines.
type SnowflakeGenerator struct {
	machineID int64

	mu       sync.Mutex
	lastMS   int64
	sequence int64
}

// NewSnowflakeGenerator returns a SnowflakeGenerator for the given machine
// id. It panics if machineID is negative or >= 1024: the 10-bit machine
// field cannot represent it, and truncating would silently produce
// colliding IDs across machines.
func NewSnowflakeGenerator(machineID int) *SnowflakeGenerator {
	if machineID < 0 || machineID > maxMachineID {
		panic(fmt.Sprintf("idgen: machine id %d does not fit in %d bits (max %d)", machineID, machineBits, maxMachineID))
	}
	return &SnowflakeGenerator{machineID: int64(machineID)}
}

// Next returns the next snowflake ID. If the sequence counter for the
// current millisecond overflows (more than 4096 IDs requested within the
// same millisecond), Next spin-waits until the clock ticks over rather than
// returning a colliding ID.
func (g *SnowflakeGenerator) Next() (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := time.Since(epoch).Milliseconds()
	if ms < 0 {
		return 0, fmt.Errorf("idgen: system clock is before the snowflake epoch")
	}

	if ms == g.lastMS {
		g.sequence = (g.sequence + 1) & maxSequence
		if g.sequence == 0 {
			// Sequence exhausted for this millisecond: spin until the clock
			// advances rather than reuse or collide.
			for ms <= g.lastMS {
				ms = time.Since(epoch).Milliseconds()
			}
		}
	} else {
		g.sequence = 0
	}
	g.lastMS = ms

	if ms>>timestampBits != 0 {
		return 0, fmt.Errorf("idgen: timestamp overflowed %d bits", timestampBits)
	}

	id := ms<<timestampShift | g.machineID<<machineShift | g.sequence
	return id, nil
}

// UUIDGenerator produces random (v4) UUIDs.
type UUIDGenerator struct{}

// Next returns a new random UUID string.
func (UUIDGenerator) Next() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("idgen: generating uuid: %w", err)
	}
	return id.String(), nil
}

// base62Alphabet is used by Base62Generator: the ASCII digits and letters,
// i.e. NanoID's default alphabet without '-' and '_'.
const base62Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// Base62Generator produces fixed-length random strings drawn from the
// alphanumeric alphabet, in the style of NanoID.
type Base62Generator struct {
	// Length is the number of characters to generate. Defaults to 21
	// (NanoID's default length, chosen for a collision probability
	// comparable to a v4 UUID at realistic generation rates).
	Length int
}

// Next returns a new random base62 string of g.Length characters.
func (g Base62Generator) Next() (string, error) {
	n := g.Length
	if n <= 0 {
		n = 21
	}
	buf := make([]byte, n)
	max := big.NewInt(int64(len(base62Alphabet)))
	for i := range buf {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("idgen: generating base62 id: %w", err)
		}
		buf[i] = base62Alphabet[idx.Int64()]
	}
	return string(buf), nil
}

// FastStreamID is a Generator optimized for high-frequency, low-stakes
// identifiers (SSE stream connection IDs, log correlation tags) where
// cryptographic randomness isn't needed: it is a monotonic counter salted
// with the process start time, so IDs are unique within a process and
// unlikely to collide across restarts without paying crypto/rand's cost on
// every call.
type FastStreamID struct {
	salt    int64
	counter int64 // accessed only under mu
	mu      sync.Mutex
}

// NewFastStreamID returns a FastStreamID generator salted with the current
// time.
func NewFastStreamID() *FastStreamID {
	return &FastStreamID{salt: time.Now().UnixNano()}
}

// Next returns the next id in the sequence, formatted as "<salt>-<counter>".
func (g *FastStreamID) Next() (string, error) {
	g.mu.Lock()
	g.counter++
	c := g.counter
	g.mu.Unlock()
	return fmt.Sprintf("%x-%x", g.salt, c), nil
}
