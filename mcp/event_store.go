// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// eventStoreCapacity bounds how many events are retained per (session,
// stream) pair before the oldest are evicted. The streamable transport's
// own comment flagged unbounded retention as a TODO; this ring buffer is
// the fix.
const eventStoreCapacity = 64

// storedEvent is one buffered SSE message, along with the event id a client
// can later present in a Last-Event-ID header to resume after it.
type storedEvent struct {
	id   string
	seq  uint64
	data []byte
}

// errEventNotFound is returned by EventsAfter when the requested id is
// unknown: either it was never issued, or it fell out of the ring buffer's
// retention window. Callers (the streamable HTTP transport) must treat this
// as "the stream cannot be resumed from here" and restart from scratch.
var errEventNotFound = fmt.Errorf("mcp: event id not found in store")

// ring is a fixed-capacity FIFO of storedEvent, evicting the oldest entry
// once full.
type ring struct {
	buf   []storedEvent
	start int
	size  int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]storedEvent, capacity)}
}

func (r *ring) push(e storedEvent) {
	cap := len(r.buf)
	idx := (r.start + r.size) % cap
	r.buf[idx] = e
	if r.size < cap {
		r.size++
	} else {
		r.start = (r.start + 1) % cap
	}
}

// all returns the ring's contents oldest-first.
func (r *ring) all() []storedEvent {
	out := make([]storedEvent, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

// eventStore buffers recently-sent SSE events per (sessionID, streamID) pair
// so a client that drops its hanging GET can resume via Last-Event-ID
// instead of losing messages. Event ids are formatted
// "<session>-.-<stream>-.-<seq>" so that parsing an id recovers the logical
// stream without a side table, and are monotonic within a stream via a
// global sequence counter (not wall-clock time, which is not guaranteed
// strictly increasing across rapid successive events).
type eventStore struct {
	mu      sync.Mutex
	nextSeq uint64
	streams map[string]*ring // key: sessionID + "\x00" + streamID
}

// newEventStore returns an empty eventStore.
func newEventStore() *eventStore {
	return &eventStore{streams: make(map[string]*ring)}
}

func streamKey(sessionID string, stream int64) string {
	return sessionID + "\x00" + strconv.FormatInt(stream, 10)
}

// formatEventID renders an event id for sessionID/stream/seq. The "-.-"
// separator cannot appear in a session id (session ids come from idgen,
// which only produces alphanumeric/hex/hyphen output) or a base-10 integer,
// so splitting is unambiguous.
func formatEventID(sessionID string, stream int64, seq uint64) string {
	return fmt.Sprintf("%s-.-%d-.-%d", sessionID, stream, seq)
}

// parseEventID recovers the session id and stream encoded in an event id
// produced by formatEventID.
func parseEventID(eventID string) (sessionID string, stream int64, ok bool) {
	parts := strings.Split(eventID, "-.-")
	if len(parts) != 3 {
		return "", 0, false
	}
	stream, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || stream < 0 {
		return "", 0, false
	}
	if _, err := strconv.ParseUint(parts[2], 10, 64); err != nil {
		return "", 0, false
	}
	return parts[0], stream, true
}

// StoreEvent appends data to the ring for (sessionID, stream) and returns
// the id assigned to it. If the ring is at capacity, the oldest buffered
// event for that stream is evicted.
func (s *eventStore) StoreEvent(sessionID string, stream int64, data []byte) (id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSeq++
	seq := s.nextSeq
	id = formatEventID(sessionID, stream, seq)
	key := streamKey(sessionID, stream)
	r, ok := s.streams[key]
	if !ok {
		r = newRing(eventStoreCapacity)
		s.streams[key] = r
	}
	r.push(storedEvent{id: id, seq: seq, data: data})
	return id, nil
}

// EventsAfter returns every buffered event for (sessionID, stream) after
// afterID, oldest first. An empty afterID returns every buffered event for
// the stream. If afterID is non-empty and not present in the buffer
// (because it was never stored for this stream, or has since been evicted),
// EventsAfter returns errEventNotFound.
func (s *eventStore) EventsAfter(sessionID string, stream int64, afterID string) ([]storedEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.streams[streamKey(sessionID, stream)]
	if !ok {
		if afterID == "" {
			return nil, nil
		}
		return nil, errEventNotFound
	}
	all := r.all()
	if afterID == "" {
		return all, nil
	}
	for i, e := range all {
		if e.id == afterID {
			return all[i+1:], nil
		}
	}
	return nil, errEventNotFound
}

// Count returns the number of buffered events for (sessionID, stream).
func (s *eventStore) Count(sessionID string, stream int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.streams[streamKey(sessionID, stream)]
	if !ok {
		return 0
	}
	return r.size
}

// RemoveStreamInSession discards all buffered events for one logical stream
// within a session, e.g. once its HTTP response has been fully delivered and
// will never be resumed.
func (s *eventStore) RemoveStreamInSession(sessionID string, stream int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.streams, streamKey(sessionID, stream))
}

// RemoveBySessionID discards every buffered stream belonging to sessionID,
// called when the session itself is closed.
func (s *eventStore) RemoveBySessionID(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := sessionID + "\x00"
	for k := range s.streams {
		if strings.HasPrefix(k, prefix) {
			delete(s.streams, k)
		}
	}
}

// Clear discards every buffered event across every session.
func (s *eventStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streams = make(map[string]*ring)
}

// TotalCount returns the number of buffered events across every stream and
// session, mainly useful for tests and diagnostics.
func (s *eventStore) TotalCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.streams {
		n += r.size
	}
	return n
}
