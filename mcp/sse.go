// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"

	"github.com/mcp-go-core/sdk/internal/jsonrpc2"
)

// event is one Server-Sent Event frame: an optional id (used for resumption
// via Last-Event-ID), an optional event name (defaults to "message" on the
// wire per the SSE spec when omitted), and the raw payload.
type event struct {
	name string
	id   string
	data []byte
}

// writeEvent writes evt to w in the SSE wire format and flushes w if it
// implements http.Flusher. It returns the number of payload bytes written.
func writeEvent(w io.Writer, evt event) (int, error) {
	var buf bytes.Buffer
	if evt.id != "" {
		fmt.Fprintf(&buf, "id: %s\n", evt.id)
	}
	name := evt.name
	if name == "" {
		name = "message"
	}
	fmt.Fprintf(&buf, "event: %s\n", name)
	for _, line := range bytes.Split(evt.data, []byte("\n")) {
		buf.WriteString("data: ")
		buf.Write(line)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	n, err := w.Write(buf.Bytes())
	if err != nil {
		return n, err
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return len(evt.data), nil
}

// scanEvents decodes a stream of SSE frames from r, yielding one event per
// frame (a blank line) in order. It stops and yields io.EOF once r is
// exhausted, or the scanner's error if reading fails (for example, a line
// longer than 10 MiB). Every line is accepted as some SSE field; there is no
// per-line decode error.
func scanEvents(r io.Reader) iter.Seq2[event, error] {
	return func(yield func(event, error) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

		var cur event
		var data bytes.Buffer
		haveData := false

		flush := func() (event, bool) {
			if !haveData && cur.id == "" && cur.name == "" {
				return event{}, false
			}
			cur.data = bytes.TrimSuffix(data.Bytes(), []byte("\n"))
			out := cur
			cur = event{}
			data.Reset()
			haveData = false
			return out, true
		}

		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				if evt, ok := flush(); ok {
					if !yield(evt, nil) {
						return
					}
				}
				continue
			}
			field, value := cutField(line)
			switch field {
			case "id":
				cur.id = value
			case "event":
				cur.name = value
			case "data":
				if haveData {
					data.WriteByte('\n')
				}
				data.WriteString(value)
				haveData = true
			case "retry", "":
				// Ignored: this client does not act on server-suggested retry
				// delays, and a blank field name is a comment line.
			}
		}
		if err := scanner.Err(); err != nil {
			yield(event{}, err)
			return
		}
		if evt, ok := flush(); ok {
			if !yield(evt, nil) {
				return
			}
		}
		yield(event{}, io.EOF)
	}
}

// cutField splits an SSE field line ("name: value" or "name:value") into its
// name and value, trimming at most one leading space from the value per the
// SSE spec.
func cutField(line string) (field, value string) {
	i := bytes.IndexByte([]byte(line), ':')
	if i < 0 {
		return line, ""
	}
	field = line[:i]
	value = line[i+1:]
	if len(value) > 0 && value[0] == ' ' {
		value = value[1:]
	}
	return field, value
}

// readBatch decodes an HTTP POST/response body as either a single JSON-RPC
// message or a JSON array of messages (a "batch", in JSON-RPC 2.0 terms). It
// reports whether the body was a batch, which callers use to decide how to
// frame the reply.
func readBatch(body []byte) (msgs []JSONRPCMessage, isBatch bool, err error) {
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, false, fmt.Errorf("empty body")
	}
	if trimmed[0] == '[' {
		var raws []json.RawMessage
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return nil, true, fmt.Errorf("decoding batch: %w", err)
		}
		out := make([]JSONRPCMessage, 0, len(raws))
		for _, raw := range raws {
			msg, err := jsonrpc2.DecodeMessage(raw)
			if err != nil {
				return nil, true, err
			}
			out = append(out, msg)
		}
		return out, true, nil
	}
	msg, err := jsonrpc2.DecodeMessage(trimmed)
	if err != nil {
		return nil, false, err
	}
	return []JSONRPCMessage{msg}, false, nil
}
