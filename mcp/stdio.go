// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/mcp-go-core/sdk/internal/jsonrpc2"
)

// StdioTransport is a [Transport] that reads newline-delimited JSON-RPC
// messages from an input stream and writes them to an output stream. The
// zero value reads os.Stdin and writes os.Stdout, the arrangement an MCP
// server run as a child process uses; set In/Out explicitly to frame a
// different pair of streams (for example, a child process's own stdio from
// the parent's side - see [NewCommandTransport]).
type StdioTransport struct {
	In  io.Reader
	Out io.Writer
}

// NewStdioTransport returns a StdioTransport that frames messages over the
// process's own standard input and output.
func NewStdioTransport() *StdioTransport {
	return &StdioTransport{In: os.Stdin, Out: os.Stdout}
}

func (t *StdioTransport) Connect(ctx context.Context) (Connection, error) {
	in := t.In
	if in == nil {
		in = os.Stdin
	}
	out := t.Out
	if out == nil {
		out = os.Stdout
	}
	return newStdioConn(in, out, nil), nil
}

// stdioConn implements Connection by scanning newline-delimited JSON
// messages from r and writing newline-delimited JSON messages to w. closer,
// if non-nil, is invoked once by Close (used by commandTransport to tear
// down the child process).
type stdioConn struct {
	scanner *bufio.Scanner
	readMu  sync.Mutex

	w       io.Writer
	writeMu sync.Mutex

	closer    func() error
	closeOnce sync.Once
}

func newStdioConn(r io.Reader, w io.Writer, closer func() error) *stdioConn {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	return &stdioConn{scanner: scanner, w: w, closer: closer}
}

func (c *stdioConn) Read(ctx context.Context) (JSONRPCMessage, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	for c.scanner.Scan() {
		line := c.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		return jsonrpc2.DecodeMessage(line)
	}
	if err := c.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func (c *stdioConn) Write(ctx context.Context, msg JSONRPCMessage) error {
	data, err := jsonrpc2.EncodeMessage(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.w.Write(data); err != nil {
		return err
	}
	_, err = c.w.Write([]byte("\n"))
	return err
}

func (c *stdioConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if c.closer != nil {
			err = c.closer()
		}
	})
	return err
}

// CommandTransport is a [Transport] that launches a child process and
// frames messages over its stdin/stdout, the arrangement an MCP client
// uses to run a server as a subprocess. The child's stderr is discarded
// unless Stderr is set.
type CommandTransport struct {
	// Command is the program to run.
	Command string
	// Args are passed to Command.
	Args []string
	// Env, if non-nil, replaces the child's environment (as with
	// exec.Cmd.Env); nil inherits the parent's environment.
	Env []string
	// Dir is the child's working directory; empty means the parent's.
	Dir string
	// Stderr receives the child's stderr, if non-nil.
	Stderr io.Writer
}

// NewCommandTransport returns a CommandTransport that runs command with
// args.
func NewCommandTransport(command string, args ...string) *CommandTransport {
	return &CommandTransport{Command: command, Args: args}
}

func (t *CommandTransport) Connect(ctx context.Context) (Connection, error) {
	cmd := exec.Command(t.Command, t.Args...)
	cmd.Env = t.Env
	cmd.Dir = t.Dir
	cmd.Stderr = t.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = io.Discard
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("mcp: creating child stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("mcp: creating child stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("mcp: starting %q: %w", t.Command, err)
	}

	closer := func() error {
		stdin.Close()
		if cmd.Process != nil {
			// Closing stdin asks a well-behaved server to exit on its own;
			// killing is a backstop for one that doesn't notice.
			cmd.Process.Kill()
		}
		return cmd.Wait()
	}
	return newStdioConn(stdout, stdin, closer), nil
}
