// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"fmt"
	"time"
)

// GetTask retrieves the current snapshot of a task by id.
func (cs *ClientSession) GetTask(ctx context.Context, taskID string) (*GetTaskResult, error) {
	var res GetTaskResult
	if err := cs.call(ctx, methodGetTask, &GetTaskParams{TaskID: taskID}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListTasks retrieves one page of this session's tasks, reverse
// chronological.
func (cs *ClientSession) ListTasks(ctx context.Context, cursor string) (*ListTasksResult, error) {
	var res ListTasksResult
	if err := cs.call(ctx, methodListTasks, &ListTasksParams{Cursor: cursor}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// CancelTask requests cancellation of a task.
func (cs *ClientSession) CancelTask(ctx context.Context, taskID string) (*CancelTaskResult, error) {
	var res CancelTaskResult
	if err := cs.call(ctx, methodCancelTask, &CancelTaskParams{TaskID: taskID}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// TaskResult blocks until a task reaches a terminal status and returns the
// underlying tool call's result.
func (cs *ClientSession) TaskResult(ctx context.Context, taskID string) (*CallToolResult, error) {
	var res CallToolResult
	if err := cs.call(ctx, methodTaskResult, &TaskResultParams{TaskID: taskID}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// PollTaskUntilDone polls GetTask at interval until the task reaches a
// terminal status, honoring the server's advised PollInterval when present,
// or returns ctx's error if ctx is done first.
func PollTaskUntilDone(ctx context.Context, cs *ClientSession, taskID string, interval time.Duration) (*GetTaskResult, error) {
	if interval <= 0 {
		interval = time.Second
	}
	for {
		t, err := cs.GetTask(ctx, taskID)
		if err != nil {
			return nil, fmt.Errorf("polling task %q: %w", taskID, err)
		}
		if TaskStatus(t.Status).IsTerminal() {
			return t, nil
		}
		wait := interval
		if t.PollInterval != nil {
			wait = time.Duration(*t.PollInterval) * time.Millisecond
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}
