// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

// This file holds the wire types for task-augmented requests: the
// CreateTask/GetTask/ListTasks/CancelTask/TaskResult protocol surface and the
// Task value itself.

// TaskStatus is the lifecycle status of a long-running task.
type TaskStatus string

const (
	// TaskStatusWorking indicates the task is still in progress.
	TaskStatusWorking TaskStatus = "working"
	// TaskStatusInputRequired indicates the task is waiting on additional
	// input before it can proceed.
	TaskStatusInputRequired TaskStatus = "input_required"
	// TaskStatusCompleted is a terminal status: the task finished
	// successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed is a terminal status: the task finished with an
	// error.
	TaskStatusFailed TaskStatus = "failed"
	// TaskStatusCancelled is a terminal status: the task was cancelled by
	// request.
	TaskStatusCancelled TaskStatus = "cancelled"
)

// IsTerminal reports whether status is one from which no further
// transition is permitted.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// TaskParams is the "task" block attached to a task-augmented request,
// requesting that the receiver run the work asynchronously.
type TaskParams struct {
	// TTL is the requested time-to-live for the resulting task, in
	// milliseconds. The store is authoritative and may clamp or override
	// this value. A nil TTL means unlimited.
	TTL *int64 `json:"ttl,omitempty"`
}

// Task describes a server-side long-running operation.
type Task struct {
	// Meta is reserved for protocol metadata.
	Meta `json:"_meta,omitempty"`
	// TaskID uniquely identifies the task.
	TaskID string `json:"taskId"`
	// Status is the current lifecycle status.
	Status TaskStatus `json:"status"`
	// StatusMessage is a human-readable description of the current status.
	StatusMessage string `json:"statusMessage,omitempty"`
	// CreatedAt is an RFC3339 timestamp of task creation.
	CreatedAt string `json:"createdAt"`
	// LastUpdatedAt is an RFC3339 timestamp of the last status transition.
	LastUpdatedAt string `json:"lastUpdatedAt"`
	// TTL is the effective time-to-live in milliseconds, or nil if
	// unlimited.
	TTL *int64 `json:"ttl,omitempty"`
	// PollInterval is the server-advised polling cadence in milliseconds.
	PollInterval *int64 `json:"pollInterval,omitempty"`
}

func (*Task) isResult() {}

// CreateTaskResult is returned synchronously for a task-augmented request,
// handing back the task's id so the caller can poll or subscribe for its
// result.
type CreateTaskResult struct {
	// Meta is reserved for protocol metadata.
	Meta `json:"_meta,omitempty"`
	// Task is the newly created task.
	Task *Task `json:"task"`
}

func (*CreateTaskResult) isResult() {}

// GetTaskParams identifies a task to retrieve.
type GetTaskParams struct {
	Meta `json:"_meta,omitempty"`
	// TaskID is the id of the task to retrieve.
	TaskID string `json:"taskId"`
}

func (x *GetTaskParams) isParams()             {}
func (x *GetTaskParams) GetProgressToken() any { return getProgressToken(x) }
func (x *GetTaskParams) SetProgressToken(t any) { setProgressToken(x, t) }

// GetTaskResult is the current snapshot of a task.
type GetTaskResult Task

func (*GetTaskResult) isResult() {}

// ListTasksParams requests a page of the caller's tasks.
type ListTasksParams struct {
	Meta `json:"_meta,omitempty"`
	// Cursor is an opaque pagination cursor from a prior ListTasksResult.
	Cursor string `json:"cursor,omitempty"`
}

func (x *ListTasksParams) isParams()             {}
func (x *ListTasksParams) GetProgressToken() any { return getProgressToken(x) }
func (x *ListTasksParams) SetProgressToken(t any) { setProgressToken(x, t) }

// ListTasksResult is a page of tasks, reverse chronological.
type ListTasksResult struct {
	// Meta is reserved for protocol metadata.
	Meta `json:"_meta,omitempty"`
	// Tasks is the page of tasks.
	Tasks []*Task `json:"tasks"`
	// NextCursor, if non-empty, retrieves the following page.
	NextCursor string `json:"nextCursor,omitempty"`
}

func (*ListTasksResult) isResult() {}

// CancelTaskParams identifies a task to cancel.
type CancelTaskParams struct {
	Meta `json:"_meta,omitempty"`
	// TaskID is the id of the task to cancel.
	TaskID string `json:"taskId"`
}

func (x *CancelTaskParams) isParams()             {}
func (x *CancelTaskParams) GetProgressToken() any { return getProgressToken(x) }
func (x *CancelTaskParams) SetProgressToken(t any) { setProgressToken(x, t) }

// CancelTaskResult is the task's state immediately after cancellation.
type CancelTaskResult Task

func (*CancelTaskResult) isResult() {}

// TaskResultParams identifies a task whose final result should be
// retrieved, blocking until it is available.
type TaskResultParams struct {
	Meta `json:"_meta,omitempty"`
	// TaskID is the id of the task whose result is requested.
	TaskID string `json:"taskId"`
}

func (x *TaskResultParams) isParams()             {}
func (x *TaskResultParams) GetProgressToken() any { return getProgressToken(x) }
func (x *TaskResultParams) SetProgressToken(t any) { setProgressToken(x, t) }

// TaskStatusNotificationParams reports a task's status change.
type TaskStatusNotificationParams Task

func (x *TaskStatusNotificationParams) isParams()             {}
func (x *TaskStatusNotificationParams) GetProgressToken() any { return nil }
func (x *TaskStatusNotificationParams) SetProgressToken(any)  {}
