package models

import (
	"fmt"
	"time"
)

// LogAction is what happened to a task.
type LogAction string

const (
	ActionAdded   LogAction = "added"
	ActionUpdated LogAction = "updated"
	ActionDeleted LogAction = "deleted"
)

// LogEntry is one line of the activity log.
// TaskTitle is a snapshot taken when the entry was written; it does not follow later renames.
type LogEntry struct {
	ID        string    `json:"id"`
	Timestamp string    `json:"timestamp"`
	Action    LogAction `json:"action"`
	TaskID    string    `json:"taskId"`
	TaskTitle string    `json:"taskTitle"`
}

// NewLogEntry builds an entry for task at the given moment.
func NewLogEntry(action LogAction, task Task, at time.Time) LogEntry {
	return LogEntry{
		ID:        LogEntryID(task.ID, action, at),
		Timestamp: FormatTimestamp(at),
		Action:    action,
		TaskID:    task.ID,
		TaskTitle: task.Title,
	}
}

// LogEntryID derives the entry id from task id, action and creation time.
func LogEntryID(taskID string, action LogAction, at time.Time) string {
	return fmt.Sprintf("%s_%s_%d", taskID, action, at.UnixNano())
}
