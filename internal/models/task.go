// internal/models/task.go
package models

import "time"

// TaskStatus defines the possible statuses for a task.
type TaskStatus string

const (
	StatusInProgress TaskStatus = "In Progress"
	StatusCompleted  TaskStatus = "Completed"
	StatusCancelled  TaskStatus = "Cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// FileAttachment references a file picked on the device.
type FileAttachment struct {
	Name string `json:"name"`
	URI  string `json:"uri"`
	Size int64  `json:"size"`
}

// Coords is a map pin attached to a task.
type Coords struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Task represents the structure of a task in the system.
// The JSON names are shared by local storage, the offline queue and the remote API.
type Task struct {
	ID             string          `json:"id"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Location       string          `json:"location"`
	DateTime       string          `json:"dateTime"`
	AddedAt        string          `json:"addedAt"`
	Status         TaskStatus      `json:"status"`
	File           *FileAttachment `json:"file,omitempty"`
	LocationCoords *Coords         `json:"locationCoords,omitempty"`
	NotificationID string          `json:"notificationId,omitempty"`
}

// ScheduledAt parses DateTime. Accepts RFC 3339 with or without fractional seconds.
func (t Task) ScheduledAt() (time.Time, error) {
	return ParseTimestamp(t.DateTime)
}

// Clone returns a deep copy, so callers never share the optional pointers.
func (t Task) Clone() Task {
	out := t
	if t.File != nil {
		f := *t.File
		out.File = &f
	}
	if t.LocationCoords != nil {
		c := *t.LocationCoords
		out.LocationCoords = &c
	}
	return out
}

// ParseTimestamp parses the ISO-ish timestamps used on the wire.
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	// формы без зоны тоже встречаются (date picker)
	return time.ParseInLocation("2006-01-02T15:04:05", s, time.Local)
}

// FormatTimestamp is the inverse of ParseTimestamp.
func FormatTimestamp(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}
