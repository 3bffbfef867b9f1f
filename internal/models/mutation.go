package models

// MutationFlag names the remote call a queued mutation replays.
type MutationFlag string

const (
	FlagAdd    MutationFlag = "add"
	FlagUpdate MutationFlag = "update"
	FlagDelete MutationFlag = "delete"
)

// QueuedMutation is a task snapshot waiting to be mirrored to the server.
// Serialized flat: {...task, "flag": "..."}.
type QueuedMutation struct {
	Task
	Flag MutationFlag `json:"flag"`
}

// Collapse merges a newer mutation for the same task into an existing one.
//   - add followed by update stays an add, carrying the latest fields;
//   - anything followed by delete becomes a delete;
//   - otherwise the newer mutation wins.
func Collapse(existing, next QueuedMutation) QueuedMutation {
	if existing.Flag == FlagAdd && next.Flag == FlagUpdate {
		return QueuedMutation{Task: next.Task, Flag: FlagAdd}
	}
	return next
}
