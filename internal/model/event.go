package model

// Category names one of the three subscription channels a connection can be
// interested in. Outbound envelopes are tagged with it so clients can route
// updates without guessing at the payload shape.
type Category string

const (
	CategoryList Category = "list"
	CategorySets Category = "sets"
	CategoryRoom Category = "room"
)

type Action string

const (
	ActionAdd    Action = "add"
	ActionUpdate Action = "update"
	ActionRemove Action = "remove"
)

// ListEvent announces a room appearing in or leaving the room list.
type ListEvent struct {
	Action Action      `json:"action"`
	ID     RoomID      `json:"id"`
	Room   RoomSummary `json:"evt"`
}

// SetsEvent announces a catalog change.
type SetsEvent struct {
	Action Action  `json:"action"`
	ID     string  `json:"id"`
	Set    CardSet `json:"evt"`
}

// RoomEvent is a minimal delta scoped to one or more rooms: exactly one of
// the nested fields is set, carrying only what changed.
type RoomEvent struct {
	User   *UserDelta   `json:"user,omitempty"`
	Task   *TaskDelta   `json:"task,omitempty"`
	Voting *VotingDelta `json:"voting,omitempty"`
}

type UserDelta struct {
	ID        string  `json:"id"`
	Name      string  `json:"name,omitempty"`
	Moderator *bool   `json:"moderator,omitempty"`
	Vote      *string `json:"vote,omitempty"`
}

type TaskDelta struct {
	Action Action `json:"action"`
	ID     string `json:"id"`
	Task   *Task  `json:"evt,omitempty"`
}

// VotingDelta drives the ballot lifecycle: a bare TaskID blanks the ballot
// for a newly active task, a non-nil Voted map reveals the recorded tally.
type VotingDelta struct {
	TaskID string            `json:"taskId"`
	Voted  map[string]string `json:"voted,omitempty"`
}
