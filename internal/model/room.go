package model

type RoomID string

const EmptyRoomID RoomID = ""

// RoomSummary is the lightweight view the directory keeps for every known
// room. Full room state stays in the room's own durable unit until asked for.
type RoomSummary struct {
	Name        string `json:"name"`
	Persisted   bool   `json:"isPersisted"`
	Owner       string `json:"owner"`
	TaskPattern string `json:"taskPattern,omitempty"`
}

type Room struct {
	ID      RoomID      `json:"id"`
	Summary RoomSummary `json:"roomInfo"`
	Users   []User      `json:"users"`
	Tasks   []Task      `json:"tasks"`
	Cards   []Card      `json:"cards"`
	Votes   []Vote      `json:"votes,omitempty"`
}

type User struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Moderator bool    `json:"moderator"`
	Vote      *string `json:"vote,omitempty"`
}

type Task struct {
	ID             string `json:"id"`
	Num            string `json:"num,omitempty"`
	Name           string `json:"name"`
	Comment        string `json:"comment,omitempty"`
	AcceptedCardID string `json:"acceptedCardId,omitempty"`
}

// Vote associates one user with one card for one task. At most one per
// (task, user) pair; a re-vote supersedes the previous card.
type Vote struct {
	TaskID string `json:"taskId"`
	UserID string `json:"userId"`
	CardID string `json:"cardId"`
}
