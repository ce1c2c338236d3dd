package model

type Card struct {
	ID    string  `json:"id"`
	Value float64 `json:"value"`
	Label string  `json:"label"`
}

// CardSet is a reusable named deck. Rooms copy the cards at creation time,
// so later catalog edits never touch existing rooms.
type CardSet struct {
	Name  string `json:"name"`
	Cards []Card `json:"cards"`
}
