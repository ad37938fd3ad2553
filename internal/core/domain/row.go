package domain

import (
	"encoding/json"
	"time"
)

type Row struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// RowInput carries client-supplied fields for create and update.
// A nil field means the client did not send it, or sent null.
type RowInput struct {
	Name     *string   `json:"name"`
	Quantity *Quantity `json:"quantity"`

	// keys counts every key of the decoded JSON object, unknown ones included.
	keys int
}

func (in *RowInput) UnmarshalJSON(b []byte) error {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(b, &keys); err != nil {
		return err
	}
	type plain RowInput
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*in = RowInput(p)
	in.keys = len(keys)
	return nil
}

// Empty reports whether nothing was sent at all: no known field set and no
// JSON keys of any kind.
func (in RowInput) Empty() bool {
	return in.keys == 0 && in.Name == nil && in.Quantity == nil
}

type ChangeOp string

const (
	ChangeOpCreate ChangeOp = "create"
	ChangeOpUpdate ChangeOp = "update"
	ChangeOpDelete ChangeOp = "delete"
)

// RowChange records one applied mutation. Row holds the state after the
// change, or the removed row for deletes.
type RowChange struct {
	ID         string
	Op         ChangeOp
	Row        Row
	OccurredAt time.Time
}
