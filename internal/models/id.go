package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID is the canonical identifier used everywhere in the core. Clients send
// ids as strings, bare numbers, or populated objects carrying "_id"/"id";
// UnmarshalJSON folds all of them into a trimmed string so comparisons and
// signature payloads see a single form.
type ID string

func NewID() ID {
	return ID(uuid.NewString())
}

func (id ID) String() string {
	return string(id)
}

func (id ID) Empty() bool {
	return id == ""
}

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	case '{':
		var obj struct {
			MongoID *ID `json:"_id"`
			ID      *ID `json:"id"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		switch {
		case obj.MongoID != nil:
			*id = *obj.MongoID
		case obj.ID != nil:
			*id = *obj.ID
		default:
			return fmt.Errorf("identifier object has no _id or id field")
		}
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("identifier must be a string, number or object: %w", err)
		}
		*id = ID(n.String())
		return nil
	}
}

// Text is a string field that tolerates clients sending numbers or booleans,
// e.g. a millisecond timestamp produced by Date.now().
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}
	if bytes.Equal(data, []byte("true")) || bytes.Equal(data, []byte("false")) {
		*t = Text(data)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected a string or number: %w", err)
	}
	*t = Text(n.String())
	return nil
}
