package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Diagnostics is the free-form draft_data payload of an offer. Keys other than
// publishErrors are owned by the editing tools and are preserved untouched.
type Diagnostics map[string]any

const publishErrorsKey = "publishErrors"

// PublishError is one operator-facing failure note.
type PublishError struct {
	At        time.Time `json:"at"`
	Step      string    `json:"step"`
	Subsystem string    `json:"subsystem"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
}

// AppendPublishError returns a copy of d with entry appended to publishErrors.
func (d Diagnostics) AppendPublishError(entry PublishError) Diagnostics {
	out := make(Diagnostics, len(d)+1)
	for k, v := range d {
		out[k] = v
	}
	existing := d.PublishErrors()
	list := make([]any, 0, len(existing)+1)
	for _, e := range existing {
		list = append(list, e)
	}
	list = append(list, entry)
	out[publishErrorsKey] = list
	return out
}

// PublishErrors decodes the publishErrors list regardless of whether it came
// from the database (generic JSON) or was appended in memory.
func (d Diagnostics) PublishErrors() []PublishError {
	raw, ok := d[publishErrorsKey]
	if !ok || raw == nil {
		return nil
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var out []PublishError
	if err := json.Unmarshal(encoded, &out); err != nil {
		return nil
	}
	return out
}

func (d Diagnostics) Value() (driver.Value, error) {
	if d == nil {
		return "{}", nil
	}
	encoded, err := json.Marshal(map[string]any(d))
	if err != nil {
		return nil, fmt.Errorf("diagnostics: marshal: %w", err)
	}
	return string(encoded), nil
}

func (d *Diagnostics) Scan(value interface{}) error {
	if value == nil {
		*d = Diagnostics{}
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("diagnostics: unsupported scan type %T", value)
	}
	if len(raw) == 0 {
		*d = Diagnostics{}
		return nil
	}
	decoded := map[string]any{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("diagnostics: unmarshal: %w", err)
	}
	*d = decoded
	return nil
}
