package notes

import (
	"bytes"
	"encoding/json"
)

// OptionalString distinguishes an absent field from one explicitly set, including to null.
type OptionalString struct {
	Present bool
	Value   *string
}

// Set returns a present OptionalString holding value.
func Set(value string) OptionalString {
	return OptionalString{Present: true, Value: &value}
}

// Clear returns a present OptionalString holding null.
func Clear() OptionalString {
	return OptionalString{Present: true}
}

// UnmarshalJSON marks the field present; JSON null clears the value.
func (o *OptionalString) UnmarshalJSON(data []byte) error {
	o.Present = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Value = nil
		return nil
	}
	var value string
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	o.Value = &value
	return nil
}

// stored returns the column value: empty and null both clear the field.
func (o OptionalString) stored() *string {
	if o.Value == nil || *o.Value == "" {
		return nil
	}
	value := *o.Value
	return &value
}
