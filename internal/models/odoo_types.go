package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// OdooString is a text field decoded from Odoo, which sends false for empty text
type OdooString string

// UnmarshalJSON accepts a string or false
func (s *OdooString) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = OdooString(str)
		return nil
	}

	var b bool
	if err := json.Unmarshal(data, &b); err == nil && !b {
		*s = ""
		return nil
	}
	return errors.New("OdooString: cannot unmarshal value into string")
}

// String returns native string value
func (s OdooString) String() string {
	return string(s)
}

// Many2one holds the id part of an Odoo many2one value.
// Odoo serialises these as [id, "display name"] or false when unset.
type Many2one struct {
	ID   int64
	Name string
}

// UnmarshalJSON accepts [id, name], a bare id, or false
func (m *Many2one) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*m = Many2one{}
		return nil
	}

	var id int64
	if err := json.Unmarshal(data, &id); err == nil {
		*m = Many2one{ID: id}
		return nil
	}

	var pair []interface{}
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("Many2one: cannot unmarshal %s", string(data))
	}
	if len(pair) == 0 {
		*m = Many2one{}
		return nil
	}
	f, ok := pair[0].(float64)
	if !ok {
		return fmt.Errorf("Many2one: unexpected id %v", pair[0])
	}
	m.ID = int64(f)
	if len(pair) > 1 {
		if name, ok := pair[1].(string); ok {
			m.Name = name
		}
	}
	return nil
}

// IsSet reports whether the relation points at a record
func (m Many2one) IsSet() bool {
	return m.ID != 0
}
