package odoo

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Record is one remote object as returned by read / search_read
type Record map[string]interface{}

// ID returns the record id
func (r Record) ID() int64 {
	id, _ := toInt64(r["id"])
	return id
}

// Int64 returns an integer field, 0 when unset or false
func (r Record) Int64(field string) int64 {
	v, _ := toInt64(r[field])
	return v
}

// Float returns a numeric field, 0 when unset or false
func (r Record) Float(field string) float64 {
	switch v := r[field].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	}
	if i, ok := toInt64(r[field]); ok {
		return float64(i)
	}
	return 0
}

// String returns a text field; Odoo's false becomes ""
func (r Record) String(field string) string {
	if s, ok := r[field].(string); ok {
		return s
	}
	return ""
}

// Many2one returns the id of a many2one field ([id, name] or false)
func (r Record) Many2one(field string) int64 {
	switch v := r[field].(type) {
	case []interface{}:
		if len(v) == 0 {
			return 0
		}
		id, _ := toInt64(v[0])
		return id
	}
	id, _ := toInt64(r[field])
	return id
}

// IDs returns the ids of a one2many / many2many field
func (r Record) IDs(field string) []int64 {
	switch v := r[field].(type) {
	case []int64:
		return append([]int64(nil), v...)
	case []interface{}:
		ids := make([]int64, 0, len(v))
		for _, item := range v {
			if id, ok := toInt64(item); ok {
				ids = append(ids, id)
			}
		}
		return ids
	}
	return nil
}

// Decode converts records into a slice of structs with json tags,
// the same way the product/location pulls do.
func Decode(records []Record, result interface{}) error {
	jsonData, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to marshal raw result: %w", err)
	}
	if err := json.Unmarshal(jsonData, result); err != nil {
		return fmt.Errorf("failed to unmarshal into target: %w", err)
	}
	return nil
}

// Helper function to convert interface{} to specific types safely
func toInt64(v interface{}) (int64, bool) {
	if v == nil {
		return 0, false
	}
	val := reflect.ValueOf(v)
	switch val.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return val.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(val.Uint()), true
	case reflect.Float32, reflect.Float64:
		return int64(val.Float()), true
	}
	return 0, false
}

// Commands for x2many writes
const (
	cmdCreate  = 0
	cmdReplace = 6
)

// CreateLine builds one (0, 0, values) x2many command; the field value is a
// list of them
func CreateLine(values map[string]interface{}) []interface{} {
	return []interface{}{cmdCreate, 0, values}
}

// ReplaceIDs builds an x2many field value holding the single (6, 0, ids)
// command, which sets the relation to exactly ids
func ReplaceIDs(ids ...int64) []interface{} {
	list := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		list = append(list, id)
	}
	return []interface{}{[]interface{}{cmdReplace, 0, list}}
}
