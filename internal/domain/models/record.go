package models

import "maps"

// Record is one upstream row: field name to scalar value.
type Record map[string]any

// Clone returns a shallow copy; values are scalars so this is a full copy.
func (r Record) Clone() Record {
	if r == nil {
		return Record{}
	}
	return maps.Clone(r)
}

// StringField returns the field as a non-empty string.
func (r Record) StringField(name string) (string, bool) {
	v, ok := r[name]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// Notification ties a boolean trigger field to the record that raised it.
type Notification struct {
	Dataset  string `json:"dataset"`
	Identity string `json:"identity"`
	Field    string `json:"field"`
	Record   Record `json:"record"`
}
