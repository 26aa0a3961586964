package models

import "encoding/json"

// FieldType is the closed set of supported field kinds.
type FieldType string

const (
	TypeText       FieldType = "text"
	TypeTextarea   FieldType = "textarea"
	TypeNumeric    FieldType = "numeric"
	TypeCheckbox   FieldType = "checkbox"
	TypeRadio      FieldType = "radio"
	TypeSelect     FieldType = "select"
	TypeMulticheck FieldType = "multicheck"
	TypeDate       FieldType = "date"
	TypeTime       FieldType = "time"
	TypeStatic     FieldType = "static"
	TypeHidden     FieldType = "hidden"
	TypeCalc       FieldType = "calc"
)

// FieldTypes lists every valid type, in admin display order.
var FieldTypes = []FieldType{
	TypeText, TypeTextarea, TypeNumeric, TypeCheckbox, TypeRadio,
	TypeSelect, TypeMulticheck, TypeDate, TypeTime, TypeStatic,
	TypeHidden, TypeCalc,
}

// Valid reports whether t is a known field type.
func (t FieldType) Valid() bool {
	for _, k := range FieldTypes {
		if t == k {
			return true
		}
	}
	return false
}

// FieldAccess is the mutually-exclusive access mode of a field.
type FieldAccess int

const (
	FieldAccessNormal FieldAccess = iota
	FieldAccessReadOnly
	FieldAccessHidden
	FieldAccessRequired
)

// FieldDef is the stored definition of one field on a form.
type FieldDef struct {
	ID         int64           `db:"field_id" json:"field_id"`
	FormID     string          `db:"form_id" json:"form_id"`
	Name       string          `db:"field_name" json:"field_name"`
	Type       FieldType       `db:"type" json:"type"`
	Enabled    bool            `db:"enabled" json:"enabled"`
	Access     FieldAccess     `db:"access" json:"access"`
	Prompt     string          `db:"prompt" json:"prompt"`
	Options    json.RawMessage `db:"options" json:"options"`
	SortKey    int             `db:"orderby" json:"orderby"`
	Help       string          `db:"help_msg" json:"help_msg"`
	FillGID    int64           `db:"fill_gid" json:"fill_gid"`
	ResultsGID int64           `db:"results_gid" json:"results_gid"`
}

// Required reports whether a value must be supplied on submission.
func (d *FieldDef) Required() bool {
	return d.Access == FieldAccessRequired
}

// FieldFilter captures filtering criteria for listing field definitions.
type FieldFilter struct {
	FormID  string
	IDs     []int64
	Enabled *bool
}
