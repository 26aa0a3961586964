package models

import "time"

// Result is one user's submission instance against a form.
type Result struct {
	ID          int64     `db:"result_id" json:"result_id"`
	FormID      string    `db:"form_id" json:"form_id"`
	InstanceID  string    `db:"instance_id" json:"instance_id,omitempty"`
	UID         string    `db:"uid" json:"uid"`
	SubmittedAt time.Time `db:"submitted_at" json:"submitted_at"`
	Approved    bool      `db:"approved" json:"approved"`
	IP          string    `db:"ip" json:"ip"`
	// Token is a capability secret issued at creation; it lets the
	// submitter view this result without a results-permission grant.
	Token string `db:"token" json:"-"`
}

// Value is one field's stored datum within a result.
type Value struct {
	ID       int64  `db:"value_id" json:"value_id"`
	ResultID int64  `db:"result_id" json:"result_id"`
	FieldID  int64  `db:"field_id" json:"field_id"`
	Value    string `db:"value" json:"value"`
}

// ResultFilter captures filtering criteria for listing results.
type ResultFilter struct {
	FormID     string
	UID        string
	InstanceID string
	Approved   *bool
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}
