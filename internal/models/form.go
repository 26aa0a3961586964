package models

import "time"

// LimitMode is the submission-limit policy of a form.
type LimitMode int

const (
	// LimitNone allows any number of submissions per user.
	LimitNone LimitMode = 0
	// LimitOnceLocked allows a single submission that can never be edited.
	LimitOnceLocked LimitMode = 1
	// LimitOnceEditable allows a single submission that the submitter may edit.
	LimitOnceEditable LimitMode = 2
)

// On-submit action bitmask values.
const (
	ActionStore     = 1 << 0
	ActionMailOwner = 1 << 1
	ActionMailGroup = 1 << 2
	ActionMailAddrs = 1 << 3
	ActionDisplay   = 1 << 4
)

// Access levels used with form permission checks.
type AccessLevel int

const (
	AccessAdmin AccessLevel = iota
	AccessFill
	AccessResults
)

// Form sub-types. Session forms keep values server-side between field
// saves instead of one atomic POST.
const (
	SubTypeStandard = "regular"
	SubTypeSession  = "ajax"
)

// Form is the admin-configured definition of one data-entry form.
type Form struct {
	ID         string `db:"form_id" json:"form_id"`
	CategoryID int64  `db:"category_id" json:"category_id"`
	Name       string `db:"form_name" json:"form_name"`

	Intro        string `db:"introtext" json:"introtext"`
	SubmitMsg    string `db:"submit_msg" json:"submit_msg"`
	NoAccessMsg  string `db:"noaccess_msg" json:"noaccess_msg"`
	NoEditMsg    string `db:"noedit_msg" json:"noedit_msg"`
	MaxSubmitMsg string `db:"max_submit_msg" json:"max_submit_msg"`

	Owner      string `db:"owner_id" json:"owner_id"`
	GroupID    int64  `db:"group_id" json:"group_id"`
	FillGID    int64  `db:"fill_gid" json:"fill_gid"`
	ResultsGID int64  `db:"results_gid" json:"results_gid"`

	Enabled   bool      `db:"enabled" json:"enabled"`
	Moderate  bool      `db:"req_approval" json:"req_approval"`
	LimitMode LimitMode `db:"onetime" json:"onetime"`
	MaxSubmit int       `db:"max_submit" json:"max_submit"`

	OnSubmit    int    `db:"onsubmit" json:"onsubmit"`
	EmailAddrs  string `db:"email" json:"email"`
	Redirect    string `db:"redirect" json:"redirect"`
	CaptchaFlag bool   `db:"captcha" json:"captcha"`
	InBlock     bool   `db:"inblock" json:"inblock"`
	SubType     string `db:"sub_type" json:"sub_type"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// StoresResults reports whether submissions are persisted at all.
func (f *Form) StoresResults() bool {
	return f.OnSubmit&ActionStore != 0
}

// Notifies reports whether any mail target is configured.
func (f *Form) Notifies() bool {
	return f.OnSubmit&(ActionMailOwner|ActionMailGroup|ActionMailAddrs) != 0
}

// FormFilter captures filtering criteria for listing forms.
type FormFilter struct {
	CategoryID *int64
	Enabled    *bool
	Search     string
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}

// RenderMode selects how a form is rendered.
type RenderMode string

const (
	ModeNormal  RenderMode = "normal"
	ModePreview RenderMode = "preview"
	ModeEdit    RenderMode = "edit"
)

// RenderedField is one entry of the render model returned to form consumers.
type RenderedField struct {
	Type     FieldType         `json:"type"`
	Name     string            `json:"name"`
	Prompt   string            `json:"prompt,omitempty"`
	Value    string            `json:"value,omitempty"`
	Values   []string          `json:"values,omitempty"`
	Options  []string          `json:"options,omitempty"`
	Required bool              `json:"required,omitempty"`
	ReadOnly bool              `json:"readonly,omitempty"`
	Help     string            `json:"help,omitempty"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	SubInputs []SubInput       `json:"sub_inputs,omitempty"`
}

// SubInput describes one component of a composite input (date/time parts).
type SubInput struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// RenderedForm is the full render model for one form.
type RenderedForm struct {
	FormID    string          `json:"form_id"`
	Name      string          `json:"form_name"`
	Intro     string          `json:"introtext,omitempty"`
	SubType   string          `json:"sub_type"`
	Captcha   bool            `json:"captcha,omitempty"`
	ResultID  int64           `json:"result_id,omitempty"`
	Submitter *SubmitterInfo  `json:"submitter,omitempty"`
	Fields    []RenderedField `json:"fields"`
}

// SubmitterInfo is shown in the header when an admin edits a submission.
type SubmitterInfo struct {
	UID         string    `json:"uid"`
	SubmittedAt time.Time `json:"submitted_at"`
	IP          string    `json:"ip"`
}
