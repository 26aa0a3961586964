package fields

import (
	"encoding/json"
	"net/url"

	"github.com/formlane/forms-api/internal/models"
)

// CheckboxOptions is the options bag for single checkboxes.
type CheckboxOptions struct {
	Default bool `json:"default"`
}

type checkboxField struct {
	base
	opts CheckboxOptions
}

func newCheckbox(def *models.FieldDef) *checkboxField {
	f := &checkboxField{base: base{def: def}}
	decodeOptions(def.Options, &f.opts)
	return f
}

// ValueFromPost maps presence of the key to 1, absence to 0. Browsers omit
// unchecked boxes from the post entirely.
func (f *checkboxField) ValueFromPost(post url.Values) string {
	switch post.Get(f.def.Name) {
	case "", "0":
		return "0"
	default:
		return "1"
	}
}

func (f *checkboxField) SetValue(raw string) {
	if raw == "1" {
		f.value = "1"
	} else {
		f.value = "0"
	}
}

func (f *checkboxField) DisplayValue(siblings []Field, checkAccess bool, viewer models.Viewer) (string, bool) {
	v, ok := f.base.DisplayValue(siblings, checkAccess, viewer)
	if !ok {
		return "", false
	}
	if v == "1" {
		return "Yes", true
	}
	return "No", true
}

// Validate never fails for checkboxes: absent means unchecked.
func (f *checkboxField) Validate(url.Values) string { return "" }

func (f *checkboxField) Render(ctx RenderContext) *models.RenderedField {
	if !f.canFill(ctx.Viewer) {
		return nil
	}
	rf := f.renderShell(models.TypeCheckbox)
	checked := f.value == "1"
	if ctx.Preview() || f.value == "" {
		checked = f.opts.Default
	}
	if checked {
		rf.Value = "1"
	} else {
		rf.Value = "0"
	}
	sessionAttrs(ctx, rf)
	return rf
}

func (f *checkboxField) OptionsFromDefinition(post url.Values) (json.RawMessage, error) {
	return json.Marshal(CheckboxOptions{Default: post.Get("default") == "1"})
}
