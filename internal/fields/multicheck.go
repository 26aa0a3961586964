package fields

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/formlane/forms-api/internal/models"
)

type multicheckField struct {
	base
	opts     EnumOptions
	selected []string
}

func newMulticheck(def *models.FieldDef) *multicheckField {
	f := &multicheckField{base: base{def: def}}
	decodeOptions(def.Options, &f.opts)
	return f
}

// ValueFromPost collects every posted selection that belongs to the
// enumerated value list and serializes the set as a JSON array.
func (f *multicheckField) ValueFromPost(post url.Values) string {
	var picked []string
	for _, v := range post[f.def.Name] {
		if f.opts.contains(v) {
			picked = append(picked, v)
		}
	}
	if len(picked) == 0 {
		return ""
	}
	raw, err := json.Marshal(picked)
	if err != nil {
		return ""
	}
	return string(raw)
}

// SetValue decodes the stored JSON array. Malformed data yields an empty
// selection, never an error.
func (f *multicheckField) SetValue(raw string) {
	f.value = raw
	f.selected = nil
	if raw == "" {
		return
	}
	_ = json.Unmarshal([]byte(raw), &f.selected)
}

// Selected exposes the decoded selections.
func (f *multicheckField) Selected() []string { return f.selected }

func (f *multicheckField) DisplayValue(siblings []Field, checkAccess bool, viewer models.Viewer) (string, bool) {
	if _, ok := f.base.DisplayValue(siblings, checkAccess, viewer); !ok {
		return "", false
	}
	return strings.Join(f.selected, ", "), true
}

func (f *multicheckField) Validate(post url.Values) string {
	if !f.def.Enabled || !f.def.Required() {
		return ""
	}
	if len(post[f.def.Name]) == 0 {
		return f.prompt() + " is required"
	}
	return ""
}

func (f *multicheckField) Render(ctx RenderContext) *models.RenderedField {
	if !f.canFill(ctx.Viewer) {
		return nil
	}
	rf := f.renderShell(models.TypeMulticheck)
	rf.Options = f.opts.Values
	if ctx.Preview() || f.value == "" {
		if f.opts.Default != "" {
			rf.Values = []string{f.opts.Default}
		}
	} else {
		rf.Values = f.selected
	}
	sessionAttrs(ctx, rf)
	return rf
}

func (f *multicheckField) OptionsFromDefinition(post url.Values) (json.RawMessage, error) {
	return enumOptionsFromDefinition(post)
}
