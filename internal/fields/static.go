package fields

import (
	"encoding/json"
	"net/url"

	"github.com/formlane/forms-api/internal/models"
)

// StaticOptions is the options bag for static text fields.
type StaticOptions struct {
	Default string `json:"default"`
}

// staticField displays admin-configured text. It never accepts user input,
// never validates and never writes a value row: its value is always the
// configured default. Static fields are excluded from exports.
type staticField struct {
	base
	opts StaticOptions
}

func newStatic(def *models.FieldDef) *staticField {
	f := &staticField{base: base{def: def}}
	decodeOptions(def.Options, &f.opts)
	f.value = f.opts.Default
	return f
}

func (f *staticField) Persistent() bool { return false }

// SetValue ignores stored and submitted values; the configured text wins.
func (f *staticField) SetValue(string) {
	f.value = f.opts.Default
}

func (f *staticField) ValueFromPost(url.Values) string {
	return f.opts.Default
}

func (f *staticField) Validate(url.Values) string { return "" }

func (f *staticField) DisplayValue(siblings []Field, checkAccess bool, viewer models.Viewer) (string, bool) {
	if checkAccess && !f.canViewResults(viewer) {
		return "", false
	}
	return f.opts.Default, true
}

func (f *staticField) Render(ctx RenderContext) *models.RenderedField {
	if !f.canFill(ctx.Viewer) {
		return nil
	}
	rf := f.renderShell(models.TypeStatic)
	rf.Value = f.opts.Default
	return rf
}

func (f *staticField) OptionsFromDefinition(post url.Values) (json.RawMessage, error) {
	return json.Marshal(StaticOptions{Default: post.Get("default")})
}
