package fields

import (
	"encoding/json"
	"net/url"

	"github.com/formlane/forms-api/internal/models"
)

// HiddenOptions is the options bag for hidden fields.
type HiddenOptions struct {
	Default string `json:"default"`
}

// hiddenField renders a hidden input for every viewer: unlike all other
// types it does not gate rendering on the fill group.
type hiddenField struct {
	base
	opts HiddenOptions
}

func newHidden(def *models.FieldDef) *hiddenField {
	f := &hiddenField{base: base{def: def}}
	decodeOptions(def.Options, &f.opts)
	return f
}

func (f *hiddenField) Validate(url.Values) string { return "" }

func (f *hiddenField) Render(ctx RenderContext) *models.RenderedField {
	rf := f.renderShell(models.TypeHidden)
	if ctx.Preview() || f.value == "" {
		rf.Value = f.opts.Default
	} else {
		rf.Value = f.value
	}
	return rf
}

func (f *hiddenField) OptionsFromDefinition(post url.Values) (json.RawMessage, error) {
	return json.Marshal(HiddenOptions{Default: post.Get("default")})
}
