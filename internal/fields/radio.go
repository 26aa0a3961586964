package fields

import (
	"encoding/json"
	"net/url"

	"github.com/formlane/forms-api/internal/models"
)

type radioField struct {
	base
	opts EnumOptions
}

func newRadio(def *models.FieldDef) *radioField {
	f := &radioField{base: base{def: def}}
	decodeOptions(def.Options, &f.opts)
	return f
}

func (f *radioField) Render(ctx RenderContext) *models.RenderedField {
	if !f.canFill(ctx.Viewer) {
		return nil
	}
	rf := f.renderShell(models.TypeRadio)
	rf.Options = f.opts.Values
	if ctx.Preview() || f.value == "" {
		rf.Value = f.opts.Default
	} else {
		rf.Value = f.value
	}
	sessionAttrs(ctx, rf)
	return rf
}

func (f *radioField) OptionsFromDefinition(post url.Values) (json.RawMessage, error) {
	return enumOptionsFromDefinition(post)
}
