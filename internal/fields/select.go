package fields

import (
	"encoding/json"
	"net/url"

	"github.com/formlane/forms-api/internal/models"
)

type selectField struct {
	base
	opts EnumOptions
}

func newSelect(def *models.FieldDef) *selectField {
	f := &selectField{base: base{def: def}}
	decodeOptions(def.Options, &f.opts)
	return f
}

func (f *selectField) Render(ctx RenderContext) *models.RenderedField {
	if !f.canFill(ctx.Viewer) {
		return nil
	}
	rf := f.renderShell(models.TypeSelect)
	rf.Options = f.opts.Values
	if ctx.Preview() || f.value == "" {
		rf.Value = f.opts.Default
	} else {
		rf.Value = f.value
	}
	sessionAttrs(ctx, rf)
	return rf
}

func (f *selectField) OptionsFromDefinition(post url.Values) (json.RawMessage, error) {
	return enumOptionsFromDefinition(post)
}
