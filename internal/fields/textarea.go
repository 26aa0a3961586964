package fields

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/formlane/forms-api/internal/models"
)

// TextareaOptions is the options bag for multi-line text fields.
type TextareaOptions struct {
	Default string `json:"default"`
	Rows    int    `json:"rows"`
	Cols    int    `json:"cols"`
}

type textareaField struct {
	base
	opts TextareaOptions
}

func newTextarea(def *models.FieldDef) *textareaField {
	f := &textareaField{base: base{def: def}}
	decodeOptions(def.Options, &f.opts)
	if f.opts.Rows <= 0 {
		f.opts.Rows = 5
	}
	if f.opts.Cols <= 0 {
		f.opts.Cols = 60
	}
	return f
}

// DisplayValue wraps stored newlines as line breaks for result listings
// and notification bodies.
func (f *textareaField) DisplayValue(siblings []Field, checkAccess bool, viewer models.Viewer) (string, bool) {
	v, ok := f.base.DisplayValue(siblings, checkAccess, viewer)
	if !ok {
		return "", false
	}
	v = strings.ReplaceAll(v, "\r\n", "\n")
	return strings.ReplaceAll(v, "\n", "<br />"), true
}

func (f *textareaField) Render(ctx RenderContext) *models.RenderedField {
	if !f.canFill(ctx.Viewer) {
		return nil
	}
	rf := f.renderShell(models.TypeTextarea)
	if ctx.Preview() || f.value == "" {
		rf.Value = f.opts.Default
	} else {
		rf.Value = f.value
	}
	rf.Attrs = map[string]string{
		"rows": strconv.Itoa(f.opts.Rows),
		"cols": strconv.Itoa(f.opts.Cols),
	}
	sessionAttrs(ctx, rf)
	return rf
}

func (f *textareaField) OptionsFromDefinition(post url.Values) (json.RawMessage, error) {
	opts := TextareaOptions{Default: post.Get("default")}
	if n, err := strconv.Atoi(post.Get("rows")); err == nil && n > 0 {
		opts.Rows = n
	}
	if n, err := strconv.Atoi(post.Get("cols")); err == nil && n > 0 {
		opts.Cols = n
	}
	return json.Marshal(opts)
}
