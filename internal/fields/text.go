package fields

import (
	"encoding/json"
	"net/url"
	"strconv"

	"github.com/google/uuid"

	"github.com/formlane/forms-api/internal/models"
)

const maxTextLength = 255

// TextOptions is the options bag for single-line text fields.
type TextOptions struct {
	Default   string `json:"default"`
	Size      int    `json:"size"`
	MaxLength int    `json:"maxlength"`
	Autogen   bool   `json:"autogen"`
}

// AutogenFunc produces a generated value for autogen text fields.
type AutogenFunc func(viewer models.Viewer) string

// autogenHook is replaceable so hosts can plug their own generator.
var autogenHook AutogenFunc = func(models.Viewer) string {
	return uuid.NewString()
}

// SetAutogenHook swaps the value generator used by autogen text fields.
func SetAutogenHook(fn AutogenFunc) {
	if fn != nil {
		autogenHook = fn
	}
}

type textField struct {
	base
	opts TextOptions
}

func newText(def *models.FieldDef) *textField {
	f := &textField{base: base{def: def}}
	decodeOptions(def.Options, &f.opts)
	if f.opts.Size <= 0 || f.opts.Size > maxTextLength {
		f.opts.Size = 40
	}
	if f.opts.MaxLength <= 0 || f.opts.MaxLength > maxTextLength {
		f.opts.MaxLength = maxTextLength
	}
	return f
}

// ValueFromPost ignores posted input for autogen fields and generates the
// value server-side instead.
func (f *textField) ValueFromPost(post url.Values) string {
	if f.opts.Autogen {
		return autogenHook(models.Viewer{})
	}
	return post.Get(f.def.Name)
}

func (f *textField) Validate(post url.Values) string {
	if f.opts.Autogen {
		return ""
	}
	return f.base.Validate(post)
}

func (f *textField) Render(ctx RenderContext) *models.RenderedField {
	if !f.canFill(ctx.Viewer) {
		return nil
	}
	rf := f.renderShell(models.TypeText)
	if ctx.Preview() || f.value == "" {
		rf.Value = f.opts.Default
	} else {
		rf.Value = f.value
	}
	rf.Attrs = map[string]string{
		"size":      strconv.Itoa(f.opts.Size),
		"maxlength": strconv.Itoa(f.opts.MaxLength),
	}
	sessionAttrs(ctx, rf)
	return rf
}

func (f *textField) OptionsFromDefinition(post url.Values) (json.RawMessage, error) {
	opts := TextOptions{
		Default: post.Get("default"),
		Autogen: post.Get("autogen") == "1",
	}
	if n, err := strconv.Atoi(post.Get("size")); err == nil {
		opts.Size = min(n, maxTextLength)
	}
	if n, err := strconv.Atoi(post.Get("maxlength")); err == nil {
		opts.MaxLength = min(n, maxTextLength)
	}
	return json.Marshal(opts)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
