package fields

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/formlane/forms-api/internal/models"
)

// NumericOptions is the options bag for numeric fields.
type NumericOptions struct {
	Default float64 `json:"default"`
	// Format is a printf-style verb applied when displaying the value.
	Format string `json:"format"`
}

type numericField struct {
	base
	opts NumericOptions
	num  float64
}

func newNumeric(def *models.FieldDef) *numericField {
	f := &numericField{base: base{def: def}}
	decodeOptions(def.Options, &f.opts)
	if f.opts.Format == "" {
		f.opts.Format = "%.2f"
	}
	return f
}

// SetValue coerces the raw value to a float. Coercion always succeeds;
// unparseable input becomes zero.
func (f *numericField) SetValue(raw string) {
	f.num, _ = strconv.ParseFloat(raw, 64)
	f.value = strconv.FormatFloat(f.num, 'f', -1, 64)
}

func (f *numericField) DisplayValue(siblings []Field, checkAccess bool, viewer models.Viewer) (string, bool) {
	if _, ok := f.base.DisplayValue(siblings, checkAccess, viewer); !ok {
		return "", false
	}
	return fmt.Sprintf(f.opts.Format, f.num), true
}

// Validate never fails: numeric coercion always succeeds.
func (f *numericField) Validate(url.Values) string { return "" }

func (f *numericField) Render(ctx RenderContext) *models.RenderedField {
	if !f.canFill(ctx.Viewer) {
		return nil
	}
	rf := f.renderShell(models.TypeNumeric)
	if ctx.Preview() || f.value == "" {
		rf.Value = strconv.FormatFloat(f.opts.Default, 'f', -1, 64)
	} else {
		rf.Value = f.value
	}
	sessionAttrs(ctx, rf)
	return rf
}

func (f *numericField) OptionsFromDefinition(post url.Values) (json.RawMessage, error) {
	opts := NumericOptions{Format: post.Get("format")}
	if v, err := strconv.ParseFloat(post.Get("default"), 64); err == nil {
		opts.Default = v
	}
	if opts.Format == "" {
		opts.Format = "%.2f"
	}
	return json.Marshal(opts)
}
