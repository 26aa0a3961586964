package fields

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/formlane/forms-api/internal/models"
)

// TimeOptions is the options bag for time-of-day fields.
type TimeOptions struct {
	// TimeFormat is 12 or 24.
	TimeFormat int    `json:"timeformat"`
	Default    string `json:"default"`
}

type timeField struct {
	base
	opts         TimeOptions
	hour, minute int
	second       int
	display      string
}

func newTime(def *models.FieldDef) *timeField {
	f := &timeField{base: base{def: def}}
	decodeOptions(def.Options, &f.opts)
	if f.opts.TimeFormat != 12 {
		f.opts.TimeFormat = 24
	}
	return f
}

// ValueFromPost assembles hour/minute (and meridiem for 12-hour forms)
// sub-keys into the canonical "HH:MM:SS" string.
func (f *timeField) ValueFromPost(post url.Values) string {
	if v := post.Get(f.def.Name); v != "" {
		return v
	}
	name := f.def.Name
	if post.Get(name+"_hour") == "" && post.Get(name+"_minute") == "" {
		return ""
	}
	hour := atoi(post.Get(name + "_hour"))
	minute := atoi(post.Get(name + "_minute"))
	if f.opts.TimeFormat == 12 {
		hour = to24Hour(hour, post.Get(name+"_ampm"))
	}
	return fmt.Sprintf("%02d:%02d:00", hour, minute)
}

func (f *timeField) SetValue(raw string) {
	f.value = raw
	f.hour, f.minute, f.second = 0, 0, 0
	f.display = ""
	if raw == "" {
		return
	}
	parts := strings.Split(raw, ":")
	if len(parts) >= 2 {
		f.hour = atoi(parts[0])
		f.minute = atoi(parts[1])
	}
	if len(parts) >= 3 {
		f.second = atoi(parts[2])
	}
	if f.opts.TimeFormat == 12 {
		hh, ampm := to12Hour(f.hour)
		f.display = fmt.Sprintf("%d:%02d %s", hh, f.minute, ampm)
	} else {
		f.display = fmt.Sprintf("%02d:%02d", f.hour, f.minute)
	}
}

func (f *timeField) DisplayValue(siblings []Field, checkAccess bool, viewer models.Viewer) (string, bool) {
	if _, ok := f.base.DisplayValue(siblings, checkAccess, viewer); !ok {
		return "", false
	}
	return f.display, true
}

func (f *timeField) Validate(post url.Values) string {
	if !f.def.Enabled || !f.def.Required() {
		return ""
	}
	name := f.def.Name
	if post.Get(name) != "" {
		return ""
	}
	if post.Get(name+"_hour") == "" || post.Get(name+"_minute") == "" {
		return f.prompt() + " is required"
	}
	return ""
}

func (f *timeField) Render(ctx RenderContext) *models.RenderedField {
	if !f.canFill(ctx.Viewer) {
		return nil
	}
	rf := f.renderShell(models.TypeTime)

	hour, minute := f.hour, f.minute
	if ctx.Preview() || f.value == "" {
		d := newTime(f.def)
		d.SetValue(f.opts.Default)
		hour, minute = d.hour, d.minute
	}

	hh := hour
	ampm := ""
	if f.opts.TimeFormat == 12 {
		hh, ampm = to12Hour(hour)
	}
	rf.SubInputs = []models.SubInput{
		{Name: f.def.Name + "_hour", Value: fmt.Sprintf("%d", hh)},
		{Name: f.def.Name + "_minute", Value: fmt.Sprintf("%02d", minute)},
	}
	if f.opts.TimeFormat == 12 {
		rf.SubInputs = append(rf.SubInputs, models.SubInput{Name: f.def.Name + "_ampm", Value: ampm})
	}
	rf.Value = f.value
	sessionAttrs(ctx, rf)
	return rf
}

func (f *timeField) OptionsFromDefinition(post url.Values) (json.RawMessage, error) {
	opts := TimeOptions{Default: post.Get("default")}
	if post.Get("timeformat") == "12" {
		opts.TimeFormat = 12
	} else {
		opts.TimeFormat = 24
	}
	return json.Marshal(opts)
}
