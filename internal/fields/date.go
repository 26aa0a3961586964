package fields

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/formlane/forms-api/internal/models"
)

// DateOptions is the options bag for date fields.
type DateOptions struct {
	// ShowTime adds hour/minute sub-inputs and a time component to the
	// canonical value.
	ShowTime bool `json:"showtime"`
	// TimeFormat is 12 or 24.
	TimeFormat int `json:"timeformat"`
	// Format selects month-first ("MDY") or day-first ("DMY") display.
	Format string `json:"format"`
	// InferCentury expands two-digit years on input.
	InferCentury bool   `json:"century"`
	Default      string `json:"default"`
}

type dateField struct {
	base
	opts DateOptions

	year, month, day int
	hour, minute     int
	hasTime          bool
	display          string
}

func newDate(def *models.FieldDef) *dateField {
	f := &dateField{base: base{def: def}}
	decodeOptions(def.Options, &f.opts)
	if f.opts.TimeFormat != 12 {
		f.opts.TimeFormat = 24
	}
	if f.opts.Format != "DMY" {
		f.opts.Format = "MDY"
	}
	return f
}

// ValueFromPost assembles the composite sub-keys into the canonical
// "YYYY-MM-DD[ HH:MM]" string. A pre-assembled value under the plain field
// name wins when present.
func (f *dateField) ValueFromPost(post url.Values) string {
	if v := post.Get(f.def.Name); v != "" {
		return v
	}
	name := f.def.Name
	year := atoi(post.Get(name + "_year"))
	month := atoi(post.Get(name + "_month"))
	day := atoi(post.Get(name + "_day"))
	if year == 0 && month == 0 && day == 0 {
		return ""
	}
	if f.opts.InferCentury {
		year = inferCentury(year)
	}
	value := fmt.Sprintf("%04d-%02d-%02d", year, month, day)
	if f.opts.ShowTime {
		hour := atoi(post.Get(name + "_hour"))
		minute := atoi(post.Get(name + "_minute"))
		if f.opts.TimeFormat == 12 {
			hour = to24Hour(hour, post.Get(name+"_ampm"))
		}
		value += fmt.Sprintf(" %02d:%02d", hour, minute)
	}
	return value
}

// SetValue parses the canonical value and precomputes the display text;
// date formatting is expensive enough to do once.
func (f *dateField) SetValue(raw string) {
	f.value = raw
	f.year, f.month, f.day = 0, 0, 0
	f.hour, f.minute = 0, 0
	f.hasTime = false
	f.display = ""
	if raw == "" {
		return
	}

	datePart := raw
	if i := strings.IndexByte(raw, ' '); i > 0 {
		datePart = raw[:i]
		timePart := raw[i+1:]
		if hh, mm, ok := splitClock(timePart); ok {
			f.hour, f.minute = hh, mm
			f.hasTime = true
		}
	}
	parts := strings.SplitN(datePart, "-", 3)
	if len(parts) == 3 {
		f.year = atoi(parts[0])
		f.month = atoi(parts[1])
		f.day = atoi(parts[2])
	}
	f.display = f.formatDisplay()
}

func (f *dateField) formatDisplay() string {
	if f.year == 0 && f.month == 0 && f.day == 0 {
		return ""
	}
	var out string
	if f.opts.Format == "DMY" {
		out = fmt.Sprintf("%02d/%02d/%04d", f.day, f.month, f.year)
	} else {
		out = fmt.Sprintf("%02d/%02d/%04d", f.month, f.day, f.year)
	}
	if f.hasTime {
		if f.opts.TimeFormat == 12 {
			hh, ampm := to12Hour(f.hour)
			out += fmt.Sprintf(" %d:%02d %s", hh, f.minute, ampm)
		} else {
			out += fmt.Sprintf(" %02d:%02d", f.hour, f.minute)
		}
	}
	return out
}

func (f *dateField) DisplayValue(siblings []Field, checkAccess bool, viewer models.Viewer) (string, bool) {
	if _, ok := f.base.DisplayValue(siblings, checkAccess, viewer); !ok {
		return "", false
	}
	return f.display, true
}

// Validate checks presence of every sub-component for required fields and
// calendar validity of whatever was supplied.
func (f *dateField) Validate(post url.Values) string {
	if !f.def.Enabled {
		return ""
	}
	if !f.def.Required() {
		// a voluntarily supplied date must still be a real date
		if v := f.ValueFromPost(post); v != "" {
			return f.checkCalendar(v)
		}
		return ""
	}

	name := f.def.Name
	if pre := post.Get(name); pre != "" {
		return f.checkCalendar(pre)
	}
	for _, sub := range []string{"_year", "_month", "_day"} {
		if post.Get(name+sub) == "" {
			return f.prompt() + " is required"
		}
	}
	return f.checkCalendar(f.ValueFromPost(post))
}

func (f *dateField) checkCalendar(value string) string {
	datePart := value
	if i := strings.IndexByte(value, ' '); i > 0 {
		datePart = value[:i]
	}
	parts := strings.SplitN(datePart, "-", 3)
	if len(parts) != 3 {
		return f.prompt() + " is not a valid date"
	}
	if !validDate(atoi(parts[0]), atoi(parts[1]), atoi(parts[2])) {
		return f.prompt() + " is not a valid date"
	}
	return ""
}

func (f *dateField) Render(ctx RenderContext) *models.RenderedField {
	if !f.canFill(ctx.Viewer) {
		return nil
	}
	rf := f.renderShell(models.TypeDate)

	year, month, day := f.year, f.month, f.day
	hour, minute := f.hour, f.minute
	if ctx.Preview() || f.value == "" {
		d := newDate(f.def)
		d.SetValue(f.opts.Default)
		year, month, day, hour, minute = d.year, d.month, d.day, d.hour, d.minute
	}

	rf.SubInputs = []models.SubInput{
		{Name: f.def.Name + "_month", Value: itoaNonZero(month)},
		{Name: f.def.Name + "_day", Value: itoaNonZero(day)},
		{Name: f.def.Name + "_year", Value: itoaNonZero(year)},
	}
	if f.opts.ShowTime {
		hh := hour
		ampm := ""
		if f.opts.TimeFormat == 12 {
			hh, ampm = to12Hour(hour)
		}
		rf.SubInputs = append(rf.SubInputs,
			models.SubInput{Name: f.def.Name + "_hour", Value: strconv.Itoa(hh)},
			models.SubInput{Name: f.def.Name + "_minute", Value: fmt.Sprintf("%02d", minute)},
		)
		if f.opts.TimeFormat == 12 {
			rf.SubInputs = append(rf.SubInputs, models.SubInput{Name: f.def.Name + "_ampm", Value: ampm})
		}
	}
	rf.Value = f.value
	sessionAttrs(ctx, rf)
	return rf
}

func (f *dateField) OptionsFromDefinition(post url.Values) (json.RawMessage, error) {
	opts := DateOptions{
		ShowTime:     post.Get("showtime") == "1",
		InferCentury: post.Get("century") == "1",
		Default:      post.Get("default"),
	}
	if post.Get("timeformat") == "12" {
		opts.TimeFormat = 12
	} else {
		opts.TimeFormat = 24
	}
	if post.Get("format") == "DMY" {
		opts.Format = "DMY"
	} else {
		opts.Format = "MDY"
	}
	return json.Marshal(opts)
}

var daysInMonth = [13]int{0, 31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

// validDate is a standard calendar-validity check: rejects month 13,
// Feb 30 and the like, honoring leap years.
func validDate(year, month, day int) bool {
	if year < 1 || month < 1 || month > 12 || day < 1 {
		return false
	}
	max := daysInMonth[month]
	if month == 2 && isLeap(year) {
		max = 29
	}
	return day <= max
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// inferCentury expands two-digit years: 00-49 land in the 2000s,
// 50-99 in the 1900s.
func inferCentury(year int) int {
	if year >= 100 {
		return year
	}
	if year < 50 {
		return year + 2000
	}
	return year + 1900
}

// to24Hour converts a 12-hour clock reading to 24-hour.
func to24Hour(hour int, ampm string) int {
	switch strings.ToLower(strings.TrimSpace(ampm)) {
	case "pm":
		if hour < 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	}
	return hour
}

// to12Hour converts a 24-hour clock reading to 12-hour plus meridiem.
func to12Hour(hour int) (int, string) {
	switch {
	case hour == 0:
		return 12, "am"
	case hour < 12:
		return hour, "am"
	case hour == 12:
		return 12, "pm"
	default:
		return hour - 12, "pm"
	}
}

func splitClock(raw string) (hh, mm int, ok bool) {
	parts := strings.Split(raw, ":")
	if len(parts) < 2 {
		return 0, 0, false
	}
	return atoi(parts[0]), atoi(parts[1]), true
}

func atoi(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}

func itoaNonZero(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}
