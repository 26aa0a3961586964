package fields

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/formlane/forms-api/internal/models"
)

// RenderContext carries everything a field needs to render itself: the
// requesting viewer, the render mode and the owning form's sub-type.
type RenderContext struct {
	Mode    models.RenderMode
	Viewer  models.Viewer
	FormID  string
	SubType string
}

// Preview reports whether persistence-oriented affordances must be disabled.
func (c RenderContext) Preview() bool {
	return c.Mode == models.ModePreview
}

// Field is the behaviour contract every field type implements.
//
// Render returns nil when the field contributes nothing to the form at all
// (viewer lacks fill permission, or the type never renders an input).
type Field interface {
	// Def exposes the stored definition backing this field.
	Def() *models.FieldDef

	// ValueFromPost extracts this field's canonical raw value from a
	// posted value set. Composite types assemble their sub-keys here.
	ValueFromPost(post url.Values) string

	// SetValue normalises a raw value from storage or submission into the
	// field's internal representation.
	SetValue(raw string)

	// Value returns the canonical raw value.
	Value() string

	// DisplayValue computes the value shown in result listings and
	// exports. The bool is false when the viewer may not see it.
	DisplayValue(siblings []Field, checkAccess bool, viewer models.Viewer) (string, bool)

	// Render produces the render-model entry for this field, or nil.
	Render(ctx RenderContext) *models.RenderedField

	// Validate returns a human-readable message when a required value is
	// missing or malformed, empty string otherwise.
	Validate(post url.Values) string

	// Persistent reports whether SaveData should write a value row.
	Persistent() bool

	// OptionsFromDefinition builds the type-specific options bag from an
	// admin definition form's posted values.
	OptionsFromDefinition(post url.Values) (json.RawMessage, error)
}

// New hydrates the right Field variant for the definition's type.
func New(def *models.FieldDef) (Field, error) {
	switch def.Type {
	case models.TypeText:
		return newText(def), nil
	case models.TypeTextarea:
		return newTextarea(def), nil
	case models.TypeNumeric:
		return newNumeric(def), nil
	case models.TypeCheckbox:
		return newCheckbox(def), nil
	case models.TypeRadio:
		return newRadio(def), nil
	case models.TypeSelect:
		return newSelect(def), nil
	case models.TypeMulticheck:
		return newMulticheck(def), nil
	case models.TypeDate:
		return newDate(def), nil
	case models.TypeTime:
		return newTime(def), nil
	case models.TypeStatic:
		return newStatic(def), nil
	case models.TypeHidden:
		return newHidden(def), nil
	case models.TypeCalc:
		return newCalc(def), nil
	default:
		return nil, fmt.Errorf("field %q: unknown type %q", def.Name, def.Type)
	}
}

// Hydrate builds fields for a whole definition list, preserving order.
// Definitions with unknown types are skipped rather than failing the form.
func Hydrate(defs []models.FieldDef) []Field {
	out := make([]Field, 0, len(defs))
	for i := range defs {
		f, err := New(&defs[i])
		if err != nil {
			continue
		}
		out = append(out, f)
	}
	return out
}

// decodeOptions unmarshals the stored options column into dst. Malformed or
// empty stored data leaves dst at its zero value; it is never fatal.
func decodeOptions(raw json.RawMessage, dst interface{}) {
	if len(raw) == 0 {
		return
	}
	_ = json.Unmarshal(raw, dst)
}

// base carries state and default behaviour shared by all variants.
type base struct {
	def   *models.FieldDef
	value string
}

func (b *base) Def() *models.FieldDef { return b.def }

func (b *base) Value() string { return b.value }

func (b *base) SetValue(raw string) { b.value = raw }

func (b *base) Persistent() bool { return true }

// ValueFromPost defaults to a direct key lookup, empty string if absent.
func (b *base) ValueFromPost(post url.Values) string {
	return post.Get(b.def.Name)
}

// canFill reports whether the viewer may see and fill this field's input.
func (b *base) canFill(viewer models.Viewer) bool {
	return viewer.InGroup(b.def.FillGID)
}

// canViewResults reports whether the viewer may see the stored value.
func (b *base) canViewResults(viewer models.Viewer) bool {
	return viewer.InGroup(b.def.ResultsGID)
}

// DisplayValue applies the results-permission check unless bypassed.
func (b *base) DisplayValue(_ []Field, checkAccess bool, viewer models.Viewer) (string, bool) {
	if checkAccess && !b.canViewResults(viewer) {
		return "", false
	}
	return b.value, true
}

// Validate enforces the required-field rule. Disabled fields and fields with
// any access mode but "required" always pass.
func (b *base) Validate(post url.Values) string {
	if !b.def.Enabled || !b.def.Required() {
		return ""
	}
	if post.Get(b.def.Name) == "" {
		return fmt.Sprintf("%s is required", b.prompt())
	}
	return ""
}

func (b *base) prompt() string {
	if b.def.Prompt != "" {
		return b.def.Prompt
	}
	return b.def.Name
}

// renderShell builds the common part of a render-model entry.
func (b *base) renderShell(typ models.FieldType) *models.RenderedField {
	return &models.RenderedField{
		Type:     typ,
		Name:     b.def.Name,
		Prompt:   b.def.Prompt,
		Required: b.def.Required(),
		ReadOnly: b.def.Access == models.FieldAccessReadOnly,
		Help:     b.def.Help,
	}
}

// sessionAttrs marks a rendered input for incremental server-side saves on
// session-backed forms. Preview renders never get the marker.
func sessionAttrs(ctx RenderContext, rf *models.RenderedField) {
	if ctx.SubType == models.SubTypeSession && !ctx.Preview() {
		if rf.Attrs == nil {
			rf.Attrs = map[string]string{}
		}
		rf.Attrs["autosave"] = "1"
	}
}
