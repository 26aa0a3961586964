package fields

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formlane/forms-api/internal/models"
)

func TestNewRejectsUnknownType(t *testing.T) {
	_, err := New(&models.FieldDef{Name: "x", Type: "blob"})
	require.Error(t, err)
}

func TestRequiredTextValidation(t *testing.T) {
	def := &models.FieldDef{
		Name: "name", Type: models.TypeText, Enabled: true,
		Access:  models.FieldAccessRequired,
		FillGID: models.AnonymousGID, ResultsGID: models.AnonymousGID,
	}
	f, err := New(def)
	require.NoError(t, err)

	assert.NotEmpty(t, f.Validate(url.Values{}))

	post := url.Values{}
	post.Set("name", "Alice")
	assert.Empty(t, f.Validate(post))
}

func TestDisabledFieldSkipsValidation(t *testing.T) {
	def := &models.FieldDef{
		Name: "name", Type: models.TypeText, Enabled: false,
		Access:  models.FieldAccessRequired,
		FillGID: models.AnonymousGID, ResultsGID: models.AnonymousGID,
	}
	f, err := New(def)
	require.NoError(t, err)
	assert.Empty(t, f.Validate(url.Values{}))
}

func TestNonRequiredFieldSkipsValidation(t *testing.T) {
	def := &models.FieldDef{
		Name: "name", Type: models.TypeText, Enabled: true,
		Access:  models.FieldAccessNormal,
		FillGID: models.AnonymousGID, ResultsGID: models.AnonymousGID,
	}
	f, err := New(def)
	require.NoError(t, err)
	assert.Empty(t, f.Validate(url.Values{}))
}

func TestTextRenderGatedOnFillGroup(t *testing.T) {
	def := &models.FieldDef{
		Name: "secret", Type: models.TypeText, Enabled: true,
		FillGID: 42, ResultsGID: 42,
	}
	f, err := New(def)
	require.NoError(t, err)

	assert.Nil(t, f.Render(RenderContext{Viewer: models.Viewer{UID: "u1"}}))

	rf := f.Render(RenderContext{Viewer: models.Viewer{UID: "u1", Groups: []int64{42}}})
	require.NotNil(t, rf)
	assert.Equal(t, "secret", rf.Name)
}

func TestHiddenRenderBypassesFillGroup(t *testing.T) {
	def := defWithOptions(t, "ref", models.TypeHidden, HiddenOptions{Default: "abc"})
	def.FillGID = 42
	f, err := New(def)
	require.NoError(t, err)

	rf := f.Render(RenderContext{Viewer: models.Viewer{}})
	require.NotNil(t, rf)
	assert.Equal(t, "abc", rf.Value)
}

func TestStaticNeverPersistsAndShowsConfiguredText(t *testing.T) {
	def := defWithOptions(t, "notice", models.TypeStatic, StaticOptions{Default: "Read carefully"})
	f, err := New(def)
	require.NoError(t, err)

	assert.False(t, f.Persistent())

	f.SetValue("user supplied junk")
	got, ok := f.DisplayValue(nil, false, models.Viewer{})
	require.True(t, ok)
	assert.Equal(t, "Read carefully", got)

	rf := f.Render(RenderContext{Viewer: models.Viewer{}})
	require.NotNil(t, rf)
	assert.Equal(t, "Read carefully", rf.Value)
}

func TestCheckboxDisplayMapsYesNo(t *testing.T) {
	def := defWithOptions(t, "agree", models.TypeCheckbox, CheckboxOptions{})
	f, err := New(def)
	require.NoError(t, err)

	f.SetValue("1")
	got, _ := f.DisplayValue(nil, false, models.Viewer{})
	assert.Equal(t, "Yes", got)

	f.SetValue("0")
	got, _ = f.DisplayValue(nil, false, models.Viewer{})
	assert.Equal(t, "No", got)
}

func TestMulticheckRoundTrip(t *testing.T) {
	def := defWithOptions(t, "colors", models.TypeMulticheck, EnumOptions{
		Values: []string{"Red", "Blue", "Green"},
	})
	f, err := New(def)
	require.NoError(t, err)

	post := url.Values{"colors": {"Red", "Green", "Purple"}}
	raw := f.ValueFromPost(post)
	assert.JSONEq(t, `["Red","Green"]`, raw)

	f.SetValue(raw)
	got, ok := f.DisplayValue(nil, false, models.Viewer{})
	require.True(t, ok)
	assert.Equal(t, "Red, Green", got)
}

func TestMulticheckMalformedStoredValue(t *testing.T) {
	def := defWithOptions(t, "colors", models.TypeMulticheck, EnumOptions{
		Values: []string{"Red"},
	})
	f, err := New(def)
	require.NoError(t, err)

	f.SetValue("{not json")
	got, ok := f.DisplayValue(nil, false, models.Viewer{})
	require.True(t, ok)
	assert.Empty(t, got)
}

func TestNumericDisplayFormat(t *testing.T) {
	def := defWithOptions(t, "amount", models.TypeNumeric, NumericOptions{Format: "%.1f"})
	f, err := New(def)
	require.NoError(t, err)

	f.SetValue("3.14159")
	got, ok := f.DisplayValue(nil, false, models.Viewer{})
	require.True(t, ok)
	assert.Equal(t, "3.1", got)

	f.SetValue("not a number")
	got, _ = f.DisplayValue(nil, false, models.Viewer{})
	assert.Equal(t, "0.0", got)
}

func TestDisplayValueChecksResultsGroup(t *testing.T) {
	def := &models.FieldDef{
		Name: "salary", Type: models.TypeText, Enabled: true,
		FillGID: models.AnonymousGID, ResultsGID: 7,
	}
	f, err := New(def)
	require.NoError(t, err)
	f.SetValue("100")

	_, ok := f.DisplayValue(nil, true, models.Viewer{UID: "u1"})
	assert.False(t, ok)

	got, ok := f.DisplayValue(nil, true, models.Viewer{UID: "u1", Groups: []int64{7}})
	require.True(t, ok)
	assert.Equal(t, "100", got)

	got, ok = f.DisplayValue(nil, false, models.Viewer{UID: "u1"})
	require.True(t, ok)
	assert.Equal(t, "100", got)
}

func TestTextAutogenIgnoresPostedValue(t *testing.T) {
	prev := autogenHook
	defer SetAutogenHook(prev)
	SetAutogenHook(func(models.Viewer) string { return "gen-1" })

	def := defWithOptions(t, "code", models.TypeText, TextOptions{Autogen: true})
	f, err := New(def)
	require.NoError(t, err)

	post := url.Values{}
	post.Set("code", "user override")
	assert.Equal(t, "gen-1", f.ValueFromPost(post))
}

func TestMalformedOptionsDecodeToEmptyBag(t *testing.T) {
	def := &models.FieldDef{
		Name: "colors", Type: models.TypeSelect, Enabled: true,
		Options: []byte("{{{"), FillGID: models.AnonymousGID, ResultsGID: models.AnonymousGID,
	}
	f, err := New(def)
	require.NoError(t, err)

	rf := f.Render(RenderContext{Viewer: models.Viewer{}})
	require.NotNil(t, rf)
	assert.Empty(t, rf.Options)
}

func TestHydrateSkipsUnknownTypes(t *testing.T) {
	defs := []models.FieldDef{
		{Name: "a", Type: models.TypeText, Enabled: true},
		{Name: "b", Type: "mystery", Enabled: true},
	}
	got := Hydrate(defs)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Def().Name)
}
