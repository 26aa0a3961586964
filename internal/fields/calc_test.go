package fields

import (
	"encoding/json"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formlane/forms-api/internal/models"
)

func defWithOptions(t *testing.T, name string, typ models.FieldType, opts interface{}) *models.FieldDef {
	t.Helper()
	raw, err := json.Marshal(opts)
	require.NoError(t, err)
	return &models.FieldDef{
		Name:       name,
		Type:       typ,
		Enabled:    true,
		Options:    raw,
		FillGID:    models.AnonymousGID,
		ResultsGID: models.AnonymousGID,
	}
}

func numericSibling(t *testing.T, name, value string) Field {
	t.Helper()
	f, err := New(&models.FieldDef{
		Name: name, Type: models.TypeText, Enabled: true,
		FillGID: models.AnonymousGID, ResultsGID: models.AnonymousGID,
	})
	require.NoError(t, err)
	f.SetValue(value)
	return f
}

func TestCalcSubtractSkipsNonNumeric(t *testing.T) {
	def := defWithOptions(t, "total", models.TypeCalc, CalcOptions{
		Operands: []string{"a", "b", "c"},
		CalcType: CalcSub,
	})
	calc, err := New(def)
	require.NoError(t, err)

	siblings := []Field{
		numericSibling(t, "a", "10"),
		numericSibling(t, "b", "x"),
		numericSibling(t, "c", "3"),
	}
	got, ok := calc.DisplayValue(siblings, false, models.Viewer{})
	require.True(t, ok)
	assert.Equal(t, "7.00", got)
}

func TestCalcDivideSkipsZeroDivisor(t *testing.T) {
	def := defWithOptions(t, "ratio", models.TypeCalc, CalcOptions{
		Operands: []string{"a", "b", "c"},
		CalcType: CalcDiv,
	})
	calc, err := New(def)
	require.NoError(t, err)

	siblings := []Field{
		numericSibling(t, "a", "10"),
		numericSibling(t, "b", "0"),
		numericSibling(t, "c", "2"),
	}
	got, ok := calc.DisplayValue(siblings, false, models.Viewer{})
	require.True(t, ok)
	assert.Equal(t, "5.00", got)
}

func TestCalcFirstOperandZeroIsValid(t *testing.T) {
	def := defWithOptions(t, "sum", models.TypeCalc, CalcOptions{
		Operands: []string{"a", "b"},
		CalcType: CalcAdd,
	})
	calc, err := New(def)
	require.NoError(t, err)

	siblings := []Field{
		numericSibling(t, "a", "0"),
		numericSibling(t, "b", "4"),
	}
	got, ok := calc.DisplayValue(siblings, false, models.Viewer{})
	require.True(t, ok)
	assert.Equal(t, "4.00", got)
}

func TestCalcMean(t *testing.T) {
	def := defWithOptions(t, "avg", models.TypeCalc, CalcOptions{
		Operands: []string{"a", "b", "c"},
		CalcType: CalcMean,
	})
	calc, err := New(def)
	require.NoError(t, err)

	siblings := []Field{
		numericSibling(t, "a", "2"),
		numericSibling(t, "b", "4"),
		numericSibling(t, "c", "6"),
	}
	got, ok := calc.DisplayValue(siblings, false, models.Viewer{})
	require.True(t, ok)
	assert.Equal(t, "4.00", got)
}

func TestCalcIgnoresSelfReference(t *testing.T) {
	def := defWithOptions(t, "total", models.TypeCalc, CalcOptions{
		Operands: []string{"total", "a"},
		CalcType: CalcAdd,
	})
	calc, err := New(def)
	require.NoError(t, err)

	siblings := []Field{numericSibling(t, "a", "5")}
	got, ok := calc.DisplayValue(siblings, false, models.Viewer{})
	require.True(t, ok)
	assert.Equal(t, "5.00", got)
}

func TestCalcNeverRendersAndNeverPersists(t *testing.T) {
	def := defWithOptions(t, "total", models.TypeCalc, CalcOptions{CalcType: CalcAdd})
	calc, err := New(def)
	require.NoError(t, err)

	assert.Nil(t, calc.Render(RenderContext{Viewer: models.Viewer{}}))
	assert.False(t, calc.Persistent())
	assert.Empty(t, calc.Validate(url.Values{}))
}
