package fields

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/formlane/forms-api/internal/models"
)

// Calc operator names.
const (
	CalcAdd  = "add"
	CalcSub  = "sub"
	CalcMul  = "mul"
	CalcDiv  = "div"
	CalcMean = "mean"
)

// CalcOptions is the options bag for calculated fields.
type CalcOptions struct {
	// Operands names the sibling fields feeding the calculation, in order.
	Operands []string `json:"operands"`
	CalcType string   `json:"calc_type"`
	Format   string   `json:"format"`
}

// calcField never renders an input and never stores a value: its result is
// recomputed from sibling field values on every display.
type calcField struct {
	base
	opts CalcOptions
}

func newCalc(def *models.FieldDef) *calcField {
	f := &calcField{base: base{def: def}}
	decodeOptions(def.Options, &f.opts)
	if f.opts.Format == "" {
		f.opts.Format = "%.2f"
	}
	return f
}

func (f *calcField) Persistent() bool { return false }

func (f *calcField) Render(RenderContext) *models.RenderedField { return nil }

func (f *calcField) Validate(url.Values) string { return "" }

func (f *calcField) ValueFromPost(url.Values) string { return "" }

// DisplayValue recomputes the expression over the sibling fields' current
// values, ignoring any stored value of its own.
func (f *calcField) DisplayValue(siblings []Field, checkAccess bool, viewer models.Viewer) (string, bool) {
	if checkAccess && !f.canViewResults(viewer) {
		return "", false
	}
	result, ok := f.Compute(siblings)
	if !ok {
		return "", true
	}
	return fmt.Sprintf(f.opts.Format, result), true
}

// Compute evaluates the configured operator over the named operands.
// The first usable operand is taken as-is (zero included); non-numeric
// operands are skipped, zero divisors are skipped, and a self-reference in
// the operand list is ignored. ok is false when no operand was usable.
func (f *calcField) Compute(siblings []Field) (float64, bool) {
	byName := make(map[string]Field, len(siblings))
	for _, s := range siblings {
		byName[s.Def().Name] = s
	}

	var values []float64
	for _, name := range f.opts.Operands {
		if name == f.def.Name {
			continue
		}
		sib, found := byName[name]
		if !found {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(sib.Value()), 64)
		if err != nil {
			continue
		}
		values = append(values, v)
	}
	if len(values) == 0 {
		return 0, false
	}

	result := values[0]
	rest := values[1:]

	switch f.opts.CalcType {
	case CalcSub:
		for _, v := range rest {
			result -= v
		}
	case CalcMul:
		for _, v := range rest {
			result *= v
		}
	case CalcDiv:
		for _, v := range rest {
			if v == 0 {
				continue
			}
			result /= v
		}
	case CalcMean:
		sum := result
		for _, v := range rest {
			sum += v
		}
		result = sum / float64(len(values))
	default: // add
		for _, v := range rest {
			result += v
		}
	}
	return result, true
}

func (f *calcField) OptionsFromDefinition(post url.Values) (json.RawMessage, error) {
	opts := CalcOptions{
		CalcType: post.Get("calc_type"),
		Format:   post.Get("format"),
	}
	if ops, found := post["operands"]; found && len(ops) > 1 {
		opts.Operands = ops
	} else {
		for _, name := range strings.Split(post.Get("operands"), ",") {
			name = strings.TrimSpace(name)
			if name != "" {
				opts.Operands = append(opts.Operands, name)
			}
		}
	}
	switch opts.CalcType {
	case CalcAdd, CalcSub, CalcMul, CalcDiv, CalcMean:
	default:
		opts.CalcType = CalcAdd
	}
	if opts.Format == "" {
		opts.Format = "%.2f"
	}
	return json.Marshal(opts)
}
