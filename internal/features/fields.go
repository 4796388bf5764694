package features

import (
	"fmt"
	"math"
	"strings"

	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/encoding"
	apperrors "github.com/ZanzyTHEbar/credit-risk-whatif/internal/errors"
)

// Kind tells the page which widget to draw for a field
type Kind string

const (
	KindNumeric     Kind = "numeric"
	KindCategorical Kind = "categorical"
)

// Field describes one input widget of the applicant form
type Field struct {
	Name     string   `json:"name"`
	Label    string   `json:"label"`
	Kind     Kind     `json:"kind"`
	Min      float64  `json:"min,omitempty"`
	Max      float64  `json:"max,omitempty"`
	Step     float64  `json:"step,omitempty"`
	Default  float64  `json:"default,omitempty"`
	Fallback []string `json:"fallback,omitempty"`
	Options  []string `json:"options,omitempty"`
}

// CategoricalFeatures lists the features that must ship with a label encoder
var CategoricalFeatures = []string{"Sex", "Housing", "Saving accounts", "Checking account", "Purpose"}

// DefaultFields returns the applicant form in display order
func DefaultFields() []Field {
	return []Field{
		{Name: "Age", Label: "Age", Kind: KindNumeric, Min: 18, Max: 80, Step: 1, Default: 30},
		{Name: "Sex", Label: "Sex", Kind: KindCategorical, Fallback: []string{"male", "female"}},
		{Name: "Job", Label: "Job (0-3)", Kind: KindNumeric, Min: 0, Max: 3, Step: 1, Default: 1},
		{Name: "Housing", Label: "Housing", Kind: KindCategorical},
		{Name: "Saving accounts", Label: "Saving accounts", Kind: KindCategorical},
		{Name: "Checking account", Label: "Checking account", Kind: KindCategorical},
		{Name: "Purpose", Label: "Purpose", Kind: KindCategorical},
		{Name: "Credit amount", Label: "Credit amount", Kind: KindNumeric, Min: 1000, Max: 100000, Step: 100, Default: 5000},
		{Name: "Duration", Label: "Duration (months)", Kind: KindNumeric, Min: 1, Max: 60, Step: 1, Default: 12},
	}
}

// WithOptions fills each categorical field with the classes of its encoder,
// falling back to the field's static list when no encoder is loaded.
func WithOptions(fields []Field, enc *encoding.Set) []Field {
	out := make([]Field, len(fields))
	for i, f := range fields {
		if f.Kind == KindCategorical {
			f.Options = enc.ClassesFor(f.Name)
			if len(f.Options) == 0 {
				f.Options = append([]string(nil), f.Fallback...)
			}
		}
		out[i] = f
	}
	return out
}

// DefaultInputs returns the initial form values: numeric defaults and the first option of
// each categorical field.
func DefaultInputs(fields []Field) RawInputs {
	raw := make(RawInputs, len(fields))
	for _, f := range fields {
		switch f.Kind {
		case KindNumeric:
			raw[f.Name] = f.Default
		case KindCategorical:
			if len(f.Options) > 0 {
				raw[f.Name] = f.Options[0]
			}
		}
	}
	return raw
}

// Normalise converts numeric fields to float64 and trims categorical labels so form posts
// and JSON bodies fingerprint the same way. Unknown fields are kept as they are.
func Normalise(fields []Field, raw RawInputs) (RawInputs, error) {
	out := raw.Clone()
	for _, f := range fields {
		v, ok := raw[f.Name]
		if !ok {
			continue
		}
		switch f.Kind {
		case KindNumeric:
			n, err := encoding.ToFloat(f.Name, v)
			if err != nil {
				return nil, err
			}
			out[f.Name] = n
		case KindCategorical:
			if s, ok := v.(string); ok {
				out[f.Name] = strings.TrimSpace(s)
			}
		}
	}
	return out, nil
}

// stepTolerance absorbs float noise from form strings such as "0.1"
const stepTolerance = 1e-9

// onStep reports whether n lies on Min + k*Step
func (f Field) onStep(n float64) bool {
	if f.Step <= 0 {
		return true
	}
	k := (n - f.Min) / f.Step
	return math.Abs(k-math.Round(k)) <= stepTolerance
}

// ValidateInputs enforces the numeric widget bounds and steps
func ValidateInputs(fields []Field, raw RawInputs) error {
	problems := make([]string, 0)
	for _, f := range fields {
		if f.Kind != KindNumeric {
			continue
		}
		v, ok := raw[f.Name]
		if !ok {
			continue
		}
		n, err := encoding.ToFloat(f.Name, v)
		if err != nil {
			return err
		}
		if n < f.Min || n > f.Max {
			problems = append(problems, fmt.Sprintf("%s must be between %g and %g", f.Name, f.Min, f.Max))
			continue
		}
		if !f.onStep(n) {
			problems = append(problems, fmt.Sprintf("%s must be %g plus a multiple of %g", f.Name, f.Min, f.Step))
		}
	}
	if len(problems) > 0 {
		return apperrors.NewValidationError("invalid input", strings.Join(problems, "; "))
	}
	return nil
}
