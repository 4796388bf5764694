package whatif

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/encoding"
	apperrors "github.com/ZanzyTHEbar/credit-risk-whatif/internal/errors"
	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/features"
)

// Step count bounds of the numeric sweep slider
const (
	MinSteps     = 3
	MaxSteps     = 50
	DefaultSteps = 11
)

// Scorer returns P(bad) for one vector
type Scorer interface {
	Probability(ctx context.Context, vec features.Vector) (float64, error)
}

// Range is the numeric sweep configuration chosen by the user
type Range struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Steps int     `json:"steps"`
}

// Defaults are the range a numeric sweep starts with for the current value
type Defaults struct {
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	SliderMax float64 `json:"slider_max"`
	Steps     int     `json:"steps"`
}

// DefaultRange derives the initial sweep bounds from the current value. SliderMax only
// widens the slider; it never changes the bounds.
func DefaultRange(current float64) Defaults {
	lo := math.Max(0, current*0.5)
	hi := math.Max(current*1.5, current*1.0)
	return Defaults{Min: lo, Max: hi, SliderMax: hi * 2, Steps: DefaultSteps}
}

// Spec is the candidate list of one sweep. RawValues and EncodedValues are index aligned.
type Spec struct {
	Feature       string    `json:"feature"`
	Categorical   bool      `json:"categorical"`
	RawValues     []any     `json:"raw_values"`
	EncodedValues []float64 `json:"encoded_values"`
}

// Len returns the number of candidates
func (s Spec) Len() int { return len(s.RawValues) }

// Point is one scored candidate
type Point struct {
	Value       any     `json:"value"`
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
}

// RangeWarning is a user-correctable problem with the numeric range. The sweep is not run.
type RangeWarning struct {
	Min float64
	Max float64
}

func (w *RangeWarning) Error() string {
	return fmt.Sprintf("max (%g) must be greater than min (%g)", w.Max, w.Min)
}

// IsWarning reports whether err is a RangeWarning
func IsWarning(err error) bool {
	var w *RangeWarning
	return errors.As(err, &w)
}

// Build generates the candidates for feature. Categorical features enumerate every class
// of their encoder; numeric features use rng.
func Build(feature string, base features.Vector, enc *encoding.Set, rng Range) (Spec, error) {
	if base.Index(feature) < 0 {
		return Spec{}, apperrors.NewSchemaMismatchError("sweep feature is not part of the model input", feature)
	}

	if enc.IsCategorical(feature) {
		classes := enc.ClassesFor(feature)
		spec := Spec{
			Feature:       feature,
			Categorical:   true,
			RawValues:     make([]any, len(classes)),
			EncodedValues: make([]float64, len(classes)),
		}
		for i, class := range classes {
			code, err := enc.Encode(feature, class)
			if err != nil {
				return Spec{}, err
			}
			spec.RawValues[i] = class
			spec.EncodedValues[i] = code
		}
		return spec, nil
	}

	if rng.Steps < MinSteps || rng.Steps > MaxSteps {
		return Spec{}, apperrors.NewValidationError(
			fmt.Sprintf("steps must be between %d and %d", MinSteps, MaxSteps), rng.Steps)
	}
	if math.IsNaN(rng.Min) || math.IsNaN(rng.Max) || math.IsInf(rng.Min, 0) || math.IsInf(rng.Max, 0) {
		return Spec{}, apperrors.NewValidationError("sweep range must be finite")
	}
	if rng.Max <= rng.Min {
		return Spec{}, &RangeWarning{Min: rng.Min, Max: rng.Max}
	}

	values := Linspace(rng.Min, rng.Max, rng.Steps)
	spec := Spec{
		Feature:       feature,
		RawValues:     make([]any, len(values)),
		EncodedValues: values,
	}
	for i, v := range values {
		spec.RawValues[i] = v
	}
	return spec, nil
}

// Linspace returns n evenly spaced values from lo to hi. Both ends are exact.
func Linspace(lo, hi float64, n int) []float64 {
	if n <= 0 {
		return []float64{}
	}
	if n == 1 {
		return []float64{lo}
	}
	step := (hi - lo) / float64(n-1)
	out := make([]float64, n)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	out[n-1] = hi
	return out
}

// Run scores every candidate of spec with all other features held at their base values.
// Points come back in candidate order; nothing is cached between runs.
func Run(ctx context.Context, scorer Scorer, spec Spec, base features.Vector) ([]Point, error) {
	points := make([]Point, 0, spec.Len())
	for i, encoded := range spec.EncodedValues {
		vec, err := base.With(spec.Feature, encoded)
		if err != nil {
			return nil, err
		}
		p, err := scorer.Probability(ctx, vec)
		if err != nil {
			return nil, err
		}
		points = append(points, Point{
			Value:       spec.RawValues[i],
			Label:       formatValue(spec.RawValues[i]),
			Probability: p,
		})
	}
	return points, nil
}

func formatValue(v any) string {
	switch x := v.(type) {
	case float64:
		return fmt.Sprintf("%g", x)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}
