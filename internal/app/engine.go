package app

import (
	"context"
	"fmt"
	"math"

	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/artifacts"
	apperrors "github.com/ZanzyTHEbar/credit-risk-whatif/internal/errors"
	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/features"
	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/prediction"
	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/session"
	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/whatif"
)

// Action is the user interaction that triggered a render pass
type Action string

const (
	ActionRender   Action = "render"
	ActionPredict  Action = "predict"
	ActionSweepOn  Action = "sweep_on"
	ActionSweepOff Action = "sweep_off"
)

// ParseAction maps a form or JSON action name; an empty name is a plain render
func ParseAction(name string) (Action, error) {
	switch Action(name) {
	case "", ActionRender:
		return ActionRender, nil
	case ActionPredict, ActionSweepOn, ActionSweepOff:
		return Action(name), nil
	default:
		return "", apperrors.NewValidationError(fmt.Sprintf("unknown action %q", name))
	}
}

// SweepRequest carries the current values of the what-if widgets.
// Nil bounds and zero steps fall back to the defaults for the current value.
type SweepRequest struct {
	Feature string   `json:"feature"`
	Min     *float64 `json:"min,omitempty"`
	Max     *float64 `json:"max,omitempty"`
	Steps   int      `json:"steps,omitempty"`
}

// Event is one user interaction together with every widget value on the page
type Event struct {
	Action    Action             `json:"action"`
	Inputs    features.RawInputs `json:"inputs"`
	Threshold *float64           `json:"threshold,omitempty"`
	Sweep     SweepRequest       `json:"sweep"`
}

// SweepView is the what-if section of the page
type SweepView struct {
	Feature     string           `json:"feature"`
	Categorical bool             `json:"categorical"`
	Active      bool             `json:"active"`
	Classes     []string         `json:"classes,omitempty"`
	Defaults    *whatif.Defaults `json:"defaults,omitempty"`
	Range       *whatif.Range    `json:"range,omitempty"`
	Points      []whatif.Point   `json:"points,omitempty"`
	Warning     string           `json:"warning,omitempty"`
}

// View is everything the shell needs to draw the page for one pass
type View struct {
	Inputs        features.RawInputs `json:"inputs"`
	Vector        features.Vector    `json:"vector"`
	FeatureOrder  []string           `json:"feature_order"`
	Fields        []features.Field   `json:"fields"`
	ModelPath     string             `json:"model_path"`
	ModelNotice   bool               `json:"model_notice"`
	Threshold     float64            `json:"threshold"`
	Prediction    *prediction.Result `json:"prediction,omitempty"`
	JustPredicted bool               `json:"just_predicted"`
	Stale         bool               `json:"stale"`
	Sweep         SweepView          `json:"sweep"`
}

// Engine turns events into new session states and views. It only reads the artifacts.
type Engine struct {
	art       *artifacts.Artifacts
	predictor *prediction.Service
	fields    []features.Field
}

// NewEngine wires the engine to loaded artifacts
func NewEngine(art *artifacts.Artifacts) *Engine {
	return &Engine{
		art:       art,
		predictor: prediction.NewService(art.Model),
		fields:    features.WithOptions(features.DefaultFields(), art.Encoders),
	}
}

// Artifacts returns the bundle the engine scores with
func (e *Engine) Artifacts() *artifacts.Artifacts { return e.art }

// Predictor returns the prediction service
func (e *Engine) Predictor() *prediction.Service { return e.predictor }

// Fields returns the form fields with their options filled in
func (e *Engine) Fields() []features.Field {
	return append([]features.Field(nil), e.fields...)
}

// DefaultInputs returns the values the form starts with
func (e *Engine) DefaultInputs() features.RawInputs {
	return features.DefaultInputs(e.fields)
}

// Assemble normalises, validates and encodes raw inputs into a model-ready vector
func (e *Engine) Assemble(raw features.RawInputs) (features.RawInputs, features.Vector, error) {
	inputs, err := features.Normalise(e.fields, raw)
	if err != nil {
		return nil, features.Vector{}, err
	}
	if err := features.ValidateInputs(e.fields, inputs); err != nil {
		return nil, features.Vector{}, err
	}
	vec, err := features.Assemble(inputs, e.art.FeatureOrder(), e.art.Encoders)
	if err != nil {
		return nil, features.Vector{}, err
	}
	return inputs, vec, nil
}

// Handle runs one full render pass: assemble, optional predict, staleness, optional sweep.
// The given state is not modified; the state to keep is returned. On error the caller
// should keep the previous state.
func (e *Engine) Handle(ctx context.Context, state session.State, ev Event) (session.State, View, error) {
	next := state

	inputs, vec, err := e.Assemble(ev.Inputs)
	if err != nil {
		return state, View{}, err
	}

	threshold := prediction.DefaultThreshold
	if ev.Threshold != nil {
		threshold = *ev.Threshold
	}
	if math.IsNaN(threshold) || threshold < prediction.MinThreshold || threshold > prediction.MaxThreshold {
		return state, View{}, apperrors.NewValidationError(
			fmt.Sprintf("threshold must be between %.2f and %.2f", prediction.MinThreshold, prediction.MaxThreshold), threshold)
	}

	fingerprint := features.Fingerprint(inputs)
	justPredicted := ev.Action == ActionPredict

	view := View{
		Inputs:        inputs,
		Vector:        vec,
		FeatureOrder:  e.art.FeatureOrder(),
		Fields:        e.Fields(),
		ModelPath:     e.art.ModelPath,
		Threshold:     threshold,
		JustPredicted: justPredicted,
		Stale:         prediction.IsStale(state.HasPrediction(), state.LastFingerprint, fingerprint, justPredicted),
	}

	if !state.ModelNoticeDone {
		view.ModelNotice = true
		next.ModelNoticeDone = true
	}

	if justPredicted {
		result, err := e.predictor.Predict(ctx, vec, threshold)
		if err != nil {
			return state, View{}, err
		}
		next = next.WithPrediction(result, fingerprint)
	}
	if next.HasPrediction() {
		r := *next.LastPrediction
		view.Prediction = &r
	}

	switch ev.Action {
	case ActionSweepOn:
		next.SweepActive = true
	case ActionSweepOff:
		next.SweepActive = false
	}

	sweep, err := e.sweep(ctx, vec, ev.Sweep, next.SweepActive)
	if err != nil {
		return state, View{}, err
	}
	view.Sweep = sweep

	return next, view, nil
}

func (e *Engine) sweep(ctx context.Context, vec features.Vector, req SweepRequest, active bool) (SweepView, error) {
	feature := req.Feature
	if feature == "" {
		feature = e.art.FeatureOrder()[0]
	}
	current, ok := vec.Get(feature)
	if !ok {
		return SweepView{}, apperrors.NewSchemaMismatchError("sweep feature is not part of the model input", feature)
	}

	view := SweepView{
		Feature:     feature,
		Categorical: e.art.Encoders.IsCategorical(feature),
		Active:      active,
	}

	var rng whatif.Range
	if view.Categorical {
		view.Classes = e.art.Encoders.ClassesFor(feature)
	} else {
		defaults := whatif.DefaultRange(current)
		rng = whatif.Range{Min: defaults.Min, Max: defaults.Max, Steps: defaults.Steps}
		if req.Min != nil {
			rng.Min = *req.Min
		}
		if req.Max != nil {
			rng.Max = *req.Max
		}
		if req.Steps != 0 {
			rng.Steps = req.Steps
		}
		view.Defaults = &defaults
		view.Range = &rng
	}

	if !active {
		return view, nil
	}

	spec, err := whatif.Build(feature, vec, e.art.Encoders, rng)
	if whatif.IsWarning(err) {
		view.Warning = err.Error()
		return view, nil
	}
	if err != nil {
		return SweepView{}, err
	}

	points, err := whatif.Run(ctx, e.predictor, spec, vec)
	if err != nil {
		return SweepView{}, err
	}
	view.Points = points
	return view, nil
}
