package app

import (
	"context"
	"testing"

	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/artifacts"
	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/encoding"
	apperrors "github.com/ZanzyTHEbar/credit-risk-whatif/internal/errors"
	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/features"
	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testOrder = []string{"Age", "Sex", "Job", "Housing", "Saving accounts", "Checking account", "Credit amount", "Duration", "Purpose"}

var purposeClasses = []string{
	"business", "car", "domestic appliances", "education",
	"furniture/equipment", "radio/TV", "repairs", "vacation/others",
}

// testEngine scores with P(bad) = sigmoid(0.25*Duration - 3), so 12 months is exactly 0.5
func testEngine(t *testing.T) *Engine {
	t.Helper()

	classes := map[string][]string{
		"Sex":              {"female", "male"},
		"Housing":          {"free", "own", "rent"},
		"Saving accounts":  {"little", "moderate", "quite rich", "rich"},
		"Checking account": {"little", "moderate", "rich"},
		"Purpose":          purposeClasses,
	}
	encs := make([]*encoding.LabelEncoder, 0, len(classes))
	for feature, cls := range classes {
		enc, err := encoding.NewLabelEncoder(feature, cls)
		require.NoError(t, err)
		encs = append(encs, enc)
	}

	model, err := artifacts.ModelFile{
		Kind:         artifacts.KindLogistic,
		Intercept:    -3,
		Coefficients: map[string]float64{"Duration": 0.25},
	}.Build(testOrder)
	require.NoError(t, err)

	return NewEngine(artifacts.New(model, "memory/logistic.json", testOrder, encoding.NewSet(encs...)))
}

func withValue(raw features.RawInputs, name string, v any) features.RawInputs {
	out := raw.Clone()
	out[name] = v
	return out
}

func ptr(v float64) *float64 { return &v }

func TestParseAction(t *testing.T) {
	tests := []struct {
		in      string
		want    Action
		wantErr bool
	}{
		{in: "", want: ActionRender},
		{in: "render", want: ActionRender},
		{in: "predict", want: ActionPredict},
		{in: "sweep_on", want: ActionSweepOn},
		{in: "sweep_off", want: ActionSweepOff},
		{in: "explode", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAction(tt.in)
			if tt.wantErr {
				assert.True(t, apperrors.IsCategory(err, apperrors.CategoryValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFirstRenderShowsModelNoticeOnce(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	state, view, err := e.Handle(ctx, session.State{}, Event{Action: ActionRender, Inputs: e.DefaultInputs()})
	require.NoError(t, err)

	assert.True(t, view.ModelNotice)
	assert.Equal(t, "memory/logistic.json", view.ModelPath)
	assert.Nil(t, view.Prediction)
	assert.False(t, view.Stale)
	assert.Equal(t, []float64{30, 0, 1, 0, 0, 0, 5000, 12, 0}, view.Vector.Values())
	assert.True(t, state.ModelNoticeDone)

	_, view, err = e.Handle(ctx, state, Event{Action: ActionRender, Inputs: e.DefaultInputs()})
	require.NoError(t, err)
	assert.False(t, view.ModelNotice)
}

func TestPredictThenEditMarksStale(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	inputs := e.DefaultInputs()

	state, view, err := e.Handle(ctx, session.State{}, Event{Action: ActionPredict, Inputs: inputs})
	require.NoError(t, err)

	require.NotNil(t, view.Prediction)
	assert.InDelta(t, 0.5, view.Prediction.ProbabilityBad, 1e-12)
	assert.True(t, view.Prediction.IsBad, "probability equal to the threshold is bad")
	assert.Equal(t, "BAD", view.Prediction.Label())
	assert.True(t, view.JustPredicted)
	assert.False(t, view.Stale)
	assert.True(t, state.HasPrediction())
	assert.Equal(t, features.Fingerprint(view.Inputs), state.LastFingerprint)

	// same inputs, plain render
	state, view, err = e.Handle(ctx, state, Event{Action: ActionRender, Inputs: inputs})
	require.NoError(t, err)
	assert.False(t, view.Stale)

	// edited inputs keep the old prediction but flag it
	edited := withValue(inputs, "Duration", 24)
	state, view, err = e.Handle(ctx, state, Event{Action: ActionRender, Inputs: edited})
	require.NoError(t, err)
	assert.True(t, view.Stale)
	require.NotNil(t, view.Prediction)
	assert.InDelta(t, 0.5, view.Prediction.ProbabilityBad, 1e-12)

	// predicting again clears the flag
	_, view, err = e.Handle(ctx, state, Event{Action: ActionPredict, Inputs: edited})
	require.NoError(t, err)
	assert.False(t, view.Stale)
	assert.Greater(t, view.Prediction.ProbabilityBad, 0.5)
}

func TestFormStringsFingerprintLikeNumbers(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	state, _, err := e.Handle(ctx, session.State{}, Event{Action: ActionPredict, Inputs: e.DefaultInputs()})
	require.NoError(t, err)

	asForm := withValue(e.DefaultInputs(), "Duration", "12")
	_, view, err := e.Handle(ctx, state, Event{Action: ActionRender, Inputs: asForm})
	require.NoError(t, err)
	assert.False(t, view.Stale)
}

func TestThresholdChangesClassification(t *testing.T) {
	e := testEngine(t)

	_, view, err := e.Handle(context.Background(), session.State{}, Event{
		Action:    ActionPredict,
		Inputs:    e.DefaultInputs(),
		Threshold: ptr(0.6),
	})
	require.NoError(t, err)
	assert.False(t, view.Prediction.IsBad)
	assert.Equal(t, 0.6, view.Threshold)

	_, _, err = e.Handle(context.Background(), session.State{}, Event{
		Action:    ActionPredict,
		Inputs:    e.DefaultInputs(),
		Threshold: ptr(0.99),
	})
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryValidation))
}

func TestNumericSweepUsesDefaultRange(t *testing.T) {
	e := testEngine(t)

	state, view, err := e.Handle(context.Background(), session.State{}, Event{
		Action: ActionSweepOn,
		Inputs: e.DefaultInputs(),
		Sweep:  SweepRequest{Feature: "Duration"},
	})
	require.NoError(t, err)

	assert.True(t, state.SweepActive)
	assert.False(t, state.HasPrediction(), "sweeping does not predict")
	require.NotNil(t, view.Sweep.Defaults)
	assert.Equal(t, 6.0, view.Sweep.Defaults.Min)
	assert.Equal(t, 18.0, view.Sweep.Defaults.Max)
	assert.Equal(t, 36.0, view.Sweep.Defaults.SliderMax)

	require.Len(t, view.Sweep.Points, 11)
	assert.Equal(t, 6.0, view.Sweep.Points[0].Value)
	assert.Equal(t, 18.0, view.Sweep.Points[10].Value)
	assert.InDelta(t, 0.5, view.Sweep.Points[5].Probability, 1e-12)
	for i := 1; i < len(view.Sweep.Points); i++ {
		assert.Greater(t, view.Sweep.Points[i].Probability, view.Sweep.Points[i-1].Probability)
	}
}

func TestSweepStaysActiveAcrossRenders(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	state, _, err := e.Handle(ctx, session.State{}, Event{Action: ActionSweepOn, Inputs: e.DefaultInputs()})
	require.NoError(t, err)

	req := SweepRequest{Feature: "Duration", Min: ptr(6), Max: ptr(24), Steps: 4}
	state, view, err := e.Handle(ctx, state, Event{Action: ActionRender, Inputs: e.DefaultInputs(), Sweep: req})
	require.NoError(t, err)
	require.Len(t, view.Sweep.Points, 4)
	labels := []string{view.Sweep.Points[0].Label, view.Sweep.Points[1].Label, view.Sweep.Points[2].Label, view.Sweep.Points[3].Label}
	assert.Equal(t, []string{"6", "12", "18", "24"}, labels)

	state, view, err = e.Handle(ctx, state, Event{Action: ActionSweepOff, Inputs: e.DefaultInputs(), Sweep: req})
	require.NoError(t, err)
	assert.False(t, state.SweepActive)
	assert.False(t, view.Sweep.Active)
	assert.Empty(t, view.Sweep.Points)
}

func TestSweepRangeWarning(t *testing.T) {
	e := testEngine(t)

	state, view, err := e.Handle(context.Background(), session.State{}, Event{
		Action: ActionSweepOn,
		Inputs: e.DefaultInputs(),
		Sweep:  SweepRequest{Feature: "Duration", Min: ptr(24), Max: ptr(12), Steps: 5},
	})
	require.NoError(t, err)

	assert.True(t, state.SweepActive)
	assert.Contains(t, view.Sweep.Warning, "must be greater than")
	assert.Empty(t, view.Sweep.Points)
}

func TestCategoricalSweepEnumeratesClasses(t *testing.T) {
	e := testEngine(t)

	_, view, err := e.Handle(context.Background(), session.State{}, Event{
		Action: ActionSweepOn,
		Inputs: e.DefaultInputs(),
		Sweep:  SweepRequest{Feature: "Purpose", Min: ptr(100), Max: ptr(1), Steps: 2},
	})
	require.NoError(t, err)

	assert.True(t, view.Sweep.Categorical)
	assert.Nil(t, view.Sweep.Defaults)
	assert.Empty(t, view.Sweep.Warning)
	require.Len(t, view.Sweep.Points, len(purposeClasses))
	for i, p := range view.Sweep.Points {
		assert.Equal(t, purposeClasses[i], p.Label)
		assert.InDelta(t, 0.5, p.Probability, 1e-12)
	}
}

func TestHandleErrorsKeepState(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	prior, _, err := e.Handle(ctx, session.State{}, Event{Action: ActionPredict, Inputs: e.DefaultInputs()})
	require.NoError(t, err)

	missing := e.DefaultInputs()
	delete(missing, "Purpose")

	tests := []struct {
		name     string
		event    Event
		category apperrors.ErrorCategory
	}{
		{
			name:     "missing field",
			event:    Event{Action: ActionPredict, Inputs: missing},
			category: apperrors.CategorySchemaMismatch,
		},
		{
			name:     "unknown label",
			event:    Event{Action: ActionPredict, Inputs: withValue(e.DefaultInputs(), "Purpose", "holiday")},
			category: apperrors.CategoryUnknownCategory,
		},
		{
			name:     "out of range",
			event:    Event{Action: ActionPredict, Inputs: withValue(e.DefaultInputs(), "Age", 12)},
			category: apperrors.CategoryValidation,
		},
		{
			name:     "off the input step",
			event:    Event{Action: ActionPredict, Inputs: withValue(e.DefaultInputs(), "Job", 1.5)},
			category: apperrors.CategoryValidation,
		},
		{
			name:     "unknown sweep feature",
			event:    Event{Action: ActionSweepOn, Inputs: e.DefaultInputs(), Sweep: SweepRequest{Feature: "Income"}},
			category: apperrors.CategorySchemaMismatch,
		},
		{
			name:     "steps out of range",
			event:    Event{Action: ActionSweepOn, Inputs: e.DefaultInputs(), Sweep: SweepRequest{Feature: "Duration", Steps: 60}},
			category: apperrors.CategoryValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, _, err := e.Handle(ctx, prior, tt.event)
			require.Error(t, err)
			assert.True(t, apperrors.IsCategory(err, tt.category), "got %v", err)
			assert.Equal(t, prior, next)
		})
	}
}
