package frontend

import (
	"strconv"
	"strings"

	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/app"
	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/features"
	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/prediction"
	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/whatif"
)

// FieldData is one form widget with its current value
type FieldData struct {
	ID      string
	Name    string
	Label   string
	Numeric bool
	Min     float64
	Max     float64
	Step    float64
	Value   string
	Options []string
}

// PageData is what the page template renders
type PageData struct {
	Nonce       string
	ModelPath   string
	ModelNotice bool
	Error       string

	Fields        []FieldData
	Threshold     float64
	MinThreshold  float64
	MaxThreshold  float64
	ThresholdStep float64

	Prediction *prediction.Result
	Stale      bool
	Vector     []features.Entry

	Sweep         app.SweepView
	SweepFeatures []string
	SliderMax     float64
	MinSteps      int
	MaxSteps      int
	Chart         *Chart
}

func basePage(nonce string) PageData {
	return PageData{
		Nonce:         nonce,
		MinThreshold:  prediction.MinThreshold,
		MaxThreshold:  prediction.MaxThreshold,
		ThresholdStep: prediction.ThresholdStep,
		Threshold:     prediction.DefaultThreshold,
		MinSteps:      whatif.MinSteps,
		MaxSteps:      whatif.MaxSteps,
	}
}

// NewPageData builds the page for a successful render pass
func NewPageData(view app.View, nonce string) PageData {
	page := basePage(nonce)
	page.ModelPath = view.ModelPath
	page.ModelNotice = view.ModelNotice
	page.Fields = fieldData(view.Fields, view.Inputs)
	page.Threshold = view.Threshold
	page.Prediction = view.Prediction
	page.Stale = view.Stale
	page.Vector = view.Vector.Entries()
	page.Sweep = view.Sweep
	page.SweepFeatures = view.FeatureOrder
	if view.Sweep.Defaults != nil {
		page.SliderMax = view.Sweep.Defaults.SliderMax
	}
	if len(view.Sweep.Points) > 0 {
		page.Chart = NewChart(view.Sweep.Points, view.Threshold)
	}
	return page
}

// NewErrorPage rebuilds the form from the submitted values so the user can correct them
func NewErrorPage(engine *app.Engine, ev app.Event, message, nonce string) PageData {
	page := basePage(nonce)
	page.Error = message
	page.ModelPath = engine.Artifacts().ModelPath
	page.Fields = fieldData(engine.Fields(), ev.Inputs)
	if ev.Threshold != nil {
		page.Threshold = *ev.Threshold
	}
	page.SweepFeatures = engine.Artifacts().FeatureOrder()
	page.Sweep = app.SweepView{Feature: ev.Sweep.Feature}
	return page
}

func fieldData(fields []features.Field, inputs features.RawInputs) []FieldData {
	out := make([]FieldData, len(fields))
	for i, f := range fields {
		out[i] = FieldData{
			ID:      fieldID(f.Name),
			Name:    f.Name,
			Label:   f.Label,
			Numeric: f.Kind == features.KindNumeric,
			Min:     f.Min,
			Max:     f.Max,
			Step:    f.Step,
			Value:   formatInput(inputs[f.Name]),
			Options: f.Options,
		}
	}
	return out
}

func fieldID(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "-")
}

func formatInput(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	default:
		return ""
	}
}
