package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/app"
	apperrors "github.com/ZanzyTHEbar/credit-risk-whatif/internal/errors"
	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/features"
	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/prediction"
	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/session"
)

func (c *cli) predictCmd() *cobra.Command {
	var (
		sets      []string
		threshold float64
	)

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Score one applicant",
		Example: `  creditrisk predict --set Age=45 --set Purpose=car --set "Credit amount=12000"
  creditrisk predict --set Duration=36 --threshold 0.4`,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := c.engine(cmd)
			if err != nil {
				return err
			}

			inputs, err := applySets(engine, sets)
			if err != nil {
				return err
			}

			_, view, err := engine.Handle(cmd.Context(), session.State{}, app.Event{
				Action:    app.ActionPredict,
				Inputs:    inputs,
				Threshold: &threshold,
			})
			if err != nil {
				return err
			}

			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"model_path":      view.ModelPath,
				"inputs":          view.Inputs,
				"vector":          view.Vector,
				"probability_bad": view.Prediction.ProbabilityBad,
				"threshold":       view.Prediction.Threshold,
				"label":           view.Prediction.Label(),
			})
		},
	}

	cmd.Flags().StringArrayVar(&sets, "set", nil, "override an input, name=value (repeatable)")
	cmd.Flags().Float64Var(&threshold, "threshold", prediction.DefaultThreshold, "probability at or above which the applicant is BAD")
	return cmd
}

func (c *cli) whatIfCmd() *cobra.Command {
	var (
		sets      []string
		feature   string
		min, max  float64
		steps     int
		threshold float64
	)

	cmd := &cobra.Command{
		Use:   "whatif",
		Short: "Sweep one feature and print P(bad) per value",
		Example: `  creditrisk whatif --feature Duration --min 6 --max 48 --steps 8
  creditrisk whatif --feature Purpose --set Age=30`,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := c.engine(cmd)
			if err != nil {
				return err
			}

			inputs, err := applySets(engine, sets)
			if err != nil {
				return err
			}

			req := app.SweepRequest{Feature: feature, Steps: steps}
			if cmd.Flags().Changed("min") {
				req.Min = &min
			}
			if cmd.Flags().Changed("max") {
				req.Max = &max
			}

			_, view, err := engine.Handle(cmd.Context(), session.State{}, app.Event{
				Action:    app.ActionSweepOn,
				Inputs:    inputs,
				Threshold: &threshold,
				Sweep:     req,
			})
			if err != nil {
				return err
			}

			if view.Sweep.Warning != "" {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning:", view.Sweep.Warning)
				return nil
			}

			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"feature":     view.Sweep.Feature,
				"categorical": view.Sweep.Categorical,
				"range":       view.Sweep.Range,
				"points":      view.Sweep.Points,
				"threshold":   view.Threshold,
			})
		},
	}

	cmd.Flags().StringVar(&feature, "feature", "", "feature to sweep")
	cmd.Flags().Float64Var(&min, "min", 0, "lower bound for numeric features (default: half the current value)")
	cmd.Flags().Float64Var(&max, "max", 0, "upper bound for numeric features (default: 1.5x the current value)")
	cmd.Flags().IntVar(&steps, "steps", 0, "number of values for numeric features, 3 to 50 (default 11)")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "override an input, name=value (repeatable)")
	cmd.Flags().Float64Var(&threshold, "threshold", prediction.DefaultThreshold, "classification threshold")
	_ = cmd.MarkFlagRequired("feature")
	return cmd
}

func (c *cli) engine(cmd *cobra.Command) (*app.Engine, error) {
	_, _, art, err := c.bootstrap(cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	return app.NewEngine(art), nil
}

// applySets starts from the form defaults and applies name=value overrides
func applySets(engine *app.Engine, sets []string) (features.RawInputs, error) {
	inputs := engine.DefaultInputs()

	known := make(map[string]bool)
	for _, f := range engine.Fields() {
		known[f.Name] = true
	}

	for _, s := range sets {
		name, value, ok := strings.Cut(s, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, apperrors.NewValidationError("--set expects name=value", s)
		}
		if !known[name] {
			return nil, apperrors.NewSchemaMismatchError("unknown input", name)
		}
		inputs[name] = strings.TrimSpace(value)
	}
	return inputs, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
