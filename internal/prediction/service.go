package prediction

import (
	"context"
	"fmt"
	"math"

	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/artifacts"
	apperrors "github.com/ZanzyTHEbar/credit-risk-whatif/internal/errors"
	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/features"
)

// Threshold slider settings of the page
const (
	MinThreshold     = 0.05
	MaxThreshold     = 0.95
	DefaultThreshold = 0.50
	ThresholdStep    = 0.01
)

// badClass is the column of PredictProba that holds P(bad)
const badClass = 1

// Result is the outcome of one explicit prediction request
type Result struct {
	ProbabilityBad float64 `json:"probability_bad"`
	Threshold      float64 `json:"threshold"`
	IsBad          bool    `json:"is_bad"`
}

// Label returns the classification shown to the user
func (r Result) Label() string {
	if r.IsBad {
		return "BAD"
	}
	return "GOOD"
}

// Service scores assembled vectors with the loaded model
type Service struct {
	model artifacts.Model
}

// NewService creates a prediction service around model
func NewService(model artifacts.Model) *Service {
	return &Service{model: model}
}

// Probability runs the model once for vec and returns P(bad). There are no retries:
// a failed call is returned as a scoring failure.
func (s *Service) Probability(ctx context.Context, vec features.Vector) (float64, error) {
	proba, err := s.model.PredictProba(ctx, [][]float64{vec.Values()})
	if err != nil {
		return 0, apperrors.NewScoringFailureError("model failed to score input", err)
	}
	if len(proba) != 1 {
		return 0, apperrors.NewScoringFailureError(fmt.Sprintf("model returned %d rows for 1 input", len(proba)), nil)
	}
	if len(proba[0]) <= badClass {
		return 0, apperrors.NewScoringFailureError("model output has no probability for the bad class", nil)
	}

	p := proba[0][badClass]
	if math.IsNaN(p) || p < 0 || p > 1 {
		return 0, apperrors.NewScoringFailureError(fmt.Sprintf("model returned invalid probability %v", p), nil)
	}
	return p, nil
}

// Predict scores vec and classifies it against threshold. The boundary counts as bad.
func (s *Service) Predict(ctx context.Context, vec features.Vector, threshold float64) (Result, error) {
	if err := ValidateThreshold(threshold); err != nil {
		return Result{}, err
	}

	p, err := s.Probability(ctx, vec)
	if err != nil {
		return Result{}, err
	}

	return Classify(p, threshold), nil
}

// Classify builds a Result from a probability and a threshold
func Classify(probabilityBad, threshold float64) Result {
	return Result{
		ProbabilityBad: probabilityBad,
		Threshold:      threshold,
		IsBad:          probabilityBad >= threshold,
	}
}

// ValidateThreshold checks that threshold is a probability
func ValidateThreshold(threshold float64) error {
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return apperrors.NewValidationError("threshold must be between 0 and 1", threshold)
	}
	return nil
}

// IsStale reports whether the displayed prediction no longer matches the displayed input.
// It is never stale in the pass that just produced the prediction.
func IsStale(hasPrediction bool, lastFingerprint, currentFingerprint string, justPredicted bool) bool {
	if !hasPrediction || justPredicted || lastFingerprint == "" {
		return false
	}
	return lastFingerprint != currentFingerprint
}
