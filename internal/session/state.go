package session

import (
	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/prediction"
)

// State is everything one interactive session remembers between render passes.
// The zero value is a fresh session.
type State struct {
	LastPrediction  *prediction.Result `json:"last_prediction,omitempty"`
	LastFingerprint string             `json:"last_fingerprint,omitempty"`
	PredictionMade  bool               `json:"prediction_made"`
	SweepActive     bool               `json:"sweep_active"`
	ModelNoticeDone bool               `json:"model_notice_done"`
}

// HasPrediction reports whether a prediction can be shown
func (s State) HasPrediction() bool {
	return s.PredictionMade && s.LastPrediction != nil
}

// WithPrediction returns a copy of s holding result for the input with fingerprint
func (s State) WithPrediction(result prediction.Result, fingerprint string) State {
	r := result
	s.LastPrediction = &r
	s.LastFingerprint = fingerprint
	s.PredictionMade = true
	return s
}
