package monitoring

import (
	"time"

	apperrors "github.com/ZanzyTHEbar/credit-risk-whatif/internal/errors"
)

// Recorder turns render pass outcomes into metrics and log lines
type Recorder struct {
	logger  *Logger
	metrics *Metrics
}

// NewRecorder creates a recorder
func NewRecorder(logger *Logger, metrics *Metrics) *Recorder {
	return &Recorder{logger: logger, metrics: metrics}
}

func (r *Recorder) SessionStarted(sessionID string, active int) {
	r.metrics.IncrementSessionCreated()
	r.logger.SessionLogger("created", sessionID, active)
}

func (r *Recorder) Predicted(sessionID string, probabilityBad, threshold float64, label string, isBad bool, d time.Duration) {
	r.metrics.RecordPrediction(isBad)
	r.logger.PredictionLogger(sessionID, probabilityBad, threshold, label, d)
}

func (r *Recorder) Swept(sessionID, feature string, points int, categorical, warning bool, d time.Duration) {
	if warning {
		r.metrics.IncrementSweepWarning()
		return
	}
	r.metrics.RecordSweep(feature, points)
	r.logger.SweepLogger(sessionID, feature, points, categorical, d)
}

func (r *Recorder) Failed(sessionID string, err error) {
	if apperrors.IsCategory(err, apperrors.CategoryScoringFailure) {
		r.metrics.IncrementScoringFailure()
		r.logger.Error("Scoring Failed", "session_id", sessionID, "error", err.Error())
	}
}
