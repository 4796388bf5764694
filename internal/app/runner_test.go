package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ZanzyTHEbar/credit-risk-whatif/internal/errors"
	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/session"
)

type recordingObserver struct {
	mu        sync.Mutex
	started   []string
	predicted []string
	swept     []string
	warnings  int
	failures  []error
}

func (o *recordingObserver) SessionStarted(sessionID string, _ int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, sessionID)
}

func (o *recordingObserver) Predicted(sessionID string, _, _ float64, label string, _ bool, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.predicted = append(o.predicted, sessionID+":"+label)
}

func (o *recordingObserver) Swept(sessionID, feature string, _ int, _, warning bool, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if warning {
		o.warnings++
		return
	}
	o.swept = append(o.swept, sessionID+":"+feature)
}

func (o *recordingObserver) Failed(_ string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures = append(o.failures, err)
}

func newTestRunner(t *testing.T) (*Runner, *recordingObserver) {
	t.Helper()
	store := session.NewStore(time.Hour)
	t.Cleanup(func() { _ = store.Close() })

	obs := &recordingObserver{}
	return NewRunner(testEngine(t), store, obs), obs
}

func TestRunnerPersistsState(t *testing.T) {
	r, obs := newTestRunner(t)
	ctx := context.Background()
	id := r.Store().Create()

	view, err := r.Run(ctx, id, Event{Action: ActionPredict, Inputs: r.Engine().DefaultInputs()})
	require.NoError(t, err)
	assert.True(t, view.ModelNotice)

	state, err := r.Store().Get(id)
	require.NoError(t, err)
	assert.True(t, state.HasPrediction())
	assert.True(t, state.ModelNoticeDone)

	// a plain render keeps the prediction and is not reported again
	view, err = r.Run(ctx, id, Event{Inputs: r.Engine().DefaultInputs()})
	require.NoError(t, err)
	assert.NotNil(t, view.Prediction)
	assert.Equal(t, []string{id + ":BAD"}, obs.predicted)
}

func TestRunnerReportsSweeps(t *testing.T) {
	r, obs := newTestRunner(t)
	ctx := context.Background()
	id := r.Store().Create()

	_, err := r.Run(ctx, id, Event{Action: ActionSweepOn, Inputs: r.Engine().DefaultInputs(), Sweep: SweepRequest{Feature: "Purpose"}})
	require.NoError(t, err)

	bad := SweepRequest{Feature: "Duration", Min: ptr(20), Max: ptr(10)}
	_, err = r.Run(ctx, id, Event{Inputs: r.Engine().DefaultInputs(), Sweep: bad})
	require.NoError(t, err)

	_, err = r.Run(ctx, id, Event{Action: ActionSweepOff, Inputs: r.Engine().DefaultInputs()})
	require.NoError(t, err)

	assert.Equal(t, []string{id + ":Purpose"}, obs.swept)
	assert.Equal(t, 1, obs.warnings)
}

func TestRunnerFailureKeepsStoredState(t *testing.T) {
	r, obs := newTestRunner(t)
	ctx := context.Background()
	id := r.Store().Create()

	_, err := r.Run(ctx, id, Event{Action: ActionSweepOn, Inputs: r.Engine().DefaultInputs()})
	require.NoError(t, err)
	before, err := r.Store().Get(id)
	require.NoError(t, err)

	inputs := withValue(r.Engine().DefaultInputs(), "Housing", "castle")
	_, err = r.Run(ctx, id, Event{Action: ActionPredict, Inputs: inputs})
	require.Error(t, err)

	after, err := r.Store().Get(id)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	require.Len(t, obs.failures, 1)
	assert.True(t, apperrors.IsCategory(obs.failures[0], apperrors.CategoryUnknownCategory))
}

func TestRunnerUnknownSession(t *testing.T) {
	r, obs := newTestRunner(t)

	_, err := r.Run(context.Background(), "nope", Event{Inputs: r.Engine().DefaultInputs()})
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryNotFound))
	assert.Len(t, obs.failures, 1)
}

func TestRunnerWithoutObserver(t *testing.T) {
	store := session.NewStore(time.Hour)
	defer store.Close()

	r := NewRunner(testEngine(t), store, nil)
	id := store.Create()
	_, err := r.Run(context.Background(), id, Event{Action: ActionPredict, Inputs: r.Engine().DefaultInputs()})
	assert.NoError(t, err)
}

func TestNewSessionNotifiesObserver(t *testing.T) {
	r, obs := newTestRunner(t)

	a := r.NewSession()
	b := r.NewSession()

	assert.Equal(t, []string{a, b}, obs.started)
	assert.Equal(t, 2, r.Store().Size())
}
