package app

import (
	"context"
	"time"

	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/session"
)

// Observer is told about the outcome of every render pass
type Observer interface {
	SessionStarted(sessionID string, active int)
	Predicted(sessionID string, probabilityBad, threshold float64, label string, isBad bool, d time.Duration)
	Swept(sessionID, feature string, points int, categorical, warning bool, d time.Duration)
	Failed(sessionID string, err error)
}

type nopObserver struct{}

func (nopObserver) SessionStarted(string, int)                                      {}
func (nopObserver) Predicted(string, float64, float64, string, bool, time.Duration) {}
func (nopObserver) Swept(string, string, int, bool, bool, time.Duration)            {}
func (nopObserver) Failed(string, error)                                            {}

// Runner applies events to stored sessions. Passes of one session run one at a time;
// different sessions never share state.
type Runner struct {
	engine   *Engine
	store    *session.Store
	observer Observer
}

// NewRunner creates a runner. A nil observer discards notifications.
func NewRunner(engine *Engine, store *session.Store, observer Observer) *Runner {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Runner{engine: engine, store: store, observer: observer}
}

// Engine returns the engine the runner drives
func (r *Runner) Engine() *Engine { return r.engine }

// Store returns the session store
func (r *Runner) Store() *session.Store { return r.store }

// NewSession starts an empty session and returns its id
func (r *Runner) NewSession() string {
	id := r.store.Create()
	r.observer.SessionStarted(id, r.store.Size())
	return id
}

// Run handles ev for the session id and persists the new state. On error the stored
// state is unchanged.
func (r *Runner) Run(ctx context.Context, id string, ev Event) (View, error) {
	start := time.Now()

	var view View
	err := r.store.Update(id, func(st session.State) (session.State, error) {
		next, v, err := r.engine.Handle(ctx, st, ev)
		if err != nil {
			return st, err
		}
		view = v
		return next, nil
	})
	elapsed := time.Since(start)

	if err != nil {
		r.observer.Failed(id, err)
		return View{}, err
	}

	if view.JustPredicted && view.Prediction != nil {
		p := view.Prediction
		r.observer.Predicted(id, p.ProbabilityBad, p.Threshold, p.Label(), p.IsBad, elapsed)
	}
	if view.Sweep.Active {
		r.observer.Swept(id, view.Sweep.Feature, len(view.Sweep.Points), view.Sweep.Categorical, view.Sweep.Warning != "", elapsed)
	}
	return view, nil
}
