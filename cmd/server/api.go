package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/app"
	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/errors"
	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/middleware"
	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/monitoring"
	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/prediction"
	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/ratelimit"
	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/whatif"
)

type api struct {
	runner  *app.Runner
	metrics *monitoring.Metrics
	logger  *monitoring.Logger
	limiter *ratelimit.RateLimiter
	gzip    *middleware.Compressor
}

func newAPI(runner *app.Runner, metrics *monitoring.Metrics, logger *monitoring.Logger, limiter *ratelimit.RateLimiter, gzip *middleware.Compressor) *api {
	return &api{runner: runner, metrics: metrics, logger: logger, limiter: limiter, gzip: gzip}
}

func (a *api) health(c *gin.Context) {
	art := a.runner.Engine().Artifacts()
	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"timestamp":       time.Now().Format(time.RFC3339),
		"model_path":      art.ModelPath,
		"model_kind":      art.ModelKind,
		"loaded_at":       art.LoadedAt.Format(time.RFC3339),
		"active_sessions": a.runner.Store().Size(),
	})
}

func (a *api) stats(c *gin.Context) {
	body := gin.H{
		"metrics":    a.metrics.GetStats(),
		"sessions":   a.runner.Store().Stats(),
		"rate_limit": a.limiter.GetStats(),
	}
	if a.gzip != nil {
		body["compression"] = a.gzip.GetStats()
	}
	c.JSON(http.StatusOK, body)
}

func (a *api) schema(c *gin.Context) {
	engine := a.runner.Engine()
	art := engine.Artifacts()

	classes := make(map[string][]string)
	for _, feature := range art.Encoders.Features() {
		classes[feature] = art.Encoders.ClassesFor(feature)
	}

	c.JSON(http.StatusOK, gin.H{
		"feature_order": art.FeatureOrder(),
		"fields":        engine.Fields(),
		"classes":       classes,
		"defaults":      engine.DefaultInputs(),
		"model_path":    art.ModelPath,
		"model_kind":    art.ModelKind,
		"threshold": gin.H{
			"min":     prediction.MinThreshold,
			"max":     prediction.MaxThreshold,
			"step":    prediction.ThresholdStep,
			"default": prediction.DefaultThreshold,
		},
		"sweep_steps": gin.H{
			"min":     whatif.MinSteps,
			"max":     whatif.MaxSteps,
			"default": whatif.DefaultSteps,
		},
	})
}

func (a *api) createSession(c *gin.Context) {
	id := a.runner.NewSession()

	c.JSON(http.StatusCreated, gin.H{"session_id": id})
}

func (a *api) deleteSession(c *gin.Context) {
	id := c.Param("id")
	if _, err := a.runner.Store().Get(id); err != nil {
		_ = c.Error(err)
		return
	}

	a.runner.Store().Delete(id)
	a.logger.SessionLogger("deleted", id, a.runner.Store().Size())
	c.Status(http.StatusNoContent)
}

func (a *api) postEvent(c *gin.Context) {
	var ev app.Event
	if err := c.ShouldBindJSON(&ev); err != nil {
		_ = c.Error(errors.NewValidationError("invalid event body", err.Error()))
		return
	}

	action, err := app.ParseAction(string(ev.Action))
	if err != nil {
		_ = c.Error(err)
		return
	}
	ev.Action = action

	view, err := a.runner.Run(c.Request.Context(), c.Param("id"), ev)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, view)
}
