package frontend

import (
	"bytes"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/app"
	apperrors "github.com/ZanzyTHEbar/credit-risk-whatif/internal/errors"
	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/features"
	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/security"
)

// SessionCookie carries the browser's session id
const SessionCookie = "creditrisk_session"

// PageHandler serves the interactive page. Every request is one render pass.
type PageHandler struct {
	runner *app.Runner
	tmpl   *template.Template
}

// NewPageHandler creates the page handler
func NewPageHandler(runner *app.Runner, tmpl *template.Template) *PageHandler {
	return &PageHandler{runner: runner, tmpl: tmpl}
}

// Get renders the page with the default inputs
func (h *PageHandler) Get(c *gin.Context) {
	h.serve(c, app.Event{
		Action: app.ActionRender,
		Inputs: h.runner.Engine().DefaultInputs(),
	})
}

// Post applies a form submission
func (h *PageHandler) Post(c *gin.Context) {
	ev, err := ParseForm(c, h.runner.Engine().Fields())
	if err != nil {
		h.renderError(c, ev, err)
		return
	}
	h.serve(c, ev)
}

func (h *PageHandler) serve(c *gin.Context, ev app.Event) {
	id := h.sessionID(c)

	view, err := h.runner.Run(c.Request.Context(), id, ev)
	if err != nil {
		h.renderError(c, ev, err)
		return
	}

	h.render(c, http.StatusOK, NewPageData(view, security.GetNonce(c)))
}

// sessionID returns the cookie session, starting a new one when it is absent or expired
func (h *PageHandler) sessionID(c *gin.Context) string {
	store := h.runner.Store()
	if id, err := c.Cookie(SessionCookie); err == nil && id != "" {
		if _, err := store.Get(id); err == nil {
			return id
		}
	}

	id := h.runner.NewSession()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, id, 0, "/", "", c.Request.TLS != nil, true)
	return id
}

func (h *PageHandler) renderError(c *gin.Context, ev app.Event, err error) {
	appErr := apperrors.ToAppError(err)
	_ = c.Error(appErr)

	page := NewErrorPage(h.runner.Engine(), ev, appErr.UserMessage(), security.GetNonce(c))
	h.render(c, appErr.HTTPStatus, page)
}

func (h *PageHandler) render(c *gin.Context, status int, page PageData) {
	var buf bytes.Buffer
	if err := h.tmpl.Execute(&buf, page); err != nil {
		_ = c.Error(apperrors.NewInternalError("failed to render page", err))
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Data(status, "text/html; charset=utf-8", buf.Bytes())
}

// ParseForm reads one submission into an event. The returned event carries whatever could
// be read even when err is set, so the form can be shown again.
func ParseForm(c *gin.Context, fields []features.Field) (app.Event, error) {
	ev := app.Event{Inputs: make(features.RawInputs, len(fields))}

	for _, f := range fields {
		if v, ok := c.GetPostForm(f.Name); ok {
			ev.Inputs[f.Name] = v
		}
	}

	action, err := app.ParseAction(c.PostForm("action"))
	if err != nil {
		return ev, err
	}
	ev.Action = action

	if raw := strings.TrimSpace(c.PostForm("threshold")); raw != "" {
		t, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return ev, apperrors.NewValidationError("threshold must be a number", raw)
		}
		ev.Threshold = &t
	}

	ev.Sweep.Feature = strings.TrimSpace(c.PostForm("sweep_feature"))

	// bounds belong to the feature they were drawn for
	if prev := c.PostForm("sweep_prev_feature"); prev != "" && prev != ev.Sweep.Feature {
		return ev, nil
	}

	if ev.Sweep.Min, err = optionalFloat(c.PostForm("sweep_min"), "sweep min"); err != nil {
		return ev, err
	}
	if ev.Sweep.Max, err = optionalFloat(c.PostForm("sweep_max"), "sweep max"); err != nil {
		return ev, err
	}
	if raw := strings.TrimSpace(c.PostForm("sweep_steps")); raw != "" {
		steps, err := strconv.Atoi(raw)
		if err != nil {
			return ev, apperrors.NewValidationError("steps must be a whole number", raw)
		}
		ev.Sweep.Steps = steps
	}
	return ev, nil
}

func optionalFloat(raw, name string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, apperrors.NewValidationError(name+" must be a number", raw)
	}
	return &v, nil
}
