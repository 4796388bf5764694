package frontend

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/app"
	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/artifacts"
	apperrors "github.com/ZanzyTHEbar/credit-risk-whatif/internal/errors"
	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/security"
	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/session"
	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/whatif"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupRouter(t *testing.T) (*gin.Engine, *app.Engine) {
	t.Helper()

	cfg := artifacts.DefaultConfig()
	cfg.Dir = "../../artifacts"
	art, err := artifacts.Load(cfg)
	require.NoError(t, err)

	store := session.NewStore(time.Hour)
	t.Cleanup(func() { _ = store.Close() })

	engine := app.NewEngine(art)
	tmpl, err := LoadPageTemplate()
	require.NoError(t, err)

	handler := NewPageHandler(app.NewRunner(engine, store, nil), tmpl)

	router := gin.New()
	router.Use(apperrors.ErrorHandler())
	router.Use(security.CSPMiddleware(""))
	router.GET("/", handler.Get)
	router.POST("/", handler.Post)
	return router, engine
}

func defaultForm(engine *app.Engine) url.Values {
	form := url.Values{}
	for name, v := range engine.DefaultInputs() {
		form.Set(name, formatInput(v))
	}
	return form
}

func post(router *gin.Engine, form url.Values, cookie *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == SessionCookie {
			return c
		}
	}
	t.Fatalf("no %s cookie set", SessionCookie)
	return nil
}

func TestNewChart(t *testing.T) {
	points := []whatif.Point{
		{Label: "a", Probability: 0},
		{Label: "b", Probability: 0.25},
		{Label: "c", Probability: 0.5},
		{Label: "d", Probability: 1},
	}

	chart := NewChart(points, 0.5)

	require.Len(t, chart.Bars, 4)
	assert.Equal(t, 115.0, chart.ThresholdY)
	assert.Equal(t, 0.0, chart.Bars[0].Height)
	assert.Equal(t, chartBottom-chartTop, chart.Bars[3].Height)
	assert.Equal(t, chart.Bars[3].Y, chartTop)

	over := make([]bool, len(chart.Bars))
	for i, b := range chart.Bars {
		over[i] = b.OverThreshold
		if i > 0 {
			assert.Greater(t, b.X, chart.Bars[i-1].X, "bars keep point order")
		}
	}
	assert.Equal(t, []bool{false, false, true, true}, over)
}

func TestGetRendersDefaultPage(t *testing.T) {
	router, _ := setupRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "Loaded model:")
	assert.Contains(t, body, "xgb_credit_model.json")
	assert.Contains(t, body, "No prediction yet.")
	assert.Contains(t, body, `<option value="radio/TV"`)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	policy := w.Header().Get("Content-Security-Policy")
	start := strings.Index(policy, "'nonce-") + len("'nonce-")
	nonce := policy[start : start+strings.Index(policy[start:], "'")]
	assert.Contains(t, body, `<style nonce="`+nonce+`">`)

	cookie := sessionCookie(t, w)
	assert.True(t, cookie.HttpOnly)
}

func TestPredictThenEditShowsStaleWarning(t *testing.T) {
	router, engine := setupRouter(t)

	form := defaultForm(engine)
	form.Set("action", "predict")
	w := post(router, form, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Classification:")
	assert.NotContains(t, w.Body.String(), "Inputs changed since this prediction")
	cookie := sessionCookie(t, w)

	form.Set("action", "render")
	form.Set("Duration", "48")
	w = post(router, form, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Inputs changed since this prediction")
	assert.NotContains(t, w.Body.String(), "Loaded model:", "notice is shown once per session")
}

func TestActiveModelShownOnEveryPass(t *testing.T) {
	router, engine := setupRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Loaded model:")
	cookie := sessionCookie(t, w)

	form := defaultForm(engine)
	form.Set("action", "predict")
	w = post(router, form, cookie)
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.NotContains(t, body, "Loaded model:")
	assert.Contains(t, body, "Active model: <code>")
	assert.Contains(t, body, "xgb_credit_model.json")
	assert.Contains(t, body, "What does this mean?")
}

func TestSweepRendersChart(t *testing.T) {
	router, engine := setupRouter(t)

	form := defaultForm(engine)
	form.Set("action", "sweep_on")
	form.Set("sweep_feature", "Purpose")
	w := post(router, form, nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "<svg")
	assert.Equal(t, 8, strings.Count(body, `<rect class="bar`))
	assert.Contains(t, body, "Hide sweep")
}

func TestSweepRangeWarningOnPage(t *testing.T) {
	router, engine := setupRouter(t)

	form := defaultForm(engine)
	form.Set("action", "sweep_on")
	form.Set("sweep_feature", "Duration")
	form.Set("sweep_prev_feature", "Duration")
	form.Set("sweep_min", "30")
	form.Set("sweep_max", "10")
	form.Set("sweep_steps", "5")
	w := post(router, form, nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "must be greater than")
	assert.NotContains(t, w.Body.String(), "<svg")
}

func TestInvalidInputRendersError(t *testing.T) {
	router, engine := setupRouter(t)

	form := defaultForm(engine)
	form.Set("action", "predict")
	form.Set("Age", "old")
	w := post(router, form, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `class="error"`)
	assert.Contains(t, w.Body.String(), `value="old"`)
}

func TestOffStepInputRendersError(t *testing.T) {
	router, engine := setupRouter(t)

	form := defaultForm(engine)
	form.Set("action", "predict")
	form.Set("Job", "1.5")
	w := post(router, form, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `class="error"`)
	assert.Contains(t, w.Body.String(), "multiple of 1")
	assert.NotContains(t, w.Body.String(), "Classification:")
}

func TestParseForm(t *testing.T) {
	parse := func(form url.Values) (app.Event, error) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		c.Request = req
		return ParseForm(c, nil)
	}

	t.Run("bounds kept for the same feature", func(t *testing.T) {
		ev, err := parse(url.Values{
			"action": {"render"}, "threshold": {"0.35"},
			"sweep_feature": {"Duration"}, "sweep_prev_feature": {"Duration"},
			"sweep_min": {"6"}, "sweep_max": {"24"}, "sweep_steps": {"4"},
		})
		require.NoError(t, err)
		require.NotNil(t, ev.Threshold)
		assert.Equal(t, 0.35, *ev.Threshold)
		require.NotNil(t, ev.Sweep.Min)
		assert.Equal(t, 6.0, *ev.Sweep.Min)
		assert.Equal(t, 24.0, *ev.Sweep.Max)
		assert.Equal(t, 4, ev.Sweep.Steps)
	})

	t.Run("bounds dropped when the feature changes", func(t *testing.T) {
		ev, err := parse(url.Values{
			"sweep_feature": {"Age"}, "sweep_prev_feature": {"Duration"},
			"sweep_min": {"6"}, "sweep_max": {"24"},
		})
		require.NoError(t, err)
		assert.Equal(t, app.ActionRender, ev.Action)
		assert.Nil(t, ev.Sweep.Min)
		assert.Nil(t, ev.Sweep.Max)
	})

	t.Run("bad numbers", func(t *testing.T) {
		_, err := parse(url.Values{"threshold": {"half"}})
		assert.True(t, apperrors.IsCategory(err, apperrors.CategoryValidation))

		_, err = parse(url.Values{"sweep_steps": {"2.5"}})
		assert.True(t, apperrors.IsCategory(err, apperrors.CategoryValidation))

		_, err = parse(url.Values{"action": {"launch"}})
		assert.True(t, apperrors.IsCategory(err, apperrors.CategoryValidation))
	})
}
