package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestMiddleware_RecordsRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()

	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/users/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", m.Handler())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/users/42", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := w.Body.String()
	assert.Contains(t, body, `school_desk_http_requests_total{method="GET",route="/users/:id",status="200"} 1`)
	assert.NotContains(t, body, "/users/42")
}

func TestObserveJob_CountsByResult(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()
	m.ObserveJob("homework_sweep", nil)
	m.ObserveJob("homework_sweep", nil)
	m.ObserveJob("absence_digest", assert.AnError)

	r := gin.New()
	r.GET("/metrics", m.Handler())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := w.Body.String()
	assert.Contains(t, body, `school_desk_job_runs_total{job="homework_sweep",result="ok"} 2`)
	assert.Contains(t, body, `school_desk_job_runs_total{job="absence_digest",result="error"} 1`)
}
