package router

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cuongbtq/job-orchestrator/internal/api/handler"
	"github.com/cuongbtq/job-orchestrator/internal/worker/jobs"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestSetupRouter_HealthAndMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logs := &bytes.Buffer{}

	r := SetupRouter(&handler.Dependencies{
		Logger:   slog.New(slog.NewTextHandler(logs, nil)),
		JobTypes: jobs.NewDefaultRegistry(),
	})

	for _, path := range []string{"/health", "/metrics", "/api/v1/job-types"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	assert.Contains(t, logs.String(), "path=/api/v1/job-types")
	assert.NotContains(t, logs.String(), "path=/health")
	assert.NotContains(t, logs.String(), "path=/metrics")
}

func TestLoggerMiddleware_LevelByStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logs := &bytes.Buffer{}

	r := gin.New()
	r.Use(LoggerMiddleware(slog.New(slog.NewTextHandler(logs, nil))))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/bad", func(c *gin.Context) { c.Status(http.StatusConflict) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	for _, path := range []string{"/ok", "/bad", "/boom"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	out := logs.String()
	assert.Contains(t, out, "level=INFO msg=\"HTTP request\" status=200")
	assert.Contains(t, out, "level=WARN msg=\"HTTP request\" status=409")
	assert.Contains(t, out, "level=ERROR msg=\"HTTP request\" status=500")
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(CORSMiddleware())
	r.POST("/api/v1/jobs", func(c *gin.Context) { c.Status(http.StatusAccepted) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/api/v1/jobs", io.NopCloser(bytes.NewReader(nil))))

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
