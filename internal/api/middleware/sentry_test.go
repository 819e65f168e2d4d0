package middleware

import (
	"bytes"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiCalls struct {
	mu    sync.Mutex
	paths []string
	codes []int
}

func (a *apiCalls) RecordAPIRequest(endpoint string, statusCode int, _ time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.paths = append(a.paths, endpoint)
	a.codes = append(a.codes, statusCode)
}

func TestRequestTracking(t *testing.T) {
	gin.SetMode(gin.TestMode)
	calls := &apiCalls{}
	router := gin.New()
	router.Use(RequestTracking(calls))
	router.GET("/api/v1/presets/:name", func(c *gin.Context) {
		c.Status(http.StatusNotFound)
	})

	w := httptest.NewRecorder()
	req, err := http.NewRequest(http.MethodGet, "/api/v1/presets/unknown", nil)
	require.NoError(t, err)
	router.ServeHTTP(w, req)

	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Equal(t, []string{"/api/v1/presets/:name"}, calls.paths, "route template keeps metric cardinality low")
	assert.Equal(t, []int{http.StatusNotFound}, calls.codes)
}

func TestRequestTracking_LogsSessionOfRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	router := gin.New()
	router.Use(RequestTracking(nil))
	router.POST("/api/v1/patterns/render", func(c *gin.Context) {
		c.Set("session_id", "sess-42")
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req, err := http.NewRequest(http.MethodPost, "/api/v1/patterns/render", nil)
	require.NoError(t, err)
	router.ServeHTTP(w, req)

	out := buf.String()
	assert.Contains(t, out, "[INFO] Request completed")
	assert.Contains(t, out, "session_id=sess-42")
	assert.Contains(t, out, "request_id="+w.Header().Get("X-Request-ID"))
}

func TestRecoverWithSentry(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RecoverWithSentry())
	router.Use(RequestTracking(nil))
	router.GET("/boom", func(c *gin.Context) {
		panic("renderer exploded")
	})

	w := httptest.NewRecorder()
	req, err := http.NewRequest(http.MethodGet, "/boom", nil)
	require.NoError(t, err)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Internal server error")
}
