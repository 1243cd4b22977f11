package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/rid-registry/internal/testutil"
)

type observation struct {
	method, path string
	status       int
}

type recordingObserver struct {
	seen []observation
}

func (r *recordingObserver) ObserveHTTP(method, path string, status int, _ time.Duration) {
	r.seen = append(r.seen, observation{method, path, status})
}

func newEngine(log *testutil.MockLogger, obs HTTPObserver) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), RequestLogging(log, DefaultLoggingConfig()), Metrics(obs))
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/v1/items/:id", func(c *gin.Context) { c.String(http.StatusOK, c.Param("id")) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })
	return r
}

func serve(r http.Handler, path string, header http.Header) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	r.ServeHTTP(w, req)
	return w
}

func TestRequestID(t *testing.T) {
	r := newEngine(testutil.NewMockLogger(), &recordingObserver{})

	w := serve(r, "/healthz", nil)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	w = serve(r, "/healthz", http.Header{RequestIDHeader: {"abc"}})
	assert.Equal(t, "abc", w.Header().Get(RequestIDHeader))
}

func TestRequestLogging_Levels(t *testing.T) {
	log := testutil.NewMockLogger()
	r := newEngine(log, &recordingObserver{})

	serve(r, "/healthz", nil)
	assert.Empty(t, log.GetMessages())

	serve(r, "/v1/items/7", nil)
	assert.True(t, log.HasMessage("info", "HTTP request completed"))

	serve(r, "/missing", nil)
	assert.True(t, log.HasMessage("warn", "HTTP request completed with client error"))

	serve(r, "/boom", nil)
	assert.True(t, log.HasMessage("error", "HTTP request completed with server error"))
}

func TestMetrics_UsesRouteTemplate(t *testing.T) {
	obs := &recordingObserver{}
	r := newEngine(testutil.NewMockLogger(), obs)

	serve(r, "/v1/items/42", nil)
	serve(r, "/nowhere", nil)

	require.Len(t, obs.seen, 2)
	assert.Equal(t, observation{http.MethodGet, "/v1/items/:id", http.StatusOK}, obs.seen[0])
	assert.Equal(t, observation{http.MethodGet, "unmatched", http.StatusNotFound}, obs.seen[1])
}
