package httpserver_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YaganovValera/tradeflow/common/httpserver"
	"github.com/YaganovValera/tradeflow/common/logger"
)

func TestNew_RequiresAddr(t *testing.T) {
	_, err := httpserver.New(httpserver.Config{}, nil, nil, logger.NewNop())
	assert.Error(t, err)
}

func TestServer_ServiceEndpoints(t *testing.T) {
	ready := errors.New("not connected")
	api := http.NewServeMux()
	api.HandleFunc("/api/ping", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("pong"))
	})

	srv, err := httpserver.New(httpserver.Config{Addr: ":0"}, func() error { return ready }, api, logger.NewNop())
	require.NoError(t, err)
	h := srv.Handler()

	do := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	assert.Equal(t, http.StatusOK, do("/healthz").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do("/readyz").Code)

	ready = nil
	assert.Equal(t, http.StatusOK, do("/readyz").Code)
	assert.Equal(t, http.StatusOK, do("/metrics").Code)

	rec := do("/api/ping")
	assert.Equal(t, "pong", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRecoverMiddleware(t *testing.T) {
	h := httpserver.RecoverMiddleware(logger.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
