package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHealthChecker(t *testing.T) {
	var storeErr error
	hc := NewHealthChecker(nil)
	hc.AddDependency("storage", PingFunc(func(context.Context) error { return storeErr }))

	t.Run("全部正常", func(t *testing.T) {
		results, ok := hc.CheckHealth(context.Background())
		assert.True(t, ok)
		assert.Equal(t, "OK", results["storage"])
		assert.NotEmpty(t, results["timestamp"])

		w := httptest.NewRecorder()
		hc.ReadyEndpoint(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("存储异常", func(t *testing.T) {
		storeErr = errors.New("connection refused")
		defer func() { storeErr = nil }()

		results, ok := hc.CheckHealth(context.Background())
		assert.False(t, ok)
		assert.Contains(t, results["storage"], "connection refused")

		w := httptest.NewRecorder()
		hc.ReadyEndpoint(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)

		// 存活检查不受依赖影响
		w = httptest.NewRecorder()
		hc.LiveEndpoint(w, httptest.NewRequest(http.MethodGet, "/live", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}
