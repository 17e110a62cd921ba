package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

func TestHealthHandler_Health(t *testing.T) {
	tests := []struct {
		pingErr    error
		name       string
		wantStatus string
		wantCode   int
	}{
		{name: "database available", wantCode: http.StatusOK, wantStatus: "ok"},
		{name: "database down", pingErr: errors.New("closed"), wantCode: http.StatusServiceUnavailable, wantStatus: "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHealthHandler(setupTestLogger(), pingerFunc(func(context.Context) error {
				return tt.pingErr
			}), "1.2.3")

			w := httptest.NewRecorder()
			handler.Health(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

			resp := w.Result()
			defer func() {
				assert.NoError(t, resp.Body.Close())
			}()

			assert.Equal(t, tt.wantCode, resp.StatusCode)
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

			var healthResp HealthResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&healthResp))
			assert.Equal(t, tt.wantStatus, healthResp.Status)
			assert.Equal(t, "1.2.3", healthResp.Version)
		})
	}
}
